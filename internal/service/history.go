package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"scalebridge/internal/models"
	"scalebridge/internal/repository"
)

type HistoryService struct {
	captures repository.CaptureRepo
}

func NewHistoryService(captures repository.CaptureRepo) *HistoryService {
	return &HistoryService{captures: captures}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
	errNoHistory        = errors.New("capture history is not available")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func normalizeAction(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f HistoryFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}
	return from, to, normalizeAction(f.Action), nil
}

func (s *HistoryService) List(ctx context.Context, f HistoryFilter) ([]models.CaptureResult, error) {
	if s.captures == nil {
		return nil, errNoHistory
	}
	from, to, action, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.captures.List(ctx, from, to, action)
}
