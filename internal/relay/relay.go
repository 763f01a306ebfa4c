// Package relay forwards capture results to remote collectors.
package relay

import (
	"context"
	"errors"
	"time"

	"scalebridge/internal/logger"
	"scalebridge/internal/models"
)

// Pusher delivers one capture result to a remote sink.
type Pusher interface {
	Push(ctx context.Context, res models.CaptureResult) error
}

// NewPayload builds the wire body shared by every sink.
func NewPayload(res models.CaptureResult, apiKey string) models.RelayPayload {
	return models.RelayPayload{
		APIKey:    apiKey,
		Weight:    res.Weight,
		Unit:      res.Unit,
		Action:    res.Action,
		OrderID:   res.OrderID,
		PhotoURL:  res.PhotoURL,
		Timestamp: res.Timestamp.UTC().Format(time.RFC3339),
	}
}

// Multi pushes to every sink and joins their errors. Each failure is logged.
type Multi struct {
	sinks []namedPusher
	log   *logger.Logger
}

type namedPusher struct {
	name string
	p    Pusher
}

func NewMulti(log *logger.Logger) *Multi {
	return &Multi{log: log}
}

// Add registers a sink. Nil pushers are ignored.
func (m *Multi) Add(name string, p Pusher) *Multi {
	if p != nil {
		m.sinks = append(m.sinks, namedPusher{name: name, p: p})
	}
	return m
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Push(ctx context.Context, res models.CaptureResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.p.Push(ctx, res); err != nil {
			if m.log != nil {
				m.log.Warnw("relay_push_failed", "sink", s.name, "capture_id", res.ID, "err", err)
			}
			errs = append(errs, err)
			continue
		}
		if m.log != nil {
			m.log.Debugw("relay_pushed", "sink", s.name, "capture_id", res.ID)
		}
	}
	return errors.Join(errs...)
}
