package repository

import (
	"context"
	"database/sql"
	"time"

	"scalebridge/internal/models"
)

type CaptureRepo interface {
	Append(ctx context.Context, c models.CaptureResult) error
	List(ctx context.Context, from, to time.Time, action string) ([]models.CaptureResult, error)
}

type Repository struct {
	CaptureRepo CaptureRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		CaptureRepo: NewCaptureSQLite(db),
	}
}
