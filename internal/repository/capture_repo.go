package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scalebridge/internal/models"
)

const sqliteTimeLayout = "2006-01-02 15:04:05"

type CaptureSQLite struct {
	db *sql.DB
}

func NewCaptureSQLite(db *sql.DB) *CaptureSQLite { return &CaptureSQLite{db: db} }

// Append stores a capture. Missing ID and timestamp are filled in.
func (r *CaptureSQLite) Append(ctx context.Context, c models.CaptureResult) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}

	var photos *string
	if len(c.Photos) > 0 {
		if b, err := json.Marshal(c.Photos); err == nil {
			s := string(b)
			photos = &s
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO captures (id, captured_at, action, weight, unit, order_id, photo_url, photos, no_camera)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.Timestamp.UTC().Format(sqliteTimeLayout),
		strings.ToUpper(strings.TrimSpace(c.Action)),
		c.Weight,
		c.Unit,
		c.OrderID,
		c.PhotoURL,
		photos,
		c.NoCamera,
	)
	return err
}

// List returns captures within [from, to] (zero bounds are open) and
// optionally of one action, oldest first.
func (r *CaptureSQLite) List(ctx context.Context, from, to time.Time, action string) ([]models.CaptureResult, error) {
	var (
		conds []string
		args  []any
	)
	if !from.IsZero() {
		conds = append(conds, "captured_at >= ?")
		args = append(args, from.UTC().Format(sqliteTimeLayout))
	}
	if !to.IsZero() {
		conds = append(conds, "captured_at <= ?")
		args = append(args, to.UTC().Format(sqliteTimeLayout))
	}
	if action = strings.ToUpper(strings.TrimSpace(action)); action != "" {
		conds = append(conds, "action = ?")
		args = append(args, action)
	}

	q := `SELECT id, captured_at, action, weight, unit, order_id, photo_url, photos, no_camera FROM captures`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY captured_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.CaptureResult, 0, 64)
	for rows.Next() {
		var (
			c        models.CaptureResult
			orderID  sql.NullInt64
			photoURL sql.NullString
			photos   sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Timestamp, &c.Action, &c.Weight, &c.Unit,
			&orderID, &photoURL, &photos, &c.NoCamera); err != nil {
			return nil, err
		}
		c.Success = true
		c.Timestamp = c.Timestamp.UTC()
		if orderID.Valid {
			id := int(orderID.Int64)
			c.OrderID = &id
		}
		if photoURL.Valid {
			u := photoURL.String
			c.PhotoURL = &u
		}
		c.Photos = []string{}
		if photos.Valid && photos.String != "" {
			if err := json.Unmarshal([]byte(photos.String), &c.Photos); err != nil {
				return nil, fmt.Errorf("capture %s: decode photos: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
