package service

import (
	"time"

	"scalebridge/internal/device"
	"scalebridge/internal/models"
)

type CaptureParams struct {
	Action  string // BRUTTO | TARA | NETTO, case-insensitive
	OrderID *int
}

// HistoryFilter selects captures by time range and action.
type HistoryFilter struct {
	From   time.Time // inclusive; zero means no lower bound
	To     time.Time // inclusive; zero means no upper bound
	Action string    // "", "BRUTTO", "TARA", "NETTO"
}

// PhotoResult answers a photo-only capture.
type PhotoResult struct {
	Success  bool     `json:"success"`
	Photos   []string `json:"photos"`
	PhotoURL *string  `json:"photoUrl"`
	NoCamera bool     `json:"noCamera"`
}

type Health struct {
	Status    string         `json:"status"`
	Connected bool           `json:"connected"`
	State     device.State   `json:"state"`
	Reading   models.Reading `json:"reading"`
	Simulated bool           `json:"simulated"`
}

type PortList struct {
	Ports     []string `json:"ports"`
	Simulated bool     `json:"simulated"`
}
