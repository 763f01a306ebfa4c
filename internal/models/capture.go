package models

import (
	"strings"
	"time"
)

// Capture actions of a truck-weighing cycle.
const (
	ActionBrutto = "BRUTTO" // gross
	ActionTara   = "TARA"   // empty truck
	ActionNetto  = "NETTO"  // computed net
)

// NormalizeAction upper-cases the action and reports whether it is known.
func NormalizeAction(s string) (string, bool) {
	a := strings.ToUpper(strings.TrimSpace(s))
	switch a {
	case ActionBrutto, ActionTara, ActionNetto:
		return a, true
	default:
		return "", false
	}
}

// CaptureResult is created once per capture command and never mutated afterwards.
type CaptureResult struct {
	ID        string    `json:"id"`
	Success   bool      `json:"success"`
	Weight    float64   `json:"weight"`
	Unit      string    `json:"unit"`
	Action    string    `json:"action"`
	OrderID   *int      `json:"orderId,omitempty"`
	PhotoURL  *string   `json:"photoUrl"`
	Photos    []string  `json:"photos"`
	NoCamera  bool      `json:"noCamera"`
	Timestamp time.Time `json:"timestamp"`
}

// RelayPayload is the body pushed to the remote collector.
type RelayPayload struct {
	APIKey    string  `json:"apiKey,omitempty"`
	Weight    float64 `json:"weight"`
	Unit      string  `json:"unit"`
	Action    string  `json:"action"`
	OrderID   *int    `json:"orderId"`
	PhotoURL  *string `json:"photoUrl"`
	Timestamp string  `json:"timestamp"`
}
