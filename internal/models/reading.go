package models

import "time"

// Reading is the latest normalized value reported by the scale.
type Reading struct {
	Weight    float64   `json:"weight"`
	Unit      string    `json:"unit"`
	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}

// RawFrame is one unit of text received from the indicator before decoding.
type RawFrame struct {
	Raw        string
	ReceivedAt time.Time
}
