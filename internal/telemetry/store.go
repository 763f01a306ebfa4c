// Package telemetry holds the last known scale reading.
package telemetry

import (
	"sync/atomic"
	"time"

	"scalebridge/internal/decoder"
	"scalebridge/internal/models"
)

// Store is read by any goroutine at any time without blocking. Every update
// swaps in a fresh snapshot, so readers never observe a half-written value.
type Store struct {
	current atomic.Pointer[models.Reading]
}

// NewStore returns a store holding the zero, disconnected reading.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&models.Reading{Unit: decoder.DefaultUnit, Timestamp: time.Now().UTC()})
	return s
}

// Get returns the current snapshot.
func (s *Store) Get() models.Reading {
	return *s.current.Load()
}

// Set replaces the snapshot.
func (s *Store) Set(r models.Reading) {
	if r.Unit == "" {
		r.Unit = decoder.DefaultUnit
	}
	s.current.Store(&r)
}

// SetConnected replaces the snapshot with a copy carrying the new flag.
func (s *Store) SetConnected(connected bool) {
	for {
		old := s.current.Load()
		next := *old
		next.Connected = connected
		if s.current.CompareAndSwap(old, &next) {
			return
		}
	}
}
