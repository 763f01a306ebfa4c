// Package device owns the scale connection: a real serial session or a
// simulator behind the same Session contract.
package device

import (
	"context"
	"errors"
	"sort"
	"time"

	"scalebridge/internal/config"
	"scalebridge/internal/models"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// State of the connection.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
)

// Fixed retry delays.
const (
	ReconnectDelay       = 5 * time.Second
	ManualReconnectDelay = 1 * time.Second
)

// SimulatedPort is the single entry reported by ListPorts in simulated mode.
const SimulatedPort = "SIMULATOR"

var ErrPortClosed = errors.New("device: port is not open")

// EventType identifies what happened on the session.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventReading      EventType = "reading"
)

// Event is delivered to subscribers.
type Event struct {
	Type    EventType      `json:"type"`
	Reading models.Reading `json:"reading"`
	Error   string         `json:"error,omitempty"`
	At      time.Time      `json:"at"`
}

// Session is the capability set shared by the serial session and the simulator.
// Callers never learn which one is active.
type Session interface {
	// Open starts connecting; failures are retried in the background.
	Open(ctx context.Context)
	// CurrentWeight never blocks and always returns a reading.
	CurrentWeight() models.Reading
	// Reconnect force-closes the connection and reopens it shortly after.
	Reconnect()
	// Disconnect stops timers and closes the connection. Idempotent.
	Disconnect()
	// UpdateConfig replaces the config and forces a reconnect.
	UpdateConfig(cfg config.DeviceConfig)
	// Subscribe returns an event channel and a cancel func.
	Subscribe(buffer int) (<-chan Event, func())
	// WriteCommand writes raw bytes to the device.
	WriteCommand(cmd string) error
	State() State
	Config() config.DeviceConfig
	Simulated() bool
}

// ListPorts enumerates serial ports, or the simulator entry in simulated mode.
func ListPorts(simulated bool) ([]string, error) {
	if simulated {
		return []string{SimulatedPort}, nil
	}
	var names []string
	if details, err := enumerator.GetDetailedPortsList(); err == nil {
		for _, p := range details {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		list, err := serial.GetPortsList()
		if err != nil {
			return nil, err
		}
		names = list
	}
	sort.Strings(names)
	return names, nil
}
