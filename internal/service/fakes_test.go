package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"scalebridge/internal/config"
	"scalebridge/internal/device"
	"scalebridge/internal/models"
)

// fakeSession is a device.Session with settable fields.
type fakeSession struct {
	mu         sync.Mutex
	reading    models.Reading
	state      device.State
	simulated  bool
	cfg        config.DeviceConfig
	reconnects int
	updates    []config.DeviceConfig
}

var _ device.Session = (*fakeSession)(nil)

func (f *fakeSession) Open(context.Context) {}
func (f *fakeSession) CurrentWeight() models.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reading
}
func (f *fakeSession) Reconnect() {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
}
func (f *fakeSession) Disconnect() {}
func (f *fakeSession) UpdateConfig(cfg config.DeviceConfig) {
	f.mu.Lock()
	f.cfg = cfg
	f.updates = append(f.updates, cfg)
	f.mu.Unlock()
}
func (f *fakeSession) Subscribe(int) (<-chan device.Event, func()) {
	ch := make(chan device.Event)
	return ch, func() {}
}
func (f *fakeSession) WriteCommand(string) error   { return device.ErrPortClosed }
func (f *fakeSession) State() device.State         { return f.state }
func (f *fakeSession) Config() config.DeviceConfig { return f.cfg }
func (f *fakeSession) Simulated() bool             { return f.simulated }

// fakeCamera returns photos or an error and maps paths under /photos.
type fakeCamera struct {
	paths []string
	err   error
	names []string
}

func (f *fakeCamera) CapturePhoto(ctx context.Context, name string) ([]string, error) {
	f.names = append(f.names, name)
	return f.paths, f.err
}

func (f *fakeCamera) URLFor(path string) string { return "/photos/" + path }

type fakeEvents struct {
	rows []models.CaptureResult
}

func (f *fakeEvents) Capture(res models.CaptureResult) { f.rows = append(f.rows, res) }

// fakePusher records pushes and can block until released.
type fakePusher struct {
	mu     sync.Mutex
	pushed []models.CaptureResult
	err    error
	delay  time.Duration
}

func (f *fakePusher) Push(ctx context.Context, res models.CaptureResult) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, res)
	return f.err
}

func (f *fakePusher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushed)
}

var errCameraOffline = errors.New("camera offline")
