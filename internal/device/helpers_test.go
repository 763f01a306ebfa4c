package device

import (
	"io"
	"sync"
	"testing"
	"time"

	"scalebridge/internal/config"
	"scalebridge/internal/models"
)

// manualClock records scheduled tasks; tests fire them explicitly.
type manualClock struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	clock   *manualClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTask{clock: c, d: d, f: f}
	c.tasks = append(c.tasks, t)
	return t
}

func (t *manualTask) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// active returns tasks neither stopped nor fired.
func (c *manualClock) active() []*manualTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*manualTask
	for _, t := range c.tasks {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireAll runs every active task once.
func (c *manualClock) fireAll() int {
	tasks := c.active()
	c.mu.Lock()
	for _, t := range tasks {
		t.fired = true
	}
	c.mu.Unlock()
	for _, t := range tasks {
		t.f()
	}
	return len(tasks)
}

// fakePort feeds scripted bytes and reports a read timeout when idle.
type fakePort struct {
	data   chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes []string
}

func newFakePort() *fakePort {
	return &fakePort{data: make(chan []byte, 16), closed: make(chan struct{})}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.data:
		return copy(b, chunk), nil
	case <-p.closed:
		return 0, io.EOF
	case <-time.After(20 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	p.mu.Lock()
	p.writes = append(p.writes, string(b))
	p.mu.Unlock()
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

// fakeFrameLog records frames passed to it.
type fakeFrameLog struct {
	mu      sync.Mutex
	opened  int
	closed  int
	frames  []models.RawFrame
	weights []*float64
}

func (f *fakeFrameLog) OpenSerial() {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
}

func (f *fakeFrameLog) CloseSerial() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

func (f *fakeFrameLog) SetConfig(config.LoggingConfig) {}

func (f *fakeFrameLog) Frame(frame models.RawFrame, weight *float64) {
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	f.weights = append(f.weights, weight)
	f.mu.Unlock()
}

func (f *fakeFrameLog) snapshot() ([]models.RawFrame, []*float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RawFrame(nil), f.frames...), append([]*float64(nil), f.weights...)
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func testDeviceConfig() config.DeviceConfig {
	return config.DeviceConfig{
		Serial: config.SerialConfig{Port: "/dev/ttyFAKE", BaudRate: 9600, DataBits: 8, Parity: "none", StopBits: 1},
	}
}
