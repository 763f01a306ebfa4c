package device

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"scalebridge/internal/config"
	"scalebridge/internal/decoder"
	"scalebridge/internal/logger"
	"scalebridge/internal/models"
	"scalebridge/internal/telemetry"

	"go.bug.st/serial"
)

const (
	// quietPeriod is the read timeout; a timeout with buffered bytes flushes
	// them through the raw-byte fallback.
	quietPeriod = 200 * time.Millisecond
	readBufSize = 256
	maxPending  = 1024
)

// Port is the part of a serial port the session uses.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a port for the given parameters.
type Opener func(cfg config.SerialConfig) (Port, error)

// FrameLog receives every frame seen on the wire.
type FrameLog interface {
	OpenSerial()
	CloseSerial()
	SetConfig(cfg config.LoggingConfig)
	Frame(frame models.RawFrame, weight *float64)
}

// OpenSerialPort opens a physical port with go.bug.st/serial.
func OpenSerialPort(cfg config.SerialConfig) (Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   toParity(cfg.Parity),
		StopBits: toStopBits(cfg.StopBits),
	}
	p, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	if err := p.SetReadTimeout(quietPeriod); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Port, err)
	}
	return p, nil
}

func toParity(s string) serial.Parity {
	switch strings.ToLower(s) {
	case "even":
		return serial.EvenParity
	case "odd":
		return serial.OddParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

func toStopBits(v float64) serial.StopBits {
	switch v {
	case 1.5:
		return serial.OnePointFiveStopBits
	case 2:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}

// SerialSession owns exactly one physical connection.
type SerialSession struct {
	mu      sync.Mutex
	ctx     context.Context
	cfg     config.DeviceConfig
	state   State
	port    Port
	gen     uint64
	stopped bool

	reconnect *timerSlot
	pollStop  chan struct{}

	store  *telemetry.Store
	frames FrameLog
	hub    *hub
	log    *logger.Logger
	open   Opener
	now    func() time.Time
}

// NewSerialSession wires a session; nothing is opened until Open.
func NewSerialSession(cfg config.DeviceConfig, store *telemetry.Store, frames FrameLog, log *logger.Logger) *SerialSession {
	return &SerialSession{
		ctx:       context.Background(),
		cfg:       cfg,
		state:     StateDisconnected,
		reconnect: newTimerSlot(nil),
		store:     store,
		frames:    frames,
		hub:       newHub(),
		log:       log,
		open:      OpenSerialPort,
		now:       time.Now,
	}
}

var _ Session = (*SerialSession)(nil)

func (s *SerialSession) Open(ctx context.Context) {
	s.mu.Lock()
	if ctx != nil {
		s.ctx = ctx
	}
	s.stopped = false
	s.mu.Unlock()
	s.connect()
}

func (s *SerialSession) CurrentWeight() models.Reading { return s.store.Get() }

func (s *SerialSession) Subscribe(buffer int) (<-chan Event, func()) {
	return s.hub.subscribe(buffer)
}

func (s *SerialSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SerialSession) Config() config.DeviceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *SerialSession) Simulated() bool { return false }

// Reconnect closes the port whatever its state and reopens it after a short delay.
func (s *SerialSession) Reconnect() {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()

	s.reconnect.Cancel()
	s.closePort("manual reconnect")
	s.reconnect.Schedule(ManualReconnectDelay, s.connect)
	s.log.Infow("serial_reconnect_requested", "delay", ManualReconnectDelay)
}

// Disconnect cancels timers and closes the port. Safe to call repeatedly.
func (s *SerialSession) Disconnect() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.reconnect.Cancel()
	s.closePort("disconnect")
}

// UpdateConfig replaces the config; port parameters only apply on reopen.
func (s *SerialSession) UpdateConfig(cfg config.DeviceConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	if s.frames != nil {
		s.frames.SetConfig(cfg.Logging)
	}
	s.Reconnect()
}

// WriteCommand writes cmd to the open port.
func (s *SerialSession) WriteCommand(cmd string) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return ErrPortClosed
	}
	if _, err := port.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

func (s *SerialSession) connect() {
	s.mu.Lock()
	if s.stopped || s.ctx.Err() != nil || s.port != nil {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	s.state = StateConnecting
	s.mu.Unlock()

	port, err := s.open(cfg.Serial)
	if err != nil {
		s.log.Warnw("serial_open_failed", "port", cfg.Serial.Port, "err", err)
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.store.SetConnected(false)
		s.hub.publish(Event{Type: EventDisconnected, Reading: s.store.Get(), Error: err.Error(), At: s.now()})
		s.scheduleReconnect(ReconnectDelay)
		return
	}

	s.mu.Lock()
	if s.stopped || s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = port.Close()
		return
	}
	s.port = port
	s.gen++
	gen := s.gen
	s.state = StateConnected
	s.mu.Unlock()

	s.reconnect.Cancel()
	s.store.SetConnected(true)
	if s.frames != nil {
		s.frames.OpenSerial()
	}
	s.startPolling(cfg)
	s.log.Infow("serial_connected", "port", cfg.Serial.Port, "baud", cfg.Serial.BaudRate)
	s.hub.publish(Event{Type: EventConnected, Reading: s.store.Get(), At: s.now()})

	go s.readLoop(port, gen)
}

func (s *SerialSession) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.gen || s.port == nil
}

// connectionLost handles an error or close seen by the reader of generation gen.
func (s *SerialSession) connectionLost(gen uint64, cause error) {
	if s.stale(gen) {
		return
	}
	s.log.Warnw("serial_connection_lost", "err", cause)
	s.closePort(fmt.Sprint(cause))
	s.scheduleReconnect(ReconnectDelay)
}

// closePort tears down the current connection without scheduling anything.
func (s *SerialSession) closePort(reason string) {
	s.mu.Lock()
	port := s.port
	s.port = nil
	wasConnected := s.state == StateConnected
	s.state = StateDisconnected
	s.stopPollingLocked()
	s.mu.Unlock()

	if port == nil {
		return
	}
	if err := port.Close(); err != nil {
		s.log.Warnw("serial_close_failed", "err", err)
	}
	s.store.SetConnected(false)
	if s.frames != nil {
		s.frames.CloseSerial()
	}
	if wasConnected {
		s.hub.publish(Event{Type: EventDisconnected, Reading: s.store.Get(), Error: reason, At: s.now()})
	}
}

func (s *SerialSession) scheduleReconnect(d time.Duration) {
	s.mu.Lock()
	stopped := s.stopped || s.ctx.Err() != nil
	s.mu.Unlock()
	if stopped {
		return
	}
	if s.reconnect.Schedule(d, s.connect) {
		s.log.Infow("serial_reconnect_scheduled", "delay", d)
	}
}

func (s *SerialSession) startPolling(cfg config.DeviceConfig) {
	if !cfg.Polling.Enabled || cfg.PollInterval() <= 0 {
		return
	}
	s.mu.Lock()
	if s.pollStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.pollStop = stop
	s.mu.Unlock()

	go func() {
		t := time.NewTicker(cfg.PollInterval())
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				err := s.WriteCommand(cfg.Polling.Command)
				if err != nil && err != ErrPortClosed {
					s.log.Warnw("serial_poll_write_failed", "err", err)
				}
			}
		}
	}()
}

func (s *SerialSession) stopPollingLocked() {
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
}

func (s *SerialSession) readLoop(port Port, gen uint64) {
	buf := make([]byte, readBufSize)
	pending := make([]byte, 0, maxPending)
	for {
		n, err := port.Read(buf)
		if s.stale(gen) {
			return
		}
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = s.drainLines(gen, pending)
			if len(pending) >= maxPending {
				s.handleChunk(gen, pending)
				pending = pending[:0]
			}
		}
		if err != nil {
			s.connectionLost(gen, err)
			return
		}
		if n == 0 && len(pending) > 0 {
			// read timeout with no terminator: the device sends bare bursts
			s.handleChunk(gen, pending)
			pending = pending[:0]
		}
	}
}

// drainLines handles every CR/LF terminated frame and returns the remainder.
func (s *SerialSession) drainLines(gen uint64, pending []byte) []byte {
	for {
		idx := -1
		for i, b := range pending {
			if b == '\n' || b == '\r' {
				idx = i
				break
			}
		}
		if idx < 0 {
			return pending
		}
		if line := string(pending[:idx]); strings.TrimSpace(line) != "" {
			s.handleFrame(gen, line)
		}
		j := idx
		for j < len(pending) && (pending[j] == '\n' || pending[j] == '\r') {
			j++
		}
		pending = append(pending[:0], pending[j:]...)
	}
}

func (s *SerialSession) handleFrame(gen uint64, line string) {
	s.process(gen, line, func() (decoder.Result, bool) { return decoder.Decode(line) })
}

func (s *SerialSession) handleChunk(gen uint64, chunk []byte) {
	raw := string(chunk)
	s.process(gen, raw, func() (decoder.Result, bool) { return decoder.DecodeBytes(chunk) })
}

// commit stores r only while generation gen still owns the port, so a frame
// decoded during closePort cannot flip the store back to connected.
func (s *SerialSession) commit(gen uint64, r models.Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.port == nil {
		return false
	}
	s.store.Set(r)
	return true
}

func (s *SerialSession) process(gen uint64, raw string, decode func() (decoder.Result, bool)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("serial_frame_panic", "raw", raw, "panic", r)
		}
	}()
	frame := models.RawFrame{Raw: strings.TrimSpace(raw), ReceivedAt: s.now()}
	res, ok := decode()
	if !ok {
		s.log.Debugw("serial_frame_unparsed", "raw", frame.Raw)
		if s.frames != nil {
			s.frames.Frame(frame, nil)
		}
		return
	}
	reading := models.Reading{
		Weight:    res.Weight,
		Unit:      res.Unit,
		Connected: true,
		Timestamp: frame.ReceivedAt.UTC(),
	}
	if !s.commit(gen, reading) {
		return
	}
	if s.frames != nil {
		w := res.Weight
		s.frames.Frame(frame, &w)
	}
	s.hub.publish(Event{Type: EventReading, Reading: reading, At: frame.ReceivedAt})
}
