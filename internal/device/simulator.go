package device

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"scalebridge/internal/config"
	"scalebridge/internal/decoder"
	"scalebridge/internal/logger"
	"scalebridge/internal/models"
	"scalebridge/internal/telemetry"
)

// ----------- Simulation constants -----------
const (
	SimConnectDelay = 1500 * time.Millisecond
	SimTick         = 200 * time.Millisecond
	SimMaxStepKg    = 450.0 // per tick
	SimHoldTicks    = 15    // ticks spent at a target before drawing the next

	SimTareKg  = 8500.0
	SimGrossKg = 32000.0
	SimMidKg   = 18000.0
	SimMaxKg   = 45000.0

	simPresetShare = 0.7 // share of draws taken from the preset set
)

type weightedTarget struct {
	kg     float64
	weight int
}

// presets a truck-weighing cycle visits most often.
var presets = []weightedTarget{
	{0, 30},
	{SimTareKg, 25},
	{SimGrossKg, 25},
	{SimMidKg, 12},
	{SimMaxKg, 8},
}

// Simulator stands in for a serial session during development.
type Simulator struct {
	mu      sync.Mutex
	ctx     context.Context
	cfg     config.DeviceConfig
	state   State
	stopped bool
	cancel  context.CancelFunc

	current float64
	target  float64
	hold    int
	rnd     *rand.Rand

	connect *timerSlot
	store   *telemetry.Store
	hub     *hub
	log     *logger.Logger
	now     func() time.Time
	tick    time.Duration
}

// NewSimulator returns a simulator seeded from the clock.
func NewSimulator(cfg config.DeviceConfig, store *telemetry.Store, log *logger.Logger) *Simulator {
	return &Simulator{
		ctx:     context.Background(),
		cfg:     cfg,
		state:   StateDisconnected,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		connect: newTimerSlot(nil),
		store:   store,
		hub:     newHub(),
		log:     log,
		now:     time.Now,
		tick:    SimTick,
	}
}

var _ Session = (*Simulator)(nil)

// Open moves to CONNECTING and becomes CONNECTED after SimConnectDelay.
func (s *Simulator) Open(ctx context.Context) {
	s.mu.Lock()
	if ctx != nil {
		s.ctx = ctx
	}
	s.stopped = false
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.connect.Schedule(SimConnectDelay, s.goConnected)
}

func (s *Simulator) CurrentWeight() models.Reading { return s.store.Get() }

func (s *Simulator) Subscribe(buffer int) (<-chan Event, func()) {
	return s.hub.subscribe(buffer)
}

func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Simulator) Config() config.DeviceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Simulator) Simulated() bool { return true }

// WriteCommand is accepted and ignored.
func (s *Simulator) WriteCommand(string) error {
	if s.State() != StateConnected {
		return ErrPortClosed
	}
	return nil
}

func (s *Simulator) Reconnect() {
	s.connect.Cancel()
	s.drop("manual reconnect")
	s.mu.Lock()
	s.stopped = false
	s.state = StateConnecting
	s.mu.Unlock()
	s.connect.Schedule(ManualReconnectDelay, s.goConnected)
}

func (s *Simulator) Disconnect() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.connect.Cancel()
	s.drop("disconnect")
}

func (s *Simulator) UpdateConfig(cfg config.DeviceConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.Reconnect()
}

func (s *Simulator) goConnected() {
	s.mu.Lock()
	if s.stopped || s.ctx.Err() != nil || s.state == StateConnected {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.state = StateConnected
	s.mu.Unlock()

	s.store.SetConnected(true)
	s.log.Infow("simulator_connected")
	s.hub.publish(Event{Type: EventConnected, Reading: s.store.Get(), At: s.now()})
	go s.run(ctx)
}

func (s *Simulator) drop(reason string) {
	s.mu.Lock()
	wasConnected := s.state == StateConnected
	s.state = StateDisconnected
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	if !wasConnected {
		return
	}
	s.store.SetConnected(false)
	s.hub.publish(Event{Type: EventDisconnected, Reading: s.store.Get(), Error: reason, At: s.now()})
}

func (s *Simulator) run(ctx context.Context) {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			r := s.step(now)
			if !s.commit(ctx, r) {
				return
			}
			s.hub.publish(Event{Type: EventReading, Reading: r, At: now})
		}
	}
}

// commit stores r unless the run that produced it has been dropped.
func (s *Simulator) commit(ctx context.Context, r models.Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil || s.state != StateConnected {
		return false
	}
	s.store.Set(r)
	return true
}

// step advances the tween by one tick and returns the new reading.
func (s *Simulator) step(now time.Time) models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == s.target {
		if s.hold > 0 {
			s.hold--
		} else {
			s.target = s.pickTargetLocked()
			s.hold = SimHoldTicks
		}
	}
	diff := s.target - s.current
	if math.Abs(diff) <= SimMaxStepKg {
		s.current = s.target
	} else {
		s.current += math.Copysign(SimMaxStepKg, diff)
	}
	return models.Reading{
		Weight:    decoder.Round1(s.current),
		Unit:      decoder.DefaultUnit,
		Connected: true,
		Timestamp: now.UTC(),
	}
}

// pickTargetLocked draws 70% of targets from the preset set and the rest
// uniformly from [0, SimMaxKg].
func (s *Simulator) pickTargetLocked() float64 {
	if s.rnd.Float64() >= simPresetShare {
		return math.Round(s.rnd.Float64() * SimMaxKg)
	}
	total := 0
	for _, p := range presets {
		total += p.weight
	}
	n := s.rnd.Intn(total)
	for _, p := range presets {
		if n < p.weight {
			return p.kg
		}
		n -= p.weight
	}
	return 0
}
