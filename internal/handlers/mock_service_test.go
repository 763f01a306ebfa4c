package handlers

import (
	"context"
	"errors"
	"sync"

	"scalebridge/internal/config"
	"scalebridge/internal/models"
	"scalebridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockMonitoring struct {
	reading models.Reading
	health  service.Health
}

func (m *mockMonitoring) CurrentWeight() models.Reading { return m.reading }
func (m *mockMonitoring) Health() service.Health        { return m.health }

type mockCapture struct {
	mu sync.Mutex

	result   models.CaptureResult
	err      error
	photo    service.PhotoResult
	photoErr error

	lastParams   service.CaptureParams
	lastFilename string
	captureCalls int
	relayed      []models.CaptureResult
}

func (m *mockCapture) Capture(ctx context.Context, p service.CaptureParams) (models.CaptureResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureCalls++
	m.lastParams = p
	if m.err != nil {
		return models.CaptureResult{}, m.err
	}
	if _, ok := models.NormalizeAction(p.Action); !ok {
		return models.CaptureResult{}, service.ErrInvalidAction
	}
	return m.result, nil
}

func (m *mockCapture) PhotoOnly(ctx context.Context, filename string) (service.PhotoResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilename = filename
	return m.photo, m.photoErr
}

func (m *mockCapture) RelayAsync(res models.CaptureResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayed = append(m.relayed, res)
}

type mockHistory struct {
	resp []models.CaptureResult
	err  error
	last service.HistoryFilter
}

func (m *mockHistory) List(ctx context.Context, f service.HistoryFilter) ([]models.CaptureResult, error) {
	m.last = f
	return m.resp, m.err
}

type mockDevice struct {
	ports      service.PortList
	err        error
	reconnects int
}

func (m *mockDevice) Reconnect() { m.reconnects++ }
func (m *mockDevice) Ports() (service.PortList, error) {
	return m.ports, m.err
}

type mockSettings struct {
	cfg       config.Config
	updateErr error
	updated   []config.Config
}

func (m *mockSettings) Get() config.Config { return m.cfg.Clone() }
func (m *mockSettings) Update(cfg config.Config) (config.Config, error) {
	m.updated = append(m.updated, cfg)
	if m.updateErr != nil {
		return config.Config{}, m.updateErr
	}
	m.cfg = cfg
	return cfg, nil
}

var errBoom = errors.New("boom")

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

// panickingMonitoring fails every call the way a nil dependency would.
type panickingMonitoring struct{}

func (panickingMonitoring) CurrentWeight() models.Reading { panic("telemetry store is nil") }
func (panickingMonitoring) Health() service.Health        { panic("telemetry store is nil") }
