package service

import (
	"context"

	"scalebridge/internal/config"
	"scalebridge/internal/device"
	"scalebridge/internal/logger"
	"scalebridge/internal/models"
	"scalebridge/internal/relay"
	"scalebridge/internal/repository"
)

// Monitoring exposes the live reading and connection health.
type Monitoring interface {
	CurrentWeight() models.Reading
	Health() Health
}

// Capture snapshots the weight, takes photos and records the result.
type Capture interface {
	Capture(ctx context.Context, p CaptureParams) (models.CaptureResult, error)
	PhotoOnly(ctx context.Context, filename string) (PhotoResult, error)
	// RelayAsync forwards a result in the background.
	RelayAsync(res models.CaptureResult)
}

// History lists persisted captures.
type History interface {
	List(ctx context.Context, f HistoryFilter) ([]models.CaptureResult, error)
}

// Device controls the scale connection.
type Device interface {
	Reconnect()
	Ports() (PortList, error)
}

// Settings reads and replaces the runtime configuration.
type Settings interface {
	Get() config.Config
	Update(cfg config.Config) (config.Config, error)
}

type Service struct {
	Monitoring
	Capture
	History
	Device
	Settings
}

// Deps are the collaborators NewService wires together.
type Deps struct {
	Session device.Session
	Camera  Camera
	Events  EventRecorder
	Repos   *repository.Repository
	Relay   relay.Pusher
	Config  *config.Store
	Log     *logger.Logger

	// OnConfigChange runs after every successful settings update.
	OnConfigChange []func(config.Config)
}

func NewService(d Deps) *Service {
	var captures repository.CaptureRepo
	if d.Repos != nil {
		captures = d.Repos.CaptureRepo
	}
	settings := NewSettingsService(d.Config, d.Session, d.Log)
	for _, fn := range d.OnConfigChange {
		settings.OnChange(fn)
	}
	return &Service{
		Monitoring: NewMonitoringService(d.Session),
		Capture:    NewCaptureService(d.Session, d.Camera, d.Events, captures, d.Relay, d.Log),
		History:    NewHistoryService(captures),
		Device:     NewDeviceService(d.Session),
		Settings:   settings,
	}
}

// Wait blocks until background relays have finished.
func (s *Service) Wait() {
	if w, ok := s.Capture.(interface{ Wait() }); ok {
		w.Wait()
	}
}
