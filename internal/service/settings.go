package service

import (
	"sync"

	"scalebridge/internal/config"
	"scalebridge/internal/device"
	"scalebridge/internal/logger"
)

// SettingsService persists configuration changes and pushes them to the
// running components.
type SettingsService struct {
	store   *config.Store
	session device.Session
	log     *logger.Logger

	mu    sync.Mutex
	hooks []func(config.Config)
}

func NewSettingsService(store *config.Store, session device.Session, log *logger.Logger) *SettingsService {
	return &SettingsService{store: store, session: session, log: log}
}

// OnChange registers a callback run after every successful Update.
func (s *SettingsService) OnChange(fn func(config.Config)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

func (s *SettingsService) Get() config.Config {
	return s.store.Current()
}

// Update validates and writes cfg, then reconnects the session with the new
// device settings. Port, history and MQTT changes apply on restart.
func (s *SettingsService) Update(cfg config.Config) (config.Config, error) {
	prev := s.store.Current()
	saved, err := s.store.Save(cfg)
	if err != nil {
		return config.Config{}, err
	}

	s.session.UpdateConfig(saved.Device)

	s.mu.Lock()
	hooks := append([]func(config.Config){}, s.hooks...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(saved.Clone())
	}

	if s.log != nil {
		s.log.Infow("config_updated",
			"port", saved.Device.Serial.Port,
			"baud_rate", saved.Device.Serial.BaudRate,
			"restart_required", restartRequired(prev, saved),
		)
	}
	return saved, nil
}

func restartRequired(prev, next config.Config) bool {
	return prev.Port != next.Port ||
		prev.Simulation.Enabled != next.Simulation.Enabled ||
		prev.History.DBPath != next.History.DBPath ||
		prev.MQTT != next.MQTT
}
