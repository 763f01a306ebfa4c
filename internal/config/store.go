package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Defaults applied to keys missing from the file.
const (
	defaultPort             = "8085"
	defaultLogDir           = "logs"
	defaultRetentionDays    = 14
	defaultBackendTimeoutMs = 5000
	defaultCameraTimeoutMs  = 10000

	envPrefix = "SCALEBRIDGE"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", defaultPort)
	v.SetDefault("log_level", "info")

	v.SetDefault("device.serial.port", defaultSerialPort())
	v.SetDefault("device.serial.baud_rate", 9600)
	v.SetDefault("device.serial.data_bits", 8)
	v.SetDefault("device.serial.parity", "none")
	v.SetDefault("device.serial.stop_bits", 1)

	v.SetDefault("device.polling.enabled", false)
	v.SetDefault("device.polling.interval_ms", 500)
	v.SetDefault("device.polling.command", "W\r\n")

	v.SetDefault("device.logging.enabled", true)
	v.SetDefault("device.logging.dir", defaultLogDir)
	v.SetDefault("device.logging.retention_days", defaultRetentionDays)

	v.SetDefault("simulation.enabled", false)

	v.SetDefault("backend.url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout_ms", defaultBackendTimeoutMs)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "scalebridge/captures")
	v.SetDefault("mqtt.client_id", "scalebridge")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("camera.enabled", false)
	v.SetDefault("camera.devices", []int{0})
	v.SetDefault("camera.rtsp_url", "")
	v.SetDefault("camera.photo_dir", "photos")
	v.SetDefault("camera.ffmpeg", "ffmpeg")
	v.SetDefault("camera.timeout_ms", defaultCameraTimeoutMs)
	v.SetDefault("camera.base_url", "/photos")

	v.SetDefault("history.db_path", "scalebridge.db")
}

// Store owns the config file and the current immutable Config value.
type Store struct {
	mu   sync.RWMutex
	path string
	cur  Config
}

// Load reads path, falling back to defaults (and writing them out) when the
// file does not exist. A present but unreadable file is an error.
func Load(path string) (*Store, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	missing := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		missing = true
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}
	cfg = cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}

	s := &Store{path: path, cur: cfg}
	if missing {
		if err := s.write(cfg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Current returns the active configuration.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Clone()
}

// Save validates cfg, rewrites the file and makes cfg current.
func (s *Store) Save(cfg Config) (Config, error) {
	cfg = cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := s.write(cfg); err != nil {
		return Config{}, err
	}
	s.mu.Lock()
	s.cur = cfg.Clone()
	s.mu.Unlock()
	return cfg, nil
}

func (s *Store) write(cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("stage config: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir %q: %w", dir, err)
		}
	}
	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write config %q: %w", s.path, err)
	}
	return nil
}
