// Package config loads and persists the bridge configuration file.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// SerialConfig holds the connection parameters of the indicator port.
type SerialConfig struct {
	Port     string  `mapstructure:"port" json:"port"`
	BaudRate int     `mapstructure:"baud_rate" json:"baud_rate"`
	DataBits int     `mapstructure:"data_bits" json:"data_bits"`
	Parity   string  `mapstructure:"parity" json:"parity"`       // none | even | odd | mark | space
	StopBits float64 `mapstructure:"stop_bits" json:"stop_bits"` // 1 | 1.5 | 2
}

// PollingConfig controls active polling of indicators that only answer on request.
type PollingConfig struct {
	Enabled    bool   `mapstructure:"enabled" json:"enabled"`
	IntervalMs int    `mapstructure:"interval_ms" json:"interval_ms"`
	Command    string `mapstructure:"command" json:"command"`
}

// LoggingConfig controls the per-day CSV audit trail.
type LoggingConfig struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled"`
	Dir           string `mapstructure:"dir" json:"dir"`
	RetentionDays int    `mapstructure:"retention_days" json:"retention_days"`
}

// DeviceConfig is everything the device session needs. It is treated as an
// immutable value: updates build a new one and hand it to the session.
type DeviceConfig struct {
	Serial  SerialConfig  `mapstructure:"serial" json:"serial"`
	Polling PollingConfig `mapstructure:"polling" json:"polling"`
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
}

// PollInterval returns the polling period.
func (d DeviceConfig) PollInterval() time.Duration {
	return time.Duration(d.Polling.IntervalMs) * time.Millisecond
}

type SimulationConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// BackendConfig points at the remote collector. Empty URL or key disables relay.
type BackendConfig struct {
	URL       string `mapstructure:"url" json:"url"`
	APIKey    string `mapstructure:"api_key" json:"api_key"`
	TimeoutMs int    `mapstructure:"timeout_ms" json:"timeout_ms"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker" json:"broker"`
	Topic    string `mapstructure:"topic" json:"topic"`
	ClientID string `mapstructure:"client_id" json:"client_id"`
	QOS      int    `mapstructure:"qos" json:"qos"`
}

// CameraConfig selects the photo source: local device indexes, or an RTSP
// stream when RTSPURL is set.
type CameraConfig struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled"`
	Devices   []int  `mapstructure:"devices" json:"devices"`
	RTSPURL   string `mapstructure:"rtsp_url" json:"rtsp_url"`
	PhotoDir  string `mapstructure:"photo_dir" json:"photo_dir"`
	FFmpeg    string `mapstructure:"ffmpeg" json:"ffmpeg"`
	TimeoutMs int    `mapstructure:"timeout_ms" json:"timeout_ms"`
	BaseURL   string `mapstructure:"base_url" json:"base_url"`
}

type HistoryConfig struct {
	DBPath string `mapstructure:"db_path" json:"db_path"`
}

// Config is the whole persisted file.
type Config struct {
	Port       string           `mapstructure:"port" json:"port"`
	LogLevel   string           `mapstructure:"log_level" json:"log_level"`
	Device     DeviceConfig     `mapstructure:"device" json:"device"`
	Simulation SimulationConfig `mapstructure:"simulation" json:"simulation"`
	Backend    BackendConfig    `mapstructure:"backend" json:"backend"`
	MQTT       MQTTConfig       `mapstructure:"mqtt" json:"mqtt"`
	Camera     CameraConfig     `mapstructure:"camera" json:"camera"`
	History    HistoryConfig    `mapstructure:"history" json:"history"`
}

// Clone returns a deep copy, safe to decode a partial update into.
func (c Config) Clone() Config {
	out := c
	if c.Camera.Devices != nil {
		out.Camera.Devices = append([]int(nil), c.Camera.Devices...)
	}
	return out
}

// ErrInvalid wraps every validation failure reported by Store.Save.
var ErrInvalid = errors.New("invalid config")

var (
	errBadBaud     = errors.New("device.serial.baud_rate must be > 0")
	errBadDataBits = errors.New("device.serial.data_bits must be 5, 6, 7 or 8")
	errBadPolling  = errors.New("device.polling.interval_ms must be > 0 when polling is enabled")
)

// Validate checks the fields the session cannot recover from.
func (c Config) Validate() error {
	s := c.Device.Serial
	if s.BaudRate <= 0 {
		return errBadBaud
	}
	switch s.DataBits {
	case 5, 6, 7, 8:
	default:
		return errBadDataBits
	}
	switch strings.ToLower(s.Parity) {
	case "none", "even", "odd", "mark", "space":
	default:
		return fmt.Errorf("device.serial.parity %q is not one of none, even, odd, mark, space", s.Parity)
	}
	switch s.StopBits {
	case 1, 1.5, 2:
	default:
		return fmt.Errorf("device.serial.stop_bits %v is not one of 1, 1.5, 2", s.StopBits)
	}
	if c.Device.Polling.Enabled && c.Device.Polling.IntervalMs <= 0 {
		return errBadPolling
	}
	return nil
}

// normalize fills zero values left by partial files or partial updates.
func (c Config) normalize() Config {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.Device.Serial.Parity == "" {
		c.Device.Serial.Parity = "none"
	}
	c.Device.Serial.Parity = strings.ToLower(c.Device.Serial.Parity)
	if c.Device.Logging.RetentionDays <= 0 {
		c.Device.Logging.RetentionDays = defaultRetentionDays
	}
	if c.Device.Logging.Dir == "" {
		c.Device.Logging.Dir = defaultLogDir
	}
	if c.Backend.TimeoutMs <= 0 {
		c.Backend.TimeoutMs = defaultBackendTimeoutMs
	}
	if c.Camera.TimeoutMs <= 0 {
		c.Camera.TimeoutMs = defaultCameraTimeoutMs
	}
	c.Backend.URL = strings.TrimRight(strings.TrimSpace(c.Backend.URL), "/")
	return c
}

func defaultSerialPort() string {
	if runtime.GOOS == "windows" {
		return "COM1"
	}
	return "/dev/ttyUSB0"
}
