package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete attendance kiosk configuration
type Config struct {
	InstanceID       string              `yaml:"instance_id"`
	ShutdownTimeoutS int                 `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Backend          BackendConfig       `yaml:"backend"`
	Notifications    NotificationsConfig `yaml:"notifications"`
	Live             LiveConfig          `yaml:"live"`
	Clock            ClockConfig         `yaml:"clock"`
	Camera           CameraConfig        `yaml:"camera"`
	Export           ExportConfig        `yaml:"export"`
	HTTP             HTTPConfig          `yaml:"http"`
	MQTT             MQTTConfig          `yaml:"mqtt"`
}

// BackendConfig points at the attendance backend
type BackendConfig struct {
	BaseURL  string `yaml:"base_url"`
	TimeoutS int    `yaml:"timeout_s"`
}

// NotificationsConfig contains toast settings
type NotificationsConfig struct {
	DefaultDurationMS int `yaml:"default_duration_ms"`
}

// LiveConfig contains live attendance polling settings
type LiveConfig struct {
	IntervalMS int      `yaml:"interval_ms"`
	Courses    []string `yaml:"courses"` // monitored on startup
}

// ClockConfig contains the live clock refresh settings
type ClockConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

// CameraConfig contains camera capture settings
type CameraConfig struct {
	Device      string `yaml:"device"` // v4l2 device path
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// ExportConfig contains export download settings
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// HTTPConfig contains the local bridge settings
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// MQTTConfig contains MQTT broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Control       string `yaml:"control"`
	Responses     string `yaml:"responses"`
	Notifications string `yaml:"notifications"`
}

// Enabled reports whether an MQTT broker is configured
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// RequestTimeout returns the backend request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutS) * time.Second
}

// ShutdownTimeout returns the graceful shutdown timeout
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
