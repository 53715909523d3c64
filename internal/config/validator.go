package config

import (
	"fmt"
	"net/url"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	// Backend
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute URL, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.TimeoutS <= 0 {
		cfg.Backend.TimeoutS = 10
	}

	if cfg.Notifications.DefaultDurationMS <= 0 {
		cfg.Notifications.DefaultDurationMS = 5000
	}

	// Live polling
	if cfg.Live.IntervalMS < 0 {
		return fmt.Errorf("live.interval_ms must be >= 0")
	}
	if cfg.Live.IntervalMS == 0 {
		cfg.Live.IntervalMS = 5000
	}
	seen := make(map[string]bool, len(cfg.Live.Courses))
	for _, course := range cfg.Live.Courses {
		if course == "" {
			return fmt.Errorf("live.courses must not contain empty ids")
		}
		if seen[course] {
			return fmt.Errorf("live.courses: duplicate course '%s'", course)
		}
		seen[course] = true
	}

	if cfg.Clock.IntervalMS <= 0 {
		cfg.Clock.IntervalMS = 60000
	}

	// Camera
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "/dev/video0"
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		cfg.Camera.Width, cfg.Camera.Height = 640, 480
	}
	if cfg.Camera.JPEGQuality == 0 {
		cfg.Camera.JPEGQuality = 90
	}
	if cfg.Camera.JPEGQuality < 1 || cfg.Camera.JPEGQuality > 100 {
		return fmt.Errorf("camera.jpeg_quality must be between 1 and 100, got %d", cfg.Camera.JPEGQuality)
	}

	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "exports"
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = ":8080"
	}

	// MQTT is optional, topics only matter when a broker is set
	if cfg.MQTT.Enabled() {
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("attendance/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Responses == "" {
			cfg.MQTT.Topics.Responses = fmt.Sprintf("attendance/responses/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Notifications == "" {
			cfg.MQTT.Topics.Notifications = fmt.Sprintf("attendance/notifications/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"control":       1,
				"responses":     1,
				"notifications": 0,
			}
		}
	}

	return nil
}
