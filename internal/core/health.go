package core

import (
	"time"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/camera"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/live"
)

// HealthStatus represents the health state of the kiosk
type HealthStatus struct {
	Status        string        `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64         `json:"uptime_seconds"`
	Camera        camera.State  `json:"camera"`
	LiveCourses   []live.Handle `json:"live_courses"`
	PendingToasts int           `json:"pending_toasts"`
	MQTTEnabled   bool          `json:"mqtt_enabled"`
	MQTTConnected bool          `json:"mqtt_connected"`
}

// HealthCheck returns the current health status
func (c *Controller) HealthCheck() HealthStatus {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
		Camera:        c.camera.State(),
		LiveCourses:   c.LiveHandles(),
		PendingToasts: c.notifier.Pending(),
		MQTTEnabled:   c.emitter != nil,
	}

	if c.emitter != nil {
		status.MQTTConnected = c.emitter.Stats().Connected
	}

	switch {
	case closed:
		status.Status = "unhealthy"
	case status.MQTTEnabled && !status.MQTTConnected:
		status.Status = "degraded"
	}
	return status
}

// GetStatus returns a summary for the control plane
func (c *Controller) GetStatus() map[string]any {
	h := c.HealthCheck()

	courses := make([]string, 0, len(h.LiveCourses))
	for _, lh := range h.LiveCourses {
		courses = append(courses, lh.CourseID)
	}

	return map[string]any{
		"instance_id":    c.cfg.InstanceID,
		"status":         h.Status,
		"uptime_s":       h.UptimeSeconds,
		"camera":         h.Camera.Status,
		"live_courses":   courses,
		"pending_toasts": h.PendingToasts,
	}
}
