// Package metrics exposes kiosk activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attendance"

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	notifications *prometheus.CounterVec
	apiRequests   *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	actions       *prometheus.CounterVec
	pollTicks     *prometheus.CounterVec
	cameraStarts  prometheus.Counter
	frameCaptures *prometheus.CounterVec
	activePollers prometheus.Gauge
}

// New registers every collector on a fresh registry
func New(instanceID string) *Metrics {
	labels := prometheus.Labels{"instance_id": instanceID}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "notifications_total",
			Help:        "Toast notifications shown, by severity.",
			ConstLabels: labels,
		}, []string{"severity"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "api_requests_total",
			Help:        "Backend requests, by route and outcome.",
			ConstLabels: labels,
		}, []string{"route", "outcome"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "api_request_duration_seconds",
			Help:        "Backend request latency.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"route"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "actions_total",
			Help:        "Dispatched UI actions, by action and outcome.",
			ConstLabels: labels,
		}, []string{"action", "outcome"}),
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "live_poll_ticks_total",
			Help:        "Live attendance poll ticks, by course and outcome.",
			ConstLabels: labels,
		}, []string{"course_id", "outcome"}),
		cameraStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "camera_starts_total",
			Help:        "Camera streams acquired.",
			ConstLabels: labels,
		}),
		frameCaptures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "frame_captures_total",
			Help:        "Frame capture attempts, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		activePollers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "live_pollers_active",
			Help:        "Courses with live polling running.",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		m.notifications,
		m.apiRequests,
		m.apiLatency,
		m.actions,
		m.pollTicks,
		m.cameraStarts,
		m.frameCaptures,
		m.activePollers,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) NotificationShown(severity string) {
	m.notifications.WithLabelValues(severity).Inc()
}

func (m *Metrics) APIRequest(route, outcome string, elapsed time.Duration) {
	m.apiRequests.WithLabelValues(route, outcome).Inc()
	m.apiLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ActionDispatched(action, outcome string) {
	m.actions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) PollTick(courseID, outcome string) {
	m.pollTicks.WithLabelValues(courseID, outcome).Inc()
}

func (m *Metrics) CameraStarted() {
	m.cameraStarts.Inc()
}

func (m *Metrics) FrameCaptured(outcome string) {
	m.frameCaptures.WithLabelValues(outcome).Inc()
}

// SetActivePollers reports how many courses are being polled
func (m *Metrics) SetActivePollers(n int) {
	m.activePollers.Set(float64(n))
}
