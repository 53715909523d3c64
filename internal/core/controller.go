// Package core wires the kiosk together: it owns the display board, the
// notifier, the backend gateway, the action dispatcher, the camera session
// and one live poller per monitored course.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"sync"
	"time"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/api"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/camera"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/config"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/control"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/dispatch"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/display"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/live"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/metrics"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/notify"
)

// ErrClosed is returned by operations on a closed controller
var ErrClosed = errors.New("controller is closed")

// Controller is the kiosk's composition root
type Controller struct {
	cfg *config.Config

	board      *display.Board
	notifier   *notify.Notifier
	gateway    *api.Gateway
	downloader *api.FileDownloader
	dispatcher *dispatch.Dispatcher
	camera     *camera.Session
	clock      *live.Clock
	metrics    *metrics.Metrics

	emitter        *control.Emitter
	controlHandler *control.Handler

	// ctx bounds every background task; Close cancels it
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pollers map[string]*live.Poller
	started time.Time
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Controller
type Option func(*options)

type options struct {
	devices camera.MediaDevices
	metrics *metrics.Metrics
}

// WithMediaDevices replaces the GStreamer camera host
func WithMediaDevices(d camera.MediaDevices) Option {
	return func(o *options) { o.devices = d }
}

// WithMetrics uses an existing metrics set
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New builds a controller from a validated configuration
func New(cfg *config.Config, opts ...Option) (*Controller, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New(cfg.InstanceID)
	}
	if o.devices == nil {
		o.devices = camera.NewGstDevices(cfg.Camera.Device, cfg.Camera.Width, cfg.Camera.Height)
	}

	c := &Controller{
		cfg:     cfg,
		board:   display.NewBoard(),
		metrics: o.metrics,
		pollers: make(map[string]*live.Poller),
		started: time.Now(),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.notifier = notify.New(c.board,
		notify.WithDefaultDuration(time.Duration(cfg.Notifications.DefaultDurationMS)*time.Millisecond),
		notify.WithRecorder(c.metrics),
	)

	// Calls and downloads share one client so they share session cookies
	jar, err := cookiejar.New(nil)
	if err != nil {
		c.cancel()
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{Timeout: cfg.RequestTimeout(), Jar: jar}
	downloads := &http.Client{Jar: jar}
	c.downloader = api.NewFileDownloader(downloads, cfg.Export.Dir)

	gw, err := api.New(cfg.Backend.BaseURL, c.notifier,
		api.WithHTTPClient(client),
		api.WithRecorder(c.metrics),
		api.WithNavigator(c.downloader),
	)
	if err != nil {
		c.cancel()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	c.gateway = gw

	c.camera = camera.NewSession(o.devices, camera.NewVideoSurface(),
		camera.WithJPEGQuality(cfg.Camera.JPEGQuality),
		camera.WithRecorder(c.metrics),
	)
	c.clock = live.NewClock(c.board, display.LiveClockID)

	c.dispatcher = dispatch.New(c.actionHandlers(),
		dispatch.WithShortcuts(c.shortcuts()...),
		dispatch.WithRecorder(c.metrics),
	)

	if cfg.MQTT.Enabled() {
		c.emitter = control.NewEmitter(cfg)
	}

	slog.Info("controller created",
		"instance_id", cfg.InstanceID,
		"backend", cfg.Backend.BaseURL,
		"actions", len(c.dispatcher.Actions()),
		"mqtt_enabled", cfg.MQTT.Enabled(),
	)
	return c, nil
}

// Board returns the display tree
func (c *Controller) Board() *display.Board { return c.board }

// Notifier returns the toast notifier
func (c *Controller) Notifier() *notify.Notifier { return c.notifier }

// Gateway returns the backend gateway
func (c *Controller) Gateway() *api.Gateway { return c.gateway }

// Dispatcher returns the action dispatcher
func (c *Controller) Dispatcher() *dispatch.Dispatcher { return c.dispatcher }

// Camera returns the camera session
func (c *Controller) Camera() *camera.Session { return c.camera }

// Metrics returns the metrics set
func (c *Controller) Metrics() *metrics.Metrics { return c.metrics }

// Run starts the clock, the configured live courses and the MQTT control
// plane, then blocks until ctx is cancelled or the controller is closed
func (c *Controller) Run(ctx context.Context) error {
	if err := c.clock.Start(c.ctx, time.Duration(c.cfg.Clock.IntervalMS)*time.Millisecond); err != nil {
		return fmt.Errorf("failed to start clock: %w", err)
	}

	interval := time.Duration(c.cfg.Live.IntervalMS) * time.Millisecond
	for _, courseID := range c.cfg.Live.Courses {
		if err := c.StartLiveAttendance(courseID, interval); err != nil {
			return fmt.Errorf("failed to start live attendance for %s: %w", courseID, err)
		}
	}

	if c.emitter != nil {
		if err := c.startControlPlane(); err != nil {
			return err
		}
	}

	slog.Info("attendance controller running",
		"instance_id", c.cfg.InstanceID,
		"live_courses", len(c.cfg.Live.Courses),
	)

	select {
	case <-ctx.Done():
	case <-c.ctx.Done():
	}

	slog.Info("attendance controller run loop exiting")
	return nil
}

func (c *Controller) startControlPlane() error {
	if err := c.emitter.Connect(c.ctx); err != nil {
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}

	handler := control.NewHandler(c.cfg.MQTT, c.emitter.Client, c.emitter, c.dispatcher, control.Callbacks{
		OnGetStatus: c.GetStatus,
		OnStartLive: c.StartLiveAttendance,
		OnStopLive: func(courseID string) error {
			c.StopLiveAttendance(courseID)
			return nil
		},
		OnCheckIn: func(ctx context.Context, courseID string) (map[string]any, error) {
			result, err := c.CheckIn(ctx, courseID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"recognized_faces": result.RecognizedFaces}, nil
		},
		OnShutdown: func() error {
			c.cancel()
			return nil
		},
	})
	if err := handler.Start(); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	events := make(chan notify.Event, 32)
	if err := c.notifier.Subscribe("mqtt", events); err != nil {
		handler.Stop()
		return fmt.Errorf("failed to subscribe notification mirror: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		handler.Stop()
		return ErrClosed
	}
	c.controlHandler = handler
	c.wg.Add(2)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		handler.Serve(c.ctx)
	}()
	go func() {
		defer c.wg.Done()
		control.Mirror(c.ctx, c.emitter, c.cfg.InstanceID,
			c.cfg.MQTT.Topics.Notifications, c.cfg.MQTT.QoS["notifications"], events)
	}()
	return nil
}

// StartLiveAttendance begins polling courseID. An existing poller for the
// same course is replaced, so there is never more than one. The replaced
// poller's in-flight tick finishes in the background.
func (c *Controller) StartLiveAttendance(courseID string, interval time.Duration) error {
	if courseID == "" {
		return fmt.Errorf("course id is required")
	}
	if interval <= 0 {
		interval = time.Duration(c.cfg.Live.IntervalMS) * time.Millisecond
	}

	p := live.NewPoller(courseID, c.gateway, c.board,
		live.WithRecorder(c.metrics),
		live.WithRequestTimeout(c.cfg.RequestTimeout()),
	)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err := p.Start(c.ctx, interval); err != nil {
		c.mu.Unlock()
		return err
	}
	prev := c.pollers[courseID]
	c.pollers[courseID] = p
	c.metrics.SetActivePollers(len(c.pollers))
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	return nil
}

// StopLiveAttendance stops polling courseID. Unknown courses are ignored.
// It returns once an in-flight tick has finished; the controller stays
// usable meanwhile.
func (c *Controller) StopLiveAttendance(courseID string) {
	c.mu.Lock()
	p, ok := c.pollers[courseID]
	if ok {
		delete(c.pollers, courseID)
		c.metrics.SetActivePollers(len(c.pollers))
	}
	c.mu.Unlock()

	if ok {
		p.Stop()
	}
}

// LiveHandles returns the active poll handles sorted by course id
func (c *Controller) LiveHandles() []live.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	handles := make([]live.Handle, 0, len(c.pollers))
	for _, p := range c.pollers {
		if h, ok := p.Handle(); ok {
			handles = append(handles, h)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].CourseID < handles[j].CourseID })
	return handles
}

// CheckIn captures a frame from the active camera and submits it for
// recognition. Every recognised student gets a success notification.
func (c *Controller) CheckIn(ctx context.Context, courseID string) (*api.RecognitionResult, error) {
	frame, err := c.camera.CaptureFrame()
	if err != nil {
		return nil, fmt.Errorf("check-in for course %s: %w", courseID, err)
	}

	result, err := c.gateway.RecognizeFaces(ctx, courseID, frame)
	if err != nil {
		return nil, err
	}

	for _, face := range result.RecognizedFaces {
		c.notifier.Success(fmt.Sprintf("%s checked in", face.Name))
	}
	if len(result.RecognizedFaces) == 0 {
		c.notifier.Info("No registered student recognised")
	}

	slog.Info("face check-in completed",
		"course_id", courseID,
		"recognized", len(result.RecognizedFaces),
	)
	return result, nil
}

// Close tears everything down: pollers, clock, camera, pending toasts,
// downloads and the MQTT connection. Safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pollers := c.pollers
	c.pollers = make(map[string]*live.Poller)
	handler := c.controlHandler
	c.mu.Unlock()

	slog.Info("shutting down attendance controller")

	// 1. Stop periodic work first so nothing new reaches the board
	for _, p := range pollers {
		p.Stop()
	}
	c.metrics.SetActivePollers(0)
	c.clock.Stop()

	// 2. Release the camera device
	c.camera.Stop()

	// 3. Stop the control plane, then wait for a running command and the
	// notification mirror
	if handler != nil {
		handler.Stop()
	}
	c.cancel()
	c.wg.Wait()

	// 4. Clear the screen and finish downloads
	c.notifier.DismissAll()
	c.downloader.Close()

	if c.emitter != nil {
		c.emitter.Disconnect()
	}

	slog.Info("attendance controller shutdown complete",
		"uptime", time.Since(c.started),
	)
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (c *Controller) ShutdownTimeout() time.Duration {
	return c.cfg.ShutdownTimeout()
}
