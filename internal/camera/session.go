// Package camera manages the kiosk's single camera stream for face
// check-in.
//
// A Session is Idle or Active. Start acquires a stream from the host and
// binds it to the video surface; Stop releases every track. Only one
// stream is ever held: starting while Active releases the old stream
// before asking for a new one. CaptureFrame samples the surface and
// returns a JPEG data URI; calling it while Idle is a programming error
// and fails with ErrNotActive.
package camera

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"sync"
)

// DefaultJPEGQuality is the capture encoding quality
const DefaultJPEGQuality = 90

// ErrNotActive is returned when capturing without an active stream
var ErrNotActive = errors.New("camera session is not active")

// ErrStartInterrupted is returned by Start when Stop ran while the stream
// was being acquired; the new stream is released
var ErrStartInterrupted = errors.New("camera stopped while starting")

// Status of a session
type Status int

const (
	Idle Status = iota
	Active
)

// String returns a human-readable representation of the status
func (s Status) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// DeviceError wraps a failure to acquire the camera
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera device error: %v", e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Recorder observes camera activity (metrics)
type Recorder interface {
	CameraStarted()
	FrameCaptured(outcome string)
}

// State is a snapshot of the session
type State struct {
	Status   string `json:"status"`
	StreamID string `json:"stream_id,omitempty"`
}

// Session owns at most one camera stream
type Session struct {
	devices  MediaDevices
	surface  Surface
	quality  int
	recorder Recorder

	// startMu serializes Start; mu guards the state and is never held
	// while waiting on the host
	startMu sync.Mutex
	mu      sync.Mutex
	status  Status
	stream  MediaStream
	gen     uint64 // bumped by every release
}

// Option configures a Session
type Option func(*Session)

// WithJPEGQuality sets the capture quality (1-100)
func WithJPEGQuality(q int) Option {
	return func(s *Session) {
		if q >= 1 && q <= 100 {
			s.quality = q
		}
	}
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// NewSession creates an Idle session
func NewSession(devices MediaDevices, surface Surface, opts ...Option) *Session {
	s := &Session{
		devices: devices,
		surface: surface,
		quality: DefaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start acquires a stream and binds it to the surface. An already active
// stream is released first. On failure the session stays Idle and the
// error is returned as-is (wrapped in *DeviceError); nothing is retried.
// State, Stop and CaptureFrame stay available while the host grants the
// stream.
func (s *Session) Start(ctx context.Context, c Constraints) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.status == Active {
		slog.Info("camera restarting, releasing previous stream", "stream_id", s.stream.ID())
		s.releaseLocked()
	}
	gen := s.gen
	s.mu.Unlock()

	stream, err := s.devices.GetUserMedia(ctx, c)
	if err != nil {
		slog.Error("camera start failed", "error", err)
		return &DeviceError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		stopTracks(stream)
		slog.Warn("camera stopped while starting, releasing new stream", "stream_id", stream.ID())
		return ErrStartInterrupted
	}

	if err := s.surface.Attach(stream); err != nil {
		stopTracks(stream)
		slog.Error("camera surface bind failed", "error", err)
		return &DeviceError{Err: err}
	}

	s.stream = stream
	s.status = Active
	if s.recorder != nil {
		s.recorder.CameraStarted()
	}

	slog.Info("camera started",
		"stream_id", stream.ID(),
		"tracks", len(stream.Tracks()),
	)
	return nil
}

// Stop releases every track and returns to Idle. A Start still waiting
// on the host is abandoned. Otherwise a no-op while Idle.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != Active {
		s.gen++
		return
	}
	s.releaseLocked()
}

// Status returns Idle or Active
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns a snapshot for status endpoints
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{Status: s.status.String()}
	if s.stream != nil {
		st.StreamID = s.stream.ID()
	}
	return st
}

// CaptureFrame encodes the surface's current frame as a JPEG data URI
func (s *Session) CaptureFrame() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != Active {
		slog.Error("capture requested while camera is idle")
		s.record("not_active")
		return "", ErrNotActive
	}

	img, err := s.surface.Frame()
	if err != nil {
		s.record("no_frame")
		return "", fmt.Errorf("sample video surface: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		s.record("encode_failed")
		return "", fmt.Errorf("encode frame: %w", err)
	}

	s.record("ok")
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *Session) releaseLocked() {
	s.surface.Detach()
	n := stopTracks(s.stream)

	slog.Info("camera stopped",
		"stream_id", s.stream.ID(),
		"tracks_released", n,
	)

	s.stream = nil
	s.status = Idle
	s.gen++
}

func (s *Session) record(outcome string) {
	if s.recorder != nil {
		s.recorder.FrameCaptured(outcome)
	}
}

func stopTracks(stream MediaStream) int {
	tracks := stream.Tracks()
	for _, t := range tracks {
		t.Stop()
	}
	return len(tracks)
}
