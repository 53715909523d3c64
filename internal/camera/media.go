package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

// Constraints describes the requested capture
type Constraints struct {
	Video    bool   `json:"video"`
	Audio    bool   `json:"audio"`
	DeviceID string `json:"device_id,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// DefaultConstraints requests any video device
func DefaultConstraints() Constraints {
	return Constraints{Video: true}
}

// MediaDevices is the host capability that grants media streams
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c Constraints) (MediaStream, error)
}

// MediaStream is an open capture holding one or more device tracks
type MediaStream interface {
	ID() string
	Tracks() []Track
}

// Track is one device track; Stop releases the device
type Track interface {
	Kind() string
	Stop()
}

// FrameSource is implemented by streams that can hand out their latest
// decoded video frame
type FrameSource interface {
	LatestFrame() (image.Image, error)
}

// Surface is the live video surface a stream is rendered into
type Surface interface {
	Attach(stream MediaStream) error
	Detach()
	Frame() (image.Image, error)
}

// Device errors surfaced by MediaDevices implementations
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device available")
	ErrNoFrame          = errors.New("no video frame available yet")
)

// VideoSurface renders any stream implementing FrameSource
type VideoSurface struct {
	mu     sync.RWMutex
	source FrameSource
}

// NewVideoSurface creates an empty surface
func NewVideoSurface() *VideoSurface {
	return &VideoSurface{}
}

// Attach binds the surface to stream
func (v *VideoSurface) Attach(stream MediaStream) error {
	src, ok := stream.(FrameSource)
	if !ok {
		return fmt.Errorf("stream %s does not provide video frames", stream.ID())
	}
	v.mu.Lock()
	v.source = src
	v.mu.Unlock()
	return nil
}

// Detach unbinds the current stream
func (v *VideoSurface) Detach() {
	v.mu.Lock()
	v.source = nil
	v.mu.Unlock()
}

// Frame samples the surface's current pixels
func (v *VideoSurface) Frame() (image.Image, error) {
	v.mu.RLock()
	src := v.source
	v.mu.RUnlock()

	if src == nil {
		return nil, ErrNoFrame
	}
	return src.LatestFrame()
}
