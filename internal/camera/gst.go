package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// GstDevices grants V4L2 camera streams through a GStreamer pipeline:
//
//	v4l2src → videoconvert → videoscale → capsfilter(RGB) → appsink
type GstDevices struct {
	Device       string
	Width        int
	Height       int
	StartTimeout time.Duration
}

// NewGstDevices creates a host for the given V4L2 device node
func NewGstDevices(device string, width, height int) *GstDevices {
	return &GstDevices{
		Device:       device,
		Width:        width,
		Height:       height,
		StartTimeout: 5 * time.Second,
	}
}

// GetUserMedia opens the device and starts the pipeline
func (g *GstDevices) GetUserMedia(ctx context.Context, c Constraints) (MediaStream, error) {
	if !c.Video {
		return nil, errors.New("video track required")
	}

	device := g.Device
	if c.DeviceID != "" {
		device = c.DeviceID
	}
	width, height := g.Width, g.Height
	if c.Width > 0 && c.Height > 0 {
		width, height = c.Width, c.Height
	}

	if err := checkDevice(device); err != nil {
		return nil, err
	}

	stream, err := newGstStream(device, width, height)
	if err != nil {
		return nil, err
	}

	if err := stream.play(ctx, g.StartTimeout); err != nil {
		stream.track.Stop()
		return nil, err
	}
	return stream, nil
}

func checkDevice(device string) error {
	f, err := os.Open(device)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrPermission):
			return fmt.Errorf("%w: %s", ErrPermissionDenied, device)
		case errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("%w: %s", ErrNoDevice, device)
		}
		return fmt.Errorf("open %s: %w", device, err)
	}
	return f.Close()
}

// gstStream is one running capture pipeline
type gstStream struct {
	id       string
	device   string
	width    int
	height   int
	pipeline *gst.Pipeline
	sink     *app.Sink
	track    *gstTrack

	mu     sync.RWMutex
	latest []byte
	frames atomic.Uint64
}

func newGstStream(device string, width, height int) (*gstStream, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", device)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(
		fmt.Sprintf("video/x-raw,format=RGBx,width=%d,height=%d", width, height),
	))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, converter, scaler, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, scaler, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	s := &gstStream{
		id:       uuid.New().String(),
		device:   device,
		width:    width,
		height:   height,
		pipeline: pipeline,
		sink:     sink,
	}
	s.track = &gstTrack{stream: s, done: make(chan struct{})}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onSample,
	})
	return s, nil
}

func (s *gstStream) play(ctx context.Context, timeout time.Duration) error {
	if err := s.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	bus := s.pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("%w: %s", ErrNoDevice, gerr.Error())
		case gst.MessageStateChanged:
			if msg.Source() != s.pipeline.GetName() {
				continue
			}
			if _, newState := msg.ParseStateChanged(); newState == gst.StatePlaying {
				slog.Info("camera pipeline playing",
					"device", s.device,
					"resolution", fmt.Sprintf("%dx%d", s.width, s.height),
				)
				go s.watch()
				return nil
			}
		}
	}
	return fmt.Errorf("camera pipeline did not reach PLAYING within %v", timeout)
}

// watch logs pipeline errors until the track is stopped
func (s *gstStream) watch() {
	bus := s.pipeline.GetPipelineBus()
	for {
		select {
		case <-s.track.done:
			return
		default:
		}

		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			slog.Warn("camera end of stream", "device", s.device)
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("camera pipeline error",
				"device", s.device,
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"frames", s.frames.Load(),
			)
		}
	}
}

func (s *gstStream) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}

	frame := make([]byte, len(data))
	copy(frame, data)
	buffer.Unmap()

	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()
	s.frames.Add(1)

	return gst.FlowOK
}

func (s *gstStream) ID() string {
	return s.id
}

func (s *gstStream) Tracks() []Track {
	return []Track{s.track}
}

// LatestFrame converts the last RGBx buffer into an image
func (s *gstStream) LatestFrame() (image.Image, error) {
	s.mu.RLock()
	data := s.latest
	s.mu.RUnlock()

	if data == nil {
		return nil, ErrNoFrame
	}
	return rgbxToImage(data, s.width, s.height)
}

// rgbxToImage copies RGBx pixels into an opaque RGBA image. The row
// stride is taken from the buffer size, so padded rows are handled.
func rgbxToImage(data []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	stride := len(data) / height
	if stride < width*4 {
		return nil, fmt.Errorf("short frame: %d bytes for %dx%d RGBx", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		copy(row, data[y*stride:y*stride+width*4])
		for x := 3; x < len(row); x += 4 {
			row[x] = 0xff
		}
	}
	return img, nil
}

// gstTrack stops the pipeline, releasing the device
type gstTrack struct {
	stream *gstStream
	once   sync.Once
	done   chan struct{}
}

func (t *gstTrack) Kind() string {
	return "video"
}

func (t *gstTrack) Stop() {
	t.once.Do(func() {
		close(t.done)
		if err := t.stream.pipeline.SetState(gst.StateNull); err != nil {
			slog.Warn("camera pipeline stop failed", "device", t.stream.device, "error", err)
		}
	})
}
