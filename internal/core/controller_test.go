package core

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/camera"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/config"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/dispatch"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/display"
)

// backend records every request the controller sends
type backend struct {
	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

func (b *backend) record(req *http.Request) {
	var body map[string]any
	json.NewDecoder(req.Body).Decode(&body)

	b.mu.Lock()
	b.requests = append(b.requests, recordedRequest{method: req.Method, path: req.URL.Path, body: body})
	b.mu.Unlock()
}

func (b *backend) all() []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]recordedRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newBackend(t *testing.T) (*backend, *mux.Router) {
	t.Helper()
	b := &backend{}
	r := mux.NewRouter()

	r.HandleFunc("/api/manual-attendance", func(w http.ResponseWriter, req *http.Request) {
		b.record(req)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "student_name": "Ada"})
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/mark-absent", func(w http.ResponseWriter, req *http.Request) {
		b.record(req)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/course-stats/{id}", func(w http.ResponseWriter, req *http.Request) {
		b.record(req)
		writeJSON(w, http.StatusOK, map[string]any{
			"total_students":  30,
			"today_present":   24,
			"avg_attendance":  21.5,
			"attendance_rate": 80,
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/live-attendance-stats/{id}", func(w http.ResponseWriter, req *http.Request) {
		b.record(req)
		writeJSON(w, http.StatusOK, map[string]any{"present_count": 12, "total_students": 30})
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/recognize-face", func(w http.ResponseWriter, req *http.Request) {
		b.record(req)
		writeJSON(w, http.StatusOK, map[string]any{
			"recognized_faces": []map[string]any{
				{"user_id": "u1", "name": "Ada Lovelace", "student_id": "42", "confidence": 0.97},
				{"user_id": "u2", "name": "Alan Turing", "student_id": "43", "confidence": 0.91},
			},
		})
	}).Methods(http.MethodPost)

	return b, r
}

// stillStream is a one-track stream showing a solid frame
type stillStream struct {
	track *stillTrack
}

type stillTrack struct {
	mu      sync.Mutex
	stopped bool
}

func (t *stillTrack) Kind() string { return "video" }
func (t *stillTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}
func (t *stillTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (s *stillStream) ID() string             { return "still" }
func (s *stillStream) Tracks() []camera.Track { return []camera.Track{s.track} }
func (s *stillStream) LatestFrame() (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < 16; i++ {
		img.Set(i%4, i/4, color.RGBA{G: 128, A: 255})
	}
	return img, nil
}

type stillDevices struct {
	mu      sync.Mutex
	granted []*stillStream
}

func (d *stillDevices) GetUserMedia(ctx context.Context, c camera.Constraints) (camera.MediaStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &stillStream{track: &stillTrack{}}
	d.granted = append(d.granted, s)
	return s, nil
}

func newTestController(t *testing.T, r *mux.Router) (*Controller, *stillDevices) {
	t.Helper()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		InstanceID: "kiosk-1",
		Backend:    config.BackendConfig{BaseURL: srv.URL},
		Export:     config.ExportConfig{Dir: t.TempDir()},
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	devices := &stillDevices{}
	c, err := New(cfg, WithMediaDevices(devices))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, devices
}

func click(target *dispatch.Element) *dispatch.Event {
	return &dispatch.Event{Type: "click", Target: target}
}

func toastTexts(b *display.Board) []string {
	var out []string
	for _, t := range b.Toasts() {
		out = append(out, t.Severity+":"+t.Text)
	}
	return out
}

func TestController_MarkPresentFromNestedIcon(t *testing.T) {
	b, r := newBackend(t)
	c, _ := newTestController(t, r)

	button := dispatch.NewElement("button", map[string]string{
		"data-action":     "mark-present",
		"data-student-id": "42",
		"data-course-id":  "CS101",
	})
	icon := button.Append(dispatch.NewElement("i", nil))

	if err := c.Dispatcher().Dispatch(context.Background(), click(icon)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	reqs := b.all()
	if len(reqs) != 1 {
		t.Fatalf("Expected exactly one request, got %d", len(reqs))
	}
	got := reqs[0]
	if got.method != http.MethodPost || got.path != "/api/manual-attendance" {
		t.Errorf("Unexpected request %s %s", got.method, got.path)
	}
	want := map[string]any{
		"student_id": "42",
		"course_id":  "CS101",
		"method":     "manual",
		"confidence": float64(100),
	}
	for k, v := range want {
		if got.body[k] != v {
			t.Errorf("Body %s: expected %v, got %v", k, v, got.body[k])
		}
	}

	toasts := toastTexts(c.Board())
	if len(toasts) != 1 || toasts[0] != "success:Attendance marked for student" {
		t.Errorf("Unexpected toasts %v", toasts)
	}
}

func TestController_MarkAbsent(t *testing.T) {
	b, r := newBackend(t)
	c, _ := newTestController(t, r)

	el := dispatch.NewElement("button", map[string]string{
		"data-action":     "mark-absent",
		"data-student-id": "42",
		"data-course-id":  "CS101",
	})
	if err := c.Dispatcher().Dispatch(context.Background(), click(el)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if reqs := b.all(); len(reqs) != 1 || reqs[0].path != "/api/mark-absent" {
		t.Fatalf("Unexpected requests %+v", reqs)
	}
	toasts := toastTexts(c.Board())
	if len(toasts) != 1 || toasts[0] != "warning:Student marked as absent" {
		t.Errorf("Unexpected toasts %v", toasts)
	}
}

func TestController_MissingAttributeSendsNothing(t *testing.T) {
	b, r := newBackend(t)
	c, _ := newTestController(t, r)

	el := dispatch.NewElement("button", map[string]string{
		"data-action":    "mark-present",
		"data-course-id": "CS101",
	})
	err := c.Dispatcher().Dispatch(context.Background(), click(el))
	if !errors.Is(err, dispatch.ErrMissingAttribute) {
		t.Fatalf("Expected ErrMissingAttribute, got %v", err)
	}
	if len(b.all()) != 0 {
		t.Error("No request may be sent without required attributes")
	}
}

func TestController_QuickStatsModalReplaced(t *testing.T) {
	_, r := newBackend(t)
	c, _ := newTestController(t, r)

	el := dispatch.NewElement("a", map[string]string{
		"data-action":    "quick-stats",
		"data-course-id": "CS101",
	})
	for i := 0; i < 2; i++ {
		if err := c.Dispatcher().Dispatch(context.Background(), click(el)); err != nil {
			t.Fatalf("Dispatch %d failed: %v", i, err)
		}
	}

	modals := c.Board().Modals()
	if len(modals) != 1 {
		t.Fatalf("Expected a single stats modal, got %d", len(modals))
	}
	m := modals[0]
	if m.ID != display.StatsModalID || m.Title != "Course Statistics" {
		t.Errorf("Unexpected modal %+v", m)
	}

	want := []display.Field{
		{Label: "Total Students", Value: "30"},
		{Label: "Today Present", Value: "24"},
		{Label: "Average Attendance", Value: "21.5"},
		{Label: "Attendance Rate", Value: "80%"},
	}
	if len(m.Fields) != len(want) {
		t.Fatalf("Expected %d fields, got %d", len(want), len(m.Fields))
	}
	for i, f := range want {
		if m.Fields[i] != f {
			t.Errorf("Field %d: expected %+v, got %+v", i, f, m.Fields[i])
		}
	}

	if toasts := c.Board().Toasts(); len(toasts) != 0 {
		t.Errorf("Stats fetch must not notify on success, got %v", toasts)
	}
}

func TestController_Shortcuts(t *testing.T) {
	_, r := newBackend(t)
	c, _ := newTestController(t, r)

	save := &dispatch.KeyEvent{Key: "s", Meta: true}
	if err := c.Dispatcher().HandleKey(context.Background(), save); err != nil {
		t.Fatalf("HandleKey failed: %v", err)
	}
	if !save.DefaultPrevented() {
		t.Error("Quick save must prevent the browser default")
	}
	if toasts := toastTexts(c.Board()); len(toasts) != 1 || toasts[0] != "success:"+QuickSaveMessage {
		t.Errorf("Unexpected toasts %v", toasts)
	}

	c.Board().ShowModal(display.Modal{ID: "a"})
	c.Board().ShowModal(display.Modal{ID: "b"})

	if err := c.Dispatcher().HandleKey(context.Background(), &dispatch.KeyEvent{Key: "Escape"}); err != nil {
		t.Fatalf("HandleKey failed: %v", err)
	}
	if n := len(c.Board().Modals()); n != 0 {
		t.Errorf("Expected all modals closed, %d open", n)
	}
}

func TestController_LiveAttendanceOnePollerPerCourse(t *testing.T) {
	_, r := newBackend(t)
	c, _ := newTestController(t, r)

	if err := c.StartLiveAttendance("CS101", time.Hour); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	first := c.LiveHandles()[0].CancelToken

	if err := c.StartLiveAttendance("CS101", 2*time.Hour); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if err := c.StartLiveAttendance("MA201", time.Hour); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	handles := c.LiveHandles()
	if len(handles) != 2 {
		t.Fatalf("Expected 2 handles, got %d", len(handles))
	}
	if handles[0].CourseID != "CS101" || handles[0].Interval != 2*time.Hour || handles[0].CancelToken == first {
		t.Errorf("Expected CS101 replaced, got %+v", handles[0])
	}

	c.StopLiveAttendance("CS101")
	c.StopLiveAttendance("CS101")
	if handles := c.LiveHandles(); len(handles) != 1 || handles[0].CourseID != "MA201" {
		t.Errorf("Unexpected handles %+v", handles)
	}
}

func TestController_LiveAttendanceUpdatesBoard(t *testing.T) {
	_, r := newBackend(t)
	c, _ := newTestController(t, r)

	if err := c.StartLiveAttendance("CS101", 10*time.Millisecond); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if text, _ := c.Board().Text(display.PresentCountID); text == "12" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for live update")
		case <-time.After(5 * time.Millisecond):
		}
	}

	progress, _ := c.Board().Progress(display.AttendanceProgressID)
	if progress.WidthPct != 40 || progress.Label != "40.0%" {
		t.Errorf("Unexpected progress %+v", progress)
	}
}

func TestController_StopLiveWithSlowTickKeepsHealthResponsive(t *testing.T) {
	inFlight := make(chan struct{}, 1)
	release := make(chan struct{})
	var releaseOnce sync.Once

	r := mux.NewRouter()
	r.HandleFunc("/api/live-attendance-stats/{id}", func(w http.ResponseWriter, req *http.Request) {
		select {
		case inFlight <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-req.Context().Done():
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"present_count": 1, "total_students": 2})
	}).Methods(http.MethodGet)

	c, _ := newTestController(t, r)
	t.Cleanup(func() { releaseOnce.Do(func() { close(release) }) })

	if err := c.StartLiveAttendance("CS101", 10*time.Millisecond); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-inFlight:
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for the first tick")
	}

	stopped := make(chan struct{})
	go func() {
		c.StopLiveAttendance("CS101")
		close(stopped)
	}()

	healthy := make(chan HealthStatus, 1)
	go func() {
		for {
			h := c.HealthCheck()
			if len(h.LiveCourses) == 0 {
				healthy <- h
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	select {
	case h := <-healthy:
		if h.Status != "healthy" {
			t.Errorf("Expected healthy, got %s", h.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("HealthCheck blocked behind a stopping poller")
	}

	select {
	case <-stopped:
		t.Fatal("Expected Stop to wait for the in-flight tick")
	default:
	}

	releaseOnce.Do(func() { close(release) })

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the tick finished")
	}
}

func TestController_CheckInWhileIdle(t *testing.T) {
	b, r := newBackend(t)
	c, _ := newTestController(t, r)

	_, err := c.CheckIn(context.Background(), "CS101")
	if !errors.Is(err, camera.ErrNotActive) {
		t.Fatalf("Expected ErrNotActive, got %v", err)
	}
	if len(b.all()) != 0 {
		t.Error("Capture failure must not reach the backend")
	}
}

func TestController_CheckIn(t *testing.T) {
	b, r := newBackend(t)
	c, _ := newTestController(t, r)

	if err := c.Camera().Start(context.Background(), camera.DefaultConstraints()); err != nil {
		t.Fatalf("Camera start failed: %v", err)
	}

	result, err := c.CheckIn(context.Background(), "CS101")
	if err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if len(result.RecognizedFaces) != 2 {
		t.Errorf("Expected 2 faces, got %d", len(result.RecognizedFaces))
	}

	reqs := b.all()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(reqs))
	}
	payload, _ := reqs[0].body["image"].(string)
	if !strings.HasPrefix(payload, "data:image/jpeg;base64,") {
		t.Errorf("Expected JPEG data URI, got %.40s", payload)
	}
	if reqs[0].body["course_id"] != "CS101" {
		t.Errorf("Unexpected course id %v", reqs[0].body["course_id"])
	}

	toasts := toastTexts(c.Board())
	want := []string{"success:Ada Lovelace checked in", "success:Alan Turing checked in"}
	if len(toasts) != len(want) {
		t.Fatalf("Expected %v, got %v", want, toasts)
	}
	for i := range want {
		if toasts[i] != want[i] {
			t.Errorf("Toast %d: expected %q, got %q", i, want[i], toasts[i])
		}
	}
}

func TestController_Close(t *testing.T) {
	_, r := newBackend(t)
	c, devices := newTestController(t, r)

	c.StartLiveAttendance("CS101", time.Hour)
	c.Camera().Start(context.Background(), camera.DefaultConstraints())
	c.Notifier().Info("pending")

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	c.Close()

	if n := len(c.LiveHandles()); n != 0 {
		t.Errorf("Expected no pollers after close, got %d", n)
	}
	if c.Camera().Status() != camera.Idle {
		t.Error("Camera must be released on close")
	}
	if !devices.granted[0].track.isStopped() {
		t.Error("Camera track must be stopped on close")
	}
	if n := len(c.Board().Toasts()); n != 0 {
		t.Errorf("Expected toasts dismissed, %d remain", n)
	}
	if err := c.StartLiveAttendance("CS101", time.Hour); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if h := c.HealthCheck(); h.Status != "unhealthy" {
		t.Errorf("Expected unhealthy after close, got %s", h.Status)
	}
}

func TestController_RunUntilCancelled(t *testing.T) {
	_, r := newBackend(t)
	c, _ := newTestController(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(time.Second)
	for {
		if text, ok := c.Board().Text(display.LiveClockID); ok && len(text) == len("15:04:05") {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for clock")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	status := c.GetStatus()
	if status["instance_id"] != "kiosk-1" || status["camera"] != "idle" {
		t.Errorf("Unexpected status %v", status)
	}
}
