package httpui

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/api"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/camera"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/core"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/dispatch"
)

// ClickRequest carries a click from the front end. Path lists the
// attributes of the clicked element first, then each ancestor up to the
// root. Confirm is the user's answer to a confirmation prompt, if one was
// shown.
type ClickRequest struct {
	Path    []map[string]string `json:"path"`
	Confirm *bool               `json:"confirm,omitempty"`
}

// KeyRequest carries a key press
type KeyRequest struct {
	Key  string `json:"key"`
	Ctrl bool   `json:"ctrl"`
	Meta bool   `json:"meta"`
}

// EventResponse reports what the front end must do with the event
type EventResponse struct {
	DefaultPrevented   bool `json:"default_prevented"`
	PropagationStopped bool `json:"propagation_stopped"`
}

// buildTarget links the path into an element chain and returns its first
// element
func buildTarget(path []map[string]string) *dispatch.Element {
	var target, child *dispatch.Element
	for _, attrs := range path {
		el := dispatch.NewElement("", attrs)
		if child == nil {
			target = el
		} else {
			el.Append(child)
		}
		child = el
	}
	return target
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req ClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid click payload: %w", err))
		return
	}
	if len(req.Path) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("empty element path"))
		return
	}

	ev := &dispatch.Event{Type: "click", Target: buildTarget(req.Path)}
	if req.Confirm != nil {
		ev.Confirm = dispatch.Answer(*req.Confirm)
	}

	if err := s.ctrl.Dispatcher().Dispatch(r.Context(), ev); err != nil {
		writeError(w, actionStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, EventResponse{
		DefaultPrevented:   ev.DefaultPrevented(),
		PropagationStopped: ev.PropagationStopped(),
	})
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid key payload: %w", err))
		return
	}

	ev := &dispatch.KeyEvent{Key: req.Key, Ctrl: req.Ctrl, Meta: req.Meta}
	if err := s.ctrl.Dispatcher().HandleKey(r.Context(), ev); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, EventResponse{DefaultPrevented: ev.DefaultPrevented()})
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Board().Snapshot())
}

func (s *Server) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.ctrl.Notifier().Dismiss(id) {
		writeError(w, http.StatusNotFound, fmt.Errorf("toast %s not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	c := camera.DefaultConstraints()
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid constraints: %w", err))
			return
		}
	}

	if err := s.ctrl.Camera().Start(r.Context(), c); err != nil {
		status := http.StatusServiceUnavailable
		switch {
		case errors.Is(err, camera.ErrPermissionDenied):
			status = http.StatusForbidden
		case errors.Is(err, camera.ErrStartInterrupted):
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Camera().State())
}

func (s *Server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Camera().Stop()
	writeJSON(w, http.StatusOK, s.ctrl.Camera().State())
}

func (s *Server) handleCameraCapture(w http.ResponseWriter, r *http.Request) {
	frame, err := s.ctrl.Camera().CaptureFrame()
	if err != nil {
		writeError(w, captureStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"image": frame})
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	courseID := mux.Vars(r)["courseId"]

	result, err := s.ctrl.CheckIn(r.Context(), courseID)
	if err != nil {
		writeError(w, captureStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	courseID := mux.Vars(r)["courseId"]

	var interval time.Duration
	if v := r.URL.Query().Get("interval_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid interval_ms %q", v))
			return
		}
		interval = time.Duration(ms) * time.Millisecond
	}

	if err := s.ctrl.StartLiveAttendance(courseID, interval); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.LiveHandles())
}

func (s *Server) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.StopLiveAttendance(mux.Vars(r)["courseId"])
	writeJSON(w, http.StatusOK, s.ctrl.LiveHandles())
}

func (s *Server) handleLiveList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.LiveHandles())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.ctrl.HealthCheck()

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// actionStatus maps a dispatch failure to an HTTP status
func actionStatus(err error) int {
	var apiErr *api.APIError
	switch {
	case errors.Is(err, dispatch.ErrMissingAttribute):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func captureStatus(err error) int {
	if errors.Is(err, camera.ErrNotActive) {
		return http.StatusConflict
	}
	return actionStatus(err)
}
