// Package httpui is the local bridge between the kiosk front end and the
// controller. The front end forwards clicks and key presses, polls the
// display snapshot and drives the camera through it.
package httpui

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/core"
)

// Server serves the bridge endpoints
type Server struct {
	ctrl   *core.Controller
	router *mux.Router
	http   *http.Server
}

// New builds the router for ctrl
func New(ctrl *core.Controller, listen string) *Server {
	s := &Server{ctrl: ctrl, router: mux.NewRouter()}
	s.routes()

	s.http = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := s.router

	r.HandleFunc("/events/click", s.handleClick).Methods(http.MethodPost)
	r.HandleFunc("/events/key", s.handleKey).Methods(http.MethodPost)

	r.HandleFunc("/display", s.handleDisplay).Methods(http.MethodGet)
	r.HandleFunc("/toasts/{id}", s.handleDismissToast).Methods(http.MethodDelete)

	r.HandleFunc("/camera/start", s.handleCameraStart).Methods(http.MethodPost)
	r.HandleFunc("/camera/stop", s.handleCameraStop).Methods(http.MethodPost)
	r.HandleFunc("/camera/capture", s.handleCameraCapture).Methods(http.MethodPost)
	r.HandleFunc("/checkin/{courseId}", s.handleCheckIn).Methods(http.MethodPost)

	r.HandleFunc("/live/{courseId}/start", s.handleLiveStart).Methods(http.MethodPost)
	r.HandleFunc("/live/{courseId}/stop", s.handleLiveStop).Methods(http.MethodPost)
	r.HandleFunc("/live", s.handleLiveList).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.ctrl.Metrics().Handler()).Methods(http.MethodGet)
}

// Handler returns the router (tests, embedding)
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background. Listen failures are logged.
func (s *Server) Start() {
	slog.Info("starting local bridge", "listen", s.http.Addr)

	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("local bridge failed", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
