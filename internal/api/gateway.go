// Package api wraps every outbound call to the attendance backend.
//
// All calls go through Gateway.Call, which applies fixed defaults (JSON
// content type, same-origin cookies, a request id), never retries, never
// caches, and turns both transport and HTTP failures into *APIError.
// Call shows a generic danger notification on every failure; the derived
// operations (MarkAttendance, ExportAttendance, ...) add their own
// message on top and hand the error back to the caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/notify"
)

// NetworkErrorMessage is the generic text shown for every failed call
const NetworkErrorMessage = "Network error occurred"

const maxErrorBody = 4 << 10

// Notifier is what the gateway needs to surface feedback
type Notifier interface {
	Notify(msg notify.Message) string
}

// Recorder observes finished calls (metrics)
type Recorder interface {
	APIRequest(route, outcome string, elapsed time.Duration)
}

// Param is one query parameter. Order is preserved on the wire.
type Param struct {
	Key   string
	Value string
}

// RequestSpec describes one backend call
type RequestSpec struct {
	// Route is a low-cardinality name for logs and metrics (e.g. "course-stats")
	Route    string
	Endpoint string
	Method   string // defaults to GET
	Payload  any    // JSON-encoded when non-nil
	Query    []Param
	Headers  map[string]string
}

// Gateway performs backend calls relative to a base URL
type Gateway struct {
	baseURL   *url.URL
	client    *http.Client
	notifier  Notifier
	recorder  Recorder
	navigator Navigator
	now       func() time.Time
}

// Option configures a Gateway
type Option func(*Gateway)

// WithHTTPClient replaces the HTTP client. A cookie jar is added if missing.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithTimeout sets the per-request timeout of the default client
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.client.Timeout = d }
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

// WithNavigator sets the navigation-style downloader used by exports
func WithNavigator(n Navigator) Option {
	return func(g *Gateway) { g.navigator = n }
}

// WithClock overrides time.Now (export file names)
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a Gateway for baseURL
func New(baseURL string, notifier Notifier, opts ...Option) (*Gateway, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute, got %q", baseURL)
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	g := &Gateway{
		baseURL:  u,
		client:   &http.Client{Timeout: 10 * time.Second},
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	// The jar scopes session cookies to the backend origin
	if g.client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		g.client.Jar = jar
	}

	return g, nil
}

// Client returns the HTTP client shared by calls and downloads
func (g *Gateway) Client() *http.Client {
	return g.client
}

// Call performs one round trip. On any failure it shows the generic
// danger notification and returns an *APIError.
func (g *Gateway) Call(ctx context.Context, spec RequestSpec) (json.RawMessage, error) {
	body, err := g.Fetch(ctx, spec)
	if err != nil {
		g.notifier.Notify(notify.Message{Text: NetworkErrorMessage, Severity: notify.Danger})
		return nil, err
	}
	return body, nil
}

// Fetch performs one round trip like Call but leaves failure reporting to
// the caller. Only periodic work that must not flood the user (live
// polling) uses it directly.
func (g *Gateway) Fetch(ctx context.Context, spec RequestSpec) (json.RawMessage, error) {
	start := time.Now()
	body, err := g.do(ctx, spec)

	outcome := "success"
	if err != nil {
		outcome = err.(*APIError).Kind.String()
		slog.Error("api call failed",
			"route", spec.Route,
			"endpoint", spec.Endpoint,
			"error", err,
		)
	}
	if g.recorder != nil {
		g.recorder.APIRequest(routeLabel(spec), outcome, time.Since(start))
	}

	return body, err
}

// do always returns a nil error or an *APIError
func (g *Gateway) do(ctx context.Context, spec RequestSpec) (json.RawMessage, error) {
	target, err := g.resolve(spec.Endpoint, spec.Query)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Message: "invalid endpoint", Err: err}
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if spec.Payload != nil {
		data, err := json.Marshal(spec.Payload)
		if err != nil {
			return nil, &APIError{Kind: KindTransport, Message: "invalid payload", Err: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Message: "invalid request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	slog.Debug("api call",
		"method", method,
		"url", target.String(),
		"request_id", req.Header.Get("X-Request-ID"),
	)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, snippet),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Message: "failed to read response", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, &APIError{
			Kind:       KindDecode,
			StatusCode: resp.StatusCode,
			Message:    "response is not valid JSON",
		}
	}

	return json.RawMessage(data), nil
}

// resolve builds an absolute URL on the backend origin with ordered query
func (g *Gateway) resolve(endpoint string, query []Param) (*url.URL, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return nil, fmt.Errorf("endpoint %q must be relative to the backend origin", endpoint)
	}

	target := g.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		target.RawQuery = encodeQuery(query)
	}
	return target, nil
}

// encodeQuery keeps caller order, unlike url.Values.Encode
func encodeQuery(params []Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, url.QueryEscape(p.Key)+"="+url.QueryEscape(p.Value))
	}
	return strings.Join(parts, "&")
}

func errorMessage(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return fmt.Sprintf("HTTP error! status: %d", status)
}

func routeLabel(spec RequestSpec) string {
	if spec.Route != "" {
		return spec.Route
	}
	return "custom"
}
