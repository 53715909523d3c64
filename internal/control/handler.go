// Package control is the kiosk's MQTT control plane: remote commands are
// turned into the same interaction events the local UI produces, and
// shown notifications are mirrored to a topic.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/config"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/dispatch"
)

// Command is a control plane request
type Command struct {
	Command    string            `json:"command"`
	RequestID  string            `json:"request_id,omitempty"`
	Action     string            `json:"action,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Confirm    *bool             `json:"confirm,omitempty"`
	Key        string            `json:"key,omitempty"`
	Ctrl       bool              `json:"ctrl,omitempty"`
	Meta       bool              `json:"meta,omitempty"`
	CourseID   string            `json:"course_id,omitempty"`
	IntervalMS int               `json:"interval_ms,omitempty"`
}

// Response acknowledges a command
type Response struct {
	CommandAck string         `json:"command_ack"`
	RequestID  string         `json:"request_id,omitempty"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// Dispatcher routes interaction events to action handlers
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *dispatch.Event) error
	HandleKey(ctx context.Context, ev *dispatch.KeyEvent) error
}

// Callbacks are the kiosk operations reachable over MQTT
type Callbacks struct {
	OnGetStatus func() map[string]any
	OnStartLive func(courseID string, interval time.Duration) error
	OnStopLive  func(courseID string) error
	OnCheckIn   func(ctx context.Context, courseID string) (map[string]any, error)
	OnShutdown  func() error
}

// Handler handles control plane commands
type Handler struct {
	cfg        config.MQTTConfig
	client     mqtt.Client
	publisher  Publisher
	dispatcher Dispatcher
	callbacks  Callbacks
	commands   chan Command
	done       chan struct{}
	now        func() time.Time

	stopOnce sync.Once
}

// NewHandler creates a control handler. client is used for the
// subscription, publisher for responses.
func NewHandler(cfg config.MQTTConfig, client mqtt.Client, publisher Publisher, d Dispatcher, callbacks Callbacks) *Handler {
	return &Handler{
		cfg:        cfg,
		client:     client,
		publisher:  publisher,
		dispatcher: d,
		callbacks:  callbacks,
		commands:   make(chan Command, 10),
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

// Start subscribes to the control topic. Commands queue until Serve runs.
func (h *Handler) Start() error {
	topic := h.cfg.Topics.Control
	qos := h.cfg.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")
	return nil
}

// Serve runs queued commands one at a time until ctx is done or Stop is
// called. A command already running is finished first.
func (h *Handler) Serve(ctx context.Context) {
	h.processCommands(ctx)
}

// Stop unsubscribes and ends command processing. Messages the client
// still delivers afterwards are dropped.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		if h.client != nil && h.client.IsConnected() {
			token := h.client.Unsubscribe(h.cfg.Topics.Control)
			token.WaitTimeout(2 * time.Second)
		}
		slog.Info("control plane handler stopped")
	})
}

func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command, "request_id", cmd.RequestID)

	select {
	case <-h.done:
		slog.Warn("control plane stopped, dropping command", "command", cmd.Command)
		return
	default:
	}

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case cmd := <-h.commands:
			h.handleCommand(ctx, cmd)
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, cmd Command) {
	resp := Response{CommandAck: cmd.Command, RequestID: cmd.RequestID}

	switch cmd.Command {
	case "action":
		ev, err := actionEvent(cmd)
		if err != nil {
			resp.fail(err)
			break
		}
		if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
			resp.fail(err)
			break
		}
		resp.Status = "success"
		resp.Data = map[string]any{
			"action":            cmd.Action,
			"default_prevented": ev.DefaultPrevented(),
		}

	case "key":
		if cmd.Key == "" {
			resp.fail(fmt.Errorf("missing 'key' parameter"))
			break
		}
		ev := &dispatch.KeyEvent{Key: cmd.Key, Ctrl: cmd.Ctrl, Meta: cmd.Meta}
		if err := h.dispatcher.HandleKey(ctx, ev); err != nil {
			resp.fail(err)
			break
		}
		resp.Status = "success"
		resp.Data = map[string]any{
			"combo":             ev.Combo(),
			"default_prevented": ev.DefaultPrevented(),
		}

	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			resp.fail(fmt.Errorf("get_status not implemented"))
			break
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "start_live":
		if h.callbacks.OnStartLive == nil {
			resp.fail(fmt.Errorf("start_live not implemented"))
			break
		}
		if cmd.CourseID == "" {
			resp.fail(fmt.Errorf("missing 'course_id' parameter"))
			break
		}
		interval := time.Duration(cmd.IntervalMS) * time.Millisecond
		if err := h.callbacks.OnStartLive(cmd.CourseID, interval); err != nil {
			resp.fail(err)
			break
		}
		resp.Status = "success"
		resp.Data = map[string]any{"course_id": cmd.CourseID, "live": true}

	case "stop_live":
		if h.callbacks.OnStopLive == nil {
			resp.fail(fmt.Errorf("stop_live not implemented"))
			break
		}
		if err := h.callbacks.OnStopLive(cmd.CourseID); err != nil {
			resp.fail(err)
			break
		}
		resp.Status = "success"
		resp.Data = map[string]any{"course_id": cmd.CourseID, "live": false}

	case "check_in":
		if h.callbacks.OnCheckIn == nil {
			resp.fail(fmt.Errorf("check_in not implemented"))
			break
		}
		if cmd.CourseID == "" {
			resp.fail(fmt.Errorf("missing 'course_id' parameter"))
			break
		}
		data, err := h.callbacks.OnCheckIn(ctx, cmd.CourseID)
		if err != nil {
			resp.fail(err)
			break
		}
		resp.Status = "success"
		resp.Data = data

	case "shutdown":
		if h.callbacks.OnShutdown == nil {
			resp.fail(fmt.Errorf("shutdown not implemented"))
			break
		}
		slog.Warn("shutdown command received via MQTT control plane")
		resp.Status = "success"
		resp.Data = map[string]any{"shutdown_initiated": true}
		h.sendResponse(resp)

		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := h.callbacks.OnShutdown(); err != nil {
				slog.Error("shutdown callback failed", "error", err)
			}
		}()
		return

	default:
		resp.fail(fmt.Errorf("unknown command: %s", cmd.Command))
	}

	h.sendResponse(resp)
}

func (r *Response) fail(err error) {
	r.Status = "error"
	r.Error = err.Error()
}

// actionEvent builds a synthetic click on an element declaring the
// command's action and attributes
func actionEvent(cmd Command) (*dispatch.Event, error) {
	if cmd.Action == "" {
		return nil, fmt.Errorf("missing 'action' parameter")
	}

	attrs := map[string]string{dispatch.AttrAction: cmd.Action}
	for k, v := range cmd.Attributes {
		if !strings.HasPrefix(k, "data-") {
			k = "data-" + k
		}
		if k == dispatch.AttrAction {
			continue
		}
		attrs[k] = v
	}

	ev := &dispatch.Event{
		Type:   "click",
		Target: dispatch.NewElement("button", attrs),
	}
	if cmd.Confirm != nil {
		ev.Confirm = dispatch.Answer(*cmd.Confirm)
	}
	return ev, nil
}

func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = h.now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	if err := h.publisher.Publish(h.cfg.Topics.Responses, h.cfg.QoS["responses"], payload); err != nil {
		slog.Error("failed to publish response", "command_ack", resp.CommandAck, "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
