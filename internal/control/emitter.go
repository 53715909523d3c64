package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/config"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/notify"
)

// ErrNotConnected is returned when publishing without a broker connection
var ErrNotConnected = errors.New("mqtt not connected")

// Publisher publishes a payload to a topic
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Emitter owns the MQTT connection of the kiosk
type Emitter struct {
	cfg    *config.Config
	Client mqtt.Client // shared with the control handler

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// NewEmitter creates a disconnected emitter
func NewEmitter(cfg *config.Config) *Emitter {
	return &Emitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection with auto-reconnect
func (e *Emitter) Connect(ctx context.Context) error {
	broker := e.cfg.MQTT.Broker
	e.Client = mqtt.NewClient(e.clientOptions())

	slog.Info("connecting kiosk to broker", "broker", broker, "instance_id", e.cfg.InstanceID)

	token := e.Client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("broker %s: connect timed out", broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker %s: %w", broker, err)
	}

	e.setConnected(true)
	return nil
}

func (e *Emitter) clientOptions() *mqtt.ClientOptions {
	broker := e.cfg.MQTT.Broker

	return mqtt.NewClientOptions().
		AddBroker("tcp://" + broker).
		SetClientID("attendance-" + e.cfg.InstanceID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			e.setConnected(true)
			slog.Info("broker connection up", "broker", broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			e.setConnected(false)
			slog.Warn("broker connection lost, reconnecting", "broker", broker, "error", err)
		})
}

// Publish sends payload and waits up to two seconds for the broker
func (e *Emitter) Publish(topic string, qos byte, payload []byte) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("mqtt message published", "topic", topic, "qos", qos, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection
func (e *Emitter) Disconnect() {
	if c := e.Client; c != nil && c.IsConnected() {
		c.Disconnect(250)
		slog.Info("kiosk disconnected from broker")
	}
	e.setConnected(false)
}

// Stats reports connection state and per-topic publish counts
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// Stats returns a copy of the counters
func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *Emitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// NotificationPayload is the MQTT rendition of a shown toast
type NotificationPayload struct {
	InstanceID string `json:"instance_id"`
	ToastID    string `json:"toast_id"`
	Text       string `json:"text"`
	Severity   string `json:"severity"`
	Icon       string `json:"icon"`
	DurationMS int64  `json:"duration_ms"`
	ShownAt    string `json:"shown_at"`
}

// Mirror publishes every notification event until ctx is done or events
// is closed. Publish failures are logged and skipped.
func Mirror(ctx context.Context, pub Publisher, instanceID, topic string, qos byte, events <-chan notify.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}

			payload, err := json.Marshal(NotificationPayload{
				InstanceID: instanceID,
				ToastID:    ev.ToastID,
				Text:       ev.Message.Text,
				Severity:   string(ev.Message.Severity),
				Icon:       ev.Message.Severity.Icon(),
				DurationMS: ev.Message.Duration.Milliseconds(),
				ShownAt:    ev.ShownAt.UTC().Format(time.RFC3339Nano),
			})
			if err != nil {
				slog.Error("failed to marshal notification", "error", err)
				continue
			}

			if err := pub.Publish(topic, qos, payload); err != nil {
				slog.Warn("notification mirror publish failed",
					"topic", topic,
					"toast_id", ev.ToastID,
					"error", err,
				)
			}
		}
	}
}
