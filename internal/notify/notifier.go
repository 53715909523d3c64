package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/display"
)

// DefaultDuration is the auto-dismiss delay when a message does not set one
const DefaultDuration = 5 * time.Second

// Severity classifies a notification's tone
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Danger  Severity = "danger"
)

// Icon returns the icon shown next to a message of this severity.
// Unknown severities get the info icon.
func (s Severity) Icon() string {
	switch s {
	case Success:
		return "check-circle"
	case Danger:
		return "exclamation-triangle"
	case Warning:
		return "exclamation-circle"
	default:
		return "info-circle"
	}
}

// Message is one notification request
type Message struct {
	Text     string        `json:"text"`
	Severity Severity      `json:"severity"`
	Duration time.Duration `json:"duration"`
}

// Container is the part of the display tree toasts are attached to
type Container interface {
	AppendToast(t display.Toast)
	RemoveToast(id string) bool
}

// Recorder observes shown notifications (metrics)
type Recorder interface {
	NotificationShown(severity string)
}

// Event is delivered to subscribers for every shown notification
type Event struct {
	ToastID string    `json:"toast_id"`
	Message Message   `json:"message"`
	ShownAt time.Time `json:"shown_at"`
}

// SubscriberStats counts deliveries to one subscriber
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber struct {
	ch      chan<- Event
	sent    uint64
	dropped uint64
}

// Notifier shows transient toasts and removes them after their duration.
//
// Every toast owns its own timer; dismissing one never touches another.
// Subscribers receive events non-blocking: a full channel drops the event.
type Notifier struct {
	container       Container
	defaultDuration time.Duration
	recorder        Recorder

	mu          sync.Mutex
	timers      map[string]*time.Timer
	subscribers map[string]*subscriber
}

// Option configures a Notifier
type Option func(*Notifier)

// WithDefaultDuration sets the delay used when a message has none
func WithDefaultDuration(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.defaultDuration = d
		}
	}
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(n *Notifier) { n.recorder = r }
}

// New creates a Notifier attaching toasts to container
func New(container Container, opts ...Option) *Notifier {
	n := &Notifier{
		container:       container,
		defaultDuration: DefaultDuration,
		timers:          make(map[string]*time.Timer),
		subscribers:     make(map[string]*subscriber),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify attaches a toast for msg, schedules its dismissal and returns
// the toast id.
func (n *Notifier) Notify(msg Message) string {
	if msg.Duration <= 0 {
		msg.Duration = n.defaultDuration
	}

	toast := display.Toast{
		ID:        uuid.New().String(),
		Severity:  string(msg.Severity),
		Icon:      msg.Severity.Icon(),
		Text:      msg.Text,
		CreatedAt: time.Now(),
	}

	n.mu.Lock()
	n.container.AppendToast(toast)
	id := toast.ID
	n.timers[id] = time.AfterFunc(msg.Duration, func() {
		n.Dismiss(id)
	})
	n.publishLocked(Event{ToastID: id, Message: msg, ShownAt: toast.CreatedAt})
	n.mu.Unlock()

	if n.recorder != nil {
		n.recorder.NotificationShown(string(msg.Severity))
	}

	slog.Debug("notification shown",
		"toast_id", id,
		"severity", msg.Severity,
		"duration", msg.Duration,
	)

	return id
}

// Info shows an info toast with the default duration
func (n *Notifier) Info(text string) string {
	return n.Notify(Message{Text: text, Severity: Info})
}

// Success shows a success toast with the default duration
func (n *Notifier) Success(text string) string {
	return n.Notify(Message{Text: text, Severity: Success})
}

// Warning shows a warning toast with the default duration
func (n *Notifier) Warning(text string) string {
	return n.Notify(Message{Text: text, Severity: Warning})
}

// Danger shows a danger toast with the default duration
func (n *Notifier) Danger(text string) string {
	return n.Notify(Message{Text: text, Severity: Danger})
}

// Dismiss detaches a toast before its timer fires (close button).
// Safe to call more than once; returns false if it was already gone.
func (n *Notifier) Dismiss(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	timer, ok := n.timers[id]
	if !ok {
		return false
	}
	timer.Stop()
	delete(n.timers, id)
	n.container.RemoveToast(id)
	return true
}

// DismissAll detaches every pending toast (teardown)
func (n *Notifier) DismissAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, timer := range n.timers {
		timer.Stop()
		n.container.RemoveToast(id)
		delete(n.timers, id)
	}
}

// Pending returns how many toasts are still attached
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.timers)
}

// Subscribe registers a channel that receives every shown notification
func (n *Notifier) Subscribe(name string, ch chan<- Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.subscribers[name]; exists {
		return fmt.Errorf("subscriber %q already registered", name)
	}
	n.subscribers[name] = &subscriber{ch: ch}
	return nil
}

// Unsubscribe removes a subscriber. Unknown names are ignored.
func (n *Notifier) Unsubscribe(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subscribers, name)
}

// Stats returns per-subscriber delivery counters
func (n *Notifier) Stats() map[string]SubscriberStats {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make(map[string]SubscriberStats, len(n.subscribers))
	for name, sub := range n.subscribers {
		out[name] = SubscriberStats{Sent: sub.sent, Dropped: sub.dropped}
	}
	return out
}

func (n *Notifier) publishLocked(ev Event) {
	for _, sub := range n.subscribers {
		select {
		case sub.ch <- ev:
			sub.sent++
		default:
			sub.dropped++
		}
	}
}
