// Package dispatch routes UI interactions to action handlers.
//
// Elements declare what they do with data-action; the dispatcher resolves
// the identifier against a static handler table built at construction.
// Unknown identifiers are ignored so newer pages keep working against an
// older controller. A data-confirm prompt is answered synchronously before
// any handler runs; a declined prompt cancels the event's default.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Handler performs one action
type Handler func(ctx context.Context, req ActionRequest) error

// Confirmer answers a confirmation prompt. It must not block on I/O.
type Confirmer interface {
	Confirm(message string) bool
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(message string) bool

// Confirm calls f
func (f ConfirmFunc) Confirm(message string) bool { return f(message) }

// Answer returns a Confirmer that always gives the same answer
func Answer(yes bool) Confirmer {
	return ConfirmFunc(func(string) bool { return yes })
}

// Recorder observes dispatch outcomes (metrics)
type Recorder interface {
	ActionDispatched(action, outcome string)
}

// Dispatch outcomes
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeUnknown  = "unknown"
	OutcomeDeclined = "declined"
)

// UnregisteredAction is the action label recorded for ids with no handler,
// so arbitrary input cannot grow the set of recorded actions
const UnregisteredAction = "unregistered"

// KeyEvent is a keyboard interaction
type KeyEvent struct {
	Key  string
	Ctrl bool
	Meta bool

	defaultPrevented bool
}

// PreventDefault cancels the browser default for the key
func (k *KeyEvent) PreventDefault() { k.defaultPrevented = true }

// DefaultPrevented reports whether PreventDefault was called
func (k *KeyEvent) DefaultPrevented() bool { return k.defaultPrevented }

// Combo normalizes the event to "mod+<key>" or "<key>", lowercase.
// Ctrl and Meta (Cmd) are the same modifier.
func (k *KeyEvent) Combo() string {
	key := strings.ToLower(k.Key)
	if k.Ctrl || k.Meta {
		return "mod+" + key
	}
	return key
}

// Shortcut binds a key combo to an operation
type Shortcut struct {
	Combo          string
	PreventDefault bool
	Run            func(ctx context.Context) error
}

// Dispatcher resolves events to handlers
type Dispatcher struct {
	handlers  map[string]Handler
	shortcuts map[string]Shortcut
	confirmer Confirmer
	recorder  Recorder
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithConfirmer sets the default confirmer. Without one every prompt is
// declined.
func WithConfirmer(c Confirmer) Option {
	return func(d *Dispatcher) { d.confirmer = c }
}

// WithShortcuts registers keyboard shortcuts
func WithShortcuts(shortcuts ...Shortcut) Option {
	return func(d *Dispatcher) {
		for _, s := range shortcuts {
			d.shortcuts[strings.ToLower(s.Combo)] = s
		}
	}
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// New creates a Dispatcher over a fixed handler table
func New(handlers map[string]Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers:  make(map[string]Handler, len(handlers)),
		shortcuts: make(map[string]Shortcut),
	}
	for id, h := range handlers {
		d.handlers[id] = h
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Actions lists the registered action identifiers
func (d *Dispatcher) Actions() []string {
	ids := make([]string, 0, len(d.handlers))
	for id := range d.handlers {
		ids = append(ids, id)
	}
	return ids
}

// Dispatch handles one interaction event. It returns the handler's error,
// or nil when the event carried no known action or was declined.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) error {
	if ev == nil || ev.Target == nil {
		return nil
	}

	actionEl := ev.Target.Closest(AttrAction)

	if prompt, ok := confirmPrompt(ev.Target, actionEl); ok {
		if !d.confirm(ev, prompt) {
			ev.PreventDefault()
			ev.StopPropagation()
			action := ""
			if actionEl != nil {
				action = actionEl.Attrs[AttrAction]
			}
			slog.Info("action declined by user", "action", action)
			d.record(action, OutcomeDeclined)
			return nil
		}
	}

	if actionEl == nil {
		return nil
	}

	req := newActionRequest(actionEl)
	handler, ok := d.handlers[req.ActionID]
	if !ok {
		slog.Debug("ignoring unknown action", "action", req.ActionID)
		d.record(req.ActionID, OutcomeUnknown)
		return nil
	}

	slog.Debug("dispatching action",
		"action", req.ActionID,
		"attributes", req.Attributes,
	)

	if err := handler(ctx, req); err != nil {
		d.record(req.ActionID, OutcomeError)
		return fmt.Errorf("action %s: %w", req.ActionID, err)
	}
	d.record(req.ActionID, OutcomeOK)
	return nil
}

// HandleKey runs the shortcut bound to the key combo, if any
func (d *Dispatcher) HandleKey(ctx context.Context, ev *KeyEvent) error {
	s, ok := d.shortcuts[ev.Combo()]
	if !ok {
		return nil
	}
	if s.PreventDefault {
		ev.PreventDefault()
	}
	return s.Run(ctx)
}

func (d *Dispatcher) confirm(ev *Event, prompt string) bool {
	c := ev.Confirm
	if c == nil {
		c = d.confirmer
	}
	if c == nil {
		return false
	}
	return c.Confirm(prompt)
}

func (d *Dispatcher) record(action, outcome string) {
	if d.recorder == nil {
		return
	}
	if _, ok := d.handlers[action]; !ok {
		action = UnregisteredAction
	}
	d.recorder.ActionDispatched(action, outcome)
}

// confirmPrompt finds a data-confirm declared between the target and the
// action element, both included. Without an action element only the
// target itself is considered.
func confirmPrompt(target, actionEl *Element) (string, bool) {
	if actionEl == nil {
		v, ok := target.Attrs[AttrConfirm]
		return v, ok
	}
	for el := target; el != nil; el = el.Parent {
		if v, ok := el.Attrs[AttrConfirm]; ok {
			return v, true
		}
		if el == actionEl {
			break
		}
	}
	return "", false
}
