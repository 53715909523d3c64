package dispatch

import "strings"

// Declarative attributes read by the dispatcher
const (
	AttrAction  = "data-action"
	AttrConfirm = "data-confirm"
)

// Element is one node of the page as reported by the front end: its
// attributes and a link to its parent.
type Element struct {
	Tag    string
	Attrs  map[string]string
	Parent *Element
}

// NewElement creates a detached element
func NewElement(tag string, attrs map[string]string) *Element {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &Element{Tag: tag, Attrs: attrs}
}

// Append makes child a child of e and returns child
func (e *Element) Append(child *Element) *Element {
	child.Parent = e
	return child
}

// Attr returns an attribute value
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Closest returns the nearest ancestor, e included, that declares attr
func (e *Element) Closest(attr string) *Element {
	for el := e; el != nil; el = el.Parent {
		if _, ok := el.Attrs[attr]; ok {
			return el
		}
	}
	return nil
}

// Event is a UI interaction delivered to the dispatcher
type Event struct {
	Type   string
	Target *Element
	// Confirm answers confirmation prompts for this event only. When nil
	// the dispatcher's confirmer is used.
	Confirm Confirmer

	defaultPrevented   bool
	propagationStopped bool
}

// PreventDefault cancels the default behaviour of the event
func (ev *Event) PreventDefault() { ev.defaultPrevented = true }

// StopPropagation stops the event from reaching other listeners
func (ev *Event) StopPropagation() { ev.propagationStopped = true }

// DefaultPrevented reports whether PreventDefault was called
func (ev *Event) DefaultPrevented() bool { return ev.defaultPrevented }

// PropagationStopped reports whether StopPropagation was called
func (ev *Event) PropagationStopped() bool { return ev.propagationStopped }

// ActionRequest is built once per qualifying event from the declaring
// element's data-* attributes, with the "data-" prefix removed.
type ActionRequest struct {
	ActionID   string
	Attributes map[string]string
}

// Attr returns a data attribute by its short name ("course-id")
func (r ActionRequest) Attr(name string) string {
	return r.Attributes[name]
}

// AttrOr returns a data attribute or def when it is missing or empty
func (r ActionRequest) AttrOr(name, def string) string {
	if v := r.Attributes[name]; v != "" {
		return v
	}
	return def
}

func newActionRequest(el *Element) ActionRequest {
	attrs := make(map[string]string, len(el.Attrs))
	for k, v := range el.Attrs {
		if name, ok := strings.CutPrefix(k, "data-"); ok {
			attrs[name] = v
		}
	}
	return ActionRequest{
		ActionID:   el.Attrs[AttrAction],
		Attributes: attrs,
	}
}
