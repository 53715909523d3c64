// Package display holds the kiosk's display tree: the text nodes,
// progress bars, toast stack and modals the front end renders.
//
// The Board is the single source of truth for what is on screen. The
// front end polls Snapshot() through the local bridge and renders it; it
// never keeps state of its own.
package display

import (
	"sync"
	"time"
)

// Well-known node ids bound by the controller
const (
	PresentCountID       = "presentCount"
	AttendanceProgressID = "attendanceProgress"
	LiveClockID          = "liveClock"
	StatsModalID         = "statsModal"
)

// Progress is a progress bar's fill state
type Progress struct {
	WidthPct float64 `json:"width_pct"`
	Label    string  `json:"label"`
}

// Toast is a transient feedback element attached to the toast container
type Toast struct {
	ID        string    `json:"id"`
	Severity  string    `json:"severity"`
	Icon      string    `json:"icon"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Field is one labelled value inside a modal
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Modal is a dialog shown on top of the page
type Modal struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// Snapshot is a point-in-time copy of the display tree
type Snapshot struct {
	Texts    map[string]string   `json:"texts"`
	Progress map[string]Progress `json:"progress"`
	Toasts   []Toast             `json:"toasts"`
	Modals   []Modal             `json:"modals"`
}

// Board is a concurrency-safe in-memory display tree
type Board struct {
	mu       sync.RWMutex
	texts    map[string]string
	progress map[string]Progress
	toasts   []Toast
	modals   []Modal
}

// NewBoard creates an empty display tree
func NewBoard() *Board {
	return &Board{
		texts:    make(map[string]string),
		progress: make(map[string]Progress),
	}
}

// SetText replaces the text content of a node
func (b *Board) SetText(id, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.texts[id] = text
}

// Text returns the text content of a node
func (b *Board) Text(id string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	text, ok := b.texts[id]
	return text, ok
}

// SetProgress updates a progress bar
func (b *Board) SetProgress(id string, widthPct float64, label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress[id] = Progress{WidthPct: widthPct, Label: label}
}

// Progress returns a progress bar's state
func (b *Board) Progress(id string) (Progress, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.progress[id]
	return p, ok
}

// AppendToast attaches a toast at the end of the stack
func (b *Board) AppendToast(t Toast) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toasts = append(b.toasts, t)
}

// RemoveToast detaches a toast. Returns false if it was not attached.
func (b *Board) RemoveToast(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, t := range b.toasts {
		if t.ID == id {
			b.toasts = append(b.toasts[:i], b.toasts[i+1:]...)
			return true
		}
	}
	return false
}

// Toasts returns the attached toasts, oldest first
func (b *Board) Toasts() []Toast {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Toast, len(b.toasts))
	copy(out, b.toasts)
	return out
}

// ShowModal opens a modal, replacing any open modal with the same id
func (b *Board) ShowModal(m Modal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeModalLocked(m.ID)
	b.modals = append(b.modals, m)
}

// CloseModal closes one modal. Returns false if it was not open.
func (b *Board) CloseModal(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeModalLocked(id)
}

// CloseAllModals closes every open modal and returns how many were open
func (b *Board) CloseAllModals() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.modals)
	b.modals = nil
	return n
}

// Modals returns the open modals in opening order
func (b *Board) Modals() []Modal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Modal, len(b.modals))
	copy(out, b.modals)
	return out
}

// Snapshot copies the whole display tree
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := Snapshot{
		Texts:    make(map[string]string, len(b.texts)),
		Progress: make(map[string]Progress, len(b.progress)),
		Toasts:   make([]Toast, len(b.toasts)),
		Modals:   make([]Modal, len(b.modals)),
	}
	for k, v := range b.texts {
		snap.Texts[k] = v
	}
	for k, v := range b.progress {
		snap.Progress[k] = v
	}
	copy(snap.Toasts, b.toasts)
	copy(snap.Modals, b.modals)
	return snap
}

func (b *Board) removeModalLocked(id string) bool {
	for i, m := range b.modals {
		if m.ID == id {
			b.modals = append(b.modals[:i], b.modals[i+1:]...)
			return true
		}
	}
	return false
}
