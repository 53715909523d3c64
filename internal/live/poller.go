// Package live keeps the live attendance display current by polling the
// backend on a fixed interval.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/api"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/display"
)

// DefaultInterval is the polling interval when none is given
const DefaultInterval = 5 * time.Second

// ErrStatsInvariant marks a response where present > total (or negative counts)
var ErrStatsInvariant = errors.New("live stats violate present <= total")

// StatsSource fetches live counters for a course
type StatsSource interface {
	FetchLiveStats(ctx context.Context, courseID string) (*api.LiveStats, error)
}

// Display is the part of the display tree the poller writes to
type Display interface {
	SetText(id, text string)
	SetProgress(id string, widthPct float64, label string)
}

// Recorder observes ticks (metrics)
type Recorder interface {
	PollTick(courseID, outcome string)
}

// Tick outcomes
const (
	TickOK       = "ok"
	TickFailed   = "failed"
	TickRejected = "rejected"
	TickSkipped  = "skipped"
)

// State of a poller
type State int

const (
	Stopped State = iota
	Running
)

// String returns a human-readable representation of the state
func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Handle describes an active poll
type Handle struct {
	CourseID    string        `json:"course_id"`
	Interval    time.Duration `json:"interval"`
	CancelToken string        `json:"cancel_token"`
}

// Stats counts ticks since the poller was created
type Stats struct {
	Ticks    uint64
	Failures uint64
	Rejected uint64
}

// Poller refreshes the live counters of one course
type Poller struct {
	courseID       string
	source         StatsSource
	display        Display
	recorder       Recorder
	requestTimeout time.Duration
	countID        string
	progressID     string

	task     Periodic
	ticks    atomic.Uint64
	failures atomic.Uint64
	rejected atomic.Uint64
}

// Option configures a Poller
type Option func(*Poller)

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(p *Poller) { p.recorder = r }
}

// WithRequestTimeout bounds each tick's fetch
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Poller) { p.requestTimeout = d }
}

// WithDisplayIDs binds the present-count and progress nodes
func WithDisplayIDs(countID, progressID string) Option {
	return func(p *Poller) {
		p.countID = countID
		p.progressID = progressID
	}
}

// NewPoller creates a stopped poller for courseID
func NewPoller(courseID string, source StatsSource, disp Display, opts ...Option) *Poller {
	p := &Poller{
		courseID:       courseID,
		source:         source,
		display:        disp,
		requestTimeout: 10 * time.Second,
		countID:        display.PresentCountID,
		progressID:     display.AttendanceProgressID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CourseID returns the monitored course
func (p *Poller) CourseID() string {
	return p.courseID
}

// Start moves the poller to Running. The first fetch happens one full
// interval later. A non-positive interval means DefaultInterval.
func (p *Poller) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	if err := p.task.Start(ctx, interval, p.tick); err != nil {
		return fmt.Errorf("live poller %s: %w", p.courseID, err)
	}

	slog.Info("live attendance polling started",
		"course_id", p.courseID,
		"interval", interval,
		"cancel_token", p.task.Token(),
	)
	return nil
}

// Stop cancels the schedule. A tick already in flight finishes first.
// Calling Stop on a stopped poller does nothing.
func (p *Poller) Stop() {
	if p.task.Stop() {
		slog.Info("live attendance polling stopped",
			"course_id", p.courseID,
			"ticks", p.ticks.Load(),
			"failures", p.failures.Load(),
		)
	}
}

// State returns Running or Stopped
func (p *Poller) State() State {
	if p.task.Running() {
		return Running
	}
	return Stopped
}

// Handle returns the active poll's handle; ok is false when stopped
func (p *Poller) Handle() (Handle, bool) {
	token := p.task.Token()
	if token == "" {
		return Handle{}, false
	}
	return Handle{CourseID: p.courseID, Interval: p.task.Interval(), CancelToken: token}, true
}

// Stats returns tick counters
func (p *Poller) Stats() Stats {
	return Stats{
		Ticks:    p.ticks.Load(),
		Failures: p.failures.Load(),
		Rejected: p.rejected.Load(),
	}
}

// tick runs one fetch. The request is not tied to the schedule's
// cancellation: stopping prevents the next tick, not the current one.
func (p *Poller) tick(ctx context.Context) {
	p.ticks.Add(1)

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.requestTimeout)
	defer cancel()

	stats, err := p.source.FetchLiveStats(reqCtx, p.courseID)
	if err != nil {
		p.failures.Add(1)
		p.record(TickFailed)
		// Logged only; a notification per tick would flood the screen
		slog.Warn("live attendance update failed",
			"course_id", p.courseID,
			"error", err,
		)
		return
	}

	if err := ApplyStats(p.display, p.countID, p.progressID, *stats); err != nil {
		p.rejected.Add(1)
		p.record(TickRejected)
		slog.Error("live attendance stats rejected",
			"course_id", p.courseID,
			"present_count", stats.PresentCount,
			"total_students", stats.TotalStudents,
			"error", err,
		)
		return
	}

	if stats.TotalStudents == 0 {
		p.record(TickSkipped)
		return
	}
	p.record(TickOK)
}

func (p *Poller) record(outcome string) {
	if p.recorder != nil {
		p.recorder.PollTick(p.courseID, outcome)
	}
}

// AttendancePercent returns present/total as a percentage rounded to one
// decimal. ok is false when total is zero.
func AttendancePercent(present, total int) (pct float64, ok bool) {
	if total == 0 {
		return 0, false
	}
	return math.Round(float64(present)/float64(total)*1000) / 10, true
}

// ApplyStats writes stats to the bound nodes. Invalid stats return
// ErrStatsInvariant and leave the display untouched; a course without
// students also leaves it untouched.
func ApplyStats(d Display, countID, progressID string, stats api.LiveStats) error {
	if stats.PresentCount < 0 || stats.TotalStudents < 0 || stats.PresentCount > stats.TotalStudents {
		return fmt.Errorf("%w: present=%d total=%d", ErrStatsInvariant, stats.PresentCount, stats.TotalStudents)
	}

	pct, ok := AttendancePercent(stats.PresentCount, stats.TotalStudents)
	if !ok {
		return nil
	}

	d.SetText(countID, strconv.Itoa(stats.PresentCount))
	d.SetProgress(progressID, pct, strconv.FormatFloat(pct, 'f', 1, 64)+"%")
	return nil
}
