package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Periodic runs a function every interval until stopped. The first run
// happens one full interval after Start. Runs never overlap; a slow run
// delays the next one instead of stacking up.
type Periodic struct {
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	token    string
	interval time.Duration
}

// Start schedules fn. It fails if the task is already running.
func (p *Periodic) Start(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval: %v", interval)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return fmt.Errorf("task already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.token = uuid.New().String()
	p.interval = interval

	go p.loop(runCtx, interval, fn, p.done)
	return nil
}

// Stop cancels future runs and waits for an in-flight run to return.
// Returns false if the task was not running.
func (p *Periodic) Stop() bool {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.done = nil
	p.token = ""
	p.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

// Running reports whether the task is scheduled
func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Token identifies the current run; empty when stopped
func (p *Periodic) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// Interval returns the interval of the current or last run
func (p *Periodic) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func (p *Periodic) loop(ctx context.Context, interval time.Duration, fn func(ctx context.Context), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Stop may race with a ready tick; cancellation wins
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}
	}
}
