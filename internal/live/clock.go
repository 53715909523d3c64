package live

import (
	"context"
	"time"
)

// ClockLayout is the format of the live clock
const ClockLayout = "15:04:05"

// Clock writes the current time into a text node on an interval
type Clock struct {
	display Display
	nodeID  string
	now     func() time.Time
	task    Periodic
}

// NewClock creates a stopped clock bound to nodeID
func NewClock(d Display, nodeID string) *Clock {
	return &Clock{display: d, nodeID: nodeID, now: time.Now}
}

// Start shows the time immediately and refreshes it every interval
func (c *Clock) Start(ctx context.Context, interval time.Duration) error {
	c.update(ctx)
	return c.task.Start(ctx, interval, c.update)
}

// Stop halts the refresh. Safe to call when stopped.
func (c *Clock) Stop() {
	c.task.Stop()
}

func (c *Clock) update(context.Context) {
	c.display.SetText(c.nodeID, c.now().Format(ClockLayout))
}
