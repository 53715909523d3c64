package notify

import (
	"testing"
	"time"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/display"
)

func TestSeverity_Icon(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{Success, "check-circle"},
		{Danger, "exclamation-triangle"},
		{Warning, "exclamation-circle"},
		{Info, "info-circle"},
		{Severity("primary"), "info-circle"},
		{Severity(""), "info-circle"},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			if got := tt.severity.Icon(); got != tt.want {
				t.Errorf("Expected icon %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNotify_AttachesToastWithIcon(t *testing.T) {
	board := display.NewBoard()
	n := New(board)
	defer n.DismissAll()

	id := n.Notify(Message{Text: "saved", Severity: Success, Duration: time.Minute})

	toasts := board.Toasts()
	if len(toasts) != 1 {
		t.Fatalf("Expected 1 toast, got %d", len(toasts))
	}
	if toasts[0].ID != id || toasts[0].Icon != "check-circle" || toasts[0].Text != "saved" {
		t.Errorf("Unexpected toast %+v", toasts[0])
	}
}

func TestNotify_AutoDismissAfterDuration(t *testing.T) {
	board := display.NewBoard()
	n := New(board)

	start := time.Now()
	n.Notify(Message{Text: "bye", Severity: Info, Duration: 50 * time.Millisecond})

	deadline := time.After(1 * time.Second)
	for len(board.Toasts()) > 0 {
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for toast dismissal")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Toast dismissed too early: %v", elapsed)
	}
	if n.Pending() != 0 {
		t.Errorf("Expected 0 pending, got %d", n.Pending())
	}
}

func TestNotify_DefaultDuration(t *testing.T) {
	board := display.NewBoard()
	n := New(board, WithDefaultDuration(30*time.Millisecond))

	n.Info("short")

	select {
	case <-waitEmpty(board):
	case <-time.After(1 * time.Second):
		t.Fatal("Default duration was not applied")
	}
}

func TestDismiss_DoesNotAffectOthers(t *testing.T) {
	board := display.NewBoard()
	n := New(board)
	defer n.DismissAll()

	first := n.Notify(Message{Text: "one", Duration: time.Minute})
	second := n.Notify(Message{Text: "two", Duration: time.Minute})
	third := n.Notify(Message{Text: "three", Duration: time.Minute})

	if !n.Dismiss(second) {
		t.Fatal("Expected dismissal to succeed")
	}
	if n.Dismiss(second) {
		t.Error("Second dismissal should be a no-op")
	}

	toasts := board.Toasts()
	if len(toasts) != 2 || toasts[0].ID != first || toasts[1].ID != third {
		t.Errorf("Expected [first third] in order, got %+v", toasts)
	}
}

func TestNotify_NoLeakAcrossRepeatedCalls(t *testing.T) {
	board := display.NewBoard()
	n := New(board)

	for i := 0; i < 100; i++ {
		n.Notify(Message{Text: "burst", Severity: Warning, Duration: 10 * time.Millisecond})
	}

	select {
	case <-waitEmpty(board):
	case <-time.After(2 * time.Second):
		t.Fatalf("Leaked toasts: %d still attached", len(board.Toasts()))
	}
	if n.Pending() != 0 {
		t.Errorf("Expected no pending timers, got %d", n.Pending())
	}
}

func TestSubscribe_NonBlockingDelivery(t *testing.T) {
	board := display.NewBoard()
	n := New(board)
	defer n.DismissAll()

	ch := make(chan Event, 1)
	if err := n.Subscribe("mirror", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := n.Subscribe("mirror", ch); err == nil {
		t.Error("Expected duplicate subscription to fail")
	}

	done := make(chan struct{})
	go func() {
		n.Danger("first")
		n.Danger("second")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Notify blocked on a full subscriber")
	}

	ev := <-ch
	if ev.Message.Text != "first" || ev.Message.Severity != Danger {
		t.Errorf("Unexpected event %+v", ev)
	}

	stats := n.Stats()["mirror"]
	if stats.Sent != 1 || stats.Dropped != 1 {
		t.Errorf("Expected 1 sent 1 dropped, got %+v", stats)
	}
}

type countingRecorder struct {
	counts map[string]int
}

func (r *countingRecorder) NotificationShown(severity string) {
	r.counts[severity]++
}

func TestNotify_Recorder(t *testing.T) {
	rec := &countingRecorder{counts: map[string]int{}}
	n := New(display.NewBoard(), WithRecorder(rec))
	defer n.DismissAll()

	n.Success("a")
	n.Success("b")
	n.Danger("c")

	if rec.counts["success"] != 2 || rec.counts["danger"] != 1 {
		t.Errorf("Unexpected counts %v", rec.counts)
	}
}

func waitEmpty(board *display.Board) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for len(board.Toasts()) > 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}()
	return done
}
