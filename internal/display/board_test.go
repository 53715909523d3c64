package display

import "testing"

func TestBoard_ToastOrderAndRemoval(t *testing.T) {
	b := NewBoard()
	b.AppendToast(Toast{ID: "a"})
	b.AppendToast(Toast{ID: "b"})
	b.AppendToast(Toast{ID: "c"})

	if !b.RemoveToast("b") {
		t.Fatal("Expected toast b to be removed")
	}
	if b.RemoveToast("b") {
		t.Error("Second removal of b should report false")
	}

	toasts := b.Toasts()
	if len(toasts) != 2 || toasts[0].ID != "a" || toasts[1].ID != "c" {
		t.Errorf("Expected [a c], got %+v", toasts)
	}
}

func TestBoard_ShowModalReplacesSameID(t *testing.T) {
	b := NewBoard()
	b.ShowModal(Modal{ID: StatsModalID, Title: "first"})
	b.ShowModal(Modal{ID: "other", Title: "other"})
	b.ShowModal(Modal{ID: StatsModalID, Title: "second"})

	modals := b.Modals()
	if len(modals) != 2 {
		t.Fatalf("Expected 2 modals, got %d", len(modals))
	}
	if modals[1].ID != StatsModalID || modals[1].Title != "second" {
		t.Errorf("Expected replaced stats modal last, got %+v", modals[1])
	}

	if n := b.CloseAllModals(); n != 2 {
		t.Errorf("Expected 2 closed, got %d", n)
	}
	if len(b.Modals()) != 0 {
		t.Error("Expected no modals after CloseAllModals")
	}
}

func TestBoard_SnapshotIsCopy(t *testing.T) {
	b := NewBoard()
	b.SetText(PresentCountID, "3")
	b.SetProgress(AttendanceProgressID, 30, "30.0%")

	snap := b.Snapshot()
	snap.Texts[PresentCountID] = "mutated"

	if text, _ := b.Text(PresentCountID); text != "3" {
		t.Errorf("Snapshot mutation leaked into board: %q", text)
	}
	if p, ok := b.Progress(AttendanceProgressID); !ok || p.WidthPct != 30 {
		t.Errorf("Unexpected progress %+v", p)
	}
}
