package refresh

import "testing"

func TestTrackerInvariants(t *testing.T) {
	var snaps []Progress
	tr := newTracker(4, func(p Progress) { snaps = append(snaps, p) })

	tr.publish()
	tr.settle(true)
	tr.settle(false)
	tr.settle(true)
	tr.settle(true)
	tr.publish()

	if len(snaps) != 6 {
		t.Fatalf("snapshots: got %d, want 6", len(snaps))
	}

	for i, p := range snaps {
		if p.Success+p.Failed != p.Completed {
			t.Errorf("snapshot %d: success+failed=%d, completed=%d", i, p.Success+p.Failed, p.Completed)
		}
		if p.Completed < 0 || p.Completed > p.Total {
			t.Errorf("snapshot %d: completed %d out of range [0,%d]", i, p.Completed, p.Total)
		}
	}

	final := snaps[len(snaps)-1]
	if final.Completed != 4 || final.Success != 3 || final.Failed != 1 {
		t.Errorf("final: got %+v", final)
	}
	if final.Stopped {
		t.Error("stopped must be false for a completed run")
	}
}

func TestTrackerMarkStopped(t *testing.T) {
	tr := newTracker(10, nil)
	tr.settle(true)
	tr.markStopped(true)

	p := tr.snapshot()
	if !p.Stopped {
		t.Error("expected stopped")
	}
	if p.Completed != 1 {
		t.Errorf("completed: got %d, want 1", p.Completed)
	}
}

func TestTrackerNilSink(t *testing.T) {
	tr := newTracker(1, nil)
	// Must not panic.
	tr.publish()
	tr.settle(true)
}
