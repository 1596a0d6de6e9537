package worker

import (
	"math"
	"testing"
)

func TestProgressBaselineGrows(t *testing.T) {
	p := NewProgressTracker()

	p.Observe("alice", 8, 2)
	if got := p.BaselineTotal("alice"); got != 10 {
		t.Fatalf("initial baseline = %d", got)
	}

	// Half the work drains.
	p.Observe("alice", 3, 2)
	if got := p.BaselineTotal("alice"); got != 10 {
		t.Errorf("baseline should hold at 10, got %d", got)
	}

	// More work arrives than was ever observed at once; the baseline grows
	// to the new active count.
	p.Observe("alice", 9, 2)
	if got := p.BaselineTotal("alice"); got != 11 {
		t.Errorf("baseline should grow to 11, got %d", got)
	}
}

func TestProgressWaitPercent(t *testing.T) {
	p := NewProgressTracker()

	p.Observe("alice", 10, 0)
	if got := p.WaitPercent("alice", 10, 0); got != 0 {
		t.Errorf("fresh queue should read 0%%, got %v", got)
	}

	p.Observe("alice", 5, 0)
	if got := p.WaitPercent("alice", 5, 0); math.Abs(got-50) > 1e-9 {
		t.Errorf("half drained should read 50%%, got %v", got)
	}

	// Two new arrivals: percent is recomputed against the same baseline,
	// never against only the new work.
	p.Observe("alice", 7, 0)
	if got := p.WaitPercent("alice", 7, 0); math.Abs(got-30) > 1e-9 {
		t.Errorf("expected 30%% against the held baseline, got %v", got)
	}
}

func TestProgressEmptyResets(t *testing.T) {
	p := NewProgressTracker()

	p.Observe("alice", 4, 0)
	p.Observe("alice", 0, 0)
	if got := p.BaselineTotal("alice"); got != 0 {
		t.Errorf("empty queue should clear the context, baseline = %d", got)
	}
	if got := p.WaitPercent("alice", 0, 0); got != 100 {
		t.Errorf("no work and no baseline should read 100%%, got %v", got)
	}
	if got := p.WaitPercent("bob", 1, 0); got != 0 {
		t.Errorf("work with no baseline should read 0%%, got %v", got)
	}
}
