package queue

import (
	"math"
	"testing"
	"time"
)

func newTestEngine(cfg Config) *Engine {
	return NewEngine(NewMemoryRepo(), NewRoundRobinScheduler(), cfg, NoopMetrics{})
}

func TestEngineLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(cfg)

	req := e.Enqueue("alice", Payload{"simulate_only": true})
	if req.Status != StatusQueued || req.RequestID == "" {
		t.Fatalf("unexpected enqueue result: %+v", req)
	}

	res := e.Admit()
	if len(res.Admitted) != 1 {
		t.Fatalf("expected 1 admission, got %d", len(res.Admitted))
	}
	if res.Admitted[0].Status != StatusInflight {
		t.Errorf("admitted status = %s", res.Admitted[0].Status)
	}
	if res.CapacityLeft != cfg.MaxInflightGlobal-1 {
		t.Errorf("capacity left = %d", res.CapacityLeft)
	}

	fin := e.Finish(req.RequestID, true, "")
	if fin.Status != StatusFinished {
		t.Errorf("finish status = %s", fin.Status)
	}
	if fin.DurationSec == nil {
		t.Error("finish of an admitted request should report a duration")
	}
	if e.AvgFinishSec() == nil {
		t.Error("successful finish should feed the ETA window")
	}
}

func TestEngineFailureDoesNotFeedETA(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	req := e.Enqueue("alice", Payload{"simulate_only": true})
	e.Admit()

	fin := e.Finish(req.RequestID, false, "boom")
	if fin.Status != StatusFailed {
		t.Fatalf("finish status = %s", fin.Status)
	}
	if e.AvgFinishSec() != nil {
		t.Error("failed finish must not feed the ETA window")
	}
}

func TestEngineTTLExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueuedTTLSec = 0
	e := newTestEngine(cfg)

	req := e.Enqueue("alice", Payload{"simulate_only": true})
	time.Sleep(10 * time.Millisecond)

	res := e.Admit()
	if len(res.Admitted) != 0 {
		t.Fatalf("stale request should not be admitted, got %d", len(res.Admitted))
	}

	it, ok := e.Status(req.RequestID)
	if !ok {
		t.Fatal("request record vanished")
	}
	if it.Status != StatusExpired {
		t.Errorf("status = %s, want expired", it.Status)
	}
	if it.FailReason != "ttl_expired" {
		t.Errorf("reason = %q, want ttl_expired", it.FailReason)
	}
}

func TestEngineETAWindowSlides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ETAWindow = 2
	e := newTestEngine(cfg)

	e.pushETASample(10)
	e.pushETASample(20)
	e.pushETASample(30)

	avg := e.AvgFinishSec()
	if avg == nil {
		t.Fatal("expected an average")
	}
	if math.Abs(*avg-25) > 1e-9 {
		t.Errorf("window should keep the 2 newest samples, avg = %v", *avg)
	}
}

func TestEngineCancelIdempotent(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	req := e.Enqueue("alice", Payload{"simulate_only": true})

	if st := e.Cancel(req.RequestID, "client_cancel"); st != StatusCanceled {
		t.Errorf("first cancel = %s", st)
	}
	if st := e.Cancel(req.RequestID, "client_cancel"); st != StatusCanceled {
		t.Errorf("second cancel = %s", st)
	}
	if st := e.Cancel("no-such-id", "x"); st != StatusCanceled {
		t.Errorf("cancel of unknown id = %s", st)
	}
}

func TestEngineAdmittedCarriesETA(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	e.pushETASample(4)

	req := e.Enqueue("alice", Payload{"simulate_only": true})
	res := e.Admit()
	if len(res.Admitted) != 1 {
		t.Fatal("expected one admission")
	}
	if res.Admitted[0].ETASec == nil || *res.Admitted[0].ETASec != 4 {
		t.Errorf("admitted record should carry the window average, got %v", res.Admitted[0].ETASec)
	}

	// The estimate is persisted, not just stamped on the returned copy.
	it, ok := e.Status(req.RequestID)
	if !ok {
		t.Fatal("request record vanished")
	}
	if it.ETASec == nil || *it.ETASec != 4 {
		t.Errorf("stored record should keep the admission estimate, got %v", it.ETASec)
	}
}
