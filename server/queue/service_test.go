package queue

import (
	"math"
	"testing"
)

func newTestService(cfg Config) *Service {
	return NewService(newTestEngine(cfg), NewEMAStore(cfg.EMAAlpha))
}

func TestServiceEnqueuePosition(t *testing.T) {
	svc := newTestService(DefaultConfig())

	_, pos := svc.Enqueue("alice", Payload{"simulate_only": true})
	if pos != 0 {
		t.Errorf("first request position = %d", pos)
	}
	_, pos = svc.Enqueue("alice", Payload{"simulate_only": true})
	if pos != 1 {
		t.Errorf("second request position = %d", pos)
	}
	_, pos = svc.Enqueue("bob", Payload{"simulate_only": true})
	if pos != 0 {
		t.Errorf("other user's first position = %d", pos)
	}
}

func TestServiceMyStatusETA(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInflightPerUser = 2
	svc := newTestService(cfg)

	var third *Request
	for i := 0; i < 4; i++ {
		req, _ := svc.Enqueue("alice", Payload{"simulate_only": true})
		if i == 2 {
			third = req
		}
	}

	st := svc.MyStatus("alice", third.RequestID)
	if st.QueueLenUser != 4 || st.PositionInUser != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}
	// position/per_user * default avg = 2/2 * 20
	if math.Abs(st.ETASeconds-20) > 1e-9 {
		t.Errorf("eta = %v, want 20", st.ETASeconds)
	}
}

func TestServiceAvgPerItemPrefersEMA(t *testing.T) {
	svc := newTestService(DefaultConfig())

	if got := svc.AvgPerItemSec("alice"); got != DefaultEMASeconds {
		t.Fatalf("no data should read the default, got %v", got)
	}

	svc.Engine().pushETASample(6)
	if got := svc.AvgPerItemSec("alice"); got != 6 {
		t.Fatalf("window average should win over the default, got %v", got)
	}

	svc.EMA().Update("alice", 10)
	want := 0.2*10 + 0.8*20
	if got := svc.AvgPerItemSec("alice"); math.Abs(got-want) > 1e-9 {
		t.Errorf("per-user EMA should win once a sample exists, got %v want %v", got, want)
	}
}

func TestServiceFinishFeedsEMAOnSuccessOnly(t *testing.T) {
	svc := newTestService(DefaultConfig())

	ok1, _ := svc.Enqueue("alice", Payload{"simulate_only": true})
	bad, _ := svc.Enqueue("alice", Payload{"simulate_only": true})
	svc.Engine().Admit()

	svc.Finish(bad.RequestID, false, "boom")
	if svc.EMA().Known("alice") {
		t.Error("failure must not feed the EMA")
	}

	svc.Finish(ok1.RequestID, true, "")
	if !svc.EMA().Known("alice") {
		t.Error("success should feed the EMA")
	}
}
