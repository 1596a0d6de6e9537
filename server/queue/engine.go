package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine composes the Repo, the scheduler and the metrics sink. It owns the
// request state machine, TTL expiry of stale queued items, and the sliding
// window of finish durations used for ETA.
type Engine struct {
	repo      Repo
	scheduler *RoundRobinScheduler
	config    Config
	metrics   Metrics

	mu         sync.Mutex
	etaSamples []float64
}

func NewEngine(repo Repo, scheduler *RoundRobinScheduler, cfg Config, metrics Metrics) *Engine {
	if repo == nil {
		repo = NewMemoryRepo()
	}
	if scheduler == nil {
		scheduler = NewRoundRobinScheduler()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Engine{
		repo:      repo,
		scheduler: scheduler,
		config:    cfg,
		metrics:   metrics,
	}
}

func (e *Engine) Config() Config { return e.config }

// Enqueue creates a fresh queued request for the user. It never fails.
func (e *Engine) Enqueue(userID string, payload Payload) *Request {
	req := &Request{
		RequestID:  uuid.NewString(),
		UserID:     userID,
		Payload:    payload,
		Status:     StatusQueued,
		EnqueuedAt: time.Now().UTC(),
	}
	e.repo.Add(req)
	e.metrics.ObserveEnqueue(userID)
	cp := *req
	return &cp
}

// Admit expires stale queued items, then asks the scheduler for the next
// batch and marks each selection inflight. Admitted records carry the
// current window-average ETA (nil until the first finish lands).
func (e *Engine) Admit() *AdmitResult {
	e.expireQueued()

	ids := e.scheduler.SelectAdmissions(e.repo, e.config.Limits(), e.config.AdmitBatchSize)
	eta := e.AvgFinishSec()

	admitted := make([]*Request, 0, len(ids))
	for _, id := range ids {
		it, ok := e.repo.MarkAdmitted(id)
		if !ok || it.Status != StatusInflight {
			continue
		}
		e.repo.SetETA(id, eta)
		it.ETASec = eta
		admitted = append(admitted, it)
		e.metrics.ObserveAdmit(it.UserID)
	}

	capacityLeft := e.config.MaxInflightGlobal - e.repo.InflightCountGlobal()
	if capacityLeft < 0 {
		capacityLeft = 0
	}
	return &AdmitResult{Admitted: admitted, CapacityLeft: capacityLeft}
}

// Finish records a terminal outcome for an inflight request. Successful
// finishes with a known admission time feed the ETA window; failures do
// not, so one slow crash cannot poison the estimate.
func (e *Engine) Finish(requestID string, ok bool, reason string) *FinishResult {
	it, found := e.repo.MarkFinished(requestID, ok, reason)
	if !found {
		return &FinishResult{RequestID: requestID, Status: StatusCanceled}
	}

	var dur *float64
	if it.AdmittedAt != nil && it.FinishedAt != nil {
		d := it.FinishedAt.Sub(*it.AdmittedAt).Seconds()
		dur = &d
		if ok {
			e.pushETASample(d)
		}
	}
	e.metrics.ObserveFinish(it.UserID, ok, dur)
	return &FinishResult{RequestID: requestID, Status: it.Status, DurationSec: dur}
}

// Cancel drops a still-queued request. Terminal and inflight requests are
// returned unchanged; cancel is idempotent.
func (e *Engine) Cancel(requestID, reason string) Status {
	it, ok := e.repo.Cancel(requestID, reason)
	if !ok {
		return StatusCanceled
	}
	return it.Status
}

// Status returns the current record for a request id.
func (e *Engine) Status(requestID string) (*Request, bool) {
	return e.repo.Get(requestID)
}

// Snapshot assembles aggregate stats plus the window-average finish time.
func (e *Engine) Snapshot() *Snapshot {
	snap := e.repo.StatsSnapshot(e.AvgFinishSec())
	e.metrics.GaugeInflightGlobal(snap.InflightGlobal)
	return snap
}

// expireQueued walks every user's queue head and drops entries older than
// the queued TTL. This is the only path by which a queued item becomes
// terminal without admission or an explicit cancel.
func (e *Engine) expireQueued() {
	ttl := time.Duration(e.config.QueuedTTLSec) * time.Second
	now := time.Now().UTC()

	for _, uid := range e.repo.ListUserIDs() {
		for {
			rid, ok := e.repo.PeekUserQueue(uid)
			if !ok {
				break
			}
			it, ok := e.repo.Get(rid)
			if !ok {
				break
			}
			if now.Sub(it.EnqueuedAt) <= ttl {
				break
			}
			e.repo.Expire(rid, "ttl_expired")
			e.metrics.ObserveExpire(uid)
		}
	}
}

func (e *Engine) pushETASample(dur float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.etaSamples = append(e.etaSamples, dur)
	if n := len(e.etaSamples); n > e.config.ETAWindow {
		e.etaSamples = e.etaSamples[n-e.config.ETAWindow:]
	}
}

// AvgFinishSec is the arithmetic mean of the sample window, nil when empty.
func (e *Engine) AvgFinishSec() *float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.etaSamples) == 0 {
		return nil
	}
	var sum float64
	for _, s := range e.etaSamples {
		sum += s
	}
	avg := sum / float64(len(e.etaSamples))
	return &avg
}
