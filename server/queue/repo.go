package queue

import (
	"sync"
	"time"
)

// Repo owns the request records and per-user FIFO queues. All methods are
// safe for concurrent use.
type Repo interface {
	Add(req *Request)
	Get(requestID string) (*Request, bool)
	MarkAdmitted(requestID string) (*Request, bool)
	SetETA(requestID string, etaSec *float64)
	MarkFinished(requestID string, ok bool, reason string) (*Request, bool)
	Cancel(requestID string, reason string) (*Request, bool)
	Expire(requestID string, reason string) (*Request, bool)
	PeekUserQueue(userID string) (string, bool)
	DequeueForUser(userID string) (string, bool)
	InflightCountGlobal() int
	InflightCountUser(userID string) int
	ListUserIDs() []string
	UserQueueIDs(userID string) []string
	StatsSnapshot(avgFinishSec *float64) *Snapshot
}

type userQueues struct {
	queued   []string
	inflight int
}

// MemoryRepo is the single-process, in-memory Repo. Multi-worker
// deployments would need a shared backend instead.
type MemoryRepo struct {
	mu             sync.Mutex
	items          map[string]*Request
	byUser         map[string]*userQueues
	userOrder      []string // first-enqueue order, keeps admission passes deterministic
	inflightGlobal int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		items:  make(map[string]*Request),
		byUser: make(map[string]*userQueues),
	}
}

func (r *MemoryRepo) user(userID string) *userQueues {
	uq, ok := r.byUser[userID]
	if !ok {
		uq = &userQueues{}
		r.byUser[userID] = uq
		r.userOrder = append(r.userOrder, userID)
	}
	return uq
}

func (r *MemoryRepo) Add(req *Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[req.RequestID] = req
	uq := r.user(req.UserID)
	uq.queued = append(uq.queued, req.RequestID)
}

// Get returns a copy of the record so callers never alias Repo-owned state.
func (r *MemoryRepo) Get(requestID string) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[requestID]
	if !ok {
		return nil, false
	}
	cp := *it
	return &cp, true
}

// MarkAdmitted transitions queued -> inflight. Any other starting state is a
// no-op returning the current record.
func (r *MemoryRepo) MarkAdmitted(requestID string) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[requestID]
	if !ok {
		return nil, false
	}
	if it.Status != StatusQueued {
		cp := *it
		return &cp, true
	}
	now := time.Now().UTC()
	it.Status = StatusInflight
	it.AdmittedAt = &now
	r.user(it.UserID).inflight++
	r.inflightGlobal++
	cp := *it
	return &cp, true
}

// SetETA stores the estimate stamped at admission so later Status reads
// still see it.
func (r *MemoryRepo) SetETA(requestID string, etaSec *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if it, ok := r.items[requestID]; ok {
		it.ETASec = etaSec
	}
}

// MarkFinished transitions inflight -> finished|failed. A still-queued
// record is finished defensively (removed from its FIFO without touching
// the inflight counters). Terminal records are returned unchanged.
func (r *MemoryRepo) MarkFinished(requestID string, ok bool, reason string) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, found := r.items[requestID]
	if !found {
		return nil, false
	}
	if it.Status.Terminal() {
		cp := *it
		return &cp, true
	}

	wasInflight := it.Status == StatusInflight
	wasQueued := it.Status == StatusQueued

	now := time.Now().UTC()
	if ok {
		it.Status = StatusFinished
		it.FailReason = ""
	} else {
		it.Status = StatusFailed
		if reason == "" {
			reason = "failed"
		}
		it.FailReason = reason
	}
	it.FinishedAt = &now

	if wasInflight {
		uq := r.user(it.UserID)
		if uq.inflight > 0 {
			uq.inflight--
		}
		if r.inflightGlobal > 0 {
			r.inflightGlobal--
		}
	}
	if wasQueued {
		r.removeQueuedLocked(it.UserID, requestID)
	}
	cp := *it
	return &cp, true
}

// Cancel transitions queued -> canceled and removes the id from its FIFO.
func (r *MemoryRepo) Cancel(requestID string, reason string) (*Request, bool) {
	return r.dropQueued(requestID, StatusCanceled, reason)
}

// Expire transitions queued -> expired. Only the engine's TTL sweep calls
// this.
func (r *MemoryRepo) Expire(requestID string, reason string) (*Request, bool) {
	return r.dropQueued(requestID, StatusExpired, reason)
}

func (r *MemoryRepo) dropQueued(requestID string, to Status, reason string) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[requestID]
	if !ok {
		return nil, false
	}
	if it.Status != StatusQueued {
		cp := *it
		return &cp, true
	}
	it.Status = to
	it.FailReason = reason
	r.removeQueuedLocked(it.UserID, requestID)
	cp := *it
	return &cp, true
}

func (r *MemoryRepo) removeQueuedLocked(userID, requestID string) {
	uq, ok := r.byUser[userID]
	if !ok {
		return
	}
	for i, id := range uq.queued {
		if id == requestID {
			uq.queued = append(uq.queued[:i], uq.queued[i+1:]...)
			return
		}
	}
}

func (r *MemoryRepo) PeekUserQueue(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uq, ok := r.byUser[userID]
	if !ok || len(uq.queued) == 0 {
		return "", false
	}
	return uq.queued[0], true
}

func (r *MemoryRepo) DequeueForUser(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uq, ok := r.byUser[userID]
	if !ok || len(uq.queued) == 0 {
		return "", false
	}
	id := uq.queued[0]
	uq.queued = uq.queued[1:]
	return id, true
}

func (r *MemoryRepo) InflightCountGlobal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflightGlobal
}

func (r *MemoryRepo) InflightCountUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	uq, ok := r.byUser[userID]
	if !ok {
		return 0
	}
	return uq.inflight
}

// ListUserIDs returns users with queued or inflight work.
func (r *MemoryRepo) ListUserIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.byUser))
	for _, uid := range r.userOrder {
		uq := r.byUser[uid]
		if len(uq.queued) > 0 || uq.inflight > 0 {
			ids = append(ids, uid)
		}
	}
	return ids
}

// UserQueueIDs returns the ordered queued ids for a user (position lookup).
func (r *MemoryRepo) UserQueueIDs(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	uq, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]string, len(uq.queued))
	copy(out, uq.queued)
	return out
}

func (r *MemoryRepo) StatsSnapshot(avgFinishSec *float64) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	totals := make(map[Status]int)
	perUser := make(map[string]*UserWindow)

	for _, it := range r.items {
		totals[it.Status]++
		uw, ok := perUser[it.UserID]
		if !ok {
			uw = &UserWindow{UserID: it.UserID}
			perUser[it.UserID] = uw
		}
		switch it.Status {
		case StatusQueued:
			uw.Queued++
		case StatusInflight:
			uw.Inflight++
		case StatusFinished:
			uw.Finished++
		case StatusFailed, StatusExpired:
			uw.Failed++
		case StatusCanceled:
			uw.Canceled++
		}
	}

	windows := make([]UserWindow, 0, len(perUser))
	for _, uw := range perUser {
		windows = append(windows, *uw)
	}

	return &Snapshot{
		TS:             time.Now().UTC(),
		Totals:         totals,
		InflightGlobal: totals[StatusInflight],
		PerUser:        windows,
		AvgFinishSec:   avgFinishSec,
	}
}
