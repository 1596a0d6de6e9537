package queue

import (
	"time"
)

// Status is the lifecycle state of a queued request.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusInflight Status = "inflight"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// Payload is the opaque work description carried by a request. The queue
// core only inspects the "simulate_only" key; everything else is forwarded
// verbatim to the executor.
type Payload map[string]any

// SimulateOnly reports whether the payload asks for a simulated wait
// instead of a real execution.
func (p Payload) SimulateOnly() bool {
	v, ok := p["simulate_only"].(bool)
	return ok && v
}

// Float reads a numeric payload field, tolerating the types JSON decoding
// and direct construction produce.
func (p Payload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Limits are the admission policy caps, immutable per engine instance.
type Limits struct {
	MaxInflightGlobal  int `json:"max_inflight_global"`
	MaxInflightPerUser int `json:"max_inflight_per_user"`
}

// Request is one queued unit of work for a user. Owned exclusively by the
// Repo; everything outside the Repo sees copies.
type Request struct {
	RequestID  string     `json:"request_id"`
	UserID     string     `json:"user_id"`
	Payload    Payload    `json:"payload"`
	Priority   int        `json:"priority"` // reserved; round-robin ignores it
	Status     Status     `json:"status"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	AdmittedAt *time.Time `json:"admitted_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	FailReason string     `json:"fail_reason,omitempty"`
	ETASec     *float64   `json:"eta_sec,omitempty"`
}

// UserWindow is the per-user slice of a snapshot. Expired requests are
// counted under Failed, matching the wire shape clients already consume.
type UserWindow struct {
	UserID   string `json:"user_id"`
	Queued   int    `json:"queued"`
	Inflight int    `json:"inflight"`
	Finished int    `json:"finished"`
	Failed   int    `json:"failed"`
	Canceled int    `json:"canceled"`
}

// Snapshot is a point-in-time view of the whole queue.
type Snapshot struct {
	TS             time.Time      `json:"ts"`
	Totals         map[Status]int `json:"totals"`
	InflightGlobal int            `json:"inflight_global"`
	PerUser        []UserWindow   `json:"per_user"`
	AvgFinishSec   *float64       `json:"avg_finish_sec,omitempty"`
}

// UserWindowFor returns the window for a user, or nil when the user has no
// recorded requests.
func (s *Snapshot) UserWindowFor(userID string) *UserWindow {
	for i := range s.PerUser {
		if s.PerUser[i].UserID == userID {
			return &s.PerUser[i]
		}
	}
	return nil
}

// AdmitResult is what one admission pass produced.
type AdmitResult struct {
	Admitted     []*Request `json:"admitted"`
	CapacityLeft int        `json:"capacity_left"`
}

// FinishResult reports the outcome of a finish call.
type FinishResult struct {
	RequestID   string   `json:"request_id"`
	Status      Status   `json:"status"`
	DurationSec *float64 `json:"duration_sec,omitempty"`
}

// MyStatus is the per-user view served to polling clients.
type MyStatus struct {
	PerUserLimit     int     `json:"per_user_limit"`
	GlobalLimit      int     `json:"global_limit"`
	InProgressUser   int     `json:"in_progress_user"`
	InProgressGlobal int     `json:"in_progress_global"`
	QueueLenUser     int     `json:"queue_len_user"`
	PositionInUser   int     `json:"position_in_user"`
	ETASeconds       float64 `json:"eta_seconds"`
}
