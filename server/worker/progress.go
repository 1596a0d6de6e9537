package worker

import (
	"sync"
	"time"
)

type progressCtx struct {
	startedTS     float64
	baselineTotal int
}

// ProgressTracker remembers, per user, the largest amount of work observed
// at once. Displayed wait percentages are computed against that baseline so
// they never regress when new requests arrive mid-task.
type ProgressTracker struct {
	mu   sync.Mutex
	ctxs map[string]*progressCtx
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{ctxs: make(map[string]*progressCtx)}
}

// Observe updates the user's baseline from the current queued+inflight
// counts. An empty queue resets the context.
func (p *ProgressTracker) Observe(userID string, queued, inflight int) {
	active := queued + inflight

	p.mu.Lock()
	defer p.mu.Unlock()

	if active <= 0 {
		delete(p.ctxs, userID)
		return
	}

	ctx, ok := p.ctxs[userID]
	if !ok {
		p.ctxs[userID] = &progressCtx{
			startedTS:     float64(time.Now().UnixNano()) / 1e9,
			baselineTotal: active,
		}
		return
	}

	// baseline grows so completed + active never shrinks the percent
	completed := ctx.baselineTotal - active
	if completed < 0 {
		completed = 0
	}
	if nb := active + completed; nb > ctx.baselineTotal {
		ctx.baselineTotal = nb
	}
}

// BaselineTotal returns the remembered baseline, 0 when none.
func (p *ProgressTracker) BaselineTotal(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx, ok := p.ctxs[userID]; ok {
		return ctx.baselineTotal
	}
	return 0
}

// WaitPercent maps the user's remaining work against the baseline: 0 when
// work just appeared, 100 when everything observed has drained.
func (p *ProgressTracker) WaitPercent(userID string, queued, inflight int) float64 {
	active := queued + inflight
	base := p.BaselineTotal(userID)
	if base <= 0 {
		if active > 0 {
			return 0
		}
		return 100
	}
	completed := base - active
	if completed < 0 {
		completed = 0
	}
	pct := float64(completed) / float64(base) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
