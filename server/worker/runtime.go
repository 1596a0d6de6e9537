package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hirecraft/jdqueue/server/observability"
	"github.com/hirecraft/jdqueue/server/queue"
)

// Executor runs one admitted payload. It may block; errors become a failed
// finish with the error text as reason.
type Executor interface {
	Execute(ctx context.Context, payload queue.Payload) error
}

const idleInterval = 200 * time.Millisecond

// Runtime is the background loop that decouples enqueue from execution: it
// repeatedly asks the engine to admit and dispatches one goroutine per
// admitted request.
type Runtime struct {
	svc      *queue.Service
	executor Executor
	progress *ProgressTracker

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewRuntime(svc *queue.Service, executor Executor) *Runtime {
	if executor == nil {
		executor = NewSimExecutor()
	}
	return &Runtime{
		svc:      svc,
		executor: executor,
		progress: NewProgressTracker(),
	}
}

func (r *Runtime) Queue() *queue.Service      { return r.svc }
func (r *Runtime) Progress() *ProgressTracker { return r.progress }

// Start launches the admission loop. Calling Start twice is a no-op.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true
	go r.loop(ctx)
}

// Stop cancels the loop. Already-spawned executors finish naturally.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done
}

func (r *Runtime) loop(ctx context.Context) {
	defer close(r.done)
	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		res := r.svc.Engine().Admit()
		observability.WorkerLoopDuration.Observe(time.Since(start).Seconds())

		if len(res.Admitted) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleInterval):
			}
			continue
		}
		for _, it := range res.Admitted {
			go r.runOne(ctx, it.RequestID, it.Payload)
		}
	}
}

func (r *Runtime) runOne(ctx context.Context, requestID string, payload queue.Payload) {
	t0 := time.Now()
	err := r.executor.Execute(ctx, payload)
	dur := time.Since(t0)

	if err != nil {
		log.Printf("executor failed for request %s after %.2fs: %v", requestID, dur.Seconds(), err)
		r.svc.Finish(requestID, false, err.Error())
		return
	}
	r.svc.Finish(requestID, true, "")
}
