package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/hirecraft/jdqueue/server/queue"
	"github.com/hirecraft/jdqueue/server/stream"
	"github.com/hirecraft/jdqueue/server/task"
)

var errWaitTimeout = errors.New("timed out waiting for simulated requests")

const (
	pollInterval       = time.Second
	defaultWaitTimeout = 10 * time.Minute
	webhookTimeout     = 10 * time.Second
)

// Orchestrator drives one task end to end: wait for its pre-queued simulated
// requests to drain, then run the real generation through the bridge.
type Orchestrator struct {
	svc      *queue.Service
	tasks    *task.Store
	hub      *task.Hub
	bridge   *stream.Bridge
	streamer stream.Streamer
}

func NewOrchestrator(svc *queue.Service, tasks *task.Store, hub *task.Hub, bridge *stream.Bridge, streamer stream.Streamer) *Orchestrator {
	return &Orchestrator{
		svc:      svc,
		tasks:    tasks,
		hub:      hub,
		bridge:   bridge,
		streamer: streamer,
	}
}

// Run is the async path. It polls the queue once a second, publishing
// progress as simulated requests finish, then flips the task to generating
// and hands off to the bridge. Failures anywhere leave the task failed with
// exactly one error event.
func (o *Orchestrator) Run(ctx context.Context, taskID string, requestIDs []string, req stream.GenerateRequest, streamMode bool, callbackURL string) {
	total := len(requestIDs)
	o.tasks.Update(taskID, func(t *task.Task) {
		t.Status = task.StatusWaiting
		t.Meta.Phase = "prequeue"
		t.Meta.PreTotal = total
	})
	o.hub.Publish(taskID, task.EventStatus, map[string]any{
		"task_id": taskID,
		"status":  task.StatusWaiting,
	})

	for {
		done := o.countTerminal(requestIDs)
		percent := 0
		if total > 0 {
			percent = done * 100 / total
		}
		o.tasks.Update(taskID, func(t *task.Task) {
			t.Meta.PreDone = done
			t.Meta.Percent = percent
		})
		o.hub.Publish(taskID, task.EventProgress, map[string]any{
			"phase":     "prequeue",
			"pre_done":  done,
			"pre_total": total,
			"percent":   percent,
		})
		if done >= total {
			break
		}
		select {
		case <-ctx.Done():
			o.tasks.Fail(taskID, ctx.Err().Error())
			o.hub.Publish(taskID, task.EventError, map[string]any{"message": ctx.Err().Error()})
			return
		case <-time.After(pollInterval):
		}
	}

	o.tasks.Update(taskID, func(t *task.Task) {
		t.Status = task.StatusGenerating
		t.Meta.Phase = "generating"
	})
	o.hub.Publish(taskID, task.EventStatus, map[string]any{
		"task_id": taskID,
		"status":  task.StatusGenerating,
	})

	var err error
	if streamMode {
		err = o.bridge.Run(ctx, taskID, o.streamer, req)
	} else {
		err = o.bridge.RunCollected(ctx, taskID, o.streamer, req)
	}
	if err != nil {
		log.Printf("task %s generation error: %v", taskID, err)
	}

	if callbackURL != "" {
		o.notifyWebhook(callbackURL, taskID, req)
	}
}

// Generate runs the bridge synchronously for the blocking submit path.
func (o *Orchestrator) Generate(ctx context.Context, taskID string, req stream.GenerateRequest) error {
	return o.bridge.RunCollected(ctx, taskID, o.streamer, req)
}

// WaitAllFinished blocks until every given request is terminal or the
// timeout elapses.
func (o *Orchestrator) WaitAllFinished(ctx context.Context, requestIDs []string, timeoutSec *float64) error {
	timeout := defaultWaitTimeout
	if timeoutSec != nil && *timeoutSec > 0 {
		timeout = time.Duration(*timeoutSec * float64(time.Second))
	}
	deadline := time.Now().Add(timeout)

	for {
		if o.countTerminal(requestIDs) >= len(requestIDs) {
			return nil
		}
		if time.Now().After(deadline) {
			return errWaitTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (o *Orchestrator) countTerminal(requestIDs []string) int {
	done := 0
	for _, id := range requestIDs {
		it, ok := o.svc.Engine().Status(id)
		if !ok || it.Status.Terminal() {
			done++
		}
	}
	return done
}

// notifyWebhook posts the task outcome to the caller-supplied URL. Delivery
// is best effort; failures are logged and dropped.
func (o *Orchestrator) notifyWebhook(url, taskID string, req stream.GenerateRequest) {
	rec, ok := o.tasks.Get(taskID)
	if !ok {
		return
	}
	body, err := json.Marshal(map[string]any{
		"task_id":      taskID,
		"status":       rec.Status,
		"saved_id":     rec.SavedID,
		"company_code": req.CompanyCode,
		"job_code":     req.JobCode,
	})
	if err != nil {
		return
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("webhook delivery to %s failed: %v", url, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("webhook delivery to %s returned %d", url, resp.StatusCode)
	}
}
