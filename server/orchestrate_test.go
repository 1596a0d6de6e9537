package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hirecraft/jdqueue/server/queue"
	"github.com/hirecraft/jdqueue/server/stream"
	"github.com/hirecraft/jdqueue/server/task"
)

func TestOrchestratorRunAndWebhook(t *testing.T) {
	env := newTestEnv(t, nil)

	delivered := make(chan map[string]any, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		delivered <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	taskID := env.tasks.Create("alice", false)
	env.api.orchestrator.Run(context.Background(), taskID, nil, genReq(), false, hook.URL)

	rec, _ := env.tasks.Get(taskID)
	if rec.Status != task.StatusFinished {
		t.Fatalf("task status = %s (error %q)", rec.Status, rec.Error)
	}
	if rec.Meta.Percent != 0 {
		t.Errorf("empty prequeue percent = %d, want 0", rec.Meta.Percent)
	}

	select {
	case body := <-delivered:
		if body["task_id"] != taskID || body["status"] != "finished" {
			t.Errorf("webhook payload: %v", body)
		}
		if body["company_code"] != "c1" || body["saved_id"] == "" {
			t.Errorf("webhook payload incomplete: %v", body)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("webhook never delivered")
	}
}

func TestOrchestratorTracksPrequeue(t *testing.T) {
	env := newTestEnv(t, nil)

	ids := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		req, _ := env.svc.Enqueue("alice", queue.Payload{"simulate_only": true, "sim_fixed_sec": 0.01})
		ids = append(ids, req.RequestID)
	}

	taskID := env.tasks.Create("alice", false)
	env.api.orchestrator.Run(context.Background(), taskID, ids, genReq(), false, "")

	rec, _ := env.tasks.Get(taskID)
	if rec.Status != task.StatusFinished {
		t.Fatalf("task status = %s (error %q)", rec.Status, rec.Error)
	}
	if rec.Meta.PreTotal != 2 || rec.Meta.PreDone != 2 {
		t.Errorf("prequeue meta: %+v", rec.Meta)
	}
}

func TestOrchestratorEmptyPrequeueProgress(t *testing.T) {
	env := newTestEnv(t, nil)

	taskID := env.tasks.Create("alice", false)
	ch := env.hub.Subscribe(taskID)
	defer env.hub.Unsubscribe(taskID, ch)

	env.api.orchestrator.Run(context.Background(), taskID, nil, genReq(), false, "")

	var progress []task.Event
	for drained := false; !drained; {
		select {
		case ev := <-ch:
			if ev.Type == task.EventProgress {
				progress = append(progress, ev)
			}
		default:
			drained = true
		}
	}

	if len(progress) != 1 {
		t.Fatalf("expected exactly one progress event, got %d", len(progress))
	}
	data := progress[0].Data
	if data["pre_done"] != 0 || data["pre_total"] != 0 || data["percent"] != 0 {
		t.Errorf("progress payload: %v", data)
	}
	if data["phase"] != "prequeue" {
		t.Errorf("phase = %v", data["phase"])
	}
}

func TestWaitAllFinishedTimeout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rt.Stop()

	req, _ := env.svc.Enqueue("alice", queue.Payload{"simulate_only": true, "sim_fixed_sec": 5.0})

	short := 0.05
	err := env.api.orchestrator.WaitAllFinished(context.Background(), []string{req.RequestID}, &short)
	if err != errWaitTimeout {
		t.Errorf("expected errWaitTimeout, got %v", err)
	}
}

func TestWaitAllFinishedEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.api.orchestrator.WaitAllFinished(context.Background(), nil, nil); err != nil {
		t.Errorf("empty set should return immediately, got %v", err)
	}
}

func genReq() stream.GenerateRequest {
	return stream.GenerateRequest{CompanyCode: "c1", JobCode: "j1"}
}
