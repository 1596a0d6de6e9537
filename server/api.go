package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"

	"github.com/hirecraft/jdqueue/server/idempotency"
	"github.com/hirecraft/jdqueue/server/observability"
	"github.com/hirecraft/jdqueue/server/queue"
	"github.com/hirecraft/jdqueue/server/stream"
	"github.com/hirecraft/jdqueue/server/task"
	"github.com/hirecraft/jdqueue/server/worker"
)

const defaultUserID = "demo-user"

const (
	maxPrequeueCount     = 200
	defaultPrequeueCount = 10
	defaultSimMinSec     = 3.0
	defaultSimMaxSec     = 5.0
)

// API holds the request handlers and their collaborators.
type API struct {
	runtime      *worker.Runtime
	tasks        *task.Store
	hub          *task.Hub
	orchestrator *Orchestrator
	idempotency  idempotency.Store
	submitLim    *UserRateLimiter
}

func NewAPI(rt *worker.Runtime, tasks *task.Store, hub *task.Hub, orch *Orchestrator, idem idempotency.Store, lim *UserRateLimiter) *API {
	return &API{
		runtime:      rt,
		tasks:        tasks,
		hub:          hub,
		orchestrator: orch,
		idempotency:  idem,
		submitLim:    lim,
	}
}

// SimOptions selects the simulated wait duration: fixed, or uniform within
// [min, max].
type SimOptions struct {
	FixedSec *float64 `json:"fixed_sec,omitempty"`
	MinSec   *float64 `json:"min_sec,omitempty"`
	MaxSec   *float64 `json:"max_sec,omitempty"`
}

// SimThenGenerateRequest is the submission body. JD is forwarded to the
// generator verbatim apart from company_code/job_code extraction.
type SimThenGenerateRequest struct {
	PrequeueCount  *int           `json:"prequeue_count,omitempty"`
	Sim            SimOptions     `json:"sim"`
	JD             map[string]any `json:"jd"`
	UserID         string         `json:"user_id,omitempty"`
	WaitTimeoutSec *float64       `json:"wait_timeout_sec,omitempty"`
}

func (r *SimThenGenerateRequest) prequeueCount() int {
	if r.PrequeueCount == nil {
		return defaultPrequeueCount
	}
	return *r.PrequeueCount
}

func (r *SimThenGenerateRequest) generateRequest() stream.GenerateRequest {
	company, _ := r.JD["company_code"].(string)
	job, _ := r.JD["job_code"].(string)
	return stream.GenerateRequest{
		CompanyCode: company,
		JobCode:     job,
		Params:      r.JD,
	}
}

func (r *SimThenGenerateRequest) simPayload() queue.Payload {
	p := queue.Payload{"simulate_only": true}
	if r.Sim.FixedSec != nil {
		p["sim_fixed_sec"] = *r.Sim.FixedSec
	} else {
		min, max := defaultSimMinSec, defaultSimMaxSec
		if r.Sim.MinSec != nil {
			min = *r.Sim.MinSec
		}
		if r.Sim.MaxSec != nil {
			max = *r.Sim.MaxSec
		}
		p["sim_min_sec"] = min
		p["sim_max_sec"] = max
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeRateLimitError answers 429 with a jittered Retry-After so a storm of
// retries does not resynchronize.
func writeRateLimitError(w http.ResponseWriter, endpoint string) {
	observability.APIRateLimited.WithLabelValues(endpoint).Inc()
	retryAfter := 1 + rand.Intn(2)
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
}

// Wrapper for capturing responses replayed on idempotent retries.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}

func (a *API) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Idempotency-Key")
		if key == "" {
			next(w, r)
			return
		}

		if resp, found := a.idempotency.Get(r.Context(), key); found {
			for k, vals := range resp.Headers {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(resp.StatusCode)
			w.Write(resp.Body)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next(rec, r)

		a.idempotency.Set(r.Context(), key, idempotency.Response{
			StatusCode: rec.statusCode,
			Body:       rec.body,
			Headers:    rec.Header(),
		})
	}
}

// handleSimThenGenerate enqueues prequeue_count simulated waits for the
// user and either blocks until generation completes (mode=sync) or returns
// 202 with a task id (mode=async, the default).
func (a *API) handleSimThenGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SimThenGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	n := req.prequeueCount()
	if n < 0 || n > maxPrequeueCount {
		http.Error(w, fmt.Sprintf("prequeue_count must be in [0, %d]", maxPrequeueCount), http.StatusBadRequest)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = defaultUserID
	}

	if !a.submitLim.Allow(userID) {
		writeRateLimitError(w, "sim_then_generate")
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "async"
	}
	streamMode := r.URL.Query().Get("stream") != "false"
	callbackURL := r.URL.Query().Get("callback_url")

	payload := req.simPayload()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		item, _ := a.runtime.Queue().Enqueue(userID, payload)
		ids = append(ids, item.RequestID)
	}

	genReq := req.generateRequest()

	if mode == "sync" {
		a.runSync(w, r, userID, ids, genReq, req.WaitTimeoutSec)
		return
	}

	taskID := a.tasks.Create(userID, streamMode)
	go a.orchestrator.Run(context.Background(), taskID, ids, genReq, streamMode, callbackURL)

	resultLink := fmt.Sprintf("/api/llm/queue/tasks/%s/result", taskID)
	if streamMode {
		resultLink = fmt.Sprintf("/api/llm/queue/tasks/%s/stream", taskID)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id": taskID,
		"status":  "accepted",
		"links": map[string]string{
			"status": fmt.Sprintf("/api/llm/queue/tasks/%s/status", taskID),
			"result": resultLink,
		},
	})
}

func (a *API) runSync(w http.ResponseWriter, r *http.Request, userID string, ids []string, genReq stream.GenerateRequest, timeoutSec *float64) {
	if err := a.orchestrator.WaitAllFinished(r.Context(), ids, timeoutSec); err != nil {
		if err == errWaitTimeout {
			http.Error(w, "simulation wait timeout", http.StatusGatewayTimeout)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	taskID := a.tasks.Create(userID, false)
	a.tasks.SetStatus(taskID, task.StatusGenerating)
	if err := a.orchestrator.Generate(r.Context(), taskID, genReq); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rec, _ := a.tasks.Get(taskID)
	writeJSON(w, http.StatusOK, map[string]any{
		"company_code": genReq.CompanyCode,
		"job_code":     genReq.JobCode,
		"saved_id":     rec.SavedID,
		"title":        rec.Result.Title,
		"markdown":     rec.Result.Markdown,
	})
}

// handleTasks routes /api/llm/queue/tasks/{task_id}/{verb}.
func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/llm/queue/tasks/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	taskID, verb := parts[0], parts[1]

	switch verb {
	case "status":
		a.handleTaskStatus(w, r, taskID)
	case "result":
		a.handleTaskResult(w, r, taskID)
	case "stream":
		a.handleTaskStream(w, r, taskID)
	case "ws":
		a.handleTaskWS(w, r, taskID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (a *API) handleTaskStatus(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rec, ok := a.tasks.Get(taskID)
	if !ok {
		http.Error(w, "unknown task_id", http.StatusNotFound)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = rec.UserID
	}

	// Progress bands: pre-queue 0-90, generating 90-99, finished 100.
	var qProgress float64
	if rec.Meta.PreTotal > 0 {
		qProgress = float64(rec.Meta.PreDone) / float64(rec.Meta.PreTotal) * 90.0
	}
	var progress float64
	switch rec.Status {
	case task.StatusGenerating:
		progress = qProgress + 5.0
		if progress < 90.0 {
			progress = 90.0
		}
		if progress > 99.0 {
			progress = 99.0
		}
	case task.StatusFinished:
		progress = 100.0
	default:
		progress = qProgress
	}

	svc := a.runtime.Queue()
	snap := svc.Snapshot()
	queued, inflight := 0, 0
	if uw := snap.UserWindowFor(userID); uw != nil {
		queued, inflight = uw.Queued, uw.Inflight
	}

	tracker := a.runtime.Progress()
	tracker.Observe(userID, queued, inflight)
	waitPercent := tracker.WaitPercent(userID, queued, inflight)

	perUser := svc.Engine().Config().MaxInflightPerUser
	if perUser < 1 {
		perUser = 1
	}
	etaSeconds := float64(queued) / float64(perUser) * svc.AvgPerItemSec(userID)

	resultLink := fmt.Sprintf("/api/llm/queue/tasks/%s/result", taskID)
	if rec.StreamMode {
		resultLink = fmt.Sprintf("/api/llm/queue/tasks/%s/stream", taskID)
	}

	resp := map[string]any{
		"task_id":        rec.TaskID,
		"status":         rec.Status,
		"progress":       round1(progress),
		"prequeue_done":  rec.Meta.PreDone,
		"prequeue_total": rec.Meta.PreTotal,
		"remaining_ahead": queued,
		"eta_seconds":    round1(etaSeconds),
		"wait_percent":   round1(waitPercent),
		"links": map[string]string{
			"result":      resultLink,
			"queue_state": fmt.Sprintf("/api/llm/queue/state?user_id=%s", userID),
		},
	}
	if rec.SavedID != "" {
		resp["saved_id"] = rec.SavedID
	}
	if rec.Error != "" {
		resp["error"] = rec.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTaskResult(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rec, ok := a.tasks.Get(taskID)
	if !ok {
		http.Error(w, "unknown task_id", http.StatusNotFound)
		return
	}
	if rec.StreamMode {
		http.Error(w, "stream-mode task. Use /tasks/{task_id}/stream", http.StatusBadRequest)
		return
	}
	if rec.Status != task.StatusFinished {
		if rec.Status == task.StatusFailed {
			msg := rec.Error
			if msg == "" {
				msg = "task failed"
			}
			http.Error(w, msg, http.StatusFailedDependency)
			return
		}
		http.Error(w, fmt.Sprintf("task not finished (status=%s)", rec.Status), http.StatusConflict)
		return
	}
	if rec.Result == nil {
		http.Error(w, "task finished but result missing", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"saved_id": rec.SavedID,
		"title":    rec.Result.Title,
		"markdown": rec.Result.Markdown,
	})
}

// handleCancelRequest drops a still-queued request.
// Route: POST /api/llm/queue/requests/{request_id}/cancel
func (a *API) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/llm/queue/requests/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "cancel" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	requestID := parts[0]

	status := a.runtime.Queue().Engine().Cancel(requestID, "client_cancel")
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": requestID,
		"status":     status,
	})
}

// handleQueueState serves the per-user queue view.
func (a *API) handleQueueState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = defaultUserID
	}
	requestID := r.URL.Query().Get("request_id")
	writeJSON(w, http.StatusOK, a.runtime.Queue().MyStatus(userID, requestID))
}

// handleQueueSnapshot serves the engine's aggregate snapshot.
func (a *API) handleQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.runtime.Queue().Snapshot())
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
