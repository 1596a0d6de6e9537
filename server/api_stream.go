package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hirecraft/jdqueue/server/task"
)

const keepaliveInterval = 10 * time.Second

// handleTaskStream serves the task's event stream over SSE. The first frame
// is always a status event with the current record; terminal tasks get their
// end or error frame immediately so late subscribers do not hang.
func (a *API) handleTaskStream(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rec, ok := a.tasks.Get(taskID)
	if !ok {
		http.Error(w, "unknown task_id", http.StatusNotFound)
		return
	}
	if !rec.StreamMode {
		http.Error(w, "non-stream task. Use /tasks/{task_id}/result", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, task.EventStatus, map[string]any{
		"task_id": rec.TaskID,
		"status":  rec.Status,
		"meta":    rec.Meta,
	})
	flusher.Flush()

	if rec.Status.Terminal() {
		writeTerminalSSE(w, rec)
		flusher.Flush()
		return
	}

	ch := a.hub.Subscribe(taskID)
	defer a.hub.Unsubscribe(taskID, ch)

	// The task may have gone terminal between Get and Subscribe; events for
	// that transition were published before we joined, so re-check.
	if rec, ok := a.tasks.Get(taskID); ok && rec.Status.Terminal() {
		writeTerminalSSE(w, rec)
		flusher.Flush()
		return
	}

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-ch:
			writeSSE(w, ev.Type, ev.Data)
			flusher.Flush()
			if ev.Type == task.EventEnd || ev.Type == task.EventError {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, eventType string, data map[string]any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
}

func writeTerminalSSE(w http.ResponseWriter, rec *task.Task) {
	if rec.Status == task.StatusFailed {
		msg := rec.Error
		if msg == "" {
			msg = "task failed"
		}
		writeSSE(w, task.EventError, map[string]any{"message": msg})
		return
	}
	data := map[string]any{"saved_id": rec.SavedID}
	if rec.Result != nil {
		data["title"] = rec.Result.Title
		data["markdown"] = rec.Result.Markdown
	}
	writeSSE(w, task.EventEnd, data)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleTaskWS mirrors the task's event stream over a websocket. Frames are
// the hub's Event JSON; the connection closes after end or error.
func (a *API) handleTaskWS(w http.ResponseWriter, r *http.Request, taskID string) {
	rec, ok := a.tasks.Get(taskID)
	if !ok {
		http.Error(w, "unknown task_id", http.StatusNotFound)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	hello := task.Event{
		Type: task.EventHello,
		Data: map[string]any{"task_id": rec.TaskID, "status": rec.Status},
		TS:   float64(time.Now().UnixNano()) / 1e9,
	}
	if err := conn.WriteJSON(hello); err != nil {
		return
	}

	if rec.Status.Terminal() {
		conn.WriteJSON(terminalEvent(rec))
		return
	}

	ch := a.hub.Subscribe(taskID)
	defer a.hub.Unsubscribe(taskID, ch)

	if rec, ok := a.tasks.Get(taskID); ok && rec.Status.Terminal() {
		conn.WriteJSON(terminalEvent(rec))
		return
	}

	// Drain the reader so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Type == task.EventEnd || ev.Type == task.EventError {
				return
			}
		}
	}
}

func terminalEvent(rec *task.Task) task.Event {
	ts := float64(time.Now().UnixNano()) / 1e9
	if rec.Status == task.StatusFailed {
		msg := rec.Error
		if msg == "" {
			msg = "task failed"
		}
		return task.Event{Type: task.EventError, Data: map[string]any{"message": msg}, TS: ts}
	}
	data := map[string]any{"saved_id": rec.SavedID}
	if rec.Result != nil {
		data["title"] = rec.Result.Title
		data["markdown"] = rec.Result.Markdown
	}
	return task.Event{Type: task.EventEnd, Data: data, TS: ts}
}
