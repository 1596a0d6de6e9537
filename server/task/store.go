package task

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hirecraft/jdqueue/server/observability"
)

// Status is the lifecycle state of a simulate-then-generate task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusWaiting    Status = "waiting"
	StatusGenerating Status = "generating"
	StatusFinished   Status = "finished"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the task is done, one way or the other.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Result is the stored output of a finished task.
type Result struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

// Meta tracks pre-queue progress.
type Meta struct {
	Phase    string `json:"phase,omitempty"`
	PreTotal int    `json:"pre_total"`
	PreDone  int    `json:"pre_done"`
	Percent  int    `json:"percent"`
}

// Task is one simulate-then-generate job: a pre-queue of simulated waits
// followed by a real generation.
type Task struct {
	TaskID     string   `json:"task_id"`
	UserID     string   `json:"user_id"`
	Status     Status   `json:"status"`
	CreatedAt  float64  `json:"created_at"`
	FinishedAt *float64 `json:"finished_at,omitempty"`
	Error      string   `json:"error,omitempty"`
	SavedID    string   `json:"saved_id,omitempty"`
	Result     *Result  `json:"result,omitempty"`
	Meta       Meta     `json:"meta"`
	StreamMode bool     `json:"stream_mode"`
}

// Store is the in-memory task map. All mutations are shallow field updates
// under one mutex.
type Store struct {
	mu   sync.Mutex
	data map[string]*Task
}

func NewStore() *Store {
	return &Store{data: make(map[string]*Task)}
}

// Create registers a fresh queued task and returns its id.
func (s *Store) Create(userID string, streamMode bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.data[id] = &Task{
		TaskID:     id,
		UserID:     userID,
		Status:     StatusQueued,
		CreatedAt:  float64(time.Now().UnixNano()) / 1e9,
		StreamMode: streamMode,
	}
	return id
}

// Get returns a copy of the task record.
func (s *Store) Get(taskID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data[taskID]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Update applies a mutation under the store lock. Unknown ids are ignored.
func (s *Store) Update(taskID string, fn func(*Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.data[taskID]; ok {
		fn(t)
	}
}

// SetStatus is the common shallow update.
func (s *Store) SetStatus(taskID string, status Status) {
	s.Update(taskID, func(t *Task) { t.Status = status })
}

// Fail marks the task failed with a timestamp and error message.
func (s *Store) Fail(taskID, errMsg string) {
	now := float64(time.Now().UnixNano()) / 1e9
	s.Update(taskID, func(t *Task) {
		t.Status = StatusFailed
		t.FinishedAt = &now
		t.Error = errMsg
	})
	observability.TasksByStatus.WithLabelValues(string(StatusFailed)).Inc()
}

// Finish marks the task finished with its saved artifact.
func (s *Store) Finish(taskID, savedID string, result *Result) {
	now := float64(time.Now().UnixNano()) / 1e9
	s.Update(taskID, func(t *Task) {
		t.Status = StatusFinished
		t.FinishedAt = &now
		t.SavedID = savedID
		t.Result = result
	})
	observability.TasksByStatus.WithLabelValues(string(StatusFinished)).Inc()
}
