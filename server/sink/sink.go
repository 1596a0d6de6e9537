package sink

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Sink records a completed task's generated artifact and returns the id it
// was saved under.
type Sink interface {
	Save(ctx context.Context, taskID, title, markdown string, meta map[string]any) (string, error)
}

// SavedJD is one persisted artifact.
type SavedJD struct {
	SavedID  string         `json:"saved_id"`
	TaskID   string         `json:"task_id"`
	Title    string         `json:"title"`
	Markdown string         `json:"markdown"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// MemorySink keeps artifacts in process memory; the default backend when no
// database is configured.
type MemorySink struct {
	mu    sync.Mutex
	saved map[string]*SavedJD
}

func NewMemorySink() *MemorySink {
	return &MemorySink{saved: make(map[string]*SavedJD)}
}

func (s *MemorySink) Save(_ context.Context, taskID, title, markdown string, meta map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.saved[id] = &SavedJD{
		SavedID:  id,
		TaskID:   taskID,
		Title:    title,
		Markdown: markdown,
		Meta:     meta,
	}
	return id, nil
}

// Get returns a stored artifact; used by tests and diagnostics.
func (s *MemorySink) Get(savedID string) (*SavedJD, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jd, ok := s.saved[savedID]
	if !ok {
		return nil, false
	}
	cp := *jd
	return &cp, true
}

// Len reports how many artifacts have been saved.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}
