package queue

import (
	"sync"
)

// DefaultEMASeconds seeds a user's mean finish time before any sample.
const DefaultEMASeconds = 20.0

// EMAStore keeps a per-user exponential moving average of finish durations.
type EMAStore struct {
	mu     sync.Mutex
	alpha  float64
	values map[string]float64
}

func NewEMAStore(alpha float64) *EMAStore {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &EMAStore{
		alpha:  alpha,
		values: make(map[string]float64),
	}
}

// Update folds a new sample into the user's average and returns the result.
func (s *EMAStore) Update(userID string, sampleSec float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[userID]
	if !ok {
		v = DefaultEMASeconds
	}
	v = s.alpha*sampleSec + (1-s.alpha)*v
	s.values[userID] = v
	return v
}

// Get returns the user's current average, or the default when unseen.
func (s *EMAStore) Get(userID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[userID]; ok {
		return v
	}
	return DefaultEMASeconds
}

// Known reports whether the user has at least one recorded sample.
func (s *EMAStore) Known(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[userID]
	return ok
}
