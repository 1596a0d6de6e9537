package idempotency

import (
	"context"
	"sync"
	"time"
)

// Response is a cached HTTP response replayed for duplicate submissions.
type Response struct {
	StatusCode int                 `json:"status_code"`
	Body       []byte              `json:"body"`
	Headers    map[string][]string `json:"headers"`
}

// Store caches responses by idempotency key.
type Store interface {
	Get(ctx context.Context, key string) (Response, bool)
	Set(ctx context.Context, key string, resp Response)
}

const memoryTTL = time.Hour

// MemoryStore is the single-process fallback; entries expire lazily.
type MemoryStore struct {
	cache sync.Map
}

type entry struct {
	resp      Response
	timestamp time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Response, bool) {
	val, ok := s.cache.Load(key)
	if !ok {
		return Response{}, false
	}
	e := val.(entry)
	if time.Since(e.timestamp) > memoryTTL {
		s.cache.Delete(key)
		return Response{}, false
	}
	return e.resp, true
}

func (s *MemoryStore) Set(_ context.Context, key string, resp Response) {
	s.cache.Store(key, entry{resp: resp, timestamp: time.Now()})
}
