package idempotency

import (
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, found := s.Get(ctx, "missing"); found {
		t.Error("empty store should miss")
	}

	resp := Response{
		StatusCode: 202,
		Body:       []byte(`{"task_id":"t1"}`),
		Headers:    map[string][]string{"Content-Type": {"application/json"}},
	}
	s.Set(ctx, "k1", resp)

	got, found := s.Get(ctx, "k1")
	if !found {
		t.Fatal("stored key should hit")
	}
	if got.StatusCode != 202 || string(got.Body) != `{"task_id":"t1"}` {
		t.Errorf("unexpected cached response: %+v", got)
	}
	if got.Headers["Content-Type"][0] != "application/json" {
		t.Errorf("headers not preserved: %v", got.Headers)
	}
}

func TestMemoryStoreKeysIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "a", Response{StatusCode: 200})
	s.Set(ctx, "b", Response{StatusCode: 429})

	a, _ := s.Get(ctx, "a")
	b, _ := s.Get(ctx, "b")
	if a.StatusCode != 200 || b.StatusCode != 429 {
		t.Errorf("keys collided: %d, %d", a.StatusCode, b.StatusCode)
	}
}
