package queue

import (
	"sync"
)

// RoundRobinScheduler picks which queued requests to admit next. It is
// stateless except for a cursor remembering the last user an admission was
// granted to, so continuously backlogged users take fair turns.
type RoundRobinScheduler struct {
	mu     sync.Mutex
	cursor string
}

func NewRoundRobinScheduler() *RoundRobinScheduler {
	return &RoundRobinScheduler{}
}

// SelectAdmissions returns the ordered request ids to admit now, dequeuing
// them from their user FIFOs. Capacity is the smaller of batchMax and the
// remaining global headroom. The per-user cap counts picks made earlier in
// the same pass: the engine marks admissions only after selection, so the
// repo's inflight counters alone would let one user swallow the whole batch.
func (s *RoundRobinScheduler) SelectAdmissions(repo Repo, limits Limits, batchMax int) []string {
	capacity := limits.MaxInflightGlobal - repo.InflightCountGlobal()
	if capacity > batchMax {
		capacity = batchMax
	}
	if capacity <= 0 {
		return nil
	}

	userIDs := repo.ListUserIDs()
	if len(userIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Rotate so the user after the previously chosen one goes first.
	order := rotateAfter(userIDs, s.cursor)
	picked := make(map[string]int)

	var admitted []string
	for len(order) > 0 && len(admitted) < capacity {
		next := make([]string, 0, len(order))
		progressed := false
		for _, uid := range order {
			if len(admitted) >= capacity {
				next = append(next, uid)
				continue
			}
			if _, ok := repo.PeekUserQueue(uid); !ok {
				// Drained users leave the rotation.
				continue
			}
			if repo.InflightCountUser(uid)+picked[uid] >= limits.MaxInflightPerUser {
				next = append(next, uid)
				continue
			}
			id, ok := repo.DequeueForUser(uid)
			if !ok {
				continue
			}
			admitted = append(admitted, id)
			picked[uid]++
			s.cursor = uid
			progressed = true
			next = append(next, uid)
		}
		order = next
		if !progressed {
			break
		}
	}
	return admitted
}

func rotateAfter(ids []string, cursor string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	if cursor == "" {
		return out
	}
	for i, id := range ids {
		if id == cursor {
			start := (i + 1) % len(ids)
			return append(append(out[:0], ids[start:]...), ids[:start]...)
		}
	}
	return out
}
