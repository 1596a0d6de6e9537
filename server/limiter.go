package main

import (
	"sync"

	"golang.org/x/time/rate"
)

// UserRateLimiter caps submission rate per user id. Limiters are created on
// first sight and never evicted; the user population here is small.
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewUserRateLimiter(perSec float64, burst int) *UserRateLimiter {
	if perSec <= 0 {
		perSec = 5
	}
	if burst < 1 {
		burst = 10
	}
	return &UserRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSec),
		burst:    burst,
	}
}

func (l *UserRateLimiter) Allow(userID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
