package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/Weaver/internal/config"
	"github.com/Strob0t/Weaver/internal/domain"
)

// RateLimiter is a per-session sliding-window request throttle for runtime
// operations.
type RateLimiter struct {
	enabled bool
	max     int
	window  time.Duration

	mu   sync.Mutex
	hits map[int64][]time.Time
	now  func() time.Time
}

// NewRateLimiter creates a RateLimiter. It admits everything when disabled
// or when max_requests is not positive.
func NewRateLimiter(cfg config.RateLimit) *RateLimiter {
	return &RateLimiter{
		enabled: cfg.Enabled && cfg.MaxRequests > 0,
		max:     cfg.MaxRequests,
		window:  cfg.Window,
		hits:    make(map[int64][]time.Time),
		now:     time.Now,
	}
}

// Check records a request for sessionID, or returns domain.ErrRateLimited
// when max requests were already admitted within the trailing window.
func (r *RateLimiter) Check(sessionID int64) error {
	if !r.enabled {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	hits := prune(r.hits[sessionID], now.Add(-r.window))
	if len(hits) >= r.max {
		r.hits[sessionID] = hits
		return fmt.Errorf("%w: at most %d requests per %s", domain.ErrRateLimited, r.max, r.window)
	}
	r.hits[sessionID] = append(hits, now)
	return nil
}

// prune drops timestamps before cutoff. hits is ordered oldest first.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && hits[i].Before(cutoff) {
		i++
	}
	return hits[i:]
}

// Forget drops the window of a deleted session.
func (r *RateLimiter) Forget(sessionID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hits, sessionID)
}

// Prune drops every session whose window has fully expired.
func (r *RateLimiter) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.window)
	for id, hits := range r.hits {
		if len(prune(hits, cutoff)) == 0 {
			delete(r.hits, id)
		}
	}
}
