package bot

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by user.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time
	mu          sync.Mutex
	requests    map[string][]time.Time
}

// NewRateLimiter allows maxRequests per window for every key.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		requests:    make(map[string][]time.Time),
	}
}

// Allow records a request for key and reports whether it is within limits.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	valid := r.prune(key, now)

	if len(valid) >= r.maxRequests {
		r.requests[key] = valid
		return false
	}
	r.requests[key] = append(valid, now)
	return true
}

// RemainingCooldown returns how long key must wait; 0 when allowed.
func (r *RateLimiter) RemainingCooldown(key string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	valid := r.prune(key, now)
	if len(valid) < r.maxRequests {
		return 0
	}
	if remaining := valid[0].Add(r.window).Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Reset forgets the history of key.
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, key)
}

func (r *RateLimiter) prune(key string, now time.Time) []time.Time {
	history := r.requests[key]
	cutoff := now.Add(-r.window)
	valid := make([]time.Time, 0, len(history))
	for _, t := range history {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(r.requests, key)
	}
	return valid
}
