// Package quota enforces per-user request rate limits.
package quota

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter implements per-user token bucket rate limiting. Each user
// may burst up to rpm requests and refills at rpm per minute.
type RateLimiter struct {
	mu       sync.Mutex
	rpm      int
	limiters map[int64]*userLimiter
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-user rate limiter. rpm=0 means unlimited.
func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{
		rpm:      rpm,
		limiters: make(map[int64]*userLimiter),
	}
}

// Enabled reports whether any limit is enforced.
func (rl *RateLimiter) Enabled() bool {
	return rl.rpm > 0
}

func (rl *RateLimiter) get(userID int64) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	ul, ok := rl.limiters[userID]
	if !ok {
		ul = &userLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.rpm)/60.0), rl.rpm),
		}
		rl.limiters[userID] = ul
	}
	ul.lastSeen = time.Now()
	return ul.limiter
}

// Allow reports whether a request from userID may proceed now.
func (rl *RateLimiter) Allow(userID int64) bool {
	if !rl.Enabled() {
		return true
	}
	return rl.get(userID).Allow()
}

// RetryAfter returns the number of whole seconds until userID's next token.
func (rl *RateLimiter) RetryAfter(userID int64) int {
	if !rl.Enabled() {
		return 0
	}
	r := rl.get(userID).Reserve()
	delay := r.Delay()
	r.Cancel()
	if delay <= 0 {
		return 0
	}
	return int(math.Ceil(delay.Seconds()))
}

// Cleanup removes limiters for users not seen within maxAge and returns
// how many were removed.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for userID, ul := range rl.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(rl.limiters, userID)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked users.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
