package scraper

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter manages per-site request budgets for page fetches.
type RateLimiter struct {
	clock   Clock
	buckets map[string]*bucket
	mu      sync.Mutex
	stopped bool
}

// bucket is a token bucket refilled from the clock on each reservation.
type bucket struct {
	limit  int
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a rate limiter timed by clock. A nil clock is the wall clock.
func NewRateLimiter(clock Clock) *RateLimiter {
	if clock == nil {
		clock = RealClock
	}
	return &RateLimiter{
		clock:   clock,
		buckets: make(map[string]*bucket),
	}
}

// Wait waits for permission to make a request to the given site.
// A non-positive budget means unlimited.
func (rl *RateLimiter) Wait(ctx context.Context, site string, requestsPerMinute int) error {
	if requestsPerMinute <= 0 {
		return ctx.Err()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, ok := rl.reserve(site, requestsPerMinute)
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rl.clock.After(wait):
		}
	}
}

// reserve takes a token when one is available. Otherwise it reports how long
// until the next token.
func (rl *RateLimiter) reserve(site string, requestsPerMinute int) (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.stopped {
		return 0, true
	}

	now := rl.clock.Now()
	interval := time.Minute / time.Duration(requestsPerMinute)

	b, exists := rl.buckets[site]
	if !exists || b.limit != requestsPerMinute {
		// A full bucket for new sites and changed budgets
		b = &bucket{limit: requestsPerMinute, tokens: float64(requestsPerMinute), last: now}
		rl.buckets[site] = b
	}
	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens = math.Min(float64(b.limit), b.tokens+float64(elapsed)/float64(interval))
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}
	return max(time.Duration((1-b.tokens)*float64(interval)), time.Nanosecond), false
}

// Stop lifts all budgets. Waits after Stop are not limited.
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.stopped = true
	clear(rl.buckets)
}
