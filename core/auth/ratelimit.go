// Package auth holds the login guard: attempt rate limiting, input sanitising, CSRF tokens and session rules.
package auth

import (
	"sync"
	"time"
)

// RateLimiter counts attempts per key within a sliding window.
type RateLimiter struct {
	mu          sync.Mutex
	attempts    map[string][]time.Time
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

func NewRateLimiter(maxAttempts int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:    make(map[string][]time.Time),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// recent drops the attempts of key older than the window. The caller holds mu.
func (rl *RateLimiter) recent(key string, now time.Time) []time.Time {
	attempts := rl.attempts[key]
	kept := attempts[:0]
	for _, ts := range attempts {
		if now.Sub(ts) < rl.window {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(rl.attempts, key)
		return nil
	}
	rl.attempts[key] = kept
	return kept
}

// IsLimited reports whether key reached the maximum number of attempts within the window.
func (rl *RateLimiter) IsLimited(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.recent(key, rl.now())) >= rl.maxAttempts
}

// Allow records an attempt of key unless key is limited, and reports whether the attempt may proceed.
// Concurrent callers never get more than the maximum number of attempts through.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.recent(key, now)) >= rl.maxAttempts {
		return false
	}
	rl.attempts[key] = append(rl.attempts[key], now)
	return true
}

func (rl *RateLimiter) Record(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.attempts[key] = append(rl.attempts[key], rl.now())
}

func (rl *RateLimiter) Clear(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}

// TimeUntilReset returns how long until the oldest recorded attempt of key leaves the window.
func (rl *RateLimiter) TimeUntilReset(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	attempts := rl.recent(key, now)
	if len(attempts) == 0 {
		return 0
	}
	oldest := attempts[0]
	for _, ts := range attempts[1:] {
		if ts.Before(oldest) {
			oldest = ts
		}
	}
	if d := oldest.Add(rl.window).Sub(now); d > 0 {
		return d
	}
	return 0
}

// Cleanup drops every key without attempts in the window.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key := range rl.attempts {
		rl.recent(key, now)
	}
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.attempts)
}
