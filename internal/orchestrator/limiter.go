package orchestrator

import (
	"sync"
	"time"
)

const (
	messagesPerWindow = 30
	limitWindow       = time.Minute
	staleAfter        = 5 * time.Minute
)

// RateLimiter tracks per-user message rates over a fixed window.
type RateLimiter struct {
	mu    sync.Mutex
	users map[string]*userWindow
	now   func() time.Time
}

type userWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a rate limiter allowing messagesPerWindow sends per
// user per minute.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		users: make(map[string]*userWindow),
		now:   time.Now,
	}
}

// Allow reports whether userID may send another message right now.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	w, ok := rl.users[userID]
	if !ok || now.Sub(w.windowStart) >= limitWindow {
		rl.users[userID] = &userWindow{count: 1, windowStart: now}
		return true
	}
	if w.count >= messagesPerWindow {
		return false
	}
	w.count++
	return true
}

// Cleanup drops windows idle longer than staleAfter. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for userID, w := range rl.users {
		if now.Sub(w.windowStart) > staleAfter {
			delete(rl.users, userID)
		}
	}
}
