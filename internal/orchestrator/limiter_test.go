package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Window(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	for i := 0; i < messagesPerWindow; i++ {
		assert.True(t, rl.Allow("u1"), "send %d inside the window", i)
	}
	assert.False(t, rl.Allow("u1"))

	// Another user has an independent window.
	assert.True(t, rl.Allow("u2"))

	// The window resets after a minute.
	now = now.Add(limitWindow)
	assert.True(t, rl.Allow("u1"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	rl.Allow("u1")
	rl.Allow("u2")

	now = now.Add(staleAfter + time.Second)
	rl.Cleanup()
	assert.Empty(t, rl.users)
}
