package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsUpToMax(t *testing.T) {
	l := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client"), "request %d should pass", i)
	}
	assert.False(t, l.Allow("client"), "request beyond the limit should be rejected")
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	now := time.Now()
	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("c"))

	now = now.Add(20 * time.Second)
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))

	// Once the first request leaves the window, one slot frees up.
	now = now.Add(41 * time.Second)
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))
}
