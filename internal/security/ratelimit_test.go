package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("attempt-1"), "request %d", i)
	}
	assert.False(t, rl.Allow("attempt-1"))
	assert.True(t, rl.Allow("attempt-2"), "keys have separate buckets")

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("attempt-1"), "bucket refills after the window")
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	assert.Equal(t, 2, rl.Len())

	now = now.Add(90 * time.Second)
	rl.Allow("b")
	now = now.Add(45 * time.Second)
	rl.cleanup()
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimiterRunStops(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
