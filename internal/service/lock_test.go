package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctorexam/internal/apperrors"
)

func TestKeyedLockExclusive(t *testing.T) {
	l := NewKeyedLock()
	ctx := context.Background()

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "attempt:1", time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 0, l.Len(), "idle keys are dropped")
}

func TestKeyedLockTimeout(t *testing.T) {
	l := NewKeyedLock()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "attempt:1", time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "attempt:1", 20*time.Millisecond)
	assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)

	// Other keys are independent
	releaseOther, err := l.Acquire(ctx, "attempt:2", 20*time.Millisecond)
	require.NoError(t, err)
	releaseOther()

	release()
	release() // second call is a no-op

	release, err = l.Acquire(ctx, "attempt:1", 20*time.Millisecond)
	require.NoError(t, err)
	release()
	assert.Equal(t, 0, l.Len())
}

func TestKeyedLockContextCancel(t *testing.T) {
	l := NewKeyedLock()
	release, err := l.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
