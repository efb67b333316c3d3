package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketlottery/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMemoryLimiter_Window(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLimiter(clock.Now)
	window := 5 * time.Minute

	for i := 0; i < 3; i++ {
		_, err := l.CheckAndRecord(ctx, "lot-1", "alice", window, 3)
		require.NoError(t, err, "purchase %d", i+1)
		clock.Advance(time.Second)
	}

	_, err := l.CheckAndRecord(ctx, "lot-1", "alice", window, 3)
	require.ErrorIs(t, err, models.ErrRateLimitExceeded)
	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, window-3*time.Second, exceeded.RetryAfter)

	t.Run("other users and lotteries are independent", func(t *testing.T) {
		_, err := l.CheckAndRecord(ctx, "lot-1", "bob", window, 3)
		assert.NoError(t, err)
		_, err = l.CheckAndRecord(ctx, "lot-2", "alice", window, 3)
		assert.NoError(t, err)
	})

	t.Run("rejected calls record nothing", func(t *testing.T) {
		clock.Advance(window - 3*time.Second)
		// The first purchase is now exactly at the cutoff and no longer counts.
		_, err := l.CheckAndRecord(ctx, "lot-1", "alice", window, 3)
		assert.NoError(t, err)
	})

	t.Run("a new call succeeds once the window elapses", func(t *testing.T) {
		clock.Advance(window)
		for i := 0; i < 3; i++ {
			_, err := l.CheckAndRecord(ctx, "lot-1", "alice", window, 3)
			require.NoError(t, err)
		}
	})
}

func TestMemoryLimiter_Cancel(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(newFakeClock().Now)

	r, err := l.CheckAndRecord(ctx, "lot-1", "alice", time.Minute, 1)
	require.NoError(t, err)
	_, err = l.CheckAndRecord(ctx, "lot-1", "alice", time.Minute, 1)
	require.ErrorIs(t, err, models.ErrRateLimitExceeded)

	require.NoError(t, l.Cancel(ctx, r))
	_, err = l.CheckAndRecord(ctx, "lot-1", "alice", time.Minute, 1)
	assert.NoError(t, err)

	assert.NoError(t, l.Cancel(ctx, nil))
}

func TestMemoryLimiter_Prune(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLimiter(clock.Now)

	_, err := l.CheckAndRecord(ctx, "lot-1", "alice", time.Minute, 5)
	require.NoError(t, err)
	_, err = l.CheckAndRecord(ctx, "lot-1", "bob", time.Hour, 5)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, l.Prune())
	assert.Equal(t, 1, l.Stats()["tracked_keys"])
}

func TestMemoryLimiter_ConcurrentCallsCannotExceedLimit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(nil)

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.CheckAndRecord(ctx, "lot-1", "alice", time.Minute, 10); err == nil {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed)
}

func TestMemoryLimiter_RejectsBadPolicy(t *testing.T) {
	l := NewMemoryLimiter(nil)
	_, err := l.CheckAndRecord(context.Background(), "lot-1", "alice", 0, 1)
	assert.Error(t, err)
	_, err = l.CheckAndRecord(context.Background(), "lot-1", "alice", time.Minute, 0)
	assert.Error(t, err)
}
