package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
)

// MemoryLimiter keeps purchase timestamps per key in process memory.
// A bucket never holds more than maxPerWindow live entries, and idle buckets
// are dropped by Prune.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	entries []entry // ordered by time
	window  time.Duration
}

type entry struct {
	id string
	at time.Time
}

// NewMemoryLimiter creates a limiter. A nil clock means time.Now.
func NewMemoryLimiter(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		now:     now,
	}
}

// CheckAndRecord implements Limiter.
func (l *MemoryLimiter) CheckAndRecord(_ context.Context, lotteryID, userID string, window time.Duration, maxPerWindow int) (*Reservation, error) {
	if window <= 0 || maxPerWindow <= 0 {
		return nil, errors.New("ratelimit: window and limit must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key(lotteryID, userID)
	b, ok := l.buckets[k]
	if !ok {
		b = &bucket{}
		l.buckets[k] = b
	}
	b.window = window
	b.expire(now)

	if n := len(b.entries); n >= maxPerWindow {
		oldest := b.entries[n-maxPerWindow]
		return nil, &ExceededError{RetryAfter: oldest.at.Add(window).Sub(now)}
	}

	r := &Reservation{LotteryID: lotteryID, UserID: userID, ID: uuid.NewString(), At: now}
	b.entries = append(b.entries, entry{id: r.ID, at: now})
	return r, nil
}

// Cancel implements Limiter.
func (l *MemoryLimiter) Cancel(_ context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key(r.LotteryID, r.UserID)]
	if !ok {
		return nil
	}
	for i, e := range b.entries {
		if e.id == r.ID {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			break
		}
	}
	return nil
}

// expire drops entries that are not newer than now-window.
func (b *bucket) expire(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.entries) && !b.entries[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		b.entries = append(b.entries[:0], b.entries[i:]...)
	}
}

// Prune removes buckets with no live entries and returns how many it dropped.
func (l *MemoryLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	dropped := 0
	for k, b := range l.buckets {
		b.expire(now)
		if len(b.entries) == 0 {
			delete(l.buckets, k)
			dropped++
		}
	}
	return dropped
}

// Run prunes every interval until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Prune(); n > 0 {
				logger.Infof("ratelimit: pruned %d idle buckets", n)
			}
		}
	}
}

// Stats returns limiter statistics for monitoring.
func (l *MemoryLimiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	live := 0
	for _, b := range l.buckets {
		live += len(b.entries)
	}
	return map[string]interface{}{
		"tracked_keys":     len(l.buckets),
		"recorded_entries": live,
	}
}
