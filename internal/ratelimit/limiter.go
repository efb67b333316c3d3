// Package ratelimit bounds how many tickets one user may buy in one lottery
// within a trailing time window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"ticketlottery/internal/models"
)

// Reservation identifies one recorded purchase so it can be withdrawn when
// the ledger append that followed it did not happen.
type Reservation struct {
	LotteryID string
	UserID    string
	ID        string
	At        time.Time
}

// Limiter is a per-(lottery, user) sliding window counter.
type Limiter interface {
	// CheckAndRecord counts the purchases newer than now-window. If that count
	// has reached maxPerWindow it records nothing and returns an error matching
	// models.ErrRateLimitExceeded; otherwise it records now.
	CheckAndRecord(ctx context.Context, lotteryID, userID string, window time.Duration, maxPerWindow int) (*Reservation, error)
	// Cancel removes a recorded purchase.
	Cancel(ctx context.Context, r *Reservation) error
}

// ExceededError reports a throttled purchase and when the next one may pass.
type ExceededError struct {
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: retry after %s", models.ErrRateLimitExceeded, e.RetryAfter)
}

// Is makes errors.Is(err, models.ErrRateLimitExceeded) hold.
func (e *ExceededError) Is(target error) bool {
	return target == models.ErrRateLimitExceeded
}

func key(lotteryID, userID string) string {
	return "{" + lotteryID + "}:" + userID
}
