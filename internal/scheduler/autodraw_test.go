package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketlottery/internal/models"
)

type fakeDrawer struct {
	mu      sync.Mutex
	due     []*models.Lottery
	dueErr  error
	results map[string]error
	drawn   []string
}

func (d *fakeDrawer) DueLotteries(context.Context) ([]*models.Lottery, error) {
	return d.due, d.dueErr
}

func (d *fakeDrawer) PerformDrawing(_ context.Context, id string) ([]models.Winner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drawn = append(d.drawn, id)
	if err := d.results[id]; err != nil {
		return nil, err
	}
	return []models.Winner{{UserID: "u", TicketNumber: "1"}}, nil
}

func (d *fakeDrawer) attempts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.drawn...)
}

func TestAutoDrawer_RunOnce(t *testing.T) {
	d := &fakeDrawer{
		due: []*models.Lottery{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		results: map[string]error{
			"b": fmt.Errorf("%w: lottery b is DRAWING", models.ErrLotteryNotDrawable),
			"c": errors.New("db down"),
		},
	}
	a, err := NewAutoDrawer(d, "@every 1m")
	require.NoError(t, err)

	assert.Equal(t, 1, a.RunOnce(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, d.attempts())
}

func TestAutoDrawer_ListFailure(t *testing.T) {
	d := &fakeDrawer{dueErr: errors.New("db down")}
	a, err := NewAutoDrawer(d, "*/5 * * * *")
	require.NoError(t, err)

	assert.Equal(t, 0, a.RunOnce(context.Background()))
	assert.Empty(t, d.attempts())
}

func TestAutoDrawer_InvalidSchedule(t *testing.T) {
	_, err := NewAutoDrawer(&fakeDrawer{}, "every minute")
	assert.Error(t, err)
}

func TestAutoDrawer_RunStopsWithContext(t *testing.T) {
	d := &fakeDrawer{due: []*models.Lottery{{ID: "a"}}}
	a, err := NewAutoDrawer(d, "@every 1s")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(d.attempts()) > 0 }, 5*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
