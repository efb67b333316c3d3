// Package scheduler draws lotteries automatically once their draw date has
// passed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/logger"
	"github.com/robfig/cron/v3"

	"ticketlottery/internal/models"
)

// Drawer is the part of the lottery service the scheduler needs.
type Drawer interface {
	DueLotteries(ctx context.Context) ([]*models.Lottery, error)
	PerformDrawing(ctx context.Context, lotteryID string) ([]models.Winner, error)
}

// AutoDrawer runs RunOnce on a cron schedule.
type AutoDrawer struct {
	drawer   Drawer
	schedule cron.Schedule
	spec     string
}

// NewAutoDrawer validates spec, a standard cron expression or a descriptor
// such as "@every 1m".
func NewAutoDrawer(drawer Drawer, spec string) (*AutoDrawer, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	return &AutoDrawer{drawer: drawer, schedule: schedule, spec: spec}, nil
}

// Run draws due lotteries on schedule until ctx is done. A run that is still
// going when the next one is due makes the next one skip.
func (a *AutoDrawer) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(a.schedule, cron.FuncJob(func() {
		if n := a.RunOnce(ctx); n > 0 {
			logger.Infof("scheduler: drew %d lotteries", n)
		}
	}))

	logger.Infof("scheduler: auto-draw scheduled %q", a.spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOnce draws every lottery that is due and returns how many completed.
// A lottery another caller is already drawing is skipped.
func (a *AutoDrawer) RunOnce(ctx context.Context) int {
	due, err := a.drawer.DueLotteries(ctx)
	if err != nil {
		logger.Errorf("scheduler: listing due lotteries failed: %v", err)
		return 0
	}

	drawn := 0
	for _, l := range due {
		if ctx.Err() != nil {
			break
		}
		winners, err := a.drawer.PerformDrawing(ctx, l.ID)
		switch {
		case err == nil:
			drawn++
			logger.Infof("scheduler: lottery %s drawn, %d winners", l.ID, len(winners))
		case errors.Is(err, models.ErrLotteryNotDrawable):
			logger.Infof("scheduler: lottery %s skipped: %v", l.ID, err)
		default:
			logger.Errorf("scheduler: drawing lottery %s failed: %v", l.ID, err)
		}
	}
	return drawn
}
