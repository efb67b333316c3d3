package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ticketlottery/internal/events"
	"ticketlottery/internal/metrics"
	"ticketlottery/internal/models"
	"ticketlottery/internal/random"
	"ticketlottery/internal/store"
)

// DrawPersistenceError reports winners that were drawn but not stored. The
// lottery stays in DRAWING and must be reconciled by hand from Winners; it
// is never drawn again.
type DrawPersistenceError struct {
	LotteryID string
	Winners   []models.Winner
	Err       error
}

func (e *DrawPersistenceError) Error() string {
	return fmt.Sprintf("%s: lottery %s: %v", models.ErrDrawNotPersisted, e.LotteryID, e.Err)
}

func (e *DrawPersistenceError) Unwrap() []error {
	return []error{models.ErrDrawNotPersisted, e.Err}
}

// DrawingEngine selects winners once per lottery.
type DrawingEngine struct {
	lifecycle *LifecycleManager
	store     store.Store
	src       random.Source
	publisher events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
	tracer    trace.Tracer
}

// NewDrawingEngine wires a drawing engine. publisher and m may be nil.
func NewDrawingEngine(lifecycle *LifecycleManager, st store.Store, src random.Source,
	publisher events.Publisher, m *metrics.Metrics, now func() time.Time) *DrawingEngine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &DrawingEngine{
		lifecycle: lifecycle,
		store:     st,
		src:       src,
		publisher: publisher,
		metrics:   m,
		now:       now,
		tracer:    otel.Tracer(tracerName),
	}
}

// PerformDrawing takes the DRAWING lock, draws one distinct ticket per prize
// in prize order and completes the lottery. With fewer tickets than prizes
// the trailing prizes stay unawarded.
func (d *DrawingEngine) PerformDrawing(ctx context.Context, lotteryID string) ([]models.Winner, error) {
	ctx, span := d.tracer.Start(ctx, "DrawingEngine.PerformDrawing", trace.WithAttributes(
		attribute.String("lottery.id", lotteryID),
	))
	defer span.End()

	start := time.Now()
	winners, err := d.draw(ctx, lotteryID)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.DrawFinished(drawOutcome(err), elapsed, 0)
		return nil, err
	}
	span.SetAttributes(attribute.Int("lottery.winners", len(winners)))
	d.metrics.DrawFinished("completed", elapsed, len(winners))
	return winners, nil
}

func (d *DrawingEngine) draw(ctx context.Context, lotteryID string) ([]models.Winner, error) {
	l, err := d.lifecycle.TransitionToDrawing(ctx, lotteryID)
	if err != nil {
		return nil, err
	}

	// From here on the lottery is DRAWING; a cancelled caller must not leave
	// the drawing half done.
	ctx = context.WithoutCancel(ctx)

	pool, err := d.store.ListTickets(ctx, lotteryID)
	if err != nil {
		logger.Errorf("Lottery %s is stuck in DRAWING: loading tickets failed: %v", lotteryID, err)
		return nil, fmt.Errorf("load tickets of lottery %s: %w", lotteryID, err)
	}

	drawDate := d.now()
	winners := make([]models.Winner, 0, min(len(l.Prizes), len(pool)))
	for _, prize := range l.Prizes {
		if len(pool) == 0 {
			break
		}
		i, err := d.src.Intn(len(pool))
		if err != nil {
			logger.Errorf("Lottery %s is stuck in DRAWING: random source failed: %v", lotteryID, err)
			return nil, fmt.Errorf("draw %q in lottery %s: %w", prize.Name, lotteryID, err)
		}
		t := pool[i]
		pool = append(pool[:i], pool[i+1:]...)

		winners = append(winners, models.Winner{
			UserID:       t.UserID,
			TicketNumber: t.Number,
			Prize:        prize,
			DrawDate:     drawDate,
		})
	}

	if err := d.lifecycle.TransitionToCompleted(ctx, lotteryID, winners); err != nil {
		logger.Errorf("Lottery %s: %d winners drawn but not persisted, manual reconciliation required: %+v (%v)",
			lotteryID, len(winners), winners, err)
		return nil, &DrawPersistenceError{LotteryID: lotteryID, Winners: winners, Err: err}
	}

	logger.Infof("Lottery %s completed with %d winners from %d tickets", lotteryID, len(winners), l.SoldTickets)
	if err := d.publisher.Publish(ctx, events.Event{
		ID:         uuid.NewString(),
		Type:       events.TypeDrawingCompleted,
		LotteryID:  lotteryID,
		OccurredAt: drawDate,
		Winners:    winners,
	}); err != nil {
		logger.Errorf("Failed to publish %s for lottery %s: %v", events.TypeDrawingCompleted, lotteryID, err)
	}
	return winners, nil
}

func drawOutcome(err error) string {
	var perr *DrawPersistenceError
	switch {
	case errors.As(err, &perr):
		return "not_persisted"
	case errors.Is(err, models.ErrLotteryNotDrawable):
		return "not_drawable"
	case errors.Is(err, models.ErrLotteryNotFound):
		return "not_found"
	default:
		return "error"
	}
}
