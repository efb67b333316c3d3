package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"ticketlottery/internal/events"
	"ticketlottery/internal/metrics"
	"ticketlottery/internal/models"
	"ticketlottery/internal/random"
	"ticketlottery/internal/ratelimit"
	"ticketlottery/internal/store"
)

// Dependencies are the collaborators a LotteryService is built from.
// Publisher, Metrics, TracerProvider and Now are optional.
type Dependencies struct {
	Store     store.Store
	Campaigns CampaignResolver
	Limiter   ratelimit.Limiter
	Random    random.Source
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	Now            func() time.Time
}

// Options tune sales and drawing.
type Options struct {
	Sales       SalesPolicy
	NumberWidth int
	DrawPolicy  DrawPolicy
}

// LotteryService is the entry point used by the HTTP handlers, the CLI and
// the scheduler.
type LotteryService struct {
	store     store.Store
	lifecycle *LifecycleManager
	sales     *SalesService
	drawing   *DrawingEngine
	now       func() time.Time
}

// NewLotteryService creates and initializes a new LotteryService.
func NewLotteryService(deps Dependencies, opts Options) (*LotteryService, error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	width := opts.NumberWidth
	if width == 0 {
		width = random.DefaultNumberWidth
	}
	numbers, err := random.NewTicketNumbers(deps.Random, width)
	if err != nil {
		return nil, err
	}

	lifecycle := NewLifecycleManager(deps.Store, deps.Campaigns, opts.DrawPolicy, now)
	s := &LotteryService{
		store:     deps.Store,
		lifecycle: lifecycle,
		sales:     NewSalesService(deps.Store, deps.Limiter, numbers, deps.Publisher, deps.Metrics, opts.Sales, now),
		drawing:   NewDrawingEngine(lifecycle, deps.Store, deps.Random, deps.Publisher, deps.Metrics, now),
		now:       now,
	}
	if deps.TracerProvider != nil {
		s.sales.tracer = deps.TracerProvider.Tracer(tracerName)
		s.drawing.tracer = deps.TracerProvider.Tracer(tracerName)
	}
	return s, nil
}

// CreateLottery creates an ACTIVE lottery for a lottery-eligible campaign.
func (s *LotteryService) CreateLottery(ctx context.Context, req CreateLotteryRequest) (*models.Lottery, error) {
	return s.lifecycle.CreateLottery(ctx, req)
}

// PurchaseTicket issues one ticket.
func (s *LotteryService) PurchaseTicket(ctx context.Context, req PurchaseRequest) (*models.Ticket, error) {
	return s.sales.PurchaseTicket(ctx, req)
}

// PerformDrawing draws the winners of a lottery exactly once.
func (s *LotteryService) PerformDrawing(ctx context.Context, lotteryID string) ([]models.Winner, error) {
	return s.drawing.PerformDrawing(ctx, lotteryID)
}

// GetLottery returns a lottery with its winners, if drawn.
func (s *LotteryService) GetLottery(ctx context.Context, id string) (*models.Lottery, error) {
	return s.store.GetLottery(ctx, id)
}

// ListTickets returns the tickets of a lottery in issue order, limited to
// one user when userID is set.
func (s *LotteryService) ListTickets(ctx context.Context, lotteryID, userID string) ([]models.Ticket, error) {
	tickets, err := s.store.ListTickets(ctx, lotteryID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return tickets, nil
	}
	owned := make([]models.Ticket, 0)
	for _, t := range tickets {
		if t.UserID == userID {
			owned = append(owned, t)
		}
	}
	return owned, nil
}

// ListWinners returns the winners in prize order. It is empty until the
// lottery is COMPLETED.
func (s *LotteryService) ListWinners(ctx context.Context, lotteryID string) ([]models.Winner, error) {
	l, err := s.store.GetLottery(ctx, lotteryID)
	if err != nil {
		return nil, err
	}
	if l.Winners == nil {
		return []models.Winner{}, nil
	}
	return l.Winners, nil
}

// DueLotteries returns the ACTIVE lotteries whose draw date has passed.
func (s *LotteryService) DueLotteries(ctx context.Context) ([]*models.Lottery, error) {
	return s.store.ListDue(ctx, s.now())
}
