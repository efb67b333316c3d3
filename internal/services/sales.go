package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
	"ticketlottery/internal/ratelimit"
	"ticketlottery/internal/store"
)

const tracerName = "ticketlottery/internal/services"

// SalesPolicy bounds ticket purchases.
type SalesPolicy struct {
	Window            time.Duration
	MaxPerWindow      int
	MaxNumberAttempts int
}

// DefaultSalesPolicy allows 100 tickets per user and lottery in 5 minutes.
var DefaultSalesPolicy = SalesPolicy{
	Window:            5 * time.Minute,
	MaxPerWindow:      100,
	MaxNumberAttempts: 16,
}

// PurchaseRequest asks for one ticket. TransactionID references the payment
// that covers it; a repeated request with the same TransactionID returns the
// ticket already issued for it.
type PurchaseRequest struct {
	LotteryID     string `json:"-"`
	UserID        string `json:"userId"`
	Currency      string `json:"currency"`
	TransactionID string `json:"transactionId"`
}

// SalesService is the only component that issues tickets.
type SalesService struct {
	store     store.Store
	limiter   ratelimit.Limiter
	numbers   *random.TicketNumbers
	publisher events.Publisher
	metrics   *metrics.Metrics
	policy    SalesPolicy
	locks     *lockSet
	now       func() time.Time
	tracer    trace.Tracer
}

// NewSalesService wires a sales service. publisher and m may be nil.
func NewSalesService(st store.Store, limiter ratelimit.Limiter, numbers *random.TicketNumbers,
	publisher events.Publisher, m *metrics.Metrics, policy SalesPolicy, now func() time.Time) *SalesService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	if policy.MaxNumberAttempts <= 0 {
		policy.MaxNumberAttempts = DefaultSalesPolicy.MaxNumberAttempts
	}
	return &SalesService{
		store:     st,
		limiter:   limiter,
		numbers:   numbers,
		publisher: publisher,
		metrics:   m,
		policy:    policy,
		locks:     newLockSet(),
		now:       now,
		tracer:    otel.Tracer(tracerName),
	}
}

// PurchaseTicket issues one ticket for req.UserID.
//
// Availability, the rate limit and the ledger append run under a per-lottery
// lock. The store re-checks capacity and status on append, so the bound also
// holds when several processes share one store.
func (s *SalesService) PurchaseTicket(ctx context.Context, req PurchaseRequest) (*models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "SalesService.PurchaseTicket", trace.WithAttributes(
		attribute.String("lottery.id", req.LotteryID),
		attribute.String("user.id", req.UserID),
	))
	defer span.End()

	t, err := s.purchase(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.PurchaseRejected(rejectReason(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("ticket.number", t.Number))
	return t, nil
}

func (s *SalesService) purchase(ctx context.Context, req PurchaseRequest) (*models.Ticket, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: userId is required", models.ErrInvalidPurchase)
	}
	if strings.TrimSpace(req.Currency) == "" {
		return nil, fmt.Errorf("%w: currency is required", models.ErrInvalidPurchase)
	}

	unlock := s.locks.Lock(req.LotteryID)
	defer unlock()

	l, err := s.store.GetLottery(ctx, req.LotteryID)
	if err != nil {
		return nil, err
	}

	if req.TransactionID != "" {
		existing, err := s.store.FindTicketByTransaction(ctx, req.LotteryID, req.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("look up transaction %s: %w", req.TransactionID, err)
		}
		if existing != nil {
			return replayed(existing, req.UserID)
		}
	}

	if l.SoldOut() {
		return nil, fmt.Errorf("%w: lottery %s (%s, %d/%d)", models.ErrLotterySoldOut, l.ID, l.Status, l.SoldTickets, l.MaxTickets)
	}
	if !strings.EqualFold(strings.TrimSpace(req.Currency), l.Currency) {
		return nil, fmt.Errorf("%w: got %s, lottery sells in %s", models.ErrCurrencyMismatch, req.Currency, l.Currency)
	}

	reservation, err := s.limiter.CheckAndRecord(ctx, req.LotteryID, req.UserID, s.policy.Window, s.policy.MaxPerWindow)
	if err != nil {
		return nil, err
	}

	txID := req.TransactionID
	if txID == "" {
		txID = uuid.NewString()
	}

	t, sold, err := s.appendWithFreshNumber(ctx, req.LotteryID, req.UserID, txID)
	if err != nil {
		if cerr := s.limiter.Cancel(ctx, reservation); cerr != nil {
			logger.Warningf("Could not release rate limit reservation of %s in lottery %s: %v", req.UserID, req.LotteryID, cerr)
		}
		if errors.Is(err, models.ErrDuplicateTransaction) {
			// Another process issued the ticket for this transaction first.
			existing, ferr := s.store.FindTicketByTransaction(ctx, req.LotteryID, txID)
			if ferr == nil && existing != nil {
				return replayed(existing, req.UserID)
			}
		}
		return nil, err
	}

	s.metrics.TicketIssued()
	s.publish(ctx, events.Event{Type: events.TypeTicketIssued, LotteryID: l.ID, Ticket: t})
	if sold >= l.MaxTickets {
		logger.Infof("Lottery %s sold out (%d tickets)", l.ID, sold)
		s.publish(ctx, events.Event{Type: events.TypeLotterySoldOut, LotteryID: l.ID})
	}
	return t, nil
}

// appendWithFreshNumber draws ticket numbers until one is not yet taken in
// the lottery.
func (s *SalesService) appendWithFreshNumber(ctx context.Context, lotteryID, userID, txID string) (*models.Ticket, int, error) {
	for attempt := 1; attempt <= s.policy.MaxNumberAttempts; attempt++ {
		number, err := s.numbers.Next()
		if err != nil {
			return nil, 0, fmt.Errorf("generate ticket number: %w", err)
		}

		t := &models.Ticket{
			LotteryID:     lotteryID,
			Number:        number,
			UserID:        userID,
			PurchaseDate:  s.now(),
			TransactionID: txID,
		}
		sold, err := s.store.AppendTicket(ctx, t)
		if errors.Is(err, models.ErrDuplicateTicketNumber) {
			logger.Warningf("Ticket number collision in lottery %s (attempt %d)", lotteryID, attempt)
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		return t, sold, nil
	}
	return nil, 0, fmt.Errorf("%w: lottery %s after %d attempts", models.ErrTicketNumberExhausted, lotteryID, s.policy.MaxNumberAttempts)
}

func (s *SalesService) publish(ctx context.Context, e events.Event) {
	e.ID = uuid.NewString()
	e.OccurredAt = s.now()
	if err := s.publisher.Publish(ctx, e); err != nil {
		logger.Errorf("Failed to publish %s for lottery %s: %v", e.Type, e.LotteryID, err)
	}
}

// replayed returns the ticket already issued for a transaction. A transaction
// presented by a user other than the ticket owner is a conflict.
func replayed(existing *models.Ticket, userID string) (*models.Ticket, error) {
	if existing.UserID != userID {
		logger.Warningf("Transaction %s in lottery %s presented by %s, ticket %s belongs to %s",
			existing.TransactionID, existing.LotteryID, userID, existing.Number, existing.UserID)
		return nil, fmt.Errorf("%w: transaction %s belongs to another user", models.ErrDuplicateTransaction, existing.TransactionID)
	}
	logger.Infof("Replayed purchase for transaction %s in lottery %s: ticket %s", existing.TransactionID, existing.LotteryID, existing.Number)
	return existing, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, models.ErrLotteryNotFound):
		return "not_found"
	case errors.Is(err, models.ErrLotterySoldOut):
		return "sold_out"
	case errors.Is(err, models.ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, models.ErrCurrencyMismatch):
		return "currency_mismatch"
	case errors.Is(err, models.ErrInvalidPurchase):
		return "invalid"
	case errors.Is(err, models.ErrTicketNumberExhausted):
		return "number_exhausted"
	case errors.Is(err, models.ErrDuplicateTransaction):
		return "duplicate_transaction"
	default:
		return "error"
	}
}
