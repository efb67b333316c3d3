package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"ticketlottery/internal/models"
)

// MemoryStore keeps all lotteries in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	lotteries map[string]*lotteryRecord // Key: lotteryID
}

type lotteryRecord struct {
	lottery *models.Lottery
	tickets []models.Ticket
	// numbers and transactions index tickets for collision and replay checks.
	numbers      map[string]struct{}
	transactions map[string]int // transactionID -> index in tickets
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lotteries: make(map[string]*lotteryRecord),
	}
}

func cloneLottery(l *models.Lottery) *models.Lottery {
	c := *l
	c.Prizes = append([]models.Prize(nil), l.Prizes...)
	c.Winners = append([]models.Winner{}, l.Winners...)
	return &c
}

// CreateLottery implements Store.
func (s *MemoryStore) CreateLottery(_ context.Context, l *models.Lottery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lotteries[l.ID] = &lotteryRecord{
		lottery:      cloneLottery(l),
		numbers:      make(map[string]struct{}),
		transactions: make(map[string]int),
	}
	return nil
}

// GetLottery implements Store.
func (s *MemoryStore) GetLottery(_ context.Context, id string) (*models.Lottery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.lotteries[id]
	if !ok {
		return nil, models.ErrLotteryNotFound
	}
	return cloneLottery(rec.lottery), nil
}

// AppendTicket implements Store.
func (s *MemoryStore) AppendTicket(_ context.Context, t *models.Ticket) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lotteries[t.LotteryID]
	if !ok {
		return 0, models.ErrLotteryNotFound
	}
	if rec.lottery.SoldOut() {
		return rec.lottery.SoldTickets, models.ErrLotterySoldOut
	}
	if _, taken := rec.numbers[t.Number]; taken {
		return rec.lottery.SoldTickets, models.ErrDuplicateTicketNumber
	}
	if _, seen := rec.transactions[t.TransactionID]; seen && t.TransactionID != "" {
		return rec.lottery.SoldTickets, models.ErrDuplicateTransaction
	}

	rec.tickets = append(rec.tickets, *t)
	rec.numbers[t.Number] = struct{}{}
	if t.TransactionID != "" {
		rec.transactions[t.TransactionID] = len(rec.tickets) - 1
	}
	rec.lottery.SoldTickets++
	return rec.lottery.SoldTickets, nil
}

// FindTicketByTransaction implements Store.
func (s *MemoryStore) FindTicketByTransaction(_ context.Context, lotteryID, transactionID string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.lotteries[lotteryID]
	if !ok {
		return nil, models.ErrLotteryNotFound
	}
	i, ok := rec.transactions[transactionID]
	if !ok {
		return nil, nil
	}
	t := rec.tickets[i]
	return &t, nil
}

// ListTickets implements Store.
func (s *MemoryStore) ListTickets(_ context.Context, lotteryID string) ([]models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.lotteries[lotteryID]
	if !ok {
		return nil, models.ErrLotteryNotFound
	}
	return append([]models.Ticket(nil), rec.tickets...), nil
}

// CompareAndSwapStatus implements Store.
func (s *MemoryStore) CompareAndSwapStatus(_ context.Context, id string, from, to models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lotteries[id]
	if !ok {
		return models.ErrLotteryNotFound
	}
	if rec.lottery.Status != from {
		return models.ErrStatusConflict
	}
	rec.lottery.Status = to
	return nil
}

// CompleteDrawing implements Store.
func (s *MemoryStore) CompleteDrawing(_ context.Context, id string, winners []models.Winner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lotteries[id]
	if !ok {
		return models.ErrLotteryNotFound
	}
	if rec.lottery.Status != models.StatusDrawing {
		return models.ErrStatusConflict
	}
	rec.lottery.Winners = append([]models.Winner(nil), winners...)
	rec.lottery.Status = models.StatusCompleted
	return nil
}

// ListDue implements Store.
func (s *MemoryStore) ListDue(_ context.Context, now time.Time) ([]*models.Lottery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.Lottery
	for _, rec := range s.lotteries {
		if rec.lottery.Status == models.StatusActive && !rec.lottery.DrawDate.After(now) {
			due = append(due, cloneLottery(rec.lottery))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DrawDate.Before(due[j].DrawDate) })
	return due, nil
}
