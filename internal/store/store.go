// Package store persists lotteries and their ticket ledgers.
//
// Every mutating method is atomic on its own: capacity and status are
// re-checked inside the same critical section (or transaction) that writes.
package store

import (
	"context"
	"time"

	"ticketlottery/internal/models"
)

// Store is the ticket ledger together with lottery state.
type Store interface {
	// CreateLottery persists a new lottery.
	CreateLottery(ctx context.Context, l *models.Lottery) error

	// GetLottery returns the lottery without its tickets.
	GetLottery(ctx context.Context, id string) (*models.Lottery, error)

	// AppendTicket adds t to the ledger and increments soldTickets. It fails
	// with models.ErrLotterySoldOut when the lottery is not ACTIVE or full, and
	// with models.ErrDuplicateTicketNumber when t.Number is already issued, and
	// with models.ErrDuplicateTransaction when t.TransactionID already has a ticket.
	// It returns the soldTickets count after the append.
	AppendTicket(ctx context.Context, t *models.Ticket) (int, error)

	// FindTicketByTransaction returns the ticket issued for a payment
	// transaction, or nil if there is none.
	FindTicketByTransaction(ctx context.Context, lotteryID, transactionID string) (*models.Ticket, error)

	// ListTickets returns the ledger in issue order.
	ListTickets(ctx context.Context, lotteryID string) ([]models.Ticket, error)

	// CompareAndSwapStatus moves the lottery from one status to another and
	// fails with models.ErrStatusConflict if the current status is not from.
	CompareAndSwapStatus(ctx context.Context, id string, from, to models.Status) error

	// CompleteDrawing stores winners and sets COMPLETED in one step. It fails
	// with models.ErrStatusConflict unless the lottery is DRAWING.
	CompleteDrawing(ctx context.Context, id string, winners []models.Winner) error

	// ListDue returns ACTIVE lotteries whose draw date is not after now.
	ListDue(ctx context.Context, now time.Time) ([]*models.Lottery, error)
}
