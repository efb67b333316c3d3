// Package events defines the notifications the engine emits for external
// subscribers, such as a winner notifier.
package events

import (
	"context"
	"sync"
	"time"

	"ticketlottery/internal/models"
)

// Type names an event on the wire.
type Type string

const (
	TypeTicketIssued     Type = "ticket.issued"
	TypeLotterySoldOut   Type = "lottery.sold_out"
	TypeDrawingCompleted Type = "drawing.completed"
)

// Event is the envelope published for every notification.
type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	LotteryID  string          `json:"lotteryId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Ticket     *models.Ticket  `json:"ticket,omitempty"`
	Winners    []models.Winner `json:"winners,omitempty"`
}

// Publisher delivers events. Publishing happens after the ledger change is
// committed, so a failure is reported but never undoes the change.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
