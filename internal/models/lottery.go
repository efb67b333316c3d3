package models

import "time"

// Status is the lifecycle state of a lottery. It only ever moves forward:
// ACTIVE -> DRAWING -> COMPLETED.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusDrawing   Status = "DRAWING"
	StatusCompleted Status = "COMPLETED"
)

// Prize represents a single prize in the lottery. Prizes are drawn in the
// order they are configured, so the first prize is awarded first.
type Prize struct {
	Name string `json:"name"`
	Item string `json:"item,omitempty"`
}

// Lottery is a fixed-size pool of numbered tickets attached to a campaign.
type Lottery struct {
	ID          string    `json:"id"`
	CampaignID  string    `json:"campaignId"`
	DrawDate    time.Time `json:"drawDate"`
	TicketPrice int64     `json:"ticketPrice"` // minor currency units
	Currency    string    `json:"currency"`
	MaxTickets  int       `json:"maxTickets"`
	SoldTickets int       `json:"soldTickets"`
	Prizes      []Prize   `json:"prizes"`
	Status      Status    `json:"status"`
	Winners     []Winner  `json:"winners"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SoldOut reports whether no further ticket can be issued.
func (l *Lottery) SoldOut() bool {
	return l.Status != StatusActive || l.SoldTickets >= l.MaxTickets
}

// Ticket is one issued entry in a lottery's ledger.
type Ticket struct {
	LotteryID     string    `json:"lotteryId"`
	Number        string    `json:"number"`
	UserID        string    `json:"userId"`
	PurchaseDate  time.Time `json:"purchaseDate"`
	TransactionID string    `json:"transactionId"`
}

// Winner binds a drawn ticket to the prize it won.
type Winner struct {
	UserID       string    `json:"userId"`
	TicketNumber string    `json:"ticketNumber"`
	Prize        Prize     `json:"prize"`
	DrawDate     time.Time `json:"drawDate"`
}

// Campaign is the read-only view of the owning campaign that lottery
// creation is validated against.
type Campaign struct {
	ID              string    `json:"id"`
	LotteryEligible bool      `json:"lotteryEligible"`
	Status          string    `json:"status"`
	EndDate         time.Time `json:"endDate"`
}

// CampaignStatusActive is the only campaign status that accepts new lotteries.
const CampaignStatusActive = "ACTIVE"
