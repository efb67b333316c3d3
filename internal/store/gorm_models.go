package store

import (
	"time"

	"ticketlottery/internal/models"
)

// lotteryModel maps to the lotteries table.
type lotteryModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	CampaignID  string    `gorm:"size:64;index"`
	DrawDate    time.Time `gorm:"index"`
	TicketPrice int64
	Currency    string `gorm:"size:8"`
	MaxTickets  int
	SoldTickets int
	Prizes      []models.Prize `gorm:"serializer:json;type:json"`
	Status      models.Status  `gorm:"size:16;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (lotteryModel) TableName() string {
	return "lotteries"
}

// ticketModel maps to the tickets table. Ticket numbers and payment
// transactions are unique per lottery.
type ticketModel struct {
	ID            uint   `gorm:"primaryKey"`
	LotteryID     string `gorm:"size:36;uniqueIndex:idx_ticket_number,priority:1;uniqueIndex:idx_ticket_transaction,priority:1"`
	Number        string `gorm:"size:32;uniqueIndex:idx_ticket_number,priority:2"`
	TransactionID string `gorm:"size:64;uniqueIndex:idx_ticket_transaction,priority:2"`
	UserID        string `gorm:"size:64;index"`
	PurchaseDate  time.Time
}

func (ticketModel) TableName() string {
	return "tickets"
}

// winnerModel maps to the winners table. Position keeps prize order.
type winnerModel struct {
	ID           uint         `gorm:"primaryKey"`
	LotteryID    string       `gorm:"size:36;uniqueIndex:idx_winner_position,priority:1;uniqueIndex:idx_winner_ticket,priority:1"`
	Position     int          `gorm:"uniqueIndex:idx_winner_position,priority:2"`
	TicketNumber string       `gorm:"size:32;uniqueIndex:idx_winner_ticket,priority:2"`
	UserID       string       `gorm:"size:64"`
	Prize        models.Prize `gorm:"serializer:json;type:json"`
	DrawDate     time.Time
}

func (winnerModel) TableName() string {
	return "winners"
}

func toLotteryModel(l *models.Lottery) *lotteryModel {
	return &lotteryModel{
		ID:          l.ID,
		CampaignID:  l.CampaignID,
		DrawDate:    l.DrawDate,
		TicketPrice: l.TicketPrice,
		Currency:    l.Currency,
		MaxTickets:  l.MaxTickets,
		SoldTickets: l.SoldTickets,
		Prizes:      l.Prizes,
		Status:      l.Status,
		CreatedAt:   l.CreatedAt,
	}
}

func toDomainLottery(m *lotteryModel) *models.Lottery {
	return &models.Lottery{
		ID:          m.ID,
		CampaignID:  m.CampaignID,
		DrawDate:    m.DrawDate,
		TicketPrice: m.TicketPrice,
		Currency:    m.Currency,
		MaxTickets:  m.MaxTickets,
		SoldTickets: m.SoldTickets,
		Prizes:      m.Prizes,
		Status:      m.Status,
		Winners:     []models.Winner{},
		CreatedAt:   m.CreatedAt,
	}
}

func toTicketModel(t *models.Ticket) *ticketModel {
	return &ticketModel{
		LotteryID:     t.LotteryID,
		Number:        t.Number,
		TransactionID: t.TransactionID,
		UserID:        t.UserID,
		PurchaseDate:  t.PurchaseDate,
	}
}

func toDomainTicket(m *ticketModel) models.Ticket {
	return models.Ticket{
		LotteryID:     m.LotteryID,
		Number:        m.Number,
		UserID:        m.UserID,
		PurchaseDate:  m.PurchaseDate,
		TransactionID: m.TransactionID,
	}
}
