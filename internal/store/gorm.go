package store

import (
	"context"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/logger"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"ticketlottery/internal/models"
)

const mysqlDuplicateEntry = 1062

// GormStore is the Store implementation backed by MySQL through GORM.
// Capacity and status checks are conditional UPDATEs, so concurrent writers
// in different processes cannot oversell or double-transition a lottery.
type GormStore struct {
	db *gorm.DB
}

// OpenMySQL connects to MySQL with the given DSN.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	return db, nil
}

// NewGormStore creates a GORM store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the lotteries, tickets and winners tables.
func (s *GormStore) AutoMigrate() error {
	return errors.Wrap(s.db.AutoMigrate(&lotteryModel{}, &ticketModel{}, &winnerModel{}), "auto migrate")
}

// CreateLottery implements Store.
func (s *GormStore) CreateLottery(ctx context.Context, l *models.Lottery) error {
	if err := s.db.WithContext(ctx).Create(toLotteryModel(l)).Error; err != nil {
		return errors.Wrapf(err, "create lottery %s", l.ID)
	}
	return nil
}

// GetLottery implements Store. Winners are loaded for completed lotteries.
func (s *GormStore) GetLottery(ctx context.Context, id string) (*models.Lottery, error) {
	var m lotteryModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrLotteryNotFound
		}
		return nil, errors.Wrapf(err, "get lottery %s", id)
	}

	l := toDomainLottery(&m)
	if l.Status == models.StatusCompleted {
		var rows []winnerModel
		if err := s.db.WithContext(ctx).Where("lottery_id = ?", id).Order("position").Find(&rows).Error; err != nil {
			return nil, errors.Wrapf(err, "load winners of lottery %s", id)
		}
		for _, w := range rows {
			l.Winners = append(l.Winners, models.Winner{
				UserID:       w.UserID,
				TicketNumber: w.TicketNumber,
				Prize:        w.Prize,
				DrawDate:     w.DrawDate,
			})
		}
	}
	return l, nil
}

// AppendTicket implements Store.
func (s *GormStore) AppendTicket(ctx context.Context, t *models.Ticket) (int, error) {
	var sold int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&lotteryModel{}).
			Where("id = ? AND status = ? AND sold_tickets < max_tickets", t.LotteryID, models.StatusActive).
			UpdateColumn("sold_tickets", gorm.Expr("sold_tickets + 1"))
		if res.Error != nil {
			return errors.Wrap(res.Error, "reserve ticket slot")
		}
		if res.RowsAffected == 0 {
			found, err := lotteryExists(tx, t.LotteryID)
			if err != nil {
				return err
			}
			if !found {
				return models.ErrLotteryNotFound
			}
			return models.ErrLotterySoldOut
		}

		if err := tx.Create(toTicketModel(t)).Error; err != nil {
			return translateDuplicate(err)
		}

		if err := tx.Model(&lotteryModel{}).Select("sold_tickets").Where("id = ?", t.LotteryID).Scan(&sold).Error; err != nil {
			return errors.Wrap(err, "read sold tickets")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sold, nil
}

// translateDuplicate maps a unique-key violation on the tickets table to the
// domain error naming the violated constraint.
func translateDuplicate(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		if strings.Contains(me.Message, "idx_ticket_transaction") {
			return models.ErrDuplicateTransaction
		}
		return models.ErrDuplicateTicketNumber
	}
	return errors.Wrap(err, "insert ticket")
}

func lotteryExists(tx *gorm.DB, id string) (bool, error) {
	var n int64
	if err := tx.Model(&lotteryModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, errors.Wrapf(err, "look up lottery %s", id)
	}
	return n > 0, nil
}

// FindTicketByTransaction implements Store.
func (s *GormStore) FindTicketByTransaction(ctx context.Context, lotteryID, transactionID string) (*models.Ticket, error) {
	var m ticketModel
	err := s.db.WithContext(ctx).Where("lottery_id = ? AND transaction_id = ?", lotteryID, transactionID).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find ticket by transaction")
	}
	t := toDomainTicket(&m)
	return &t, nil
}

// ListTickets implements Store.
func (s *GormStore) ListTickets(ctx context.Context, lotteryID string) ([]models.Ticket, error) {
	db := s.db.WithContext(ctx)
	found, err := lotteryExists(db, lotteryID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.ErrLotteryNotFound
	}

	var rows []ticketModel
	if err := db.Where("lottery_id = ?", lotteryID).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "list tickets of lottery %s", lotteryID)
	}
	tickets := make([]models.Ticket, len(rows))
	for i := range rows {
		tickets[i] = toDomainTicket(&rows[i])
	}
	return tickets, nil
}

// CompareAndSwapStatus implements Store.
func (s *GormStore) CompareAndSwapStatus(ctx context.Context, id string, from, to models.Status) error {
	return swapStatus(s.db.WithContext(ctx), id, from, to)
}

func swapStatus(tx *gorm.DB, id string, from, to models.Status) error {
	res := tx.Model(&lotteryModel{}).Where("id = ? AND status = ?", id, from).Update("status", to)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update status of lottery %s", id)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	found, err := lotteryExists(tx, id)
	if err != nil {
		return err
	}
	if !found {
		return models.ErrLotteryNotFound
	}
	return models.ErrStatusConflict
}

// CompleteDrawing implements Store.
func (s *GormStore) CompleteDrawing(ctx context.Context, id string, winners []models.Winner) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := swapStatus(tx, id, models.StatusDrawing, models.StatusCompleted); err != nil {
			return err
		}
		if len(winners) == 0 {
			return nil
		}

		rows := make([]winnerModel, len(winners))
		for i, w := range winners {
			rows[i] = winnerModel{
				LotteryID:    id,
				Position:     i,
				TicketNumber: w.TicketNumber,
				UserID:       w.UserID,
				Prize:        w.Prize,
				DrawDate:     w.DrawDate,
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			logger.Errorf("store: insert %d winners of lottery %s: %v", len(rows), id, err)
			return errors.Wrap(err, "insert winners")
		}
		return nil
	})
}

// ListDue implements Store.
func (s *GormStore) ListDue(ctx context.Context, now time.Time) ([]*models.Lottery, error) {
	var rows []lotteryModel
	err := s.db.WithContext(ctx).
		Where("status = ? AND draw_date <= ?", models.StatusActive, now).
		Order("draw_date").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list due lotteries")
	}
	due := make([]*models.Lottery, len(rows))
	for i := range rows {
		due[i] = toDomainLottery(&rows[i])
	}
	return due, nil
}
