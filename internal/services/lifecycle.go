package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"

	"ticketlottery/internal/models"
	"ticketlottery/internal/store"
)

// DrawPolicy decides whether an ACTIVE lottery may be drawn at now.
type DrawPolicy func(l *models.Lottery, now time.Time) bool

// DrawDateReached allows a drawing once the draw date has come.
func DrawDateReached(l *models.Lottery, now time.Time) bool {
	return !now.Before(l.DrawDate)
}

// AnyTime allows drawing an ACTIVE lottery whenever it is requested.
func AnyTime(*models.Lottery, time.Time) bool { return true }

// CreateLotteryRequest carries the parameters of a new lottery.
type CreateLotteryRequest struct {
	CampaignID  string         `json:"campaignId"`
	DrawDate    time.Time      `json:"drawDate"`
	TicketPrice int64          `json:"ticketPrice"`
	Currency    string         `json:"currency"`
	MaxTickets  int            `json:"maxTickets"`
	Prizes      []models.Prize `json:"prizes"`
}

func (r *CreateLotteryRequest) validate() error {
	switch {
	case strings.TrimSpace(r.CampaignID) == "":
		return fmt.Errorf("%w: campaignId is required", models.ErrInvalidLottery)
	case strings.TrimSpace(r.Currency) == "":
		return fmt.Errorf("%w: currency is required", models.ErrInvalidLottery)
	case r.TicketPrice < 0:
		return fmt.Errorf("%w: ticketPrice must not be negative", models.ErrInvalidLottery)
	case r.MaxTickets <= 0:
		return fmt.Errorf("%w: maxTickets must be positive", models.ErrInvalidLottery)
	case len(r.Prizes) == 0:
		return fmt.Errorf("%w: at least one prize is required", models.ErrInvalidLottery)
	}
	for i, p := range r.Prizes {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: prize %d has no name", models.ErrInvalidLottery, i+1)
		}
	}
	return nil
}

// LifecycleManager creates lotteries and owns their state machine.
type LifecycleManager struct {
	store     store.Store
	campaigns CampaignResolver
	policy    DrawPolicy
	now       func() time.Time
}

// NewLifecycleManager creates a manager. A nil policy means DrawDateReached,
// a nil clock means time.Now.
func NewLifecycleManager(st store.Store, campaigns CampaignResolver, policy DrawPolicy, now func() time.Time) *LifecycleManager {
	if policy == nil {
		policy = DrawDateReached
	}
	if now == nil {
		now = time.Now
	}
	return &LifecycleManager{store: st, campaigns: campaigns, policy: policy, now: now}
}

// CreateLottery validates req against its campaign and persists a new
// ACTIVE lottery.
func (m *LifecycleManager) CreateLottery(ctx context.Context, req CreateLotteryRequest) (*models.Lottery, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	campaign, err := m.campaigns.ResolveCampaign(ctx, req.CampaignID)
	if err != nil {
		if errors.Is(err, models.ErrCampaignNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrCampaignNotFound, req.CampaignID)
		}
		return nil, fmt.Errorf("resolve campaign %s: %w", req.CampaignID, err)
	}
	if !campaign.LotteryEligible || campaign.Status != models.CampaignStatusActive {
		return nil, fmt.Errorf("%w: %s", models.ErrCampaignNotLotteryEligible, req.CampaignID)
	}

	now := m.now()
	if !req.DrawDate.After(now) {
		return nil, fmt.Errorf("%w: draw date must be in the future", models.ErrInvalidDrawDate)
	}
	if req.DrawDate.After(campaign.EndDate) {
		return nil, fmt.Errorf("%w: draw date is after the campaign end date", models.ErrInvalidDrawDate)
	}

	l := &models.Lottery{
		ID:          uuid.NewString(),
		CampaignID:  req.CampaignID,
		DrawDate:    req.DrawDate,
		TicketPrice: req.TicketPrice,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		MaxTickets:  req.MaxTickets,
		Prizes:      append([]models.Prize(nil), req.Prizes...),
		Status:      models.StatusActive,
		Winners:     []models.Winner{},
		CreatedAt:   now,
	}
	if err := m.store.CreateLottery(ctx, l); err != nil {
		return nil, fmt.Errorf("create lottery: %w", err)
	}

	logger.Infof("Created lottery %s for campaign %s: %d tickets, %d prizes, draw at %s",
		l.ID, l.CampaignID, l.MaxTickets, len(l.Prizes), l.DrawDate.Format(time.RFC3339))
	return l, nil
}

// TransitionToDrawing moves the lottery from ACTIVE to DRAWING. Of several
// concurrent callers at most one succeeds; the others get
// models.ErrLotteryNotDrawable.
func (m *LifecycleManager) TransitionToDrawing(ctx context.Context, id string) (*models.Lottery, error) {
	l, err := m.store.GetLottery(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: lottery %s is %s", models.ErrLotteryNotDrawable, id, l.Status)
	}
	if !m.policy(l, m.now()) {
		return nil, fmt.Errorf("%w: lottery %s draws at %s", models.ErrLotteryNotDrawable, id, l.DrawDate.Format(time.RFC3339))
	}

	if err := m.store.CompareAndSwapStatus(ctx, id, models.StatusActive, models.StatusDrawing); err != nil {
		if errors.Is(err, models.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: lottery %s is no longer active", models.ErrLotteryNotDrawable, id)
		}
		return nil, err
	}

	// Sales may have landed between the read and the swap.
	l, err = m.store.GetLottery(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.Infof("Lottery %s is drawing with %d/%d tickets sold", id, l.SoldTickets, l.MaxTickets)
	return l, nil
}

// TransitionToCompleted stores winners and sets COMPLETED in one step. It is
// only legal from DRAWING.
func (m *LifecycleManager) TransitionToCompleted(ctx context.Context, id string, winners []models.Winner) error {
	if err := m.store.CompleteDrawing(ctx, id, winners); err != nil {
		if errors.Is(err, models.ErrStatusConflict) {
			return fmt.Errorf("%w: lottery %s is not drawing", models.ErrLotteryNotDrawable, id)
		}
		return err
	}
	return nil
}
