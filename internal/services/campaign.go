package services

import (
	"context"
	"sync"

	"ticketlottery/internal/models"
)

// CampaignResolver looks up the campaign a lottery is attached to. The
// campaign itself is owned elsewhere and only read here.
type CampaignResolver interface {
	ResolveCampaign(ctx context.Context, id string) (*models.Campaign, error)
}

// CampaignDirectory is an in-memory CampaignResolver, filled from
// configuration or by the surrounding application.
type CampaignDirectory struct {
	mu        sync.RWMutex
	campaigns map[string]models.Campaign // Key: campaignID
}

// NewCampaignDirectory creates a directory holding campaigns.
func NewCampaignDirectory(campaigns ...models.Campaign) *CampaignDirectory {
	d := &CampaignDirectory{campaigns: make(map[string]models.Campaign)}
	for _, c := range campaigns {
		d.campaigns[c.ID] = c
	}
	return d
}

// Put adds or replaces a campaign.
func (d *CampaignDirectory) Put(c models.Campaign) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.campaigns[c.ID] = c
}

// ResolveCampaign implements CampaignResolver.
func (d *CampaignDirectory) ResolveCampaign(_ context.Context, id string) (*models.Campaign, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.campaigns[id]
	if !ok {
		return nil, models.ErrCampaignNotFound
	}
	return &c, nil
}

// Replace swaps the whole directory content, e.g. after a config reload.
// Lotteries already created keep working; only new creations see the change.
func (d *CampaignDirectory) Replace(campaigns []models.Campaign) {
	next := make(map[string]models.Campaign, len(campaigns))
	for _, c := range campaigns {
		next[c.ID] = c
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.campaigns = next
}
