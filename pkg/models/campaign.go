package models

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the lifecycle flag of a campaign record
type CampaignStatus string

const (
	CampaignStatusActive  CampaignStatus = "ACTIVE"
	CampaignStatusPaused  CampaignStatus = "PAUSED"
	CampaignStatusRemoved CampaignStatus = "REMOVED"
)

// Campaign is the stored campaign record mutated by platform webhooks
type Campaign struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	TenantID   uuid.UUID      `db:"tenant_id" json:"tenant_id"`
	Platform   Platform       `db:"platform" json:"platform"`
	AccountID  string         `db:"account_id" json:"account_id"`
	CampaignID string         `db:"campaign_id" json:"campaign_id"`
	Name       string         `db:"name" json:"name"`
	Status     CampaignStatus `db:"status" json:"status"`
	Budget     *float64       `db:"budget" json:"budget,omitempty"`
	Objective  string         `db:"objective" json:"objective,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// CampaignPatch carries the fields a CAMPAIGN_UPDATED event may change. Nil fields are left as is.
type CampaignPatch struct {
	Name      *string
	Status    *CampaignStatus
	Budget    *float64
	Objective *string
}

// IsEmpty reports whether the patch changes nothing
func (p CampaignPatch) IsEmpty() bool {
	return p.Name == nil && p.Status == nil && p.Budget == nil && p.Objective == nil
}
