package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncTrigger records what started a sync run
type SyncTrigger string

const (
	SyncTriggerManual   SyncTrigger = "manual"
	SyncTriggerSchedule SyncTrigger = "schedule"
	SyncTriggerWebhook  SyncTrigger = "webhook"
)

// SyncRequest is the input to one sync run
type SyncRequest struct {
	TenantID  uuid.UUID  `json:"tenant_id" validate:"required"`
	Platform  Platform   `json:"platform"`
	AccountID string     `json:"account_id" validate:"required"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// SyncResult summarizes a successful sync run
type SyncResult struct {
	Platform   Platform  `json:"platform"`
	AccountID  string    `json:"account_id"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	RowsSynced int       `json:"rows_synced"`
	SyncedAt   time.Time `json:"synced_at"`
}

// SyncJob is the queued form of a sync request
type SyncJob struct {
	ID          uuid.UUID   `json:"id"`
	TenantID    uuid.UUID   `json:"tenant_id"`
	Platform    Platform    `json:"platform"`
	AccountID   string      `json:"account_id"`
	Trigger     SyncTrigger `json:"trigger"`
	Attempt     int         `json:"attempt"`
	ScheduledAt time.Time   `json:"scheduled_at"`
}

// Request converts the job into a sync request using the default window
func (j SyncJob) Request() SyncRequest {
	return SyncRequest{TenantID: j.TenantID, Platform: j.Platform, AccountID: j.AccountID}
}
