package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

// SyncStatus tracks the downstream sync state of an integration
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// Integration is the stored credential bundle for one (tenant, platform, remote account)
type Integration struct {
	ID                uuid.UUID                   `db:"id" json:"id"`
	TenantID          uuid.UUID                   `db:"tenant_id" json:"tenant_id"`
	Platform          Platform                    `db:"platform" json:"platform"`
	AccountID         string                      `db:"account_id" json:"account_id"`
	AccountName       string                      `db:"account_name" json:"account_name"`
	Credentials       database.JSONB[Credentials] `db:"credentials" json:"-"`
	IsActive          bool                        `db:"is_active" json:"is_active"`
	LastSync          *time.Time                  `db:"last_sync" json:"last_sync,omitempty"`
	SyncStatus        SyncStatus                  `db:"sync_status" json:"sync_status"`
	LastSyncAttemptAt *time.Time                  `db:"last_sync_attempt_at" json:"last_sync_attempt_at,omitempty"`
	CreatedAt         time.Time                   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time                   `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Integration) TableName() string {
	return "integrations"
}

// IntegrationKey is the natural key of an integration within a tenant
type IntegrationKey struct {
	Platform  Platform
	AccountID string
}
