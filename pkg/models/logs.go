package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

// WebhookLogStatus is the outcome recorded for a webhook event
type WebhookLogStatus string

const (
	WebhookLogProcessed WebhookLogStatus = "processed"
	WebhookLogIgnored   WebhookLogStatus = "ignored"
	WebhookLogFailed    WebhookLogStatus = "failed"
)

// WebhookLog is the append-only audit row for an inbound webhook event
type WebhookLog struct {
	ID           uuid.UUID                       `db:"id" json:"id"`
	TenantID     uuid.UUID                       `db:"tenant_id" json:"tenant_id"`
	Platform     Platform                        `db:"platform" json:"platform"`
	AccountID    string                          `db:"account_id" json:"account_id"`
	EventType    string                          `db:"event_type" json:"event_type"`
	Payload      database.JSONB[json.RawMessage] `db:"payload" json:"payload"`
	Status       WebhookLogStatus                `db:"status" json:"status"`
	ErrorMessage *string                         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time                       `db:"created_at" json:"created_at"`
}

// SyncLogStatus is the outcome recorded for a sync run
type SyncLogStatus string

const (
	SyncLogSuccess SyncLogStatus = "success"
	SyncLogFailed  SyncLogStatus = "failed"
)

// SyncLog is the append-only audit row for a sync run
type SyncLog struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	TenantID     uuid.UUID     `db:"tenant_id" json:"tenant_id"`
	Platform     Platform      `db:"platform" json:"platform"`
	AccountID    string        `db:"account_id" json:"account_id"`
	Status       SyncLogStatus `db:"status" json:"status"`
	StartDate    time.Time     `db:"start_date" json:"start_date"`
	EndDate      time.Time     `db:"end_date" json:"end_date"`
	RowsSynced   int           `db:"rows_synced" json:"rows_synced"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	DurationMs   int64         `db:"duration_ms" json:"duration_ms"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}
