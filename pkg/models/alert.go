package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertAction is the requested state change for an alert
type AlertAction string

const (
	AlertActionActivate   AlertAction = "activate"
	AlertActionDeactivate AlertAction = "deactivate"
)

// Active returns the is_active value the action maps to
func (a AlertAction) Active() bool {
	return a == AlertActionActivate
}

// Alert is a threshold rule that can be toggled from automation tooling
type Alert struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TenantID  uuid.UUID `db:"tenant_id" json:"tenant_id"`
	AlertType string    `db:"alert_type" json:"alert_type"`
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AlertLog is the append-only audit row for an alert trigger
type AlertLog struct {
	ID                uuid.UUID   `db:"id" json:"id"`
	AlertID           uuid.UUID   `db:"alert_id" json:"alert_id"`
	AlertType         string      `db:"alert_type" json:"alert_type"`
	Action            AlertAction `db:"action" json:"action"`
	WebhookURL        *string     `db:"webhook_url" json:"webhook_url,omitempty"`
	NotificationSent  bool        `db:"notification_sent" json:"notification_sent"`
	NotificationError *string     `db:"notification_error" json:"notification_error,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
}
