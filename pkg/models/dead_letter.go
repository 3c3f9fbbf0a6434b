package models

import (
	"time"

	"github.com/google/uuid"
)

// DeadLetterReason represents why a sync job was sent to the DLQ
type DeadLetterReason string

const (
	DLQReasonMaxRetries          DeadLetterReason = "max_retries_exceeded"
	DLQReasonInvalidJob          DeadLetterReason = "invalid_job"
	DLQReasonIntegrationNotFound DeadLetterReason = "integration_not_found"
	DLQReasonAuthError           DeadLetterReason = "auth_error"
	DLQReasonUnknown             DeadLetterReason = "unknown"
)

// DeadLetterJob is a sync job that failed permanently
type DeadLetterJob struct {
	ID           uuid.UUID        `json:"id"`
	TenantID     uuid.UUID        `json:"tenant_id"`
	Platform     Platform         `json:"platform"`
	AccountID    string           `json:"account_id"`
	OriginalJob  SyncJob          `json:"original_job"`
	Reason       DeadLetterReason `json:"reason"`
	ErrorMessage string           `json:"error_message"`
	RetryCount   int              `json:"retry_count"`
	CreatedAt    time.Time        `json:"created_at"`
	TraceID      string           `json:"trace_id,omitempty"`
}
