package repositories

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	webhookLogsTable = "webhook_logs"
	syncLogsTable    = "sync_logs"
	alertLogsTable   = "alert_logs"
)

// LogRepository appends audit rows. Rows are never updated or deleted.
type LogRepository struct {
	*Repository
}

// NewLogRepository creates a new audit log repository
func NewLogRepository(db database.DB, logger ectologger.Logger) *LogRepository {
	return &LogRepository{
		Repository: NewRepository(db, logger),
	}
}

// AppendWebhookLog records an inbound webhook event
func (r *LogRepository) AppendWebhookLog(ctx context.Context, entry *models.WebhookLog) error {
	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	entry.TenantID = tenantID
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	return r.insert(ctx, "LogRepository.AppendWebhookLog", webhookLogsTable,
		[]string{"id", "tenant_id", "platform", "account_id", "event_type", "payload", "status", "error_message", "created_at"},
		entry.ID, entry.TenantID, entry.Platform, entry.AccountID, entry.EventType, entry.Payload, entry.Status,
		entry.ErrorMessage, database.Now())
}

// AppendSyncLog records the outcome of a sync run
func (r *LogRepository) AppendSyncLog(ctx context.Context, entry *models.SyncLog) error {
	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	entry.TenantID = tenantID
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	return r.insert(ctx, "LogRepository.AppendSyncLog", syncLogsTable,
		[]string{"id", "tenant_id", "platform", "account_id", "status", "start_date", "end_date", "rows_synced",
			"error_message", "duration_ms", "created_at"},
		entry.ID, entry.TenantID, entry.Platform, entry.AccountID, entry.Status, entry.StartDate, entry.EndDate,
		entry.RowsSynced, entry.ErrorMessage, entry.DurationMs, database.Now())
}

// AppendAlertLog records an alert trigger and its notification outcome
func (r *LogRepository) AppendAlertLog(ctx context.Context, entry *models.AlertLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	return r.insert(ctx, "LogRepository.AppendAlertLog", alertLogsTable,
		[]string{"id", "alert_id", "alert_type", "action", "webhook_url", "notification_sent", "notification_error", "created_at"},
		entry.ID, entry.AlertID, entry.AlertType, entry.Action, entry.WebhookURL, entry.NotificationSent,
		entry.NotificationError, database.Now())
}

func (r *LogRepository) insert(ctx context.Context, spanName, table string, cols []string, values ...any) error {
	ctx, span := tracing.StartSpan(ctx, spanName)
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(table).Cols(cols...).Values(values...)

	query, args := ib.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		tracing.Fail(span, err, "append log")
		r.logger.WithContext(ctx).WithError(err).Errorf("failed to append %s row", table)
		return fmt.Errorf("%w: append %s: %v", models.ErrStorageWriteFailure, table, err)
	}
	return nil
}
