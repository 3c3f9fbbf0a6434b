package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const alertsTable = "alerts"

// AlertRepository toggles alert rules. Alert triggers come from automation tooling that knows
// the alert id but not the tenant, so lookups are keyed by (id, alert_type).
type AlertRepository struct {
	*Repository
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db database.DB, logger ectologger.Logger) *AlertRepository {
	return &AlertRepository{
		Repository: NewRepository(db, logger),
	}
}

// SetActive sets is_active and returns the updated alert
func (r *AlertRepository) SetActive(ctx context.Context, alertID uuid.UUID, alertType string, active bool) (*models.Alert, error) {
	ctx, span := tracing.StartSpan(ctx, "AlertRepository.SetActive")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(alertsTable).
		Set(
			ub.Assign("is_active", active),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("id", alertID), ub.Equal("alert_type", alertType))
	ub.SQL("RETURNING id, tenant_id, alert_type, name, is_active, created_at, updated_at")

	query, args := ub.Build()
	var alert models.Alert
	err := r.DB().GetContext(ctx, &alert, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s (%s)", models.ErrAlertNotFound, alertID, alertType)
	}
	if err != nil {
		tracing.Fail(span, err, "set alert active")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"alert_id": alertID,
		}).Error("failed to update alert")
		return nil, fmt.Errorf("%w: update alert %s: %v", models.ErrStorageWriteFailure, alertID, err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"alert_id":  alertID,
		"is_active": active,
	}).Info("Updated alert")
	return &alert, nil
}
