package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const integrationsTable = "integrations"

var integrationStruct = database.NewStruct(new(models.Integration))

// IntegrationRepository is the credential store. It holds the only copy of live tokens.
type IntegrationRepository struct {
	*Repository
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(db database.DB, logger ectologger.Logger) *IntegrationRepository {
	return &IntegrationRepository{
		Repository: NewRepository(db, logger),
	}
}

// Upsert stores the integration keyed by (tenant, platform, account). The last exchange wins:
// credentials are overwritten, the row is re-activated and last_sync is cleared.
func (r *IntegrationRepository) Upsert(ctx context.Context, integration *models.Integration) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.Upsert")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	integration.TenantID = tenantID

	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(integrationsTable).
		Cols("id", "tenant_id", "platform", "account_id", "account_name", "credentials", "is_active",
			"last_sync", "sync_status", "created_at", "updated_at").
		Values(integration.ID, integration.TenantID, integration.Platform, integration.AccountID,
			integration.AccountName, integration.Credentials, true, nil, models.SyncStatusIdle,
			database.Now(), database.Now())
	ub := ib.OnConflictUpdate("tenant_id", "platform", "account_id")
	ub.Set(
		ub.Assign("account_name", database.Excluded("account_name")),
		ub.Assign("credentials", database.Excluded("credentials")),
		ub.Assign("is_active", true),
		ub.Assign("last_sync", nil),
		ub.Assign("updated_at", database.Now()),
	)
	ib.Returning("id", "is_active", "sync_status", "created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&integration.ID, &integration.IsActive,
		&integration.SyncStatus, &integration.CreatedAt, &integration.UpdatedAt)
	if err != nil {
		tracing.Fail(span, err, "upsert integration")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"platform":   integration.Platform,
			"account_id": integration.AccountID,
		}).Error("failed to upsert integration")
		return fmt.Errorf("%w: upsert integration %s/%s: %v", models.ErrStorageWriteFailure,
			integration.Platform, integration.AccountID, err)
	}
	integration.LastSync = nil

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": integration.ID,
		"platform":       integration.Platform,
		"account_id":     integration.AccountID,
	}).Debugf("Upserted %s", integrationsTable)
	return nil
}

// GetByAccount retrieves the active integration for a platform account (tenant-scoped)
func (r *IntegrationRepository) GetByAccount(ctx context.Context, platform models.Platform, accountID string) (*models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.GetByAccount")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := integrationStruct.SelectFrom(integrationsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("platform", platform),
		sb.Equal("account_id", accountID),
		sb.Equal("is_active", true),
	)

	query, args := sb.Build()
	var integration models.Integration
	err = r.DB().GetContext(ctx, &integration, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s account %s", models.ErrIntegrationNotFound, platform, accountID)
	}
	if err != nil {
		tracing.Fail(span, err, "get integration")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"platform":   platform,
			"account_id": accountID,
		}).Error("failed to get integration by account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get integration")
	}

	return &integration, nil
}

// List retrieves all integrations for the current tenant
func (r *IntegrationRepository) List(ctx context.Context) ([]models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.List")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := integrationStruct.SelectFrom(integrationsTable)
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("platform", "account_name")

	query, args := sb.Build()
	integrations := []models.Integration{}
	err = r.DB().SelectContext(ctx, &integrations, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list integrations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list integrations")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_count": len(integrations),
	}).Debugf("Listed %s", integrationsTable)
	return integrations, nil
}

// ListDue returns active integrations across all tenants that are pending a sync or whose
// last sync is older than staleBefore. It is used by the scheduler, which has no tenant.
func (r *IntegrationRepository) ListDue(ctx context.Context, staleBefore time.Time, limit int) ([]models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.ListDue")
	defer span.End()

	sb := integrationStruct.SelectFrom(integrationsTable)
	sb.Where(
		sb.Equal("is_active", true),
		sb.Or(
			sb.Equal("sync_status", models.SyncStatusPending),
			sb.IsNull("last_sync"),
			sb.LessThan("last_sync", staleBefore),
		),
	)
	sb.OrderBy("last_sync_attempt_at").Asc()
	sb.Limit(limit)

	query, args := sb.Build()
	integrations := []models.Integration{}
	if err := r.DB().SelectContext(ctx, &integrations, query, args...); err != nil {
		tracing.Fail(span, err, "list due integrations")
		r.logger.WithContext(ctx).WithError(err).Error("failed to list due integrations")
		return nil, err
	}
	return integrations, nil
}

// UpdateLastSync stamps a successful sync
func (r *IntegrationRepository) UpdateLastSync(ctx context.Context, platform models.Platform, accountID string, syncedAt time.Time) error {
	return r.update(ctx, "IntegrationRepository.UpdateLastSync", platform, accountID, func(ub *database.UpdateBuilder) {
		ub.Set(
			ub.Assign("last_sync", syncedAt),
			ub.Assign("last_sync_attempt_at", syncedAt),
			ub.Assign("sync_status", models.SyncStatusSynced),
			ub.Assign("updated_at", database.Now()),
		)
	})
}

// MarkSyncPending flags the integration for a downstream sync
func (r *IntegrationRepository) MarkSyncPending(ctx context.Context, platform models.Platform, accountID string, attemptedAt time.Time) error {
	return r.SetSyncStatus(ctx, platform, accountID, models.SyncStatusPending, attemptedAt)
}

// SetSyncStatus records the sync state and the time of the attempt
func (r *IntegrationRepository) SetSyncStatus(ctx context.Context, platform models.Platform, accountID string, status models.SyncStatus, attemptedAt time.Time) error {
	return r.update(ctx, "IntegrationRepository.SetSyncStatus", platform, accountID, func(ub *database.UpdateBuilder) {
		ub.Set(
			ub.Assign("sync_status", status),
			ub.Assign("last_sync_attempt_at", attemptedAt),
			ub.Assign("updated_at", database.Now()),
		)
	})
}

// UpdateCredentials persists a refreshed credential bundle
func (r *IntegrationRepository) UpdateCredentials(ctx context.Context, platform models.Platform, accountID string, creds models.Credentials) error {
	return r.update(ctx, "IntegrationRepository.UpdateCredentials", platform, accountID, func(ub *database.UpdateBuilder) {
		ub.Set(
			ub.Assign("credentials", database.NewJSONB(creds)),
			ub.Assign("updated_at", database.Now()),
		)
	})
}

func (r *IntegrationRepository) update(ctx context.Context, spanName string, platform models.Platform, accountID string, set func(ub *database.UpdateBuilder)) error {
	ctx, span := tracing.StartSpan(ctx, spanName)
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable)
	set(ub)
	ub.Where(ub.Equal("tenant_id", tenantID), ub.Equal("platform", platform), ub.Equal("account_id", accountID))

	query, args := ub.Build()
	what := fmt.Sprintf("%s %s account %s", spanName, platform, accountID)
	if err := r.exec(ctx, models.ErrIntegrationNotFound, what, query, args...); err != nil {
		tracing.Fail(span, err, spanName)
		return err
	}
	return nil
}

// Deactivate flips is_active off. Integrations are never hard-deleted.
func (r *IntegrationRepository) Deactivate(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.Deactivate")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable).
		Set(
			ub.Assign("is_active", false),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id))
	ub.SQL("RETURNING " + strings.Join(integrationStruct.Columns(), ", "))

	query, args := ub.Build()
	var integration models.Integration
	err = r.DB().GetContext(ctx, &integration, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("integration %s does not exist", id)
	}
	if err != nil {
		tracing.Fail(span, err, "deactivate integration")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": id,
		}).Error("failed to deactivate integration")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to deactivate integration")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": id,
	}).Info("Deactivated integration")
	return &integration, nil
}
