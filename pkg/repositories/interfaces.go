package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

// IntegrationRepo defines the interface for credential store operations
type IntegrationRepo interface {
	Upsert(ctx context.Context, integration *models.Integration) error
	GetByAccount(ctx context.Context, platform models.Platform, accountID string) (*models.Integration, error)
	List(ctx context.Context) ([]models.Integration, error)
	ListDue(ctx context.Context, staleBefore time.Time, limit int) ([]models.Integration, error)
	UpdateLastSync(ctx context.Context, platform models.Platform, accountID string, syncedAt time.Time) error
	MarkSyncPending(ctx context.Context, platform models.Platform, accountID string, attemptedAt time.Time) error
	SetSyncStatus(ctx context.Context, platform models.Platform, accountID string, status models.SyncStatus, attemptedAt time.Time) error
	UpdateCredentials(ctx context.Context, platform models.Platform, accountID string, creds models.Credentials) error
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Integration, error)
}

// MetricRepo defines the interface for metric table upserts
type MetricRepo interface {
	UpsertGA4(ctx context.Context, rows []models.GA4DailyMetric) (int, error)
	UpsertGoogleAds(ctx context.Context, rows []models.GoogleAdsCampaignMetric) (int, error)
	UpsertSearchConsole(ctx context.Context, rows []models.SearchConsolePageMetric) (int, error)
	UpsertMeta(ctx context.Context, rows []models.MetaCampaignMetric) (int, error)
}

// CampaignRepo defines the interface for campaign record operations
type CampaignRepo interface {
	Upsert(ctx context.Context, campaign *models.Campaign) error
	Update(ctx context.Context, platform models.Platform, accountID, campaignID string, patch models.CampaignPatch) error
	SetStatus(ctx context.Context, platform models.Platform, accountID, campaignID string, status models.CampaignStatus) error
	Get(ctx context.Context, platform models.Platform, accountID, campaignID string) (*models.Campaign, error)
}

// LogRepo defines the interface for append-only audit logs
type LogRepo interface {
	AppendWebhookLog(ctx context.Context, entry *models.WebhookLog) error
	AppendSyncLog(ctx context.Context, entry *models.SyncLog) error
	AppendAlertLog(ctx context.Context, entry *models.AlertLog) error
}

// AlertRepo defines the interface for alert rule operations
type AlertRepo interface {
	SetActive(ctx context.Context, alertID uuid.UUID, alertType string, active bool) (*models.Alert, error)
}

var (
	_ IntegrationRepo = (*IntegrationRepository)(nil)
	_ MetricRepo      = (*MetricRepository)(nil)
	_ CampaignRepo    = (*CampaignRepository)(nil)
	_ LogRepo         = (*LogRepository)(nil)
	_ AlertRepo       = (*AlertRepository)(nil)
)
