// Package mocks provides in-memory implementations of the repository interfaces for tests.
// They enforce the same tenant scoping and not-found semantics as the Postgres repositories.
package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

var (
	_ repositories.IntegrationRepo = (*IntegrationRepo)(nil)
	_ repositories.MetricRepo      = (*MetricRepo)(nil)
	_ repositories.CampaignRepo    = (*CampaignRepo)(nil)
	_ repositories.LogRepo         = (*LogRepo)(nil)
	_ repositories.AlertRepo       = (*AlertRepo)(nil)
)

type integrationKey struct {
	tenant    uuid.UUID
	platform  models.Platform
	accountID string
}

// IntegrationRepo is an in-memory credential store
type IntegrationRepo struct {
	mu    sync.Mutex
	items map[integrationKey]*models.Integration

	// UpsertErr, when set, fails the upsert of the given account
	UpsertErr         func(accountID string) error
	UpdateLastSyncErr error
	Calls             map[string]int
}

// NewIntegrationRepo creates an empty store
func NewIntegrationRepo() *IntegrationRepo {
	return &IntegrationRepo{items: map[integrationKey]*models.Integration{}, Calls: map[string]int{}}
}

func (r *IntegrationRepo) record(op string) {
	r.Calls[op]++
}

// Put stores an integration directly, bypassing tenant lookup from the context
func (r *IntegrationRepo) Put(integration models.Integration) *models.Integration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	stored := integration
	r.items[integrationKey{integration.TenantID, integration.Platform, integration.AccountID}] = &stored
	return &stored
}

// Find returns a copy of the stored integration regardless of is_active
func (r *IntegrationRepo) Find(tenantID uuid.UUID, platform models.Platform, accountID string) (models.Integration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[integrationKey{tenantID, platform, accountID}]
	if !ok {
		return models.Integration{}, false
	}
	return *item, true
}

func (r *IntegrationRepo) Upsert(ctx context.Context, integration *models.Integration) error {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("Upsert")

	if r.UpsertErr != nil {
		if err := r.UpsertErr(integration.AccountID); err != nil {
			return fmt.Errorf("%w: %w", models.ErrStorageWriteFailure, err)
		}
	}

	key := integrationKey{tenantID, integration.Platform, integration.AccountID}
	now := time.Now().UTC()
	existing, ok := r.items[key]
	stored := *integration
	stored.TenantID = tenantID
	stored.IsActive = true
	stored.LastSync = nil
	stored.UpdatedAt = now
	if ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
		stored.SyncStatus = existing.SyncStatus
	} else {
		stored.ID = uuid.New()
		stored.CreatedAt = now
		stored.SyncStatus = models.SyncStatusIdle
	}
	r.items[key] = &stored
	*integration = stored
	return nil
}

func (r *IntegrationRepo) GetByAccount(ctx context.Context, platform models.Platform, accountID string) (*models.Integration, error) {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("GetByAccount")

	item, ok := r.items[integrationKey{tenantID, platform, accountID}]
	if !ok || !item.IsActive {
		return nil, fmt.Errorf("%w: %s account %s", models.ErrIntegrationNotFound, platform, accountID)
	}
	found := *item
	return &found, nil
}

func (r *IntegrationRepo) List(ctx context.Context) ([]models.Integration, error) {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Integration
	for key, item := range r.items {
		if key.tenant == tenantID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (r *IntegrationRepo) ListDue(_ context.Context, staleBefore time.Time, limit int) ([]models.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Integration
	for _, item := range r.items {
		if !item.IsActive {
			continue
		}
		if item.LastSync == nil || item.LastSync.Before(staleBefore) || item.SyncStatus == models.SyncStatusPending {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *IntegrationRepo) mutate(ctx context.Context, op string, platform models.Platform, accountID string, fn func(*models.Integration)) error {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(op)

	item, ok := r.items[integrationKey{tenantID, platform, accountID}]
	if !ok {
		return fmt.Errorf("%w: %s account %s", models.ErrIntegrationNotFound, platform, accountID)
	}
	fn(item)
	return nil
}

func (r *IntegrationRepo) UpdateLastSync(ctx context.Context, platform models.Platform, accountID string, syncedAt time.Time) error {
	if r.UpdateLastSyncErr != nil {
		r.mu.Lock()
		r.record("UpdateLastSync")
		r.mu.Unlock()
		return r.UpdateLastSyncErr
	}
	return r.mutate(ctx, "UpdateLastSync", platform, accountID, func(i *models.Integration) {
		i.LastSync = &syncedAt
		i.LastSyncAttemptAt = &syncedAt
		i.SyncStatus = models.SyncStatusSynced
	})
}

func (r *IntegrationRepo) MarkSyncPending(ctx context.Context, platform models.Platform, accountID string, attemptedAt time.Time) error {
	return r.SetSyncStatus(ctx, platform, accountID, models.SyncStatusPending, attemptedAt)
}

func (r *IntegrationRepo) SetSyncStatus(ctx context.Context, platform models.Platform, accountID string, status models.SyncStatus, attemptedAt time.Time) error {
	return r.mutate(ctx, "SetSyncStatus:"+string(status), platform, accountID, func(i *models.Integration) {
		i.SyncStatus = status
		i.LastSyncAttemptAt = &attemptedAt
	})
}

func (r *IntegrationRepo) UpdateCredentials(ctx context.Context, platform models.Platform, accountID string, creds models.Credentials) error {
	return r.mutate(ctx, "UpdateCredentials", platform, accountID, func(i *models.Integration) {
		i.Credentials.Data = creds
	})
}

func (r *IntegrationRepo) Deactivate(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("Deactivate")

	for key, item := range r.items {
		if key.tenant == tenantID && item.ID == id {
			item.IsActive = false
			found := *item
			return &found, nil
		}
	}
	return nil, repositories.NotFound("integration %s not found", id)
}

// MetricRepo counts rows per metric table, keyed the same way as the Postgres tables
type MetricRepo struct {
	mu            sync.Mutex
	GA4           map[string]models.GA4DailyMetric
	GoogleAds     map[string]models.GoogleAdsCampaignMetric
	SearchConsole map[string]models.SearchConsolePageMetric
	Meta          map[string]models.MetaCampaignMetric
	Err           error
}

// NewMetricRepo creates an empty metric store
func NewMetricRepo() *MetricRepo {
	return &MetricRepo{
		GA4:           map[string]models.GA4DailyMetric{},
		GoogleAds:     map[string]models.GoogleAdsCampaignMetric{},
		SearchConsole: map[string]models.SearchConsolePageMetric{},
		Meta:          map[string]models.MetaCampaignMetric{},
	}
}

func upsertRows[T any](ctx context.Context, m *MetricRepo, table map[string]T, rows []T, key func(uuid.UUID, T) string, setTenant func(*T, uuid.UUID)) (int, error) {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrStorageWriteFailure, m.Err)
	}
	for _, row := range rows {
		setTenant(&row, tenantID)
		table[key(tenantID, row)] = row
	}
	return len(rows), nil
}

func (m *MetricRepo) UpsertGA4(ctx context.Context, rows []models.GA4DailyMetric) (int, error) {
	return upsertRows(ctx, m, m.GA4, rows,
		func(t uuid.UUID, r models.GA4DailyMetric) string {
			return fmt.Sprintf("%s|%s|%s", t, r.PropertyID, r.Date.Format(models.DateLayout))
		},
		func(r *models.GA4DailyMetric, t uuid.UUID) { r.TenantID = t })
}

func (m *MetricRepo) UpsertGoogleAds(ctx context.Context, rows []models.GoogleAdsCampaignMetric) (int, error) {
	return upsertRows(ctx, m, m.GoogleAds, rows,
		func(t uuid.UUID, r models.GoogleAdsCampaignMetric) string {
			return fmt.Sprintf("%s|%s|%s|%s", t, r.CustomerID, r.CampaignID, r.Date.Format(models.DateLayout))
		},
		func(r *models.GoogleAdsCampaignMetric, t uuid.UUID) { r.TenantID = t })
}

func (m *MetricRepo) UpsertSearchConsole(ctx context.Context, rows []models.SearchConsolePageMetric) (int, error) {
	return upsertRows(ctx, m, m.SearchConsole, rows,
		func(t uuid.UUID, r models.SearchConsolePageMetric) string {
			return fmt.Sprintf("%s|%s|%s|%s", t, r.SiteURL, r.Page, r.Date.Format(models.DateLayout))
		},
		func(r *models.SearchConsolePageMetric, t uuid.UUID) { r.TenantID = t })
}

func (m *MetricRepo) UpsertMeta(ctx context.Context, rows []models.MetaCampaignMetric) (int, error) {
	return upsertRows(ctx, m, m.Meta, rows,
		func(t uuid.UUID, r models.MetaCampaignMetric) string {
			return fmt.Sprintf("%s|%s|%s|%s", t, r.AdAccountID, r.CampaignID, r.Date.Format(models.DateLayout))
		},
		func(r *models.MetaCampaignMetric, t uuid.UUID) { r.TenantID = t })
}

// CampaignRepo is an in-memory campaign table
type CampaignRepo struct {
	mu        sync.Mutex
	Campaigns map[string]models.Campaign
	Mutations int
}

// NewCampaignRepo creates an empty campaign store
func NewCampaignRepo() *CampaignRepo {
	return &CampaignRepo{Campaigns: map[string]models.Campaign{}}
}

func campaignKey(tenantID uuid.UUID, platform models.Platform, accountID, campaignID string) string {
	return fmt.Sprintf("%s|%s|%s|%s", tenantID, platform, accountID, campaignID)
}

func (r *CampaignRepo) Upsert(ctx context.Context, campaign *models.Campaign) error {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign.TenantID = tenantID
	if campaign.ID == uuid.Nil {
		campaign.ID = uuid.New()
	}
	r.Campaigns[campaignKey(tenantID, campaign.Platform, campaign.AccountID, campaign.CampaignID)] = *campaign
	r.Mutations++
	return nil
}

func (r *CampaignRepo) Update(ctx context.Context, platform models.Platform, accountID, campaignID string, patch models.CampaignPatch) error {
	return r.change(ctx, platform, accountID, campaignID, func(c *models.Campaign) {
		if patch.Name != nil {
			c.Name = *patch.Name
		}
		if patch.Status != nil {
			c.Status = *patch.Status
		}
		if patch.Budget != nil {
			c.Budget = patch.Budget
		}
		if patch.Objective != nil {
			c.Objective = *patch.Objective
		}
	})
}

func (r *CampaignRepo) SetStatus(ctx context.Context, platform models.Platform, accountID, campaignID string, status models.CampaignStatus) error {
	return r.change(ctx, platform, accountID, campaignID, func(c *models.Campaign) {
		c.Status = status
	})
}

func (r *CampaignRepo) change(ctx context.Context, platform models.Platform, accountID, campaignID string, fn func(*models.Campaign)) error {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := campaignKey(tenantID, platform, accountID, campaignID)
	campaign, ok := r.Campaigns[key]
	if !ok {
		return fmt.Errorf("%w: %s campaign %s", models.ErrCampaignNotFound, platform, campaignID)
	}
	fn(&campaign)
	r.Campaigns[key] = campaign
	r.Mutations++
	return nil
}

func (r *CampaignRepo) Get(ctx context.Context, platform models.Platform, accountID, campaignID string) (*models.Campaign, error) {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.Campaigns[campaignKey(tenantID, platform, accountID, campaignID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s campaign %s", models.ErrCampaignNotFound, platform, campaignID)
	}
	return &campaign, nil
}

// LogRepo collects audit rows
type LogRepo struct {
	mu          sync.Mutex
	WebhookLogs []models.WebhookLog
	SyncLogs    []models.SyncLog
	AlertLogs   []models.AlertLog
	Err         error
}

// NewLogRepo creates an empty log store
func NewLogRepo() *LogRepo {
	return &LogRepo{}
}

func (r *LogRepo) AppendWebhookLog(ctx context.Context, entry *models.WebhookLog) error {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	entry.TenantID = tenantID
	r.WebhookLogs = append(r.WebhookLogs, *entry)
	return nil
}

func (r *LogRepo) AppendSyncLog(ctx context.Context, entry *models.SyncLog) error {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	entry.TenantID = tenantID
	r.SyncLogs = append(r.SyncLogs, *entry)
	return nil
}

func (r *LogRepo) AppendAlertLog(_ context.Context, entry *models.AlertLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.AlertLogs = append(r.AlertLogs, *entry)
	return nil
}

// AlertRepo is an in-memory alert table
type AlertRepo struct {
	mu     sync.Mutex
	Alerts map[uuid.UUID]models.Alert
	Err    error
}

// NewAlertRepo creates a store holding alerts
func NewAlertRepo(alerts ...models.Alert) *AlertRepo {
	r := &AlertRepo{Alerts: map[uuid.UUID]models.Alert{}}
	for _, a := range alerts {
		r.Alerts[a.ID] = a
	}
	return r
}

func (r *AlertRepo) SetActive(_ context.Context, alertID uuid.UUID, alertType string, active bool) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorageWriteFailure, r.Err)
	}
	alert, ok := r.Alerts[alertID]
	if !ok || alert.AlertType != alertType {
		return nil, fmt.Errorf("%w: %s (%s)", models.ErrAlertNotFound, alertID, alertType)
	}
	alert.IsActive = active
	alert.UpdatedAt = time.Now().UTC()
	r.Alerts[alertID] = alert
	return &alert, nil
}
