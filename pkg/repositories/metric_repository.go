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

// MetricBatchSize bounds the number of rows sent in one INSERT statement
const MetricBatchSize = 100

// metricTable describes a platform metric table and its natural key
type metricTable struct {
	name string
	keys []string
	cols *database.Struct
}

func (t metricTable) updateColumns() []string {
	isKey := make(map[string]bool, len(t.keys))
	for _, k := range t.keys {
		isKey[k] = true
	}
	var cols []string
	for _, c := range t.cols.Columns() {
		if !isKey[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

var (
	ga4MetricsTable = metricTable{
		name: "ga4_daily_metrics",
		keys: []string{"tenant_id", "property_id", "date"},
		cols: database.NewStruct(new(models.GA4DailyMetric)),
	}
	googleAdsMetricsTable = metricTable{
		name: "google_ads_campaign_metrics",
		keys: []string{"tenant_id", "customer_id", "campaign_id", "date"},
		cols: database.NewStruct(new(models.GoogleAdsCampaignMetric)),
	}
	searchConsoleMetricsTable = metricTable{
		name: "search_console_page_metrics",
		keys: []string{"tenant_id", "site_url", "page", "date"},
		cols: database.NewStruct(new(models.SearchConsolePageMetric)),
	}
	metaMetricsTable = metricTable{
		name: "meta_campaign_metrics",
		keys: []string{"tenant_id", "ad_account_id", "campaign_id", "date"},
		cols: database.NewStruct(new(models.MetaCampaignMetric)),
	}
)

// MetricRepository writes platform metric rows. Every write is an upsert on the natural key so
// re-syncing an overlapping window overwrites instead of duplicating.
type MetricRepository struct {
	*Repository
}

// NewMetricRepository creates a new metric repository
func NewMetricRepository(db database.DB, logger ectologger.Logger) *MetricRepository {
	return &MetricRepository{
		Repository: NewRepository(db, logger),
	}
}

// UpsertGA4 upserts GA4 daily rows
func (r *MetricRepository) UpsertGA4(ctx context.Context, rows []models.GA4DailyMetric) (int, error) {
	return upsertMetrics(ctx, r.Repository, ga4MetricsTable, rows, func(row *models.GA4DailyMetric, tenantID uuid.UUID) {
		row.TenantID = tenantID
	})
}

// UpsertGoogleAds upserts Google Ads campaign rows
func (r *MetricRepository) UpsertGoogleAds(ctx context.Context, rows []models.GoogleAdsCampaignMetric) (int, error) {
	return upsertMetrics(ctx, r.Repository, googleAdsMetricsTable, rows, func(row *models.GoogleAdsCampaignMetric, tenantID uuid.UUID) {
		row.TenantID = tenantID
	})
}

// UpsertSearchConsole upserts Search Console page rows
func (r *MetricRepository) UpsertSearchConsole(ctx context.Context, rows []models.SearchConsolePageMetric) (int, error) {
	return upsertMetrics(ctx, r.Repository, searchConsoleMetricsTable, rows, func(row *models.SearchConsolePageMetric, tenantID uuid.UUID) {
		row.TenantID = tenantID
	})
}

// UpsertMeta upserts Meta campaign insight rows
func (r *MetricRepository) UpsertMeta(ctx context.Context, rows []models.MetaCampaignMetric) (int, error) {
	return upsertMetrics(ctx, r.Repository, metaMetricsTable, rows, func(row *models.MetaCampaignMetric, tenantID uuid.UUID) {
		row.TenantID = tenantID
	})
}

// upsertMetrics writes rows in chunks of MetricBatchSize inside one transaction. Either every
// chunk lands or none do.
func upsertMetrics[T any](ctx context.Context, r *Repository, table metricTable, rows []T, setTenant func(*T, uuid.UUID)) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "MetricRepository.Upsert")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	ctx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStorageWriteFailure, err)
	}
	defer tx.Rollback(ctx)

	columns := table.cols.Columns()
	updateColumns := table.updateColumns()
	for i, chunk := range database.Chunk(rows, MetricBatchSize) {
		ib := database.NewInsertBuilder()
		ib.InsertInto(table.name).Cols(columns...)
		for j := range chunk {
			setTenant(&chunk[j], tenantID)
			ib.Values(table.cols.Values(&chunk[j])...)
		}
		ub := ib.OnConflictUpdate(table.keys...)
		assignments := make([]string, 0, len(updateColumns))
		for _, col := range updateColumns {
			assignments = append(assignments, ub.Assign(col, database.Excluded(col)))
		}
		ub.Set(assignments...)

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			tracing.Fail(span, err, "upsert metrics")
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"table": table.name,
				"chunk": i,
				"rows":  len(chunk),
			}).Error("failed to upsert metric chunk")
			return 0, fmt.Errorf("%w: upsert %s chunk %d: %v", models.ErrStorageWriteFailure, table.name, i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStorageWriteFailure, err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"table": table.name,
		"rows":  len(rows),
	}).Debugf("Upserted %s", table.name)
	return len(rows), nil
}
