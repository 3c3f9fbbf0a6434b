package platforms

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/models"
)

var ga4Metrics = []string{
	"sessions",
	"totalUsers",
	"newUsers",
	"screenPageViews",
	"engagedSessions",
	"bounceRate",
	"averageSessionDuration",
	"conversions",
	"totalRevenue",
}

// GA4 syncs daily property metrics from the Analytics Data API
type GA4 struct {
	deps Deps
}

// NewGA4 creates the GA4 adapter
func NewGA4(deps Deps) *GA4 {
	return &GA4{deps: deps.withDefaults()}
}

func (a *GA4) Platform() models.Platform {
	return models.PlatformGA4
}

// DiscoverAccounts returns the first property of the account summaries
func (a *GA4) DiscoverAccounts(ctx context.Context, creds models.Credentials) ([]Account, error) {
	var body any
	url := a.deps.Endpoints.GA4AdminURL + "/v1beta/accountSummaries"
	if err := a.deps.HTTP.GetJSON(ctx, url, httpclient.BearerAuth(creds.AccessToken), &body); err != nil {
		return nil, fmt.Errorf("list ga4 account summaries: %w", err)
	}

	property, err := a.deps.Evaluator.EvaluateString("accountSummaries[].propertySummaries[] | [0].property", body)
	if err != nil {
		return nil, err
	}
	if property == "" {
		return nil, fmt.Errorf("%w: ga4", ErrNoAccounts)
	}
	name, err := a.deps.Evaluator.EvaluateString("accountSummaries[].propertySummaries[] | [0].displayName", body)
	if err != nil {
		return nil, err
	}

	propertyID := strings.TrimPrefix(property, "properties/")
	creds.PropertyID = propertyID
	return []Account{{ID: propertyID, Name: name, Credentials: creds}}, nil
}

func (a *GA4) FetchCredential(ctx context.Context, integration *models.Integration) (models.Credentials, error) {
	creds := integration.Credentials.Data
	if creds.AccessToken == "" {
		return creds, invalidCredentials(a.Platform(), "access_token")
	}
	if creds.PropertyID == "" {
		creds.PropertyID = integration.AccountID
	}
	if creds.PropertyID == "" {
		return creds, invalidCredentials(a.Platform(), "property_id")
	}
	return a.deps.refreshed(ctx, integration, creds)
}

// FetchRemoteMetrics runs a daily report for the window. GA4 omits days without traffic, so
// missing days are filled with zero rows to keep one row per day.
func (a *GA4) FetchRemoteMetrics(ctx context.Context, creds models.Credentials, window models.DateRange) (Batch, error) {
	metricsSpec := make([]map[string]string, 0, len(ga4Metrics))
	for _, m := range ga4Metrics {
		metricsSpec = append(metricsSpec, map[string]string{"name": m})
	}
	request := map[string]any{
		"dateRanges": []map[string]string{{"startDate": window.StartString(), "endDate": window.EndString()}},
		"dimensions": []map[string]string{{"name": "date"}},
		"metrics":    metricsSpec,
		"limit":      100000,
	}

	var body any
	url := fmt.Sprintf("%s/v1beta/properties/%s:runReport", a.deps.Endpoints.GA4DataURL, creds.PropertyID)
	if err := a.deps.HTTP.PostJSON(ctx, url, httpclient.BearerAuth(creds.AccessToken), request, &body); err != nil {
		return nil, fmt.Errorf("ga4 runReport: %w", err)
	}

	reportRows, err := a.deps.Evaluator.EvaluateSlice("rows", body)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]models.GA4DailyMetric, len(reportRows))
	for _, row := range reportRows {
		metric, err := a.parseRow(row, creds.PropertyID)
		if err != nil {
			return nil, err
		}
		byDate[metric.Date.Format(models.DateLayout)] = metric
	}

	rows := make(Rows[models.GA4DailyMetric], 0, len(window.Days()))
	for _, day := range window.Days() {
		metric, ok := byDate[day.Format(models.DateLayout)]
		if !ok {
			metric = models.GA4DailyMetric{PropertyID: creds.PropertyID, Date: day}
		}
		rows = append(rows, metric)
	}
	return rows, nil
}

func (a *GA4) parseRow(row any, propertyID string) (models.GA4DailyMetric, error) {
	eval := a.deps.Evaluator
	rawDate, err := eval.EvaluateString("dimensionValues[0].value", row)
	if err != nil {
		return models.GA4DailyMetric{}, err
	}
	date, err := models.ParseDate(rawDate)
	if err != nil {
		return models.GA4DailyMetric{}, fmt.Errorf("ga4 row date %q: %w", rawDate, err)
	}

	values := make([]float64, len(ga4Metrics))
	for i := range ga4Metrics {
		values[i], err = eval.EvaluateFloat(fmt.Sprintf("metricValues[%d].value", i), row)
		if err != nil {
			return models.GA4DailyMetric{}, fmt.Errorf("ga4 metric %s: %w", ga4Metrics[i], err)
		}
	}

	return models.GA4DailyMetric{
		PropertyID:         propertyID,
		Date:               date,
		Sessions:           int64(values[0]),
		Users:              int64(values[1]),
		NewUsers:           int64(values[2]),
		PageViews:          int64(values[3]),
		EngagedSessions:    int64(values[4]),
		BounceRate:         values[5],
		AvgSessionDuration: values[6],
		Conversions:        values[7],
		Revenue:            values[8],
	}, nil
}

func (a *GA4) UpsertMetrics(ctx context.Context, batch Batch) (int, error) {
	rows, ok := batch.(Rows[models.GA4DailyMetric])
	if !ok {
		return 0, unexpectedBatch(a.Platform(), batch)
	}
	return a.deps.Metrics.UpsertGA4(ctx, rows)
}
