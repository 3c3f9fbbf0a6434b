package platforms

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

const googleAdsQuery = `SELECT campaign.id, campaign.name, segments.date, metrics.impressions, metrics.clicks, ` +
	`metrics.cost_micros, metrics.conversions, metrics.ctr, metrics.average_cpc ` +
	`FROM campaign WHERE segments.date BETWEEN '%s' AND '%s'`

const micros = 1_000_000

// GoogleAds syncs daily campaign KPIs with the Google Ads searchStream API
type GoogleAds struct {
	deps Deps
}

// NewGoogleAds creates the Google Ads adapter
func NewGoogleAds(deps Deps) *GoogleAds {
	return &GoogleAds{deps: deps.withDefaults()}
}

func (a *GoogleAds) Platform() models.Platform {
	return models.PlatformGoogleAds
}

func (a *GoogleAds) headers(accessToken string) map[string]string {
	h := map[string]string{
		"Authorization":   "Bearer " + accessToken,
		"developer-token": a.deps.Endpoints.GoogleAdsDeveloperToken,
	}
	if a.deps.Endpoints.GoogleAdsLoginCustomerID != "" {
		h["login-customer-id"] = a.deps.Endpoints.GoogleAdsLoginCustomerID
	}
	return h
}

func (a *GoogleAds) baseURL() string {
	return a.deps.Endpoints.GoogleAdsURL + "/" + a.deps.Endpoints.GoogleAdsVersion
}

// DiscoverAccounts returns the first accessible customer
func (a *GoogleAds) DiscoverAccounts(ctx context.Context, creds models.Credentials) ([]Account, error) {
	var body any
	if err := a.deps.HTTP.GetJSON(ctx, a.baseURL()+"/customers:listAccessibleCustomers", a.headers(creds.AccessToken), &body); err != nil {
		return nil, fmt.Errorf("list accessible customers: %w", err)
	}

	resource, err := a.deps.Evaluator.EvaluateString("resourceNames[0]", body)
	if err != nil {
		return nil, err
	}
	if resource == "" {
		return nil, fmt.Errorf("%w: google_ads", ErrNoAccounts)
	}

	customerID := strings.TrimPrefix(resource, "customers/")
	creds.CustomerID = customerID
	return []Account{{ID: customerID, Name: "Google Ads " + customerID, Credentials: creds}}, nil
}

// FetchCredential validates the bundle. Expired Google Ads tokens are not refreshed: the
// integration must be reconnected.
func (a *GoogleAds) FetchCredential(_ context.Context, integration *models.Integration) (models.Credentials, error) {
	creds := integration.Credentials.Data
	if creds.AccessToken == "" {
		return creds, invalidCredentials(a.Platform(), "access_token")
	}
	if creds.CustomerID == "" {
		creds.CustomerID = integration.AccountID
	}
	if creds.CustomerID == "" {
		return creds, invalidCredentials(a.Platform(), "customer_id")
	}
	if creds.IsExpired(a.deps.Now(), 0) {
		return creds, fmt.Errorf("%w: google_ads token for customer %s expired at %s", models.ErrTokenExpired,
			creds.CustomerID, creds.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return creds, nil
}

func (a *GoogleAds) FetchRemoteMetrics(ctx context.Context, creds models.Credentials, window models.DateRange) (Batch, error) {
	request := map[string]string{
		"query": fmt.Sprintf(googleAdsQuery, window.StartString(), window.EndString()),
	}

	var body any
	url := fmt.Sprintf("%s/customers/%s/googleAds:searchStream", a.baseURL(), creds.CustomerID)
	if err := a.deps.HTTP.PostJSON(ctx, url, a.headers(creds.AccessToken), request, &body); err != nil {
		return nil, fmt.Errorf("google ads searchStream: %w", err)
	}

	// searchStream answers with an array of result pages
	results, err := a.deps.Evaluator.EvaluateSlice("[].results[]", body)
	if err != nil {
		return nil, err
	}

	rows := make(Rows[models.GoogleAdsCampaignMetric], 0, len(results))
	for _, result := range results {
		row, err := a.parseResult(result, creds.CustomerID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (a *GoogleAds) parseResult(result any, customerID string) (models.GoogleAdsCampaignMetric, error) {
	eval := a.deps.Evaluator
	row := models.GoogleAdsCampaignMetric{CustomerID: customerID}

	var err error
	if row.CampaignID, err = eval.EvaluateString("campaign.id", result); err != nil {
		return row, err
	}
	if row.CampaignName, err = eval.EvaluateString("campaign.name", result); err != nil {
		return row, err
	}
	rawDate, err := eval.EvaluateString("segments.date", result)
	if err != nil {
		return row, err
	}
	if row.Date, err = models.ParseDate(rawDate); err != nil {
		return row, fmt.Errorf("google ads row date %q: %w", rawDate, err)
	}
	if row.Impressions, err = eval.EvaluateInt("metrics.impressions", result); err != nil {
		return row, err
	}
	if row.Clicks, err = eval.EvaluateInt("metrics.clicks", result); err != nil {
		return row, err
	}
	costMicros, err := eval.EvaluateFloat("metrics.costMicros", result)
	if err != nil {
		return row, err
	}
	row.Cost = costMicros / micros
	if row.Conversions, err = eval.EvaluateFloat("metrics.conversions", result); err != nil {
		return row, err
	}
	if row.CTR, err = eval.EvaluateFloat("metrics.ctr", result); err != nil {
		return row, err
	}
	cpcMicros, err := eval.EvaluateFloat("metrics.averageCpc", result)
	if err != nil {
		return row, err
	}
	row.CPC = cpcMicros / micros
	return row, nil
}

func (a *GoogleAds) UpsertMetrics(ctx context.Context, batch Batch) (int, error) {
	rows, ok := batch.(Rows[models.GoogleAdsCampaignMetric])
	if !ok {
		return 0, unexpectedBatch(a.Platform(), batch)
	}
	return a.deps.Metrics.UpsertGoogleAds(ctx, rows)
}
