package platforms

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/models"
)

const searchConsoleRowLimit = 25000

// SearchConsole syncs per-page daily search performance
type SearchConsole struct {
	deps Deps
}

// NewSearchConsole creates the Search Console adapter
func NewSearchConsole(deps Deps) *SearchConsole {
	return &SearchConsole{deps: deps.withDefaults()}
}

func (a *SearchConsole) Platform() models.Platform {
	return models.PlatformSearchConsole
}

// DiscoverAccounts returns the first verified site
func (a *SearchConsole) DiscoverAccounts(ctx context.Context, creds models.Credentials) ([]Account, error) {
	var body any
	if err := a.deps.HTTP.GetJSON(ctx, a.deps.Endpoints.SearchConsoleURL+"/webmasters/v3/sites", httpclient.BearerAuth(creds.AccessToken), &body); err != nil {
		return nil, fmt.Errorf("list search console sites: %w", err)
	}

	siteURL, err := a.deps.Evaluator.EvaluateString("siteEntry[?permissionLevel!='siteUnverifiedUser'] | [0].siteUrl", body)
	if err != nil {
		return nil, err
	}
	if siteURL == "" {
		return nil, fmt.Errorf("%w: search_console", ErrNoAccounts)
	}

	creds.SiteURL = siteURL
	return []Account{{ID: siteURL, Name: siteURL, Credentials: creds}}, nil
}

func (a *SearchConsole) FetchCredential(ctx context.Context, integration *models.Integration) (models.Credentials, error) {
	creds := integration.Credentials.Data
	if creds.AccessToken == "" {
		return creds, invalidCredentials(a.Platform(), "access_token")
	}
	if creds.SiteURL == "" {
		creds.SiteURL = integration.AccountID
	}
	if creds.SiteURL == "" {
		return creds, invalidCredentials(a.Platform(), "site_url")
	}
	return a.deps.refreshed(ctx, integration, creds)
}

type searchAnalyticsResponse struct {
	Rows []struct {
		Keys        []string `json:"keys"`
		Clicks      float64  `json:"clicks"`
		Impressions float64  `json:"impressions"`
		CTR         float64  `json:"ctr"`
		Position    float64  `json:"position"`
	} `json:"rows"`
}

// FetchRemoteMetrics pages through searchAnalytics/query by date and page
func (a *SearchConsole) FetchRemoteMetrics(ctx context.Context, creds models.Credentials, window models.DateRange) (Batch, error) {
	endpoint := fmt.Sprintf("%s/webmasters/v3/sites/%s/searchAnalytics/query",
		a.deps.Endpoints.SearchConsoleURL, url.PathEscape(creds.SiteURL))

	var rows Rows[models.SearchConsolePageMetric]
	for startRow := 0; ; startRow += searchConsoleRowLimit {
		request := map[string]any{
			"startDate":  window.StartString(),
			"endDate":    window.EndString(),
			"dimensions": []string{"date", "page"},
			"rowLimit":   searchConsoleRowLimit,
			"startRow":   startRow,
		}

		var page searchAnalyticsResponse
		if err := a.deps.HTTP.PostJSON(ctx, endpoint, httpclient.BearerAuth(creds.AccessToken), request, &page); err != nil {
			return nil, fmt.Errorf("search console query: %w", err)
		}

		for _, r := range page.Rows {
			if len(r.Keys) < 2 {
				return nil, fmt.Errorf("search console row has %d keys, want 2", len(r.Keys))
			}
			date, err := models.ParseDate(r.Keys[0])
			if err != nil {
				return nil, fmt.Errorf("search console row date %q: %w", r.Keys[0], err)
			}
			rows = append(rows, models.SearchConsolePageMetric{
				SiteURL:     creds.SiteURL,
				Page:        r.Keys[1],
				Date:        date,
				Clicks:      int64(r.Clicks),
				Impressions: int64(r.Impressions),
				CTR:         r.CTR,
				Position:    r.Position,
			})
		}

		if len(page.Rows) < searchConsoleRowLimit {
			break
		}
	}
	return rows, nil
}

func (a *SearchConsole) UpsertMetrics(ctx context.Context, batch Batch) (int, error) {
	rows, ok := batch.(Rows[models.SearchConsolePageMetric])
	if !ok {
		return 0, unexpectedBatch(a.Platform(), batch)
	}
	return a.deps.Metrics.UpsertSearchConsole(ctx, rows)
}
