package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	metaInsightFields = "campaign_id,campaign_name,impressions,clicks,reach,spend,actions"
	metaPageSize      = "500"
	// maxMetaPages bounds a paging loop that never terminates
	maxMetaPages = 200
)

// metaConversionActions are the action types counted as conversions
var metaConversionActions = []string{"purchase", "offsite_conversion.fb_pixel_purchase", "lead", "complete_registration"}

// Meta syncs daily campaign insights from the Graph API
type Meta struct {
	deps Deps
}

// NewMeta creates the Meta adapter
func NewMeta(deps Deps) *Meta {
	return &Meta{deps: deps.withDefaults()}
}

func (a *Meta) Platform() models.Platform {
	return models.PlatformMeta
}

func (a *Meta) graphURL(path string, params url.Values) string {
	return fmt.Sprintf("%s/%s/%s?%s", a.deps.Endpoints.MetaGraphURL, a.deps.Endpoints.MetaVersion,
		strings.TrimLeft(path, "/"), params.Encode())
}

// DiscoverAccounts returns every ad account the user can read. Meta is the only platform where
// one connection yields several integrations.
func (a *Meta) DiscoverAccounts(ctx context.Context, creds models.Credentials) ([]Account, error) {
	params := url.Values{}
	params.Set("fields", "id,name,account_status")
	params.Set("limit", metaPageSize)

	var accounts []Account
	err := a.paginate(ctx, creds.AccessToken, a.graphURL("me/adaccounts", params), func(item any) error {
		id, err := a.deps.Evaluator.EvaluateString("id", item)
		if err != nil || id == "" {
			return err
		}
		name, err := a.deps.Evaluator.EvaluateString("name", item)
		if err != nil {
			return err
		}
		accountCreds := creds
		accountCreds.AdAccountID = id
		accounts = append(accounts, Account{ID: id, Name: name, Credentials: accountCreds})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list meta ad accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: meta", ErrNoAccounts)
	}
	return accounts, nil
}

// FetchCredential validates the bundle. Meta long-lived tokens have no refresh token, so an
// expired token requires reconnecting.
func (a *Meta) FetchCredential(_ context.Context, integration *models.Integration) (models.Credentials, error) {
	creds := integration.Credentials.Data
	if creds.AccessToken == "" {
		return creds, invalidCredentials(a.Platform(), "access_token")
	}
	if creds.AdAccountID == "" {
		creds.AdAccountID = integration.AccountID
	}
	if creds.AdAccountID == "" {
		return creds, invalidCredentials(a.Platform(), "ad_account_id")
	}
	if creds.IsExpired(a.deps.Now(), 0) {
		return creds, fmt.Errorf("%w: meta token for %s expired", models.ErrTokenExpired, creds.AdAccountID)
	}
	return creds, nil
}

func (a *Meta) FetchRemoteMetrics(ctx context.Context, creds models.Credentials, window models.DateRange) (Batch, error) {
	timeRange, err := json.Marshal(map[string]string{"since": window.StartString(), "until": window.EndString()})
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("level", "campaign")
	params.Set("time_increment", "1")
	params.Set("time_range", string(timeRange))
	params.Set("fields", metaInsightFields)
	params.Set("limit", metaPageSize)

	var rows Rows[models.MetaCampaignMetric]
	err = a.paginate(ctx, creds.AccessToken, a.graphURL(creds.AdAccountID+"/insights", params), func(item any) error {
		row, err := a.parseInsight(item, creds.AdAccountID)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("meta insights: %w", err)
	}
	return rows, nil
}

func (a *Meta) parseInsight(item any, adAccountID string) (models.MetaCampaignMetric, error) {
	eval := a.deps.Evaluator
	row := models.MetaCampaignMetric{AdAccountID: adAccountID}

	var err error
	if row.CampaignID, err = eval.EvaluateString("campaign_id", item); err != nil {
		return row, err
	}
	if row.CampaignName, err = eval.EvaluateString("campaign_name", item); err != nil {
		return row, err
	}
	rawDate, err := eval.EvaluateString("date_start", item)
	if err != nil {
		return row, err
	}
	if row.Date, err = models.ParseDate(rawDate); err != nil {
		return row, fmt.Errorf("meta insight date %q: %w", rawDate, err)
	}
	if row.Impressions, err = eval.EvaluateInt("impressions", item); err != nil {
		return row, err
	}
	if row.Clicks, err = eval.EvaluateInt("clicks", item); err != nil {
		return row, err
	}
	if row.Reach, err = eval.EvaluateInt("reach", item); err != nil {
		return row, err
	}
	if row.Spend, err = eval.EvaluateFloat("spend", item); err != nil {
		return row, err
	}

	for _, action := range metaConversionActions {
		value, err := eval.EvaluateFloat(fmt.Sprintf("actions[?action_type=='%s'] | [0].value", action), item)
		if err != nil {
			return row, err
		}
		row.Conversions += value
	}
	return row, nil
}

// paginate walks a Graph API edge, following paging.next until it is absent. The token goes
// in the Authorization header so it never appears in a URL.
func (a *Meta) paginate(ctx context.Context, accessToken, next string, each func(item any) error) error {
	headers := httpclient.BearerAuth(accessToken)
	for page := 0; next != ""; page++ {
		if page == maxMetaPages {
			return fmt.Errorf("%w: meta stopped after %d pages", ErrPagingLimit, maxMetaPages)
		}

		var body any
		if err := a.deps.HTTP.GetJSON(ctx, next, headers, &body); err != nil {
			return err
		}

		items, err := a.deps.Evaluator.EvaluateSlice("data", body)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := each(item); err != nil {
				return err
			}
		}

		if next, err = a.deps.Evaluator.EvaluateString("paging.next", body); err != nil {
			return err
		}
	}
	return nil
}

func (a *Meta) UpsertMetrics(ctx context.Context, batch Batch) (int, error) {
	rows, ok := batch.(Rows[models.MetaCampaignMetric])
	if !ok {
		return 0, unexpectedBatch(a.Platform(), batch)
	}
	return a.deps.Metrics.UpsertMeta(ctx, rows)
}
