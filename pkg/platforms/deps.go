package platforms

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/besteffort"
	"github.com/Ramsey-B/clover/pkg/expressions"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

// TokenRefresher refreshes expired credentials. *oauth.Providers implements it.
type TokenRefresher interface {
	Refresh(ctx context.Context, platform models.Platform, creds models.Credentials) (models.Credentials, bool, error)
}

// Deps are the collaborators shared by every adapter
type Deps struct {
	HTTP         *httpclient.Client
	Metrics      repositories.MetricRepo
	Integrations repositories.IntegrationRepo
	Refresher    TokenRefresher
	Evaluator    *expressions.Evaluator
	Endpoints    Endpoints
	Logger       ectologger.Logger
	Now          func() time.Time
}

func (d Deps) withDefaults() Deps {
	d.Endpoints = d.Endpoints.WithDefaults()
	if d.Evaluator == nil {
		d.Evaluator = expressions.NewEvaluator()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// refreshed returns usable credentials for a platform that supports refresh tokens. A newly
// refreshed bundle is persisted best-effort: the sync can proceed with it either way.
func (d Deps) refreshed(ctx context.Context, integration *models.Integration, creds models.Credentials) (models.Credentials, error) {
	if d.Refresher == nil {
		return creds, nil
	}

	fresh, refreshed, err := d.Refresher.Refresh(ctx, integration.Platform, creds)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(string(integration.Platform), "failed").Inc()
		return creds, err
	}
	if !refreshed {
		return creds, nil
	}

	metrics.TokenRefreshesTotal.WithLabelValues(string(integration.Platform), "success").Inc()
	if d.Integrations != nil {
		besteffort.Run(ctx, d.Logger, "persist_refreshed_token", func(ctx context.Context) error {
			return d.Integrations.UpdateCredentials(ctx, integration.Platform, integration.AccountID, fresh)
		})
	}
	return fresh, nil
}
