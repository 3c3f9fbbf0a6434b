// Package integrations connects platform accounts through the OAuth authorization code flow
// and manages the resulting integrations.
package integrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/Ramsey-B/clover/pkg/besteffort"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/oauth"
	"github.com/Ramsey-B/clover/pkg/platforms"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Providers performs the provider side of the OAuth flow. *oauth.Providers implements it.
type Providers interface {
	AuthCodeURL(platform models.Platform, state, redirectURI string) (string, error)
	Exchange(ctx context.Context, platform models.Platform, code, redirectURI string) (*oauth2.Token, error)
}

// AuthorizeResult is the consent URL and the state it carries
type AuthorizeResult struct {
	URL   string `json:"authorization_url"`
	State string `json:"state"`
}

// ExchangeRequest is the OAuth callback input
type ExchangeRequest struct {
	Code        string          `json:"code" validate:"required"`
	State       string          `json:"state" validate:"required"`
	TenantID    uuid.UUID       `json:"tenant_id" validate:"required"`
	Platform    models.Platform `json:"platform"`
	RedirectURI string          `json:"redirect_uri" validate:"required"`
}

// AccountResult is the outcome for one discovered account
type AccountResult struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// ExchangeResult is the outcome of an exchange across all discovered accounts
type ExchangeResult struct {
	Platform models.Platform `json:"platform"`
	Accounts []AccountResult `json:"accounts"`
}

// Connected returns the number of accounts stored successfully
func (r *ExchangeResult) Connected() int {
	n := 0
	for _, a := range r.Accounts {
		if a.Success {
			n++
		}
	}
	return n
}

// Service implements the OAuth exchange and integration admin operations
type Service struct {
	signer       *oauth.StateSigner
	providers    Providers
	registry     *platforms.Registry
	integrations repositories.IntegrationRepo
	events       kafka.Publisher
	logger       ectologger.Logger
}

// NewService creates the integration service
func NewService(
	signer *oauth.StateSigner,
	providers Providers,
	registry *platforms.Registry,
	integrations repositories.IntegrationRepo,
	events kafka.Publisher,
	logger ectologger.Logger,
) *Service {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	return &Service{
		signer:       signer,
		providers:    providers,
		registry:     registry,
		integrations: integrations,
		events:       events,
		logger:       logger,
	}
}

// Authorize mints a state for the tenant and returns the provider consent URL
func (s *Service) Authorize(ctx context.Context, tenantID uuid.UUID, platform models.Platform, redirectURI string) (*AuthorizeResult, error) {
	if _, err := s.registry.Get(platform); err != nil {
		return nil, err
	}

	state := s.signer.Generate(tenantID.String(), platform)
	url, err := s.providers.AuthCodeURL(platform, state, redirectURI)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Debugf("Issued %s authorization link for tenant %s", platform, tenantID)
	return &AuthorizeResult{URL: url, State: state}, nil
}

// Exchange validates the state, trades the code for a token and stores one integration per
// discovered account. A failed account write is reported in its result and the remaining
// accounts are still stored; the call fails only when no account could be stored.
func (s *Service) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	ctx = appctx.SetTenantID(ctx, req.TenantID.String())
	ctx = appctx.SetPlatform(ctx, string(req.Platform))

	ctx, span := tracing.StartSpan(ctx, "Integrations.Exchange", attribute.String("platform", string(req.Platform)))
	defer span.End()

	result, err := s.exchange(ctx, req)
	status := "success"
	if err != nil {
		status = "failed"
		tracing.Fail(span, err, "exchange failed")
		s.logger.WithContext(ctx).WithError(err).Warnf("OAuth exchange failed for %s", req.Platform)
	}
	metrics.OAuthExchangesTotal.WithLabelValues(string(req.Platform), status).Inc()
	return result, err
}

func (s *Service) exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	if err := s.signer.Verify(req.State, req.TenantID.String(), req.Platform); err != nil {
		return nil, err
	}

	adapter, err := s.registry.Get(req.Platform)
	if err != nil {
		return nil, err
	}

	token, err := s.providers.Exchange(ctx, req.Platform, req.Code, req.RedirectURI)
	if err != nil {
		return nil, err
	}

	accounts, err := adapter.DiscoverAccounts(ctx, oauth.MergeToken(models.Credentials{}, token))
	if err != nil {
		if errors.Is(err, platforms.ErrNoAccounts) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: account discovery: %w", models.ErrRemoteAPIFailure, err)
	}

	result := &ExchangeResult{Platform: req.Platform, Accounts: make([]AccountResult, 0, len(accounts))}
	var lastErr error
	for _, account := range accounts {
		accountResult := AccountResult{AccountID: account.ID, AccountName: account.Name}

		integration := &models.Integration{
			Platform:    req.Platform,
			AccountID:   account.ID,
			AccountName: account.Name,
			Credentials: database.NewJSONB(account.Credentials),
		}
		if err := s.integrations.Upsert(ctx, integration); err != nil {
			lastErr = err
			accountResult.Error = err.Error()
			s.logger.WithContext(ctx).WithError(err).Errorf("Failed to store %s account %s, continuing", req.Platform, account.ID)
			result.Accounts = append(result.Accounts, accountResult)
			continue
		}

		accountResult.Success = true
		result.Accounts = append(result.Accounts, accountResult)
		s.publishConnected(ctx, req.TenantID, integration)
	}

	if result.Connected() == 0 && lastErr != nil {
		return result, lastErr
	}

	s.logger.WithContext(ctx).Infof("Connected %d of %d %s accounts", result.Connected(), len(accounts), req.Platform)
	return result, nil
}

func (s *Service) publishConnected(ctx context.Context, tenantID uuid.UUID, integration *models.Integration) {
	besteffort.Run(ctx, s.logger, "publish_integration_event", func(ctx context.Context) error {
		return s.events.Publish(ctx, &kafka.Event{
			Type:      kafka.EventIntegrationConnected,
			TenantID:  tenantID.String(),
			Platform:  string(integration.Platform),
			AccountID: integration.AccountID,
			Data: map[string]any{
				"integration_id": integration.ID.String(),
				"account_name":   integration.AccountName,
			},
		})
	})
}

// List returns the tenant's integrations, inactive ones included
func (s *Service) List(ctx context.Context) ([]models.Integration, error) {
	return s.integrations.List(ctx)
}

// Deactivate flips is_active off. Integrations are never deleted.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	integration, err := s.integrations.Deactivate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.WithContext(ctx).Infof("Deactivated %s integration %s", integration.Platform, integration.AccountID)
	return integration, nil
}
