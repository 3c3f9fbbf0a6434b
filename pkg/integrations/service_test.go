package integrations_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/Ramsey-B/clover/mocks"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/integrations"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/oauth"
	"github.com/Ramsey-B/clover/pkg/platforms"
)

const redirectURI = "https://app.example.com/oauth/callback"

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeProviders struct {
	err       error
	exchanged int
}

func (p *fakeProviders) AuthCodeURL(platform models.Platform, state, redirectURI string) (string, error) {
	return fmt.Sprintf("https://consent.example/%s?state=%s&redirect_uri=%s", platform, state, redirectURI), nil
}

func (p *fakeProviders) Exchange(_ context.Context, platform models.Platform, code, _ string) (*oauth2.Token, error) {
	p.exchanged++
	if p.err != nil {
		return nil, p.err
	}
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}, nil
}

type discoveryAdapter struct {
	platforms.Adapter
	platform models.Platform
	accounts []platforms.Account
	err      error
}

func (a *discoveryAdapter) Platform() models.Platform { return a.platform }

func (a *discoveryAdapter) DiscoverAccounts(_ context.Context, creds models.Credentials) ([]platforms.Account, error) {
	accounts := make([]platforms.Account, len(a.accounts))
	for i, acc := range a.accounts {
		acc.Credentials = creds
		acc.Credentials.AdAccountID = acc.ID
		accounts[i] = acc
	}
	return accounts, a.err
}

type fixture struct {
	tenantID     uuid.UUID
	signer       *oauth.StateSigner
	providers    *fakeProviders
	integrations *mocks.IntegrationRepo
	events       *mocks.Publisher
	service      *integrations.Service
}

func newFixture(adapter *discoveryAdapter) *fixture {
	signer, err := oauth.NewStateSigner("state-secret", oauth.DefaultStateTTL)
	if err != nil {
		panic(err)
	}
	f := &fixture{
		tenantID:     uuid.New(),
		signer:       signer,
		providers:    &fakeProviders{},
		integrations: mocks.NewIntegrationRepo(),
		events:       &mocks.Publisher{},
	}
	f.service = integrations.NewService(f.signer, f.providers, platforms.NewRegistry(adapter), f.integrations, f.events, testLogger())
	return f
}

func (f *fixture) request(platform models.Platform, state string) integrations.ExchangeRequest {
	return integrations.ExchangeRequest{
		Code:        "code-1",
		State:       state,
		TenantID:    f.tenantID,
		Platform:    platform,
		RedirectURI: redirectURI,
	}
}

func metaAdapter(ids ...string) *discoveryAdapter {
	adapter := &discoveryAdapter{platform: models.PlatformMeta}
	for _, id := range ids {
		adapter.accounts = append(adapter.accounts, platforms.Account{ID: id, Name: "Account " + id})
	}
	return adapter
}

func TestAuthorize_StateVerifies(t *testing.T) {
	f := newFixture(metaAdapter("act_1"))

	result, err := f.service.Authorize(context.Background(), f.tenantID, models.PlatformMeta, redirectURI)
	require.NoError(t, err)

	assert.Contains(t, result.URL, result.State)
	assert.NoError(t, f.signer.Verify(result.State, f.tenantID.String(), models.PlatformMeta))
}

func TestExchange_StoresEveryMetaAccount(t *testing.T) {
	f := newFixture(metaAdapter("act_1", "act_2"))
	state := f.signer.Generate(f.tenantID.String(), models.PlatformMeta)

	result, err := f.service.Exchange(context.Background(), f.request(models.PlatformMeta, state))
	require.NoError(t, err)

	require.Len(t, result.Accounts, 2)
	assert.Equal(t, 2, result.Connected())
	for _, id := range []string{"act_1", "act_2"} {
		stored, ok := f.integrations.Find(f.tenantID, models.PlatformMeta, id)
		require.True(t, ok)
		assert.True(t, stored.IsActive)
		assert.Nil(t, stored.LastSync)
		assert.Equal(t, "access-code-1", stored.Credentials.Data.AccessToken)
		assert.Equal(t, id, stored.Credentials.Data.AdAccountID)
	}
	assert.Equal(t, []kafka.EventType{kafka.EventIntegrationConnected, kafka.EventIntegrationConnected}, f.events.Types())
}

func TestExchange_OneAccountFailureDoesNotStopTheLoop(t *testing.T) {
	f := newFixture(metaAdapter("act_1", "act_bad", "act_3"))
	f.integrations.UpsertErr = func(accountID string) error {
		if accountID == "act_bad" {
			return errors.New("unique violation")
		}
		return nil
	}
	state := f.signer.Generate(f.tenantID.String(), models.PlatformMeta)

	result, err := f.service.Exchange(context.Background(), f.request(models.PlatformMeta, state))
	require.NoError(t, err)

	require.Len(t, result.Accounts, 3)
	assert.True(t, result.Accounts[0].Success)
	assert.False(t, result.Accounts[1].Success)
	assert.Contains(t, result.Accounts[1].Error, "unique violation")
	assert.True(t, result.Accounts[2].Success)

	_, ok := f.integrations.Find(f.tenantID, models.PlatformMeta, "act_3")
	assert.True(t, ok)
	_, ok = f.integrations.Find(f.tenantID, models.PlatformMeta, "act_bad")
	assert.False(t, ok)
}

func TestExchange_AllAccountsFail(t *testing.T) {
	f := newFixture(metaAdapter("act_1"))
	f.integrations.UpsertErr = func(string) error { return errors.New("disk full") }
	state := f.signer.Generate(f.tenantID.String(), models.PlatformMeta)

	result, err := f.service.Exchange(context.Background(), f.request(models.PlatformMeta, state))

	assert.ErrorIs(t, err, models.ErrStorageWriteFailure)
	require.NotNil(t, result)
	assert.Zero(t, result.Connected())
}

func TestExchange_LastExchangeWins(t *testing.T) {
	f := newFixture(metaAdapter("act_1"))
	ctx := appctx.SetTenantID(context.Background(), f.tenantID.String())
	synced := time.Now()
	first := f.integrations.Put(models.Integration{
		TenantID: f.tenantID, Platform: models.PlatformMeta, AccountID: "act_1", IsActive: false, LastSync: &synced,
	})

	state := f.signer.Generate(f.tenantID.String(), models.PlatformMeta)
	_, err := f.service.Exchange(ctx, f.request(models.PlatformMeta, state))
	require.NoError(t, err)

	stored, _ := f.integrations.Find(f.tenantID, models.PlatformMeta, "act_1")
	assert.Equal(t, first.ID, stored.ID)
	assert.True(t, stored.IsActive)
	assert.Nil(t, stored.LastSync)
}

func TestExchange_TamperedStateTouchesNothing(t *testing.T) {
	f := newFixture(metaAdapter("act_1"))
	otherTenant := f.signer.Generate(uuid.NewString(), models.PlatformMeta)

	_, err := f.service.Exchange(context.Background(), f.request(models.PlatformMeta, otherTenant))

	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.Zero(t, f.providers.exchanged)
	assert.Zero(t, f.integrations.Calls["Upsert"])
}

func TestExchange_StateForOtherPlatform(t *testing.T) {
	f := newFixture(metaAdapter("act_1"))
	state := f.signer.Generate(f.tenantID.String(), models.PlatformGA4)

	_, err := f.service.Exchange(context.Background(), f.request(models.PlatformMeta, state))

	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestExchange_ProviderRejectsCode(t *testing.T) {
	f := newFixture(metaAdapter("act_1"))
	f.providers.err = fmt.Errorf("%w: meta: invalid_grant", models.ErrTokenExchangeFailed)
	state := f.signer.Generate(f.tenantID.String(), models.PlatformMeta)

	_, err := f.service.Exchange(context.Background(), f.request(models.PlatformMeta, state))

	assert.ErrorIs(t, err, models.ErrTokenExchangeFailed)
	assert.Zero(t, f.integrations.Calls["Upsert"])
}

func TestExchange_DiscoveryFailure(t *testing.T) {
	adapter := metaAdapter()
	adapter.err = errors.New("graph api unavailable")
	f := newFixture(adapter)
	state := f.signer.Generate(f.tenantID.String(), models.PlatformMeta)

	_, err := f.service.Exchange(context.Background(), f.request(models.PlatformMeta, state))

	assert.ErrorIs(t, err, models.ErrRemoteAPIFailure)
}

func TestDeactivate(t *testing.T) {
	f := newFixture(metaAdapter())
	ctx := appctx.SetTenantID(context.Background(), f.tenantID.String())
	stored := f.integrations.Put(models.Integration{TenantID: f.tenantID, Platform: models.PlatformMeta, AccountID: "act_1", IsActive: true})

	integration, err := f.service.Deactivate(ctx, stored.ID)
	require.NoError(t, err)
	assert.False(t, integration.IsActive)

	list, err := f.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsActive)
}

func TestDeactivate_OtherTenant(t *testing.T) {
	f := newFixture(metaAdapter())
	stored := f.integrations.Put(models.Integration{TenantID: uuid.New(), Platform: models.PlatformMeta, AccountID: "act_1", IsActive: true})
	ctx := appctx.SetTenantID(context.Background(), f.tenantID.String())

	_, err := f.service.Deactivate(ctx, stored.ID)

	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}
