package syncer_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/mocks"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/platforms"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/syncer"
)

var now = time.Date(2024, 3, 31, 15, 4, 5, 0, time.UTC)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// scriptedAdapter answers FetchRemoteMetrics from a list of errors, then with rows
type scriptedAdapter struct {
	metrics *mocks.MetricRepo
	errs    []error
	calls   int
}

func (a *scriptedAdapter) Platform() models.Platform { return models.PlatformMeta }

func (a *scriptedAdapter) DiscoverAccounts(context.Context, models.Credentials) ([]platforms.Account, error) {
	return nil, nil
}

func (a *scriptedAdapter) FetchCredential(_ context.Context, integration *models.Integration) (models.Credentials, error) {
	return integration.Credentials.Data, nil
}

func (a *scriptedAdapter) FetchRemoteMetrics(_ context.Context, creds models.Credentials, window models.DateRange) (platforms.Batch, error) {
	a.calls++
	if a.calls <= len(a.errs) {
		return nil, a.errs[a.calls-1]
	}
	// values change on every call so overwrites are observable
	return platforms.Rows[models.MetaCampaignMetric]{{
		AdAccountID: creds.AdAccountID,
		CampaignID:  "c1",
		Date:        window.End,
		Clicks:      int64(10 * a.calls),
		Spend:       float64(a.calls) * 1.5,
	}}, nil
}

func (a *scriptedAdapter) UpsertMetrics(ctx context.Context, batch platforms.Batch) (int, error) {
	return a.metrics.UpsertMeta(ctx, batch.(platforms.Rows[models.MetaCampaignMetric]))
}

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

type denyingLimiter struct {
	blocked []string
}

func (l *denyingLimiter) Allow(context.Context, string, int64, time.Duration) (*redis.RateLimitResult, error) {
	return &redis.RateLimitResult{Allowed: false, RetryIn: 30 * time.Second}, nil
}

func (l *denyingLimiter) BlockFor(_ context.Context, key string, _ time.Duration) error {
	l.blocked = append(l.blocked, key)
	return nil
}

type fixture struct {
	tenantID     uuid.UUID
	integrations *mocks.IntegrationRepo
	metrics      *mocks.MetricRepo
	logs         *mocks.LogRepo
	events       *mocks.Publisher
	sleeper      *recordingSleeper
}

func newFixture() *fixture {
	return &fixture{
		tenantID:     uuid.New(),
		integrations: mocks.NewIntegrationRepo(),
		metrics:      mocks.NewMetricRepo(),
		logs:         mocks.NewLogRepo(),
		events:       &mocks.Publisher{},
		sleeper:      &recordingSleeper{},
	}
}

func (f *fixture) service(limiter syncer.RateLimiter, adapters ...platforms.Adapter) *syncer.Service {
	cfg := syncer.DefaultConfig()
	cfg.Retry.Sleep = f.sleeper.Sleep
	if limiter != nil {
		cfg.RateLimit = 10
	}
	return syncer.NewService(platforms.NewRegistry(adapters...), f.integrations, f.logs, f.events, limiter, cfg, testLogger()).
		WithClock(func() time.Time { return now })
}

func (f *fixture) connect(platform models.Platform, accountID string, creds models.Credentials) {
	f.integrations.Put(models.Integration{
		TenantID:    f.tenantID,
		Platform:    platform,
		AccountID:   accountID,
		Credentials: database.NewJSONB(creds),
		IsActive:    true,
		SyncStatus:  models.SyncStatusIdle,
	})
}

func (f *fixture) request(platform models.Platform, accountID string) models.SyncRequest {
	return models.SyncRequest{TenantID: f.tenantID, Platform: platform, AccountID: accountID}
}

func TestSync_DefaultWindowWritesOneRowPerDay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"rowCount":0}`)
	}))
	defer server.Close()

	f := newFixture()
	f.connect(models.PlatformGA4, "123", models.Credentials{AccessToken: "tok", PropertyID: "123"})
	ga4 := platforms.NewGA4(platforms.Deps{
		HTTP:      httpclient.NewClient(httpclient.DefaultConfig(), testLogger()),
		Metrics:   f.metrics,
		Endpoints: platforms.Endpoints{GA4DataURL: server.URL},
		Logger:    testLogger(),
	})

	result, err := f.service(nil, ga4).Sync(context.Background(), f.request(models.PlatformGA4, "123"))
	require.NoError(t, err)

	assert.Equal(t, 31, result.RowsSynced)
	assert.Equal(t, "2024-03-01", result.StartDate)
	assert.Equal(t, "2024-03-31", result.EndDate)
	assert.Len(t, f.metrics.GA4, 31)

	stored, _ := f.integrations.Find(f.tenantID, models.PlatformGA4, "123")
	require.NotNil(t, stored.LastSync)
	assert.Equal(t, now, *stored.LastSync)
	assert.Equal(t, models.SyncStatusSynced, stored.SyncStatus)

	require.Len(t, f.logs.SyncLogs, 1)
	assert.Equal(t, models.SyncLogSuccess, f.logs.SyncLogs[0].Status)
	assert.Equal(t, 31, f.logs.SyncLogs[0].RowsSynced)
	assert.Equal(t, []kafka.EventType{kafka.EventSyncCompleted}, f.events.Types())
}

func TestSync_ResyncOverwritesRows(t *testing.T) {
	f := newFixture()
	f.connect(models.PlatformMeta, "act_1", models.Credentials{AccessToken: "tok", AdAccountID: "act_1"})
	service := f.service(nil, &scriptedAdapter{metrics: f.metrics})

	for i := 0; i < 2; i++ {
		_, err := service.Sync(context.Background(), f.request(models.PlatformMeta, "act_1"))
		require.NoError(t, err)
	}

	require.Len(t, f.metrics.Meta, 1)
	for _, row := range f.metrics.Meta {
		assert.Equal(t, int64(20), row.Clicks, "second sync must replace the first sync's values")
		assert.Equal(t, 3.0, row.Spend)
		assert.Equal(t, f.tenantID, row.TenantID)
	}
	assert.Len(t, f.logs.SyncLogs, 2)
}

func TestSync_IntegrationNotFound(t *testing.T) {
	f := newFixture()
	adapter := &scriptedAdapter{metrics: f.metrics}

	_, err := f.service(nil, adapter).Sync(context.Background(), f.request(models.PlatformMeta, "act_missing"))

	assert.ErrorIs(t, err, models.ErrIntegrationNotFound)
	assert.Zero(t, adapter.calls)
	require.Len(t, f.logs.SyncLogs, 1)
	assert.Equal(t, models.SyncLogFailed, f.logs.SyncLogs[0].Status)
	assert.Equal(t, []kafka.EventType{kafka.EventSyncFailed}, f.events.Types())
}

func TestSync_InactiveIntegrationIsNotFound(t *testing.T) {
	f := newFixture()
	f.integrations.Put(models.Integration{TenantID: f.tenantID, Platform: models.PlatformMeta, AccountID: "act_1", IsActive: false})

	_, err := f.service(nil, &scriptedAdapter{metrics: f.metrics}).Sync(context.Background(), f.request(models.PlatformMeta, "act_1"))

	assert.ErrorIs(t, err, models.ErrIntegrationNotFound)
}

func TestSync_TransportFailureDoesNotLeakToken(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	f := newFixture()
	f.connect(models.PlatformMeta, "act_1", models.Credentials{AccessToken: "live-meta-token", AdAccountID: "act_1"})
	meta := platforms.NewMeta(platforms.Deps{
		HTTP:      httpclient.NewClient(httpclient.DefaultConfig(), testLogger()),
		Metrics:   f.metrics,
		Endpoints: platforms.Endpoints{MetaGraphURL: server.URL},
		Logger:    testLogger(),
		Now:       func() time.Time { return now },
	})

	_, err := f.service(nil, meta).Sync(context.Background(), f.request(models.PlatformMeta, "act_1"))

	require.ErrorIs(t, err, models.ErrRemoteAPIFailure)
	assert.NotContains(t, err.Error(), "live-meta-token")
	require.Len(t, f.logs.SyncLogs, 1)
	require.NotNil(t, f.logs.SyncLogs[0].ErrorMessage)
	assert.NotContains(t, *f.logs.SyncLogs[0].ErrorMessage, "live-meta-token")
}

func TestSync_GoogleAdsExpiredTokenIsNotRefreshed(t *testing.T) {
	var remoteCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		remoteCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newFixture()
	expired := now.Add(-time.Hour)
	f.connect(models.PlatformGoogleAds, "999", models.Credentials{AccessToken: "tok", CustomerID: "999", ExpiresAt: &expired})
	ads := platforms.NewGoogleAds(platforms.Deps{
		HTTP:      httpclient.NewClient(httpclient.DefaultConfig(), testLogger()),
		Metrics:   f.metrics,
		Endpoints: platforms.Endpoints{GoogleAdsURL: server.URL},
		Logger:    testLogger(),
		Now:       func() time.Time { return now },
	})

	_, err := f.service(nil, ads).Sync(context.Background(), f.request(models.PlatformGoogleAds, "999"))

	assert.ErrorIs(t, err, models.ErrTokenExpired)
	assert.Zero(t, remoteCalls.Load())
	stored, _ := f.integrations.Find(f.tenantID, models.PlatformGoogleAds, "999")
	assert.Equal(t, models.SyncStatusFailed, stored.SyncStatus)
	assert.Nil(t, stored.LastSync)
}

func TestSync_FailFailSucceed(t *testing.T) {
	f := newFixture()
	f.connect(models.PlatformMeta, "act_1", models.Credentials{AccessToken: "tok", AdAccountID: "act_1"})
	adapter := &scriptedAdapter{metrics: f.metrics, errs: []error{errors.New("timeout"), errors.New("timeout")}}

	result, err := f.service(nil, adapter).Sync(context.Background(), f.request(models.PlatformMeta, "act_1"))

	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsSynced)
	assert.Equal(t, 3, adapter.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.sleeper.delays)
}

func TestSync_RetriesExhausted(t *testing.T) {
	f := newFixture()
	f.connect(models.PlatformMeta, "act_1", models.Credentials{AccessToken: "tok", AdAccountID: "act_1"})
	adapter := &scriptedAdapter{metrics: f.metrics, errs: []error{
		errors.New("first"), errors.New("second"), errors.New("upstream 503 on third"),
	}}

	_, err := f.service(nil, adapter).Sync(context.Background(), f.request(models.PlatformMeta, "act_1"))

	assert.ErrorIs(t, err, models.ErrRemoteAPIFailure)
	assert.Contains(t, err.Error(), "upstream 503 on third")
	assert.Equal(t, 3, adapter.calls)
	assert.Empty(t, f.metrics.Meta)
	require.Len(t, f.logs.SyncLogs, 1)
	require.NotNil(t, f.logs.SyncLogs[0].ErrorMessage)
	assert.Contains(t, *f.logs.SyncLogs[0].ErrorMessage, "upstream 503 on third")
}

func TestSync_ClientErrorIsNotRetried(t *testing.T) {
	f := newFixture()
	f.connect(models.PlatformMeta, "act_1", models.Credentials{AccessToken: "tok", AdAccountID: "act_1"})
	adapter := &scriptedAdapter{metrics: f.metrics, errs: []error{
		&httpclient.StatusError{Method: http.MethodGet, URL: "https://graph.example/insights", StatusCode: http.StatusBadRequest},
	}}

	_, err := f.service(nil, adapter).Sync(context.Background(), f.request(models.PlatformMeta, "act_1"))

	assert.ErrorIs(t, err, models.ErrRemoteAPIFailure)
	assert.Equal(t, 1, adapter.calls)
	assert.Empty(t, f.sleeper.delays)
}

func TestSync_StorageFailureIsFatal(t *testing.T) {
	f := newFixture()
	f.connect(models.PlatformMeta, "act_1", models.Credentials{AccessToken: "tok", AdAccountID: "act_1"})
	f.metrics.Err = errors.New("connection refused")

	_, err := f.service(nil, &scriptedAdapter{metrics: f.metrics}).Sync(context.Background(), f.request(models.PlatformMeta, "act_1"))

	assert.ErrorIs(t, err, models.ErrStorageWriteFailure)
	require.Len(t, f.logs.SyncLogs, 1)
	assert.Equal(t, models.SyncLogFailed, f.logs.SyncLogs[0].Status)
}

func TestSync_BookkeepingFailuresAreSwallowed(t *testing.T) {
	f := newFixture()
	f.connect(models.PlatformMeta, "act_1", models.Credentials{AccessToken: "tok", AdAccountID: "act_1"})
	f.integrations.UpdateLastSyncErr = errors.New("deadlock detected")
	f.logs.Err = errors.New("audit table missing")
	f.events.Err = errors.New("no brokers")

	result, err := f.service(nil, &scriptedAdapter{metrics: f.metrics}).Sync(context.Background(), f.request(models.PlatformMeta, "act_1"))

	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsSynced)
	assert.Equal(t, 1, f.integrations.Calls["UpdateLastSync"])
}

func TestSync_RateLimitedCallsAreRetried(t *testing.T) {
	f := newFixture()
	f.connect(models.PlatformMeta, "act_1", models.Credentials{AccessToken: "tok", AdAccountID: "act_1"})
	adapter := &scriptedAdapter{metrics: f.metrics}

	_, err := f.service(&denyingLimiter{}, adapter).Sync(context.Background(), f.request(models.PlatformMeta, "act_1"))

	assert.ErrorIs(t, err, models.ErrRemoteAPIFailure)
	assert.ErrorIs(t, err, redis.ErrRateLimitExceeded)
	assert.Zero(t, adapter.calls)
	assert.Len(t, f.sleeper.delays, 2)
}

func TestSync_ProviderRateLimitBlocksPlatform(t *testing.T) {
	f := newFixture()
	f.connect(models.PlatformMeta, "act_1", models.Credentials{AccessToken: "tok", AdAccountID: "act_1"})
	tooMany := &httpclient.StatusError{StatusCode: http.StatusTooManyRequests}
	limiter := &allowingLimiter{}
	adapter := &scriptedAdapter{metrics: f.metrics, errs: []error{tooMany}}

	_, err := f.service(limiter, adapter).Sync(context.Background(), f.request(models.PlatformMeta, "act_1"))

	require.NoError(t, err)
	assert.Equal(t, []string{"platform:meta"}, limiter.blocked)
}

type allowingLimiter struct {
	blocked []string
}

func (l *allowingLimiter) Allow(context.Context, string, int64, time.Duration) (*redis.RateLimitResult, error) {
	return &redis.RateLimitResult{Allowed: true}, nil
}

func (l *allowingLimiter) BlockFor(_ context.Context, key string, _ time.Duration) error {
	l.blocked = append(l.blocked, key)
	return nil
}

func TestSync_InvertedWindow(t *testing.T) {
	f := newFixture()
	start := now.AddDate(0, 0, 2)
	req := f.request(models.PlatformMeta, "act_1")
	req.StartDate = &start

	_, err := f.service(nil, &scriptedAdapter{metrics: f.metrics}).Sync(context.Background(), req)

	assert.ErrorIs(t, err, models.ErrInvalidDateRange)
	assert.Empty(t, f.logs.SyncLogs)
}

func TestSync_UnsupportedPlatform(t *testing.T) {
	f := newFixture()

	_, err := f.service(nil).Sync(context.Background(), f.request(models.PlatformGA4, "123"))

	assert.ErrorIs(t, err, models.ErrUnsupportedPlatform)
}
