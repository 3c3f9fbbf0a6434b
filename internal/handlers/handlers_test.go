package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/pkg/alerts"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/integrations"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/webhook"
)

var tenantID = uuid.MustParse("6a1f8f1e-8a57-4e0f-9b1c-3a3f4c1b2d10")

type fakeOAuth struct {
	exchanged integrations.ExchangeRequest
	result    *integrations.ExchangeResult
	err       error
}

func (f *fakeOAuth) Authorize(_ context.Context, tenant uuid.UUID, platform models.Platform, redirectURI string) (*integrations.AuthorizeResult, error) {
	return &integrations.AuthorizeResult{URL: "https://consent.example/" + string(platform) + "?redirect_uri=" + redirectURI, State: "state-" + tenant.String()}, nil
}

func (f *fakeOAuth) Exchange(_ context.Context, req integrations.ExchangeRequest) (*integrations.ExchangeResult, error) {
	f.exchanged = req
	return f.result, f.err
}

type fakeSyncer struct {
	req models.SyncRequest
	err error
}

func (f *fakeSyncer) Sync(_ context.Context, req models.SyncRequest) (*models.SyncResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.SyncResult{Platform: req.Platform, AccountID: req.AccountID, StartDate: "2026-01-01", EndDate: "2026-01-30", RowsSynced: 30}, nil
}

type fakeWebhooks struct {
	event *webhook.Event
	err   error
}

func (f *fakeWebhooks) Handle(_ context.Context, _ models.Platform, event *webhook.Event) (*webhook.Result, error) {
	f.event = event
	if f.err != nil {
		return nil, f.err
	}
	return &webhook.Result{EventType: event.EventType, Status: models.WebhookLogIgnored}, nil
}

type fakeAlerts struct {
	err error
}

func (f *fakeAlerts) Trigger(_ context.Context, req alerts.TriggerRequest) (*alerts.TriggerResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &alerts.TriggerResult{
		Alert:             &models.Alert{ID: req.AlertID, AlertType: req.AlertType, IsActive: req.Action.Active()},
		NotificationError: "connection refused",
	}, nil
}

type fakeIntegrations struct {
	seenTenant string
}

func (f *fakeIntegrations) List(ctx context.Context) ([]models.Integration, error) {
	f.seenTenant = appctx.GetTenantID(ctx)
	return []models.Integration{{ID: uuid.New(), TenantID: tenantID, Platform: models.PlatformMeta, AccountID: "act_1"}}, nil
}

func (f *fakeIntegrations) Deactivate(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	f.seenTenant = appctx.GetTenantID(ctx)
	return &models.Integration{ID: id, TenantID: tenantID, IsActive: false}, nil
}

type fakeDLQ struct {
	entries map[string]redis.DLQEntry
}

func (f *fakeDLQ) ListByTenant(_ context.Context, tenant uuid.UUID, _ int64) ([]redis.DLQEntry, error) {
	var out []redis.DLQEntry
	for _, e := range f.entries {
		if e.TenantID == tenant {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeDLQ) Get(_ context.Context, tenant uuid.UUID, id string) (*redis.DLQEntry, error) {
	e, ok := f.entries[id]
	if !ok || e.TenantID != tenant {
		return nil, fmt.Errorf("%w: %s", redis.ErrDLQEntryNotFound, id)
	}
	return &e, nil
}

func (f *fakeDLQ) Delete(ctx context.Context, tenant uuid.UUID, id string) error {
	if _, err := f.Get(ctx, tenant, id); err != nil {
		return err
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeDLQ) Retry(ctx context.Context, tenant uuid.UUID, id string, _ *redis.Streams, _ string) error {
	return f.Delete(ctx, tenant, id)
}

type fixture struct {
	oauth        *fakeOAuth
	syncer       *fakeSyncer
	webhooks     *fakeWebhooks
	alerts       *fakeAlerts
	integrations *fakeIntegrations
	dlq          *fakeDLQ
	e            *echo.Echo
}

func newFixture() *fixture {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	f := &fixture{
		oauth:        &fakeOAuth{},
		syncer:       &fakeSyncer{},
		webhooks:     &fakeWebhooks{},
		alerts:       &fakeAlerts{},
		integrations: &fakeIntegrations{},
		dlq: &fakeDLQ{entries: map[string]redis.DLQEntry{
			"1-0": {MessageID: "1-0", DeadLetterJob: models.DeadLetterJob{TenantID: tenantID, Reason: "auth_error"}},
			"2-0": {MessageID: "2-0", DeadLetterJob: models.DeadLetterJob{TenantID: uuid.New(), Reason: "auth_error"}},
		}},
	}
	f.e = handlers.NewRouter(handlers.RouterConfig{ServiceName: "clover-test"}, handlers.Handlers{
		OAuth:        handlers.NewOAuthHandler(f.oauth, logger),
		Sync:         handlers.NewSyncHandler(f.syncer, logger),
		Webhook:      handlers.NewWebhookHandler(f.webhooks, logger),
		Alert:        handlers.NewAlertHandler(f.alerts, logger),
		Integrations: handlers.NewIntegrationHandler(f.integrations),
		DLQ:          handlers.NewDLQHandler(f.dlq, nil, "clover:sync:jobs", logger),
	}, logger)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestOAuth_Authorize(t *testing.T) {
	f := newFixture()

	rec, body := f.do(t, http.MethodPost, "/api/v1/oauth/ga4/authorize",
		`{"tenant_id":"`+tenantID.String()+`","redirect_uri":"https://app.example/cb"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["authorization_url"], "https://consent.example/ga4")
	assert.Equal(t, "state-"+tenantID.String(), body["state"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestOAuth_CallbackPassesRequestThrough(t *testing.T) {
	f := newFixture()
	f.oauth.result = &integrations.ExchangeResult{
		Platform: models.PlatformMeta,
		Accounts: []integrations.AccountResult{{AccountID: "act_1", Success: true}},
	}

	rec, body := f.do(t, http.MethodPost, "/api/v1/oauth/meta/callback",
		`{"code":"abc","state":"s","tenant_id":"`+tenantID.String()+`","redirect_uri":"https://app.example/cb"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Connected 1 of 1 meta accounts", body["message"])
	assert.Equal(t, "abc", f.oauth.exchanged.Code)
	assert.Equal(t, models.PlatformMeta, f.oauth.exchanged.Platform)
	assert.Equal(t, tenantID, f.oauth.exchanged.TenantID)
}

func TestOAuth_CallbackErrors(t *testing.T) {
	valid := `{"code":"abc","state":"s","tenant_id":"` + tenantID.String() + `","redirect_uri":"https://app.example/cb"}`

	tests := []struct {
		name   string
		path   string
		body   string
		err    error
		status int
	}{
		{name: "unknown platform", path: "/api/v1/oauth/tiktok/callback", body: valid, status: http.StatusInternalServerError},
		{name: "missing code", path: "/api/v1/oauth/meta/callback", body: `{"state":"s","tenant_id":"` + tenantID.String() + `","redirect_uri":"https://app.example/cb"}`, status: http.StatusBadRequest},
		{name: "malformed json", path: "/api/v1/oauth/meta/callback", body: `{"code":`, status: http.StatusBadRequest},
		{name: "invalid state", path: "/api/v1/oauth/meta/callback", body: valid, err: models.ErrInvalidState, status: http.StatusInternalServerError},
		{name: "provider failure", path: "/api/v1/oauth/meta/callback", body: valid, err: fmt.Errorf("%w: boom", models.ErrTokenExchangeFailed), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.oauth.err = tt.err

			rec, body := f.do(t, http.MethodPost, tt.path, tt.body, nil)

			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["timestamp"])
		})
	}
}

func TestSync_ParsesDates(t *testing.T) {
	f := newFixture()

	rec, body := f.do(t, http.MethodPost, "/api/v1/sync/google_ads",
		`{"tenant_id":"`+tenantID.String()+`","account_id":"123","start_date":"2026-01-01","end_date":"2026-01-30"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(30), body["rows_synced"])
	require.NotNil(t, f.syncer.req.StartDate)
	require.NotNil(t, f.syncer.req.EndDate)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *f.syncer.req.StartDate)
	assert.Equal(t, models.PlatformGoogleAds, f.syncer.req.Platform)
}

func TestSync_DefaultWindowLeavesDatesNil(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodPost, "/api/v1/sync/ga4", `{"tenant_id":"`+tenantID.String()+`","account_id":"123"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, f.syncer.req.StartDate)
	assert.Nil(t, f.syncer.req.EndDate)
}

func TestSync_Errors(t *testing.T) {
	t.Run("bad date", func(t *testing.T) {
		f := newFixture()
		rec, body := f.do(t, http.MethodPost, "/api/v1/sync/ga4",
			`{"tenant_id":"`+tenantID.String()+`","account_id":"123","start_date":"01/01/2026"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, body["error"], "start_date")
	})

	t.Run("integration missing", func(t *testing.T) {
		f := newFixture()
		f.syncer.err = fmt.Errorf("%w: ga4/123", models.ErrIntegrationNotFound)
		rec, body := f.do(t, http.MethodPost, "/api/v1/sync/ga4", `{"tenant_id":"`+tenantID.String()+`","account_id":"123"}`, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, body["error"], "integration not found")
	})
}

func TestWebhook_SignatureFromHeader(t *testing.T) {
	f := newFixture()

	rec, body := f.do(t, http.MethodPost, "/api/v1/webhooks/meta",
		`{"tenant_id":"`+tenantID.String()+`","account_id":"act_1","event_type":"PING","data":{}}`,
		map[string]string{handlers.HeaderSignature: "sha256=abc"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Webhook event ignored", body["message"])
	assert.Equal(t, "sha256=abc", f.webhooks.event.Signature)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	f := newFixture()
	f.webhooks.err = models.ErrInvalidSignature

	rec, body := f.do(t, http.MethodPost, "/api/v1/webhooks/meta",
		`{"tenant_id":"`+tenantID.String()+`","account_id":"act_1","event_type":"CAMPAIGN_CREATED","data":{},"signature":"nope"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["error"], "invalid signature")
}

func TestAlert_Trigger(t *testing.T) {
	f := newFixture()
	alertID := uuid.New()

	rec, body := f.do(t, http.MethodPost, "/api/v1/alerts/trigger",
		`{"action":"activate","alert_type":"budget","alert_id":"`+alertID.String()+`"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alert activated", body["message"])
	assert.Equal(t, true, body["is_active"])
	assert.Equal(t, false, body["notification_sent"])
	assert.Equal(t, "connection refused", body["notification_error"])
}

func TestAlert_RejectsUnknownAction(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodPost, "/api/v1/alerts/trigger",
		`{"action":"toggle","alert_type":"budget","alert_id":"`+uuid.NewString()+`"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlert_StorageFailure(t *testing.T) {
	f := newFixture()
	f.alerts.err = errors.New("connection reset")

	rec, body := f.do(t, http.MethodPost, "/api/v1/alerts/trigger",
		`{"action":"deactivate","alert_type":"budget","alert_id":"`+uuid.NewString()+`"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "connection reset", body["error"])
}

func TestIntegrations_RequireTenant(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodGet, "/api/v1/integrations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := f.do(t, http.MethodGet, "/api/v1/integrations", "", map[string]string{middleware.HeaderTenantID: tenantID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, tenantID.String(), f.integrations.seenTenant)
}

func TestIntegrations_Deactivate(t *testing.T) {
	f := newFixture()
	headers := map[string]string{middleware.HeaderTenantID: tenantID.String()}

	rec, _ := f.do(t, http.MethodPost, "/api/v1/integrations/not-a-uuid/deactivate", "", headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/integrations/"+uuid.NewString()+"/deactivate", "", headers)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDLQ_TenantScoped(t *testing.T) {
	f := newFixture()
	headers := map[string]string{middleware.HeaderTenantID: tenantID.String()}

	rec, body := f.do(t, http.MethodGet, "/api/v1/dlq", "", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/dlq/2-0", "", headers)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/dlq/1-0/retry", "", headers)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, f.dlq.entries, "1-0")

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/dlq/1-0", "", headers)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreflight(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodOptions, "/api/v1/sync/ga4", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
