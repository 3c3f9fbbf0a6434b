package webhook_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/mocks"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/webhook"
)

const secret = "whsec_test"

var now = time.Date(2024, 3, 31, 15, 4, 5, 0, time.UTC)

type fixture struct {
	tenantID     uuid.UUID
	signer       *webhook.Signer
	campaigns    *mocks.CampaignRepo
	integrations *mocks.IntegrationRepo
	logs         *mocks.LogRepo
	events       *mocks.Publisher
	handler      *webhook.Handler
}

func newFixture() *fixture {
	f := &fixture{
		tenantID:     uuid.New(),
		signer:       webhook.NewSigner(secret),
		campaigns:    mocks.NewCampaignRepo(),
		integrations: mocks.NewIntegrationRepo(),
		logs:         mocks.NewLogRepo(),
		events:       &mocks.Publisher{},
	}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	f.handler = webhook.NewHandler(f.signer, f.campaigns, f.integrations, f.logs, f.events, logger).
		WithClock(func() time.Time { return now })
	f.integrations.Put(models.Integration{
		TenantID: f.tenantID, Platform: models.PlatformMeta, AccountID: "act_1", IsActive: true, SyncStatus: models.SyncStatusSynced,
	})
	return f
}

func (f *fixture) event(eventType string, data any) *webhook.Event {
	raw, _ := json.Marshal(data)
	return &webhook.Event{
		TenantID:  f.tenantID,
		AccountID: "act_1",
		EventType: eventType,
		Data:      raw,
		Signature: "sha256=" + f.signer.Sign(f.tenantID, "act_1", eventType, raw),
	}
}

func (f *fixture) tenantCtx() context.Context {
	return appctx.SetTenantID(context.Background(), f.tenantID.String())
}

func TestSigner_Verify(t *testing.T) {
	signer := webhook.NewSigner(secret)
	tenantID := uuid.New()
	data := []byte(`{"campaign_id":"c1"}`)
	sig := signer.Sign(tenantID, "act_1", webhook.EventCampaignCreated, data)

	event := &webhook.Event{TenantID: tenantID, AccountID: "act_1", EventType: webhook.EventCampaignCreated, Data: data, Signature: sig}
	assert.True(t, signer.Verify(event))

	event.Signature = "sha256=" + sig
	assert.True(t, signer.Verify(event))

	event.Data = []byte(`{"campaign_id":"c2"}`)
	assert.False(t, signer.Verify(event))

	event.Data = data
	event.AccountID = "act_2"
	assert.False(t, signer.Verify(event))

	assert.False(t, webhook.NewSigner("other").Verify(&webhook.Event{TenantID: tenantID, AccountID: "act_1", EventType: webhook.EventCampaignCreated, Data: data, Signature: sig}))
	assert.False(t, webhook.NewSigner("").Verify(&webhook.Event{TenantID: tenantID, Signature: ""}))
}

func TestSigner_FieldBoundariesAreSigned(t *testing.T) {
	signer := webhook.NewSigner(secret)
	tenantID := uuid.New()
	data := []byte(`{}`)

	sig := signer.Sign(tenantID, "sc-domain:example.com", "CAMPAIGN_UPDATED", data)
	shifted := &webhook.Event{TenantID: tenantID, AccountID: "sc-domain:example", EventType: "com.CAMPAIGN_UPDATED", Data: data, Signature: sig}

	assert.False(t, signer.Verify(shifted))
	assert.NotEqual(t, sig, signer.Sign(tenantID, "a", "b.c", data))
	assert.NotEqual(t, signer.Sign(tenantID, "a.b", "c", data), signer.Sign(tenantID, "a", "b.c", data))
}

func TestHandle_InvalidSignatureWritesNothing(t *testing.T) {
	f := newFixture()
	event := f.event(webhook.EventCampaignCreated, map[string]any{"campaign_id": "c1"})
	event.Signature = "sha256=deadbeef"

	_, err := f.handler.Handle(context.Background(), models.PlatformMeta, event)

	assert.ErrorIs(t, err, models.ErrInvalidSignature)
	assert.Zero(t, f.campaigns.Mutations)
	assert.Empty(t, f.logs.WebhookLogs)
	assert.Empty(t, f.events.Events)
}

func TestHandle_CampaignCreated(t *testing.T) {
	f := newFixture()
	event := f.event(webhook.EventCampaignCreated, map[string]any{"campaign_id": "c1", "name": "Spring", "budget": 150.5})

	result, err := f.handler.Handle(context.Background(), models.PlatformMeta, event)
	require.NoError(t, err)

	assert.Equal(t, models.WebhookLogProcessed, result.Status)
	assert.Equal(t, "c1", result.CampaignID)

	campaign, err := f.campaigns.Get(f.tenantCtx(), models.PlatformMeta, "act_1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Spring", campaign.Name)
	assert.Equal(t, models.CampaignStatusActive, campaign.Status)
	require.NotNil(t, campaign.Budget)
	assert.InDelta(t, 150.5, *campaign.Budget, 0.001)

	require.Len(t, f.logs.WebhookLogs, 1)
	assert.Equal(t, models.WebhookLogProcessed, f.logs.WebhookLogs[0].Status)

	integration, _ := f.integrations.Find(f.tenantID, models.PlatformMeta, "act_1")
	assert.Equal(t, models.SyncStatusPending, integration.SyncStatus)
	require.NotNil(t, integration.LastSyncAttemptAt)
	assert.True(t, now.Equal(*integration.LastSyncAttemptAt))

	assert.Equal(t, []kafka.EventType{kafka.EventWebhookProcessed}, f.events.Types())
}

func TestHandle_CampaignUpdatedPatchesFields(t *testing.T) {
	f := newFixture()
	_, err := f.handler.Handle(context.Background(), models.PlatformMeta,
		f.event(webhook.EventCampaignCreated, map[string]any{"campaign_id": "c1", "name": "Spring", "objective": "REACH"}))
	require.NoError(t, err)

	_, err = f.handler.Handle(context.Background(), models.PlatformMeta,
		f.event(webhook.EventCampaignUpdated, map[string]any{"campaign_id": "c1", "status": "PAUSED"}))
	require.NoError(t, err)

	campaign, err := f.campaigns.Get(f.tenantCtx(), models.PlatformMeta, "act_1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Spring", campaign.Name)
	assert.Equal(t, "REACH", campaign.Objective)
	assert.Equal(t, models.CampaignStatusPaused, campaign.Status)
}

func TestHandle_CampaignRemoved(t *testing.T) {
	f := newFixture()
	_, err := f.handler.Handle(context.Background(), models.PlatformMeta,
		f.event(webhook.EventCampaignCreated, map[string]any{"campaign_id": "c1"}))
	require.NoError(t, err)

	result, err := f.handler.Handle(context.Background(), models.PlatformMeta,
		f.event(webhook.EventCampaignRemoved, map[string]any{"campaign_id": "c1"}))
	require.NoError(t, err)
	assert.Equal(t, models.WebhookLogProcessed, result.Status)

	campaign, err := f.campaigns.Get(f.tenantCtx(), models.PlatformMeta, "act_1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusRemoved, campaign.Status)
}

func TestHandle_UnknownEventIsLoggedNoOp(t *testing.T) {
	f := newFixture()

	result, err := f.handler.Handle(context.Background(), models.PlatformMeta,
		f.event("AD_CREATIVE_REJECTED", map[string]any{"creative_id": "cr1"}))
	require.NoError(t, err)

	assert.Equal(t, models.WebhookLogIgnored, result.Status)
	require.Len(t, f.logs.WebhookLogs, 1)
	assert.Equal(t, models.WebhookLogIgnored, f.logs.WebhookLogs[0].Status)
	assert.Equal(t, "AD_CREATIVE_REJECTED", f.logs.WebhookLogs[0].EventType)
	assert.Zero(t, f.campaigns.Mutations)

	integration, _ := f.integrations.Find(f.tenantID, models.PlatformMeta, "act_1")
	assert.Equal(t, models.SyncStatusSynced, integration.SyncStatus)
}

func TestHandle_RemovedUnknownCampaign(t *testing.T) {
	f := newFixture()

	result, err := f.handler.Handle(context.Background(), models.PlatformMeta,
		f.event(webhook.EventCampaignRemoved, map[string]any{"campaign_id": "missing"}))

	assert.ErrorIs(t, err, models.ErrCampaignNotFound)
	require.NotNil(t, result)
	assert.Equal(t, models.WebhookLogFailed, result.Status)
	assert.Zero(t, f.campaigns.Mutations)

	require.Len(t, f.logs.WebhookLogs, 1)
	assert.Equal(t, models.WebhookLogFailed, f.logs.WebhookLogs[0].Status)
	require.NotNil(t, f.logs.WebhookLogs[0].ErrorMessage)
	assert.Contains(t, *f.logs.WebhookLogs[0].ErrorMessage, "campaign not found")

	integration, _ := f.integrations.Find(f.tenantID, models.PlatformMeta, "act_1")
	assert.Equal(t, models.SyncStatusSynced, integration.SyncStatus)
	assert.Equal(t, []kafka.EventType{kafka.EventWebhookFailed}, f.events.Types())
}

func TestHandle_UpdatedUnknownCampaign(t *testing.T) {
	f := newFixture()

	_, err := f.handler.Handle(context.Background(), models.PlatformMeta,
		f.event(webhook.EventCampaignUpdated, map[string]any{"campaign_id": "missing", "name": "x"}))

	assert.ErrorIs(t, err, models.ErrCampaignNotFound)
	assert.Zero(t, f.campaigns.Mutations)
}

func TestHandle_MissingCampaignID(t *testing.T) {
	f := newFixture()

	_, err := f.handler.Handle(context.Background(), models.PlatformMeta,
		f.event(webhook.EventCampaignCreated, map[string]any{"name": "orphan"}))

	assert.ErrorIs(t, err, models.ErrInvalidPayload)
	assert.Zero(t, f.campaigns.Mutations)
	require.Len(t, f.logs.WebhookLogs, 1)
}

func TestHandle_LogFailureDoesNotChangeResult(t *testing.T) {
	f := newFixture()
	f.logs.Err = assert.AnError
	f.events.Err = assert.AnError

	result, err := f.handler.Handle(context.Background(), models.PlatformMeta,
		f.event(webhook.EventCampaignCreated, map[string]any{"campaign_id": "c1"}))

	require.NoError(t, err)
	assert.Equal(t, models.WebhookLogProcessed, result.Status)
	assert.Equal(t, 1, f.campaigns.Mutations)
}
