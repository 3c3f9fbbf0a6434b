// Package webhook applies signed platform events to campaign records.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/besteffort"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Campaign event types
const (
	EventCampaignCreated = "CAMPAIGN_CREATED"
	EventCampaignUpdated = "CAMPAIGN_UPDATED"
	EventCampaignRemoved = "CAMPAIGN_REMOVED"
)

// Event is an inbound platform notification
type Event struct {
	TenantID  uuid.UUID       `json:"tenant_id" validate:"required"`
	AccountID string          `json:"account_id" validate:"required"`
	EventType string          `json:"event_type" validate:"required"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// CampaignData is the data payload of the campaign events
type CampaignData struct {
	CampaignID string                 `json:"campaign_id"`
	Name       *string                `json:"name,omitempty"`
	Status     *models.CampaignStatus `json:"status,omitempty"`
	Budget     *float64               `json:"budget,omitempty"`
	Objective  *string                `json:"objective,omitempty"`
}

func (d CampaignData) patch() models.CampaignPatch {
	return models.CampaignPatch{Name: d.Name, Status: d.Status, Budget: d.Budget, Objective: d.Objective}
}

// Result describes how an event was handled
type Result struct {
	EventType  string                  `json:"event_type"`
	CampaignID string                  `json:"campaign_id,omitempty"`
	Status     models.WebhookLogStatus `json:"status"`
}

// Handler verifies and applies webhook events
type Handler struct {
	signer       *Signer
	campaigns    repositories.CampaignRepo
	integrations repositories.IntegrationRepo
	logs         repositories.LogRepo
	events       kafka.Publisher
	logger       ectologger.Logger
	now          func() time.Time
}

// NewHandler creates a webhook handler
func NewHandler(
	signer *Signer,
	campaigns repositories.CampaignRepo,
	integrations repositories.IntegrationRepo,
	logs repositories.LogRepo,
	events kafka.Publisher,
	logger ectologger.Logger,
) *Handler {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	return &Handler{
		signer:       signer,
		campaigns:    campaigns,
		integrations: integrations,
		logs:         logs,
		events:       events,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock replaces the time source
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// Handle verifies the event signature, applies it and records the outcome. An event that
// fails verification writes nothing.
func (h *Handler) Handle(ctx context.Context, platform models.Platform, event *Event) (*Result, error) {
	ctx = appctx.SetTenantID(ctx, event.TenantID.String())
	ctx = appctx.SetPlatform(ctx, string(platform))
	ctx = appctx.SetAccountID(ctx, event.AccountID)

	ctx, span := tracing.StartSpan(ctx, "Webhook.Handle",
		attribute.String("platform", string(platform)),
		attribute.String("event_type", event.EventType),
	)
	defer span.End()

	if !h.signer.Verify(event) {
		metrics.WebhookEventsTotal.WithLabelValues(string(platform), event.EventType, "rejected").Inc()
		tracing.Fail(span, models.ErrInvalidSignature, "signature mismatch")
		h.logger.WithContext(ctx).Warnf("Rejected %s webhook with invalid signature", platform)
		return nil, models.ErrInvalidSignature
	}

	result := &Result{EventType: event.EventType}
	campaignID, mutated, err := h.apply(ctx, platform, event)
	result.CampaignID = campaignID

	switch {
	case err != nil:
		result.Status = models.WebhookLogFailed
		tracing.Fail(span, err, "apply webhook event")
		h.logger.WithContext(ctx).WithError(err).Warnf("Failed to apply %s event", event.EventType)
	case mutated:
		result.Status = models.WebhookLogProcessed
	default:
		result.Status = models.WebhookLogIgnored
		h.logger.WithContext(ctx).Infof("Ignoring unhandled %s event type %s", platform, event.EventType)
	}

	h.appendLog(ctx, platform, event, result.Status, err)
	if mutated {
		besteffort.Run(ctx, h.logger, "mark_sync_pending", func(ctx context.Context) error {
			return h.integrations.MarkSyncPending(ctx, platform, event.AccountID, h.now().UTC())
		})
	}
	h.publish(ctx, platform, event, result, err)
	metrics.WebhookEventsTotal.WithLabelValues(string(platform), event.EventType, string(result.Status)).Inc()

	return result, err
}

// apply dispatches the event. Unknown event types are not mutations and not errors.
func (h *Handler) apply(ctx context.Context, platform models.Platform, event *Event) (string, bool, error) {
	switch event.EventType {
	case EventCampaignCreated, EventCampaignUpdated, EventCampaignRemoved:
	default:
		return "", false, nil
	}

	var data CampaignData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return "", false, fmt.Errorf("%w: %w", models.ErrInvalidPayload, err)
	}
	if data.CampaignID == "" {
		return "", false, fmt.Errorf("%w: campaign_id is required", models.ErrInvalidPayload)
	}

	var err error
	switch event.EventType {
	case EventCampaignCreated:
		err = h.campaigns.Upsert(ctx, h.newCampaign(platform, event.AccountID, data))
	case EventCampaignUpdated:
		err = h.campaigns.Update(ctx, platform, event.AccountID, data.CampaignID, data.patch())
	case EventCampaignRemoved:
		err = h.campaigns.SetStatus(ctx, platform, event.AccountID, data.CampaignID, models.CampaignStatusRemoved)
	}
	if err != nil {
		return data.CampaignID, false, err
	}
	return data.CampaignID, true, nil
}

func (h *Handler) newCampaign(platform models.Platform, accountID string, data CampaignData) *models.Campaign {
	campaign := &models.Campaign{
		Platform:   platform,
		AccountID:  accountID,
		CampaignID: data.CampaignID,
		Status:     models.CampaignStatusActive,
		Budget:     data.Budget,
	}
	if data.Name != nil {
		campaign.Name = *data.Name
	}
	if data.Status != nil {
		campaign.Status = *data.Status
	}
	if data.Objective != nil {
		campaign.Objective = *data.Objective
	}
	return campaign
}

func (h *Handler) appendLog(ctx context.Context, platform models.Platform, event *Event, status models.WebhookLogStatus, cause error) {
	besteffort.Run(ctx, h.logger, "append_webhook_log", func(ctx context.Context) error {
		entry := &models.WebhookLog{
			Platform:  platform,
			AccountID: event.AccountID,
			EventType: event.EventType,
			Payload:   database.NewJSONB(rawOrNull(event.Data)),
			Status:    status,
			CreatedAt: h.now().UTC(),
		}
		if cause != nil {
			msg := cause.Error()
			entry.ErrorMessage = &msg
		}
		return h.logs.AppendWebhookLog(ctx, entry)
	})
}

func (h *Handler) publish(ctx context.Context, platform models.Platform, event *Event, result *Result, cause error) {
	evt := &kafka.Event{
		Type:      kafka.EventWebhookProcessed,
		TenantID:  event.TenantID.String(),
		Platform:  string(platform),
		AccountID: event.AccountID,
		Status:    string(result.Status),
		Data: map[string]any{
			"event_type":  event.EventType,
			"campaign_id": result.CampaignID,
		},
	}
	if cause != nil {
		evt.Type = kafka.EventWebhookFailed
		evt.Error = cause.Error()
	}
	besteffort.Run(ctx, h.logger, "publish_webhook_event", func(ctx context.Context) error {
		return h.events.Publish(ctx, evt)
	})
}

func rawOrNull(data json.RawMessage) json.RawMessage {
	if len(data) == 0 || !json.Valid(data) {
		return json.RawMessage("null")
	}
	return data
}
