package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/webhook"
)

// HeaderSignature carries the event signature when it is not in the body
const HeaderSignature = "X-Clover-Signature"

// WebhookService applies webhook events
type WebhookService interface {
	Handle(ctx context.Context, platform models.Platform, event *webhook.Event) (*webhook.Result, error)
}

// WebhookHandler receives platform webhooks
type WebhookHandler struct {
	service WebhookService
	logger  ectologger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(service WebhookService, logger ectologger.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: logger}
}

// RegisterRoutes registers the webhook routes
func (h *WebhookHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/webhooks/:platform", h.Receive)
}

// Receive handles POST /webhooks/:platform
func (h *WebhookHandler) Receive(c echo.Context) error {
	platform, err := ParsePlatform(c)
	if err != nil {
		return err
	}
	var event webhook.Event
	if err := bindAndValidate(c, &event); err != nil {
		return err
	}
	if event.Signature == "" {
		event.Signature = c.Request().Header.Get(HeaderSignature)
	}
	withTenant(c, event.TenantID)

	result, err := h.service.Handle(c.Request().Context(), platform, &event)
	if err != nil {
		return err
	}

	message := "Webhook processed"
	if result.Status == models.WebhookLogIgnored {
		message = "Webhook event ignored"
	}
	return Success(c, message, map[string]any{
		"event_type":  result.EventType,
		"campaign_id": result.CampaignID,
		"status":      result.Status,
	})
}
