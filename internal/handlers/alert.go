package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/alerts"
)

// AlertService toggles alerts
type AlertService interface {
	Trigger(ctx context.Context, req alerts.TriggerRequest) (*alerts.TriggerResult, error)
}

// AlertHandler handles alert trigger requests from automation tooling
type AlertHandler struct {
	service AlertService
	logger  ectologger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(service AlertService, logger ectologger.Logger) *AlertHandler {
	return &AlertHandler{service: service, logger: logger}
}

// RegisterRoutes registers the alert routes
func (h *AlertHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/alerts/trigger", h.Trigger)
}

// Trigger handles POST /alerts/trigger
func (h *AlertHandler) Trigger(c echo.Context) error {
	var req alerts.TriggerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.service.Trigger(c.Request().Context(), req)
	if err != nil {
		return err
	}

	fields := map[string]any{
		"alert_id":          result.Alert.ID,
		"alert_type":        result.Alert.AlertType,
		"is_active":         result.Alert.IsActive,
		"notification_sent": result.NotificationSent,
	}
	if result.NotificationError != "" {
		fields["notification_error"] = result.NotificationError
	}
	return Success(c, "Alert "+string(req.Action)+"d", fields)
}
