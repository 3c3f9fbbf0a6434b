package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
)

// IntegrationService lists and deactivates the tenant's integrations
type IntegrationService interface {
	List(ctx context.Context) ([]models.Integration, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Integration, error)
}

// IntegrationHandler handles integration admin requests
type IntegrationHandler struct {
	service IntegrationService
}

// NewIntegrationHandler creates a new integration handler
func NewIntegrationHandler(service IntegrationService) *IntegrationHandler {
	return &IntegrationHandler{service: service}
}

// RegisterRoutes registers the integration routes
func (h *IntegrationHandler) RegisterRoutes(g *echo.Group) {
	integrations := g.Group("/integrations")
	integrations.GET("", h.List)
	integrations.POST("/:id/deactivate", h.Deactivate)
}

// List handles GET /integrations
func (h *IntegrationHandler) List(c echo.Context) error {
	if _, err := GetTenantID(c); err != nil {
		return err
	}

	list, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}
	return Success(c, "Integrations listed", map[string]any{
		"integrations": list,
		"count":        len(list),
	})
}

// Deactivate handles POST /integrations/:id/deactivate
func (h *IntegrationHandler) Deactivate(c echo.Context) error {
	if _, err := GetTenantID(c); err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	integration, err := h.service.Deactivate(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return Success(c, "Integration deactivated", map[string]any{
		"integration": integration,
	})
}
