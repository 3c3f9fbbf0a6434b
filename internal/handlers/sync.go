package handlers

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/syncer"
)

// SyncHandler runs on-demand syncs
type SyncHandler struct {
	syncer syncer.Syncer
	logger ectologger.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(s syncer.Syncer, logger ectologger.Logger) *SyncHandler {
	return &SyncHandler{syncer: s, logger: logger}
}

// SyncRequestBody is the sync input. Dates are YYYY-MM-DD.
type SyncRequestBody struct {
	TenantID  uuid.UUID `json:"tenant_id" validate:"required"`
	AccountID string    `json:"account_id" validate:"required"`
	StartDate string    `json:"start_date,omitempty"`
	EndDate   string    `json:"end_date,omitempty"`
}

// RegisterRoutes registers the sync routes
func (h *SyncHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/sync/:platform", h.Sync)
}

func optionalDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return nil, BadRequest(fmt.Sprintf("invalid %s: expected YYYY-MM-DD", field))
	}
	return &t, nil
}

// Sync handles POST /sync/:platform
func (h *SyncHandler) Sync(c echo.Context) error {
	platform, err := ParsePlatform(c)
	if err != nil {
		return err
	}
	var body SyncRequestBody
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}

	start, err := optionalDate("start_date", body.StartDate)
	if err != nil {
		return err
	}
	end, err := optionalDate("end_date", body.EndDate)
	if err != nil {
		return err
	}
	withTenant(c, body.TenantID)

	result, err := h.syncer.Sync(c.Request().Context(), models.SyncRequest{
		TenantID:  body.TenantID,
		Platform:  platform,
		AccountID: body.AccountID,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return err
	}

	return Success(c, fmt.Sprintf("Synced %d rows", result.RowsSynced), map[string]any{
		"platform":    result.Platform,
		"account_id":  result.AccountID,
		"start_date":  result.StartDate,
		"end_date":    result.EndDate,
		"rows_synced": result.RowsSynced,
		"synced_at":   result.SyncedAt,
	})
}
