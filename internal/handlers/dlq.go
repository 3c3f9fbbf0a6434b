package handlers

import (
	"context"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/redis"
)

// DeadLetterStore is the tenant-scoped view of the dead letter queue
type DeadLetterStore interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID, count int64) ([]redis.DLQEntry, error)
	Get(ctx context.Context, tenantID uuid.UUID, messageID string) (*redis.DLQEntry, error)
	Delete(ctx context.Context, tenantID uuid.UUID, messageID string) error
	Retry(ctx context.Context, tenantID uuid.UUID, messageID string, jobs *redis.Streams, stream string) error
}

// DLQHandler handles dead letter queue API requests
type DLQHandler struct {
	dlq      DeadLetterStore
	streams  *redis.Streams
	jobQueue string
	logger   ectologger.Logger
}

// NewDLQHandler creates a new DLQ handler
func NewDLQHandler(dlq DeadLetterStore, streams *redis.Streams, jobQueue string, logger ectologger.Logger) *DLQHandler {
	return &DLQHandler{dlq: dlq, streams: streams, jobQueue: jobQueue, logger: logger}
}

// RegisterRoutes registers the DLQ routes
func (h *DLQHandler) RegisterRoutes(g *echo.Group) {
	dlq := g.Group("/dlq")
	dlq.GET("", h.List)
	dlq.GET("/:id", h.Get)
	dlq.POST("/:id/retry", h.Retry)
	dlq.DELETE("/:id", h.Delete)
}

// List handles GET /dlq
func (h *DLQHandler) List(c echo.Context) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	count := int64(100)
	if raw := c.QueryParam("count"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			count = parsed
		}
	}

	entries, err := h.dlq.ListByTenant(c.Request().Context(), tenantID, count)
	if err != nil {
		return err
	}
	return Success(c, "Dead letter entries listed", map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// Get handles GET /dlq/:id
func (h *DLQHandler) Get(c echo.Context) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	entry, err := h.dlq.Get(c.Request().Context(), tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return Success(c, "Dead letter entry found", map[string]any{"entry": entry})
}

// Retry handles POST /dlq/:id/retry
func (h *DLQHandler) Retry(c echo.Context) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.dlq.Retry(ctx, tenantID, c.Param("id"), h.streams, h.jobQueue); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Failed to retry DLQ entry")
		return err
	}
	return Success(c, "Job re-enqueued", map[string]any{"id": c.Param("id")})
}

// Delete handles DELETE /dlq/:id
func (h *DLQHandler) Delete(c echo.Context) error {
	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	if err := h.dlq.Delete(c.Request().Context(), tenantID, c.Param("id")); err != nil {
		return err
	}
	return Success(c, "Dead letter entry deleted", map[string]any{"id": c.Param("id")})
}
