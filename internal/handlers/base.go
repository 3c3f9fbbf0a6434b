// Package handlers exposes the service operations over HTTP.
package handlers

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
)

// ParseUUID parses a UUID from a path parameter
func ParseUUID(c echo.Context, param string) (uuid.UUID, error) {
	idStr := c.Param(param)
	if idStr == "" {
		return uuid.Nil, httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a valid UUID", param)
	}
	return id, nil
}

// ParsePlatform reads the :platform path parameter
func ParsePlatform(c echo.Context) (models.Platform, error) {
	return models.ParsePlatform(c.Param("platform"))
}

// GetTenantID extracts the tenant ID from context
func GetTenantID(c echo.Context) (uuid.UUID, error) {
	tenantIDStr := appctx.GetTenantID(c.Request().Context())
	if tenantIDStr == "" {
		return uuid.Nil, httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return uuid.Nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid authentication token")
	}
	return tenantID, nil
}

// withTenant scopes the request context to tenantID for the rest of the request
func withTenant(c echo.Context, tenantID uuid.UUID) {
	ctx := appctx.SetTenantID(c.Request().Context(), tenantID.String())
	c.SetRequest(c.Request().WithContext(ctx))
}

// bindAndValidate decodes the JSON body into req and runs the struct validation tags
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	return nil
}

// Success writes {success: true, message, ...fields, timestamp}
func Success(c echo.Context, message string, fields map[string]any) error {
	body := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	body["message"] = message
	body["timestamp"] = time.Now().UTC()
	return c.JSON(http.StatusOK, body)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}
