package handlers

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/integrations"
	"github.com/Ramsey-B/clover/pkg/models"
)

// OAuthService runs both halves of the authorization code flow
type OAuthService interface {
	Authorize(ctx context.Context, tenantID uuid.UUID, platform models.Platform, redirectURI string) (*integrations.AuthorizeResult, error)
	Exchange(ctx context.Context, req integrations.ExchangeRequest) (*integrations.ExchangeResult, error)
}

// OAuthHandler handles the OAuth routes
type OAuthHandler struct {
	service OAuthService
	logger  ectologger.Logger
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(service OAuthService, logger ectologger.Logger) *OAuthHandler {
	return &OAuthHandler{service: service, logger: logger}
}

// AuthorizeRequest asks for a consent URL
type AuthorizeRequest struct {
	TenantID    uuid.UUID `json:"tenant_id" validate:"required"`
	RedirectURI string    `json:"redirect_uri" validate:"required,url"`
}

// CallbackRequest carries what the provider redirected back with
type CallbackRequest struct {
	Code        string    `json:"code" validate:"required"`
	State       string    `json:"state" validate:"required"`
	TenantID    uuid.UUID `json:"tenant_id" validate:"required"`
	RedirectURI string    `json:"redirect_uri" validate:"required,url"`
}

// RegisterRoutes registers the OAuth routes
func (h *OAuthHandler) RegisterRoutes(g *echo.Group) {
	oauth := g.Group("/oauth/:platform")
	oauth.POST("/authorize", h.Authorize)
	oauth.POST("/callback", h.Callback)
}

// Authorize handles POST /oauth/:platform/authorize
func (h *OAuthHandler) Authorize(c echo.Context) error {
	platform, err := ParsePlatform(c)
	if err != nil {
		return err
	}
	var req AuthorizeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	withTenant(c, req.TenantID)

	result, err := h.service.Authorize(c.Request().Context(), req.TenantID, platform, req.RedirectURI)
	if err != nil {
		return err
	}
	return Success(c, "Authorization URL created", map[string]any{
		"platform":          platform,
		"authorization_url": result.URL,
		"state":             result.State,
	})
}

// Callback handles POST /oauth/:platform/callback
func (h *OAuthHandler) Callback(c echo.Context) error {
	platform, err := ParsePlatform(c)
	if err != nil {
		return err
	}
	var req CallbackRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	withTenant(c, req.TenantID)

	result, err := h.service.Exchange(c.Request().Context(), integrations.ExchangeRequest{
		Code:        req.Code,
		State:       req.State,
		TenantID:    req.TenantID,
		Platform:    platform,
		RedirectURI: req.RedirectURI,
	})
	if err != nil {
		return err
	}

	return Success(c, fmt.Sprintf("Connected %d of %d %s accounts", result.Connected(), len(result.Accounts), platform), map[string]any{
		"platform": platform,
		"accounts": result.Accounts,
	})
}
