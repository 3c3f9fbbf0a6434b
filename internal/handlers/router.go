package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/middleware"
)

// Handlers groups everything the router mounts. Admin handlers are optional.
type Handlers struct {
	OAuth        *OAuthHandler
	Sync         *SyncHandler
	Webhook      *WebhookHandler
	Alert        *AlertHandler
	Integrations *IntegrationHandler
	DLQ          *DLQHandler
	Health       *health.Checker
}

// RouterConfig controls the middleware chain
type RouterConfig struct {
	ServiceName string
	// Verifier guards the admin routes. Nil leaves them on the tenant header.
	Verifier middleware.TokenVerifier
}

// NewRouter builds the echo instance with the middleware chain and all routes
func NewRouter(cfg RouterConfig, h Handlers, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Pre(middleware.CORS())
	e.Use(otelecho.Middleware(cfg.ServiceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if h.Health != nil {
		h.Health.RegisterRoutes(e)
	}

	api := e.Group("/api/v1")
	h.OAuth.RegisterRoutes(api)
	h.Sync.RegisterRoutes(api)
	h.Webhook.RegisterRoutes(api)
	h.Alert.RegisterRoutes(api)

	admin := api.Group("")
	if cfg.Verifier != nil {
		admin.Use(middleware.Authentication(logger, cfg.Verifier))
	}
	if h.Integrations != nil {
		h.Integrations.RegisterRoutes(admin)
	}
	if h.DLQ != nil {
		h.DLQ.RegisterRoutes(admin)
	}

	return e
}
