package middleware

import (
	stdcontext "context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
)

const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// optional identity headers and where they land on the request context
var identityHeaders = map[string]func(stdcontext.Context, string) stdcontext.Context{
	HeaderTenantID: context.SetTenantID,
	HeaderUserID:   context.SetUserID,
}

// Context stamps every request with a request id (generated when the caller sent none and
// echoed in the response), the caller ip, and any identity headers.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := context.SetRemoteIP(context.SetRequestID(req.Context(), requestID), c.RealIP())
			for header, set := range identityHeaders {
				if value := req.Header.Get(header); value != "" {
					ctx = set(ctx, value)
				}
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
