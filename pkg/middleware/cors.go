package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	corsAllowMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsAllowHeaders = strings.Join([]string{
		echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization,
		echo.HeaderXRequestID, HeaderTenantID, HeaderUserID,
	}, ", ")
)

// CORS allows any origin. Preflight requests are answered with an empty 200 before routing,
// so every path accepts OPTIONS. Register with Echo#Pre.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Response().Header()
			header.Set(echo.HeaderAccessControlAllowOrigin, "*")
			header.Add(echo.HeaderVary, echo.HeaderOrigin)

			if c.Request().Method != http.MethodOptions {
				return next(c)
			}

			header.Set(echo.HeaderAccessControlAllowMethods, corsAllowMethods)
			header.Set(echo.HeaderAccessControlAllowHeaders, corsAllowHeaders)
			header.Set(echo.HeaderAccessControlMaxAge, "86400")
			return c.NoContent(http.StatusOK)
		}
	}
}
