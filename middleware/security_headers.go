// middleware/security_headers.go
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/travel_booking_backend/config"
)

// SecurityConfig shapes the headers added to every response.
type SecurityConfig struct {
	// HSTSMaxAge of zero leaves Strict-Transport-Security out.
	HSTSMaxAge time.Duration
	// ConnectOrigins may open websocket connections to the API.
	ConnectOrigins []string
}

// SecurityHeaders builds the headers from the server settings.
func SecurityHeaders(s *config.Settings) echo.MiddlewareFunc {
	return SecurityHeadersWithConfig(SecurityConfig{
		HSTSMaxAge:     s.HSTSMaxAge,
		ConnectOrigins: s.CORSAllowedOrigins,
	})
}

func SecurityHeadersWithConfig(cfg SecurityConfig) echo.MiddlewareFunc {
	csp := buildCSP(cfg)
	hsts := ""
	if cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.FormatInt(int64(cfg.HSTSMaxAge/time.Second), 10) + "; includeSubDomains"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Content-Security-Policy", csp)
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			// API responses are private; the QR code image handler overrides it.
			if strings.HasPrefix(c.Request().URL.Path, "/api/") {
				h.Set("Cache-Control", "no-store")
			}

			h.Del("Server")
			h.Del("X-Powered-By")

			return next(c)
		}
	}
}

// buildCSP locks the API down to JSON and images; only websocket
// connections from the allowed origins are opened to it.
func buildCSP(cfg SecurityConfig) string {
	csp := []string{
		"default-src 'none'",
		"img-src 'self' data:",
		"frame-ancestors 'none'",
	}
	connect := "connect-src 'self'"
	for _, o := range cfg.ConnectOrigins {
		if o == "*" {
			continue
		}
		connect += " " + o
	}
	return strings.Join(append(csp, connect), "; ")
}
