package middleware

import (
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	ExposeHeaders    []string
	MaxAge           int
}

// defaultOrigins are the local development frontends.
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://localhost:8080",
}

// NewCORSConfig creates a CORS configuration allowing the development
// origins plus the configured ones.
func NewCORSConfig(allowedOrigins []string) *CORSConfig {
	origins := append([]string{}, defaultOrigins...)
	seen := map[string]bool{}
	for _, o := range origins {
		seen[o] = true
	}
	for _, o := range allowedOrigins {
		if o != "" && !seen[o] {
			origins = append(origins, o)
			seen[o] = true
		}
	}

	return &CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-Request-ID"},
		AllowCredentials: true,
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "X-Request-ID"},
		MaxAge:           86400, // 24 hours
	}
}

// GlobalCORS creates the global CORS middleware
func GlobalCORS(allowedOrigins []string) echo.MiddlewareFunc {
	return CORSWithConfig(NewCORSConfig(allowedOrigins))
}

// CORSWithConfig creates a CORS middleware with custom configuration
func CORSWithConfig(config *CORSConfig) echo.MiddlewareFunc {
	return echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins:     config.AllowOrigins,
		AllowMethods:     config.AllowMethods,
		AllowHeaders:     config.AllowHeaders,
		AllowCredentials: config.AllowCredentials,
		ExposeHeaders:    config.ExposeHeaders,
		MaxAge:           config.MaxAge,
	})
}
