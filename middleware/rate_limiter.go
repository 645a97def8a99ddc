// middleware/rate_limiter.go
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type endpointLimit struct {
	limit rate.Limit
	burst int
}

// RateLimiter throttles clients per IP and route. A client that exceeds its
// budget is blocked for blockDuration.
type RateLimiter struct {
	ips            map[string]*rate.Limiter
	blockedIPs     map[string]time.Time
	mu             sync.Mutex
	defaultLimit   endpointLimit
	blockDuration  time.Duration
	endpointLimits map[string]endpointLimit
	now            func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		ips:        make(map[string]*rate.Limiter),
		blockedIPs: make(map[string]time.Time),
		// 10 requests per second, bursts of 20
		defaultLimit:  endpointLimit{limit: rate.Every(100 * time.Millisecond), burst: 20},
		blockDuration: 5 * time.Minute,
		endpointLimits: map[string]endpointLimit{
			// brute force protection
			"/api/auth/login":         {limit: rate.Every(2 * time.Second), burst: 5},
			"/api/auth/signup":        {limit: rate.Every(500 * time.Millisecond), burst: 5},
			"/api/auth/refresh-token": {limit: rate.Every(time.Second), burst: 10},
		},
		now: time.Now,
	}
}

// SetLimit overrides the limit of one route path.
func (r *RateLimiter) SetLimit(path string, limit rate.Limit, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpointLimits[path] = endpointLimit{limit: limit, burst: burst}
}

// RunCleanup drops expired blocks every interval until ctx is done.
func (r *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for key, blockUntil := range r.blockedIPs {
		if now.After(blockUntil) {
			delete(r.blockedIPs, key)
			delete(r.ips, key)
		}
	}
}

func tooManyRequests(c echo.Context, message string, until time.Time) error {
	return c.JSON(http.StatusTooManyRequests, map[string]string{
		"message":    message,
		"retryAfter": until.Format(time.RFC3339),
	})
}

func (r *RateLimiter) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			key := c.RealIP() + "|" + path

			r.mu.Lock()
			now := r.now()
			if blockUntil, blocked := r.blockedIPs[key]; blocked {
				if now.Before(blockUntil) {
					r.mu.Unlock()
					return tooManyRequests(c, "IP address blocked due to too many requests", blockUntil)
				}
				delete(r.blockedIPs, key)
				delete(r.ips, key)
			}

			cfg, ok := r.endpointLimits[path]
			if !ok {
				cfg = r.defaultLimit
			}
			limiter, exists := r.ips[key]
			if !exists {
				limiter = rate.NewLimiter(cfg.limit, cfg.burst)
				r.ips[key] = limiter
			}
			if !limiter.AllowN(now, 1) {
				until := now.Add(r.blockDuration)
				r.blockedIPs[key] = until
				r.mu.Unlock()
				return tooManyRequests(c, "Too many requests", until)
			}
			r.mu.Unlock()

			return next(c)
		}
	}
}
