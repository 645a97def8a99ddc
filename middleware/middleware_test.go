package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories/memory"
	"github.com/HSouheill/travel_booking_backend/utils"
)

func newManager(t *testing.T) (*JWTManager, *memory.UserRepository, *models.User) {
	t.Helper()
	users := memory.NewDB().Users()
	user := &models.User{
		ID:       primitive.NewObjectID(),
		Email:    "jane@example.com",
		UserType: models.UserTypeCustomer,
		Status:   models.AccountStatusActive,
	}
	require.NoError(t, users.Create(context.Background(), user))
	logger := zap.NewNop()
	m := NewJWTManager("secret", time.Hour, 24*time.Hour, utils.NewTokenBlacklist(nil, logger), users, logger)
	return m, users, user
}

func protectedEcho(m *JWTManager, extra ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	mws := append([]echo.MiddlewareFunc{m.JWTMiddleware()}, extra...)
	e.GET("/me", func(c echo.Context) error {
		id, err := ExtractUserID(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, id.Hex()+"|"+ExtractUserType(c))
	}, mws...)
	return e
}

func get(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTMiddleware(t *testing.T) {
	m, users, user := newManager(t)
	e := protectedEcho(m)
	access, refresh, err := m.GenerateTokens(user)
	require.NoError(t, err)

	rec := get(e, "/me", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.ID.Hex()+"|customer", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(e, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(e, "/me", "not.a.jwt").Code)

	rec = get(e, "/me", refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid or expired token")

	require.NoError(t, users.SetStatus(context.Background(), user.ID, models.AccountStatusDisabled))
	rec = get(e, "/me", access)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")
}

func TestRevokedToken(t *testing.T) {
	m, _, user := newManager(t)
	e := protectedEcho(m)
	access, _, err := m.GenerateTokens(user)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(context.Background(), access))
	rec := get(e, "/me", access)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalidated")
}

func TestExpiredTokenRejected(t *testing.T) {
	m, _, user := newManager(t)
	m.accessTTL = -time.Minute
	access, _, err := m.GenerateTokens(user)
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(context.Background(), access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenSignedWithOtherSecret(t *testing.T) {
	m, users, user := newManager(t)
	other := NewJWTManager("other", time.Hour, time.Hour, nil, users, zap.NewNop())
	access, _, err := other.GenerateTokens(user)
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(context.Background(), access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireAdmin(t *testing.T) {
	m, users, user := newManager(t)
	e := protectedEcho(m, RequireAdmin())
	access, _, err := m.GenerateTokens(user)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(e, "/me", access).Code)

	admin := &models.User{ID: primitive.NewObjectID(), Email: "root@example.com", UserType: models.UserTypeAdmin}
	require.NoError(t, users.Create(context.Background(), admin))
	adminToken, _, err := m.GenerateTokens(admin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(e, "/me", adminToken).Code)
}

func TestRateLimiterBlocks(t *testing.T) {
	rl := NewRateLimiter()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	rl.SetLimit("/limited", rate.Every(time.Hour), 2)

	e := echo.New()
	e.Use(rl.RateLimit())
	e.GET("/limited", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/other", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, get(e, "/limited", "").Code)
	assert.Equal(t, http.StatusNoContent, get(e, "/limited", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(e, "/limited", "").Code)
	assert.Equal(t, http.StatusNoContent, get(e, "/other", "").Code, "limits are per route")

	clock = clock.Add(time.Minute)
	assert.Equal(t, http.StatusTooManyRequests, get(e, "/limited", "").Code, "still blocked")

	clock = clock.Add(5 * time.Minute)
	rl.cleanup()
	assert.Equal(t, http.StatusNoContent, get(e, "/limited", "").Code)
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders(&config.Settings{
		HSTSMaxAge:         24 * time.Hour,
		CORSAllowedOrigins: []string{"https://app.example.com"},
	}))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/api/qr", func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "public, max-age=60")
		return c.NoContent(http.StatusOK)
	})
	e.GET("/api/me", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := get(e, "/", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "max-age=86400; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
	csp := rec.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "default-src 'none'")
	assert.Contains(t, csp, "connect-src 'self' https://app.example.com")
	assert.Empty(t, rec.Header().Get("Cache-Control"))

	assert.Equal(t, "no-store", get(e, "/api/me", "").Header().Get("Cache-Control"))
	assert.Equal(t, "public, max-age=60", get(e, "/api/qr", "").Header().Get("Cache-Control"))

	dev := echo.New()
	dev.Use(SecurityHeaders(&config.Settings{}))
	dev.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	assert.Empty(t, get(dev, "/", "").Header().Get("Strict-Transport-Security"))
}
