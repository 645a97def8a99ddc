package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/middleware"
	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/services"
)

// AuthController handles signup, login and token endpoints
type AuthController struct {
	auth   *services.AuthService
	tokens *middleware.JWTManager
	logger *zap.Logger
}

// NewAuthController creates a new auth controller
func NewAuthController(auth *services.AuthService, tokens *middleware.JWTManager, logger *zap.Logger) *AuthController {
	return &AuthController{auth: auth, tokens: tokens, logger: logger}
}

// Signup registers a customer account
func (c *AuthController) Signup(ctx echo.Context) error {
	var req models.SignupRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	res, err := c.auth.Signup(ctx.Request().Context(), req)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusCreated, "User created successfully", res)
}

// Login signs a user in with email or phone
func (c *AuthController) Login(ctx echo.Context) error {
	var req models.LoginRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	res, err := c.auth.Login(ctx.Request().Context(), req, ctx.Request().UserAgent())
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Login successful", res)
}

// Logout revokes the presented access token
func (c *AuthController) Logout(ctx echo.Context) error {
	token := middleware.BearerToken(ctx)
	if token == "" {
		return respond(ctx, http.StatusUnauthorized, "Missing token", nil)
	}
	if err := c.auth.Logout(ctx.Request().Context(), token); err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Logged out successfully", nil)
}

// RefreshToken exchanges a refresh token for a new pair
func (c *AuthController) RefreshToken(ctx echo.Context) error {
	var req models.RefreshTokenRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	res, err := c.auth.Refresh(ctx.Request().Context(), req.RefreshToken)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Token refreshed successfully", res)
}

// ValidateToken reports whether the bearer token is still usable
func (c *AuthController) ValidateToken(ctx echo.Context) error {
	token := middleware.BearerToken(ctx)
	if token == "" {
		return respond(ctx, http.StatusUnauthorized, "Missing token", map[string]bool{"valid": false})
	}
	user, _, _, err := c.tokens.Authenticate(ctx.Request().Context(), token, middleware.TokenTypeAccess)
	if err != nil {
		return respond(ctx, http.StatusUnauthorized, err.Error(), map[string]bool{"valid": false})
	}
	return respond(ctx, http.StatusOK, "Token is valid", map[string]interface{}{
		"valid": true,
		"user":  user.PublicWithoutLedger(),
	})
}

// RememberMeGet signs a user in with a stored remember-me token
func (c *AuthController) RememberMeGet(ctx echo.Context) error {
	var req models.RememberMeRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	res, err := c.auth.RememberMeLogin(ctx.Request().Context(), req.Token)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Login successful", res)
}

// RememberMeRemove forgets a remember-me token
func (c *AuthController) RememberMeRemove(ctx echo.Context) error {
	var req models.RememberMeRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	if err := c.auth.RememberMeRemove(ctx.Request().Context(), req.Token); err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Remember me token removed", nil)
}
