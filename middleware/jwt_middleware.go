// middleware/jwt_middleware.go
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/utils"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	// context keys set by the JWT middleware
	ContextUserID   = "userId"
	ContextUserType = "userType"
	ContextEmail    = "email"
	ContextUser     = "currentUser"
)

var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrTokenRevoked   = errors.New("token has been invalidated")
	ErrWrongTokenType = errors.New("wrong token type")
	ErrAccountBlocked = models.ErrAccountDisabled
)

// JwtCustomClaims for JWT token
type JwtCustomClaims struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	UserType  string `json:"userType"`
	TokenType string `json:"tokenType"`
	jwt.StandardClaims
}

// Valid requires an expiry and checks it.
func (c JwtCustomClaims) Valid() error {
	now := time.Now().Unix()
	if c.ExpiresAt == 0 || now > c.ExpiresAt {
		return errors.New("token is expired")
	}
	if c.NotBefore > 0 && now < c.NotBefore {
		return errors.New("token used before valid")
	}
	return nil
}

// UserLookup is the part of the user store the middleware needs.
type UserLookup interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	TouchActivity(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

// JWTManager issues and checks HS256 tokens.
type JWTManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	blacklist  *utils.TokenBlacklist
	users      UserLookup
	logger     *zap.Logger
}

func NewJWTManager(secret string, accessTTL, refreshTTL time.Duration, blacklist *utils.TokenBlacklist, users UserLookup, logger *zap.Logger) *JWTManager {
	return &JWTManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		blacklist:  blacklist,
		users:      users,
		logger:     logger,
	}
}

func (m *JWTManager) sign(user *models.User, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &JwtCustomClaims{
		UserID:    user.ID.Hex(),
		Email:     user.Email,
		UserType:  user.UserType,
		TokenType: tokenType,
		StandardClaims: jwt.StandardClaims{
			Id:        primitive.NewObjectID().Hex(),
			Subject:   user.ID.Hex(),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// GenerateTokens returns a new access and refresh token for user.
func (m *JWTManager) GenerateTokens(user *models.User) (string, string, error) {
	access, err := m.sign(user, TokenTypeAccess, m.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err := m.sign(user, TokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (m *JWTManager) parse(raw string) (*jwt.Token, *JwtCustomClaims, error) {
	claims := &JwtCustomClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, nil, ErrInvalidToken
	}
	return token, claims, nil
}

// Parse validates signature, expiry, token type and the blacklist.
func (m *JWTManager) Parse(ctx context.Context, raw, tokenType string) (*jwt.Token, *JwtCustomClaims, error) {
	token, claims, err := m.parse(raw)
	if err != nil {
		return nil, nil, err
	}
	if claims.TokenType != tokenType {
		return nil, nil, ErrWrongTokenType
	}
	if m.blacklist != nil && m.blacklist.Contains(ctx, raw) {
		return nil, nil, ErrTokenRevoked
	}
	return token, claims, nil
}

// Authenticate resolves a token to an enabled user.
func (m *JWTManager) Authenticate(ctx context.Context, raw, tokenType string) (*models.User, *JwtCustomClaims, *jwt.Token, error) {
	token, claims, err := m.Parse(ctx, raw, tokenType)
	if err != nil {
		return nil, nil, nil, err
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return nil, nil, nil, ErrInvalidToken
	}
	user, err := m.users.FindByID(ctx, id)
	if err != nil {
		return nil, nil, nil, ErrInvalidToken
	}
	if user.IsDisabled() {
		return nil, nil, nil, ErrAccountBlocked
	}
	return user, claims, token, nil
}

// ValidateAccessToken is used by the websocket handler.
func (m *JWTManager) ValidateAccessToken(ctx context.Context, raw string) (primitive.ObjectID, error) {
	user, _, _, err := m.Authenticate(ctx, raw, TokenTypeAccess)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return user.ID, nil
}

// ValidateRefreshToken resolves a refresh token to its user.
func (m *JWTManager) ValidateRefreshToken(ctx context.Context, raw string) (primitive.ObjectID, error) {
	user, _, _, err := m.Authenticate(ctx, raw, TokenTypeRefresh)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return user.ID, nil
}

// Revoke blacklists a token until it would have expired anyway.
func (m *JWTManager) Revoke(ctx context.Context, raw string) error {
	_, claims, err := m.parse(raw)
	if err != nil {
		return err
	}
	if m.blacklist != nil {
		m.blacklist.Add(ctx, raw, time.Unix(claims.ExpiresAt, 0))
	}
	return nil
}

// JWTMiddleware returns the echo JWT middleware backed by the manager.
func (m *JWTManager) JWTMiddleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(middleware.JWTConfig{
		ParseTokenFunc: func(auth string, c echo.Context) (interface{}, error) {
			user, claims, token, err := m.Authenticate(c.Request().Context(), auth, TokenTypeAccess)
			if err != nil {
				return nil, err
			}
			c.Set(ContextUser, user)
			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextUserType, claims.UserType)
			c.Set(ContextEmail, claims.Email)
			return token, nil
		},
		ErrorHandlerWithContext: func(err error, c echo.Context) error {
			msg := "Please provide valid credentials"
			switch {
			case errors.Is(err, ErrTokenRevoked):
				msg = "Token has been invalidated"
			case errors.Is(err, ErrAccountBlocked):
				msg = "User account is disabled"
			case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrWrongTokenType):
				msg = "Invalid or expired token"
			}
			m.logger.Debug("jwt rejected", zap.String("path", c.Request().URL.Path), zap.Error(err))
			return echo.NewHTTPError(echo.ErrUnauthorized.Code, msg)
		},
	})
}

// BearerToken returns the raw token of the Authorization header.
func BearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}

// GetUserFromToken extracts the claims stored by the JWT middleware.
func GetUserFromToken(c echo.Context) *JwtCustomClaims {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return nil
	}
	claims, ok := token.Claims.(*JwtCustomClaims)
	if !ok {
		return nil
	}
	return claims
}

// CurrentUser returns the user loaded by the JWT middleware.
func CurrentUser(c echo.Context) *models.User {
	user, _ := c.Get(ContextUser).(*models.User)
	return user
}

// ExtractUserID returns the authenticated user's id.
func ExtractUserID(c echo.Context) (primitive.ObjectID, error) {
	if user := CurrentUser(c); user != nil {
		return user.ID, nil
	}
	if id, ok := c.Get(ContextUserID).(string); ok && id != "" {
		return primitive.ObjectIDFromHex(id)
	}
	return primitive.NilObjectID, errors.New("invalid token")
}

// ExtractUserType safely extracts the user type from the context
func ExtractUserType(c echo.Context) string {
	if userType, ok := c.Get(ContextUserType).(string); ok && userType != "" {
		return userType
	}
	if claims := GetUserFromToken(c); claims != nil {
		return claims.UserType
	}
	return ""
}

// ActivityTracker middleware updates the user's last activity timestamp.
func ActivityTracker(users UserLookup, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := ExtractUserID(c)
			if err != nil {
				return next(c)
			}

			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := users.TouchActivity(ctx, userID, time.Now()); err != nil {
					logger.Debug("activity update failed", zap.String("userId", userID.Hex()), zap.Error(err))
				}
			}()

			return next(c)
		}
	}
}
