package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
	"github.com/HSouheill/travel_booking_backend/utils"
)

const (
	maxLoginAttempts = 5
	loginLockout     = 30 * time.Minute
)

// TokenIssuer creates and checks JWTs.
type TokenIssuer interface {
	GenerateTokens(user *models.User) (access, refresh string, err error)
	ValidateAccessToken(ctx context.Context, raw string) (primitive.ObjectID, error)
	ValidateRefreshToken(ctx context.Context, raw string) (primitive.ObjectID, error)
	Revoke(ctx context.Context, raw string) error
}

type loginAttempt struct {
	count       int
	lastAttempt time.Time
}

// loginGuard locks an identifier after too many failed logins.
type loginGuard struct {
	mu       sync.Mutex
	attempts map[string]loginAttempt
}

func newLoginGuard() *loginGuard {
	return &loginGuard{attempts: make(map[string]loginAttempt)}
}

func (g *loginGuard) blocked(id string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.attempts[id]
	return ok && a.count >= maxLoginAttempts && now.Sub(a.lastAttempt) < loginLockout
}

func (g *loginGuard) fail(id string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a := g.attempts[id]
	if now.Sub(a.lastAttempt) >= loginLockout {
		a.count = 0
	}
	g.attempts[id] = loginAttempt{count: a.count + 1, lastAttempt: now}
}

func (g *loginGuard) reset(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attempts, id)
}

func (g *loginGuard) cleanup(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, a := range g.attempts {
		if now.Sub(a.lastAttempt) > loginLockout {
			delete(g.attempts, id)
		}
	}
}

// AuthService signs users up and in.
type AuthService struct {
	users     UserStore
	referrals *ReferralService
	tokens    TokenIssuer
	remember  *utils.RememberMeStore
	attempts  *loginGuard
	logger    *zap.Logger
	now       func() time.Time
}

func NewAuthService(users UserStore, referrals *ReferralService, tokens TokenIssuer, remember *utils.RememberMeStore, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		referrals: referrals,
		tokens:    tokens,
		remember:  remember,
		attempts:  newLoginGuard(),
		logger:    logger,
		now:       time.Now,
	}
}

// RunCleanup forgets stale failed login attempts until ctx is done.
func (s *AuthService) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.attempts.cleanup(s.now())
		}
	}
}

func (s *AuthService) issue(user *models.User) (*models.AuthResult, error) {
	access, refresh, err := s.tokens.GenerateTokens(user)
	if err != nil {
		return nil, err
	}
	return &models.AuthResult{
		Token:        access,
		RefreshToken: refresh,
		User:         user.Public(),
	}, nil
}

// Signup creates a customer account, gives it a referral code and links
// the referrer when a code was supplied.
func (s *AuthService) Signup(ctx context.Context, req models.SignupRequest) (*models.AuthResult, error) {
	email, err := utils.SanitizeEmail(req.Email)
	if err != nil {
		return nil, newError(ErrValidation, "invalid email address")
	}
	phone := ""
	if req.Phone != "" {
		if phone, err = utils.SanitizePhone(req.Phone); err != nil {
			return nil, newError(ErrValidation, "invalid phone number")
		}
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, newError(ErrConflict, "user with this email already exists")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	if phone != "" {
		if _, err := s.users.FindByPhone(ctx, phone); err == nil {
			return nil, newError(ErrConflict, "user with this phone number already exists")
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
	}

	if req.ReferralCode != "" {
		if _, err := s.referrals.ValidateCode(ctx, req.ReferralCode); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, newError(ErrValidation, "invalid referral code")
			}
			return nil, err
		}
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	user := &models.User{
		ID:             primitive.NewObjectID(),
		Email:          email,
		Password:       hash,
		FullName:       utils.SanitizeInput(req.FullName),
		Phone:          phone,
		UserType:       models.UserTypeCustomer,
		Status:         models.AccountStatusActive,
		IsActive:       true,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, newError(ErrConflict, "user with this email already exists")
		}
		return nil, err
	}

	if _, err := s.referrals.EnsureCode(ctx, user.ID); err != nil {
		s.logger.Warn("failed to assign referral code at signup", zap.String("userId", user.ID.Hex()), zap.Error(err))
	}
	if req.ReferralCode != "" {
		if _, err := s.referrals.ApplyReferralCode(ctx, user.ID, req.ReferralCode); err != nil {
			s.logger.Warn("failed to link referrer at signup", zap.String("userId", user.ID.Hex()), zap.Error(err))
		}
	}

	created, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed up", zap.String("userId", created.ID.Hex()))
	return s.issue(created)
}

// Login checks credentials by email or phone.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, deviceInfo string) (*models.AuthResult, error) {
	var identifier string
	var user *models.User
	var err error

	switch {
	case req.Email != "":
		identifier, err = utils.SanitizeEmail(req.Email)
		if err != nil {
			return nil, newError(ErrValidation, "invalid email address")
		}
	case req.Phone != "":
		identifier, err = utils.SanitizePhone(req.Phone)
		if err != nil {
			return nil, newError(ErrValidation, "invalid phone number")
		}
	default:
		return nil, newError(ErrValidation, "email or phone is required")
	}

	now := s.now()
	if s.attempts.blocked(identifier, now) {
		return nil, newError(ErrTooManyAttempts, "Too many failed login attempts. Please try again later.")
	}

	if req.Email != "" {
		user, err = s.users.FindByEmail(ctx, identifier)
	} else {
		user, err = s.users.FindByPhone(ctx, identifier)
	}
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	if user == nil || !utils.CheckPassword(user.Password, req.Password) {
		s.attempts.fail(identifier, now)
		return nil, newError(ErrUnauthorized, "invalid credentials")
	}
	if user.IsDisabled() {
		return nil, newError(ErrForbidden, "this account has been disabled")
	}
	s.attempts.reset(identifier)

	if err := s.users.TouchActivity(ctx, user.ID, now); err != nil {
		s.logger.Debug("activity update failed", zap.Error(err))
	}
	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	if req.RememberMe {
		token, err := s.remember.Store(ctx, utils.RememberedCredentials{
			Email:      user.Email,
			Phone:      user.Phone,
			UserType:   user.UserType,
			UserID:     user.ID.Hex(),
			DeviceInfo: deviceInfo,
		})
		if err != nil {
			s.logger.Warn("remember me unavailable", zap.Error(err))
		} else {
			result.RememberMeToken = token
		}
	}
	return result, nil
}

// Logout invalidates the access token until it expires.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return newError(ErrValidation, "missing token")
	}
	if err := s.tokens.Revoke(ctx, accessToken); err != nil {
		return newError(ErrUnauthorized, "invalid token")
	}
	return nil
}

// Refresh trades a refresh token for a new token pair. The old refresh
// token is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.AuthResult, error) {
	userID, err := s.tokens.ValidateRefreshToken(ctx, refreshToken)
	if errors.Is(err, models.ErrAccountDisabled) {
		return nil, newError(ErrForbidden, "this account has been disabled")
	}
	if err != nil {
		return nil, newError(ErrUnauthorized, "invalid or expired refresh token")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, newError(ErrUnauthorized, "invalid or expired refresh token")
	}
	if user.IsDisabled() {
		return nil, newError(ErrForbidden, "this account has been disabled")
	}
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		s.logger.Warn("failed to revoke refresh token", zap.Error(err))
	}
	return s.issue(user)
}

// RememberMeLogin signs a user in with a remember-me token.
func (s *AuthService) RememberMeLogin(ctx context.Context, token string) (*models.AuthResult, error) {
	creds, err := s.remember.Retrieve(ctx, token)
	if err != nil {
		if errors.Is(err, utils.ErrRememberMeUnavailable) {
			return nil, newError(ErrUnavailable, "remember me is not available")
		}
		if errors.Is(err, utils.ErrRememberMeNotFound) {
			return nil, newError(ErrNotFound, "remember me token not found or expired")
		}
		return nil, err
	}
	id, err := primitive.ObjectIDFromHex(creds.UserID)
	if err != nil {
		return nil, newError(ErrNotFound, "remember me token not found or expired")
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "remember me token not found or expired")
	}
	if user.IsDisabled() {
		s.remember.Remove(ctx, token)
		return nil, newError(ErrForbidden, "this account has been disabled")
	}
	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	result.RememberMeToken = token
	return result, nil
}

// RememberMeRemove forgets a remember-me token.
func (s *AuthService) RememberMeRemove(ctx context.Context, token string) error {
	if err := s.remember.Remove(ctx, token); err != nil {
		if errors.Is(err, utils.ErrRememberMeUnavailable) {
			return newError(ErrUnavailable, "remember me is not available")
		}
		return err
	}
	return nil
}
