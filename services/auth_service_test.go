package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/middleware"
	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/utils"
)

func newAuthService(env *testEnv) (*AuthService, *middleware.JWTManager) {
	logger := zap.NewNop()
	tokens := middleware.NewJWTManager("test-secret", time.Hour, 24*time.Hour,
		utils.NewTokenBlacklist(nil, logger), env.stores.Users, logger)
	auth := NewAuthService(env.stores.Users, env.referrals, tokens, utils.NewRememberMeStore(nil, "remember-secret"), logger)
	auth.now = func() time.Time { return env.clock }
	return auth, tokens
}

func signup(email, phone, code string) models.SignupRequest {
	return models.SignupRequest{
		Email:        email,
		Password:     "correct-horse-battery",
		FullName:     "Jane Traveler",
		Phone:        phone,
		ReferralCode: code,
	}
}

func TestSignup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	auth, tokens := newAuthService(env)
	alice := env.user(t, "alice")

	res, err := auth.Signup(ctx, signup(" Jane@Example.com ", "+1 555 010 2000", alice.Referral.Code))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "jane@example.com", res.User.Email)
	assert.Empty(t, res.User.Password)
	assert.True(t, utils.IsReferralCodeFormat(res.User.Referral.Code))
	require.NotNil(t, res.User.Referral.ReferredBy)
	assert.Equal(t, alice.ID, *res.User.Referral.ReferredBy)

	id, err := tokens.ValidateAccessToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, id)

	_, err = auth.Signup(ctx, signup("jane@example.com", "", ""))
	assert.True(t, errors.Is(err, ErrConflict), "duplicate email")

	_, err = auth.Signup(ctx, signup("other@example.com", "+15550102000", ""))
	assert.True(t, errors.Is(err, ErrConflict), "duplicate phone")

	_, err = auth.Signup(ctx, signup("third@example.com", "", "USR-ZZZZZZ"))
	assert.True(t, errors.Is(err, ErrValidation))
	_, err = env.stores.Users.FindByEmail(ctx, "third@example.com")
	assert.Error(t, err, "no account is created for a bad referral code")
}

func TestLoginAndLockout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	auth, _ := newAuthService(env)
	_, err := auth.Signup(ctx, signup("jane@example.com", "+15550102000", ""))
	require.NoError(t, err)

	res, err := auth.Login(ctx, models.LoginRequest{Phone: "+1 555 010 2000", Password: "correct-horse-battery", RememberMe: true}, "test")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Empty(t, res.RememberMeToken, "no redis, no remember me")

	for i := 0; i < maxLoginAttempts; i++ {
		_, err = auth.Login(ctx, models.LoginRequest{Email: "jane@example.com", Password: "wrong"}, "")
		assert.True(t, errors.Is(err, ErrUnauthorized))
	}
	_, err = auth.Login(ctx, models.LoginRequest{Email: "jane@example.com", Password: "correct-horse-battery"}, "")
	assert.True(t, errors.Is(err, ErrTooManyAttempts))

	env.advance(loginLockout + time.Second)
	_, err = auth.Login(ctx, models.LoginRequest{Email: "jane@example.com", Password: "correct-horse-battery"}, "")
	assert.NoError(t, err)

	_, err = auth.Login(ctx, models.LoginRequest{Password: "x"}, "")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestLoginDisabledAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	auth, _ := newAuthService(env)
	res, err := auth.Signup(ctx, signup("jane@example.com", "", ""))
	require.NoError(t, err)
	require.NoError(t, env.stores.Users.SetStatus(ctx, res.User.ID, models.AccountStatusDisabled))

	_, err = auth.Login(ctx, models.LoginRequest{Email: "jane@example.com", Password: "correct-horse-battery"}, "")
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = auth.Refresh(ctx, res.RefreshToken)
	assert.True(t, errors.Is(err, ErrForbidden), "got %v", err)
}

func TestLogoutAndRefresh(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	auth, tokens := newAuthService(env)
	res, err := auth.Signup(ctx, signup("jane@example.com", "", ""))
	require.NoError(t, err)

	_, err = auth.Refresh(ctx, res.Token)
	assert.True(t, errors.Is(err, ErrUnauthorized), "access token is not a refresh token")

	next, err := auth.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.RefreshToken, next.RefreshToken)

	_, err = auth.Refresh(ctx, res.RefreshToken)
	assert.True(t, errors.Is(err, ErrUnauthorized), "refresh tokens are single use")

	require.NoError(t, auth.Logout(ctx, next.Token))
	_, err = tokens.ValidateAccessToken(ctx, next.Token)
	assert.ErrorIs(t, err, middleware.ErrTokenRevoked)

	assert.True(t, errors.Is(auth.Logout(ctx, "garbage"), ErrUnauthorized))
}

func TestRememberMeWithoutRedis(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	auth, _ := newAuthService(env)

	_, err := auth.RememberMeLogin(ctx, "token")
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.Is(auth.RememberMeRemove(ctx, "token"), ErrUnavailable))
}
