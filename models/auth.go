// models/auth.go

package models

import "errors"

// ErrAccountDisabled is returned when a disabled account presents a valid
// token.
var ErrAccountDisabled = errors.New("user account is disabled")

type SignupRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	FullName     string `json:"fullName" validate:"required,min=2,max=100"`
	Phone        string `json:"phone,omitempty"`
	ReferralCode string `json:"referralCode,omitempty" validate:"omitempty,min=4,max=20"`
}

// AuthRequest models
type LoginRequest struct {
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type RememberMeRequest struct {
	Token string `json:"token" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type UserStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active disabled"`
}

// AuthResult is returned by signup, login and token refresh.
type AuthResult struct {
	Token           string `json:"token"`
	RefreshToken    string `json:"refreshToken"`
	RememberMeToken string `json:"rememberMeToken,omitempty"`
	User            User   `json:"user"`
}
