// models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	UserTypeCustomer = "customer"
	UserTypeAdmin    = "admin"

	AccountStatusActive   = "active"
	AccountStatusDisabled = "disabled"
)

// User model
type User struct {
	ID             primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Email          string             `json:"email" bson:"email"`
	Password       string             `json:"password,omitempty" bson:"password"`
	FullName       string             `json:"fullName" bson:"fullName"`
	Phone          string             `json:"phone,omitempty" bson:"phone,omitempty"`
	UserType       string             `json:"userType" bson:"userType"`
	Status         string             `json:"status" bson:"status"`
	IsActive       bool               `json:"isActive" bson:"isActive"`
	LastActivityAt time.Time          `json:"lastActivityAt" bson:"lastActivityAt"`
	ProfilePic     string             `json:"profilePic,omitempty" bson:"profilePic,omitempty"`
	FCMToken       string             `json:"-" bson:"fcmToken,omitempty"`
	Referral       ReferralInfo       `json:"referral" bson:"referral"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// IsAdmin reports whether the user may use admin routes.
func (u *User) IsAdmin() bool {
	return u.UserType == UserTypeAdmin
}

// IsDisabled reports whether the account has been switched off by an admin.
func (u *User) IsDisabled() bool {
	return u.Status == AccountStatusDisabled
}

// Public strips secrets before the user is returned to clients.
func (u User) Public() User {
	u.Password = ""
	u.FCMToken = ""
	return u
}

// PublicWithoutLedger also drops the reward history, for listings.
func (u User) PublicWithoutLedger() User {
	u = u.Public()
	u.Referral.RewardHistory = nil
	return u
}

// ProfileUpdate holds the fields a user may change on their own profile.
type ProfileUpdate struct {
	FullName   *string `json:"fullName,omitempty" validate:"omitempty,min=2,max=100"`
	Phone      *string `json:"phone,omitempty"`
	ProfilePic *string `json:"profilePic,omitempty" validate:"omitempty,url"`
}

// UserFilter narrows admin user listings.
type UserFilter struct {
	Search   string
	UserType string
	Status   string
}

// Response model
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
