package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification types
const (
	NotificationBookingCreated    = "booking_created"
	NotificationBookingStatus     = "booking_status"
	NotificationReferralJoined    = "referral_joined"
	NotificationRewardPending     = "reward_pending"
	NotificationRewardCredited    = "reward_credited"
	NotificationRewardRejected    = "reward_rejected"
	NotificationRewardExpired     = "reward_expired"
	NotificationMilestoneAchieved = "milestone_achieved"
	NotificationTierUpgraded      = "tier_upgraded"
	NotificationPayoutPaid        = "payout_paid"
	NotificationPayoutRejected    = "payout_rejected"
)

// Notification model
type Notification struct {
	ID        primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"userId" bson:"userId"`
	Title     string             `json:"title" bson:"title"`
	Message   string             `json:"message" bson:"message"`
	Type      string             `json:"type" bson:"type"`
	Data      map[string]string  `json:"data,omitempty" bson:"data,omitempty"`
	IsRead    bool               `json:"isRead" bson:"isRead"`
	ReadAt    *time.Time         `json:"readAt,omitempty" bson:"readAt,omitempty"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// FCMTokenRequest registers a device for push notifications.
type FCMTokenRequest struct {
	FCMToken string `json:"fcmToken" validate:"required,min=10,max=4096"`
}
