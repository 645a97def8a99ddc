package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking model
type Booking struct {
	ID                 primitive.ObjectID    `json:"id,omitempty" bson:"_id,omitempty"`
	UserID             primitive.ObjectID    `json:"userId" bson:"userId"`
	PackageID          primitive.ObjectID    `json:"packageId" bson:"packageId"`
	PackageTitle       string                `json:"packageTitle" bson:"packageTitle"`
	TravelDate         time.Time             `json:"travelDate" bson:"travelDate"`
	Travelers          int                   `json:"travelers" bson:"travelers"`
	ContactName        string                `json:"contactName" bson:"contactName"`
	ContactPhone       string                `json:"contactPhone" bson:"contactPhone"`
	ContactEmail       string                `json:"contactEmail,omitempty" bson:"contactEmail,omitempty"`
	Notes              string                `json:"notes,omitempty" bson:"notes,omitempty"`
	Currency           string                `json:"currency" bson:"currency"`
	Subtotal           Money                 `json:"subtotal" bson:"subtotal"`
	RewardDiscount     Money                 `json:"rewardDiscount" bson:"rewardDiscount"`
	TotalAmount        Money                 `json:"totalAmount" bson:"totalAmount"`
	AppliedRewards     []primitive.ObjectID  `json:"appliedRewards" bson:"appliedRewards"`
	Status             BookingStatus         `json:"status" bson:"status"`
	StatusHistory      []BookingStatusChange `json:"statusHistory" bson:"statusHistory"`
	RewardProcessed    bool                  `json:"rewardProcessed" bson:"rewardProcessed"`
	CompletedAt        *time.Time            `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	CancelledAt        *time.Time            `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	CancellationReason string                `json:"cancellationReason,omitempty" bson:"cancellationReason,omitempty"`
	CreatedAt          time.Time             `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt" bson:"updatedAt"`
}

// BookingStatusChange records one booking transition.
type BookingStatusChange struct {
	From BookingStatus       `json:"from,omitempty" bson:"from,omitempty"`
	To   BookingStatus       `json:"to" bson:"to"`
	At   time.Time           `json:"at" bson:"at"`
	By   *primitive.ObjectID `json:"by,omitempty" bson:"by,omitempty"`
	Note string              `json:"note,omitempty" bson:"note,omitempty"`
}

// BookingRequest model
type BookingRequest struct {
	PackageID        string    `json:"packageId" validate:"required,len=24,hexadecimal"`
	TravelDate       time.Time `json:"travelDate" validate:"required"`
	Travelers        int       `json:"travelers" validate:"required,min=1,max=100"`
	ContactName      string    `json:"contactName" validate:"required,min=2,max=100"`
	ContactPhone     string    `json:"contactPhone" validate:"required,min=6,max=20"`
	ContactEmail     string    `json:"contactEmail,omitempty" validate:"omitempty,email"`
	Notes            string    `json:"notes,omitempty" validate:"max=2000"`
	UseRewardBalance bool      `json:"useRewardBalance"`
}

// BookingStatusUpdateRequest model for updating booking status
type BookingStatusUpdateRequest struct {
	Status BookingStatus `json:"status" validate:"required,oneof=pending confirmed completed cancelled"`
	Note   string        `json:"note,omitempty" validate:"max=500"`
}

// CancelBookingRequest is the customer cancellation body.
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// BookingStatusTransition is a guarded status change; the store applies it
// only while the booking is still in From.
type BookingStatusTransition struct {
	From               BookingStatus
	To                 BookingStatus
	At                 time.Time
	By                 *primitive.ObjectID
	Note               string
	CancellationReason string
}

// BookingFilter narrows booking listings.
type BookingFilter struct {
	UserID     *primitive.ObjectID
	PackageID  *primitive.ObjectID
	Status     BookingStatus
	TravelFrom *time.Time
	TravelTo   *time.Time
}
