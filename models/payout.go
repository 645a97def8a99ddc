package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PayoutStatus is the state of a cash-out request.
type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutPaid     PayoutStatus = "paid"
	PayoutRejected PayoutStatus = "rejected"
)

// PayoutRequest asks an admin to pay out credited referral rewards.
type PayoutRequest struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UserID          primitive.ObjectID   `bson:"userId" json:"userId"`
	Amount          Money                `bson:"amount" json:"amount"`
	PaidAmount      Money                `bson:"paidAmount" json:"paidAmount"`
	Method          string               `bson:"method" json:"method"`
	AccountDetails  string               `bson:"accountDetails" json:"accountDetails"`
	Status          PayoutStatus         `bson:"status" json:"status"`
	RewardIDs       []primitive.ObjectID `bson:"rewardIds" json:"rewardIds"`
	Reference       string               `bson:"reference,omitempty" json:"reference,omitempty"`
	AdminID         *primitive.ObjectID  `bson:"adminId,omitempty" json:"adminId,omitempty"`
	AdminNote       string               `bson:"adminNote,omitempty" json:"adminNote,omitempty"`
	RejectionReason string               `bson:"rejectionReason,omitempty" json:"rejectionReason,omitempty"`
	CreatedAt       time.Time            `bson:"createdAt" json:"createdAt"`
	ProcessedAt     *time.Time           `bson:"processedAt,omitempty" json:"processedAt,omitempty"`
}

// CreatePayoutRequest is the user body for requesting a payout.
type CreatePayoutRequest struct {
	Amount         Money  `json:"amount"`
	Method         string `json:"method" validate:"required,oneof=bank_transfer paypal wallet"`
	AccountDetails string `json:"accountDetails" validate:"required,min=4,max=500"`
}

// ApprovePayoutRequest is the admin body for paying out a request.
type ApprovePayoutRequest struct {
	Reference string `json:"reference,omitempty" validate:"max=120"`
	Note      string `json:"note,omitempty" validate:"max=500"`
}

// RejectPayoutRequest is the admin body for refusing a request.
type RejectPayoutRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// PayoutResolution is the guarded final update of a payout request.
type PayoutResolution struct {
	Status          PayoutStatus
	PaidAmount      Money
	RewardIDs       []primitive.ObjectID
	Reference       string
	AdminID         primitive.ObjectID
	AdminNote       string
	RejectionReason string
	At              time.Time
}

// PayoutFilter narrows payout listings.
type PayoutFilter struct {
	UserID *primitive.ObjectID
	Status PayoutStatus
}
