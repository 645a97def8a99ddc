package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tier is the referral rank derived from a user's successful referral count.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

// RewardKind says why a ledger entry exists.
type RewardKind string

const (
	RewardKindReferral  RewardKind = "referral_bonus"
	RewardKindReferee   RewardKind = "referee_bonus"
	RewardKindMilestone RewardKind = "milestone_bonus"
)

// RewardStatus is the lifecycle state of a ledger entry.
type RewardStatus string

const (
	RewardPending  RewardStatus = "pending"
	RewardCredited RewardStatus = "credited"
	RewardUsed     RewardStatus = "used"
	RewardExpired  RewardStatus = "expired"
	RewardPaid     RewardStatus = "paid"
	RewardRejected RewardStatus = "rejected"
)

// ReferralInfo is the referral sub-document embedded in every user. The
// balances are running totals of RewardHistory grouped by status and are
// only ever changed in the same update that changes an entry.
type ReferralInfo struct {
	Code               string              `json:"code,omitempty" bson:"code,omitempty"`
	ReferredBy         *primitive.ObjectID `json:"referredBy,omitempty" bson:"referredBy,omitempty"`
	ReferredAt         *time.Time          `json:"referredAt,omitempty" bson:"referredAt,omitempty"`
	Count              int                 `json:"count" bson:"count"`
	Tier               Tier                `json:"tier" bson:"tier"`
	MilestonesAchieved []int               `json:"milestonesAchieved" bson:"milestonesAchieved"`
	PendingBalance     Money               `json:"pendingBalance" bson:"pendingBalance"`
	AvailableBalance   Money               `json:"availableBalance" bson:"availableBalance"`
	TotalEarned        Money               `json:"totalEarned" bson:"totalEarned"`
	TotalUsed          Money               `json:"totalUsed" bson:"totalUsed"`
	TotalPaid          Money               `json:"totalPaid" bson:"totalPaid"`
	TotalExpired       Money               `json:"totalExpired" bson:"totalExpired"`
	RewardHistory      []RewardEntry       `json:"rewardHistory,omitempty" bson:"rewardHistory"`
}

// HasMilestone reports whether milestone m was already achieved.
func (r *ReferralInfo) HasMilestone(m int) bool {
	for _, got := range r.MilestonesAchieved {
		if got == m {
			return true
		}
	}
	return false
}

// Entry returns the ledger entry with the given id.
func (r *ReferralInfo) Entry(id primitive.ObjectID) (*RewardEntry, bool) {
	for i := range r.RewardHistory {
		if r.RewardHistory[i].ID == id {
			return &r.RewardHistory[i], true
		}
	}
	return nil, false
}

// HasKey reports whether an entry with the idempotency key exists.
func (r *ReferralInfo) HasKey(key string) bool {
	for i := range r.RewardHistory {
		if r.RewardHistory[i].Key == key {
			return true
		}
	}
	return false
}

// RewardEntry is one line of the referral ledger.
type RewardEntry struct {
	ID              primitive.ObjectID   `json:"id" bson:"_id"`
	Key             string               `json:"key" bson:"key"`
	Kind            RewardKind           `json:"kind" bson:"kind"`
	Status          RewardStatus         `json:"status" bson:"status"`
	Amount          Money                `json:"amount" bson:"amount"`
	RefereeID       *primitive.ObjectID  `json:"refereeId,omitempty" bson:"refereeId,omitempty"`
	BookingID       *primitive.ObjectID  `json:"bookingId,omitempty" bson:"bookingId,omitempty"`
	Milestone       int                  `json:"milestone,omitempty" bson:"milestone,omitempty"`
	Description     string               `json:"description" bson:"description"`
	ExpiresAt       *time.Time           `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
	UsedOnBooking   *primitive.ObjectID  `json:"usedOnBooking,omitempty" bson:"usedOnBooking,omitempty"`
	PayoutID        *primitive.ObjectID  `json:"payoutId,omitempty" bson:"payoutId,omitempty"`
	RejectionReason string               `json:"rejectionReason,omitempty" bson:"rejectionReason,omitempty"`
	History         []RewardStatusChange `json:"history" bson:"history"`
	CreatedAt       time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt" bson:"updatedAt"`
}

// RewardStatusChange records one transition of a ledger entry.
type RewardStatusChange struct {
	From RewardStatus        `json:"from,omitempty" bson:"from,omitempty"`
	To   RewardStatus        `json:"to" bson:"to"`
	At   time.Time           `json:"at" bson:"at"`
	By   *primitive.ObjectID `json:"by,omitempty" bson:"by,omitempty"`
	Note string              `json:"note,omitempty" bson:"note,omitempty"`
}

// BalanceDelta is the change a transition applies to the running totals.
type BalanceDelta struct {
	Pending   Money
	Available Money
	Earned    Money
	Used      Money
	Paid      Money
	Expired   Money
}

// IsZero reports whether the delta changes nothing.
func (d BalanceDelta) IsZero() bool {
	return d.Pending.IsZero() && d.Available.IsZero() && d.Earned.IsZero() &&
		d.Used.IsZero() && d.Paid.IsZero() && d.Expired.IsZero()
}

// AppendOptions describe side effects applied together with a ledger append.
type AppendOptions struct {
	// Delta is the balance change for the entry's initial status.
	Delta BalanceDelta
	// IncrementCount bumps referral.count in the same update.
	IncrementCount bool
	// Milestone, when non-zero, is added to milestonesAchieved and guarded
	// against repeats.
	Milestone int
}

// RewardTransition is a guarded status change of one ledger entry. The
// store applies it only if the entry is currently in From.
type RewardTransition struct {
	EntryID         primitive.ObjectID
	From            RewardStatus
	To              RewardStatus
	At              time.Time
	By              *primitive.ObjectID
	Note            string
	Delta           BalanceDelta
	ExpiresAt       *time.Time
	UsedOnBooking   *primitive.ObjectID
	ClearUsage      bool
	PayoutID        *primitive.ObjectID
	RejectionReason string
}

// RewardFilter narrows ledger listings.
type RewardFilter struct {
	UserID *primitive.ObjectID
	Status RewardStatus
	Kind   RewardKind
}

// RewardRecord is a ledger entry together with its owner, for admin views.
type RewardRecord struct {
	UserID    primitive.ObjectID `json:"userId" bson:"userId"`
	UserEmail string             `json:"userEmail" bson:"userEmail"`
	UserName  string             `json:"userName" bson:"userName"`
	Entry     RewardEntry        `json:"entry" bson:"entry"`
}

// ApplyReferralRequest attaches a referral code to the current user.
type ApplyReferralRequest struct {
	ReferralCode string `json:"referralCode" validate:"required,min=4,max=20"`
}

// RejectRewardRequest is the admin body for rejecting a pending entry.
type RejectRewardRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// ApproveRewardRequest is the admin body for approving a pending entry.
type ApproveRewardRequest struct {
	Note string `json:"note,omitempty" validate:"max=500"`
}

// ReferralSummary is what a user sees on their referral page.
type ReferralSummary struct {
	Code                     string `json:"code"`
	Link                     string `json:"link"`
	Count                    int    `json:"count"`
	Tier                     Tier   `json:"tier"`
	NextTier                 Tier   `json:"nextTier,omitempty"`
	ReferralsToNextTier      int    `json:"referralsToNextTier"`
	NextMilestone            int    `json:"nextMilestone,omitempty"`
	ReferralsToMilestone     int    `json:"referralsToMilestone"`
	NextMilestoneReward      Money  `json:"nextMilestoneReward"`
	MilestonesAchieved       []int  `json:"milestonesAchieved"`
	PendingBalance           Money  `json:"pendingBalance"`
	AvailableBalance         Money  `json:"availableBalance"`
	TotalEarned              Money  `json:"totalEarned"`
	TotalUsed                Money  `json:"totalUsed"`
	TotalPaid                Money  `json:"totalPaid"`
	TotalExpired             Money  `json:"totalExpired"`
	CurrentRewardPerReferral Money  `json:"currentRewardPerReferral"`
}

// Referee is one user referred by the caller.
type Referee struct {
	ID               primitive.ObjectID `json:"id"`
	FullName         string             `json:"fullName"`
	JoinedAt         time.Time          `json:"joinedAt"`
	ReferredAt       *time.Time         `json:"referredAt,omitempty"`
	CompletedBooking bool               `json:"completedBooking"`
}

// LeaderboardEntry is one row of the referral leaderboard.
type LeaderboardEntry struct {
	UserID      primitive.ObjectID `json:"userId"`
	FullName    string             `json:"fullName"`
	Count       int                `json:"count"`
	Tier        Tier               `json:"tier"`
	TotalEarned Money              `json:"totalEarned"`
}

// ReferralStats are simple counts for the admin overview.
type ReferralStats struct {
	UsersByTier     map[Tier]int64         `json:"usersByTier"`
	EntriesByStatus map[RewardStatus]int64 `json:"entriesByStatus"`
	AmountByStatus  map[RewardStatus]Money `json:"amountByStatus"`
}
