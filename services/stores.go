package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/models"
)

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	FindByReferralCode(ctx context.Context, code string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter, page models.Pagination) ([]models.User, int64, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.ProfileUpdate) (*models.User, error)
	UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string) error
	UpdateFCMToken(ctx context.Context, id primitive.ObjectID, token string) error
	SetStatus(ctx context.Context, id primitive.ObjectID, status string) error
	TouchActivity(ctx context.Context, id primitive.ObjectID, at time.Time) error
	MarkInactive(ctx context.Context, before time.Time) (int64, error)
}

// LedgerStore holds the referral sub-document of users. Its writes are
// conditional: they report false instead of applying when the precondition
// no longer holds.
type LedgerStore interface {
	SetReferralCode(ctx context.Context, userID primitive.ObjectID, code string) (bool, error)
	SetReferrer(ctx context.Context, userID, referrerID primitive.ObjectID, at time.Time) (bool, error)
	ClearReferrer(ctx context.Context, userID, referrerID primitive.ObjectID) (bool, error)
	AppendReward(ctx context.Context, userID primitive.ObjectID, entry models.RewardEntry, opts models.AppendOptions) (bool, error)
	TransitionReward(ctx context.Context, userID primitive.ObjectID, t models.RewardTransition) (bool, error)
	SetTier(ctx context.Context, userID primitive.ObjectID, count int, tier models.Tier) (bool, error)
	ListReferees(ctx context.Context, referrerID primitive.ObjectID, page models.Pagination) ([]models.User, int64, error)
	ListRewards(ctx context.Context, filter models.RewardFilter, page models.Pagination) ([]models.RewardRecord, int64, error)
	FindExpiringRewards(ctx context.Context, now time.Time, limit int) ([]models.RewardRecord, error)
	FindUsedRewards(ctx context.Context, from, to time.Time, limit int) ([]models.RewardRecord, error)
	Leaderboard(ctx context.Context, limit int) ([]models.User, error)
	Stats(ctx context.Context) (*models.ReferralStats, error)
}

// BookingStore persists bookings.
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter, page models.Pagination) ([]models.Booking, int64, error)
	CountByStatus(ctx context.Context, filter models.BookingFilter) (map[models.BookingStatus]int64, error)
	Transition(ctx context.Context, id primitive.ObjectID, t models.BookingStatusTransition) (bool, error)
	ApplyRewards(ctx context.Context, id primitive.ObjectID, rewardIDs []primitive.ObjectID, discount, total models.Money, at time.Time) (bool, error)
	MarkRewardProcessed(ctx context.Context, id primitive.ObjectID) error
	FindUnprocessedCompleted(ctx context.Context, limit int) ([]models.Booking, error)
	HasCompleted(ctx context.Context, userID primitive.ObjectID) (bool, error)
	UsersWithCompleted(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error)
	HasActiveForPackage(ctx context.Context, packageID primitive.ObjectID) (bool, error)
	DeleteCancelled(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// DestinationStore persists destinations.
type DestinationStore interface {
	Create(ctx context.Context, d *models.Destination) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Destination, error)
	FindBySlug(ctx context.Context, slug string) (*models.Destination, error)
	List(ctx context.Context, filter models.DestinationFilter, page models.Pagination) ([]models.Destination, int64, error)
	Update(ctx context.Context, d *models.Destination) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// PackageStore persists travel packages.
type PackageStore interface {
	Create(ctx context.Context, p *models.Package) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Package, error)
	FindBySlug(ctx context.Context, slug string) (*models.Package, error)
	List(ctx context.Context, filter models.PackageFilter, page models.Pagination) ([]models.Package, int64, error)
	Update(ctx context.Context, p *models.Package) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	CountByDestination(ctx context.Context, destinationID primitive.ObjectID) (int64, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, page models.Pagination) ([]models.Notification, int64, error)
	CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error)
	MarkRead(ctx context.Context, userID, id primitive.ObjectID, at time.Time) error
	MarkAllRead(ctx context.Context, userID primitive.ObjectID, at time.Time) (int64, error)
	Delete(ctx context.Context, userID, id primitive.ObjectID) error
}

// PayoutStore persists payout requests.
type PayoutStore interface {
	Create(ctx context.Context, p *models.PayoutRequest) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.PayoutRequest, error)
	List(ctx context.Context, filter models.PayoutFilter, page models.Pagination) ([]models.PayoutRequest, int64, error)
	HasPending(ctx context.Context, userID primitive.ObjectID) (bool, error)
	Resolve(ctx context.Context, id primitive.ObjectID, res models.PayoutResolution) (bool, error)
}

// Stores bundles every store a service set needs.
type Stores struct {
	Users         UserStore
	Ledger        LedgerStore
	Bookings      BookingStore
	Destinations  DestinationStore
	Packages      PackageStore
	Notifications NotificationStore
	Payouts       PayoutStore
}
