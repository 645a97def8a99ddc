package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/models"
)

func bookingRequest(pkg *models.Package, travelDate time.Time, travelers int) models.BookingRequest {
	return models.BookingRequest{
		PackageID:    pkg.ID.Hex(),
		TravelDate:   travelDate,
		Travelers:    travelers,
		ContactName:  "Bob Tester",
		ContactPhone: "+351 912 345 678",
		ContactEmail: "Bob@Example.com",
	}
}

func TestCanTransitionBooking(t *testing.T) {
	assert.True(t, CanTransitionBooking(models.BookingPending, models.BookingConfirmed))
	assert.True(t, CanTransitionBooking(models.BookingPending, models.BookingCancelled))
	assert.True(t, CanTransitionBooking(models.BookingConfirmed, models.BookingCompleted))
	assert.True(t, CanTransitionBooking(models.BookingConfirmed, models.BookingCancelled))
	assert.False(t, CanTransitionBooking(models.BookingPending, models.BookingCompleted))
	assert.False(t, CanTransitionBooking(models.BookingCompleted, models.BookingCancelled))
	assert.False(t, CanTransitionBooking(models.BookingCancelled, models.BookingPending))
}

func TestCreateBookingValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	bob := env.user(t, "bob")
	_, pkg := env.destinationAndPackage(t, 400)
	tomorrow := startOfDay(env.clock).AddDate(0, 0, 1)

	_, err := env.bookings.Create(ctx, bob.ID, bookingRequest(pkg, env.clock, 2))
	assert.True(t, errors.Is(err, ErrValidation), "today is too early")

	_, err = env.bookings.Create(ctx, bob.ID, bookingRequest(pkg, tomorrow, 5))
	assert.True(t, errors.Is(err, ErrValidation), "over max travelers")

	req := bookingRequest(pkg, tomorrow, 2)
	req.PackageID = "not-an-id"
	_, err = env.bookings.Create(ctx, bob.ID, req)
	assert.True(t, errors.Is(err, ErrValidation))

	inactive := false
	_, err = env.catalog.UpdatePackage(ctx, pkg.ID, models.PackageRequest{
		Title: pkg.Title, DestinationID: pkg.DestinationID.Hex(), DurationDays: 3,
		Price: pkg.Price, MaxTravelers: 4, IsActive: &inactive,
	})
	require.NoError(t, err)
	_, err = env.bookings.Create(ctx, bob.ID, bookingRequest(pkg, tomorrow, 2))
	assert.True(t, errors.Is(err, ErrValidation), "inactive package")
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	bob := env.user(t, "bob")
	_, pkg := env.destinationAndPackage(t, 400)

	b, err := env.bookings.Create(ctx, bob.ID, bookingRequest(pkg, startOfDay(env.clock).AddDate(0, 0, 1), 2))
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, b.Status)
	assert.True(t, b.Subtotal.Equal(money(800)))
	assert.True(t, b.TotalAmount.Equal(money(800)))
	assert.Equal(t, "+351912345678", b.ContactPhone)
	assert.Equal(t, "bob@example.com", b.ContactEmail)
	assert.Equal(t, "USD", b.Currency)
	require.Len(t, b.StatusHistory, 1)

	n, err := env.notifier.UnreadCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBookingWithRewardsAndCancel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, autoCredit)
	alice := earner(t, env, "alice", 2)
	_, pkg := env.destinationAndPackage(t, 30)

	req := bookingRequest(pkg, startOfDay(env.clock).AddDate(0, 0, 7), 1)
	req.UseRewardBalance = true
	b, err := env.bookings.Create(ctx, alice.ID, req)
	require.NoError(t, err)
	assert.True(t, b.RewardDiscount.Equal(money(25)), "two entries of 25 would exceed 30")
	assert.True(t, b.TotalAmount.Equal(money(5)))
	require.Len(t, b.AppliedRewards, 1)

	alice = env.reload(t, alice.ID)
	assert.True(t, alice.Referral.AvailableBalance.Equal(money(25)))
	assertBalances(t, alice)

	cancelled, err := env.bookings.Cancel(ctx, alice.ID, b.ID, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Equal(t, "plans changed", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)

	alice = env.reload(t, alice.ID)
	assert.True(t, alice.Referral.AvailableBalance.Equal(money(50)))
	assert.True(t, alice.Referral.TotalUsed.IsZero())
	assertBalances(t, alice)

	_, err = env.bookings.Cancel(ctx, alice.ID, b.ID, "")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestCancelRequiresOwner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	bob := env.user(t, "bob")
	mallory := env.user(t, "mallory")
	_, pkg := env.destinationAndPackage(t, 100)

	b, err := env.bookings.Create(ctx, bob.ID, bookingRequest(pkg, startOfDay(env.clock).AddDate(0, 0, 3), 1))
	require.NoError(t, err)

	_, err = env.bookings.Cancel(ctx, mallory.ID, b.ID, "")
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = env.bookings.Get(ctx, mallory, b.ID)
	assert.True(t, errors.Is(err, ErrForbidden))

	admin := &models.User{ID: mallory.ID, UserType: models.UserTypeAdmin}
	got, err := env.bookings.Get(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestAdminLifecycleRewardsReferrer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.user(t, "admin")
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	env.refer(t, alice, bob)
	_, pkg := env.destinationAndPackage(t, 200)

	b, err := env.bookings.Create(ctx, bob.ID, bookingRequest(pkg, startOfDay(env.clock).AddDate(0, 0, 2), 1))
	require.NoError(t, err)

	_, err = env.bookings.UpdateStatus(ctx, admin.ID, b.ID, models.BookingStatusUpdateRequest{Status: models.BookingCompleted})
	assert.True(t, errors.Is(err, ErrInvalidTransition), "pending cannot complete")

	_, err = env.bookings.UpdateStatus(ctx, admin.ID, b.ID, models.BookingStatusUpdateRequest{Status: models.BookingConfirmed})
	require.NoError(t, err)
	done, err := env.bookings.UpdateStatus(ctx, admin.ID, b.ID, models.BookingStatusUpdateRequest{Status: models.BookingCompleted, Note: "trip finished"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Len(t, done.StatusHistory, 3)

	stored, err := env.stores.Bookings.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, stored.RewardProcessed)

	alice = env.reload(t, alice.ID)
	assert.Equal(t, 1, alice.Referral.Count)
	assert.True(t, alice.Referral.PendingBalance.Equal(money(25)))

	err = env.bookings.Delete(ctx, b.ID)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestAdminListAndDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	bob := env.user(t, "bob")
	_, pkg := env.destinationAndPackage(t, 100)
	date := startOfDay(env.clock).AddDate(0, 0, 3)

	first, err := env.bookings.Create(ctx, bob.ID, bookingRequest(pkg, date, 1))
	require.NoError(t, err)
	_, err = env.bookings.Create(ctx, bob.ID, bookingRequest(pkg, date, 2))
	require.NoError(t, err)
	_, err = env.bookings.Cancel(ctx, bob.ID, first.ID, "")
	require.NoError(t, err)

	res, err := env.bookings.AdminList(ctx, models.BookingFilter{Status: models.BookingPending}, models.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, int64(1), res.Counts[models.BookingPending])
	assert.Equal(t, int64(1), res.Counts[models.BookingCancelled])

	own, total, err := env.bookings.ListOwn(ctx, bob.ID, "", models.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, own, 2)

	require.NoError(t, env.bookings.Delete(ctx, first.ID))
	err = env.bookings.Delete(ctx, first.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// unappliedBookings loses every ApplyRewards write.
type unappliedBookings struct {
	BookingStore
}

func (unappliedBookings) ApplyRewards(context.Context, primitive.ObjectID, []primitive.ObjectID, models.Money, models.Money, time.Time) (bool, error) {
	return false, errors.New("write concern timeout")
}

func TestBookingRewardsRestoredWhenDiscountIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, autoCredit)
	alice := earner(t, env, "alice", 2)
	_, pkg := env.destinationAndPackage(t, 30)

	env.bookings.bookings = unappliedBookings{BookingStore: env.stores.Bookings}
	req := bookingRequest(pkg, startOfDay(env.clock).AddDate(0, 0, 7), 1)
	req.UseRewardBalance = true
	_, err := env.bookings.Create(ctx, alice.ID, req)
	require.Error(t, err)

	alice = env.reload(t, alice.ID)
	assert.True(t, alice.Referral.AvailableBalance.Equal(money(50)))
	assert.True(t, alice.Referral.TotalUsed.IsZero())
	assertBalances(t, alice)

	own, _, err := env.bookings.ListOwn(ctx, alice.ID, "", models.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, models.BookingCancelled, own[0].Status)
	assert.True(t, own[0].AppliedRewards == nil || len(own[0].AppliedRewards) == 0)
}

func TestRestoreOrphanedRewards(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, autoCredit)
	alice := earner(t, env, "alice", 3)
	_, pkg := env.destinationAndPackage(t, 25)

	req := bookingRequest(pkg, startOfDay(env.clock).AddDate(0, 0, 7), 1)
	req.UseRewardBalance = true
	held, err := env.bookings.Create(ctx, alice.ID, req)
	require.NoError(t, err)
	require.Len(t, held.AppliedRewards, 1)

	// A redemption whose booking never made it to the store.
	ghost := primitive.NewObjectID()
	ids, _, err := env.referrals.Redeem(ctx, alice.ID, ghost, money(25))
	require.NoError(t, err)
	require.Len(t, ids, 1)

	n, err := env.referrals.RestoreOrphaned(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh redemptions are left alone")

	env.advance(orphanGrace + time.Minute)
	n, err = env.referrals.RestoreOrphaned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	alice = env.reload(t, alice.ID)
	orphan, ok := alice.Referral.Entry(ids[0])
	require.True(t, ok)
	assert.Equal(t, models.RewardCredited, orphan.Status)
	assert.Nil(t, orphan.UsedOnBooking)
	kept, ok := alice.Referral.Entry(held.AppliedRewards[0])
	require.True(t, ok)
	assert.Equal(t, models.RewardUsed, kept.Status)
	assert.True(t, alice.Referral.AvailableBalance.Equal(money(50)))
	assertBalances(t, alice)

	n, err = env.referrals.RestoreOrphaned(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
