package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
)

func newUser(t *testing.T, db *DB, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, FullName: "Test", UserType: models.UserTypeCustomer, CreatedAt: time.Now()}
	require.NoError(t, db.Users().Create(context.Background(), u))
	return u
}

func TestUserCreateUniqueEmail(t *testing.T) {
	db := NewDB()
	u := newUser(t, db, "a@example.com")
	assert.Equal(t, models.TierBronze, u.Referral.Tier)
	assert.Equal(t, models.AccountStatusActive, u.Status)

	err := db.Users().Create(context.Background(), &models.User{Email: "a@example.com"})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)
}

func TestSetReferralCodeOnce(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	a := newUser(t, db, "a@example.com")
	b := newUser(t, db, "b@example.com")

	ok, err := db.Referrals().SetReferralCode(ctx, a.ID, "USR-AAAAAA")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.Referrals().SetReferralCode(ctx, a.ID, "USR-BBBBBB")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.Referrals().SetReferralCode(ctx, b.ID, "USR-AAAAAA")
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	_, err = db.Referrals().SetReferralCode(ctx, primitive.NewObjectID(), "USR-CCCCCC")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestAppendRewardIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	u := newUser(t, db, "a@example.com")
	amount := models.MoneyFromFloat(25)

	entry := models.RewardEntry{Key: "referral:x", Kind: models.RewardKindReferral, Status: models.RewardPending, Amount: amount, CreatedAt: time.Now()}
	opts := models.AppendOptions{Delta: models.BalanceDelta{Pending: amount}, IncrementCount: true}

	ok, err := db.Referrals().AppendReward(ctx, u.ID, entry, opts)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.Referrals().AppendReward(ctx, u.ID, entry, opts)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := db.Users().FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Referral.Count)
	assert.Len(t, got.Referral.RewardHistory, 1)
	assert.Equal(t, "25.00", got.Referral.PendingBalance.String())
}

func TestAppendRewardMilestoneGuard(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	u := newUser(t, db, "a@example.com")

	first := models.RewardEntry{Key: "milestone:5", Status: models.RewardCredited, Amount: models.MoneyFromFloat(50)}
	ok, err := db.Referrals().AppendReward(ctx, u.ID, first, models.AppendOptions{Milestone: 5})
	require.NoError(t, err)
	require.True(t, ok)

	// different key, same milestone
	other := models.RewardEntry{Key: "milestone:5:retry", Status: models.RewardCredited, Amount: models.MoneyFromFloat(50)}
	ok, err = db.Referrals().AppendReward(ctx, u.ID, other, models.AppendOptions{Milestone: 5})
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := db.Users().FindByID(ctx, u.ID)
	assert.Equal(t, []int{5}, got.Referral.MilestonesAchieved)
}

func TestTransitionRewardRequiresFromStatus(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	u := newUser(t, db, "a@example.com")
	amount := models.MoneyFromFloat(10)

	entry := models.RewardEntry{ID: primitive.NewObjectID(), Key: "referee_bonus", Status: models.RewardPending, Amount: amount}
	_, err := db.Referrals().AppendReward(ctx, u.ID, entry, models.AppendOptions{Delta: models.BalanceDelta{Pending: amount}})
	require.NoError(t, err)

	approve := models.RewardTransition{
		EntryID: entry.ID,
		From:    models.RewardPending,
		To:      models.RewardCredited,
		At:      time.Now(),
		Delta:   models.BalanceDelta{Pending: amount.Neg(), Available: amount, Earned: amount},
	}
	ok, err := db.Referrals().TransitionReward(ctx, u.ID, approve)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.Referrals().TransitionReward(ctx, u.ID, approve)
	require.NoError(t, err)
	assert.False(t, ok, "second approval must not match")

	got, _ := db.Users().FindByID(ctx, u.ID)
	assert.True(t, got.Referral.PendingBalance.IsZero())
	assert.Equal(t, "10.00", got.Referral.AvailableBalance.String())
	assert.Equal(t, "10.00", got.Referral.TotalEarned.String())
	e, _ := got.Referral.Entry(entry.ID)
	assert.Equal(t, models.RewardCredited, e.Status)
	require.Len(t, e.History, 1)
	assert.Equal(t, models.RewardPending, e.History[0].From)
}

func TestReturnedUsersAreCopies(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	u := newUser(t, db, "a@example.com")

	got, _ := db.Users().FindByID(ctx, u.ID)
	got.FullName = "changed"
	got.Referral.MilestonesAchieved = append(got.Referral.MilestonesAchieved, 99)

	again, _ := db.Users().FindByID(ctx, u.ID)
	assert.Equal(t, "Test", again.FullName)
	assert.Empty(t, again.Referral.MilestonesAchieved)
}

func TestBookingTransitionAndPaging(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	userID := primitive.NewObjectID()
	base := time.Now()
	for i := 0; i < 25; i++ {
		b := &models.Booking{UserID: userID, Status: models.BookingPending, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, db.Bookings().Create(ctx, b))
	}

	page, total, err := db.Bookings().List(ctx, models.BookingFilter{UserID: &userID}, models.Pagination{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	require.Len(t, page, 10)
	assert.True(t, page[0].CreatedAt.After(page[9].CreatedAt))

	id := page[0].ID
	ok, err := db.Bookings().Transition(ctx, id, models.BookingStatusTransition{From: models.BookingPending, To: models.BookingConfirmed, At: time.Now()})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = db.Bookings().Transition(ctx, id, models.BookingStatusTransition{From: models.BookingPending, To: models.BookingCancelled, At: time.Now()})
	assert.False(t, ok)

	counts, err := db.Bookings().CountByStatus(ctx, models.BookingFilter{UserID: &userID})
	require.NoError(t, err)
	assert.Equal(t, int64(24), counts[models.BookingPending])
	assert.Equal(t, int64(1), counts[models.BookingConfirmed])
}

func TestPayoutOnePendingPerUser(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	userID := primitive.NewObjectID()

	require.NoError(t, db.Payouts().Create(ctx, &models.PayoutRequest{UserID: userID, Status: models.PayoutPending}))
	err := db.Payouts().Create(ctx, &models.PayoutRequest{UserID: userID, Status: models.PayoutPending})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)
}
