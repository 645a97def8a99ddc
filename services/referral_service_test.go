package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/utils"
)

func TestEnsureCodeIsStable(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "alice")
	require.NotEmpty(t, u.Referral.Code)
	assert.True(t, utils.IsReferralCodeFormat(u.Referral.Code))

	code, err := env.referrals.EnsureCode(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Referral.Code, code)
}

func TestApplyReferralCode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	_, err := env.referrals.ApplyReferralCode(ctx, bob.ID, "USR-ZZZZZZ")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = env.referrals.ApplyReferralCode(ctx, alice.ID, alice.Referral.Code)
	assert.True(t, errors.Is(err, ErrValidation), "own code")

	referrer, err := env.referrals.ApplyReferralCode(ctx, bob.ID, " "+alice.Referral.Code+" ")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, referrer.ID)

	bob = env.reload(t, bob.ID)
	require.NotNil(t, bob.Referral.ReferredBy)
	assert.Equal(t, alice.ID, *bob.Referral.ReferredBy)

	_, err = env.referrals.ApplyReferralCode(ctx, bob.ID, alice.Referral.Code)
	assert.True(t, errors.Is(err, ErrConflict), "already referred")

	_, err = env.referrals.ApplyReferralCode(ctx, alice.ID, bob.Referral.Code)
	assert.True(t, errors.Is(err, ErrValidation), "two-cycle")

	n, err := env.notifier.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestApplyReferralCodeWindowAndCompletedBooking(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	late := env.user(t, "late")
	traveler := env.user(t, "traveler")

	env.advance(31 * 24 * time.Hour)
	_, err := env.referrals.ApplyReferralCode(ctx, late.ID, alice.Referral.Code)
	assert.True(t, errors.Is(err, ErrValidation))

	env.clock = traveler.CreatedAt
	env.completedBooking(t, traveler.ID)
	_, err = env.referrals.ApplyReferralCode(ctx, traveler.ID, alice.Referral.Code)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestOnBookingCompletedCreditsOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	env.refer(t, alice, bob)

	first := env.completedBooking(t, bob.ID)

	alice = env.reload(t, alice.ID)
	assert.Equal(t, 1, alice.Referral.Count)
	require.Len(t, alice.Referral.RewardHistory, 1)
	entry := alice.Referral.RewardHistory[0]
	assert.Equal(t, "referral:"+bob.ID.Hex(), entry.Key)
	assert.Equal(t, models.RewardPending, entry.Status)
	assert.True(t, entry.Amount.Equal(money(25)))
	require.NotNil(t, entry.ExpiresAt)
	assert.True(t, entry.ExpiresAt.Equal(env.clock.Add(env.cfg.RewardTTL)))
	assert.True(t, alice.Referral.PendingBalance.Equal(money(25)))
	assertBalances(t, alice)

	bob = env.reload(t, bob.ID)
	require.Len(t, bob.Referral.RewardHistory, 1)
	assert.Equal(t, refereeBonusKey, bob.Referral.RewardHistory[0].Key)
	assert.True(t, bob.Referral.PendingBalance.Equal(money(10)))
	assertBalances(t, bob)

	stored, err := env.stores.Bookings.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, stored.RewardProcessed)

	// Replaying the same booking changes nothing.
	replay := *first
	replay.RewardProcessed = false
	require.NoError(t, env.referrals.OnBookingCompleted(ctx, &replay))

	// A second trip by the same referee earns nothing more.
	env.completedBooking(t, bob.ID)

	alice = env.reload(t, alice.ID)
	assert.Equal(t, 1, alice.Referral.Count)
	assert.Len(t, alice.Referral.RewardHistory, 1)
	bob = env.reload(t, bob.ID)
	assert.Len(t, bob.Referral.RewardHistory, 1)
}

func TestOnBookingCompletedWithoutReferrer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	solo := env.user(t, "solo")

	b := env.completedBooking(t, solo.ID)

	stored, err := env.stores.Bookings.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, stored.RewardProcessed)
	assert.Empty(t, env.reload(t, solo.ID).Referral.RewardHistory)
}

func TestOnBookingCompletedRejectsOpenBookings(t *testing.T) {
	env := newTestEnv(t)
	err := env.referrals.OnBookingCompleted(context.Background(), &models.Booking{Status: models.BookingConfirmed})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestMilestonesAndTierUpgrade(t *testing.T) {
	env := newTestEnv(t, func(c *config.ReferralSettings) {
		c.RequireApproval = false
	})
	alice := env.user(t, "alice")

	for i := 0; i < 6; i++ {
		referee := env.user(t, fmt.Sprintf("friend%d", i))
		env.refer(t, alice, referee)
		env.completedBooking(t, referee.ID)
	}

	alice = env.reload(t, alice.ID)
	assert.Equal(t, 6, alice.Referral.Count)
	assert.Equal(t, models.TierSilver, alice.Referral.Tier)
	assert.Equal(t, []int{5}, alice.Referral.MilestonesAchieved)
	assertBalances(t, alice)

	var referralTotal, milestoneTotal models.Money
	milestones := 0
	for _, e := range alice.Referral.RewardHistory {
		assert.Equal(t, models.RewardCredited, e.Status)
		switch e.Kind {
		case models.RewardKindReferral:
			referralTotal = referralTotal.Add(e.Amount)
		case models.RewardKindMilestone:
			milestones++
			milestoneTotal = milestoneTotal.Add(e.Amount)
			assert.Equal(t, "milestone:5", e.Key)
		}
	}
	// Five referrals priced at bronze, the sixth at silver (x1.1).
	assert.True(t, referralTotal.Equal(money(5*25+27.5)), "got %s", referralTotal)
	assert.Equal(t, 1, milestones)
	assert.True(t, milestoneTotal.Equal(money(50)))
	assert.True(t, alice.Referral.AvailableBalance.Equal(money(5*25+27.5+50)))

	summary, err := env.referrals.Summary(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TierSilver, summary.Tier)
	assert.Equal(t, models.TierGold, summary.NextTier)
	assert.Equal(t, 4, summary.ReferralsToNextTier)
	assert.Equal(t, 10, summary.NextMilestone)
	assert.Equal(t, 4, summary.ReferralsToMilestone)
	assert.True(t, summary.CurrentRewardPerReferral.Equal(money(27.5)))
	assert.Equal(t, "https://travel.example.com/register?ref="+alice.Referral.Code, summary.Link)
}

func TestApproveAndRejectReward(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.user(t, "admin")
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	env.refer(t, alice, bob)
	env.completedBooking(t, bob.ID)

	alice = env.reload(t, alice.ID)
	entryID := alice.Referral.RewardHistory[0].ID

	env.advance(48 * time.Hour)
	approved, err := env.referrals.ApproveReward(ctx, admin.ID, alice.ID, entryID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, models.RewardCredited, approved.Status)
	require.NotNil(t, approved.ExpiresAt)
	assert.True(t, approved.ExpiresAt.Equal(env.clock.Add(env.cfg.RewardTTL)))
	require.Len(t, approved.History, 2)
	assert.Equal(t, admin.ID, *approved.History[1].By)

	alice = env.reload(t, alice.ID)
	assert.True(t, alice.Referral.AvailableBalance.Equal(money(25)))
	assert.True(t, alice.Referral.TotalEarned.Equal(money(25)))
	assertBalances(t, alice)

	_, err = env.referrals.ApproveReward(ctx, admin.ID, alice.ID, entryID, "")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	bob = env.reload(t, bob.ID)
	rejected, err := env.referrals.RejectReward(ctx, admin.ID, bob.ID, bob.Referral.RewardHistory[0].ID, "duplicate account")
	require.NoError(t, err)
	assert.Equal(t, models.RewardRejected, rejected.Status)
	assert.Equal(t, "duplicate account", rejected.RejectionReason)

	bob = env.reload(t, bob.ID)
	assert.True(t, bob.Referral.PendingBalance.IsZero())
	assert.True(t, bob.Referral.TotalEarned.IsZero())
	assertBalances(t, bob)
}

func TestExpireDue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(c *config.ReferralSettings) {
		c.RewardTTL = 10 * 24 * time.Hour
	})
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	env.refer(t, alice, bob)
	env.completedBooking(t, bob.ID)

	admin := env.user(t, "admin")
	alice = env.reload(t, alice.ID)
	_, err := env.referrals.ApproveReward(ctx, admin.ID, alice.ID, alice.Referral.RewardHistory[0].ID, "")
	require.NoError(t, err)

	env.advance(5 * 24 * time.Hour)
	n, err := env.referrals.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	env.advance(6 * 24 * time.Hour)
	n, err = env.referrals.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "alice's credited reward and bob's pending bonus")

	alice = env.reload(t, alice.ID)
	assert.Equal(t, models.RewardExpired, alice.Referral.RewardHistory[0].Status)
	assert.True(t, alice.Referral.AvailableBalance.IsZero())
	assert.True(t, alice.Referral.TotalExpired.Equal(money(25)))
	assert.True(t, alice.Referral.TotalEarned.Equal(money(25)))
	assertBalances(t, alice)

	bob = env.reload(t, bob.ID)
	assert.True(t, bob.Referral.TotalExpired.Equal(money(10)))
	assert.True(t, bob.Referral.TotalEarned.IsZero())
	assertBalances(t, bob)

	n, err = env.referrals.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRedeemAndRestore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(c *config.ReferralSettings) {
		c.RequireApproval = false
	})
	alice := env.user(t, "alice")
	for i := 0; i < 3; i++ {
		referee := env.user(t, fmt.Sprintf("friend%d", i))
		env.refer(t, alice, referee)
		env.completedBooking(t, referee.ID)
		env.advance(time.Hour)
	}

	bookingID := env.completedBooking(t, alice.ID).ID
	ids, total, err := env.referrals.Redeem(ctx, alice.ID, bookingID, money(60))
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.True(t, total.Equal(money(50)))

	alice = env.reload(t, alice.ID)
	assert.True(t, alice.Referral.AvailableBalance.Equal(money(25)))
	assert.True(t, alice.Referral.TotalUsed.Equal(money(50)))
	assertBalances(t, alice)
	for _, id := range ids {
		e, ok := alice.Referral.Entry(id)
		require.True(t, ok)
		assert.Equal(t, models.RewardUsed, e.Status)
		assert.Equal(t, bookingID, *e.UsedOnBooking)
	}

	require.NoError(t, env.referrals.Restore(ctx, alice.ID, bookingID, ids))
	alice = env.reload(t, alice.ID)
	assert.True(t, alice.Referral.AvailableBalance.Equal(money(75)))
	assert.True(t, alice.Referral.TotalUsed.IsZero())
	assertBalances(t, alice)
	for _, id := range ids {
		e, _ := alice.Referral.Entry(id)
		assert.Nil(t, e.UsedOnBooking)
	}
}

func TestReconcileCompleted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	env.refer(t, alice, bob)

	at := env.clock
	b := &models.Booking{
		UserID:      bob.ID,
		Status:      models.BookingCompleted,
		CompletedAt: &at,
		CreatedAt:   at,
	}
	require.NoError(t, env.stores.Bookings.Create(ctx, b))

	n, err := env.referrals.ReconcileCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, env.reload(t, alice.ID).Referral.Count)

	n, err = env.referrals.ReconcileCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRefereesAndLeaderboard(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")
	env.refer(t, alice, bob)
	env.advance(time.Minute)
	env.refer(t, alice, carol)
	env.completedBooking(t, bob.ID)

	referees, total, err := env.referrals.Referees(ctx, alice.ID, models.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, referees, 2)
	done := map[string]bool{}
	for _, r := range referees {
		done[r.FullName] = r.CompletedBooking
	}
	assert.True(t, done["bob Tester"])
	assert.False(t, done["carol Tester"])

	board, err := env.referrals.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, alice.ID, board[0].UserID)
	assert.Equal(t, 1, board[0].Count)

	history, total, err := env.referrals.History(ctx, alice.ID, models.RewardPending, "", models.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, history, 1)
}

func TestQRCode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	link, dataURL, err := env.referrals.QRCode(ctx, alice.ID)
	require.NoError(t, err)
	assert.Contains(t, link, alice.Referral.Code)
	assert.Contains(t, dataURL, "data:image/png;base64,")

	png, err := env.referrals.QRCodePNG(ctx, alice.Referral.Code, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	_, err = env.referrals.QRCodePNG(ctx, "USR-ZZZZZZ", 0)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// racingLedger runs a hook once, just before the first call it intercepts
// reaches the real store, to interleave a concurrent request.
type racingLedger struct {
	LedgerStore
	onSetTier     func()
	onSetReferrer func()
}

func (l *racingLedger) SetTier(ctx context.Context, userID primitive.ObjectID, count int, tier models.Tier) (bool, error) {
	if hook := l.onSetTier; hook != nil {
		l.onSetTier = nil
		hook()
	}
	return l.LedgerStore.SetTier(ctx, userID, count, tier)
}

func (l *racingLedger) SetReferrer(ctx context.Context, userID, referrerID primitive.ObjectID, at time.Time) (bool, error) {
	if hook := l.onSetReferrer; hook != nil {
		l.onSetReferrer = nil
		hook()
	}
	return l.LedgerStore.SetReferrer(ctx, userID, referrerID, at)
}

func TestTierFollowsCountUnderConcurrentCompletions(t *testing.T) {
	env := newTestEnv(t, autoCredit)
	alice := env.user(t, "alice")

	referees := make([]*models.User, 10)
	for i := range referees {
		referees[i] = env.user(t, fmt.Sprintf("friend%d", i))
		env.refer(t, alice, referees[i])
	}
	for _, r := range referees[:4] {
		env.completedBooking(t, r.ID)
	}

	// The fifth completion computes silver; five more complete before its
	// tier write lands.
	racing := &racingLedger{LedgerStore: env.stores.Ledger}
	racing.onSetTier = func() {
		for _, r := range referees[5:] {
			env.completedBooking(t, r.ID)
		}
	}
	env.referrals.ledger = racing
	env.completedBooking(t, referees[4].ID)

	alice = env.reload(t, alice.ID)
	assert.Equal(t, 10, alice.Referral.Count)
	assert.Equal(t, models.TierGold, alice.Referral.Tier)
	assert.Equal(t, TierFor(alice.Referral.Count, env.cfg.Tiers), alice.Referral.Tier)
	assertBalances(t, alice)
}

func TestApplyReferralCodeUndoesConcurrentCycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	// Alice applies Bob's code while Bob applies hers.
	racing := &racingLedger{LedgerStore: env.stores.Ledger}
	racing.onSetReferrer = func() {
		ok, err := env.stores.Ledger.SetReferrer(ctx, alice.ID, bob.ID, env.clock)
		require.NoError(t, err)
		require.True(t, ok)
	}
	env.referrals.ledger = racing

	_, err := env.referrals.ApplyReferralCode(ctx, bob.ID, alice.Referral.Code)
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	bob = env.reload(t, bob.ID)
	assert.Nil(t, bob.Referral.ReferredBy)
	alice = env.reload(t, alice.ID)
	require.NotNil(t, alice.Referral.ReferredBy)
	assert.Equal(t, bob.ID, *alice.Referral.ReferredBy)
}
