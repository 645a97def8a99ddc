package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories/memory"
	"github.com/HSouheill/travel_booking_backend/utils"
)

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) Send(to, subject, body string) error {
	m.sent = append(m.sent, to+": "+subject)
	return nil
}

type testEnv struct {
	db        *memory.DB
	stores    Stores
	cfg       config.ReferralSettings
	clock     time.Time
	mailer    *recordingMailer
	notifier  *NotificationService
	referrals *ReferralService
	payouts   *PayoutService
	bookings  *BookingService
	catalog   *CatalogService
}

func newTestEnv(t *testing.T, tweak ...func(*config.ReferralSettings)) *testEnv {
	t.Helper()
	cfg := config.DefaultReferralSettings()
	for _, fn := range tweak {
		fn(&cfg)
	}

	db := memory.NewDB()
	stores := Stores{
		Users:         db.Users(),
		Ledger:        db.Referrals(),
		Bookings:      db.Bookings(),
		Destinations:  db.Destinations(),
		Packages:      db.Packages(),
		Notifications: db.Notifications(),
		Payouts:       db.Payouts(),
	}
	logger := zap.NewNop()
	locker := utils.NewLocker(nil)
	mailer := &recordingMailer{}

	env := &testEnv{
		db:     db,
		stores: stores,
		cfg:    cfg,
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		mailer: mailer,
	}
	env.notifier = NewNotificationService(stores.Notifications, stores.Users, nil, nil, mailer, logger)
	env.referrals = NewReferralService(stores, env.notifier, locker, cfg, "https://travel.example.com", logger)
	env.payouts = NewPayoutService(stores, env.notifier, locker, cfg, logger)
	env.bookings = NewBookingService(stores, env.referrals, env.notifier, logger)
	env.catalog = NewCatalogService(stores, logger)

	now := func() time.Time { return env.clock }
	env.referrals.now = now
	env.payouts.now = now
	env.bookings.now = now
	env.catalog.now = now
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.clock = e.clock.Add(d)
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{
		ID:        primitive.NewObjectID(),
		Email:     name + "@example.com",
		FullName:  name + " Tester",
		UserType:  models.UserTypeCustomer,
		CreatedAt: e.clock,
		UpdatedAt: e.clock,
	}
	require.NoError(t, e.stores.Users.Create(context.Background(), u))
	_, err := e.referrals.EnsureCode(context.Background(), u.ID)
	require.NoError(t, err)
	return e.reload(t, u.ID)
}

func (e *testEnv) reload(t *testing.T, id primitive.ObjectID) *models.User {
	t.Helper()
	u, err := e.stores.Users.FindByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// refer links referee to referrer through the public operation.
func (e *testEnv) refer(t *testing.T, referrer, referee *models.User) {
	t.Helper()
	_, err := e.referrals.ApplyReferralCode(context.Background(), referee.ID, referrer.Referral.Code)
	require.NoError(t, err)
}

// completedBooking stores a completed booking for userID and runs the
// reward trigger on it.
func (e *testEnv) completedBooking(t *testing.T, userID primitive.ObjectID) *models.Booking {
	t.Helper()
	at := e.clock
	b := &models.Booking{
		ID:             primitive.NewObjectID(),
		UserID:         userID,
		PackageID:      primitive.NewObjectID(),
		Status:         models.BookingCompleted,
		Subtotal:       models.MoneyFromFloat(100),
		TotalAmount:    models.MoneyFromFloat(100),
		AppliedRewards: []primitive.ObjectID{},
		CompletedAt:    &at,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	require.NoError(t, e.stores.Bookings.Create(context.Background(), b))
	require.NoError(t, e.referrals.OnBookingCompleted(context.Background(), b))
	return b
}

func (e *testEnv) destinationAndPackage(t *testing.T, price float64) (*models.Destination, *models.Package) {
	t.Helper()
	ctx := context.Background()
	d, err := e.catalog.CreateDestination(ctx, models.DestinationRequest{Name: "Lisbon Coast", Country: "Portugal"})
	require.NoError(t, err)
	p, err := e.catalog.CreatePackage(ctx, models.PackageRequest{
		Title:         "Lisbon Weekend",
		DestinationID: d.ID.Hex(),
		DurationDays:  3,
		Price:         models.MoneyFromFloat(price),
		MaxTravelers:  4,
	})
	require.NoError(t, err)
	return d, p
}

func money(f float64) models.Money { return models.MoneyFromFloat(f) }

// assertBalances checks every running total against the ledger entries.
func assertBalances(t *testing.T, u *models.User) {
	t.Helper()
	sums := map[models.RewardStatus]models.Money{}
	earned := models.ZeroMoney
	for _, e := range u.Referral.RewardHistory {
		sums[e.Status] = sums[e.Status].Add(e.Amount)
		switch e.Status {
		case models.RewardCredited, models.RewardUsed, models.RewardPaid:
			earned = earned.Add(e.Amount)
		case models.RewardExpired:
			for _, h := range e.History {
				if h.From == models.RewardCredited && h.To == models.RewardExpired {
					earned = earned.Add(e.Amount)
				}
			}
		}
	}
	ref := u.Referral
	require.True(t, ref.PendingBalance.Equal(sums[models.RewardPending]), "pending %s != %s", ref.PendingBalance, sums[models.RewardPending])
	require.True(t, ref.AvailableBalance.Equal(sums[models.RewardCredited]), "available %s != %s", ref.AvailableBalance, sums[models.RewardCredited])
	require.True(t, ref.TotalUsed.Equal(sums[models.RewardUsed]), "used %s != %s", ref.TotalUsed, sums[models.RewardUsed])
	require.True(t, ref.TotalPaid.Equal(sums[models.RewardPaid]), "paid %s != %s", ref.TotalPaid, sums[models.RewardPaid])
	require.True(t, ref.TotalExpired.Equal(sums[models.RewardExpired]), "expired %s != %s", ref.TotalExpired, sums[models.RewardExpired])
	require.True(t, ref.TotalEarned.Equal(earned), "earned %s != %s", ref.TotalEarned, earned)
}
