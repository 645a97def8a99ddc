package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/utils"
)

// bookingTransitions lists the legal booking status changes.
var bookingTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:   {models.BookingConfirmed, models.BookingCancelled},
	models.BookingConfirmed: {models.BookingCompleted, models.BookingCancelled},
}

// CanTransitionBooking reports whether a booking may move between statuses.
func CanTransitionBooking(from, to models.BookingStatus) bool {
	for _, s := range bookingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// BookingService owns the booking lifecycle and its reward side effects.
type BookingService struct {
	bookings  BookingStore
	packages  PackageStore
	referrals *ReferralService
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewBookingService(stores Stores, referrals *ReferralService, notifier Notifier, logger *zap.Logger) *BookingService {
	return &BookingService{
		bookings:  stores.Bookings,
		packages:  stores.Packages,
		referrals: referrals,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// AdminBookings is the admin listing with per-status counts.
type AdminBookings struct {
	Bookings []models.Booking
	Total    int64
	Counts   map[models.BookingStatus]int64
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Create books a package for userID, optionally paying part of it with
// credited referral rewards.
func (s *BookingService) Create(ctx context.Context, userID primitive.ObjectID, req models.BookingRequest) (*models.Booking, error) {
	packageID, err := primitive.ObjectIDFromHex(req.PackageID)
	if err != nil {
		return nil, newError(ErrValidation, "invalid package ID")
	}
	pkg, err := s.packages.FindByID(ctx, packageID)
	if err != nil {
		return nil, notFound(err, "package not found")
	}
	if !pkg.IsActive {
		return nil, newError(ErrValidation, "this package is not available for booking")
	}
	if req.Travelers < 1 || (pkg.MaxTravelers > 0 && req.Travelers > pkg.MaxTravelers) {
		return nil, newError(ErrValidation, "travelers must be between 1 and %d", pkg.MaxTravelers)
	}

	now := s.now()
	tomorrow := startOfDay(now).AddDate(0, 0, 1)
	if req.TravelDate.Before(tomorrow) {
		return nil, newError(ErrValidation, "travel date must be tomorrow or later")
	}

	contactPhone, err := utils.SanitizePhone(req.ContactPhone)
	if err != nil {
		return nil, newError(ErrValidation, "invalid contact phone")
	}
	contactEmail := ""
	if req.ContactEmail != "" {
		if contactEmail, err = utils.SanitizeEmail(req.ContactEmail); err != nil {
			return nil, newError(ErrValidation, "invalid contact email")
		}
	}

	subtotal := pkg.Price.MulInt(req.Travelers)
	booking := &models.Booking{
		ID:             primitive.NewObjectID(),
		UserID:         userID,
		PackageID:      pkg.ID,
		PackageTitle:   pkg.Title,
		TravelDate:     req.TravelDate,
		Travelers:      req.Travelers,
		ContactName:    utils.SanitizeInput(req.ContactName),
		ContactPhone:   contactPhone,
		ContactEmail:   contactEmail,
		Notes:          utils.SanitizeInput(req.Notes),
		Currency:       pkg.Currency,
		Subtotal:       subtotal,
		RewardDiscount: models.ZeroMoney,
		AppliedRewards: []primitive.ObjectID{},
		Status:         models.BookingPending,
		StatusHistory: []models.BookingStatusChange{
			{To: models.BookingPending, At: now, By: &userID},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	booking.TotalAmount = subtotal

	// Rewards are spent only on a stored booking. RestoreOrphaned returns
	// those left used by a crash before ApplyRewards.
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	if req.UseRewardBalance && subtotal.IsPositive() {
		if err := s.redeemOn(ctx, booking, now); err != nil {
			return nil, err
		}
	}

	s.logger.Info("booking created",
		zap.String("bookingId", booking.ID.Hex()),
		zap.String("userId", userID.Hex()),
		zap.String("total", booking.TotalAmount.String()))
	s.notify(ctx, booking, "Booking received",
		fmt.Sprintf("Your booking for %s on %s is pending confirmation.", pkg.Title, booking.TravelDate.Format("2006-01-02")),
		models.NotificationBookingCreated)
	return booking, nil
}

// redeemOn spends the user's credited rewards on a freshly stored booking.
// When the discount cannot be recorded the rewards are given back and the
// booking is cancelled.
func (s *BookingService) redeemOn(ctx context.Context, booking *models.Booking, now time.Time) error {
	ids, discount, err := s.referrals.Redeem(ctx, booking.UserID, booking.ID, booking.Subtotal)
	if err == nil && len(ids) == 0 {
		return nil
	}
	var applied bool
	if err == nil {
		total := booking.Subtotal.Sub(discount)
		if applied, err = s.bookings.ApplyRewards(ctx, booking.ID, ids, discount, total, now); applied {
			booking.AppliedRewards = ids
			booking.RewardDiscount = discount
			booking.TotalAmount = total
			return nil
		}
		if err == nil {
			err = newError(ErrConflict, "booking changed while rewards were applied")
		}
	}

	if rerr := s.referrals.Restore(ctx, booking.UserID, booking.ID, ids); rerr != nil {
		s.logger.Error("failed to restore rewards of an unrecorded redemption",
			zap.String("bookingId", booking.ID.Hex()), zap.Error(rerr))
	}
	if _, cerr := s.bookings.Transition(ctx, booking.ID, models.BookingStatusTransition{
		From:               models.BookingPending,
		To:                 models.BookingCancelled,
		At:                 now,
		Note:               "reward redemption failed",
		CancellationReason: "reward redemption failed",
	}); cerr != nil {
		s.logger.Error("failed to cancel booking after redemption failed",
			zap.String("bookingId", booking.ID.Hex()), zap.Error(cerr))
	}
	return err
}

func (s *BookingService) notify(ctx context.Context, b *models.Booking, title, message, notifType string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, b.UserID, title, message, notifType, map[string]string{
		"bookingId": b.ID.Hex(),
		"status":    string(b.Status),
	})
}

// Get returns a booking visible to the requester.
func (s *BookingService) Get(ctx context.Context, requester *models.User, id primitive.ObjectID) (*models.Booking, error) {
	b, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "booking not found")
	}
	if b.UserID != requester.ID && !requester.IsAdmin() {
		return nil, newError(ErrForbidden, "you do not have access to this booking")
	}
	return b, nil
}

// ListOwn lists the caller's bookings.
func (s *BookingService) ListOwn(ctx context.Context, userID primitive.ObjectID, status models.BookingStatus, page models.Pagination) ([]models.Booking, int64, error) {
	return s.bookings.List(ctx, models.BookingFilter{UserID: &userID, Status: status}, page)
}

// AdminList lists bookings across users with status counts for the same
// filter, ignoring its status.
func (s *BookingService) AdminList(ctx context.Context, filter models.BookingFilter, page models.Pagination) (*AdminBookings, error) {
	bookings, total, err := s.bookings.List(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	countFilter := filter
	countFilter.Status = ""
	counts, err := s.bookings.CountByStatus(ctx, countFilter)
	if err != nil {
		return nil, err
	}
	return &AdminBookings{Bookings: bookings, Total: total, Counts: counts}, nil
}

func (s *BookingService) transition(ctx context.Context, b *models.Booking, to models.BookingStatus, by primitive.ObjectID, note, reason string) (*models.Booking, error) {
	if !CanTransitionBooking(b.Status, to) {
		return nil, newError(ErrInvalidTransition, "cannot change booking from %s to %s", b.Status, to)
	}
	ok, err := s.bookings.Transition(ctx, b.ID, models.BookingStatusTransition{
		From:               b.Status,
		To:                 to,
		At:                 s.now(),
		By:                 &by,
		Note:               utils.SanitizeInput(note),
		CancellationReason: utils.SanitizeInput(reason),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(ErrConflict, "booking status was changed by another request")
	}

	updated, err := s.bookings.FindByID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	switch to {
	case models.BookingCancelled:
		if err := s.referrals.Restore(ctx, updated.UserID, updated.ID, updated.AppliedRewards); err != nil {
			s.logger.Error("failed to restore rewards of cancelled booking",
				zap.String("bookingId", updated.ID.Hex()), zap.Error(err))
		}
	case models.BookingCompleted:
		if err := s.referrals.OnBookingCompleted(ctx, updated); err != nil {
			s.logger.Warn("referral reward processing failed, reconciler will retry",
				zap.String("bookingId", updated.ID.Hex()), zap.Error(err))
		}
	}
	return updated, nil
}

// Cancel lets the owner cancel a pending or confirmed booking.
func (s *BookingService) Cancel(ctx context.Context, userID, id primitive.ObjectID, reason string) (*models.Booking, error) {
	b, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "booking not found")
	}
	if b.UserID != userID {
		return nil, newError(ErrForbidden, "you do not have access to this booking")
	}
	updated, err := s.transition(ctx, b, models.BookingCancelled, userID, "cancelled by customer", reason)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, updated, "Booking cancelled",
		fmt.Sprintf("Your booking for %s was cancelled.", updated.PackageTitle),
		models.NotificationBookingStatus)
	return updated, nil
}

// UpdateStatus is the admin status change.
func (s *BookingService) UpdateStatus(ctx context.Context, adminID, id primitive.ObjectID, req models.BookingStatusUpdateRequest) (*models.Booking, error) {
	b, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "booking not found")
	}
	updated, err := s.transition(ctx, b, req.Status, adminID, req.Note, req.Note)
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking status changed",
		zap.String("bookingId", id.Hex()),
		zap.String("from", string(b.Status)),
		zap.String("to", string(updated.Status)))
	s.notify(ctx, updated, "Booking update",
		fmt.Sprintf("Your booking for %s is now %s.", updated.PackageTitle, updated.Status),
		models.NotificationBookingStatus)
	return updated, nil
}

// Delete removes a cancelled booking.
func (s *BookingService) Delete(ctx context.Context, id primitive.ObjectID) error {
	ok, err := s.bookings.DeleteCancelled(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := s.bookings.FindByID(ctx, id); err != nil {
		return notFound(err, "booking not found")
	}
	return newError(ErrConflict, "only cancelled bookings can be deleted")
}
