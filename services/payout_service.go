package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
	"github.com/HSouheill/travel_booking_backend/utils"
)

const payoutLockTTL = time.Minute

// PayoutService handles cash-out requests against credited rewards.
type PayoutService struct {
	users    UserStore
	ledger   LedgerStore
	payouts  PayoutStore
	notifier Notifier
	locker   *utils.Locker
	cfg      config.ReferralSettings
	logger   *zap.Logger
	now      func() time.Time
}

func NewPayoutService(stores Stores, notifier Notifier, locker *utils.Locker, cfg config.ReferralSettings, logger *zap.Logger) *PayoutService {
	return &PayoutService{
		users:    stores.Users,
		ledger:   stores.Ledger,
		payouts:  stores.Payouts,
		notifier: notifier,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Create files a payout request for the caller.
func (s *PayoutService) Create(ctx context.Context, userID primitive.ObjectID, req models.CreatePayoutRequest) (*models.PayoutRequest, error) {
	if !req.Amount.IsPositive() {
		return nil, newError(ErrValidation, "amount must be positive")
	}
	if req.Amount.LessThan(s.cfg.MinPayout) {
		return nil, newError(ErrValidation, "the minimum payout is %s", s.cfg.MinPayout)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	if req.Amount.GreaterThan(user.Referral.AvailableBalance) {
		return nil, newError(ErrValidation, "amount exceeds your available balance of %s", user.Referral.AvailableBalance)
	}
	pending, err := s.payouts.HasPending(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, newError(ErrConflict, "you already have a pending payout request")
	}

	p := &models.PayoutRequest{
		ID:             primitive.NewObjectID(),
		UserID:         userID,
		Amount:         req.Amount,
		PaidAmount:     models.ZeroMoney,
		Method:         req.Method,
		AccountDetails: utils.SanitizeInput(req.AccountDetails),
		Status:         models.PayoutPending,
		RewardIDs:      []primitive.ObjectID{},
		CreatedAt:      s.now(),
	}
	if err := s.payouts.Create(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, newError(ErrConflict, "you already have a pending payout request")
		}
		return nil, err
	}
	s.logger.Info("payout requested", zap.String("userId", userID.Hex()), zap.String("amount", p.Amount.String()))
	return p, nil
}

func (s *PayoutService) List(ctx context.Context, filter models.PayoutFilter, page models.Pagination) ([]models.PayoutRequest, int64, error) {
	return s.payouts.List(ctx, filter, page)
}

func (s *PayoutService) pending(ctx context.Context, id primitive.ObjectID) (*models.PayoutRequest, error) {
	p, err := s.payouts.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "payout request not found")
	}
	if p.Status != models.PayoutPending {
		return nil, newError(ErrInvalidTransition, "payout request is already %s", p.Status)
	}
	return p, nil
}

// Approve pays out a pending request by moving credited entries, soonest
// expiry first, to paid until the requested amount is covered.
func (s *PayoutService) Approve(ctx context.Context, adminID, payoutID primitive.ObjectID, req models.ApprovePayoutRequest) (*models.PayoutRequest, error) {
	release, ok, err := s.locker.TryLock(ctx, "payout:"+payoutID.Hex(), payoutLockTTL)
	if err != nil {
		return nil, fmt.Errorf("payout lock: %w", err)
	}
	if !ok {
		return nil, newError(ErrConflict, "payout request is being processed")
	}
	defer release()

	p, err := s.pending(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	now := s.now()
	// Entries paid by an earlier, interrupted approval of this request count
	// toward it, so a retry only pays the remainder.
	ids, paid := paidForPayout(user.Referral.RewardHistory, payoutID)
	remaining := p.Amount.Sub(paid)
	var picked []models.RewardEntry
	if remaining.IsPositive() {
		picked, _ = selectCredited(spendable(user.Referral.RewardHistory, now), remaining)
	}
	covered := paid
	for _, e := range picked {
		covered = covered.Add(e.Amount)
	}
	if covered.LessThan(s.cfg.MinPayout) {
		return nil, newError(ErrConflict, "available rewards no longer cover the minimum payout of %s", s.cfg.MinPayout)
	}

	for _, e := range picked {
		delta, err := TransitionDelta(models.RewardCredited, models.RewardPaid, e.Amount)
		if err != nil {
			return nil, err
		}
		ok, err := s.ledger.TransitionReward(ctx, p.UserID, models.RewardTransition{
			EntryID:  e.ID,
			From:     models.RewardCredited,
			To:       models.RewardPaid,
			At:       now,
			By:       &adminID,
			Note:     "payout " + payoutID.Hex(),
			Delta:    delta,
			PayoutID: &payoutID,
		})
		if err != nil {
			return nil, fmt.Errorf("pay reward: %w", err)
		}
		if ok {
			ids = append(ids, e.ID)
			paid = paid.Add(e.Amount)
		}
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = "PAY-" + strings.ToUpper(uuid.NewString()[:8])
	}
	resolved, err := s.payouts.Resolve(ctx, payoutID, models.PayoutResolution{
		Status:     models.PayoutPaid,
		PaidAmount: paid,
		RewardIDs:  ids,
		Reference:  utils.SanitizeInput(reference),
		AdminID:    adminID,
		AdminNote:  utils.SanitizeInput(req.Note),
		At:         now,
	})
	if err != nil {
		return nil, err
	}
	if !resolved {
		s.logger.Error("payout resolved concurrently after rewards were paid",
			zap.String("payoutId", payoutID.Hex()), zap.Int("rewards", len(ids)))
		return nil, newError(ErrConflict, "payout request was changed by another request")
	}

	s.logger.Info("payout paid",
		zap.String("payoutId", payoutID.Hex()),
		zap.String("userId", p.UserID.Hex()),
		zap.String("paid", paid.String()))
	if s.notifier != nil {
		s.notifier.Notify(ctx, p.UserID, "Payout sent",
			fmt.Sprintf("Your payout of %s has been sent. Reference: %s", paid, reference),
			models.NotificationPayoutPaid,
			map[string]string{"payoutId": payoutID.Hex(), "amount": paid.String()})
		s.notifier.Email(user.Email, "Your referral payout has been sent",
			fmt.Sprintf("Hello %s,\n\nWe have sent %s to your %s account.\nReference: %s\n", firstName(user.FullName), paid, p.Method, reference))
	}
	return s.payouts.FindByID(ctx, payoutID)
}

// Reject refuses a pending request. No ledger entry changes.
func (s *PayoutService) Reject(ctx context.Context, adminID, payoutID primitive.ObjectID, reason string) (*models.PayoutRequest, error) {
	p, err := s.pending(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	if ids, _ := paidForPayout(user.Referral.RewardHistory, payoutID); len(ids) > 0 {
		return nil, newError(ErrConflict, "payout request is partially paid, approve it to finish")
	}
	reason = utils.SanitizeInput(reason)
	ok, err := s.payouts.Resolve(ctx, payoutID, models.PayoutResolution{
		Status:          models.PayoutRejected,
		PaidAmount:      models.ZeroMoney,
		RewardIDs:       []primitive.ObjectID{},
		AdminID:         adminID,
		RejectionReason: reason,
		At:              s.now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(ErrConflict, "payout request was changed by another request")
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, p.UserID, "Payout rejected",
			fmt.Sprintf("Your payout request of %s was rejected: %s", p.Amount, reason),
			models.NotificationPayoutRejected,
			map[string]string{"payoutId": payoutID.Hex()})
		s.notifier.Email(user.Email, "Your referral payout request was rejected",
			fmt.Sprintf("Hello %s,\n\nYour payout request of %s was rejected.\nReason: %s\n", firstName(user.FullName), p.Amount, reason))
	}
	return s.payouts.FindByID(ctx, payoutID)
}

// paidForPayout returns the entries already paid out under payoutID and
// their total.
func paidForPayout(entries []models.RewardEntry, payoutID primitive.ObjectID) ([]primitive.ObjectID, models.Money) {
	ids := []primitive.ObjectID{}
	total := models.ZeroMoney
	for _, e := range entries {
		if e.Status == models.RewardPaid && e.PayoutID != nil && *e.PayoutID == payoutID {
			ids = append(ids, e.ID)
			total = total.Add(e.Amount)
		}
	}
	return ids, total
}
