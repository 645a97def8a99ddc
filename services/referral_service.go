package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
	"github.com/HSouheill/travel_booking_backend/utils"
)

const (
	codeAttempts     = 5
	tierSyncAttempts = 5
	sweepBatchSize   = 200
	reconcileBatch   = 100
	reconcileLock    = "referral-reconcile"
	expiryLock       = "referral-expiry"
	orphanLock       = "referral-orphans"
	sweepLockTTL     = 5 * time.Minute

	// orphanGrace must exceed the time a booking takes to record its
	// redeemed rewards.
	orphanGrace  = 10 * time.Minute
	orphanWindow = 7 * 24 * time.Hour
)

// ReferralService runs the referral program: codes, linking, reward
// crediting on first completed bookings, milestones, tiers and every ledger
// transition.
type ReferralService struct {
	users    UserStore
	ledger   LedgerStore
	bookings BookingStore
	notifier Notifier
	locker   *utils.Locker
	cfg      config.ReferralSettings
	baseURL  string
	logger   *zap.Logger
	now      func() time.Time
}

func NewReferralService(stores Stores, notifier Notifier, locker *utils.Locker, cfg config.ReferralSettings, baseURL string, logger *zap.Logger) *ReferralService {
	return &ReferralService{
		users:    stores.Users,
		ledger:   stores.Ledger,
		bookings: stores.Bookings,
		notifier: notifier,
		locker:   locker,
		cfg:      cfg,
		baseURL:  baseURL,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ReferralService) notify(ctx context.Context, userID primitive.ObjectID, title, message, notifType string, data map[string]string) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, title, message, notifType, data)
	}
}

// EnsureCode gives the user a referral code if they have none yet and
// returns it. A code never changes once set.
func (s *ReferralService) EnsureCode(ctx context.Context, userID primitive.ObjectID) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", notFound(err, "user not found")
	}
	if user.Referral.Code != "" {
		return user.Referral.Code, nil
	}

	for i := 0; i < codeAttempts; i++ {
		code, err := utils.GenerateReferralCode(utils.UserType)
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}
		ok, err := s.ledger.SetReferralCode(ctx, userID, code)
		if errors.Is(err, repositories.ErrDuplicate) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("set referral code: %w", err)
		}
		if !ok {
			// Someone else assigned one first.
			user, err = s.users.FindByID(ctx, userID)
			if err != nil {
				return "", err
			}
			return user.Referral.Code, nil
		}
		return code, nil
	}
	return "", newError(ErrUnavailable, "could not allocate a unique referral code")
}

// ValidateCode returns the owner of a referral code.
func (s *ReferralService) ValidateCode(ctx context.Context, code string) (*models.User, error) {
	code = utils.NormalizeReferralCode(code)
	if !utils.IsReferralCodeFormat(code) {
		return nil, newError(ErrNotFound, "referral code not found")
	}
	referrer, err := s.users.FindByReferralCode(ctx, code)
	if err != nil {
		return nil, notFound(err, "referral code not found")
	}
	return referrer, nil
}

// ApplyReferralCode links userID to the owner of code.
func (s *ReferralService) ApplyReferralCode(ctx context.Context, userID primitive.ObjectID, code string) (*models.User, error) {
	referrer, err := s.ValidateCode(ctx, code)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}

	if referrer.ID == user.ID {
		return nil, newError(ErrValidation, "you cannot use your own referral code")
	}
	if user.Referral.ReferredBy != nil {
		return nil, newError(ErrConflict, "a referral code has already been applied to this account")
	}
	if referrer.Referral.ReferredBy != nil && *referrer.Referral.ReferredBy == user.ID {
		return nil, newError(ErrValidation, "you cannot use the code of a user you referred")
	}

	now := s.now()
	if s.cfg.LinkWindow > 0 && now.Sub(user.CreatedAt) > s.cfg.LinkWindow {
		return nil, newError(ErrValidation, "referral codes can only be applied within %d days of signing up", int(s.cfg.LinkWindow.Hours()/24))
	}
	completed, err := s.bookings.HasCompleted(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if completed {
		return nil, newError(ErrValidation, "referral codes cannot be applied after completing a booking")
	}

	ok, err := s.ledger.SetReferrer(ctx, user.ID, referrer.ID, now)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	if !ok {
		return nil, newError(ErrConflict, "a referral code has already been applied to this account")
	}
	// The referrer may have applied this user's code at the same moment.
	if err := s.undoCycle(ctx, user.ID, referrer.ID); err != nil {
		return nil, err
	}

	s.logger.Info("referral linked",
		zap.String("userId", user.ID.Hex()),
		zap.String("referrerId", referrer.ID.Hex()))
	s.notify(ctx, referrer.ID, "New referral",
		fmt.Sprintf("%s joined with your referral code. You will be rewarded after their first completed trip.", firstName(user.FullName)),
		models.NotificationReferralJoined,
		map[string]string{"refereeId": user.ID.Hex()})

	public := referrer.PublicWithoutLedger()
	return &public, nil
}

// undoCycle removes the fresh link userID -> referrerID when the referrer
// turns out to be referred by userID.
func (s *ReferralService) undoCycle(ctx context.Context, userID, referrerID primitive.ObjectID) error {
	referrer, err := s.users.FindByID(ctx, referrerID)
	if err != nil {
		return fmt.Errorf("reload referrer: %w", err)
	}
	if referrer.Referral.ReferredBy == nil || *referrer.Referral.ReferredBy != userID {
		return nil
	}
	if _, err := s.ledger.ClearReferrer(ctx, userID, referrerID); err != nil {
		return fmt.Errorf("undo referral link: %w", err)
	}
	s.logger.Warn("referral cycle undone",
		zap.String("userId", userID.Hex()),
		zap.String("referrerId", referrerID.Hex()))
	return newError(ErrValidation, "you cannot use the code of a user you referred")
}

// Summary builds the referral page of a user.
func (s *ReferralService) Summary(ctx context.Context, userID primitive.ObjectID) (*models.ReferralSummary, error) {
	if _, err := s.EnsureCode(ctx, userID); err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	ref := user.Referral

	tier := TierFor(ref.Count, s.cfg.Tiers)
	summary := &models.ReferralSummary{
		Code:                     ref.Code,
		Link:                     utils.ReferralLink(s.baseURL, ref.Code),
		Count:                    ref.Count,
		Tier:                     tier,
		MilestonesAchieved:       ref.MilestonesAchieved,
		PendingBalance:           ref.PendingBalance,
		AvailableBalance:         ref.AvailableBalance,
		TotalEarned:              ref.TotalEarned,
		TotalUsed:                ref.TotalUsed,
		TotalPaid:                ref.TotalPaid,
		TotalExpired:             ref.TotalExpired,
		CurrentRewardPerReferral: ReferrerReward(s.cfg, tier),
	}
	if summary.MilestonesAchieved == nil {
		summary.MilestonesAchieved = []int{}
	}
	if next, remaining, ok := NextTier(ref.Count, s.cfg.Tiers); ok {
		summary.NextTier = next
		summary.ReferralsToNextTier = remaining
	}
	if m, ok := NextMilestone(ref.Count, s.cfg.Milestones); ok {
		summary.NextMilestone = m.Count
		summary.ReferralsToMilestone = m.Count - ref.Count
		summary.NextMilestoneReward = m.Reward
	}
	return summary, nil
}

// History lists the caller's ledger entries, newest first.
func (s *ReferralService) History(ctx context.Context, userID primitive.ObjectID, status models.RewardStatus, kind models.RewardKind, page models.Pagination) ([]models.RewardEntry, int64, error) {
	records, total, err := s.ledger.ListRewards(ctx, models.RewardFilter{UserID: &userID, Status: status, Kind: kind}, page)
	if err != nil {
		return nil, 0, err
	}
	entries := make([]models.RewardEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, r.Entry)
	}
	return entries, total, nil
}

// Referees lists the users referred by userID.
func (s *ReferralService) Referees(ctx context.Context, userID primitive.ObjectID, page models.Pagination) ([]models.Referee, int64, error) {
	users, total, err := s.ledger.ListReferees(ctx, userID, page)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]primitive.ObjectID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	completed, err := s.bookings.UsersWithCompleted(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	referees := make([]models.Referee, 0, len(users))
	for _, u := range users {
		referees = append(referees, models.Referee{
			ID:               u.ID,
			FullName:         u.FullName,
			JoinedAt:         u.CreatedAt,
			ReferredAt:       u.Referral.ReferredAt,
			CompletedBooking: completed[u.ID],
		})
	}
	return referees, total, nil
}

// QRCode returns the caller's referral link and its QR code as a data URL.
func (s *ReferralService) QRCode(ctx context.Context, userID primitive.ObjectID) (link, dataURL string, err error) {
	code, err := s.EnsureCode(ctx, userID)
	if err != nil {
		return "", "", err
	}
	link = utils.ReferralLink(s.baseURL, code)
	dataURL, err = utils.GenerateQRCodeDataURL(link, utils.DefaultQRSize)
	if err != nil {
		return "", "", fmt.Errorf("qr code: %w", err)
	}
	return link, dataURL, nil
}

// QRCodePNG renders the QR code of an existing referral code.
func (s *ReferralService) QRCodePNG(ctx context.Context, code string, size int) ([]byte, error) {
	referrer, err := s.ValidateCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if size <= 0 || size > 1000 {
		size = utils.DefaultQRSize
	}
	return utils.GenerateQRCodePNG(utils.ReferralLink(s.baseURL, referrer.Referral.Code), size)
}

func (s *ReferralService) newEntry(kind models.RewardKind, key string, amount models.Money, detail string, now time.Time) models.RewardEntry {
	status := initialStatus(s.cfg)
	return models.RewardEntry{
		ID:          primitive.NewObjectID(),
		Key:         key,
		Kind:        kind,
		Status:      status,
		Amount:      amount,
		Description: rewardDescription(kind, detail),
		ExpiresAt:   expiryFrom(s.cfg, now),
		History: []models.RewardStatusChange{
			{To: status, At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *ReferralService) notifyNewReward(ctx context.Context, userID primitive.ObjectID, entry models.RewardEntry) {
	data := map[string]string{
		"rewardId": entry.ID.Hex(),
		"amount":   entry.Amount.String(),
		"kind":     string(entry.Kind),
	}
	if entry.Status == models.RewardPending {
		s.notify(ctx, userID, "Reward pending",
			fmt.Sprintf("%s (%s) is waiting for approval.", entry.Description, entry.Amount),
			models.NotificationRewardPending, data)
		return
	}
	s.notify(ctx, userID, "Reward credited",
		fmt.Sprintf("%s: %s was added to your balance.", entry.Description, entry.Amount),
		models.NotificationRewardCredited, data)
}

// OnBookingCompleted credits the referral rewards earned by a completed
// booking. Each step is idempotent, so a failed run can be repeated until
// the booking is marked processed.
func (s *ReferralService) OnBookingCompleted(ctx context.Context, booking *models.Booking) error {
	if booking.Status != models.BookingCompleted {
		return newError(ErrInvalidTransition, "booking is not completed")
	}
	if booking.RewardProcessed {
		return nil
	}
	log := s.logger.With(zap.String("bookingId", booking.ID.Hex()))

	referee, err := s.users.FindByID(ctx, booking.UserID)
	if err != nil {
		return fmt.Errorf("load referee: %w", err)
	}
	if referee.Referral.ReferredBy == nil {
		return s.bookings.MarkRewardProcessed(ctx, booking.ID)
	}
	referrer, err := s.users.FindByID(ctx, *referee.Referral.ReferredBy)
	if errors.Is(err, repositories.ErrNotFound) {
		log.Warn("referrer no longer exists", zap.String("referrerId", referee.Referral.ReferredBy.Hex()))
		return s.bookings.MarkRewardProcessed(ctx, booking.ID)
	}
	if err != nil {
		return fmt.Errorf("load referrer: %w", err)
	}

	now := s.now()
	bookingID := booking.ID
	refereeID := referee.ID

	// Referrer reward, priced at the tier held before this referral.
	tierBefore := TierFor(referrer.Referral.Count, s.cfg.Tiers)
	amount := ReferrerReward(s.cfg, tierBefore)
	entry := s.newEntry(models.RewardKindReferral, referralKey(refereeID.Hex()), amount, firstName(referee.FullName), now)
	entry.RefereeID = &refereeID
	entry.BookingID = &bookingID

	appended, err := s.ledger.AppendReward(ctx, referrer.ID, entry, models.AppendOptions{
		Delta:          InitialDelta(entry.Status, amount),
		IncrementCount: true,
	})
	if err != nil {
		return fmt.Errorf("append referral reward: %w", err)
	}

	referrer, err = s.users.FindByID(ctx, referrer.ID)
	if err != nil {
		return fmt.Errorf("reload referrer: %w", err)
	}
	if !appended {
		// The key exists. If another booking earned it, this is not the
		// referee's first completed trip and nothing else is due.
		existing := entryByKey(referrer.Referral, referralKey(refereeID.Hex()))
		if existing == nil || existing.BookingID == nil || *existing.BookingID != bookingID {
			return s.bookings.MarkRewardProcessed(ctx, booking.ID)
		}
	} else {
		log.Info("referral reward added",
			zap.String("referrerId", referrer.ID.Hex()),
			zap.String("amount", amount.String()),
			zap.String("status", string(entry.Status)))
		s.notifyNewReward(ctx, referrer.ID, entry)
	}

	// Welcome bonus for the referee.
	if s.cfg.RefereeReward.IsPositive() {
		bonus := s.newEntry(models.RewardKindReferee, refereeBonusKey, s.cfg.RefereeReward, "", now)
		bonus.BookingID = &bookingID
		ok, err := s.ledger.AppendReward(ctx, refereeID, bonus, models.AppendOptions{
			Delta: InitialDelta(bonus.Status, bonus.Amount),
		})
		if err != nil {
			return fmt.Errorf("append referee bonus: %w", err)
		}
		if ok {
			s.notifyNewReward(ctx, refereeID, bonus)
		}
	}

	count := referrer.Referral.Count
	for _, m := range MilestonesDue(count, referrer.Referral.MilestonesAchieved, s.cfg.Milestones) {
		bonus := s.newEntry(models.RewardKindMilestone, milestoneKey(m.Count), m.Reward, strconv.Itoa(m.Count), now)
		ok, err := s.ledger.AppendReward(ctx, referrer.ID, bonus, models.AppendOptions{
			Delta:     InitialDelta(bonus.Status, bonus.Amount),
			Milestone: m.Count,
		})
		if err != nil {
			return fmt.Errorf("append milestone %d: %w", m.Count, err)
		}
		if ok {
			bonus.Milestone = m.Count
			log.Info("milestone achieved", zap.String("referrerId", referrer.ID.Hex()), zap.Int("milestone", m.Count))
			s.notify(ctx, referrer.ID, "Milestone reached",
				fmt.Sprintf("You reached %d successful referrals and earned a %s bonus.", m.Count, m.Reward),
				models.NotificationMilestoneAchieved,
				map[string]string{"milestone": strconv.Itoa(m.Count), "amount": m.Reward.String()})
		}
	}

	if err := s.syncTier(ctx, referrer); err != nil {
		return err
	}

	return s.bookings.MarkRewardProcessed(ctx, booking.ID)
}

// syncTier stores the tier matching the referral count. The write only
// applies while the count is the one the tier was computed from; when a
// concurrent referral moved it the user is reloaded and the tier recomputed.
func (s *ReferralService) syncTier(ctx context.Context, user *models.User) error {
	for attempt := 0; attempt < tierSyncAttempts; attempt++ {
		tier := TierFor(user.Referral.Count, s.cfg.Tiers)
		if tier == user.Referral.Tier {
			return nil
		}
		ok, err := s.ledger.SetTier(ctx, user.ID, user.Referral.Count, tier)
		if err != nil {
			return fmt.Errorf("set tier: %w", err)
		}
		if ok {
			s.notify(ctx, user.ID, "Tier upgraded",
				fmt.Sprintf("You are now %s. Each referral earns %s.", tier, ReferrerReward(s.cfg, tier)),
				models.NotificationTierUpgraded,
				map[string]string{"tier": string(tier)})
			return nil
		}
		if user, err = s.users.FindByID(ctx, user.ID); err != nil {
			return fmt.Errorf("reload for tier: %w", err)
		}
	}
	return fmt.Errorf("set tier: referral count of %s kept changing", user.ID.Hex())
}

func entryByKey(ref models.ReferralInfo, key string) *models.RewardEntry {
	for i := range ref.RewardHistory {
		if ref.RewardHistory[i].Key == key {
			return &ref.RewardHistory[i]
		}
	}
	return nil
}

// spendable filters out credited entries whose expiry already passed but
// that the sweep has not reached yet.
func spendable(entries []models.RewardEntry, now time.Time) []models.RewardEntry {
	out := make([]models.RewardEntry, 0, len(entries))
	for _, e := range entries {
		if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Redeem spends credited rewards on a booking, soonest expiry first, up to
// maxAmount. It returns the used entry ids and their total.
func (s *ReferralService) Redeem(ctx context.Context, userID, bookingID primitive.ObjectID, maxAmount models.Money) ([]primitive.ObjectID, models.Money, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, models.ZeroMoney, notFound(err, "user not found")
	}
	now := s.now()
	picked, _ := selectCredited(spendable(user.Referral.RewardHistory, now), maxAmount)

	ids := []primitive.ObjectID{}
	total := models.ZeroMoney
	for _, e := range picked {
		delta, err := TransitionDelta(models.RewardCredited, models.RewardUsed, e.Amount)
		if err != nil {
			return nil, models.ZeroMoney, err
		}
		ok, err := s.ledger.TransitionReward(ctx, userID, models.RewardTransition{
			EntryID:       e.ID,
			From:          models.RewardCredited,
			To:            models.RewardUsed,
			At:            now,
			By:            &userID,
			Note:          "used on booking " + bookingID.Hex(),
			Delta:         delta,
			UsedOnBooking: &bookingID,
		})
		if err != nil {
			if rerr := s.Restore(ctx, userID, bookingID, ids); rerr != nil {
				s.logger.Error("failed to restore rewards after redeem error", zap.Error(rerr))
			}
			return nil, models.ZeroMoney, fmt.Errorf("redeem reward: %w", err)
		}
		if !ok {
			continue
		}
		ids = append(ids, e.ID)
		total = total.Add(e.Amount)
	}
	return ids, total, nil
}

// Restore returns rewards used on a booking to the available balance.
func (s *ReferralService) Restore(ctx context.Context, userID, bookingID primitive.ObjectID, entryIDs []primitive.ObjectID) error {
	return s.restore(ctx, userID, bookingID, entryIDs, "booking "+bookingID.Hex()+" cancelled")
}

func (s *ReferralService) restore(ctx context.Context, userID, bookingID primitive.ObjectID, entryIDs []primitive.ObjectID, note string) error {
	if len(entryIDs) == 0 {
		return nil
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return notFound(err, "user not found")
	}
	now := s.now()
	for _, id := range entryIDs {
		e, ok := user.Referral.Entry(id)
		if !ok || e.Status != models.RewardUsed || e.UsedOnBooking == nil || *e.UsedOnBooking != bookingID {
			continue
		}
		delta, err := TransitionDelta(models.RewardUsed, models.RewardCredited, e.Amount)
		if err != nil {
			return err
		}
		if _, err := s.ledger.TransitionReward(ctx, userID, models.RewardTransition{
			EntryID:    id,
			From:       models.RewardUsed,
			To:         models.RewardCredited,
			At:         now,
			Note:       note,
			Delta:      delta,
			ClearUsage: true,
		}); err != nil {
			return fmt.Errorf("restore reward: %w", err)
		}
	}
	return nil
}

func (s *ReferralService) pendingEntry(ctx context.Context, userID, rewardID primitive.ObjectID) (*models.RewardEntry, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	entry, ok := user.Referral.Entry(rewardID)
	if !ok {
		return nil, newError(ErrNotFound, "reward not found")
	}
	if entry.Status != models.RewardPending {
		return nil, newError(ErrInvalidTransition, "reward is %s, only pending rewards can be reviewed", entry.Status)
	}
	return entry, nil
}

func (s *ReferralService) reloadEntry(ctx context.Context, userID, rewardID primitive.ObjectID) (*models.RewardEntry, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	entry, _ := user.Referral.Entry(rewardID)
	return entry, nil
}

// ApproveReward credits a pending entry. The expiry clock restarts at
// approval.
func (s *ReferralService) ApproveReward(ctx context.Context, adminID, userID, rewardID primitive.ObjectID, note string) (*models.RewardEntry, error) {
	entry, err := s.pendingEntry(ctx, userID, rewardID)
	if err != nil {
		return nil, err
	}
	delta, err := TransitionDelta(models.RewardPending, models.RewardCredited, entry.Amount)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ok, err := s.ledger.TransitionReward(ctx, userID, models.RewardTransition{
		EntryID:   rewardID,
		From:      models.RewardPending,
		To:        models.RewardCredited,
		At:        now,
		By:        &adminID,
		Note:      utils.SanitizeInput(note),
		Delta:     delta,
		ExpiresAt: expiryFrom(s.cfg, now),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(ErrConflict, "reward was changed by another request")
	}

	s.notify(ctx, userID, "Reward approved",
		fmt.Sprintf("%s was added to your available balance.", entry.Amount),
		models.NotificationRewardCredited,
		map[string]string{"rewardId": rewardID.Hex(), "amount": entry.Amount.String()})
	return s.reloadEntry(ctx, userID, rewardID)
}

// RejectReward refuses a pending entry.
func (s *ReferralService) RejectReward(ctx context.Context, adminID, userID, rewardID primitive.ObjectID, reason string) (*models.RewardEntry, error) {
	entry, err := s.pendingEntry(ctx, userID, rewardID)
	if err != nil {
		return nil, err
	}
	delta, err := TransitionDelta(models.RewardPending, models.RewardRejected, entry.Amount)
	if err != nil {
		return nil, err
	}
	reason = utils.SanitizeInput(reason)
	ok, err := s.ledger.TransitionReward(ctx, userID, models.RewardTransition{
		EntryID:         rewardID,
		From:            models.RewardPending,
		To:              models.RewardRejected,
		At:              s.now(),
		By:              &adminID,
		Note:            reason,
		Delta:           delta,
		RejectionReason: reason,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(ErrConflict, "reward was changed by another request")
	}

	s.notify(ctx, userID, "Reward rejected",
		fmt.Sprintf("A reward of %s was rejected: %s", entry.Amount, reason),
		models.NotificationRewardRejected,
		map[string]string{"rewardId": rewardID.Hex(), "amount": entry.Amount.String()})
	return s.reloadEntry(ctx, userID, rewardID)
}

// ExpireDue moves every pending or credited entry past its expiry to
// expired and returns how many were changed.
func (s *ReferralService) ExpireDue(ctx context.Context) (int, error) {
	release, ok, err := s.locker.TryLock(ctx, expiryLock, sweepLockTTL)
	if err != nil {
		return 0, fmt.Errorf("expiry lock: %w", err)
	}
	if !ok {
		return 0, nil
	}
	defer release()

	expired := 0
	for {
		now := s.now()
		records, err := s.ledger.FindExpiringRewards(ctx, now, sweepBatchSize)
		if err != nil {
			return expired, err
		}
		progressed := 0
		for _, r := range records {
			delta, err := TransitionDelta(r.Entry.Status, models.RewardExpired, r.Entry.Amount)
			if err != nil {
				continue
			}
			ok, err := s.ledger.TransitionReward(ctx, r.UserID, models.RewardTransition{
				EntryID: r.Entry.ID,
				From:    r.Entry.Status,
				To:      models.RewardExpired,
				At:      now,
				Note:    "expired",
				Delta:   delta,
			})
			if err != nil {
				return expired, fmt.Errorf("expire reward: %w", err)
			}
			if !ok {
				continue
			}
			progressed++
			s.notify(ctx, r.UserID, "Reward expired",
				fmt.Sprintf("A reward of %s has expired.", r.Entry.Amount),
				models.NotificationRewardExpired,
				map[string]string{"rewardId": r.Entry.ID.Hex(), "amount": r.Entry.Amount.String()})
		}
		expired += progressed
		if len(records) < sweepBatchSize || progressed == 0 {
			break
		}
	}
	if expired > 0 {
		s.logger.Info("expired referral rewards", zap.Int("count", expired))
	}
	return expired, nil
}

// ReconcileCompleted retries reward processing for completed bookings that
// were left unprocessed. Only one instance runs it at a time.
func (s *ReferralService) ReconcileCompleted(ctx context.Context) (int, error) {
	release, ok, err := s.locker.TryLock(ctx, reconcileLock, sweepLockTTL)
	if err != nil {
		return 0, fmt.Errorf("reconcile lock: %w", err)
	}
	if !ok {
		return 0, nil
	}
	defer release()

	processed := 0
	for {
		bookings, err := s.bookings.FindUnprocessedCompleted(ctx, reconcileBatch)
		if err != nil {
			return processed, err
		}
		progressed := 0
		for i := range bookings {
			if err := s.OnBookingCompleted(ctx, &bookings[i]); err != nil {
				s.logger.Warn("reconcile booking failed",
					zap.String("bookingId", bookings[i].ID.Hex()), zap.Error(err))
				continue
			}
			progressed++
		}
		processed += progressed
		if len(bookings) < reconcileBatch || progressed == 0 {
			break
		}
	}
	if processed > 0 {
		s.logger.Info("reconciled completed bookings", zap.Int("count", processed))
	}
	return processed, nil
}

// RestoreOrphaned gives back used rewards whose booking does not hold them:
// the booking was never stored, was cancelled, or lost the redemption. Only
// entries used more than orphanGrace ago are looked at, so redemptions still
// in flight are left alone.
func (s *ReferralService) RestoreOrphaned(ctx context.Context) (int, error) {
	release, ok, err := s.locker.TryLock(ctx, orphanLock, sweepLockTTL)
	if err != nil {
		return 0, fmt.Errorf("orphan lock: %w", err)
	}
	if !ok {
		return 0, nil
	}
	defer release()

	now := s.now()
	from, to := now.Add(-orphanWindow), now.Add(-orphanGrace)
	seen := map[primitive.ObjectID]bool{}
	bookings := map[primitive.ObjectID]*models.Booking{}
	restored := 0
	for {
		records, err := s.ledger.FindUsedRewards(ctx, from, to, sweepBatchSize)
		if err != nil {
			return restored, err
		}
		fresh := 0
		for _, rec := range records {
			e := rec.Entry
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			fresh++
			if e.UsedOnBooking == nil {
				continue
			}
			booking, cached := bookings[*e.UsedOnBooking]
			if !cached {
				booking, err = s.bookings.FindByID(ctx, *e.UsedOnBooking)
				if errors.Is(err, repositories.ErrNotFound) {
					booking = nil
				} else if err != nil {
					return restored, fmt.Errorf("load booking: %w", err)
				}
				bookings[*e.UsedOnBooking] = booking
			}
			if booking != nil && booking.Status != models.BookingCancelled && containsID(booking.AppliedRewards, e.ID) {
				continue
			}
			note := "booking " + e.UsedOnBooking.Hex() + " does not hold the reward"
			if err := s.restore(ctx, rec.UserID, *e.UsedOnBooking, []primitive.ObjectID{e.ID}, note); err != nil {
				s.logger.Warn("orphaned reward restore failed",
					zap.String("userId", rec.UserID.Hex()), zap.String("rewardId", e.ID.Hex()), zap.Error(err))
				continue
			}
			restored++
		}
		if len(records) < sweepBatchSize || fresh == 0 {
			break
		}
		// ties on updatedAt are skipped through seen
		from = records[len(records)-1].Entry.UpdatedAt
	}
	if restored > 0 {
		s.logger.Info("restored orphaned rewards", zap.Int("count", restored))
	}
	return restored, nil
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// ListRewards lists ledger entries across users for admins.
func (s *ReferralService) ListRewards(ctx context.Context, filter models.RewardFilter, page models.Pagination) ([]models.RewardRecord, int64, error) {
	return s.ledger.ListRewards(ctx, filter, page)
}

// Leaderboard returns the top referrers by successful referrals.
func (s *ReferralService) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > models.MaxPageLimit {
		limit = 10
	}
	users, err := s.ledger.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	board := make([]models.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		board = append(board, models.LeaderboardEntry{
			UserID:      u.ID,
			FullName:    u.FullName,
			Count:       u.Referral.Count,
			Tier:        TierFor(u.Referral.Count, s.cfg.Tiers),
			TotalEarned: u.Referral.TotalEarned,
		})
	}
	return board, nil
}

func (s *ReferralService) Stats(ctx context.Context) (*models.ReferralStats, error) {
	return s.ledger.Stats(ctx)
}

func firstName(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return "Someone"
	}
	return fields[0]
}

// RunSweeps expires due rewards and reconciles unprocessed bookings every
// interval until ctx is done.
func (s *ReferralService) RunSweeps(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireDue(ctx); err != nil {
				s.logger.Warn("reward expiry sweep failed", zap.Error(err))
			}
			if _, err := s.ReconcileCompleted(ctx); err != nil {
				s.logger.Warn("booking reconcile failed", zap.Error(err))
			}
			if _, err := s.RestoreOrphaned(ctx); err != nil {
				s.logger.Warn("orphaned reward sweep failed", zap.Error(err))
			}
		}
	}
}
