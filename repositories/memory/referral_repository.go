package memory

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
)

type ReferralRepository struct {
	db *DB
}

func (r *ReferralRepository) SetReferralCode(ctx context.Context, userID primitive.ObjectID, code string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[userID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if u.Referral.Code != "" {
		return false, nil
	}
	for id, other := range r.db.users {
		if id != userID && other.Referral.Code == code {
			return false, repositories.ErrDuplicate
		}
	}
	u.Referral.Code = code
	u.UpdatedAt = time.Now()
	return true, nil
}

func (r *ReferralRepository) SetReferrer(ctx context.Context, userID, referrerID primitive.ObjectID, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[userID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if u.Referral.ReferredBy != nil {
		return false, nil
	}
	ref := referrerID
	when := at
	u.Referral.ReferredBy = &ref
	u.Referral.ReferredAt = &when
	u.UpdatedAt = at
	return true, nil
}

func (r *ReferralRepository) ClearReferrer(ctx context.Context, userID, referrerID primitive.ObjectID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[userID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if u.Referral.ReferredBy == nil || *u.Referral.ReferredBy != referrerID {
		return false, nil
	}
	u.Referral.ReferredBy = nil
	u.Referral.ReferredAt = nil
	u.UpdatedAt = time.Now()
	return true, nil
}

func (r *ReferralRepository) AppendReward(ctx context.Context, userID primitive.ObjectID, entry models.RewardEntry, opts models.AppendOptions) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[userID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if u.Referral.HasKey(entry.Key) {
		return false, nil
	}
	if opts.Milestone > 0 && u.Referral.HasMilestone(opts.Milestone) {
		return false, nil
	}

	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.History == nil {
		entry.History = []models.RewardStatusChange{}
	}
	u.Referral.RewardHistory = append(u.Referral.RewardHistory, cloneEntry(entry))
	applyDelta(&u.Referral, opts.Delta)
	if opts.IncrementCount {
		u.Referral.Count++
	}
	if opts.Milestone > 0 {
		u.Referral.MilestonesAchieved = append(u.Referral.MilestonesAchieved, opts.Milestone)
	}
	u.UpdatedAt = entry.CreatedAt
	return true, nil
}

func (r *ReferralRepository) TransitionReward(ctx context.Context, userID primitive.ObjectID, t models.RewardTransition) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[userID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	e, ok := u.Referral.Entry(t.EntryID)
	if !ok || e.Status != t.From {
		return false, nil
	}

	e.Status = t.To
	e.UpdatedAt = t.At
	if t.ExpiresAt != nil {
		exp := *t.ExpiresAt
		e.ExpiresAt = &exp
	}
	if t.UsedOnBooking != nil {
		id := *t.UsedOnBooking
		e.UsedOnBooking = &id
	}
	if t.ClearUsage {
		e.UsedOnBooking = nil
	}
	if t.PayoutID != nil {
		id := *t.PayoutID
		e.PayoutID = &id
	}
	if t.RejectionReason != "" {
		e.RejectionReason = t.RejectionReason
	}
	e.History = append(e.History, models.RewardStatusChange{
		From: t.From,
		To:   t.To,
		At:   t.At,
		By:   t.By,
		Note: t.Note,
	})
	applyDelta(&u.Referral, t.Delta)
	u.UpdatedAt = t.At
	return true, nil
}

func applyDelta(ref *models.ReferralInfo, d models.BalanceDelta) {
	ref.PendingBalance = ref.PendingBalance.Add(d.Pending)
	ref.AvailableBalance = ref.AvailableBalance.Add(d.Available)
	ref.TotalEarned = ref.TotalEarned.Add(d.Earned)
	ref.TotalUsed = ref.TotalUsed.Add(d.Used)
	ref.TotalPaid = ref.TotalPaid.Add(d.Paid)
	ref.TotalExpired = ref.TotalExpired.Add(d.Expired)
}

func (r *ReferralRepository) SetTier(ctx context.Context, userID primitive.ObjectID, count int, tier models.Tier) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[userID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if u.Referral.Count != count {
		return false, nil
	}
	u.Referral.Tier = tier
	u.UpdatedAt = time.Now()
	return true, nil
}

func (r *ReferralRepository) ListReferees(ctx context.Context, referrerID primitive.ObjectID, page models.Pagination) ([]models.User, int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var matched []models.User
	for _, u := range r.db.users {
		if u.Referral.ReferredBy != nil && *u.Referral.ReferredBy == referrerID {
			matched = append(matched, cloneUser(u).PublicWithoutLedger())
		}
	}
	users, total := paginate(matched, func(a, b models.User) bool {
		return referredAt(a).After(referredAt(b))
	}, page)
	return users, total, nil
}

func referredAt(u models.User) time.Time {
	if u.Referral.ReferredAt == nil {
		return time.Time{}
	}
	return *u.Referral.ReferredAt
}

func (r *ReferralRepository) records(userID *primitive.ObjectID, match func(models.RewardEntry) bool) []models.RewardRecord {
	var out []models.RewardRecord
	for _, u := range r.db.users {
		if userID != nil && u.ID != *userID {
			continue
		}
		for _, e := range u.Referral.RewardHistory {
			if !match(e) {
				continue
			}
			out = append(out, models.RewardRecord{
				UserID:    u.ID,
				UserEmail: u.Email,
				UserName:  u.FullName,
				Entry:     cloneEntry(e),
			})
		}
	}
	return out
}

func (r *ReferralRepository) ListRewards(ctx context.Context, f models.RewardFilter, page models.Pagination) ([]models.RewardRecord, int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	matched := r.records(f.UserID, func(e models.RewardEntry) bool {
		return (f.Status == "" || e.Status == f.Status) && (f.Kind == "" || e.Kind == f.Kind)
	})
	records, total := paginate(matched, func(a, b models.RewardRecord) bool {
		return a.Entry.CreatedAt.After(b.Entry.CreatedAt)
	}, page)
	return records, total, nil
}

func (r *ReferralRepository) FindExpiringRewards(ctx context.Context, now time.Time, limit int) ([]models.RewardRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	matched := r.records(nil, func(e models.RewardEntry) bool {
		return (e.Status == models.RewardPending || e.Status == models.RewardCredited) &&
			e.ExpiresAt != nil && e.ExpiresAt.Before(now)
	})
	return firstN(matched, func(a, b models.RewardRecord) bool {
		return a.Entry.ExpiresAt.Before(*b.Entry.ExpiresAt)
	}, limit), nil
}

func (r *ReferralRepository) FindUsedRewards(ctx context.Context, from, to time.Time, limit int) ([]models.RewardRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	matched := r.records(nil, func(e models.RewardEntry) bool {
		return e.Status == models.RewardUsed && !e.UpdatedAt.Before(from) && e.UpdatedAt.Before(to)
	})
	return firstN(matched, func(a, b models.RewardRecord) bool {
		return a.Entry.UpdatedAt.Before(b.Entry.UpdatedAt)
	}, limit), nil
}

func (r *ReferralRepository) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var matched []models.User
	for _, u := range r.db.users {
		if u.Referral.Count > 0 {
			matched = append(matched, cloneUser(u).PublicWithoutLedger())
		}
	}
	return firstN(matched, func(a, b models.User) bool {
		if a.Referral.Count != b.Referral.Count {
			return a.Referral.Count > b.Referral.Count
		}
		return a.Referral.TotalEarned.GreaterThan(b.Referral.TotalEarned)
	}, limit), nil
}

func (r *ReferralRepository) Stats(ctx context.Context) (*models.ReferralStats, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	stats := &models.ReferralStats{
		UsersByTier:     map[models.Tier]int64{},
		EntriesByStatus: map[models.RewardStatus]int64{},
		AmountByStatus:  map[models.RewardStatus]models.Money{},
	}
	for _, u := range r.db.users {
		tier := u.Referral.Tier
		if tier == "" {
			tier = models.TierBronze
		}
		stats.UsersByTier[tier]++
		for _, e := range u.Referral.RewardHistory {
			stats.EntriesByStatus[e.Status]++
			stats.AmountByStatus[e.Status] = stats.AmountByStatus[e.Status].Add(e.Amount)
		}
	}
	return stats, nil
}
