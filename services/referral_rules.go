package services

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/models"
)

// Ledger entry idempotency keys.
const (
	refereeBonusKey = "referee_bonus"
)

func referralKey(refereeID string) string { return "referral:" + refereeID }
func milestoneKey(m int) string          { return "milestone:" + strconv.Itoa(m) }

// allowedTransitions lists every legal ledger status change.
var allowedTransitions = map[models.RewardStatus][]models.RewardStatus{
	models.RewardPending:  {models.RewardCredited, models.RewardRejected, models.RewardExpired},
	models.RewardCredited: {models.RewardUsed, models.RewardPaid, models.RewardExpired},
	models.RewardUsed:     {models.RewardCredited},
}

// CanTransition reports whether an entry may move from one status to another.
func CanTransition(from, to models.RewardStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// bucket returns the balance a status is counted in.
func bucket(d *models.BalanceDelta, s models.RewardStatus) *models.Money {
	switch s {
	case models.RewardPending:
		return &d.Pending
	case models.RewardCredited:
		return &d.Available
	case models.RewardUsed:
		return &d.Used
	case models.RewardPaid:
		return &d.Paid
	case models.RewardExpired:
		return &d.Expired
	}
	return nil
}

// TransitionDelta is the balance change of moving amount from one status to
// another. totalEarned grows only when a pending entry is credited; entries
// appended as credited count as earned through InitialDelta.
func TransitionDelta(from, to models.RewardStatus, amount models.Money) (models.BalanceDelta, error) {
	if !CanTransition(from, to) {
		return models.BalanceDelta{}, newError(ErrInvalidTransition, "cannot move a reward from %s to %s", from, to)
	}
	var d models.BalanceDelta
	if b := bucket(&d, from); b != nil {
		*b = b.Sub(amount)
	}
	if b := bucket(&d, to); b != nil {
		*b = b.Add(amount)
	}
	if from == models.RewardPending && to == models.RewardCredited {
		d.Earned = amount
	}
	return d, nil
}

// InitialDelta is the balance change of appending an entry in status.
func InitialDelta(status models.RewardStatus, amount models.Money) models.BalanceDelta {
	var d models.BalanceDelta
	switch status {
	case models.RewardPending:
		d.Pending = amount
	case models.RewardCredited:
		d.Available = amount
		d.Earned = amount
	}
	return d
}

// TierFor returns the tier for a referral count. tiers must be sorted by
// MinCount ascending.
func TierFor(count int, tiers []config.TierThreshold) models.Tier {
	tier := models.TierBronze
	for _, t := range tiers {
		if count >= t.MinCount {
			tier = t.Tier
		}
	}
	return tier
}

// NextTier returns the next tier above count and how many referrals it
// takes to get there. ok is false at the top tier.
func NextTier(count int, tiers []config.TierThreshold) (next models.Tier, remaining int, ok bool) {
	for _, t := range tiers {
		if t.MinCount > count {
			return t.Tier, t.MinCount - count, true
		}
	}
	return "", 0, false
}

// Multiplier returns the reward multiplier of a tier, 1 if unset.
func Multiplier(tier models.Tier, multipliers map[models.Tier]float64) float64 {
	if m, ok := multipliers[tier]; ok && m > 0 {
		return m
	}
	return 1
}

// ReferrerReward is the amount a referrer earns for one successful
// referral while holding tier.
func ReferrerReward(cfg config.ReferralSettings, tier models.Tier) models.Money {
	return cfg.ReferrerReward.MulFloat(Multiplier(tier, cfg.TierMultipliers))
}

// MilestonesDue returns configured milestones reached by count and not yet
// in achieved, in ascending order.
func MilestonesDue(count int, achieved []int, milestones []config.Milestone) []config.Milestone {
	done := map[int]bool{}
	for _, m := range achieved {
		done[m] = true
	}
	var due []config.Milestone
	for _, m := range milestones {
		if m.Count <= count && !done[m.Count] {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Count < due[j].Count })
	return due
}

// NextMilestone returns the first milestone above count.
func NextMilestone(count int, milestones []config.Milestone) (config.Milestone, bool) {
	for _, m := range milestones {
		if m.Count > count {
			return m, true
		}
	}
	return config.Milestone{}, false
}

// initialStatus is the status new entries start in.
func initialStatus(cfg config.ReferralSettings) models.RewardStatus {
	if cfg.RequireApproval {
		return models.RewardPending
	}
	return models.RewardCredited
}

// expiryFrom returns start+TTL, or nil when expiry is disabled.
func expiryFrom(cfg config.ReferralSettings, start time.Time) *time.Time {
	if cfg.RewardTTL <= 0 {
		return nil
	}
	exp := start.Add(cfg.RewardTTL)
	return &exp
}

// selectCredited picks credited entries, soonest expiry first (entries
// without expiry last, then oldest), whose cumulative amount stays within
// max.
func selectCredited(entries []models.RewardEntry, max models.Money) ([]models.RewardEntry, models.Money) {
	var credited []models.RewardEntry
	for _, e := range entries {
		if e.Status == models.RewardCredited && e.Amount.IsPositive() {
			credited = append(credited, e)
		}
	}
	sort.SliceStable(credited, func(i, j int) bool {
		a, b := credited[i], credited[j]
		switch {
		case a.ExpiresAt != nil && b.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt):
			return a.ExpiresAt.Before(*b.ExpiresAt)
		case a.ExpiresAt != nil && b.ExpiresAt == nil:
			return true
		case a.ExpiresAt == nil && b.ExpiresAt != nil:
			return false
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	var picked []models.RewardEntry
	total := models.ZeroMoney
	for _, e := range credited {
		next := total.Add(e.Amount)
		if next.GreaterThan(max) {
			continue
		}
		picked = append(picked, e)
		total = next
	}
	return picked, total
}

func rewardDescription(kind models.RewardKind, detail string) string {
	switch kind {
	case models.RewardKindReferral:
		return fmt.Sprintf("Referral reward: %s completed their first booking", detail)
	case models.RewardKindReferee:
		return "Welcome bonus for completing your first booking"
	case models.RewardKindMilestone:
		return fmt.Sprintf("Milestone bonus: %s successful referrals", detail)
	}
	return string(kind)
}
