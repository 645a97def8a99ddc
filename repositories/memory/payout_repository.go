package memory

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
)

type PayoutRepository struct {
	db *DB
}

func clonePayout(p *models.PayoutRequest) *models.PayoutRequest {
	c := *p
	c.RewardIDs = append([]primitive.ObjectID{}, p.RewardIDs...)
	return &c
}

// Create mirrors the partial unique index: one pending request per user.
func (r *PayoutRepository) Create(ctx context.Context, p *models.PayoutRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if p.Status == models.PayoutPending {
		for _, other := range r.db.payouts {
			if other.UserID == p.UserID && other.Status == models.PayoutPending {
				return repositories.ErrDuplicate
			}
		}
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	r.db.payouts[p.ID] = clonePayout(p)
	return nil
}

func (r *PayoutRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PayoutRequest, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.payouts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return clonePayout(p), nil
}

func (r *PayoutRepository) List(ctx context.Context, f models.PayoutFilter, page models.Pagination) ([]models.PayoutRequest, int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var matched []models.PayoutRequest
	for _, p := range r.db.payouts {
		if f.UserID != nil && p.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		matched = append(matched, *clonePayout(p))
	}
	out, total := paginate(matched, func(a, b models.PayoutRequest) bool { return a.CreatedAt.After(b.CreatedAt) }, page)
	return out, total, nil
}

func (r *PayoutRepository) HasPending(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, p := range r.db.payouts {
		if p.UserID == userID && p.Status == models.PayoutPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *PayoutRepository) Resolve(ctx context.Context, id primitive.ObjectID, res models.PayoutResolution) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.payouts[id]
	if !ok || p.Status != models.PayoutPending {
		return false, nil
	}
	p.Status = res.Status
	p.PaidAmount = res.PaidAmount
	adminID := res.AdminID
	p.AdminID = &adminID
	at := res.At
	p.ProcessedAt = &at
	if res.RewardIDs != nil {
		p.RewardIDs = append([]primitive.ObjectID{}, res.RewardIDs...)
	}
	if res.Reference != "" {
		p.Reference = res.Reference
	}
	if res.AdminNote != "" {
		p.AdminNote = res.AdminNote
	}
	if res.RejectionReason != "" {
		p.RejectionReason = res.RejectionReason
	}
	return true, nil
}
