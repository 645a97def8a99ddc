package memory

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
)

type BookingRepository struct {
	db *DB
}

func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	if _, exists := r.db.bookings[b.ID]; exists {
		return repositories.ErrDuplicate
	}
	r.db.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (r *BookingRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	b, ok := r.db.bookings[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneBooking(b), nil
}

func matchBooking(b *models.Booking, f models.BookingFilter) bool {
	if f.UserID != nil && b.UserID != *f.UserID {
		return false
	}
	if f.PackageID != nil && b.PackageID != *f.PackageID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.TravelFrom != nil && b.TravelDate.Before(*f.TravelFrom) {
		return false
	}
	if f.TravelTo != nil && b.TravelDate.After(*f.TravelTo) {
		return false
	}
	return true
}

func (r *BookingRepository) List(ctx context.Context, f models.BookingFilter, page models.Pagination) ([]models.Booking, int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var matched []models.Booking
	for _, b := range r.db.bookings {
		if matchBooking(b, f) {
			matched = append(matched, *cloneBooking(b))
		}
	}
	bookings, total := paginate(matched, func(a, b models.Booking) bool { return a.CreatedAt.After(b.CreatedAt) }, page)
	return bookings, total, nil
}

func (r *BookingRepository) CountByStatus(ctx context.Context, f models.BookingFilter) (map[models.BookingStatus]int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	f.Status = ""
	counts := map[models.BookingStatus]int64{}
	for _, b := range r.db.bookings {
		if matchBooking(b, f) {
			counts[b.Status]++
		}
	}
	return counts, nil
}

func (r *BookingRepository) Transition(ctx context.Context, id primitive.ObjectID, t models.BookingStatusTransition) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.bookings[id]
	if !ok || b.Status != t.From {
		return false, nil
	}
	b.Status = t.To
	b.UpdatedAt = t.At
	at := t.At
	switch t.To {
	case models.BookingCompleted:
		b.CompletedAt = &at
	case models.BookingCancelled:
		b.CancelledAt = &at
		if t.CancellationReason != "" {
			b.CancellationReason = t.CancellationReason
		}
	}
	b.StatusHistory = append(b.StatusHistory, models.BookingStatusChange{
		From: t.From,
		To:   t.To,
		At:   t.At,
		By:   t.By,
		Note: t.Note,
	})
	return true, nil
}

func (r *BookingRepository) ApplyRewards(ctx context.Context, id primitive.ObjectID, rewardIDs []primitive.ObjectID, discount, total models.Money, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.bookings[id]
	if !ok || b.Status != models.BookingPending || len(b.AppliedRewards) > 0 {
		return false, nil
	}
	b.AppliedRewards = append([]primitive.ObjectID(nil), rewardIDs...)
	b.RewardDiscount = discount
	b.TotalAmount = total
	b.UpdatedAt = at
	return true, nil
}

func (r *BookingRepository) MarkRewardProcessed(ctx context.Context, id primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if b, ok := r.db.bookings[id]; ok {
		b.RewardProcessed = true
		b.UpdatedAt = time.Now()
	}
	return nil
}

func (r *BookingRepository) FindUnprocessedCompleted(ctx context.Context, limit int) ([]models.Booking, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var matched []models.Booking
	for _, b := range r.db.bookings {
		if b.Status == models.BookingCompleted && !b.RewardProcessed {
			matched = append(matched, *cloneBooking(b))
		}
	}
	return firstN(matched, func(a, b models.Booking) bool {
		return completedAt(a).Before(completedAt(b))
	}, limit), nil
}

func completedAt(b models.Booking) time.Time {
	if b.CompletedAt == nil {
		return time.Time{}
	}
	return *b.CompletedAt
}

func (r *BookingRepository) HasCompleted(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, b := range r.db.bookings {
		if b.UserID == userID && b.Status == models.BookingCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *BookingRepository) UsersWithCompleted(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	wanted := map[primitive.ObjectID]bool{}
	for _, id := range userIDs {
		wanted[id] = true
	}
	out := map[primitive.ObjectID]bool{}
	for _, b := range r.db.bookings {
		if wanted[b.UserID] && b.Status == models.BookingCompleted {
			out[b.UserID] = true
		}
	}
	return out, nil
}

func (r *BookingRepository) HasActiveForPackage(ctx context.Context, packageID primitive.ObjectID) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, b := range r.db.bookings {
		if b.PackageID == packageID && (b.Status == models.BookingPending || b.Status == models.BookingConfirmed) {
			return true, nil
		}
	}
	return false, nil
}

func (r *BookingRepository) DeleteCancelled(ctx context.Context, id primitive.ObjectID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.bookings[id]
	if !ok || b.Status != models.BookingCancelled {
		return false, nil
	}
	delete(r.db.bookings, id)
	return true, nil
}
