package memory

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
)

type NotificationRepository struct {
	db *DB
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	c := *n
	r.db.notifications[n.ID] = &c
	return nil
}

func (r *NotificationRepository) List(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, page models.Pagination) ([]models.Notification, int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var matched []models.Notification
	for _, n := range r.db.notifications {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			matched = append(matched, *n)
		}
	}
	out, total := paginate(matched, func(a, b models.Notification) bool { return a.CreatedAt.After(b.CreatedAt) }, page)
	return out, total, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var n int64
	for _, notif := range r.db.notifications {
		if notif.UserID == userID && !notif.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id primitive.ObjectID, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n, ok := r.db.notifications[id]
	if !ok || n.UserID != userID {
		return repositories.ErrNotFound
	}
	n.IsRead = true
	readAt := at
	n.ReadAt = &readAt
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID primitive.ObjectID, at time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var count int64
	for _, n := range r.db.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			readAt := at
			n.ReadAt = &readAt
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, userID, id primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n, ok := r.db.notifications[id]
	if !ok || n.UserID != userID {
		return repositories.ErrNotFound
	}
	delete(r.db.notifications, id)
	return nil
}
