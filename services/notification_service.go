package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/websocket"
)

// Realtime pushes messages to connected websocket clients.
type Realtime interface {
	SendToUser(userID primitive.ObjectID, n websocket.Notification) error
}

// Notifier is what other services use to tell a user something happened.
type Notifier interface {
	Notify(ctx context.Context, userID primitive.ObjectID, title, message, notifType string, data map[string]string)
	Email(to, subject, body string)
}

// NotificationService saves in-app notifications and fans them out to the
// websocket hub and FCM. Delivery failures are logged and otherwise ignored.
type NotificationService struct {
	store    NotificationStore
	users    UserStore
	realtime Realtime
	pusher   Pusher
	mailer   Mailer
	logger   *zap.Logger
}

// NewNotificationService wires the delivery channels. realtime, pusher and
// mailer may be nil.
func NewNotificationService(store NotificationStore, users UserStore, realtime Realtime, pusher Pusher, mailer Mailer, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		store:    store,
		users:    users,
		realtime: realtime,
		pusher:   pusher,
		mailer:   mailer,
		logger:   logger,
	}
}

func (s *NotificationService) Notify(ctx context.Context, userID primitive.ObjectID, title, message, notifType string, data map[string]string) {
	n := &models.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      notifType,
		Data:      data,
		CreatedAt: time.Now(),
	}
	log := s.logger.With(zap.String("userId", userID.Hex()), zap.String("type", notifType))

	if err := s.store.Create(ctx, n); err != nil {
		log.Warn("failed to save notification", zap.Error(err))
	}

	if s.realtime != nil {
		err := s.realtime.SendToUser(userID, websocket.Notification{
			Type:    notifType,
			Message: message,
			Data:    n,
			UserID:  userID.Hex(),
		})
		if err != nil && err != websocket.ErrNotConnected {
			log.Warn("websocket delivery failed", zap.Error(err))
		}
	}

	if s.pusher != nil {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			log.Warn("push: user lookup failed", zap.Error(err))
			return
		}
		if user.FCMToken == "" {
			return
		}
		if err := s.pusher.Push(ctx, user.FCMToken, title, message, data); err != nil {
			log.Warn("push delivery failed", zap.Error(err))
		}
	}
}

// Email sends a plain text email when SMTP is configured.
func (s *NotificationService) Email(to, subject, body string) {
	if s.mailer == nil || to == "" {
		return
	}
	if err := s.mailer.Send(to, subject, body); err != nil {
		s.logger.Warn("failed to send email", zap.String("to", to), zap.Error(err))
	}
}

func (s *NotificationService) List(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, page models.Pagination) ([]models.Notification, int64, error) {
	return s.store.List(ctx, userID, unreadOnly, page)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.store.CountUnread(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id primitive.ObjectID) error {
	return notFound(s.store.MarkRead(ctx, userID, id, time.Now()), "notification not found")
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.store.MarkAllRead(ctx, userID, time.Now())
}

func (s *NotificationService) Delete(ctx context.Context, userID, id primitive.ObjectID) error {
	return notFound(s.store.Delete(ctx, userID, id), "notification not found")
}
