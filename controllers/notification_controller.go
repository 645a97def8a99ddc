package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/services"
)

type NotificationController struct {
	notifications *services.NotificationService
	logger        *zap.Logger
}

func NewNotificationController(notifications *services.NotificationService, logger *zap.Logger) *NotificationController {
	return &NotificationController{notifications: notifications, logger: logger}
}

// GetNotifications lists the caller's notifications, newest first
func (c *NotificationController) GetNotifications(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	page := pageFromQuery(ctx)
	unreadOnly := ctx.QueryParam("unreadOnly") == "true"
	items, total, err := c.notifications.List(ctx.Request().Context(), userID, unreadOnly, page)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respondPage(ctx, "Notifications retrieved successfully", items, page, total)
}

func (c *NotificationController) GetUnreadCount(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	n, err := c.notifications.UnreadCount(ctx.Request().Context(), userID)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Unread count retrieved successfully", map[string]int64{"count": n})
}

func (c *NotificationController) MarkAsRead(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	if err := c.notifications.MarkRead(ctx.Request().Context(), userID, id); err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Notification marked as read", nil)
}

func (c *NotificationController) MarkAllAsRead(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	n, err := c.notifications.MarkAllRead(ctx.Request().Context(), userID)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "All notifications marked as read", map[string]int64{"updated": n})
}

func (c *NotificationController) DeleteNotification(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	if err := c.notifications.Delete(ctx.Request().Context(), userID, id); err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Notification deleted successfully", nil)
}
