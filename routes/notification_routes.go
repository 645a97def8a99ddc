package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/travel_booking_backend/controllers"
)

// RegisterNotificationRoutes registers all notification-related routes
func RegisterNotificationRoutes(user *echo.Group, c *controllers.NotificationController) {
	user.GET("/notifications", c.GetNotifications)
	user.GET("/notifications/unread-count", c.GetUnreadCount)
	user.PUT("/notifications/read-all", c.MarkAllAsRead)
	user.PUT("/notifications/:id/read", c.MarkAsRead)
	user.DELETE("/notifications/:id", c.DeleteNotification)
}
