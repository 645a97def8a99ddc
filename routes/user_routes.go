package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/travel_booking_backend/controllers"
)

// RegisterUserRoutes sets up profile and admin user management routes
func RegisterUserRoutes(user, admin *echo.Group, c *controllers.UserController) {
	user.GET("/users/me", c.GetMe)
	user.PUT("/users/me", c.UpdateMe)
	user.PUT("/users/me/password", c.ChangePassword)
	user.POST("/users/fcm-token", c.UpdateFCMToken)

	admin.GET("/users", c.AdminListUsers)
	admin.PUT("/users/:id/status", c.AdminSetStatus)
}
