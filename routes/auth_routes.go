package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/travel_booking_backend/controllers"
)

// RegisterAuthRoutes sets up signup, login and token routes
func RegisterAuthRoutes(public, user *echo.Group, c *controllers.AuthController) {
	public.POST("/auth/signup", c.Signup)
	public.POST("/auth/login", c.Login)
	public.POST("/auth/refresh-token", c.RefreshToken)
	public.GET("/auth/validate-token", c.ValidateToken)
	public.POST("/auth/remember-me/get", c.RememberMeGet)
	public.POST("/auth/remember-me/remove", c.RememberMeRemove)

	user.POST("/auth/logout", c.Logout)
}
