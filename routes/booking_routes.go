package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/travel_booking_backend/controllers"
)

// RegisterBookingRoutes sets up customer and admin booking routes
func RegisterBookingRoutes(user, admin *echo.Group, c *controllers.BookingController) {
	user.POST("/bookings", c.CreateBooking)
	user.GET("/bookings", c.GetMyBookings)
	user.GET("/bookings/:id", c.GetBooking)
	user.POST("/bookings/:id/cancel", c.CancelBooking)

	admin.GET("/bookings", c.AdminListBookings)
	admin.PUT("/bookings/:id/status", c.AdminUpdateBookingStatus)
	admin.DELETE("/bookings/:id", c.AdminDeleteBooking)
}
