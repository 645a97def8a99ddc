package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/travel_booking_backend/controllers"
	"github.com/HSouheill/travel_booking_backend/middleware"
)

// Handlers bundles every controller the API serves.
type Handlers struct {
	Auth          *controllers.AuthController
	User          *controllers.UserController
	Catalog       *controllers.CatalogController
	Booking       *controllers.BookingController
	Notification  *controllers.NotificationController
	Referral      *controllers.ReferralController
	ReferralAdmin *controllers.ReferralAdminController
	WebSocket     echo.HandlerFunc
}

// SetupRoutes registers the whole API. authed is the middleware stack of
// routes that need a signed-in user; admin routes add RequireAdmin to it.
func SetupRoutes(e *echo.Echo, h Handlers, authed ...echo.MiddlewareFunc) {
	public := e.Group("/api")
	user := e.Group("/api", authed...)
	adminOnly := append(append([]echo.MiddlewareFunc{}, authed...), middleware.RequireAdmin())
	admin := e.Group("/api/admin", adminOnly...)

	RegisterAuthRoutes(public, user, h.Auth)
	RegisterUserRoutes(user, admin, h.User)
	RegisterCatalogRoutes(public, admin, h.Catalog)
	RegisterBookingRoutes(user, admin, h.Booking)
	RegisterNotificationRoutes(user, h.Notification)
	RegisterReferralRoutes(public, user, h.Referral)
	RegisterReferralAdminRoutes(admin, h.ReferralAdmin)

	// The websocket authenticates with a query token or an AUTH message.
	if h.WebSocket != nil {
		e.GET("/api/ws", h.WebSocket)
	}
}
