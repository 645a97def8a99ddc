package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/middleware"
	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/services"
)

// BookingController handles booking-related API endpoints
type BookingController struct {
	bookings *services.BookingService
	logger   *zap.Logger
}

// NewBookingController creates a new booking controller
func NewBookingController(bookings *services.BookingService, logger *zap.Logger) *BookingController {
	return &BookingController{bookings: bookings, logger: logger}
}

func bookingStatusQuery(ctx echo.Context) (models.BookingStatus, error) {
	status := models.BookingStatus(ctx.QueryParam("status"))
	switch status {
	case "", models.BookingPending, models.BookingConfirmed, models.BookingCompleted, models.BookingCancelled:
		return status, nil
	}
	respond(ctx, http.StatusBadRequest, "Invalid status", nil)
	return "", errResponded
}

// CreateBooking books a package for the caller
func (c *BookingController) CreateBooking(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	var req models.BookingRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	booking, err := c.bookings.Create(ctx.Request().Context(), userID, req)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusCreated, "Booking created successfully", booking)
}

// GetMyBookings lists the caller's bookings
func (c *BookingController) GetMyBookings(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	status, err := bookingStatusQuery(ctx)
	if err != nil {
		return done(err)
	}
	page := pageFromQuery(ctx)
	bookings, total, err := c.bookings.ListOwn(ctx.Request().Context(), userID, status, page)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respondPage(ctx, "Bookings retrieved successfully", bookings, page, total)
}

// GetBooking returns one booking to its owner or an admin
func (c *BookingController) GetBooking(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	user := middleware.CurrentUser(ctx)
	if user == nil {
		return respond(ctx, http.StatusUnauthorized, "Unauthorized", nil)
	}
	booking, err := c.bookings.Get(ctx.Request().Context(), user, id)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Booking retrieved successfully", booking)
}

// CancelBooking lets the owner cancel a pending or confirmed booking
func (c *BookingController) CancelBooking(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	var req models.CancelBookingRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	booking, err := c.bookings.Cancel(ctx.Request().Context(), userID, id, req.Reason)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Booking cancelled successfully", booking)
}

// AdminListBookings lists bookings across users with status statistics
func (c *BookingController) AdminListBookings(ctx echo.Context) error {
	var (
		filter models.BookingFilter
		err    error
	)
	if filter.Status, err = bookingStatusQuery(ctx); err != nil {
		return done(err)
	}
	if filter.UserID, err = optionalObjectIDQuery(ctx, "userId"); err != nil {
		return done(err)
	}
	if filter.PackageID, err = optionalObjectIDQuery(ctx, "packageId"); err != nil {
		return done(err)
	}
	if filter.TravelFrom, err = optionalDateQuery(ctx, "from"); err != nil {
		return done(err)
	}
	if filter.TravelTo, err = optionalDateQuery(ctx, "to"); err != nil {
		return done(err)
	}
	page := pageFromQuery(ctx)
	res, err := c.bookings.AdminList(ctx.Request().Context(), filter, page)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Bookings retrieved successfully", map[string]interface{}{
		"items":      res.Bookings,
		"pagination": page.Meta(res.Total),
		"statistics": res.Counts,
	})
}

// AdminUpdateBookingStatus moves a booking through its lifecycle
func (c *BookingController) AdminUpdateBookingStatus(ctx echo.Context) error {
	adminID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	var req models.BookingStatusUpdateRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	booking, err := c.bookings.UpdateStatus(ctx.Request().Context(), adminID, id, req)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Booking status updated successfully", booking)
}

// AdminDeleteBooking removes a cancelled booking
func (c *BookingController) AdminDeleteBooking(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	if err := c.bookings.Delete(ctx.Request().Context(), id); err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Booking deleted successfully", nil)
}
