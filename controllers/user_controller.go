package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/services"
)

// UserController handles the profile endpoints and admin user management
type UserController struct {
	users  *services.UserService
	logger *zap.Logger
}

// NewUserController creates a new user controller
func NewUserController(users *services.UserService, logger *zap.Logger) *UserController {
	return &UserController{users: users, logger: logger}
}

// GetMe returns the caller's profile with its reward ledger
func (c *UserController) GetMe(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	user, err := c.users.Get(ctx.Request().Context(), userID)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "User retrieved successfully", user.Public())
}

// UpdateMe changes name, phone or profile picture
func (c *UserController) UpdateMe(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	var req models.ProfileUpdate
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	user, err := c.users.UpdateProfile(ctx.Request().Context(), userID, req)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Profile updated successfully", user.PublicWithoutLedger())
}

// ChangePassword replaces the caller's password after checking the current one
func (c *UserController) ChangePassword(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	var req models.ChangePasswordRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	if err := c.users.ChangePassword(ctx.Request().Context(), userID, req); err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Password changed successfully", nil)
}

// UpdateFCMToken stores the device token used for push notifications
func (c *UserController) UpdateFCMToken(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	var req models.FCMTokenRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	if err := c.users.UpdateFCMToken(ctx.Request().Context(), userID, req.FCMToken); err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "FCM token updated successfully", nil)
}

// AdminListUsers lists accounts for admins
func (c *UserController) AdminListUsers(ctx echo.Context) error {
	page := pageFromQuery(ctx)
	filter := models.UserFilter{
		Search:   ctx.QueryParam("search"),
		UserType: ctx.QueryParam("userType"),
		Status:   ctx.QueryParam("status"),
	}
	users, total, err := c.users.List(ctx.Request().Context(), filter, page)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	public := make([]models.User, 0, len(users))
	for _, u := range users {
		public = append(public, u.PublicWithoutLedger())
	}
	return respondPage(ctx, "Users retrieved successfully", public, page, total)
}

// AdminSetStatus activates or disables an account
func (c *UserController) AdminSetStatus(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	var req models.UserStatusRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	adminID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	if err := c.users.SetStatus(ctx.Request().Context(), adminID, id, req.Status); err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "User status updated successfully", map[string]string{"status": req.Status})
}
