package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/services"
)

// ReferralAdminController lets admins review rewards and payouts
type ReferralAdminController struct {
	referrals *services.ReferralService
	payouts   *services.PayoutService
	logger    *zap.Logger
}

func NewReferralAdminController(referrals *services.ReferralService, payouts *services.PayoutService, logger *zap.Logger) *ReferralAdminController {
	return &ReferralAdminController{referrals: referrals, payouts: payouts, logger: logger}
}

// ListRewards lists ledger entries across users
func (c *ReferralAdminController) ListRewards(ctx echo.Context) error {
	userID, err := optionalObjectIDQuery(ctx, "userId")
	if err != nil {
		return done(err)
	}
	filter := models.RewardFilter{
		UserID: userID,
		Status: models.RewardStatus(ctx.QueryParam("status")),
		Kind:   models.RewardKind(ctx.QueryParam("kind")),
	}
	page := pageFromQuery(ctx)
	records, total, err := c.referrals.ListRewards(ctx.Request().Context(), filter, page)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respondPage(ctx, "Rewards retrieved successfully", records, page, total)
}

func rewardParams(ctx echo.Context) (userID, rewardID primitive.ObjectID, err error) {
	if userID, err = objectIDParam(ctx, "userId"); err != nil {
		return
	}
	rewardID, err = objectIDParam(ctx, "rewardId")
	return
}

// ApproveReward credits a pending reward
func (c *ReferralAdminController) ApproveReward(ctx echo.Context) error {
	userID, rewardID, err := rewardParams(ctx)
	if err != nil {
		return done(err)
	}
	var req models.ApproveRewardRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	adminID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	entry, err := c.referrals.ApproveReward(ctx.Request().Context(), adminID, userID, rewardID, req.Note)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Reward approved successfully", entry)
}

// RejectReward rejects a pending reward
func (c *ReferralAdminController) RejectReward(ctx echo.Context) error {
	userID, rewardID, err := rewardParams(ctx)
	if err != nil {
		return done(err)
	}
	var req models.RejectRewardRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	adminID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	entry, err := c.referrals.RejectReward(ctx.Request().Context(), adminID, userID, rewardID, req.Reason)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Reward rejected successfully", entry)
}

// ListPayouts lists payout requests, optionally by status or user
func (c *ReferralAdminController) ListPayouts(ctx echo.Context) error {
	userID, err := optionalObjectIDQuery(ctx, "userId")
	if err != nil {
		return done(err)
	}
	filter := models.PayoutFilter{UserID: userID, Status: models.PayoutStatus(ctx.QueryParam("status"))}
	page := pageFromQuery(ctx)
	payouts, total, err := c.payouts.List(ctx.Request().Context(), filter, page)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respondPage(ctx, "Payout requests retrieved successfully", payouts, page, total)
}

// ApprovePayout pays out the user's credited rewards
func (c *ReferralAdminController) ApprovePayout(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	var req models.ApprovePayoutRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	adminID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	payout, err := c.payouts.Approve(ctx.Request().Context(), adminID, id, req)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Payout approved successfully", payout)
}

func (c *ReferralAdminController) RejectPayout(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	var req models.RejectPayoutRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	adminID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	payout, err := c.payouts.Reject(ctx.Request().Context(), adminID, id, req.Reason)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Payout rejected successfully", payout)
}

// GetLeaderboard returns the top referrers
func (c *ReferralAdminController) GetLeaderboard(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	board, err := c.referrals.Leaderboard(ctx.Request().Context(), limit)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Leaderboard retrieved successfully", board)
}

func (c *ReferralAdminController) GetStats(ctx echo.Context) error {
	stats, err := c.referrals.Stats(ctx.Request().Context())
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Referral statistics retrieved successfully", stats)
}

// ExpireRewards runs the expiry sweep now
func (c *ReferralAdminController) ExpireRewards(ctx echo.Context) error {
	n, err := c.referrals.ExpireDue(ctx.Request().Context())
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Expiry sweep completed", map[string]int{"expired": n})
}

// ReconcileBookings rewards completed bookings that were never processed
func (c *ReferralAdminController) ReconcileBookings(ctx echo.Context) error {
	n, err := c.referrals.ReconcileCompleted(ctx.Request().Context())
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	restored, err := c.referrals.RestoreOrphaned(ctx.Request().Context())
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Reconciliation completed", map[string]int{"processed": n, "restored": restored})
}
