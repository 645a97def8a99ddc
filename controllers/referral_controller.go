package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/services"
)

// ReferralController serves the caller's referral page, ledger and payouts
type ReferralController struct {
	referrals *services.ReferralService
	payouts   *services.PayoutService
	logger    *zap.Logger
}

// NewReferralController creates a new referral controller
func NewReferralController(referrals *services.ReferralService, payouts *services.PayoutService, logger *zap.Logger) *ReferralController {
	return &ReferralController{referrals: referrals, payouts: payouts, logger: logger}
}

// GetReferralData returns code, link, tier progress and balances
func (c *ReferralController) GetReferralData(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	summary, err := c.referrals.Summary(ctx.Request().Context(), userID)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Referral data retrieved successfully", summary)
}

// GetRewardHistory lists the caller's ledger entries, newest first
func (c *ReferralController) GetRewardHistory(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	page := pageFromQuery(ctx)
	status := models.RewardStatus(ctx.QueryParam("status"))
	kind := models.RewardKind(ctx.QueryParam("kind"))
	entries, total, err := c.referrals.History(ctx.Request().Context(), userID, status, kind, page)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respondPage(ctx, "Reward history retrieved successfully", entries, page, total)
}

// GetReferees lists the users who signed up with the caller's code
func (c *ReferralController) GetReferees(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	page := pageFromQuery(ctx)
	referees, total, err := c.referrals.Referees(ctx.Request().Context(), userID, page)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respondPage(ctx, "Referees retrieved successfully", referees, page, total)
}

// ApplyReferralCode links the caller to a referrer after signup
func (c *ReferralController) ApplyReferralCode(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	var req models.ApplyReferralRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	referrer, err := c.referrals.ApplyReferralCode(ctx.Request().Context(), userID, req.ReferralCode)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Referral code applied successfully", map[string]interface{}{
		"referrerId":   referrer.ID,
		"referrerName": firstName(referrer.FullName),
	})
}

// GetReferralQRCode returns the caller's link and its QR code as a data URL
func (c *ReferralController) GetReferralQRCode(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	link, dataURL, err := c.referrals.QRCode(ctx.Request().Context(), userID)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "QR code generated successfully", map[string]string{
		"link":   link,
		"qrCode": dataURL,
	})
}

// CreatePayoutRequest asks for the available balance to be paid out
func (c *ReferralController) CreatePayoutRequest(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	var req models.CreatePayoutRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	payout, err := c.payouts.Create(ctx.Request().Context(), userID, req)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusCreated, "Payout request submitted successfully", payout)
}

// GetMyPayouts lists the caller's payout requests
func (c *ReferralController) GetMyPayouts(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return done(err)
	}
	page := pageFromQuery(ctx)
	filter := models.PayoutFilter{UserID: &userID, Status: models.PayoutStatus(ctx.QueryParam("status"))}
	payouts, total, err := c.payouts.List(ctx.Request().Context(), filter, page)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respondPage(ctx, "Payout requests retrieved successfully", payouts, page, total)
}

// ValidateReferralCode reports whether a code exists, for signup forms
func (c *ReferralController) ValidateReferralCode(ctx echo.Context) error {
	referrer, err := c.referrals.ValidateCode(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		if statusFor(err) == http.StatusNotFound {
			return respond(ctx, http.StatusNotFound, "Referral code not found", map[string]bool{"valid": false})
		}
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Referral code is valid", map[string]interface{}{
		"valid":        true,
		"referrerName": firstName(referrer.FullName),
	})
}

// GetQRCodeImage renders the QR code of a referral code as a PNG
func (c *ReferralController) GetQRCodeImage(ctx echo.Context) error {
	size, _ := strconv.Atoi(ctx.QueryParam("size"))
	png, err := c.referrals.QRCodePNG(ctx.Request().Context(), ctx.Param("code"), size)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	ctx.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return ctx.Blob(http.StatusOK, "image/png", png)
}

func firstName(fullName string) string {
	if fields := strings.Fields(fullName); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
