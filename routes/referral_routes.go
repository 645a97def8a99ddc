package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/travel_booking_backend/controllers"
)

// RegisterReferralRoutes sets up the referral page, ledger and payout routes
func RegisterReferralRoutes(public, user *echo.Group, c *controllers.ReferralController) {
	public.GET("/referrals/validate/:code", c.ValidateReferralCode)
	public.GET("/referrals/qrcode/:code", c.GetQRCodeImage)

	user.GET("/referrals/me", c.GetReferralData)
	user.GET("/referrals/me/history", c.GetRewardHistory)
	user.GET("/referrals/me/referees", c.GetReferees)
	user.GET("/referrals/me/qrcode", c.GetReferralQRCode)
	user.POST("/referrals/apply", c.ApplyReferralCode)
	user.POST("/referrals/payouts", c.CreatePayoutRequest)
	user.GET("/referrals/payouts", c.GetMyPayouts)
}

// RegisterReferralAdminRoutes sets up reward review and payout processing
func RegisterReferralAdminRoutes(admin *echo.Group, c *controllers.ReferralAdminController) {
	admin.GET("/referrals/rewards", c.ListRewards)
	admin.POST("/referrals/rewards/:userId/:rewardId/approve", c.ApproveReward)
	admin.POST("/referrals/rewards/:userId/:rewardId/reject", c.RejectReward)
	admin.GET("/referrals/payouts", c.ListPayouts)
	admin.POST("/referrals/payouts/:id/approve", c.ApprovePayout)
	admin.POST("/referrals/payouts/:id/reject", c.RejectPayout)
	admin.GET("/referrals/leaderboard", c.GetLeaderboard)
	admin.GET("/referrals/stats", c.GetStats)
	admin.POST("/referrals/expire", c.ExpireRewards)
	admin.POST("/referrals/reconcile", c.ReconcileBookings)
}
