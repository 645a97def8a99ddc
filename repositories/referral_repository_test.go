package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/models"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// stage returns the single operator document of a pipeline stage.
func stage(t *testing.T, d bson.D) (string, interface{}) {
	t.Helper()
	require.Len(t, d, 1)
	return d[0].Key, d[0].Value
}

func TestAppendRewardQuery(t *testing.T) {
	userID := primitive.NewObjectID()
	entry := models.RewardEntry{ID: primitive.NewObjectID(), Key: "referral:abc", CreatedAt: at}

	filter, update := appendRewardQuery(userID, entry, models.AppendOptions{
		Delta:          models.BalanceDelta{Pending: models.MoneyFromFloat(25)},
		IncrementCount: true,
		Milestone:      5,
	})
	assert.Equal(t, bson.M{
		"_id":                         userID,
		"referral.rewardHistory.key":  bson.M{"$ne": "referral:abc"},
		"referral.milestonesAchieved": bson.M{"$ne": 5},
	}, filter)
	assert.Equal(t, bson.M{
		"referral.pendingBalance": models.MoneyFromFloat(25).Decimal128(),
		"referral.count":          1,
	}, update["$inc"])
	assert.Equal(t, bson.M{"referral.milestonesAchieved": 5}, update["$addToSet"])
	assert.Equal(t, bson.M{"referral.rewardHistory": entry}, update["$push"])
	assert.Equal(t, bson.M{"updatedAt": at}, update["$set"])

	filter, update = appendRewardQuery(userID, entry, models.AppendOptions{})
	assert.NotContains(t, filter, "referral.milestonesAchieved")
	assert.NotContains(t, update, "$inc")
	assert.NotContains(t, update, "$addToSet")
}

func TestTransitionRewardQuery(t *testing.T) {
	userID, entryID, payoutID := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	amount := models.MoneyFromFloat(25)

	filter, update := transitionRewardQuery(userID, models.RewardTransition{
		EntryID:    entryID,
		From:       models.RewardUsed,
		To:         models.RewardPaid,
		At:         at,
		Delta:      models.BalanceDelta{Available: amount.Neg(), Paid: amount},
		ClearUsage: true,
		PayoutID:   &payoutID,
	})
	assert.Equal(t, bson.M{
		"_id": userID,
		"referral.rewardHistory": bson.M{"$elemMatch": bson.M{
			"_id":    entryID,
			"status": models.RewardUsed,
		}},
	}, filter)

	set, ok := update["$set"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, models.RewardPaid, set["referral.rewardHistory.$.status"])
	assert.Equal(t, at, set["referral.rewardHistory.$.updatedAt"])
	assert.Equal(t, payoutID, set["referral.rewardHistory.$.payoutId"])
	assert.Equal(t, at, set["updatedAt"])
	assert.NotContains(t, set, "referral.rewardHistory.$.usedOnBooking")

	assert.Equal(t, bson.M{"referral.rewardHistory.$.usedOnBooking": ""}, update["$unset"])
	assert.Equal(t, bson.M{
		"referral.availableBalance": amount.Neg().Decimal128(),
		"referral.totalPaid":        amount.Decimal128(),
	}, update["$inc"])

	push, ok := update["$push"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, models.RewardStatusChange{From: models.RewardUsed, To: models.RewardPaid, At: at},
		push["referral.rewardHistory.$.history"])

	_, update = transitionRewardQuery(userID, models.RewardTransition{EntryID: entryID, From: models.RewardPending, To: models.RewardPending, At: at})
	assert.NotContains(t, update, "$inc", "an empty delta writes no $inc")
	assert.NotContains(t, update, "$unset")
}

func TestSetTierQueryGuardsOnCount(t *testing.T) {
	userID := primitive.NewObjectID()

	filter, update := setTierQuery(userID, 10, models.TierGold, at)
	assert.Equal(t, bson.M{"_id": userID, "referral.count": 10}, filter)
	assert.Equal(t, bson.M{"$set": bson.M{"referral.tier": models.TierGold, "updatedAt": at}}, update)

	filter, _ = setTierQuery(userID, 0, models.TierBronze, at)
	assert.Equal(t, bson.M{"$in": bson.A{0, nil}}, filter["referral.count"])
}

func TestReferrerQueries(t *testing.T) {
	userID, referrerID := primitive.NewObjectID(), primitive.NewObjectID()

	filter, update := setReferrerQuery(userID, referrerID, at)
	assert.Equal(t, bson.M{"_id": userID, "referral.referredBy": bson.M{"$exists": false}}, filter)
	assert.Equal(t, bson.M{"$set": bson.M{
		"referral.referredBy": referrerID,
		"referral.referredAt": at,
		"updatedAt":           at,
	}}, update)

	filter, update = clearReferrerQuery(userID, referrerID, at)
	assert.Equal(t, bson.M{"_id": userID, "referral.referredBy": referrerID}, filter)
	assert.Equal(t, bson.M{"referral.referredBy": "", "referral.referredAt": ""}, update["$unset"])
	assert.Equal(t, bson.M{"updatedAt": at}, update["$set"])

	filter, _ = setReferralCodeQuery(userID, "USR-ABC123", at)
	assert.Len(t, filter["$or"], 2, "only a missing or empty code is replaced")
}

func TestExpiringRewardsPipeline(t *testing.T) {
	p := expiringRewardsPipeline(at, 50)
	require.GreaterOrEqual(t, len(p), 5)

	op, v := stage(t, p[0])
	assert.Equal(t, "$match", op)
	assert.Equal(t, bson.M{"referral.rewardHistory": bson.M{"$elemMatch": bson.M{
		"status":    bson.M{"$in": bson.A{models.RewardPending, models.RewardCredited}},
		"expiresAt": bson.M{"$lt": at},
	}}}, v)

	op, v = stage(t, p[1])
	assert.Equal(t, "$unwind", op)
	assert.Equal(t, "$referral.rewardHistory", v)

	op, v = stage(t, p[len(p)-3])
	assert.Equal(t, "$match", op)
	assert.Equal(t, bson.M{"$lt": at}, v.(bson.M)["entry.expiresAt"], "entries are matched again after unwinding")

	op, v = stage(t, p[len(p)-2])
	assert.Equal(t, "$sort", op)
	assert.Equal(t, bson.D{{Key: "entry.expiresAt", Value: 1}}, v)

	op, v = stage(t, p[len(p)-1])
	assert.Equal(t, "$limit", op)
	assert.Equal(t, 50, v)
}

func TestUsedRewardsPipeline(t *testing.T) {
	from := at.Add(-7 * 24 * time.Hour)
	p := usedRewardsPipeline(from, at, 20)
	window := bson.M{"$gte": from, "$lt": at}

	_, v := stage(t, p[0])
	assert.Equal(t, bson.M{"referral.rewardHistory": bson.M{"$elemMatch": bson.M{
		"status":    models.RewardUsed,
		"updatedAt": window,
	}}}, v)

	_, v = stage(t, p[len(p)-3])
	assert.Equal(t, bson.M{"entry.status": models.RewardUsed, "entry.updatedAt": window}, v)

	_, v = stage(t, p[len(p)-2])
	assert.Equal(t, bson.D{{Key: "entry.updatedAt", Value: 1}}, v)
	_, v = stage(t, p[len(p)-1])
	assert.Equal(t, 20, v)
}

func TestRewardPipelineScopesToUser(t *testing.T) {
	userID := primitive.NewObjectID()
	p := rewardPipeline(&userID, bson.M{"entry.status": models.RewardCredited})
	require.Len(t, p, 4)

	op, v := stage(t, p[0])
	assert.Equal(t, "$match", op)
	assert.Equal(t, bson.M{"_id": userID}, v)

	_, v = stage(t, p[2])
	assert.Equal(t, "$referral.rewardHistory", v.(bson.M)["entry"])

	assert.Len(t, rewardPipeline(nil, bson.M{}), 3)
}

func TestStatsPipelines(t *testing.T) {
	require.Len(t, tierStatsPipeline, 1)
	op, v := stage(t, tierStatsPipeline[0])
	assert.Equal(t, "$group", op)
	assert.Equal(t, "$referral.tier", v.(bson.M)["_id"])

	require.Len(t, statusStatsPipeline, 2)
	op, v = stage(t, statusStatsPipeline[0])
	assert.Equal(t, "$unwind", op)
	assert.Equal(t, "$referral.rewardHistory", v)
	_, v = stage(t, statusStatsPipeline[1])
	group := v.(bson.M)
	assert.Equal(t, "$referral.rewardHistory.status", group["_id"])
	assert.Equal(t, bson.M{"$sum": "$referral.rewardHistory.amount"}, group["amount"])
}

func TestIncDocSkipsZeroFields(t *testing.T) {
	assert.Empty(t, incDoc(models.BalanceDelta{}))

	inc := incDoc(models.BalanceDelta{
		Available: models.MoneyFromFloat(-10),
		Used:      models.MoneyFromFloat(10),
	})
	assert.Equal(t, bson.M{
		"referral.availableBalance": models.MoneyFromFloat(-10).Decimal128(),
		"referral.totalUsed":        models.MoneyFromFloat(10).Decimal128(),
	}, inc)
}

func TestApplyRewardsQuery(t *testing.T) {
	id := primitive.NewObjectID()
	rewards := []primitive.ObjectID{primitive.NewObjectID()}
	discount, total := models.MoneyFromFloat(25), models.MoneyFromFloat(5)

	filter, update := applyRewardsQuery(id, rewards, discount, total, at)
	assert.Equal(t, bson.M{
		"_id":            id,
		"status":         models.BookingPending,
		"appliedRewards": bson.M{"$size": 0},
	}, filter)
	assert.Equal(t, bson.M{"$set": bson.M{
		"appliedRewards": rewards,
		"rewardDiscount": discount,
		"totalAmount":    total,
		"updatedAt":      at,
	}}, update)
}
