package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/models"
)

// ReferralRepository owns the referral sub-document of users. Every ledger
// write is one conditional update: the filter carries the precondition
// (key absent, entry in the expected status, milestone not yet achieved)
// and the update carries the status change together with its balance
// delta, so concurrent or repeated calls cannot double count.
type ReferralRepository struct {
	collection *mongo.Collection
}

func NewReferralRepository(db *mongo.Database) *ReferralRepository {
	return &ReferralRepository{collection: db.Collection(config.UsersCollection)}
}

// SetReferralCode sets the code only if the user has none yet. It returns
// false when a code was already present and ErrDuplicate when another user
// holds the code.
func (r *ReferralRepository) SetReferralCode(ctx context.Context, userID primitive.ObjectID, code string) (bool, error) {
	filter, update := setReferralCodeQuery(userID, code, time.Now())
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, translate(err)
	}
	if res.MatchedCount == 0 {
		return false, r.exists(ctx, userID)
	}
	return true, nil
}

func setReferralCodeQuery(userID primitive.ObjectID, code string, at time.Time) (filter, update bson.M) {
	filter = bson.M{
		"_id": userID,
		"$or": bson.A{
			bson.M{"referral.code": bson.M{"$exists": false}},
			bson.M{"referral.code": ""},
		},
	}
	update = bson.M{"$set": bson.M{
		"referral.code": code,
		"updatedAt":     at,
	}}
	return filter, update
}

// SetReferrer links the user to a referrer if they have none yet.
func (r *ReferralRepository) SetReferrer(ctx context.Context, userID, referrerID primitive.ObjectID, at time.Time) (bool, error) {
	filter, update := setReferrerQuery(userID, referrerID, at)
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, translate(err)
	}
	if res.MatchedCount == 0 {
		return false, r.exists(ctx, userID)
	}
	return true, nil
}

func setReferrerQuery(userID, referrerID primitive.ObjectID, at time.Time) (filter, update bson.M) {
	filter = bson.M{
		"_id":                 userID,
		"referral.referredBy": bson.M{"$exists": false},
	}
	update = bson.M{"$set": bson.M{
		"referral.referredBy": referrerID,
		"referral.referredAt": at,
		"updatedAt":           at,
	}}
	return filter, update
}

// ClearReferrer removes the link to referrerID. It returns false when the
// user is linked to someone else or to nobody.
func (r *ReferralRepository) ClearReferrer(ctx context.Context, userID, referrerID primitive.ObjectID) (bool, error) {
	filter, update := clearReferrerQuery(userID, referrerID, time.Now())
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, translate(err)
	}
	if res.MatchedCount == 0 {
		return false, r.exists(ctx, userID)
	}
	return true, nil
}

func clearReferrerQuery(userID, referrerID primitive.ObjectID, at time.Time) (filter, update bson.M) {
	filter = bson.M{"_id": userID, "referral.referredBy": referrerID}
	update = bson.M{
		"$unset": bson.M{"referral.referredBy": "", "referral.referredAt": ""},
		"$set":   bson.M{"updatedAt": at},
	}
	return filter, update
}

// AppendReward pushes entry unless an entry with the same key exists. The
// initial status balance, the referral count and the milestone marker are
// written in the same update.
func (r *ReferralRepository) AppendReward(ctx context.Context, userID primitive.ObjectID, entry models.RewardEntry, opts models.AppendOptions) (bool, error) {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.History == nil {
		entry.History = []models.RewardStatusChange{}
	}

	filter, update := appendRewardQuery(userID, entry, opts)
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, translate(err)
	}
	if res.MatchedCount == 0 {
		return false, r.exists(ctx, userID)
	}
	return true, nil
}

func appendRewardQuery(userID primitive.ObjectID, entry models.RewardEntry, opts models.AppendOptions) (filter, update bson.M) {
	filter = bson.M{
		"_id":                         userID,
		"referral.rewardHistory.key": bson.M{"$ne": entry.Key},
	}
	if opts.Milestone > 0 {
		filter["referral.milestonesAchieved"] = bson.M{"$ne": opts.Milestone}
	}

	inc := incDoc(opts.Delta)
	if opts.IncrementCount {
		inc["referral.count"] = 1
	}
	update = bson.M{
		"$push": bson.M{"referral.rewardHistory": entry},
		"$set":  bson.M{"updatedAt": entry.CreatedAt},
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	if opts.Milestone > 0 {
		update["$addToSet"] = bson.M{"referral.milestonesAchieved": opts.Milestone}
	}

	return filter, update
}

// TransitionReward moves one entry from t.From to t.To and applies t.Delta.
// It returns false when the entry is missing or not in t.From.
func (r *ReferralRepository) TransitionReward(ctx context.Context, userID primitive.ObjectID, t models.RewardTransition) (bool, error) {
	filter, update := transitionRewardQuery(userID, t)
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, translate(err)
	}
	if res.MatchedCount == 0 {
		return false, r.exists(ctx, userID)
	}
	return true, nil
}

func transitionRewardQuery(userID primitive.ObjectID, t models.RewardTransition) (filter, update bson.M) {
	filter = bson.M{
		"_id": userID,
		"referral.rewardHistory": bson.M{"$elemMatch": bson.M{
			"_id":    t.EntryID,
			"status": t.From,
		}},
	}

	const entry = "referral.rewardHistory.$."
	set := bson.M{
		entry + "status":    t.To,
		entry + "updatedAt": t.At,
		"updatedAt":         t.At,
	}
	if t.ExpiresAt != nil {
		set[entry+"expiresAt"] = *t.ExpiresAt
	}
	if t.UsedOnBooking != nil {
		set[entry+"usedOnBooking"] = *t.UsedOnBooking
	}
	if t.PayoutID != nil {
		set[entry+"payoutId"] = *t.PayoutID
	}
	if t.RejectionReason != "" {
		set[entry+"rejectionReason"] = t.RejectionReason
	}

	update = bson.M{
		"$set": set,
		"$push": bson.M{entry + "history": models.RewardStatusChange{
			From: t.From,
			To:   t.To,
			At:   t.At,
			By:   t.By,
			Note: t.Note,
		}},
	}
	if t.ClearUsage {
		update["$unset"] = bson.M{entry + "usedOnBooking": ""}
	}
	if inc := incDoc(t.Delta); len(inc) > 0 {
		update["$inc"] = inc
	}

	return filter, update
}

// SetTier stores tier only while the referral count still equals count, the
// value the tier was computed from. It returns false when the count moved.
func (r *ReferralRepository) SetTier(ctx context.Context, userID primitive.ObjectID, count int, tier models.Tier) (bool, error) {
	filter, update := setTierQuery(userID, count, tier, time.Now())
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, translate(err)
	}
	if res.MatchedCount == 0 {
		return false, r.exists(ctx, userID)
	}
	return true, nil
}

func setTierQuery(userID primitive.ObjectID, count int, tier models.Tier, at time.Time) (filter, update bson.M) {
	filter = bson.M{"_id": userID, "referral.count": count}
	if count == 0 {
		// a fresh ledger may not carry the field yet
		filter["referral.count"] = bson.M{"$in": bson.A{0, nil}}
	}
	update = bson.M{"$set": bson.M{
		"referral.tier": tier,
		"updatedAt":     at,
	}}
	return filter, update
}

// ListReferees returns the users referred by referrerID, newest first.
func (r *ReferralRepository) ListReferees(ctx context.Context, referrerID primitive.ObjectID, page models.Pagination) ([]models.User, int64, error) {
	users := []models.User{}
	total, err := findPage(ctx, r.collection, bson.M{"referral.referredBy": referrerID},
		bson.D{{Key: "referral.referredAt", Value: -1}}, page, &users, listProjection)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func rewardMatch(f models.RewardFilter) bson.M {
	match := bson.M{}
	if f.Status != "" {
		match["entry.status"] = f.Status
	}
	if f.Kind != "" {
		match["entry.kind"] = f.Kind
	}
	return match
}

// rewardPipeline flattens ledgers into one row per entry.
func rewardPipeline(userID *primitive.ObjectID, match bson.M) mongo.Pipeline {
	pipeline := mongo.Pipeline{}
	if userID != nil {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"_id": *userID}}})
	}
	return append(pipeline,
		bson.D{{Key: "$unwind", Value: "$referral.rewardHistory"}},
		bson.D{{Key: "$project", Value: bson.M{
			"_id":       0,
			"userId":    "$_id",
			"userEmail": "$email",
			"userName":  "$fullName",
			"entry":     "$referral.rewardHistory",
		}}},
		bson.D{{Key: "$match", Value: match}},
	)
}

// ListRewards returns ledger entries across users, newest first.
func (r *ReferralRepository) ListRewards(ctx context.Context, f models.RewardFilter, page models.Pagination) ([]models.RewardRecord, int64, error) {
	page = page.Normalize()
	pipeline := append(rewardPipeline(f.UserID, rewardMatch(f)),
		bson.D{{Key: "$sort", Value: bson.D{{Key: "entry.createdAt", Value: -1}}}},
		bson.D{{Key: "$facet", Value: bson.M{
			"items": bson.A{
				bson.M{"$skip": page.Skip()},
				bson.M{"$limit": page.Limit},
			},
			"total": bson.A{bson.M{"$count": "n"}},
		}}},
	)

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var out []struct {
		Items []models.RewardRecord `bson:"items"`
		Total []struct {
			N int64 `bson:"n"`
		} `bson:"total"`
	}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, err
	}

	records := []models.RewardRecord{}
	var total int64
	if len(out) > 0 {
		records = append(records, out[0].Items...)
		if len(out[0].Total) > 0 {
			total = out[0].Total[0].N
		}
	}
	return records, total, nil
}

// FindExpiringRewards returns pending or credited entries whose expiry has
// passed, oldest expiry first.
func (r *ReferralRepository) FindExpiringRewards(ctx context.Context, now time.Time, limit int) ([]models.RewardRecord, error) {
	pipeline := expiringRewardsPipeline(now, limit)
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []models.RewardRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func expiringRewardsPipeline(now time.Time, limit int) mongo.Pipeline {
	match := bson.M{
		"entry.status":    bson.M{"$in": bson.A{models.RewardPending, models.RewardCredited}},
		"entry.expiresAt": bson.M{"$lt": now},
	}
	pipeline := append(mongo.Pipeline{
		// narrow to users holding at least one candidate before unwinding
		bson.D{{Key: "$match", Value: bson.M{"referral.rewardHistory": bson.M{"$elemMatch": bson.M{
			"status":    bson.M{"$in": bson.A{models.RewardPending, models.RewardCredited}},
			"expiresAt": bson.M{"$lt": now},
		}}}}},
	}, rewardPipeline(nil, match)...)
	return append(pipeline,
		bson.D{{Key: "$sort", Value: bson.D{{Key: "entry.expiresAt", Value: 1}}}},
		bson.D{{Key: "$limit", Value: limit}},
	)
}

// FindUsedRewards returns used entries last changed in [from, to), oldest
// first.
func (r *ReferralRepository) FindUsedRewards(ctx context.Context, from, to time.Time, limit int) ([]models.RewardRecord, error) {
	cursor, err := r.collection.Aggregate(ctx, usedRewardsPipeline(from, to, limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []models.RewardRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func usedRewardsPipeline(from, to time.Time, limit int) mongo.Pipeline {
	window := bson.M{"$gte": from, "$lt": to}
	pipeline := append(mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"referral.rewardHistory": bson.M{"$elemMatch": bson.M{
			"status":    models.RewardUsed,
			"updatedAt": window,
		}}}}},
	}, rewardPipeline(nil, bson.M{"entry.status": models.RewardUsed, "entry.updatedAt": window})...)
	return append(pipeline,
		bson.D{{Key: "$sort", Value: bson.D{{Key: "entry.updatedAt", Value: 1}}}},
		bson.D{{Key: "$limit", Value: limit}},
	)
}

// Leaderboard returns users with the most successful referrals.
func (r *ReferralRepository) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "referral.count", Value: -1}, {Key: "referral.totalEarned", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(listProjection)

	cursor, err := r.collection.Find(ctx, bson.M{"referral.count": bson.M{"$gt": 0}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

var (
	tierStatsPipeline = mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.M{"_id": "$referral.tier", "n": bson.M{"$sum": 1}}}},
	}
	statusStatsPipeline = mongo.Pipeline{
		bson.D{{Key: "$unwind", Value: "$referral.rewardHistory"}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":    "$referral.rewardHistory.status",
			"n":      bson.M{"$sum": 1},
			"amount": bson.M{"$sum": "$referral.rewardHistory.amount"},
		}}},
	}
)

// Stats counts users per tier and ledger entries per status.
func (r *ReferralRepository) Stats(ctx context.Context) (*models.ReferralStats, error) {
	stats := &models.ReferralStats{
		UsersByTier:     map[models.Tier]int64{},
		EntriesByStatus: map[models.RewardStatus]int64{},
		AmountByStatus:  map[models.RewardStatus]models.Money{},
	}

	tierCursor, err := r.collection.Aggregate(ctx, tierStatsPipeline)
	if err != nil {
		return nil, err
	}
	var tiers []struct {
		Tier models.Tier `bson:"_id"`
		N    int64       `bson:"n"`
	}
	if err := tierCursor.All(ctx, &tiers); err != nil {
		return nil, err
	}
	for _, t := range tiers {
		tier := t.Tier
		if tier == "" {
			tier = models.TierBronze
		}
		stats.UsersByTier[tier] += t.N
	}

	statusCursor, err := r.collection.Aggregate(ctx, statusStatsPipeline)
	if err != nil {
		return nil, err
	}
	var statuses []struct {
		Status models.RewardStatus `bson:"_id"`
		N      int64               `bson:"n"`
		Amount models.Money        `bson:"amount"`
	}
	if err := statusCursor.All(ctx, &statuses); err != nil {
		return nil, err
	}
	for _, s := range statuses {
		stats.EntriesByStatus[s.Status] = s.N
		stats.AmountByStatus[s.Status] = s.Amount
	}
	return stats, nil
}

// exists returns ErrNotFound when the user is missing, nil otherwise.
func (r *ReferralRepository) exists(ctx context.Context, userID primitive.ObjectID) error {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func incDoc(d models.BalanceDelta) bson.M {
	inc := bson.M{}
	add := func(field string, m models.Money) {
		if !m.IsZero() {
			inc["referral."+field] = m.Decimal128()
		}
	}
	add("pendingBalance", d.Pending)
	add("availableBalance", d.Available)
	add("totalEarned", d.Earned)
	add("totalUsed", d.Used)
	add("totalPaid", d.Paid)
	add("totalExpired", d.Expired)
	return inc
}
