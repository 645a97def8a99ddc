package repositories

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/models"
)

type PayoutRepository struct {
	collection *mongo.Collection
}

func NewPayoutRepository(db *mongo.Database) *PayoutRepository {
	return &PayoutRepository{collection: db.Collection(config.PayoutsCollection)}
}

// Create inserts a payout request. The partial unique index on pending
// requests makes a second pending request fail with ErrDuplicate.
func (r *PayoutRepository) Create(ctx context.Context, p *models.PayoutRequest) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.RewardIDs == nil {
		p.RewardIDs = []primitive.ObjectID{}
	}
	_, err := r.collection.InsertOne(ctx, p)
	return translate(err)
}

func (r *PayoutRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *PayoutRepository) List(ctx context.Context, f models.PayoutFilter, page models.Pagination) ([]models.PayoutRequest, int64, error) {
	filter := bson.M{}
	if f.UserID != nil {
		filter["userId"] = *f.UserID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	payouts := []models.PayoutRequest{}
	total, err := findPage(ctx, r.collection, filter, bson.D{{Key: "createdAt", Value: -1}}, page, &payouts)
	if err != nil {
		return nil, 0, err
	}
	return payouts, total, nil
}

func (r *PayoutRepository) HasPending(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	n, err := r.collection.CountDocuments(ctx,
		bson.M{"userId": userID, "status": models.PayoutPending},
		options.Count().SetLimit(1))
	return n > 0, err
}

// Resolve settles a pending request. It returns false if the request is no
// longer pending.
func (r *PayoutRepository) Resolve(ctx context.Context, id primitive.ObjectID, res models.PayoutResolution) (bool, error) {
	set := bson.M{
		"status":      res.Status,
		"paidAmount":  res.PaidAmount,
		"adminId":     res.AdminID,
		"processedAt": res.At,
	}
	if res.RewardIDs != nil {
		set["rewardIds"] = res.RewardIDs
	}
	if res.Reference != "" {
		set["reference"] = res.Reference
	}
	if res.AdminNote != "" {
		set["adminNote"] = res.AdminNote
	}
	if res.RejectionReason != "" {
		set["rejectionReason"] = res.RejectionReason
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.PayoutPending},
		bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return result.MatchedCount == 1, nil
}
