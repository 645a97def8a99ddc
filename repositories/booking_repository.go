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

type BookingRepository struct {
	collection *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{collection: db.Collection(config.BookingsCollection)}
}

func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	if b.AppliedRewards == nil {
		b.AppliedRewards = []primitive.ObjectID{}
	}
	if b.StatusHistory == nil {
		b.StatusHistory = []models.BookingStatusChange{}
	}
	_, err := r.collection.InsertOne(ctx, b)
	return translate(err)
}

func (r *BookingRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	var b models.Booking
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&b); err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func bookingFilter(f models.BookingFilter) bson.M {
	filter := bson.M{}
	if f.UserID != nil {
		filter["userId"] = *f.UserID
	}
	if f.PackageID != nil {
		filter["packageId"] = *f.PackageID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.TravelFrom != nil || f.TravelTo != nil {
		dateFilter := bson.M{}
		if f.TravelFrom != nil {
			dateFilter["$gte"] = *f.TravelFrom
		}
		if f.TravelTo != nil {
			dateFilter["$lte"] = *f.TravelTo
		}
		filter["travelDate"] = dateFilter
	}
	return filter
}

// List returns bookings newest first.
func (r *BookingRepository) List(ctx context.Context, f models.BookingFilter, page models.Pagination) ([]models.Booking, int64, error) {
	bookings := []models.Booking{}
	total, err := findPage(ctx, r.collection, bookingFilter(f), bson.D{{Key: "createdAt", Value: -1}}, page, &bookings)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// CountByStatus counts matching bookings per status, ignoring f.Status.
func (r *BookingRepository) CountByStatus(ctx context.Context, f models.BookingFilter) (map[models.BookingStatus]int64, error) {
	f.Status = ""
	cursor, err := r.collection.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$match", Value: bookingFilter(f)}},
		bson.D{{Key: "$group", Value: bson.M{"_id": "$status", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.BookingStatus `bson:"_id"`
		N      int64                `bson:"n"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	counts := map[models.BookingStatus]int64{}
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

// Transition applies t only while the booking is still in t.From.
func (r *BookingRepository) Transition(ctx context.Context, id primitive.ObjectID, t models.BookingStatusTransition) (bool, error) {
	set := bson.M{
		"status":    t.To,
		"updatedAt": t.At,
	}
	switch t.To {
	case models.BookingCompleted:
		set["completedAt"] = t.At
	case models.BookingCancelled:
		set["cancelledAt"] = t.At
		if t.CancellationReason != "" {
			set["cancellationReason"] = t.CancellationReason
		}
	}

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": t.From},
		bson.M{
			"$set": set,
			"$push": bson.M{"statusHistory": models.BookingStatusChange{
				From: t.From,
				To:   t.To,
				At:   t.At,
				By:   t.By,
				Note: t.Note,
			}},
		})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// ApplyRewards records redeemed rewards on a pending booking that has none
// yet. It returns false when that no longer holds.
func (r *BookingRepository) ApplyRewards(ctx context.Context, id primitive.ObjectID, rewardIDs []primitive.ObjectID, discount, total models.Money, at time.Time) (bool, error) {
	filter, update := applyRewardsQuery(id, rewardIDs, discount, total, at)
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func applyRewardsQuery(id primitive.ObjectID, rewardIDs []primitive.ObjectID, discount, total models.Money, at time.Time) (filter, update bson.M) {
	filter = bson.M{
		"_id":            id,
		"status":         models.BookingPending,
		"appliedRewards": bson.M{"$size": 0},
	}
	update = bson.M{"$set": bson.M{
		"appliedRewards": rewardIDs,
		"rewardDiscount": discount,
		"totalAmount":    total,
		"updatedAt":      at,
	}}
	return filter, update
}

func (r *BookingRepository) MarkRewardProcessed(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"rewardProcessed": true,
		"updatedAt":       time.Now(),
	}})
	return err
}

// FindUnprocessedCompleted returns completed bookings whose referral reward
// has not been settled, oldest completion first.
func (r *BookingRepository) FindUnprocessedCompleted(ctx context.Context, limit int) ([]models.Booking, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "completedAt", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, bson.M{
		"status":          models.BookingCompleted,
		"rewardProcessed": bson.M{"$ne": true},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	bookings := []models.Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *BookingRepository) HasCompleted(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	n, err := r.collection.CountDocuments(ctx,
		bson.M{"userId": userID, "status": models.BookingCompleted},
		options.Count().SetLimit(1))
	return n > 0, err
}

// UsersWithCompleted reports which of userIDs have a completed booking.
func (r *BookingRepository) UsersWithCompleted(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	out := map[primitive.ObjectID]bool{}
	if len(userIDs) == 0 {
		return out, nil
	}
	ids, err := r.collection.Distinct(ctx, "userId", bson.M{
		"userId": bson.M{"$in": userIDs},
		"status": models.BookingCompleted,
	})
	if err != nil {
		return nil, err
	}
	for _, raw := range ids {
		if id, ok := raw.(primitive.ObjectID); ok {
			out[id] = true
		}
	}
	return out, nil
}

// HasActiveForPackage reports whether the package has pending or confirmed bookings.
func (r *BookingRepository) HasActiveForPackage(ctx context.Context, packageID primitive.ObjectID) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{
		"packageId": packageID,
		"status":    bson.M{"$in": bson.A{models.BookingPending, models.BookingConfirmed}},
	}, options.Count().SetLimit(1))
	return n > 0, err
}

// DeleteCancelled removes a booking only if it is cancelled.
func (r *BookingRepository) DeleteCancelled(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "status": models.BookingCancelled})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}
