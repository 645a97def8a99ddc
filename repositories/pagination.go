package repositories

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/travel_booking_backend/models"
)

// findPage runs a paginated Find and decodes the page into out, which must
// be a pointer to a slice. It returns the total number of matches.
func findPage(ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D, page models.Pagination, out interface{}, projection ...bson.M) (int64, error) {
	page = page.Normalize()

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}

	opts := options.Find().
		SetSort(sort).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))
	if len(projection) > 0 {
		opts.SetProjection(projection[0])
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return 0, err
	}
	return total, nil
}
