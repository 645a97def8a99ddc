package repositories

import (
	"context"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/models"
)

type DestinationRepository struct {
	collection *mongo.Collection
}

func NewDestinationRepository(db *mongo.Database) *DestinationRepository {
	return &DestinationRepository{collection: db.Collection(config.DestinationsCollection)}
}

func (r *DestinationRepository) Create(ctx context.Context, d *models.Destination) error {
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	_, err := r.collection.InsertOne(ctx, d)
	return translate(err)
}

func (r *DestinationRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Destination, error) {
	var d models.Destination
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *DestinationRepository) FindBySlug(ctx context.Context, slug string) (*models.Destination, error) {
	var d models.Destination
	if err := r.collection.FindOne(ctx, bson.M{"slug": slug}).Decode(&d); err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

// List returns destinations sorted by name.
func (r *DestinationRepository) List(ctx context.Context, f models.DestinationFilter, page models.Pagination) ([]models.Destination, int64, error) {
	filter := bson.M{}
	if f.ActiveOnly {
		filter["isActive"] = true
	}
	if f.Country != "" {
		filter["country"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(f.Country) + "$", Options: "i"}
	}
	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"city": pattern},
			bson.M{"country": pattern},
		}
	}

	destinations := []models.Destination{}
	total, err := findPage(ctx, r.collection, filter, bson.D{{Key: "name", Value: 1}}, page, &destinations)
	if err != nil {
		return nil, 0, err
	}
	return destinations, total, nil
}

// Update replaces the stored destination.
func (r *DestinationRepository) Update(ctx context.Context, d *models.Destination) error {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": d.ID}, d)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DestinationRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
