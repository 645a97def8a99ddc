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

type PackageRepository struct {
	collection *mongo.Collection
}

func NewPackageRepository(db *mongo.Database) *PackageRepository {
	return &PackageRepository{collection: db.Collection(config.PackagesCollection)}
}

func (r *PackageRepository) Create(ctx context.Context, p *models.Package) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	_, err := r.collection.InsertOne(ctx, p)
	return translate(err)
}

func (r *PackageRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Package, error) {
	var p models.Package
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *PackageRepository) FindBySlug(ctx context.Context, slug string) (*models.Package, error) {
	var p models.Package
	if err := r.collection.FindOne(ctx, bson.M{"slug": slug}).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func packageSort(key string) bson.D {
	switch key {
	case models.PackageSortPrice:
		return bson.D{{Key: "price", Value: 1}, {Key: "_id", Value: 1}}
	case models.PackageSortPriceDesc:
		return bson.D{{Key: "price", Value: -1}, {Key: "_id", Value: 1}}
	case models.PackageSortDuration:
		return bson.D{{Key: "durationDays", Value: 1}, {Key: "_id", Value: 1}}
	}
	return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
}

func (r *PackageRepository) List(ctx context.Context, f models.PackageFilter, page models.Pagination) ([]models.Package, int64, error) {
	filter := bson.M{}
	if f.ActiveOnly {
		filter["isActive"] = true
	}
	if f.FeaturedOnly {
		filter["isFeatured"] = true
	}
	if f.DestinationID != nil {
		filter["destinationId"] = *f.DestinationID
	}
	if f.MinPrice != nil || f.MaxPrice != nil {
		price := bson.M{}
		if f.MinPrice != nil {
			price["$gte"] = f.MinPrice.Decimal128()
		}
		if f.MaxPrice != nil {
			price["$lte"] = f.MaxPrice.Decimal128()
		}
		filter["price"] = price
	}
	if f.MinDays > 0 || f.MaxDays > 0 {
		days := bson.M{}
		if f.MinDays > 0 {
			days["$gte"] = f.MinDays
		}
		if f.MaxDays > 0 {
			days["$lte"] = f.MaxDays
		}
		filter["durationDays"] = days
	}
	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		}
	}

	packages := []models.Package{}
	total, err := findPage(ctx, r.collection, filter, packageSort(f.Sort), page, &packages)
	if err != nil {
		return nil, 0, err
	}
	return packages, total, nil
}

func (r *PackageRepository) Update(ctx context.Context, p *models.Package) error {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PackageRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PackageRepository) CountByDestination(ctx context.Context, destinationID primitive.ObjectID) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"destinationId": destinationID})
}
