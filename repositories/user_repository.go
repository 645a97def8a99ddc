package repositories

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/models"
)

// listProjection keeps secrets and the ledger out of user listings.
var listProjection = bson.M{"password": 0, "fcmToken": 0, "referral.rewardHistory": 0}

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection(config.UsersCollection),
	}
}

// Create inserts a new user. Nil slices are stored as empty arrays so later
// $push updates on the ledger do not fail.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	PrepareUser(user)
	_, err := r.collection.InsertOne(ctx, user)
	return translate(err)
}

// PrepareUser fills the empty referral fields a new user document needs.
func PrepareUser(user *models.User) {
	if user.Referral.RewardHistory == nil {
		user.Referral.RewardHistory = []models.RewardEntry{}
	}
	if user.Referral.MilestonesAchieved == nil {
		user.Referral.MilestonesAchieved = []int{}
	}
	if user.Referral.Tier == "" {
		user.Referral.Tier = models.TierBronze
	}
	if user.Status == "" {
		user.Status = models.AccountStatusActive
	}
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"phone": phone})
}

func (r *UserRepository) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"referral.code": code})
}

// List returns users for the admin listing, newest first.
func (r *UserRepository) List(ctx context.Context, f models.UserFilter, page models.Pagination) ([]models.User, int64, error) {
	filter := bson.M{}
	if f.UserType != "" {
		filter["userType"] = f.UserType
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"email": pattern},
			bson.M{"fullName": pattern},
			bson.M{"phone": pattern},
			bson.M{"referral.code": pattern},
		}
	}

	users := []models.User{}
	total, err := findPage(ctx, r.collection, filter, bson.D{{Key: "createdAt", Value: -1}}, page, &users, listProjection)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.ProfileUpdate) (*models.User, error) {
	set := bson.M{"updatedAt": time.Now()}
	if upd.FullName != nil {
		set["fullName"] = *upd.FullName
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}
	if upd.ProfilePic != nil {
		set["profilePic"] = *upd.ProfilePic
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *UserRepository) updateFields(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	set["updatedAt"] = time.Now()
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	return r.updateFields(ctx, id, bson.M{"password": hash})
}

func (r *UserRepository) UpdateFCMToken(ctx context.Context, id primitive.ObjectID, token string) error {
	return r.updateFields(ctx, id, bson.M{"fcmToken": token})
}

func (r *UserRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	return r.updateFields(ctx, id, bson.M{"status": status})
}

// TouchActivity records that the user made an authenticated request.
func (r *UserRepository) TouchActivity(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"lastActivityAt": at,
		"isActive":       true,
	}})
	return err
}

// MarkInactive clears the presence flag of users idle since before.
func (r *UserRepository) MarkInactive(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx, bson.M{
		"isActive":       true,
		"lastActivityAt": bson.M{"$lt": before},
	}, bson.M{"$set": bson.M{"isActive": false}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
