package memory

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
)

type UserRepository struct {
	db *DB
}

// Create enforces the unique email and referral code indexes.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, u := range r.db.users {
		if u.Email == user.Email {
			return repositories.ErrDuplicate
		}
		if user.Referral.Code != "" && u.Referral.Code == user.Referral.Code {
			return repositories.ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	repositories.PrepareUser(user)
	r.db.users[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, u := range r.db.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return phone != "" && u.Phone == phone })
}

func (r *UserRepository) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return code != "" && u.Referral.Code == code })
}

func (r *UserRepository) List(ctx context.Context, f models.UserFilter, page models.Pagination) ([]models.User, int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	search := strings.ToLower(f.Search)
	var matched []models.User
	for _, u := range r.db.users {
		if f.UserType != "" && u.UserType != f.UserType {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		if search != "" && !containsFold(search, u.Email, u.FullName, u.Phone, u.Referral.Code) {
			continue
		}
		c := cloneUser(u).PublicWithoutLedger()
		matched = append(matched, c)
	}
	users, total := paginate(matched, func(a, b models.User) bool { return a.CreatedAt.After(b.CreatedAt) }, page)
	return users, total, nil
}

func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func (r *UserRepository) update(id primitive.ObjectID, apply func(*models.User)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	apply(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.ProfileUpdate) (*models.User, error) {
	err := r.update(id, func(u *models.User) {
		if upd.FullName != nil {
			u.FullName = *upd.FullName
		}
		if upd.Phone != nil {
			u.Phone = *upd.Phone
		}
		if upd.ProfilePic != nil {
			u.ProfilePic = *upd.ProfilePic
		}
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	return r.update(id, func(u *models.User) { u.Password = hash })
}

func (r *UserRepository) UpdateFCMToken(ctx context.Context, id primitive.ObjectID, token string) error {
	return r.update(id, func(u *models.User) { u.FCMToken = token })
}

func (r *UserRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	return r.update(id, func(u *models.User) { u.Status = status })
}

func (r *UserRepository) TouchActivity(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if u, ok := r.db.users[id]; ok {
		u.LastActivityAt = at
		u.IsActive = true
	}
	return nil
}

func (r *UserRepository) MarkInactive(ctx context.Context, before time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, u := range r.db.users {
		if u.IsActive && u.LastActivityAt.Before(before) {
			u.IsActive = false
			n++
		}
	}
	return n, nil
}
