package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
	"github.com/HSouheill/travel_booking_backend/utils"
)

// InactiveAfter is how long without requests before a user is shown offline.
const InactiveAfter = 30 * time.Minute

// UserService manages profiles and admin account controls.
type UserService struct {
	users     UserStore
	referrals *ReferralService
	logger    *zap.Logger
	now       func() time.Time
}

func NewUserService(users UserStore, referrals *ReferralService, logger *zap.Logger) *UserService {
	return &UserService{users: users, referrals: referrals, logger: logger, now: time.Now}
}

func (s *UserService) Get(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	public := user.PublicWithoutLedger()
	return &public, nil
}

// UpdateProfile changes the caller's name, phone or picture.
func (s *UserService) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.ProfileUpdate) (*models.User, error) {
	if upd.FullName != nil {
		name := utils.SanitizeInput(*upd.FullName)
		if len(name) < 2 {
			return nil, newError(ErrValidation, "full name is too short")
		}
		upd.FullName = &name
	}
	if upd.Phone != nil && *upd.Phone != "" {
		phone, err := utils.SanitizePhone(*upd.Phone)
		if err != nil {
			return nil, newError(ErrValidation, "invalid phone number")
		}
		if other, err := s.users.FindByPhone(ctx, phone); err == nil && other.ID != id {
			return nil, newError(ErrConflict, "phone number is already in use")
		} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
		upd.Phone = &phone
	}

	user, err := s.users.UpdateProfile(ctx, id, upd)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	public := user.PublicWithoutLedger()
	return &public, nil
}

// ChangePassword requires the current password.
func (s *UserService) ChangePassword(ctx context.Context, id primitive.ObjectID, req models.ChangePasswordRequest) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return notFound(err, "user not found")
	}
	if !utils.CheckPassword(user.Password, req.CurrentPassword) {
		return newError(ErrUnauthorized, "current password is incorrect")
	}
	if req.CurrentPassword == req.NewPassword {
		return newError(ErrValidation, "new password must differ from the current one")
	}
	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return notFound(s.users.UpdatePassword(ctx, id, hash), "user not found")
}

func (s *UserService) UpdateFCMToken(ctx context.Context, id primitive.ObjectID, token string) error {
	return notFound(s.users.UpdateFCMToken(ctx, id, token), "user not found")
}

func (s *UserService) List(ctx context.Context, filter models.UserFilter, page models.Pagination) ([]models.User, int64, error) {
	filter.Search = utils.SanitizeInput(filter.Search)
	return s.users.List(ctx, filter, page)
}

// SetStatus enables or disables an account. Admins cannot disable
// themselves.
func (s *UserService) SetStatus(ctx context.Context, adminID, id primitive.ObjectID, status string) error {
	if status != models.AccountStatusActive && status != models.AccountStatusDisabled {
		return newError(ErrValidation, "invalid status %q", status)
	}
	if adminID == id && status == models.AccountStatusDisabled {
		return newError(ErrValidation, "you cannot disable your own account")
	}
	if err := s.users.SetStatus(ctx, id, status); err != nil {
		return notFound(err, "user not found")
	}
	s.logger.Info("account status changed",
		zap.String("userId", id.Hex()),
		zap.String("status", status),
		zap.String("adminId", adminID.Hex()))
	return nil
}

// BootstrapAdmin creates the configured admin account when it is missing.
func (s *UserService) BootstrapAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	email, err := utils.SanitizeEmail(email)
	if err != nil {
		return err
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	now := s.now()
	admin := &models.User{
		ID:             primitive.NewObjectID(),
		Email:          email,
		Password:       hash,
		FullName:       "Administrator",
		UserType:       models.UserTypeAdmin,
		Status:         models.AccountStatusActive,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil
		}
		return err
	}
	if _, err := s.referrals.EnsureCode(ctx, admin.ID); err != nil {
		s.logger.Warn("failed to assign admin referral code", zap.Error(err))
	}
	s.logger.Info("bootstrap admin created", zap.String("email", email))
	return nil
}

// RunInactiveSweep marks users without recent activity as offline every
// interval until ctx is done.
func (s *UserService) RunInactiveSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.users.MarkInactive(ctx, s.now().Add(-InactiveAfter))
			if err != nil {
				s.logger.Warn("inactive sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Debug("marked users inactive", zap.Int64("count", n))
			}
		}
	}
}
