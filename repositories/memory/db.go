// Package memory implements the storage interfaces in process. It follows
// the same conditional-update rules as the MongoDB repositories and backs
// STORAGE_DRIVER=memory as well as the tests.
package memory

import (
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/models"
)

// DB holds every collection behind one lock.
type DB struct {
	mu            sync.RWMutex
	users         map[primitive.ObjectID]*models.User
	destinations  map[primitive.ObjectID]*models.Destination
	packages      map[primitive.ObjectID]*models.Package
	bookings      map[primitive.ObjectID]*models.Booking
	notifications map[primitive.ObjectID]*models.Notification
	payouts       map[primitive.ObjectID]*models.PayoutRequest
}

func NewDB() *DB {
	return &DB{
		users:         map[primitive.ObjectID]*models.User{},
		destinations:  map[primitive.ObjectID]*models.Destination{},
		packages:      map[primitive.ObjectID]*models.Package{},
		bookings:      map[primitive.ObjectID]*models.Booking{},
		notifications: map[primitive.ObjectID]*models.Notification{},
		payouts:       map[primitive.ObjectID]*models.PayoutRequest{},
	}
}

func (db *DB) Users() *UserRepository                 { return &UserRepository{db: db} }
func (db *DB) Referrals() *ReferralRepository         { return &ReferralRepository{db: db} }
func (db *DB) Bookings() *BookingRepository           { return &BookingRepository{db: db} }
func (db *DB) Destinations() *DestinationRepository   { return &DestinationRepository{db: db} }
func (db *DB) Packages() *PackageRepository           { return &PackageRepository{db: db} }
func (db *DB) Notifications() *NotificationRepository { return &NotificationRepository{db: db} }
func (db *DB) Payouts() *PayoutRepository             { return &PayoutRepository{db: db} }

// paginate sorts items with less and cuts out the requested page.
func paginate[T any](items []T, less func(a, b T) bool, page models.Pagination) ([]T, int64) {
	page = page.Normalize()
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })

	total := int64(len(items))
	start := int(page.Skip())
	if start > len(items) {
		start = len(items)
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out, total
}

// firstN sorts items with less and keeps at most n of them.
func firstN[T any](items []T, less func(a, b T) bool, n int) []T {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

func cloneUser(u *models.User) *models.User {
	c := *u
	ref := &c.Referral
	if u.Referral.ReferredBy != nil {
		id := *u.Referral.ReferredBy
		ref.ReferredBy = &id
	}
	if u.Referral.ReferredAt != nil {
		t := *u.Referral.ReferredAt
		ref.ReferredAt = &t
	}
	ref.MilestonesAchieved = append([]int{}, u.Referral.MilestonesAchieved...)
	ref.RewardHistory = make([]models.RewardEntry, len(u.Referral.RewardHistory))
	for i, e := range u.Referral.RewardHistory {
		ref.RewardHistory[i] = cloneEntry(e)
	}
	return &c
}

func cloneEntry(e models.RewardEntry) models.RewardEntry {
	e.History = append([]models.RewardStatusChange{}, e.History...)
	return e
}

func cloneBooking(b *models.Booking) *models.Booking {
	c := *b
	c.AppliedRewards = append([]primitive.ObjectID{}, b.AppliedRewards...)
	c.StatusHistory = append([]models.BookingStatusChange{}, b.StatusHistory...)
	return &c
}
