package memory

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
)

type DestinationRepository struct {
	db *DB
}

func cloneDestination(d *models.Destination) *models.Destination {
	c := *d
	c.Highlights = append([]string{}, d.Highlights...)
	c.ImageURLs = append([]string{}, d.ImageURLs...)
	return &c
}

func (r *DestinationRepository) slugTaken(slug string, except primitive.ObjectID) bool {
	for id, d := range r.db.destinations {
		if id != except && d.Slug == slug {
			return true
		}
	}
	return false
}

func (r *DestinationRepository) Create(ctx context.Context, d *models.Destination) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	if r.slugTaken(d.Slug, d.ID) {
		return repositories.ErrDuplicate
	}
	r.db.destinations[d.ID] = cloneDestination(d)
	return nil
}

func (r *DestinationRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Destination, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	d, ok := r.db.destinations[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneDestination(d), nil
}

func (r *DestinationRepository) FindBySlug(ctx context.Context, slug string) (*models.Destination, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, d := range r.db.destinations {
		if d.Slug == slug {
			return cloneDestination(d), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *DestinationRepository) List(ctx context.Context, f models.DestinationFilter, page models.Pagination) ([]models.Destination, int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	search := strings.ToLower(f.Search)
	var matched []models.Destination
	for _, d := range r.db.destinations {
		if f.ActiveOnly && !d.IsActive {
			continue
		}
		if f.Country != "" && !strings.EqualFold(d.Country, f.Country) {
			continue
		}
		if search != "" && !containsFold(search, d.Name, d.City, d.Country) {
			continue
		}
		matched = append(matched, *cloneDestination(d))
	}
	out, total := paginate(matched, func(a, b models.Destination) bool { return a.Name < b.Name }, page)
	return out, total, nil
}

func (r *DestinationRepository) Update(ctx context.Context, d *models.Destination) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.destinations[d.ID]; !ok {
		return repositories.ErrNotFound
	}
	if r.slugTaken(d.Slug, d.ID) {
		return repositories.ErrDuplicate
	}
	r.db.destinations[d.ID] = cloneDestination(d)
	return nil
}

func (r *DestinationRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.destinations[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.db.destinations, id)
	return nil
}

type PackageRepository struct {
	db *DB
}

func clonePackage(p *models.Package) *models.Package {
	c := *p
	c.Itinerary = append([]models.ItineraryDay{}, p.Itinerary...)
	c.Inclusions = append([]string{}, p.Inclusions...)
	c.Exclusions = append([]string{}, p.Exclusions...)
	return &c
}

func (r *PackageRepository) slugTaken(slug string, except primitive.ObjectID) bool {
	for id, p := range r.db.packages {
		if id != except && p.Slug == slug {
			return true
		}
	}
	return false
}

func (r *PackageRepository) Create(ctx context.Context, p *models.Package) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if r.slugTaken(p.Slug, p.ID) {
		return repositories.ErrDuplicate
	}
	r.db.packages[p.ID] = clonePackage(p)
	return nil
}

func (r *PackageRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Package, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.packages[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return clonePackage(p), nil
}

func (r *PackageRepository) FindBySlug(ctx context.Context, slug string) (*models.Package, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, p := range r.db.packages {
		if p.Slug == slug {
			return clonePackage(p), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func matchPackage(p *models.Package, f models.PackageFilter) bool {
	switch {
	case f.ActiveOnly && !p.IsActive,
		f.FeaturedOnly && !p.IsFeatured,
		f.DestinationID != nil && p.DestinationID != *f.DestinationID,
		f.MinPrice != nil && p.Price.LessThan(*f.MinPrice),
		f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice),
		f.MinDays > 0 && p.DurationDays < f.MinDays,
		f.MaxDays > 0 && p.DurationDays > f.MaxDays:
		return false
	}
	if f.Search != "" && !containsFold(strings.ToLower(f.Search), p.Title, p.Description) {
		return false
	}
	return true
}

func packageLess(key string) func(a, b models.Package) bool {
	switch key {
	case models.PackageSortPrice:
		return func(a, b models.Package) bool { return a.Price.LessThan(b.Price) }
	case models.PackageSortPriceDesc:
		return func(a, b models.Package) bool { return a.Price.GreaterThan(b.Price) }
	case models.PackageSortDuration:
		return func(a, b models.Package) bool { return a.DurationDays < b.DurationDays }
	}
	return func(a, b models.Package) bool { return a.CreatedAt.After(b.CreatedAt) }
}

func (r *PackageRepository) List(ctx context.Context, f models.PackageFilter, page models.Pagination) ([]models.Package, int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var matched []models.Package
	for _, p := range r.db.packages {
		if matchPackage(p, f) {
			matched = append(matched, *clonePackage(p))
		}
	}
	out, total := paginate(matched, packageLess(f.Sort), page)
	return out, total, nil
}

func (r *PackageRepository) Update(ctx context.Context, p *models.Package) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.packages[p.ID]; !ok {
		return repositories.ErrNotFound
	}
	if r.slugTaken(p.Slug, p.ID) {
		return repositories.ErrDuplicate
	}
	r.db.packages[p.ID] = clonePackage(p)
	return nil
}

func (r *PackageRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.packages[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.db.packages, id)
	return nil
}

func (r *PackageRepository) CountByDestination(ctx context.Context, destinationID primitive.ObjectID) (int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var n int64
	for _, p := range r.db.packages {
		if p.DestinationID == destinationID {
			n++
		}
	}
	return n, nil
}
