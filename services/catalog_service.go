package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
	"github.com/HSouheill/travel_booking_backend/utils"
)

const defaultCurrency = "USD"

// CatalogService manages destinations and packages.
type CatalogService struct {
	destinations DestinationStore
	packages     PackageStore
	bookings     BookingStore
	logger       *zap.Logger
	now          func() time.Time
}

func NewCatalogService(stores Stores, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		destinations: stores.Destinations,
		packages:     stores.Packages,
		bookings:     stores.Bookings,
		logger:       logger,
		now:          time.Now,
	}
}

func slugFor(explicit, name string) (string, error) {
	source := explicit
	if source == "" {
		source = name
	}
	slug := utils.Slugify(source)
	if slug == "" {
		return "", newError(ErrValidation, "a slug could not be derived from %q", source)
	}
	return slug, nil
}

func duplicateSlug(err error) error {
	if errors.Is(err, repositories.ErrDuplicate) {
		return newError(ErrConflict, "slug is already in use")
	}
	return err
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *CatalogService) applyDestination(d *models.Destination, req models.DestinationRequest) error {
	slug, err := slugFor(req.Slug, req.Name)
	if err != nil {
		return err
	}
	d.Name = utils.SanitizeInput(req.Name)
	d.Slug = slug
	d.Country = utils.SanitizeInput(req.Country)
	d.City = utils.SanitizeInput(req.City)
	d.Description = utils.SanitizeInput(req.Description)
	d.Highlights = emptyIfNil(utils.SanitizeStringArray(req.Highlights))
	d.ImageURLs = emptyIfNil(req.ImageURLs)
	d.IsActive = boolOr(req.IsActive, d.IsActive)
	d.UpdatedAt = s.now()
	return nil
}

func (s *CatalogService) CreateDestination(ctx context.Context, req models.DestinationRequest) (*models.Destination, error) {
	d := &models.Destination{ID: primitive.NewObjectID(), IsActive: true, CreatedAt: s.now()}
	if err := s.applyDestination(d, req); err != nil {
		return nil, err
	}
	if err := s.destinations.Create(ctx, d); err != nil {
		return nil, duplicateSlug(err)
	}
	s.logger.Info("destination created", zap.String("id", d.ID.Hex()), zap.String("slug", d.Slug))
	return d, nil
}

func (s *CatalogService) UpdateDestination(ctx context.Context, id primitive.ObjectID, req models.DestinationRequest) (*models.Destination, error) {
	d, err := s.destinations.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "destination not found")
	}
	if err := s.applyDestination(d, req); err != nil {
		return nil, err
	}
	if err := s.destinations.Update(ctx, d); err != nil {
		return nil, notFound(duplicateSlug(err), "destination not found")
	}
	return d, nil
}

// DeleteDestination refuses while packages still point at the destination.
func (s *CatalogService) DeleteDestination(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.destinations.FindByID(ctx, id); err != nil {
		return notFound(err, "destination not found")
	}
	n, err := s.packages.CountByDestination(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return newError(ErrConflict, "destination still has %d package(s)", n)
	}
	return notFound(s.destinations.Delete(ctx, id), "destination not found")
}

// GetDestination looks a destination up by id or slug. Inactive ones are
// hidden unless includeInactive is set.
func (s *CatalogService) GetDestination(ctx context.Context, idOrSlug string, includeInactive bool) (*models.Destination, error) {
	var d *models.Destination
	var err error
	if id, perr := primitive.ObjectIDFromHex(idOrSlug); perr == nil {
		d, err = s.destinations.FindByID(ctx, id)
	} else {
		d, err = s.destinations.FindBySlug(ctx, strings.ToLower(idOrSlug))
	}
	if err != nil {
		return nil, notFound(err, "destination not found")
	}
	if !d.IsActive && !includeInactive {
		return nil, newError(ErrNotFound, "destination not found")
	}
	return d, nil
}

func (s *CatalogService) ListDestinations(ctx context.Context, filter models.DestinationFilter, page models.Pagination) ([]models.Destination, int64, error) {
	filter.Search = utils.SanitizeInput(filter.Search)
	return s.destinations.List(ctx, filter, page)
}

func (s *CatalogService) applyPackage(ctx context.Context, p *models.Package, req models.PackageRequest) error {
	destID, err := primitive.ObjectIDFromHex(req.DestinationID)
	if err != nil {
		return newError(ErrValidation, "invalid destination ID")
	}
	if _, err := s.destinations.FindByID(ctx, destID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return newError(ErrValidation, "destination does not exist")
		}
		return err
	}
	if !req.Price.IsPositive() {
		return newError(ErrValidation, "price must be positive")
	}
	slug, err := slugFor(req.Slug, req.Title)
	if err != nil {
		return err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	itinerary := make([]models.ItineraryDay, 0, len(req.Itinerary))
	for _, day := range req.Itinerary {
		itinerary = append(itinerary, models.ItineraryDay{
			Day:         day.Day,
			Title:       utils.SanitizeInput(day.Title),
			Description: utils.SanitizeInput(day.Description),
		})
	}

	p.Title = utils.SanitizeInput(req.Title)
	p.Slug = slug
	p.DestinationID = destID
	p.Description = utils.SanitizeInput(req.Description)
	p.DurationDays = req.DurationDays
	p.Price = req.Price
	p.Currency = currency
	p.MaxTravelers = req.MaxTravelers
	p.Itinerary = itinerary
	p.Inclusions = emptyIfNil(utils.SanitizeStringArray(req.Inclusions))
	p.Exclusions = emptyIfNil(utils.SanitizeStringArray(req.Exclusions))
	p.IsFeatured = req.IsFeatured
	p.IsActive = boolOr(req.IsActive, p.IsActive)
	p.UpdatedAt = s.now()
	return nil
}

func (s *CatalogService) CreatePackage(ctx context.Context, req models.PackageRequest) (*models.Package, error) {
	p := &models.Package{ID: primitive.NewObjectID(), IsActive: true, CreatedAt: s.now()}
	if err := s.applyPackage(ctx, p, req); err != nil {
		return nil, err
	}
	if err := s.packages.Create(ctx, p); err != nil {
		return nil, duplicateSlug(err)
	}
	s.logger.Info("package created", zap.String("id", p.ID.Hex()), zap.String("slug", p.Slug))
	return p, nil
}

func (s *CatalogService) UpdatePackage(ctx context.Context, id primitive.ObjectID, req models.PackageRequest) (*models.Package, error) {
	p, err := s.packages.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "package not found")
	}
	if err := s.applyPackage(ctx, p, req); err != nil {
		return nil, err
	}
	if err := s.packages.Update(ctx, p); err != nil {
		return nil, notFound(duplicateSlug(err), "package not found")
	}
	return p, nil
}

// DeletePackage refuses while pending or confirmed bookings exist.
func (s *CatalogService) DeletePackage(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.packages.FindByID(ctx, id); err != nil {
		return notFound(err, "package not found")
	}
	active, err := s.bookings.HasActiveForPackage(ctx, id)
	if err != nil {
		return err
	}
	if active {
		return newError(ErrConflict, "package has pending or confirmed bookings")
	}
	return notFound(s.packages.Delete(ctx, id), "package not found")
}

func (s *CatalogService) GetPackage(ctx context.Context, idOrSlug string, includeInactive bool) (*models.Package, error) {
	var p *models.Package
	var err error
	if id, perr := primitive.ObjectIDFromHex(idOrSlug); perr == nil {
		p, err = s.packages.FindByID(ctx, id)
	} else {
		p, err = s.packages.FindBySlug(ctx, strings.ToLower(idOrSlug))
	}
	if err != nil {
		return nil, notFound(err, "package not found")
	}
	if !p.IsActive && !includeInactive {
		return nil, newError(ErrNotFound, "package not found")
	}
	return p, nil
}

func (s *CatalogService) ListPackages(ctx context.Context, filter models.PackageFilter, page models.Pagination) ([]models.Package, int64, error) {
	switch filter.Sort {
	case "", models.PackageSortPrice, models.PackageSortPriceDesc, models.PackageSortDuration, models.PackageSortNewest:
	default:
		return nil, 0, newError(ErrValidation, "unsupported sort %q", filter.Sort)
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return nil, 0, newError(ErrValidation, "minPrice cannot exceed maxPrice")
	}
	filter.Search = utils.SanitizeInput(filter.Search)
	return s.packages.List(ctx, filter, page)
}
