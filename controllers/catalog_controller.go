package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/services"
)

// CatalogController serves destinations and travel packages. Public
// handlers only see active entries; the admin ones see everything.
type CatalogController struct {
	catalog *services.CatalogService
	logger  *zap.Logger
}

// NewCatalogController creates a new catalog controller
func NewCatalogController(catalog *services.CatalogService, logger *zap.Logger) *CatalogController {
	return &CatalogController{catalog: catalog, logger: logger}
}

func (c *CatalogController) listDestinations(ctx echo.Context, activeOnly bool) error {
	page := pageFromQuery(ctx)
	filter := models.DestinationFilter{
		Search:     ctx.QueryParam("q"),
		Country:    ctx.QueryParam("country"),
		ActiveOnly: activeOnly,
	}
	items, total, err := c.catalog.ListDestinations(ctx.Request().Context(), filter, page)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respondPage(ctx, "Destinations retrieved successfully", items, page, total)
}

func (c *CatalogController) ListDestinations(ctx echo.Context) error {
	return c.listDestinations(ctx, true)
}

func (c *CatalogController) AdminListDestinations(ctx echo.Context) error {
	return c.listDestinations(ctx, false)
}

func (c *CatalogController) getDestination(ctx echo.Context, includeInactive bool) error {
	d, err := c.catalog.GetDestination(ctx.Request().Context(), ctx.Param("id"), includeInactive)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Destination retrieved successfully", d)
}

// GetDestination accepts an id or a slug
func (c *CatalogController) GetDestination(ctx echo.Context) error {
	return c.getDestination(ctx, false)
}

func (c *CatalogController) AdminGetDestination(ctx echo.Context) error {
	return c.getDestination(ctx, true)
}

func (c *CatalogController) CreateDestination(ctx echo.Context) error {
	var req models.DestinationRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	d, err := c.catalog.CreateDestination(ctx.Request().Context(), req)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusCreated, "Destination created successfully", d)
}

func (c *CatalogController) UpdateDestination(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	var req models.DestinationRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	d, err := c.catalog.UpdateDestination(ctx.Request().Context(), id, req)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Destination updated successfully", d)
}

func (c *CatalogController) DeleteDestination(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	if err := c.catalog.DeleteDestination(ctx.Request().Context(), id); err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Destination deleted successfully", nil)
}

func (c *CatalogController) packageFilter(ctx echo.Context, activeOnly bool) (models.PackageFilter, error) {
	filter := models.PackageFilter{
		Search:       ctx.QueryParam("q"),
		Sort:         ctx.QueryParam("sort"),
		FeaturedOnly: ctx.QueryParam("featured") == "true",
		ActiveOnly:   activeOnly,
	}
	var err error
	if filter.DestinationID, err = optionalObjectIDQuery(ctx, "destinationId"); err != nil {
		return filter, err
	}
	if filter.MinPrice, err = optionalMoneyQuery(ctx, "minPrice"); err != nil {
		return filter, err
	}
	if filter.MaxPrice, err = optionalMoneyQuery(ctx, "maxPrice"); err != nil {
		return filter, err
	}
	for name, dst := range map[string]*int{"minDays": &filter.MinDays, "maxDays": &filter.MaxDays} {
		raw := ctx.QueryParam(name)
		if raw == "" {
			continue
		}
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 0 {
			respond(ctx, http.StatusBadRequest, "Invalid "+name, nil)
			return filter, errResponded
		}
		*dst = n
	}
	return filter, nil
}

func (c *CatalogController) listPackages(ctx echo.Context, activeOnly bool) error {
	filter, err := c.packageFilter(ctx, activeOnly)
	if err != nil {
		return done(err)
	}
	page := pageFromQuery(ctx)
	items, total, err := c.catalog.ListPackages(ctx.Request().Context(), filter, page)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respondPage(ctx, "Packages retrieved successfully", items, page, total)
}

func (c *CatalogController) ListPackages(ctx echo.Context) error {
	return c.listPackages(ctx, true)
}

func (c *CatalogController) AdminListPackages(ctx echo.Context) error {
	return c.listPackages(ctx, false)
}

func (c *CatalogController) getPackage(ctx echo.Context, includeInactive bool) error {
	p, err := c.catalog.GetPackage(ctx.Request().Context(), ctx.Param("id"), includeInactive)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Package retrieved successfully", p)
}

// GetPackage accepts an id or a slug
func (c *CatalogController) GetPackage(ctx echo.Context) error {
	return c.getPackage(ctx, false)
}

func (c *CatalogController) AdminGetPackage(ctx echo.Context) error {
	return c.getPackage(ctx, true)
}

func (c *CatalogController) CreatePackage(ctx echo.Context) error {
	var req models.PackageRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	p, err := c.catalog.CreatePackage(ctx.Request().Context(), req)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusCreated, "Package created successfully", p)
}

func (c *CatalogController) UpdatePackage(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	var req models.PackageRequest
	if err := bind(ctx, &req); err != nil {
		return done(err)
	}
	p, err := c.catalog.UpdatePackage(ctx.Request().Context(), id, req)
	if err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Package updated successfully", p)
}

func (c *CatalogController) DeletePackage(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return done(err)
	}
	if err := c.catalog.DeletePackage(ctx.Request().Context(), id); err != nil {
		return respondError(ctx, c.logger, err)
	}
	return respond(ctx, http.StatusOK, "Package deleted successfully", nil)
}
