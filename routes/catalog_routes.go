package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/travel_booking_backend/controllers"
)

// RegisterCatalogRoutes sets up destination and package routes
func RegisterCatalogRoutes(public, admin *echo.Group, c *controllers.CatalogController) {
	public.GET("/destinations", c.ListDestinations)
	public.GET("/destinations/:id", c.GetDestination)
	public.GET("/packages", c.ListPackages)
	public.GET("/packages/:id", c.GetPackage)

	admin.GET("/destinations", c.AdminListDestinations)
	admin.GET("/destinations/:id", c.AdminGetDestination)
	admin.POST("/destinations", c.CreateDestination)
	admin.PUT("/destinations/:id", c.UpdateDestination)
	admin.DELETE("/destinations/:id", c.DeleteDestination)

	admin.GET("/packages", c.AdminListPackages)
	admin.GET("/packages/:id", c.AdminGetPackage)
	admin.POST("/packages", c.CreatePackage)
	admin.PUT("/packages/:id", c.UpdatePackage)
	admin.DELETE("/packages/:id", c.DeletePackage)
}
