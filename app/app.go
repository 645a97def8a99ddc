// Package app wires stores, services, controllers and middleware into an
// Echo server.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/controllers"
	"github.com/HSouheill/travel_booking_backend/middleware"
	"github.com/HSouheill/travel_booking_backend/models"
	"github.com/HSouheill/travel_booking_backend/repositories"
	"github.com/HSouheill/travel_booking_backend/repositories/memory"
	"github.com/HSouheill/travel_booking_backend/routes"
	"github.com/HSouheill/travel_booking_backend/services"
	"github.com/HSouheill/travel_booking_backend/utils"
	"github.com/HSouheill/travel_booking_backend/websocket"
)

// Background loop intervals.
const (
	inactiveSweepInterval  = 5 * time.Minute
	rewardSweepInterval    = 15 * time.Minute
	blacklistSweepInterval = 10 * time.Minute
	limiterSweepInterval   = 5 * time.Minute
	loginSweepInterval     = 10 * time.Minute
)

// MongoStores backs every store with a MongoDB collection.
func MongoStores(db *mongo.Database) services.Stores {
	return services.Stores{
		Users:         repositories.NewUserRepository(db),
		Ledger:        repositories.NewReferralRepository(db),
		Bookings:      repositories.NewBookingRepository(db),
		Destinations:  repositories.NewDestinationRepository(db),
		Packages:      repositories.NewPackageRepository(db),
		Notifications: repositories.NewNotificationRepository(db),
		Payouts:       repositories.NewPayoutRepository(db),
	}
}

// MemoryStores keeps everything in process.
func MemoryStores(db *memory.DB) services.Stores {
	return services.Stores{
		Users:         db.Users(),
		Ledger:        db.Referrals(),
		Bookings:      db.Bookings(),
		Destinations:  db.Destinations(),
		Packages:      db.Packages(),
		Notifications: db.Notifications(),
		Payouts:       db.Payouts(),
	}
}

// Deps are the connections the server is built from. Redis, Messaging and
// Ping may be nil.
type Deps struct {
	Settings  *config.Settings
	Stores    services.Stores
	Redis     *redis.Client
	Messaging *messaging.Client
	Ping      func(ctx context.Context) error
	Logger    *zap.Logger
}

// App is a fully wired server.
type App struct {
	Echo      *echo.Echo
	Hub       *websocket.Hub
	Tokens    *middleware.JWTManager
	Auth      *services.AuthService
	Users     *services.UserService
	Referrals *services.ReferralService
	Bookings  *services.BookingService
	Catalog   *services.CatalogService
	Payouts   *services.PayoutService

	blacklist *utils.TokenBlacklist
	limiter   *middleware.RateLimiter
	logger    *zap.Logger
}

// New builds the services and the HTTP surface.
func New(d Deps) *App {
	s, logger := d.Settings, d.Logger

	hub := websocket.NewHub()
	blacklist := utils.NewTokenBlacklist(d.Redis, logger)
	tokens := middleware.NewJWTManager(s.JWTSecret, s.AccessTokenTTL, s.RefreshTokenTTL, blacklist, d.Stores.Users, logger)
	locker := utils.NewLocker(d.Redis)

	var pusher services.Pusher
	if d.Messaging != nil {
		pusher = services.NewFCMPusher(d.Messaging)
	}
	var mailer services.Mailer
	if s.SMTPEnabled() {
		mailer = services.NewSMTPMailer(s.SMTPHost, s.SMTPPort, s.SMTPUsername, s.SMTPPassword, s.SMTPFrom)
	}

	notifier := services.NewNotificationService(d.Stores.Notifications, d.Stores.Users, hub, pusher, mailer, logger)
	referrals := services.NewReferralService(d.Stores, notifier, locker, s.Referral, s.AppBaseURL, logger)
	a := &App{
		Hub:       hub,
		Tokens:    tokens,
		Referrals: referrals,
		Auth:      services.NewAuthService(d.Stores.Users, referrals, tokens, utils.NewRememberMeStore(d.Redis, s.JWTSecret), logger),
		Users:     services.NewUserService(d.Stores.Users, referrals, logger),
		Bookings:  services.NewBookingService(d.Stores, referrals, notifier, logger),
		Catalog:   services.NewCatalogService(d.Stores, logger),
		Payouts:   services.NewPayoutService(d.Stores, notifier, locker, s.Referral, logger),
		blacklist: blacklist,
		limiter:   middleware.NewRateLimiter(),
		logger:    logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = utils.NewValidator()
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(echoMiddleware.RequestIDWithConfig(echoMiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(echoMiddleware.Recover())
	e.Use(middleware.GlobalCORS(s.CORSAllowedOrigins))
	e.Use(middleware.SecurityHeaders(s))
	e.Use(a.limiter.RateLimit())
	e.Use(echoMiddleware.BodyLimit("1M"))

	e.Match([]string{http.MethodGet, http.MethodHead}, "/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "OK",
			"message": "Travel booking backend is running",
			"version": "1.0",
		})
	})
	e.Match([]string{http.MethodGet, http.MethodHead}, "/health", health(d.Ping, s.StorageDriver))

	routes.SetupRoutes(e, routes.Handlers{
		Auth:          controllers.NewAuthController(a.Auth, tokens, logger),
		User:          controllers.NewUserController(a.Users, logger),
		Catalog:       controllers.NewCatalogController(a.Catalog, logger),
		Booking:       controllers.NewBookingController(a.Bookings, logger),
		Notification:  controllers.NewNotificationController(notifier, logger),
		Referral:      controllers.NewReferralController(referrals, a.Payouts, logger),
		ReferralAdmin: controllers.NewReferralAdminController(referrals, a.Payouts, logger),
		WebSocket:     websocket.NewHandler(hub, tokens.ValidateAccessToken, s.CORSAllowedOrigins, logger).HandleWebSocket,
	}, tokens.JWTMiddleware(), middleware.ActivityTracker(d.Stores.Users, logger))

	a.Echo = e
	return a
}

// RunBackground starts the periodic jobs. They stop when ctx is done.
func (a *App) RunBackground(ctx context.Context) {
	go a.Hub.Run(ctx)
	go a.Users.RunInactiveSweep(ctx, inactiveSweepInterval)
	go a.Referrals.RunSweeps(ctx, rewardSweepInterval)
	go a.blacklist.RunCleanup(ctx, blacklistSweepInterval)
	go a.limiter.RunCleanup(ctx, limiterSweepInterval)
	go a.Auth.RunCleanup(ctx, loginSweepInterval)
}

func health(ping func(ctx context.Context) error, driver string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{
					"status":   "unhealthy",
					"database": "unreachable",
				})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":   "healthy",
			"database": driver,
		})
	}
}

// errorHandler renders echo errors (404, 405, body limit, panics) in the
// same envelope as the controllers.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		message := "Internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		} else {
			logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, models.Response{Status: status, Message: message})
		}
		if err != nil {
			logger.Warn("writing error response failed", zap.Error(err))
		}
	}
}
