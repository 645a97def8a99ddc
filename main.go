package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/HSouheill/travel_booking_backend/app"
	"github.com/HSouheill/travel_booking_backend/config"
	"github.com/HSouheill/travel_booking_backend/repositories/memory"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	settings, err := config.LoadSettings()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	logger, err := config.NewLogger(settings.Env, settings.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := app.Deps{Settings: settings, Logger: logger}

	switch settings.StorageDriver {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		deps.Stores = app.MemoryStores(memory.NewDB())
	default:
		client, err := config.ConnectDB(ctx, settings.MongoURI, settings.DBName, logger)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				logger.Warn("mongodb disconnect failed", zap.Error(err))
			}
		}()
		deps.Stores = app.MongoStores(client.Database(settings.DBName))
		deps.Ping = func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	}

	// Connect to Redis
	deps.Redis = config.ConnectRedis(settings.RedisAddr, settings.RedisPassword, settings.RedisDB, logger)
	if deps.Redis != nil {
		defer deps.Redis.Close()
	}

	// Initialize Firebase
	deps.Messaging, err = config.InitMessaging(ctx, settings)
	switch {
	case err != nil:
		logger.Warn("firebase disabled, push notifications off", zap.Error(err))
	case deps.Messaging == nil:
		logger.Info("firebase credentials not set, push notifications off")
	default:
		logger.Info("firebase messaging initialized")
	}

	server := app.New(deps)

	if err := server.Users.BootstrapAdmin(ctx, settings.AdminEmail, settings.AdminPassword); err != nil {
		logger.Error("admin bootstrap failed", zap.Error(err))
	}

	server.RunBackground(ctx)

	go func() {
		logger.Info("server starting", zap.String("port", settings.Port), zap.String("env", settings.Env))
		if err := server.Echo.Start(":" + settings.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Echo.Shutdown(sctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
