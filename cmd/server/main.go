package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"tontiflex/internal/adapters/http/middleware"
	"tontiflex/internal/adapters/http/routes"
	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/config"
	"tontiflex/internal/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Structured logger
	zlog, err := logger.New(cfg.LogLevel, cfg.IsDev())
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer config.CloseDatabase()

	// Auto migrate (creates tables if not exist)
	if err := models.AutoMigrate(db); err != nil {
		zlog.Fatal("failed to auto migrate", zap.Error(err))
	}
	zlog.Info("database migration completed")

	// Seed demo data in development mode
	if cfg.IsDev() {
		if err := config.SeedDemoData(db); err != nil {
			zlog.Warn("failed to seed demo data", zap.Error(err))
		}
	}

	// Redis client for the notification stream. The app runs without it;
	// notifications are simply not dispatched.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(rdb.Context()).Err(); err != nil {
		zlog.Warn("redis unavailable, notifications disabled", zap.Error(err))
		rdb = nil
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "TontiFlex API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
	})

	// Setup middlewares
	middleware.Setup(app, cfg)

	// Setup routes; wiring returns the expiry sweeper so its lifecycle is
	// owned here
	expiry := routes.Setup(app, db, cfg, zlog, rdb)
	if err := expiry.Start(); err != nil {
		zlog.Fatal("failed to start expiry sweeper", zap.Error(err))
	}
	defer expiry.Stop()

	// Graceful shutdown
	go gracefulShutdown(app, zlog)

	zlog.Info("server starting",
		zap.String("port", cfg.Port),
		zap.String("mode", cfg.AppMode))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}
}

// gracefulShutdown handles graceful shutdown
func gracefulShutdown(app *fiber.App, zlog *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		zlog.Error("error during shutdown", zap.Error(err))
	}
	zlog.Info("server stopped gracefully")
}
