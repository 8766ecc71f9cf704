package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/3-electric-sheep/wisdk-go/internal/config"
	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
	"github.com/3-electric-sheep/wisdk-go/pkg/push"
	"github.com/3-electric-sheep/wisdk-go/pkg/repository"
	"github.com/3-electric-sheep/wisdk-go/wisdk"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Open on-device store
	backend, err := repository.OpenBolt(cfg.StorePath)
	if err != nil {
		logger.Error("failed to open store", "error", err, "path", cfg.StorePath)
		os.Exit(1)
	}
	defer backend.Close()

	logger.Info("store opened", "path", cfg.StorePath)

	// Simulated platform bridges: a walking location source and a
	// static push token.
	loc := newSimLocationProvider(cfg.SimulInterval, logger)
	pushProvider := newSimPushProvider(logger)

	app, err := wisdk.New(cfg.SDKConfig(), wisdk.Deps{
		Location: loc,
		Push:     pushProvider,
		Backend:  backend,
		Logger:   logger,
		Listener: wisdk.Listener{
			OnStartupComplete: func(authorized bool) {
				logger.Info("startup complete", "authorized", authorized)
			},
			OnNewDeviceToken: func(token string) {
				logger.Info("device registered", "device_token", token)
			},
			OnLocationUpdate: func(fix domain.LocationFix) {
				logger.Info("location accepted", "lat", fix.Latitude, "lon", fix.Longitude)
			},
			OnNotification: func(msg push.Message) {
				logger.Info("notification", "title", msg.Title, "body", msg.Body)
			},
			OnError: func(msg string, err error) {
				logger.Error(msg, "error", err)
			},
		},
	})
	if err != nil {
		logger.Error("failed to create sdk", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	authorized, err := app.Start(ctx)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	logger.Info("sdk started", "authorized", authorized)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	app.Stop()
	loc.Close()

	logger.Info("stopped")
}
