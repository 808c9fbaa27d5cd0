package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solana-sos/emergency/adapters"
	"github.com/solana-sos/emergency/adapters/audio"
	"github.com/solana-sos/emergency/adapters/dispatcher"
	"github.com/solana-sos/emergency/adapters/mongo"
	"github.com/solana-sos/emergency/adapters/nats"
	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
	"github.com/solana-sos/emergency/internal/api"
	"github.com/solana-sos/emergency/internal/auth"
	"github.com/solana-sos/emergency/internal/config"
	"github.com/solana-sos/emergency/internal/retention"
	"github.com/solana-sos/emergency/internal/websocket"
	"github.com/solana-sos/emergency/usecase"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		return serve(cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize adapters
	records, closeRecords, err := newCallRecords(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRecords()

	transport, err := newTransport(cfg, logger)
	if err != nil {
		return err
	}

	hub := websocket.NewHub(logger)

	var device repositories.AudioDevice
	switch cfg.AudioDevice {
	case config.AudioDeviceWebsocket:
		device = websocket.NewRemoteAudioDevice(hub, logger)
	default:
		device = audio.NewLogDevice("server", logger)
	}

	// Initialize usecase services
	audioService, err := usecase.NewAudioService(cfg.Audio, device, logger)
	if err != nil {
		return err
	}
	if err := audioService.Initialize(ctx); err != nil {
		return err
	}

	publishers := adapters.Publishers{hub}
	if cfg.NatsURL != "" {
		broker, err := nats.NewPublisher(nats.Config{
			URL:     cfg.NatsURL,
			Name:    "emergency-coordinator",
			Subject: cfg.NatsSubject,
		}, logger)
		if err != nil {
			return err
		}
		defer broker.Close()
		publishers = append(publishers, broker)
	}

	emergency := usecase.NewEmergencyService(audioService, transport, logger,
		usecase.WithCallRecords(records),
		usecase.WithEventPublisher(publishers))
	defer emergency.Close()

	hub.Attach(emergency, audioService)
	go hub.Run(ctx)

	go retention.NewSweeper(records, cfg.CallRecordRetention, logger).Run(ctx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	var tasks sync.WaitGroup
	api.InitRoutes(e, api.Services{
		Emergency: emergency,
		Records:   records,
		Issuer:    auth.NewIssuer(cfg.JWTSecret, cfg.DeviceSecret),
		Hub:       hub,
		Lifetime:  ctx,
		Tasks:     &tasks,
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Emergency coordinator started",
		zap.String("port", cfg.Port),
		zap.String("audioDevice", cfg.AudioDevice))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	closeIncident(emergency)
	cancel()
	tasks.Wait()

	logger.Info("Server exited")
	return nil
}

// closeIncident finishes an incident still open at shutdown so it gets a call
// record. A completed handoff is ended to keep its outcome; anything else is
// recorded as cancelled.
func closeIncident(emergency *usecase.EmergencyService) {
	switch emergency.Status() {
	case entities.StatusIdle, entities.StatusCancelled:
	case entities.StatusCompleted:
		emergency.EndResponse()
	default:
		emergency.CancelResponse()
	}
}

func newCallRecords(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.CallRecordRepository, func(), error) {
	if cfg.MongoURI == "" {
		logger.Info("MONGODB_URI not set, keeping call records in memory")
		return adapters.NewMemoryCallRecordRepository(), func() {}, nil
	}

	client, err := mongo.NewClient(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
	if err != nil {
		return nil, nil, err
	}

	repo := mongo.NewCallRecordRepository(client.Database, logger)
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to create call record indexes", zap.Error(err))
	}

	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		client.Close(ctx)
	}
	return repo, closeFn, nil
}

func newTransport(cfg *config.Config, logger *zap.Logger) (repositories.DispatcherTransport, error) {
	if cfg.DispatcherURL == "" {
		logger.Warn("DISPATCHER_URL not set, dispatcher traffic is only logged")
		return dispatcher.NewLogTransport(logger), nil
	}
	return dispatcher.NewHTTPTransport(dispatcher.HTTPConfig{
		BaseURL: cfg.DispatcherURL,
		APIKey:  cfg.DispatcherAPIKey,
		Timeout: cfg.DispatcherTimeout,
	}, logger)
}
