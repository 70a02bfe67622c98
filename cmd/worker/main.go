package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AmitAK1/missing-object-surveillance/internal/api"
	"github.com/AmitAK1/missing-object-surveillance/internal/api/handlers"
	"github.com/AmitAK1/missing-object-surveillance/internal/config"
	"github.com/AmitAK1/missing-object-surveillance/internal/logging"
	"github.com/AmitAK1/missing-object-surveillance/internal/services"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogdyEnabled {
		logdyWriter, _ := logging.StartLogdy(cfg)
		writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}, logdyWriter}
		log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	}

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("camera_id", cfg.CameraID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Str("video_source", cfg.VideoSource).
		Int("alert_threshold", cfg.AlertThreshold).
		Int("rois", len(cfg.ROIs)).
		Int("port", cfg.Port).
		Msg("Starting missing-object surveillance worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := services.NewServiceContainer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create services")
	}

	deps := api.Dependencies{
		Worker: container.Worker,
		Stream: container.Stream,
		Probes: map[string]handlers.Probe{
			"tracker": container.Tracker.IsConnected,
			"nats":    container.MessagingSvc.IsConnected,
			"capture": func() bool { return container.Worker.Status().Running },
		},
	}
	if container.History != nil {
		deps.History = container.History
	}

	server, err := api.NewServer(cfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	if cfg.SetupSubject != "" {
		if _, err := container.MessagingSvc.Serve(cfg.SetupSubject, container.Worker.HandleSetupMessage); err != nil {
			log.Error().Err(err).Str("subject", cfg.SetupSubject).Msg("Failed to serve remote setup requests")
		} else {
			log.Info().Str("subject", cfg.SetupSubject).Msg("Listening for remote ROI setup")
		}
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- container.Worker.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
		<-workerDone
	case err := <-workerDone:
		if err != nil {
			log.Error().Err(err).Msg("Capture loop failed")
		} else {
			log.Info().Msg("Capture loop finished")
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := container.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Service shutdown reported errors")
	}
	log.Info().Msg("Shutdown complete")
}
