package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/AmitAK1/missing-object-surveillance/internal/config"
	"github.com/AmitAK1/missing-object-surveillance/internal/services/detection"
	"github.com/AmitAK1/missing-object-surveillance/internal/services/history"
	"github.com/AmitAK1/missing-object-surveillance/internal/services/messaging"
	"github.com/AmitAK1/missing-object-surveillance/internal/services/overlay"
	"github.com/AmitAK1/missing-object-surveillance/internal/services/postprocessing"
	"github.com/AmitAK1/missing-object-surveillance/internal/services/publisher/mjpeg"
	"github.com/AmitAK1/missing-object-surveillance/internal/services/streamcapture"
	"github.com/AmitAK1/missing-object-surveillance/internal/worker"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config         *config.Config
	MessagingSvc   *messaging.Service
	History        *history.Store
	PostProcessing *postprocessing.Service
	Tracker        *detection.Client
	Source         *streamcapture.Source
	Overlay        *overlay.Service
	Stream         *mjpeg.Publisher
	Worker         *worker.Worker
}

// NewServiceContainer wires the capture loop and everything it depends on.
// On failure, whatever was already opened is closed again.
func NewServiceContainer(ctx context.Context, cfg *config.Config) (_ *ServiceContainer, err error) {
	sc := &ServiceContainer{Config: cfg}
	defer func() {
		if err != nil {
			if shutdownErr := sc.Shutdown(context.Background()); shutdownErr != nil {
				log.Warn().Err(shutdownErr).Msg("Cleanup after failed startup reported errors")
			}
		}
	}()

	if sc.MessagingSvc, err = messaging.NewService(cfg); err != nil {
		return nil, err
	}

	var recorder postprocessing.HistoryRecorder
	if cfg.HistoryDBPath != "" {
		if sc.History, err = history.Open(ctx, cfg.HistoryDBPath); err != nil {
			return nil, fmt.Errorf("open alert history: %w", err)
		}
		recorder = sc.History
	} else {
		log.Warn().Msg("HISTORY_DB_PATH is empty, alert history disabled")
	}

	if sc.PostProcessing, err = postprocessing.NewService(cfg, sc.MessagingSvc, recorder); err != nil {
		return nil, err
	}

	sc.Tracker = detection.NewClient(cfg)
	if err := sc.Tracker.Connect(); err != nil {
		// The client reconnects with backoff on the next Track call.
		log.Warn().Err(err).Str("endpoint", sc.Tracker.Endpoint()).Msg("Tracker not reachable yet")
	}

	if sc.Source, err = streamcapture.Open(cfg); err != nil {
		return nil, err
	}

	if sc.Overlay, err = overlay.NewService(cfg); err != nil {
		return nil, err
	}

	if sc.Worker, err = worker.New(cfg, sc.Source, sc.Tracker, sc.Overlay, sc.PostProcessing); err != nil {
		return nil, err
	}
	sc.Stream = mjpeg.NewPublisher(cfg.StreamKeepalive)
	sc.Worker.SetFrameSink(sc.Stream)
	return sc, nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error

	if sc.Source != nil {
		errs = append(errs, sc.Source.Close())
	}
	if sc.Tracker != nil {
		errs = append(errs, sc.Tracker.Close())
	}
	if sc.PostProcessing != nil {
		errs = append(errs, sc.PostProcessing.Shutdown(ctx))
	}
	if sc.MessagingSvc != nil {
		errs = append(errs, sc.MessagingSvc.Shutdown(ctx))
	}
	if sc.History != nil {
		errs = append(errs, sc.History.Close())
	}
	return errors.Join(errs...)
}
