package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AmitAK1/missing-object-surveillance/internal/config"
)

// NewServiceLogger returns the global logger tagged with the worker, camera
// and service name.
func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().
		Str("worker_id", cfg.WorkerID).
		Str("camera_id", cfg.CameraID).
		Str("service", service).
		Logger()
}

// WithTarget tags a logger with a monitored target. trackID may be nil for a
// target whose observation carried no identity.
func WithTarget(base zerolog.Logger, index int, trackID *int64) zerolog.Logger {
	ctx := base.With().Int("target", index)
	if trackID != nil {
		ctx = ctx.Int64("track_id", *trackID)
	}
	return ctx.Logger()
}
