package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/AmitAK1/missing-object-surveillance/internal/models"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	CameraID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Video source: webcam index ("0") or a file/stream URL
	VideoSource string
	MaxFPS      int

	// Monitoring
	AlertThreshold int // consecutive absent frames before an alert
	MinROISize     int // pixels, per side
	ROIsRaw        string
	ROIs           []models.Rect
	// Frames to wait for a resolvable setup before giving up on a request
	SetupRetryFrames int
	SetupTimeout     time.Duration
	// NATS request-reply subject for remote ROI setup; empty disables it
	SetupSubject string

	// Tracker (detector + multi-object tracker over gRPC)
	TrackerGRPCURL     string
	TrackerTimeout     time.Duration
	TrackerJPEGQuality int

	// NATS (for alert and recovery events)
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration // For graceful shutdown

	// Alerting via NATS
	AlertsSubject   string
	RecoverySubject string
	AlertsCooldown  time.Duration

	// Context image attached to alert payloads
	ContextImageEnabled bool
	MaxContextImageSize int // bytes, after compression
	MaxTotalPayloadSize int // bytes, whole JSON payload

	// Live MJPEG view: resend interval when no new frame arrives
	StreamKeepalive time.Duration

	// Snapshots
	SnapshotsEnabled bool
	SnapshotDir      string

	// Alert history (sqlite)
	HistoryDBPath string

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "worker-1"),
		CameraID:    getEnv("CAMERA_ID", "camera-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		VideoSource: getEnv("VIDEO_SOURCE", "0"),
		MaxFPS:      getEnvInt("MAX_FPS", 30),

		// Monitoring
		AlertThreshold:   getEnvInt("ALERT_THRESHOLD", 25),
		MinROISize:       getEnvInt("MIN_ROI_SIZE", 10),
		ROIsRaw:          getEnv("ROIS", ""),
		SetupRetryFrames: getEnvInt("SETUP_RETRY_FRAMES", 30),
		SetupTimeout:     getEnvDuration("SETUP_TIMEOUT", 10*time.Second),

		// Tracker
		TrackerGRPCURL:     getEnv("TRACKER_GRPC_URL", "localhost:50052"),
		TrackerTimeout:     getEnvDuration("TRACKER_TIMEOUT", 5*time.Second),
		TrackerJPEGQuality: getEnvInt("TRACKER_JPEG_QUALITY", 90),

		// NATS
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:   getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),

		// Alerting via NATS
		AlertsSubject:   getEnv("ALERTS_SUBJECT", "alerts.missing_object"),
		RecoverySubject: getEnv("RECOVERY_SUBJECT", "alerts.missing_object.recovered"),
		AlertsCooldown:  getEnvDuration("ALERTS_COOLDOWN", 60*time.Second),

		ContextImageEnabled: getEnvBool("CONTEXT_IMAGE_ENABLED", true),
		MaxContextImageSize: getEnvInt("MAX_CONTEXT_IMAGE_SIZE", 500*1024),
		MaxTotalPayloadSize: getEnvInt("MAX_TOTAL_PAYLOAD_SIZE", 1024*1024),

		StreamKeepalive: getEnvDuration("STREAM_KEEPALIVE", 2*time.Second),

		// Snapshots
		SnapshotsEnabled: getEnvBool("SNAPSHOTS_ENABLED", true),
		SnapshotDir:      getEnv("SNAPSHOT_DIR", "alerts"),

		HistoryDBPath: getEnv("HISTORY_DB_PATH", "surveillance.db"),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	cfg.SetupSubject = getEnv("SETUP_SUBJECT", "surveillance.setup."+cfg.CameraID)

	if rois, err := ParseROIs(cfg.ROIsRaw); err == nil {
		cfg.ROIs = rois
	}
	return cfg
}

// Validate reports configuration that would make the worker unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.AlertThreshold < 1 {
		errs = append(errs, fmt.Errorf("ALERT_THRESHOLD must be >= 1, got %d", c.AlertThreshold))
	}
	if c.MinROISize < 1 {
		errs = append(errs, fmt.Errorf("MIN_ROI_SIZE must be >= 1, got %d", c.MinROISize))
	}
	if c.MaxFPS < 1 {
		errs = append(errs, fmt.Errorf("MAX_FPS must be >= 1, got %d", c.MaxFPS))
	}
	if c.SetupRetryFrames < 1 {
		errs = append(errs, fmt.Errorf("SETUP_RETRY_FRAMES must be >= 1, got %d", c.SetupRetryFrames))
	}
	if c.TrackerJPEGQuality < 1 || c.TrackerJPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("TRACKER_JPEG_QUALITY must be in 1..100, got %d", c.TrackerJPEGQuality))
	}
	if _, err := ParseROIs(c.ROIsRaw); err != nil {
		errs = append(errs, fmt.Errorf("ROIS: %w", err))
	}
	return errors.Join(errs...)
}

// ParseROIs parses "x1,y1,x2,y2;x1,y1,x2,y2" into rectangles. An empty
// string yields no ROIs.
func ParseROIs(raw string) ([]models.Rect, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var rois []models.Rect
	for i, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("roi %d: want 4 coordinates, got %d", i, len(fields))
		}
		var v [4]float64
		for j, f := range fields {
			n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("roi %d: %w", i, err)
			}
			v[j] = n
		}
		r := models.Rect{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("roi %d: %w", i, err)
		}
		rois = append(rois, r)
	}
	return rois, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}
	if isRunningInDocker() {
		return "nats://nats:4222"
	}
	return "nats://localhost:4222"
}
