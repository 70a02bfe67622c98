package postprocessing

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AmitAK1/missing-object-surveillance/internal/config"
	"github.com/AmitAK1/missing-object-surveillance/internal/helpers"
	"github.com/AmitAK1/missing-object-surveillance/internal/models"
	"github.com/AmitAK1/missing-object-surveillance/internal/monitoring"
	"github.com/AmitAK1/missing-object-surveillance/internal/presence"
)

// HistoryRecorder persists every alert and recovery, throttled or not.
type HistoryRecorder interface {
	Record(ctx context.Context, payload models.AlertPayload, notified bool) error
}

// FrameInfo is the frame context attached to the events of one frame.
type FrameInfo struct {
	CameraID     string
	FrameID      int64
	Timestamp    time.Time
	SnapshotPath string
	// ContextJPEG is the encoded frame attached to alert payloads.
	ContextJPEG []byte
}

// Service turns alert-fired and recovered events into payloads, records
// them and publishes them on NATS behind a per-target cooldown.
type Service struct {
	cfg        *config.Config
	publisher  models.MessagePublisher
	history    HistoryRecorder
	cooldownMu sync.RWMutex
	lastSent   map[string]time.Time
	// throttled alerts whose recovery must stay quiet too
	throttled map[string]bool
	cooldown  time.Duration
	now       func() time.Time
}

// NewService creates a new postprocessing service. history may be nil.
func NewService(cfg *config.Config, publisher models.MessagePublisher, history HistoryRecorder) (*Service, error) {
	if publisher == nil {
		return nil, fmt.Errorf("message publisher is required")
	}

	s := &Service{
		cfg:       cfg,
		publisher: publisher,
		history:   history,
		lastSent:  make(map[string]time.Time),
		throttled: make(map[string]bool),
		cooldown:  cfg.AlertsCooldown,
		now:       time.Now,
	}

	log.Info().
		Dur("cooldown", s.cooldown).
		Str("alerts_subject", cfg.AlertsSubject).
		Str("recovery_subject", cfg.RecoverySubject).
		Msg("Post-processing service initialized")

	return s, nil
}

// Shutdown stops the service gracefully
func (s *Service) Shutdown(ctx context.Context) error {
	log.Info().Msg("Post-processing service shutdown")
	return nil
}

// ProcessEvents handles the transition events of one frame.
func (s *Service) ProcessEvents(ctx context.Context, frame FrameInfo, events []monitoring.Event) models.ProcessedEvents {
	result := models.ProcessedEvents{Total: len(events)}

	for _, ev := range events {
		payload := s.BuildPayload(frame, ev)
		key := cooldownKey(frame.CameraID, ev)

		notify := s.shouldNotify(key, ev.Kind)
		if notify {
			if err := s.publish(payload); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("publish %s for target %d: %v", payload.EventType, ev.TargetIndex, err))
				notify = false
			} else {
				result.Published++
			}
		} else {
			result.Throttled++
			log.Debug().
				Str("camera_id", frame.CameraID).
				Int("target", ev.TargetIndex).
				Str("event", ev.Kind.String()).
				Msg("Notification blocked by cooldown")
		}

		if s.history != nil {
			if err := s.history.Record(ctx, payload, notify); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("record %s for target %d: %v", payload.EventType, ev.TargetIndex, err))
			} else {
				result.Recorded++
			}
		}
	}

	return result
}

// BuildPayload converts a monitoring event into the published payload.
func (s *Service) BuildPayload(frame FrameInfo, ev monitoring.Event) models.AlertPayload {
	ts := frame.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	payload := models.AlertPayload{
		EventID:      uuid.NewString(),
		CameraID:     frame.CameraID,
		TargetIndex:  ev.TargetIndex,
		Label:        ev.Label,
		TrackID:      ev.TrackID,
		AbsentFrames: ev.Absences,
		FrameID:      frame.FrameID,
		Timestamp:    ts,
		Metadata: map[string]interface{}{
			"session_frame": ev.Frame,
			"threshold":     s.cfg.AlertThreshold,
		},
	}

	switch ev.Kind {
	case presence.EventAlertFired:
		payload.EventType = models.EventTypeAlertFired
		payload.Severity = models.AlertSeverityCritical
		payload.Title = fmt.Sprintf("Missing object: %s", ev.Label)
		payload.Description = fmt.Sprintf("%s (ROI %d, %s) has not been seen for %d frames",
			ev.Label, ev.TargetIndex+1, trackLabel(ev.TrackID), ev.Absences)
		payload.SnapshotPath = frame.SnapshotPath
		if s.cfg.ContextImageEnabled {
			helpers.AddContextImage(&payload, frame.ContextJPEG, s.cfg.MaxContextImageSize)
		}
	case presence.EventRecovered:
		payload.EventType = models.EventTypeRecovered
		payload.Severity = models.AlertSeverityInfo
		payload.Title = fmt.Sprintf("Object returned: %s", ev.Label)
		payload.Description = fmt.Sprintf("%s (ROI %d, %s) is back in view", ev.Label, ev.TargetIndex+1, trackLabel(ev.TrackID))
	}
	return payload
}

func (s *Service) publish(payload models.AlertPayload) error {
	if s.cfg.MaxTotalPayloadSize > 0 {
		if err := helpers.OptimizePayloadForSize(&payload, s.cfg.MaxTotalPayloadSize); err != nil {
			return err
		}
	}

	subject := s.cfg.AlertsSubject
	if payload.EventType == models.EventTypeRecovered {
		subject = s.cfg.RecoverySubject
	}

	if err := s.publisher.Publish(subject, payload); err != nil {
		log.Error().
			Err(err).
			Str("camera_id", payload.CameraID).
			Int("target", payload.TargetIndex).
			Str("event_type", string(payload.EventType)).
			Msg("Failed to publish event")
		return err
	}

	log.Info().
		Str("camera_id", payload.CameraID).
		Int("target", payload.TargetIndex).
		Str("label", payload.Label).
		Str("event_type", string(payload.EventType)).
		Str("subject", subject).
		Msg("🚀 Event published successfully")
	return nil
}

// shouldNotify applies the cooldown to alerts. A recovery is published
// only when the alert it closes was.
func (s *Service) shouldNotify(key models.AlertCooldownKey, kind presence.Event) bool {
	k := key.String()
	if kind == presence.EventRecovered {
		s.cooldownMu.Lock()
		defer s.cooldownMu.Unlock()
		quiet := s.throttled[k]
		delete(s.throttled, k)
		return !quiet
	}

	if !s.CheckCooldown(key) {
		s.cooldownMu.Lock()
		s.throttled[k] = true
		s.cooldownMu.Unlock()
		return false
	}
	s.UpdateCooldown(key)
	s.cooldownMu.Lock()
	delete(s.throttled, k)
	s.cooldownMu.Unlock()
	return true
}

// CheckCooldown checks if enough time has passed since the last alert
func (s *Service) CheckCooldown(key models.AlertCooldownKey) bool {
	s.cooldownMu.RLock()
	defer s.cooldownMu.RUnlock()

	lastSent, exists := s.lastSent[key.String()]
	if !exists {
		return true
	}
	return s.now().Sub(lastSent) >= s.cooldown
}

// UpdateCooldown updates the last sent time for a cooldown key
func (s *Service) UpdateCooldown(key models.AlertCooldownKey) {
	s.cooldownMu.Lock()
	defer s.cooldownMu.Unlock()

	s.lastSent[key.String()] = s.now()
}

func cooldownKey(cameraID string, ev monitoring.Event) models.AlertCooldownKey {
	key := models.AlertCooldownKey{CameraID: cameraID, TargetIndex: ev.TargetIndex}
	if ev.TrackID != nil {
		key.TrackID = strconv.FormatInt(*ev.TrackID, 10)
	}
	return key
}

func trackLabel(id *int64) string {
	if id == nil {
		return "no track"
	}
	return fmt.Sprintf("track %d", *id)
}
