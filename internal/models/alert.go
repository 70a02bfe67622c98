package models

import (
	"strconv"
	"time"
)

// EventType identifies the kind of monitoring event delivered to notifiers.
type EventType string

const (
	EventTypeAlertFired EventType = "ALERT_FIRED"
	EventTypeRecovered  EventType = "RECOVERED"
)

// AlertSeverity represents the severity level of alerts
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "INFO"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

// AlertPayload represents the structure sent to NATS and stored in history
type AlertPayload struct {
	EventID      string                 `json:"event_id"`
	EventType    EventType              `json:"event_type"`
	Severity     AlertSeverity          `json:"severity"`
	CameraID     string                 `json:"camera_id"`
	TargetIndex  int                    `json:"target_index"`
	Label        string                 `json:"label"`
	TrackID      *int64                 `json:"track_id,omitempty"`
	AbsentFrames int                    `json:"absent_frames"`
	FrameID      int64                  `json:"frame_id"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	SnapshotPath string                 `json:"snapshot_path,omitempty"`
	ContextImage *string                `json:"context_image,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// AlertCooldownKey represents a unique key for alert cooldown tracking
type AlertCooldownKey struct {
	CameraID    string
	TargetIndex int
	TrackID     string
}

// String returns a string representation of the cooldown key
func (k AlertCooldownKey) String() string {
	return k.CameraID + "|" + strconv.Itoa(k.TargetIndex) + "|" + k.TrackID
}

// MessagePublisher interface for publishing alerts
type MessagePublisher interface {
	Publish(subject string, data interface{}) error
}
