package worker

import (
	"context"
	"errors"
	"time"

	"github.com/AmitAK1/missing-object-surveillance/internal/models"
	"github.com/AmitAK1/missing-object-surveillance/internal/monitoring"
	"github.com/AmitAK1/missing-object-surveillance/internal/presence"
	"github.com/AmitAK1/missing-object-surveillance/internal/services/postprocessing"
)

var (
	// ErrROITooSmall is returned for an ROI narrower or shorter than MIN_ROI_SIZE.
	ErrROITooSmall = errors.New("roi smaller than minimum size")
	// ErrNoROIs is returned for an empty setup request.
	ErrNoROIs = errors.New("at least one roi is required")
	// ErrSuperseded is returned to a setup request replaced by a newer one.
	ErrSuperseded = errors.New("setup request superseded by a newer one")
	// ErrStopped is returned when the capture loop ends before a request is served.
	ErrStopped = errors.New("worker stopped")
)

// FrameSource yields frames in capture order.
type FrameSource interface {
	Next(ctx context.Context) (models.Frame, error)
}

// Tracker turns a frame into tracked observations.
type Tracker interface {
	Track(ctx context.Context, frame models.Frame) ([]models.Observation, error)
}

// Annotator renders the monitoring state onto frames and stores snapshots.
type Annotator interface {
	Annotate(frame models.Frame, status monitoring.SessionStatus) ([]byte, error)
	SaveSnapshot(jpeg []byte, at time.Time) (string, error)
}

// FrameSink receives every annotated frame, e.g. a live MJPEG stream.
type FrameSink interface {
	Publish(jpeg []byte)
}

// EventProcessor delivers alert-fired and recovered events.
type EventProcessor interface {
	ProcessEvents(ctx context.Context, frame postprocessing.FrameInfo, events []monitoring.Event) models.ProcessedEvents
}

// SetupReport is the outcome of one setup request.
type SetupReport struct {
	Results []monitoring.TargetSetupResult `json:"results"`
	// Applied is false when no ROI could be monitored and the previous
	// setup was kept.
	Applied   bool      `json:"applied"`
	Monitored int       `json:"monitored"`
	FrameID   int64     `json:"frame_id"`
	Attempts  int       `json:"attempts"`
	At        time.Time `json:"at"`
}

// Status is a read-only snapshot of the worker for the API.
type Status struct {
	WorkerID     string                    `json:"worker_id"`
	CameraID     string                    `json:"camera_id"`
	Running      bool                      `json:"running"`
	FrameID      int64                     `json:"frame_id"`
	SessionFrame int64                     `json:"session_frame"`
	FPS          float64                   `json:"fps"`
	Threshold    int                       `json:"threshold"`
	Overall      presence.State            `json:"overall"`
	Targets      []monitoring.TargetStatus `json:"targets"`
	SetupPending bool                      `json:"setup_pending"`
	LastSetup    *SetupReport              `json:"last_setup,omitempty"`
	AlertsFired  int                       `json:"alerts_fired"`
	Recoveries   int                       `json:"recoveries"`
	LastError    string                    `json:"last_error,omitempty"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

func (s Status) clone() Status {
	c := s
	c.Targets = append([]monitoring.TargetStatus(nil), s.Targets...)
	if s.LastSetup != nil {
		r := *s.LastSetup
		r.Results = append([]monitoring.TargetSetupResult(nil), s.LastSetup.Results...)
		c.LastSetup = &r
	}
	return c
}

type setupResponse struct {
	report SetupReport
	err    error
}

type setupRequest struct {
	rois     []models.Rect
	attempts int
	// reply is buffered; nil for the startup setup from configuration
	reply chan setupResponse
}

func (r *setupRequest) respond(report SetupReport, err error) {
	if r.reply == nil {
		return
	}
	r.reply <- setupResponse{report: report, err: err}
}
