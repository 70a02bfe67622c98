package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AmitAK1/missing-object-surveillance/internal/config"
	"github.com/AmitAK1/missing-object-surveillance/internal/logging"
	"github.com/AmitAK1/missing-object-surveillance/internal/models"
	"github.com/AmitAK1/missing-object-surveillance/internal/monitoring"
	"github.com/AmitAK1/missing-object-surveillance/internal/presence"
	"github.com/AmitAK1/missing-object-surveillance/internal/services/postprocessing"
)

const fpsWindow = 30

// Worker runs the capture loop: every frame goes through the tracker, the
// monitoring session, the overlay and event delivery before the next one is
// read. Frames are never dropped.
type Worker struct {
	cfg       *config.Config
	source    FrameSource
	tracker   Tracker
	annotator Annotator
	events    EventProcessor
	sink      FrameSink
	logger    zerolog.Logger

	session  *monitoring.Session
	pending  *setupRequest
	setupCh  chan *setupRequest
	done     chan struct{}
	stopOnce sync.Once
	fps      *fpsMeter
	now      func() time.Time

	mu         sync.RWMutex
	status     Status
	latestJPEG []byte
}

// New creates a worker. annotator and events may be nil.
func New(cfg *config.Config, source FrameSource, tracker Tracker, annotator Annotator, events EventProcessor) (*Worker, error) {
	if source == nil || tracker == nil {
		return nil, fmt.Errorf("frame source and tracker are required")
	}
	session, err := monitoring.NewSession(cfg.AlertThreshold)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		cfg:       cfg,
		source:    source,
		tracker:   tracker,
		annotator: annotator,
		events:    events,
		logger:    logging.NewServiceLogger(cfg, "worker"),
		session:   session,
		setupCh:   make(chan *setupRequest, 1),
		done:      make(chan struct{}),
		fps:       newFPSMeter(fpsWindow),
		now:       time.Now,
		status: Status{
			WorkerID:  cfg.WorkerID,
			CameraID:  cfg.CameraID,
			Threshold: cfg.AlertThreshold,
			Overall:   presence.Initializing,
		},
	}

	if len(cfg.ROIs) > 0 {
		if err := w.validateROIs(cfg.ROIs); err != nil {
			return nil, fmt.Errorf("configured ROIS: %w", err)
		}
		w.pending = &setupRequest{rois: cfg.ROIs}
		w.status.SetupPending = true
	}
	return w, nil
}

// SetFrameSink registers a receiver for annotated frames. Call it before Run.
func (w *Worker) SetFrameSink(sink FrameSink) {
	w.sink = sink
}

// Run drives the capture loop until ctx is cancelled or the source ends.
func (w *Worker) Run(ctx context.Context) error {
	w.setRunning(true)
	defer w.setRunning(false)
	defer w.stop()

	w.logger.Info().Int("threshold", w.cfg.AlertThreshold).Msg("🎥 Capture loop started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Capture loop stopping")
			return nil
		case req := <-w.setupCh:
			w.accept(req)
		default:
		}

		frame, err := w.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				w.logger.Info().Msg("Video source ended")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		w.processFrame(ctx, frame)
	}
}

// RequestSetup asks the loop to re-initialize monitoring with rois on the
// next frame and waits for the outcome.
func (w *Worker) RequestSetup(ctx context.Context, rois []models.Rect) (SetupReport, error) {
	if err := w.validateROIs(rois); err != nil {
		return SetupReport{}, err
	}

	req := &setupRequest{
		rois:  append([]models.Rect(nil), rois...),
		reply: make(chan setupResponse, 1),
	}

	select {
	case <-w.done:
		return SetupReport{}, ErrStopped
	default:
	}

	select {
	case w.setupCh <- req:
	case <-w.done:
		return SetupReport{}, ErrStopped
	case <-ctx.Done():
		return SetupReport{}, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp.report, resp.err
	case <-w.done:
		// the loop may have answered just before it stopped
		select {
		case resp := <-req.reply:
			return resp.report, resp.err
		default:
			return SetupReport{}, ErrStopped
		}
	case <-ctx.Done():
		return SetupReport{}, ctx.Err()
	}
}

// stop rejects every queued and future setup request. The worker cannot be
// restarted afterwards.
func (w *Worker) stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.failPending(ErrStopped)
}

// Status returns a snapshot of the worker state.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status.clone()
}

// LatestFrame returns the most recent annotated frame as JPEG, or nil.
func (w *Worker) LatestFrame() []byte {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latestJPEG
}

func (w *Worker) validateROIs(rois []models.Rect) error {
	if len(rois) == 0 {
		return ErrNoROIs
	}
	minSize := float64(w.cfg.MinROISize)
	for i, r := range rois {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("roi %d: %w", i, err)
		}
		if r.Width() < minSize || r.Height() < minSize {
			return fmt.Errorf("%w: roi %d is %.0fx%.0f, minimum %d", ErrROITooSmall, i, r.Width(), r.Height(), w.cfg.MinROISize)
		}
	}
	return nil
}

func (w *Worker) accept(req *setupRequest) {
	if w.pending != nil {
		w.pending.respond(SetupReport{}, ErrSuperseded)
	}
	w.pending = req
	w.setSetupPending(true)
}

func (w *Worker) failPending(err error) {
	for {
		select {
		case req := <-w.setupCh:
			req.respond(SetupReport{}, err)
		default:
			if w.pending != nil {
				w.pending.respond(SetupReport{}, err)
				w.pending = nil
			}
			return
		}
	}
}

func (w *Worker) processFrame(ctx context.Context, frame models.Frame) {
	fps := w.fps.Tick(frame.Timestamp)

	observations, err := w.tracker.Track(ctx, frame)
	if err != nil {
		// an unanswered frame says nothing about presence; skip it
		w.logger.Warn().Err(err).Int64("frame_id", frame.FrameID).Msg("Tracker failed, frame skipped")
		w.recordFrame(frame, fps, nil, nil, err)
		return
	}

	if w.pending != nil {
		if w.trySetup(frame, observations) {
			status := monitoring.SessionStatus{Overall: w.session.Overall(), Targets: w.session.Targets()}
			w.recordFrame(frame, fps, &status, w.annotate(frame, status), nil)
			return
		}
	}

	status, err := w.session.Update(observations)
	if err != nil {
		w.logger.Warn().Err(err).Int64("frame_id", frame.FrameID).Msg("Malformed observations, frame skipped")
		w.recordFrame(frame, fps, nil, nil, err)
		return
	}

	w.logTransitions(status)

	jpeg := w.annotate(frame, status)
	var snapshot string
	if len(status.AlertsFired()) > 0 && w.annotator != nil && jpeg != nil {
		if snapshot, err = w.annotator.SaveSnapshot(jpeg, frame.Timestamp); err != nil {
			w.logger.Error().Err(err).Msg("Failed to save alert snapshot")
		}
	}

	if len(status.Events) > 0 && w.events != nil {
		res := w.events.ProcessEvents(ctx, postprocessing.FrameInfo{
			CameraID:     frame.CameraID,
			FrameID:      frame.FrameID,
			Timestamp:    frame.Timestamp,
			SnapshotPath: snapshot,
			ContextJPEG:  contextJPEG(jpeg, frame),
		}, status.Events)
		for _, e := range res.Errors {
			w.logger.Error().Str("error", e).Msg("Event delivery failed")
		}
	}

	w.recordFrame(frame, fps, &status, jpeg, nil)
}

// trySetup initializes a fresh session from this frame. It reports whether
// the pending request was answered with an applied setup.
func (w *Worker) trySetup(frame models.Frame, observations []models.Observation) bool {
	req := w.pending
	req.attempts++

	next, err := monitoring.NewSession(w.cfg.AlertThreshold)
	if err != nil {
		w.pending = nil
		w.setSetupPending(false)
		req.respond(SetupReport{}, err)
		return false
	}
	results, err := next.Initialize(req.rois, observations)
	if err != nil {
		w.pending = nil
		w.logger.Error().Err(err).Msg("Setup failed")
		w.setSetupPending(false)
		req.respond(SetupReport{}, err)
		return false
	}

	report := SetupReport{
		Results:  results,
		FrameID:  frame.FrameID,
		Attempts: req.attempts,
		At:       w.now(),
	}
	for _, r := range results {
		if r.Monitorable() {
			report.Monitored++
		}
	}

	if report.Monitored == 0 && req.attempts < w.cfg.SetupRetryFrames {
		w.logger.Debug().Int("attempt", req.attempts).Msg("No ROI resolved yet, retrying on next frame")
		return false
	}

	w.pending = nil
	w.logSetup(report)

	if report.Monitored == 0 {
		w.logger.Warn().Int("attempts", req.attempts).Msg("⚠️ No ROI could be monitored, continuing with previous setup")
		w.mu.Lock()
		w.status.SetupPending = false
		w.status.LastSetup = &report
		w.mu.Unlock()
		req.respond(report, nil)
		return false
	}

	report.Applied = true
	w.session = next
	w.mu.Lock()
	w.status.SetupPending = false
	w.status.LastSetup = &report
	w.status.SessionFrame = 0
	w.status.Overall = next.Overall()
	w.status.Targets = next.Targets()
	w.mu.Unlock()
	req.respond(report, nil)
	return true
}

func (w *Worker) annotate(frame models.Frame, status monitoring.SessionStatus) []byte {
	if w.annotator == nil || len(frame.Data) == 0 {
		return nil
	}
	jpeg, err := w.annotator.Annotate(frame, status)
	if err != nil {
		w.logger.Warn().Err(err).Int64("frame_id", frame.FrameID).Msg("Failed to annotate frame")
		return nil
	}
	return jpeg
}

func contextJPEG(annotated []byte, frame models.Frame) []byte {
	if annotated != nil {
		return annotated
	}
	return frame.JPEG
}

func (w *Worker) recordFrame(frame models.Frame, fps float64, status *monitoring.SessionStatus, jpeg []byte, frameErr error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.status.FrameID = frame.FrameID
	w.status.FPS = fps
	w.status.UpdatedAt = w.now()
	if frameErr != nil {
		w.status.LastError = frameErr.Error()
	} else {
		w.status.LastError = ""
	}
	if status != nil {
		w.status.SessionFrame = status.Frame
		w.status.Overall = status.Overall
		w.status.Targets = status.Targets
		w.status.AlertsFired += len(status.AlertsFired())
		w.status.Recoveries += len(status.Recoveries())
	}
	if jpeg != nil {
		w.latestJPEG = jpeg
		if w.sink != nil {
			w.sink.Publish(jpeg)
		}
	}
}

func (w *Worker) setRunning(running bool) {
	w.mu.Lock()
	w.status.Running = running
	w.mu.Unlock()
}

func (w *Worker) setSetupPending(pending bool) {
	w.mu.Lock()
	w.status.SetupPending = pending
	w.mu.Unlock()
}

func (w *Worker) logSetup(report SetupReport) {
	for _, r := range report.Results {
		l := logging.WithTarget(w.logger, r.Index, r.TrackID)
		switch r.Outcome {
		case monitoring.SetupResolved:
			l.Info().Str("label", r.Label).Float64("overlap", r.Score).Msg("✅ ROI bound to tracked object")
		case monitoring.SetupNoIdentity:
			l.Warn().Str("label", r.Label).Msg("ROI matched an object without a track id, it cannot be monitored")
		default:
			l.Warn().Msg("No tracked object found in ROI")
		}
	}
}

func (w *Worker) logTransitions(status monitoring.SessionStatus) {
	for _, ev := range status.Events {
		l := logging.WithTarget(w.logger, ev.TargetIndex, ev.TrackID)
		switch ev.Kind {
		case presence.EventAlertFired:
			l.Warn().Str("label", ev.Label).Int("absent_frames", ev.Absences).Msg("🚨 Object missing")
		case presence.EventRecovered:
			l.Info().Str("label", ev.Label).Msg("Object returned")
		}
	}
}
