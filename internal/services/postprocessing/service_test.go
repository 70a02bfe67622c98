package postprocessing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmitAK1/missing-object-surveillance/internal/config"
	"github.com/AmitAK1/missing-object-surveillance/internal/models"
	"github.com/AmitAK1/missing-object-surveillance/internal/monitoring"
	"github.com/AmitAK1/missing-object-surveillance/internal/presence"
)

type published struct {
	subject string
	payload models.AlertPayload
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject: subject, payload: data.(models.AlertPayload)})
	return nil
}

type recorded struct {
	payload  models.AlertPayload
	notified bool
}

type fakeHistory struct {
	rows []recorded
}

func (h *fakeHistory) Record(_ context.Context, payload models.AlertPayload, notified bool) error {
	h.rows = append(h.rows, recorded{payload: payload, notified: notified})
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(t *testing.T, pub *fakePublisher, hist *fakeHistory) (*Service, *clock) {
	t.Helper()
	cfg := &config.Config{
		AlertsSubject:   "alerts.missing",
		RecoverySubject: "alerts.recovered",
		AlertsCooldown:  time.Minute,
		AlertThreshold:  25,
	}
	var recorder HistoryRecorder
	if hist != nil {
		recorder = hist
	}
	svc, err := NewService(cfg, pub, recorder)
	require.NoError(t, err)
	c := &clock{t: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	svc.now = c.now
	return svc, c
}

func alertEvent(index int, id int64) monitoring.Event {
	return monitoring.Event{Kind: presence.EventAlertFired, TargetIndex: index, Label: "laptop", TrackID: models.TrackID(id), Absences: 25, Frame: 40}
}

func recoveredEvent(index int, id int64) monitoring.Event {
	return monitoring.Event{Kind: presence.EventRecovered, TargetIndex: index, Label: "laptop", TrackID: models.TrackID(id), Frame: 50}
}

func TestNewServiceRequiresPublisher(t *testing.T) {
	_, err := NewService(&config.Config{}, nil, nil)
	assert.Error(t, err)
}

func TestBuildPayload(t *testing.T) {
	svc, _ := newTestService(t, &fakePublisher{}, nil)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	frame := FrameInfo{CameraID: "desk", FrameID: 99, Timestamp: ts, SnapshotPath: "alerts/a.jpg"}

	t.Run("alert", func(t *testing.T) {
		p := svc.BuildPayload(frame, alertEvent(1, 7))
		assert.NotEmpty(t, p.EventID)
		assert.Equal(t, models.EventTypeAlertFired, p.EventType)
		assert.Equal(t, models.AlertSeverityCritical, p.Severity)
		assert.Equal(t, "desk", p.CameraID)
		assert.Equal(t, 1, p.TargetIndex)
		assert.Equal(t, 25, p.AbsentFrames)
		assert.Equal(t, int64(99), p.FrameID)
		assert.Equal(t, ts, p.Timestamp)
		assert.Equal(t, "alerts/a.jpg", p.SnapshotPath)
		assert.Contains(t, p.Description, "ROI 2")
		assert.Contains(t, p.Description, "track 7")
	})

	t.Run("recovery", func(t *testing.T) {
		p := svc.BuildPayload(frame, recoveredEvent(0, 7))
		assert.Equal(t, models.EventTypeRecovered, p.EventType)
		assert.Equal(t, models.AlertSeverityInfo, p.Severity)
		assert.Empty(t, p.SnapshotPath)
	})

	t.Run("event ids are unique", func(t *testing.T) {
		a := svc.BuildPayload(frame, alertEvent(0, 1))
		b := svc.BuildPayload(frame, alertEvent(0, 1))
		assert.NotEqual(t, a.EventID, b.EventID)
	})
}

func TestProcessEventsPublishesAndRecords(t *testing.T) {
	pub := &fakePublisher{}
	hist := &fakeHistory{}
	svc, _ := newTestService(t, pub, hist)
	frame := FrameInfo{CameraID: "desk", FrameID: 1}

	res := svc.ProcessEvents(context.Background(), frame, []monitoring.Event{alertEvent(0, 7), alertEvent(1, 8)})
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Published)
	assert.Equal(t, 2, res.Recorded)
	assert.Empty(t, res.Errors)

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "alerts.missing", pub.msgs[0].subject)

	res = svc.ProcessEvents(context.Background(), frame, []monitoring.Event{recoveredEvent(0, 7)})
	assert.Equal(t, 1, res.Published)
	require.Len(t, pub.msgs, 3)
	assert.Equal(t, "alerts.recovered", pub.msgs[2].subject)
	assert.Len(t, hist.rows, 3)
}

func TestProcessEventsCooldown(t *testing.T) {
	pub := &fakePublisher{}
	hist := &fakeHistory{}
	svc, clk := newTestService(t, pub, hist)
	ctx := context.Background()
	frame := FrameInfo{CameraID: "desk"}

	svc.ProcessEvents(ctx, frame, []monitoring.Event{alertEvent(0, 7)})
	svc.ProcessEvents(ctx, frame, []monitoring.Event{recoveredEvent(0, 7)})

	// a second cycle inside the cooldown stays quiet, recovery included
	clk.t = clk.t.Add(10 * time.Second)
	res := svc.ProcessEvents(ctx, frame, []monitoring.Event{alertEvent(0, 7)})
	assert.Equal(t, 1, res.Throttled)
	res = svc.ProcessEvents(ctx, frame, []monitoring.Event{recoveredEvent(0, 7)})
	assert.Equal(t, 1, res.Throttled)
	assert.Len(t, pub.msgs, 2)

	// other targets are not affected
	res = svc.ProcessEvents(ctx, frame, []monitoring.Event{alertEvent(1, 7)})
	assert.Equal(t, 1, res.Published)

	// after the cooldown the target notifies again
	clk.t = clk.t.Add(time.Minute)
	res = svc.ProcessEvents(ctx, frame, []monitoring.Event{alertEvent(0, 7)})
	assert.Equal(t, 1, res.Published)

	// history keeps everything and marks what was sent
	require.Len(t, hist.rows, 6)
	notified := make([]bool, len(hist.rows))
	for i, r := range hist.rows {
		notified[i] = r.notified
	}
	assert.Equal(t, []bool{true, true, false, false, true, true}, notified)
}

func TestPublishedAlertClearsEarlierThrottle(t *testing.T) {
	pub := &fakePublisher{}
	svc, clk := newTestService(t, pub, &fakeHistory{})
	ctx := context.Background()
	frame := FrameInfo{CameraID: "desk"}

	res := svc.ProcessEvents(ctx, frame, []monitoring.Event{alertEvent(0, 7)})
	require.Equal(t, 1, res.Published)
	res = svc.ProcessEvents(ctx, frame, []monitoring.Event{recoveredEvent(0, 7)})
	require.Equal(t, 1, res.Published)

	// throttled alert whose recovery never arrives, e.g. the session was re-set up
	clk.t = clk.t.Add(10 * time.Second)
	res = svc.ProcessEvents(ctx, frame, []monitoring.Event{alertEvent(0, 7)})
	require.Equal(t, 1, res.Throttled)

	clk.t = clk.t.Add(5 * time.Minute)
	res = svc.ProcessEvents(ctx, frame, []monitoring.Event{alertEvent(0, 7)})
	require.Equal(t, 1, res.Published)

	res = svc.ProcessEvents(ctx, frame, []monitoring.Event{recoveredEvent(0, 7)})
	assert.Equal(t, 1, res.Published)
	assert.Equal(t, 0, res.Throttled)
	require.Len(t, pub.msgs, 4)
	assert.Equal(t, "alerts.recovered", pub.msgs[3].subject)
}

func TestProcessEventsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats down")}
	hist := &fakeHistory{}
	svc, _ := newTestService(t, pub, hist)

	res := svc.ProcessEvents(context.Background(), FrameInfo{CameraID: "desk"}, []monitoring.Event{alertEvent(0, 7)})
	assert.Equal(t, 0, res.Published)
	assert.Len(t, res.Errors, 1)
	require.Len(t, hist.rows, 1)
	assert.False(t, hist.rows[0].notified)
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestContextImage(t *testing.T) {
	pub := &fakePublisher{}
	svc, _ := newTestService(t, pub, nil)
	svc.cfg.ContextImageEnabled = true
	svc.cfg.MaxContextImageSize = 500 * 1024
	frame := FrameInfo{CameraID: "desk", FrameID: 3, ContextJPEG: testJPEG(t, 64, 48)}

	p := svc.BuildPayload(frame, alertEvent(0, 7))
	require.NotNil(t, p.ContextImage)
	assert.NotEmpty(t, *p.ContextImage)

	assert.Nil(t, svc.BuildPayload(frame, recoveredEvent(0, 7)).ContextImage)

	t.Run("dropped when the payload is too large", func(t *testing.T) {
		svc.cfg.MaxTotalPayloadSize = 1000
		res := svc.ProcessEvents(context.Background(), frame, []monitoring.Event{alertEvent(2, 9)})
		assert.Equal(t, 1, res.Published)
		require.Len(t, pub.msgs, 1)
		assert.Nil(t, pub.msgs[0].payload.ContextImage)
	})

	t.Run("disabled", func(t *testing.T) {
		svc.cfg.ContextImageEnabled = false
		assert.Nil(t, svc.BuildPayload(frame, alertEvent(0, 7)).ContextImage)
	})
}
