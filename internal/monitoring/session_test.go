package monitoring

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmitAK1/missing-object-surveillance/internal/models"
	"github.com/AmitAK1/missing-object-surveillance/internal/presence"
)

func obs(label string, id int64, x1, y1, x2, y2 float64) models.Observation {
	return models.Observation{
		BBox:    models.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2},
		Label:   label,
		TrackID: models.TrackID(id),
	}
}

func rect(x1, y1, x2, y2 float64) models.Rect {
	return models.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func newSession(t *testing.T, threshold int) *Session {
	t.Helper()
	s, err := NewSession(threshold)
	require.NoError(t, err)
	return s
}

func TestNewSessionRejectsThreshold(t *testing.T) {
	_, err := NewSession(0)
	assert.ErrorIs(t, err, presence.ErrInvalidThreshold)
}

func TestSessionEmpty(t *testing.T) {
	s := newSession(t, 3)

	status, err := s.Update(nil)
	require.NoError(t, err)
	assert.Equal(t, presence.Initializing, status.Overall)
	assert.Empty(t, status.Targets)
	assert.Equal(t, int64(1), status.Frame)
}

func TestSessionAlertAndRecovery(t *testing.T) {
	s := newSession(t, 3)
	laptop := obs("laptop", 7, 100, 100, 200, 200)

	results, err := s.Initialize([]models.Rect{rect(100, 100, 200, 200)}, []models.Observation{laptop})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, SetupResolved, results[0].Outcome)
	assert.True(t, results[0].Monitorable())
	require.NotNil(t, results[0].TrackID)
	assert.Equal(t, int64(7), *results[0].TrackID)
	assert.Equal(t, "laptop", results[0].Label)

	frames := [][]models.Observation{{laptop}, nil, nil, nil, {laptop}}
	wantStates := []presence.State{presence.Present, presence.AbsentPending, presence.AbsentPending, presence.Alert, presence.Present}
	wantEvents := []presence.Event{presence.EventNone, presence.EventNone, presence.EventNone, presence.EventAlertFired, presence.EventRecovered}

	for i, frame := range frames {
		status, err := s.Update(frame)
		require.NoError(t, err)
		require.Len(t, status.Targets, 1)
		assert.Equal(t, wantStates[i], status.Targets[0].State, "frame %d", i)
		assert.Equal(t, wantEvents[i], status.Targets[0].Event, "frame %d", i)
	}
}

func TestSessionEventsCarryTarget(t *testing.T) {
	s := newSession(t, 2)
	_, err := s.Initialize([]models.Rect{rect(0, 0, 10, 10)}, []models.Observation{obs("bag", 4, 0, 0, 10, 10)})
	require.NoError(t, err)

	_, err = s.Update([]models.Observation{obs("bag", 4, 0, 0, 10, 10)})
	require.NoError(t, err)
	_, err = s.Update(nil)
	require.NoError(t, err)

	status, err := s.Update(nil)
	require.NoError(t, err)
	require.Len(t, status.AlertsFired(), 1)
	assert.Empty(t, status.Recoveries())

	ev := status.AlertsFired()[0]
	assert.Equal(t, 0, ev.TargetIndex)
	assert.Equal(t, "bag", ev.Label)
	assert.Equal(t, 2, ev.Absences)
	assert.Equal(t, int64(3), ev.Frame)
	require.NotNil(t, ev.TrackID)
	assert.Equal(t, int64(4), *ev.TrackID)
}

func TestSessionSeenAnywhere(t *testing.T) {
	s := newSession(t, 2)
	_, err := s.Initialize([]models.Rect{rect(0, 0, 10, 10)}, []models.Observation{obs("cup", 1, 0, 0, 10, 10)})
	require.NoError(t, err)

	// the identity counts as seen even far from its home ROI
	status, err := s.Update([]models.Observation{obs("cup", 1, 500, 500, 520, 520)})
	require.NoError(t, err)
	assert.Equal(t, presence.Present, status.Targets[0].State)
	assert.True(t, status.Targets[0].Seen)

	// an object sitting in the ROI with another identity does not count
	status, err = s.Update([]models.Observation{obs("cup", 2, 0, 0, 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, presence.AbsentPending, status.Targets[0].State)
	assert.False(t, status.Targets[0].Seen)
}

func TestSessionSharedIdentity(t *testing.T) {
	s := newSession(t, 2)
	rois := []models.Rect{rect(0, 0, 50, 50), rect(40, 40, 90, 90)}
	big := obs("chair", 3, 0, 0, 100, 100)

	results, err := s.Initialize(rois, []models.Observation{big})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, SetupResolved, results[0].Outcome)
	assert.Equal(t, SetupResolved, results[1].Outcome)

	_, err = s.Update([]models.Observation{big})
	require.NoError(t, err)
	_, err = s.Update(nil)
	require.NoError(t, err)
	status, err := s.Update(nil)
	require.NoError(t, err)

	require.Len(t, status.Targets, 2)
	for _, ts := range status.Targets {
		assert.Equal(t, presence.Alert, ts.State)
		assert.Equal(t, presence.EventAlertFired, ts.Event)
	}
	assert.Len(t, status.AlertsFired(), 2)
}

func TestSessionUnmonitorableROIs(t *testing.T) {
	s := newSession(t, 2)
	rois := []models.Rect{rect(0, 0, 10, 10), rect(100, 100, 110, 110), rect(200, 200, 210, 210)}
	anon := models.Observation{BBox: rect(200, 200, 210, 210), Label: "person"}

	results, err := s.Initialize(rois, []models.Observation{obs("book", 9, 0, 0, 10, 10), anon})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, SetupResolved, results[0].Outcome)
	assert.Equal(t, SetupNoOverlap, results[1].Outcome)
	assert.False(t, results[1].Monitorable())
	assert.Equal(t, SetupNoIdentity, results[2].Outcome)
	assert.Nil(t, results[2].TrackID)
	assert.Equal(t, "person", results[2].Label)

	targets := s.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, 0, targets[0].Index)
	assert.Equal(t, 2, targets[1].Index)

	// the identity-less target never leaves Initializing
	for i := 0; i < 5; i++ {
		status, err := s.Update([]models.Observation{obs("book", 9, 0, 0, 10, 10), anon})
		require.NoError(t, err)
		assert.Equal(t, presence.Initializing, status.Targets[1].State)
		assert.Equal(t, presence.Initializing, status.Overall)
	}
}

func TestSessionOverall(t *testing.T) {
	s := newSession(t, 2)
	rois := []models.Rect{rect(0, 0, 10, 10), rect(100, 100, 110, 110)}
	a := obs("a", 1, 0, 0, 10, 10)
	b := obs("b", 2, 100, 100, 110, 110)

	_, err := s.Initialize(rois, []models.Observation{a, b})
	require.NoError(t, err)
	assert.Equal(t, presence.Initializing, s.Overall())

	status, err := s.Update([]models.Observation{a})
	require.NoError(t, err)
	assert.Equal(t, presence.Initializing, status.Overall)

	status, err = s.Update([]models.Observation{a, b})
	require.NoError(t, err)
	assert.Equal(t, presence.Present, status.Overall)

	status, err = s.Update([]models.Observation{a})
	require.NoError(t, err)
	assert.Equal(t, presence.AbsentPending, status.Targets[1].State)
	assert.Equal(t, presence.Initializing, status.Overall)

	status, err = s.Update([]models.Observation{a})
	require.NoError(t, err)
	assert.Equal(t, presence.Alert, status.Overall)
	assert.Equal(t, presence.Alert, s.Overall())
}

func TestSessionReinitializeDiscardsState(t *testing.T) {
	s := newSession(t, 3)
	roi := []models.Rect{rect(0, 0, 10, 10)}
	key := obs("keys", 5, 0, 0, 10, 10)

	_, err := s.Initialize(roi, []models.Observation{key})
	require.NoError(t, err)
	_, err = s.Update([]models.Observation{key})
	require.NoError(t, err)
	_, err = s.Update(nil)
	require.NoError(t, err)
	status, err := s.Update(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Targets[0].Absences)

	_, err = s.Initialize(roi, []models.Observation{key})
	require.NoError(t, err)
	targets := s.Targets()
	require.Len(t, targets, 1)
	assert.Equal(t, presence.Initializing, targets[0].State)
	assert.Equal(t, 0, targets[0].Absences)
	assert.Equal(t, int64(0), s.Frames())

	// a fresh machine needs a sighting and then a full threshold run
	status, err = s.Update(nil)
	require.NoError(t, err)
	assert.Equal(t, presence.Initializing, status.Targets[0].State)
}

func TestSessionRejectsMalformedFrame(t *testing.T) {
	s := newSession(t, 2)
	key := obs("keys", 5, 0, 0, 10, 10)
	_, err := s.Initialize([]models.Rect{rect(0, 0, 10, 10)}, []models.Observation{key})
	require.NoError(t, err)
	_, err = s.Update([]models.Observation{key})
	require.NoError(t, err)

	t.Run("duplicate identity", func(t *testing.T) {
		_, err := s.Update([]models.Observation{obs("a", 8, 0, 0, 5, 5), obs("b", 8, 5, 5, 9, 9)})
		assert.ErrorIs(t, err, models.ErrDuplicateIdentity)
	})
	t.Run("invalid box", func(t *testing.T) {
		_, err := s.Update([]models.Observation{obs("a", 8, 10, 10, 0, 0)})
		assert.ErrorIs(t, err, models.ErrInvalidObservation)
	})

	// rejected frames advance nothing
	assert.Equal(t, int64(1), s.Frames())
	assert.Equal(t, presence.Present, s.Targets()[0].State)
	assert.Equal(t, 0, s.Targets()[0].Absences)
}

func TestSessionInitializeErrorKeepsTargets(t *testing.T) {
	s := newSession(t, 2)
	key := obs("keys", 5, 0, 0, 10, 10)
	_, err := s.Initialize([]models.Rect{rect(0, 0, 10, 10)}, []models.Observation{key})
	require.NoError(t, err)

	_, err = s.Initialize([]models.Rect{rect(10, 10, 0, 0)}, []models.Observation{key})
	assert.ErrorIs(t, err, models.ErrInvalidRect)
	assert.Len(t, s.Targets(), 1)
}

func TestSessionStatusJSONNames(t *testing.T) {
	s := newSession(t, 1)
	_, err := s.Initialize([]models.Rect{rect(0, 0, 10, 10)}, []models.Observation{obs("pen", 2, 0, 0, 10, 10)})
	require.NoError(t, err)
	_, err = s.Update([]models.Observation{obs("pen", 2, 0, 0, 10, 10)})
	require.NoError(t, err)
	status, err := s.Update(nil)
	require.NoError(t, err)

	raw, err := json.Marshal(status)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"overall":"alert"`)
	assert.Contains(t, string(raw), `"kind":"alert_fired"`)
}
