package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmitAK1/missing-object-surveillance/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "history", "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func payload(id string, kind models.EventType, label string, ts time.Time) models.AlertPayload {
	return models.AlertPayload{
		EventID:     id,
		EventType:   kind,
		Severity:    models.AlertSeverityCritical,
		CameraID:    "desk",
		TargetIndex: 0,
		Label:       label,
		TrackID:     models.TrackID(4),
		Title:       "t",
		Description: "d",
		Timestamp:   ts,
	}
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	first := payload("e1", models.EventTypeAlertFired, "laptop", base)
	first.SnapshotPath = "alerts/alert_1.jpg"
	first.AbsentFrames = 25
	require.NoError(t, store.Record(ctx, first, true))

	second := payload("e2", models.EventTypeRecovered, "laptop", base.Add(time.Minute))
	second.TrackID = nil
	require.NoError(t, store.Record(ctx, second, false))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "e2", entries[0].EventID)
	assert.Nil(t, entries[0].TrackID)
	assert.False(t, entries[0].Notified)

	got := entries[1]
	assert.Equal(t, "e1", got.EventID)
	assert.Equal(t, models.EventTypeAlertFired, got.EventType)
	assert.Equal(t, "alerts/alert_1.jpg", got.SnapshotPath)
	assert.Equal(t, 25, got.AbsentFrames)
	assert.True(t, got.Notified)
	require.NotNil(t, got.TrackID)
	assert.Equal(t, int64(4), *got.TrackID)
	assert.True(t, base.Equal(got.Timestamp))

	limited, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordRejectsDuplicateEventID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	p := payload("dup", models.EventTypeAlertFired, "cup", time.Now())

	require.NoError(t, store.Record(ctx, p, true))
	assert.Error(t, store.Record(ctx, p, true))
}

func TestStatistics(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	rows := []struct {
		p        models.AlertPayload
		notified bool
	}{
		{payload("a1", models.EventTypeAlertFired, "laptop", day.Add(9*time.Hour)), true},
		{payload("a2", models.EventTypeAlertFired, "laptop", day.Add(9*time.Hour+30*time.Minute)), false},
		{payload("a3", models.EventTypeAlertFired, "bag", day.Add(14*time.Hour)), true},
		{payload("r1", models.EventTypeRecovered, "laptop", day.Add(10*time.Hour)), true},
	}
	for _, r := range rows {
		require.NoError(t, store.Record(ctx, r.p, r.notified))
	}

	byLabel, err := store.CountByLabel(ctx)
	require.NoError(t, err)
	assert.Equal(t, []LabelCount{{Label: "laptop", Count: 2}, {Label: "bag", Count: 1}}, byLabel)

	byHour, err := store.CountByHour(ctx)
	require.NoError(t, err)
	assert.Equal(t, []HourCount{{Hour: 9, Count: 2}, {Hour: 14, Count: 1}}, byHour)

	sum, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalAlerts)
	assert.Equal(t, 1, sum.TotalRecoveries)
	assert.Equal(t, 3, sum.Notifications)
	require.NotNil(t, sum.FirstAlert)
	require.NotNil(t, sum.LastAlert)
	assert.True(t, day.Add(9*time.Hour).Equal(*sum.FirstAlert))
	assert.True(t, day.Add(14*time.Hour).Equal(*sum.LastAlert))
}

func TestSummaryEmpty(t *testing.T) {
	store := openTestStore(t)

	sum, err := store.Summary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.TotalAlerts)
	assert.Nil(t, sum.FirstAlert)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, payload("k1", models.EventTypeAlertFired, "keys", time.Now()), true))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	entries, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
