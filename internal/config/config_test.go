package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmitAK1/missing-object-surveillance/internal/models"
)

func TestParseROIs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []models.Rect
		wantErr bool
	}{
		{name: "empty", raw: "", want: nil},
		{name: "blank", raw: "   ", want: nil},
		{name: "single", raw: "10,20,110,220", want: []models.Rect{{X1: 10, Y1: 20, X2: 110, Y2: 220}}},
		{
			name: "several with spaces and trailing separator",
			raw:  " 0,0,50,50 ; 60.5, 60, 90, 90 ;",
			want: []models.Rect{{X1: 0, Y1: 0, X2: 50, Y2: 50}, {X1: 60.5, Y1: 60, X2: 90, Y2: 90}},
		},
		{name: "too few coordinates", raw: "1,2,3", wantErr: true},
		{name: "not a number", raw: "a,b,c,d", wantErr: true},
		{name: "inverted", raw: "50,50,10,10", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseROIs(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALERT_THRESHOLD", "")
	t.Setenv("ROIS", "")
	t.Setenv("NATS_URL", "nats://example:4222")

	cfg := Load()
	assert.Equal(t, 25, cfg.AlertThreshold)
	assert.Equal(t, 10, cfg.MinROISize)
	assert.Equal(t, "nats://example:4222", cfg.NatsURL)
	assert.Empty(t, cfg.ROIs)
	assert.Equal(t, "surveillance.setup."+cfg.CameraID, cfg.SetupSubject)
	assert.True(t, cfg.ContextImageEnabled)
	assert.Equal(t, 500*1024, cfg.MaxContextImageSize)
	assert.Equal(t, 2*time.Second, cfg.StreamKeepalive)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ALERT_THRESHOLD", "5")
	t.Setenv("CAMERA_ID", "desk")
	t.Setenv("ROIS", "0,0,100,100")
	t.Setenv("ALERTS_COOLDOWN", "2m")
	t.Setenv("SNAPSHOTS_ENABLED", "false")
	t.Setenv("MAX_FPS", "not-a-number")

	cfg := Load()
	assert.Equal(t, 5, cfg.AlertThreshold)
	assert.Equal(t, "desk", cfg.CameraID)
	assert.Equal(t, []models.Rect{{X1: 0, Y1: 0, X2: 100, Y2: 100}}, cfg.ROIs)
	assert.Equal(t, 2*time.Minute, cfg.AlertsCooldown)
	assert.False(t, cfg.SnapshotsEnabled)
	assert.Equal(t, 30, cfg.MaxFPS, "unparsable values fall back to the default")
}

func TestValidate(t *testing.T) {
	t.Setenv("ALERT_THRESHOLD", "0")
	t.Setenv("ROIS", "1,2,3")

	cfg := Load()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALERT_THRESHOLD")
	assert.Contains(t, err.Error(), "ROIS")
}
