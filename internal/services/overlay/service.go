package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/AmitAK1/missing-object-surveillance/internal/config"
	"github.com/AmitAK1/missing-object-surveillance/internal/models"
	"github.com/AmitAK1/missing-object-surveillance/internal/monitoring"
	"github.com/AmitAK1/missing-object-surveillance/internal/presence"
)

var (
	colorSecured = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	colorPending = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	colorAlert   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	colorText    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorPanel   = color.RGBA{R: 0, G: 0, B: 0, A: 200}
)

// Service draws target ROIs onto frames and writes alert snapshots.
type Service struct {
	cfg *config.Config
}

func NewService(cfg *config.Config) (*Service, error) {
	if cfg.SnapshotsEnabled {
		if err := os.MkdirAll(cfg.SnapshotDir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir %s: %w", cfg.SnapshotDir, err)
		}
	}
	return &Service{cfg: cfg}, nil
}

// Annotate draws every target's home ROI colored by its state, plus an
// overall status banner, and returns the result as JPEG.
func (s *Service) Annotate(frame models.Frame, status monitoring.SessionStatus) ([]byte, error) {
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create Mat from frame data: %w", err)
	}
	defer mat.Close()

	for _, t := range status.Targets {
		drawTarget(&mat, t)
	}
	drawBanner(&mat, status)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, 90})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// SaveSnapshot writes an annotated alert frame as alert_<timestamp>.jpg and
// returns its path. With snapshots disabled it returns "".
func (s *Service) SaveSnapshot(jpeg []byte, at time.Time) (string, error) {
	if !s.cfg.SnapshotsEnabled {
		return "", nil
	}
	name := fmt.Sprintf("alert_%s_%03d.jpg", at.Format("20060102_150405"), at.Nanosecond()/int(time.Millisecond))
	path := filepath.Join(s.cfg.SnapshotDir, name)
	if err := os.WriteFile(path, jpeg, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("🚨 Alert snapshot saved")
	return path, nil
}

func stateColor(state presence.State) color.RGBA {
	switch state {
	case presence.Present:
		return colorSecured
	case presence.Alert:
		return colorAlert
	default:
		return colorPending
	}
}

func targetLabel(t monitoring.TargetStatus) string {
	id := "-"
	if t.TrackID != nil {
		id = fmt.Sprintf("%d", *t.TrackID)
	}
	return fmt.Sprintf("ROI%d: %s (ID:%s)", t.Index+1, t.Label, id)
}

func toImageRect(r models.Rect) image.Rectangle {
	return image.Rect(
		int(math.Round(r.X1)), int(math.Round(r.Y1)),
		int(math.Round(r.X2)), int(math.Round(r.Y2)),
	)
}

func drawTarget(mat *gocv.Mat, t monitoring.TargetStatus) {
	c := stateColor(t.State)
	rect := toImageRect(t.ROI)
	gocv.Rectangle(mat, rect, c, 3)

	label := targetLabel(t)
	textSize := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.6, 2)
	y := rect.Min.Y
	if y-textSize.Y-10 < 0 {
		y = rect.Min.Y + textSize.Y + 10
	}
	gocv.Rectangle(mat, image.Rect(rect.Min.X, y-textSize.Y-10, rect.Min.X+textSize.X, y), c, -1)
	gocv.PutText(mat, label, image.Pt(rect.Min.X, y-5), gocv.FontHersheySimplex, 0.6, colorText, 2)
}

func drawBanner(mat *gocv.Mat, status monitoring.SessionStatus) {
	var text string
	switch status.Overall {
	case presence.Alert:
		text = fmt.Sprintf("ALERT: %d object(s) missing", countState(status.Targets, presence.Alert))
	case presence.Present:
		text = fmt.Sprintf("SECURED: %d object(s)", len(status.Targets))
	default:
		text = "INITIALIZING"
	}
	text = fmt.Sprintf("%s | frame %d", text, status.Frame)

	fontScale := 0.7
	thickness := 2
	textSize := gocv.GetTextSize(text, gocv.FontHersheySimplex, fontScale, thickness)
	x, y, padding := 10, 30, 8

	gocv.Rectangle(mat, image.Rect(x-padding, y-textSize.Y-padding, x+textSize.X+padding, y+padding), colorPanel, -1)
	gocv.PutText(mat, text, image.Pt(x, y), gocv.FontHersheySimplex, fontScale, stateColor(status.Overall), thickness)
}

func countState(targets []monitoring.TargetStatus, state presence.State) int {
	n := 0
	for _, t := range targets {
		if t.State == state {
			n++
		}
	}
	return n
}
