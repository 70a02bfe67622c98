package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AmitAK1/missing-object-surveillance/internal/models"
)

const defaultRecentLimit = 50

// Entry is one stored event.
type Entry struct {
	models.AlertPayload
	Notified bool `json:"notified"`
}

// LabelCount is the number of alerts raised for one object label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// HourCount is the number of alerts raised in one hour of the day.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Summary aggregates the whole history.
type Summary struct {
	TotalAlerts     int        `json:"total_alerts"`
	TotalRecoveries int        `json:"total_recoveries"`
	Notifications   int        `json:"notifications_sent"`
	FirstAlert      *time.Time `json:"first_alert,omitempty"`
	LastAlert       *time.Time `json:"last_alert,omitempty"`
}

// Recent returns the newest events first. A non-positive limit uses the default.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, event_type, severity, camera_id, target_index, label, track_id,
		       absent_frames, frame_id, title, description, snapshot_path, notified, created_at
		FROM events
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			eventType string
			severity  string
			trackID   sql.NullInt64
			snapshot  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(
			&e.EventID, &eventType, &severity, &e.CameraID, &e.TargetIndex, &e.Label, &trackID,
			&e.AbsentFrames, &e.FrameID, &e.Title, &e.Description, &snapshot, &e.Notified, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventType = models.EventType(eventType)
		e.Severity = models.AlertSeverity(severity)
		if trackID.Valid {
			e.TrackID = models.TrackID(trackID.Int64)
		}
		e.SnapshotPath = snapshot.String
		e.Timestamp = time.Unix(0, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByLabel returns alert counts per object label, most frequent first.
func (s *Store) CountByLabel(ctx context.Context) ([]LabelCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, COUNT(1) FROM events
		WHERE event_type = ?
		GROUP BY label
		ORDER BY COUNT(1) DESC, label ASC`, string(models.EventTypeAlertFired))
	if err != nil {
		return nil, fmt.Errorf("count alerts by label: %w", err)
	}
	defer rows.Close()

	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, fmt.Errorf("scan label count: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// CountByHour returns alert counts per hour of day, in hour order. Hours
// without alerts are omitted.
func (s *Store) CountByHour(ctx context.Context) ([]HourCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hour, COUNT(1) FROM events
		WHERE event_type = ?
		GROUP BY hour
		ORDER BY hour ASC`, string(models.EventTypeAlertFired))
	if err != nil {
		return nil, fmt.Errorf("count alerts by hour: %w", err)
	}
	defer rows.Close()

	var out []HourCount
	for rows.Next() {
		var hc HourCount
		if err := rows.Scan(&hc.Hour, &hc.Count); err != nil {
			return nil, fmt.Errorf("scan hour count: %w", err)
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

// Summary returns totals across the whole history.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var (
		sum         Summary
		first, last sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN event_type = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN event_type = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(notified), 0),
			MIN(CASE WHEN event_type = ? THEN created_at END),
			MAX(CASE WHEN event_type = ? THEN created_at END)
		FROM events`,
		string(models.EventTypeAlertFired), string(models.EventTypeRecovered),
		string(models.EventTypeAlertFired), string(models.EventTypeAlertFired),
	).Scan(&sum.TotalAlerts, &sum.TotalRecoveries, &sum.Notifications, &first, &last)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize history: %w", err)
	}
	if first.Valid {
		t := time.Unix(0, first.Int64)
		sum.FirstAlert = &t
	}
	if last.Valid {
		t := time.Unix(0, last.Int64)
		sum.LastAlert = &t
	}
	return sum, nil
}
