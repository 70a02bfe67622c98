package monitoring

import (
	"github.com/AmitAK1/missing-object-surveillance/internal/models"
	"github.com/AmitAK1/missing-object-surveillance/internal/presence"
)

// SetupOutcome describes how one ROI fared during Initialize.
type SetupOutcome string

const (
	SetupResolved SetupOutcome = "resolved"
	// SetupNoIdentity: an observation matched but the tracker gave it no
	// identity. The target exists but can never leave Initializing.
	SetupNoIdentity SetupOutcome = "no_identity"
	// SetupNoOverlap: nothing overlapped the ROI; no target was created.
	SetupNoOverlap SetupOutcome = "no_overlap"
)

// TargetSetupResult is the per-ROI result of Initialize, in ROI order.
type TargetSetupResult struct {
	Index   int          `json:"index"`
	ROI     models.Rect  `json:"roi"`
	Outcome SetupOutcome `json:"outcome"`
	Label   string       `json:"label,omitempty"`
	TrackID *int64       `json:"track_id,omitempty"`
	Score   float64      `json:"score"`
}

// Monitorable reports whether the ROI is bound to a persistent identity.
func (r TargetSetupResult) Monitorable() bool {
	return r.Outcome == SetupResolved
}

// Target binds one ROI to the identity resolved for it.
type Target struct {
	// Index is the position of the ROI in the Initialize input.
	Index int
	// ROI is the home position, kept for display only.
	ROI     models.Rect
	Label   string
	TrackID *int64

	machine *presence.Machine
}

func (t *Target) observedIn(ids map[int64]struct{}) bool {
	if t.TrackID == nil {
		return false
	}
	_, ok := ids[*t.TrackID]
	return ok
}

func (t *Target) status() TargetStatus {
	return TargetStatus{
		Index:    t.Index,
		ROI:      t.ROI,
		Label:    t.Label,
		TrackID:  copyID(t.TrackID),
		State:    t.machine.State(),
		Absences: t.machine.Absences(),
	}
}

// TargetStatus is one target's state after a frame.
type TargetStatus struct {
	Index    int            `json:"index"`
	ROI      models.Rect    `json:"roi"`
	Label    string         `json:"label"`
	TrackID  *int64         `json:"track_id,omitempty"`
	State    presence.State `json:"state"`
	Event    presence.Event `json:"event"`
	Absences int            `json:"absent_frames"`
	Seen     bool           `json:"seen"`
}

// Event is an alert-fired or recovered transition of one target.
type Event struct {
	Kind        presence.Event `json:"kind"`
	TargetIndex int            `json:"target_index"`
	Label       string         `json:"label"`
	TrackID     *int64         `json:"track_id,omitempty"`
	Absences    int            `json:"absent_frames"`
	Frame       int64          `json:"frame"`
}

// SessionStatus is the result of one Update.
type SessionStatus struct {
	Frame   int64          `json:"frame"`
	Overall presence.State `json:"overall"`
	Targets []TargetStatus `json:"targets"`
	// Events holds this frame's transitions, in target order.
	Events []Event `json:"events,omitempty"`
}

// AlertsFired returns the alert-fired events of this frame.
func (s SessionStatus) AlertsFired() []Event {
	return s.filter(presence.EventAlertFired)
}

// Recoveries returns the recovered events of this frame.
func (s SessionStatus) Recoveries() []Event {
	return s.filter(presence.EventRecovered)
}

func (s SessionStatus) filter(kind presence.Event) []Event {
	var out []Event
	for _, e := range s.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	return models.TrackID(*id)
}
