package models

import "fmt"

// Observation is one detector/tracker output for a single frame.
type Observation struct {
	BBox  Rect    `json:"bbox"`
	Label string  `json:"label"`
	Score float32 `json:"score"`

	// TrackID is the tracker's persistent identity for the object; nil when
	// the tracker could not assign one on this frame.
	TrackID *int64 `json:"track_id,omitempty"`
}

// TrackID returns a pointer suitable for Observation.TrackID.
func TrackID(id int64) *int64 {
	return &id
}

// Identity returns the persistent identity and whether one is present.
func (o Observation) Identity() (int64, bool) {
	if o.TrackID == nil {
		return 0, false
	}
	return *o.TrackID, true
}

// Clone returns a copy that shares no pointers with o.
func (o Observation) Clone() Observation {
	c := o
	if o.TrackID != nil {
		c.TrackID = TrackID(*o.TrackID)
	}
	return c
}

// ValidateObservations checks one frame's observation set: every box must be
// well formed and identities must be unique within the frame.
func ValidateObservations(observations []Observation) error {
	seen := make(map[int64]int, len(observations))
	for i, obs := range observations {
		if err := obs.BBox.Validate(); err != nil {
			return fmt.Errorf("%w: observation %d (%s): %v", ErrInvalidObservation, i, obs.Label, err)
		}
		id, ok := obs.Identity()
		if !ok {
			continue
		}
		if first, dup := seen[id]; dup {
			return fmt.Errorf("%w: track %d at observations %d and %d", ErrDuplicateIdentity, id, first, i)
		}
		seen[id] = i
	}
	return nil
}

// IdentitySet collects the identities present in a frame.
func IdentitySet(observations []Observation) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(observations))
	for _, obs := range observations {
		if id, ok := obs.Identity(); ok {
			ids[id] = struct{}{}
		}
	}
	return ids
}
