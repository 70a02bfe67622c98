// Package monitoring drives one presence state machine per monitored target
// from per-frame tracker output.
package monitoring

import (
	"fmt"

	"github.com/AmitAK1/missing-object-surveillance/internal/association"
	"github.com/AmitAK1/missing-object-surveillance/internal/models"
	"github.com/AmitAK1/missing-object-surveillance/internal/presence"
)

// Session owns the targets of one monitoring run. It is not safe for
// concurrent use: the capture loop calls Update once per frame, in order.
type Session struct {
	threshold int
	targets   []*Target
	frames    int64
}

// NewSession returns an empty session whose targets alert after threshold
// consecutive absent frames.
func NewSession(threshold int) (*Session, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("%w: got %d", presence.ErrInvalidThreshold, threshold)
	}
	return &Session{threshold: threshold}, nil
}

func (s *Session) Threshold() int { return s.threshold }

// Frames is the number of frames processed since the last Initialize.
func (s *Session) Frames() int64 { return s.frames }

// Initialize resolves rois against the initialization frame and replaces all
// existing targets with fresh ones. ROIs that overlap no observation are
// reported as unmonitorable and get no target. On error the previous targets
// are left untouched.
func (s *Session) Initialize(rois []models.Rect, observations []models.Observation) ([]TargetSetupResult, error) {
	matches, err := association.Resolve(rois, observations)
	if err != nil {
		return nil, fmt.Errorf("resolve rois: %w", err)
	}

	results := make([]TargetSetupResult, len(matches))
	targets := make([]*Target, 0, len(matches))
	for i, m := range matches {
		res := TargetSetupResult{Index: i, ROI: m.ROI, Score: m.Score, Outcome: SetupNoOverlap}
		if !m.Resolved() {
			results[i] = res
			continue
		}

		machine, err := presence.NewMachine(s.threshold)
		if err != nil {
			return nil, err
		}
		target := &Target{
			Index:   i,
			ROI:     m.ROI,
			Label:   m.Observation.Label,
			TrackID: m.Observation.TrackID,
			machine: machine,
		}
		targets = append(targets, target)

		res.Label = target.Label
		res.TrackID = copyID(target.TrackID)
		res.Outcome = SetupResolved
		if target.TrackID == nil {
			res.Outcome = SetupNoIdentity
		}
		results[i] = res
	}

	s.targets = targets
	s.frames = 0
	return results, nil
}

// Update feeds one frame's observations to every target and aggregates the
// result. Malformed observations fail the call without advancing any target.
func (s *Session) Update(observations []models.Observation) (SessionStatus, error) {
	if err := models.ValidateObservations(observations); err != nil {
		return SessionStatus{}, err
	}
	ids := models.IdentitySet(observations)

	s.frames++
	status := SessionStatus{
		Frame:   s.frames,
		Targets: make([]TargetStatus, len(s.targets)),
	}
	for i, t := range s.targets {
		seen := t.observedIn(ids)
		_, event := t.machine.Update(seen)

		ts := t.status()
		ts.Seen = seen
		ts.Event = event
		status.Targets[i] = ts

		if event != presence.EventNone {
			status.Events = append(status.Events, Event{
				Kind:        event,
				TargetIndex: t.Index,
				Label:       t.Label,
				TrackID:     copyID(t.TrackID),
				Absences:    t.machine.Absences(),
				Frame:       s.frames,
			})
		}
	}
	status.Overall = aggregate(status.Targets)
	return status, nil
}

// Targets returns the current status of every target without advancing them.
func (s *Session) Targets() []TargetStatus {
	out := make([]TargetStatus, len(s.targets))
	for i, t := range s.targets {
		out[i] = t.status()
	}
	return out
}

// Overall returns the aggregate status without advancing the targets.
func (s *Session) Overall() presence.State {
	return aggregate(s.Targets())
}

// Reset discards every target.
func (s *Session) Reset() {
	s.targets = nil
	s.frames = 0
}

// aggregate is Alert if any target alerts, Present if every target is
// present, Initializing otherwise. A session with no targets is Initializing.
func aggregate(targets []TargetStatus) presence.State {
	if len(targets) == 0 {
		return presence.Initializing
	}
	allPresent := true
	for _, t := range targets {
		if t.State == presence.Alert {
			return presence.Alert
		}
		if t.State != presence.Present {
			allPresent = false
		}
	}
	if allPresent {
		return presence.Present
	}
	return presence.Initializing
}
