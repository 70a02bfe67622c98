// Package association binds operator-drawn regions of interest to the tracked
// objects visible on a single initialization frame.
package association

import (
	"fmt"

	"github.com/AmitAK1/missing-object-surveillance/internal/models"
)

// Match is the resolution result for one ROI.
type Match struct {
	ROI models.Rect
	// Observation is nil when no observation overlaps the ROI.
	Observation *models.Observation
	Score       float64
	// Candidate is the position of the matched observation in the input set,
	// or -1 when unresolved.
	Candidate int
}

// Resolved reports whether an observation was found for the ROI.
func (m Match) Resolved() bool {
	return m.Observation != nil
}

// OverlapScore is the intersection area divided by the ROI area. It is
// asymmetric on purpose: a small ROI drawn fully inside a larger object box
// scores 1.0.
func OverlapScore(roi, box models.Rect) float64 {
	roiArea := roi.Area()
	if roiArea == 0 {
		return 0
	}
	return roi.Intersect(box).Area() / roiArea
}

// Resolve maps every ROI independently to the observation with the strictly
// highest overlap score. Ties keep the observation seen first. ROIs with no
// overlap at all come back unresolved. Results preserve ROI order.
//
// Malformed input (a degenerate ROI, a degenerate box, duplicate identities)
// fails the whole call.
func Resolve(rois []models.Rect, observations []models.Observation) ([]Match, error) {
	for i, roi := range rois {
		if err := roi.Validate(); err != nil {
			return nil, fmt.Errorf("roi %d: %w", i, err)
		}
	}
	if err := models.ValidateObservations(observations); err != nil {
		return nil, err
	}

	matches := make([]Match, len(rois))
	for i, roi := range rois {
		matches[i] = resolveOne(roi, observations)
	}
	return matches, nil
}

func resolveOne(roi models.Rect, observations []models.Observation) Match {
	m := Match{ROI: roi, Candidate: -1}
	for i, obs := range observations {
		score := OverlapScore(roi, obs.BBox)
		if score > m.Score {
			m.Score = score
			m.Candidate = i
		}
	}
	if m.Candidate >= 0 {
		obs := observations[m.Candidate].Clone()
		m.Observation = &obs
	}
	return m
}
