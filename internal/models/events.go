package models

// ProcessedEvents summarizes one frame's post-processing.
type ProcessedEvents struct {
	Total     int      `json:"total"`
	Published int      `json:"published"`
	Throttled int      `json:"throttled"`
	Recorded  int      `json:"recorded"`
	Errors    []string `json:"errors,omitempty"`
}
