// Package presence debounces a per-frame "target observed" signal into a
// monitoring status with edge-triggered alert and recovery events.
package presence

import (
	"errors"
	"fmt"
)

// ErrInvalidThreshold is returned for an absence threshold below one frame.
var ErrInvalidThreshold = errors.New("absence threshold must be at least 1 frame")

// State is the debounced presence status of one target.
type State int

const (
	// Initializing holds until the target is observed for the first time.
	Initializing State = iota
	// Present means the target was observed on the latest frame (secured).
	Present
	// AbsentPending means the target is unseen for fewer than threshold frames.
	AbsentPending
	// Alert means the target is unseen for threshold frames or more.
	Alert
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Present:
		return "present"
	case AbsentPending:
		return "absent_pending"
	case Alert:
		return "alert"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is the edge signal produced by a transition.
type Event int

const (
	EventNone Event = iota
	// EventAlertFired fires once, on the frame the absence run reaches the threshold.
	EventAlertFired
	// EventRecovered fires on the first sighting after an alert.
	EventRecovered
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventAlertFired:
		return "alert_fired"
	case EventRecovered:
		return "recovered"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

func (e Event) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Machine is the presence state machine for one target. It counts frames,
// not time; the wall-clock meaning of the threshold depends on the caller's
// frame rate. The zero value is not usable, use NewMachine.
type Machine struct {
	threshold int
	state     State
	absences  int
}

// NewMachine returns a machine in Initializing that alerts after threshold
// consecutive absent frames.
func NewMachine(threshold int) (*Machine, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidThreshold, threshold)
	}
	return &Machine{threshold: threshold, state: Initializing}, nil
}

// Update applies one frame's observation and returns the new state and the
// edge event of this transition, if any.
func (m *Machine) Update(seen bool) (State, Event) {
	if seen {
		event := EventNone
		if m.state == Alert {
			event = EventRecovered
		}
		m.state = Present
		m.absences = 0
		return m.state, event
	}

	switch m.state {
	case Initializing:
		// absence before the first sighting never counts
		return m.state, EventNone
	case Alert:
		m.absences++
		return m.state, EventNone
	}

	m.absences++
	if m.absences < m.threshold {
		m.state = AbsentPending
		return m.state, EventNone
	}
	m.state = Alert
	return m.state, EventAlertFired
}

func (m *Machine) State() State { return m.state }

// Absences is the length of the current run of absent frames since the
// last sighting. It keeps counting while in Alert.
func (m *Machine) Absences() int { return m.absences }

func (m *Machine) Threshold() int { return m.threshold }
