package worker

import "time"

// fpsMeter computes frames per second over a rolling window of frame times.
type fpsMeter struct {
	window int
	times  []time.Time
}

func newFPSMeter(window int) *fpsMeter {
	if window < 2 {
		window = 2
	}
	return &fpsMeter{window: window}
}

// Tick records a frame at t and returns the current rate.
func (m *fpsMeter) Tick(t time.Time) float64 {
	m.times = append(m.times, t)
	if len(m.times) > m.window {
		m.times = m.times[1:]
	}
	if len(m.times) < 2 {
		return 0
	}
	span := m.times[len(m.times)-1].Sub(m.times[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(m.times)-1) / span
}
