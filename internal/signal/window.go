package signal

import (
	"vital-signs-monitor/internal/stats"
	"vital-signs-monitor/internal/vitals"
)

// Windows keeps a bounded FIFO window of raw measurements per stream and
// derives the smoothed view used by anomaly detection. Raw storage is never
// rewritten by smoothing.
type Windows struct {
	size    int
	windows map[vitals.StreamKey][]vitals.Measurement
}

// NewWindows builds the window store with the configured capacity.
func NewWindows(size int) *Windows {
	if size < 1 {
		size = 1
	}
	return &Windows{
		size:    size,
		windows: make(map[vitals.StreamKey][]vitals.Measurement),
	}
}

// Append adds a measurement to its stream's window, evicting the oldest
// entry beyond capacity, and returns a copy of the current window.
func (w *Windows) Append(m vitals.Measurement) []vitals.Measurement {
	key := m.Key()
	win := append(w.windows[key], m)
	if len(win) > w.size {
		win = win[len(win)-w.size:]
	}
	w.windows[key] = win
	return copyWindow(win)
}

// Window returns a copy of the raw window for a stream, possibly empty.
func (w *Windows) Window(patientID string, t vitals.MeasurementType) []vitals.Measurement {
	return copyWindow(w.windows[vitals.StreamKey{PatientID: patientID, Type: t}])
}

// Smoothed derives the analysis view of a stream's window: every sample's
// value is replaced by the arithmetic mean of the whole window. This is a
// global collapse, not a rolling average, so the "most recent" smoothed
// sample always carries the window mean.
func (w *Windows) Smoothed(patientID string, t vitals.MeasurementType) []vitals.Measurement {
	win := w.windows[vitals.StreamKey{PatientID: patientID, Type: t}]
	if len(win) == 0 {
		return nil
	}

	values := make([]float64, len(win))
	for i, m := range win {
		values[i] = m.Value
	}
	mean := stats.Mean(values)

	smoothed := make([]vitals.Measurement, len(win))
	for i, m := range win {
		m.Value = mean
		smoothed[i] = m
	}
	return smoothed
}

// Count reports how many streams currently hold at least one sample.
func (w *Windows) Count() int {
	return len(w.windows)
}

func copyWindow(win []vitals.Measurement) []vitals.Measurement {
	if len(win) == 0 {
		return nil
	}
	out := make([]vitals.Measurement, len(win))
	copy(out, win)
	return out
}
