// Package anomaly evaluates smoothed measurement windows against threshold
// and trend rules.
package anomaly

import (
	"fmt"
	"time"

	"vital-signs-monitor/internal/stats"
	"vital-signs-monitor/internal/vitals"
)

// Kind labels what a finding detected.
type Kind string

const (
	ThresholdLow  Kind = "THRESHOLD_LOW"
	ThresholdHigh Kind = "THRESHOLD_HIGH"
	Trend         Kind = "TREND"
)

// Threshold bounds a measurement type; either side may be absent.
type Threshold struct {
	Min *float64 `json:"min,omitempty" mapstructure:"min"`
	Max *float64 `json:"max,omitempty" mapstructure:"max"`
}

// TrendConfig parameterises trend detection.
type TrendConfig struct {
	MinPoints       int
	SlopeThresholds map[vitals.MeasurementType]float64
}

// Finding describes one detected deviation. A fresh value is built per
// detection call; it is never stored directly, only wrapped into an alert.
type Finding struct {
	Kind       Kind                   `json:"anomalyType"`
	Type       vitals.MeasurementType `json:"measurementType"`
	Observed   float64                `json:"observedValue"`
	Expected   *Threshold             `json:"expectedRange,omitempty"`
	DetectedAt time.Time              `json:"detectionTimestamp"`
	Message    string                 `json:"message"`
	Context    map[string]any         `json:"context,omitempty"`
}

// Detector is stateless given its configuration and can evaluate any window.
type Detector struct {
	thresholds map[vitals.MeasurementType]Threshold
	trend      TrendConfig
}

// NewDetector builds a Detector from threshold and trend configuration.
func NewDetector(thresholds map[vitals.MeasurementType]Threshold, trend TrendConfig) *Detector {
	return &Detector{thresholds: thresholds, trend: trend}
}

// DetectThreshold inspects only the most recent sample of the window.
// SPO2 alerts below its minimum, heart rate above its maximum (exclusive),
// temperature at or above its maximum. The inclusive temperature bound is
// intentional: 39.0 with a 39.0 limit is already febrile.
func (d *Detector) DetectThreshold(window []vitals.Measurement, t vitals.MeasurementType) *Finding {
	if len(window) == 0 {
		return nil
	}
	th, ok := d.thresholds[t]
	if !ok {
		return nil
	}
	last := window[len(window)-1]

	switch t {
	case vitals.SpO2:
		if th.Min != nil && last.Value < *th.Min {
			return d.thresholdFinding(ThresholdLow, t, last, th,
				fmt.Sprintf("SPO2 %.1f below configured minimum %.1f", last.Value, *th.Min))
		}
	case vitals.HeartRate:
		if th.Max != nil && last.Value > *th.Max {
			return d.thresholdFinding(ThresholdHigh, t, last, th,
				fmt.Sprintf("heart rate %.1f above configured maximum %.1f", last.Value, *th.Max))
		}
	case vitals.Temperature:
		if th.Max != nil && last.Value >= *th.Max {
			return d.thresholdFinding(ThresholdHigh, t, last, th,
				fmt.Sprintf("temperature %.1f at or above configured maximum %.1f", last.Value, *th.Max))
		}
	}
	return nil
}

func (d *Detector) thresholdFinding(kind Kind, t vitals.MeasurementType, last vitals.Measurement, th Threshold, msg string) *Finding {
	expected := th
	return &Finding{
		Kind:       kind,
		Type:       t,
		Observed:   last.Value,
		Expected:   &expected,
		DetectedAt: time.Now().UTC(),
		Message:    msg,
		Context:    map[string]any{"lastSample": last},
	}
}

// DetectTrend fits a least-squares slope over the window's values and
// compares it to the configured per-type limit. A falling SPO2 trend is the
// dangerous direction; for every other type a rising trend triggers.
func (d *Detector) DetectTrend(window []vitals.Measurement, t vitals.MeasurementType) *Finding {
	if d.trend.MinPoints <= 0 || len(window) < d.trend.MinPoints {
		return nil
	}
	limit, ok := d.trend.SlopeThresholds[t]
	if !ok {
		return nil
	}

	values := make([]float64, len(window))
	for i, m := range window {
		values[i] = m.Value
	}
	slope := stats.Slope(values)

	triggered := slope >= limit
	direction := "rising"
	if t == vitals.SpO2 {
		triggered = slope <= limit
		direction = "falling"
	}
	if !triggered {
		return nil
	}

	last := window[len(window)-1]
	return &Finding{
		Kind:       Trend,
		Type:       t,
		Observed:   last.Value,
		DetectedAt: time.Now().UTC(),
		Message:    fmt.Sprintf("%s %s trend: slope %.2f over %d samples", t, direction, slope, len(window)),
		Context: map[string]any{
			"slope":      slope,
			"points":     len(window),
			"lastSample": last,
		},
	}
}

// Evaluate runs the threshold rule first and falls back to the trend rule.
func (d *Detector) Evaluate(window []vitals.Measurement, t vitals.MeasurementType) *Finding {
	if f := d.DetectThreshold(window, t); f != nil {
		return f
	}
	return d.DetectTrend(window, t)
}
