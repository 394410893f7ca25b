// Package signal owns the measurement intake stages: validation and the
// per-stream sliding windows with their smoothed view.
package signal

import (
	"time"

	"vital-signs-monitor/internal/vitals"
)

// Discard reasons surfaced to callers when a measurement is rejected.
const (
	ReasonMissingFields = "missing fields"
	ReasonLowQuality    = "low signal quality"
	ReasonImplausible   = "implausible value"
	ReasonBadTimestamp  = "invalid timestamp"
	ReasonOutOfOrder    = "out-of-order timestamp"
)

// Result reports the outcome of a validation check.
type Result struct {
	OK     bool
	Reason string
}

func rejected(reason string) Result { return Result{Reason: reason} }

// Validator gates measurements before they reach the windows. Checks run in
// a fixed order and short-circuit on the first failure: structure, signal
// quality, plausibility, temporal order.
//
// The temporal check is stateful: accepting a measurement advances that
// stream's high-water mark, so re-validating the same instant twice still
// passes (the comparison rejects only strictly older timestamps) while
// anything before the mark is refused.
type Validator struct {
	minQuality float64
	ranges     map[vitals.MeasurementType]vitals.Range
	lastSeen   map[vitals.StreamKey]time.Time
}

// NewValidator builds a Validator from the configured plausible ranges and
// minimum signal quality.
func NewValidator(minQuality float64, ranges map[vitals.MeasurementType]vitals.Range) *Validator {
	return &Validator{
		minQuality: minQuality,
		ranges:     ranges,
		lastSeen:   make(map[vitals.StreamKey]time.Time),
	}
}

// Validate approves or rejects a measurement. Rejection has no side effects;
// approval advances the stream's last accepted timestamp.
func (v *Validator) Validate(m vitals.Measurement) Result {
	if m.PatientID == "" || m.Type == "" {
		return rejected(ReasonMissingFields)
	}

	// NaN quality fails the comparison and is rejected with the rest.
	if !(m.SignalQuality >= v.minQuality) {
		return rejected(ReasonLowQuality)
	}

	r, ok := v.ranges[m.Type]
	if !ok {
		// Unknown types have no plausible range and are implausible by definition.
		return rejected(ReasonImplausible)
	}
	if !(m.Value >= r.Min && m.Value <= r.Max) {
		return rejected(ReasonImplausible)
	}

	if m.Timestamp.IsZero() {
		return rejected(ReasonBadTimestamp)
	}
	key := m.Key()
	if last, seen := v.lastSeen[key]; seen && m.Timestamp.Before(last) {
		return rejected(ReasonOutOfOrder)
	}

	v.lastSeen[key] = m.Timestamp
	return Result{OK: true}
}
