package vitals

import (
	"encoding/json"
	"time"
)

// MeasurementType identifies the physiological signal a sample belongs to.
type MeasurementType string

const (
	HeartRate   MeasurementType = "HEART_RATE"
	SpO2        MeasurementType = "SPO2"
	Temperature MeasurementType = "TEMPERATURE"
)

// DefaultSignalQuality is assumed when a device omits the quality field.
const DefaultSignalQuality = 1.0

// Range bounds the plausible values for a measurement type.
type Range struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

// Measurement is one physiological sample for a patient. Instances are
// immutable once constructed; pipeline stages copy them by value and never
// mutate stored samples.
type Measurement struct {
	ID            string          `json:"measurementId"`
	PatientID     string          `json:"patientId"`
	Type          MeasurementType `json:"measurementType"`
	Value         float64         `json:"value"`
	Timestamp     time.Time       `json:"timestamp"`
	SignalQuality float64         `json:"signalQuality"`
}

// UnmarshalJSON applies the default signal quality when the field is absent.
// Timestamps arrive as RFC 3339 strings and decode through time.Time.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	type plain Measurement
	aux := struct {
		SignalQuality *float64 `json:"signalQuality"`
		*plain
	}{plain: (*plain)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.SignalQuality == nil {
		m.SignalQuality = DefaultSignalQuality
	} else {
		m.SignalQuality = *aux.SignalQuality
	}
	return nil
}

// StreamKey identifies one patient's stream of a single measurement type.
// Windows, validator high-water marks, and debounce state are all namespaced
// by it.
type StreamKey struct {
	PatientID string
	Type      MeasurementType
}

// Key returns the stream this measurement belongs to.
func (m Measurement) Key() StreamKey {
	return StreamKey{PatientID: m.PatientID, Type: m.Type}
}
