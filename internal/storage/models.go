package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vital-signs-monitor/internal/alerting"
	"vital-signs-monitor/internal/anomaly"
	"vital-signs-monitor/internal/vitals"
)

// MeasurementRecord is one persisted measurement row.
type MeasurementRecord struct {
	ID            int64                  `json:"id"`
	MeasurementID string                 `json:"measurementId"`
	PatientID     string                 `json:"patientId"`
	Type          vitals.MeasurementType `json:"measurementType"`
	Value         float64                `json:"value"`
	RecordedAt    time.Time              `json:"recordedAt"`
	SignalQuality float64                `json:"signalQuality"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// NewMeasurementRecord converts an accepted measurement into its storage row.
func NewMeasurementRecord(m vitals.Measurement) MeasurementRecord {
	return MeasurementRecord{
		MeasurementID: m.ID,
		PatientID:     m.PatientID,
		Type:          m.Type,
		Value:         m.Value,
		RecordedAt:    m.Timestamp,
		SignalQuality: m.SignalQuality,
	}
}

// AlertRecord captures an emitted alert for auditing and display. The
// anomaly and contextual metadata travel as jsonb payloads.
type AlertRecord struct {
	ID        int64             `json:"id"`
	AlertID   string            `json:"alertId"`
	PatientID string            `json:"patientId"`
	Kind      anomaly.Kind      `json:"alertType"`
	Severity  alerting.Severity `json:"severityLevel"`
	RaisedAt  time.Time         `json:"raisedAt"`
	Finding   json.RawMessage   `json:"finding"`
	Metadata  json.RawMessage   `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewAlertRecord converts an alert event into its storage row.
func NewAlertRecord(a alerting.Event) (AlertRecord, error) {
	finding, err := json.Marshal(a.Finding)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("marshal finding: %w", err)
	}

	metadata := json.RawMessage(`{}`)
	if len(a.Metadata) > 0 {
		metadata, err = json.Marshal(a.Metadata)
		if err != nil {
			return AlertRecord{}, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	return AlertRecord{
		AlertID:   a.ID,
		PatientID: a.PatientID,
		Kind:      a.Kind,
		Severity:  a.Severity,
		RaisedAt:  a.Timestamp,
		Finding:   finding,
		Metadata:  metadata,
	}, nil
}

// History adapts the persistence stores to the pipeline's history
// collaborator.
type History struct {
	Measurements MeasurementHistory
	Alerts       AlertHistory
}

// SaveMeasurement persists one accepted measurement.
func (h History) SaveMeasurement(ctx context.Context, m vitals.Measurement) error {
	return h.Measurements.InsertMeasurement(ctx, NewMeasurementRecord(m))
}

// SaveAlert persists one emitted alert.
func (h History) SaveAlert(ctx context.Context, a alerting.Event) error {
	rec, err := NewAlertRecord(a)
	if err != nil {
		return err
	}
	return h.Alerts.InsertAlert(ctx, rec)
}
