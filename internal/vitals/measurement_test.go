package vitals

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMeasurementUnmarshalDefaultsQuality(t *testing.T) {
	payload := []byte(`{"measurementId":"m-1","patientId":"p-1","measurementType":"HEART_RATE","value":72,"timestamp":"2026-08-20T10:00:00Z"}`)

	var m Measurement
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if m.SignalQuality != DefaultSignalQuality {
		t.Fatalf("expected default quality %v, got %v", DefaultSignalQuality, m.SignalQuality)
	}
	if m.Type != HeartRate {
		t.Fatalf("expected HEART_RATE, got %s", m.Type)
	}
	want := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	if !m.Timestamp.Equal(want) {
		t.Fatalf("timestamp mismatch: %s", m.Timestamp)
	}
}

func TestMeasurementUnmarshalKeepsExplicitQuality(t *testing.T) {
	payload := []byte(`{"measurementId":"m-2","patientId":"p-1","measurementType":"SPO2","value":97,"timestamp":"2026-08-20T10:00:00Z","signalQuality":0.2}`)

	var m Measurement
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if m.SignalQuality != 0.2 {
		t.Fatalf("expected quality 0.2, got %v", m.SignalQuality)
	}
}

func TestStreamKeyEquality(t *testing.T) {
	a := Measurement{PatientID: "p-1", Type: SpO2}
	b := Measurement{PatientID: "p-1", Type: SpO2}
	c := Measurement{PatientID: "p-1", Type: Temperature}

	if a.Key() != b.Key() {
		t.Fatal("identical streams should share a key")
	}
	if a.Key() == c.Key() {
		t.Fatal("different measurement types must not collide")
	}
}
