package alerting

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vital-signs-monitor/internal/anomaly"
	"vital-signs-monitor/internal/vitals"
)

func testFinding(t vitals.MeasurementType, kind anomaly.Kind) anomaly.Finding {
	return anomaly.Finding{
		Kind:       kind,
		Type:       t,
		Observed:   140,
		DetectedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Message:    "test finding",
	}
}

func managerAt(start time.Time, debounce time.Duration) (*Manager, *time.Time) {
	clock := start
	m := NewManager(map[vitals.MeasurementType]Severity{
		vitals.SpO2: SeverityHigh,
	}, debounce, zerolog.Nop())
	m.now = func() time.Time { return clock }
	return m, &clock
}

func TestClassifySeverityPolicyTable(t *testing.T) {
	m, _ := managerAt(time.Now(), time.Minute)

	if s := m.ClassifySeverity(testFinding(vitals.SpO2, anomaly.ThresholdLow)); s != SeverityHigh {
		t.Fatalf("SPO2 should classify HIGH, got %s", s)
	}
	if s := m.ClassifySeverity(testFinding(vitals.HeartRate, anomaly.ThresholdHigh)); s != SeverityMedium {
		t.Fatalf("unlisted type should default MEDIUM, got %s", s)
	}
}

func TestAllowDebounceWindow(t *testing.T) {
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	m, clock := managerAt(start, time.Minute)
	f := testFinding(vitals.HeartRate, anomaly.ThresholdHigh)

	if !m.Allow("p-1", f) {
		t.Fatal("first alert for a key should be allowed")
	}

	*clock = start.Add(30 * time.Second)
	if m.Allow("p-1", f) {
		t.Fatal("repeat within the window should be suppressed")
	}

	// Suppression must not extend the window: exactly one minute after the
	// first emission the key is free again.
	*clock = start.Add(time.Minute)
	if !m.Allow("p-1", f) {
		t.Fatal("alert should be allowed once the window has elapsed")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	m, _ := managerAt(start, time.Minute)

	if !m.Allow("p-1", testFinding(vitals.HeartRate, anomaly.ThresholdHigh)) {
		t.Fatal("first key should be allowed")
	}
	if !m.Allow("p-2", testFinding(vitals.HeartRate, anomaly.ThresholdHigh)) {
		t.Fatal("different patient is a different key")
	}
	if !m.Allow("p-1", testFinding(vitals.SpO2, anomaly.ThresholdLow)) {
		t.Fatal("different measurement type is a different key")
	}
	if !m.Allow("p-1", testFinding(vitals.HeartRate, anomaly.Trend)) {
		t.Fatal("different anomaly kind is a different key")
	}
}

func TestCreateAlert(t *testing.T) {
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	m, _ := managerAt(start, time.Minute)
	f := testFinding(vitals.SpO2, anomaly.ThresholdLow)

	meta := map[string]any{"connectivity": "offline"}
	event := m.CreateAlert("p-1", f, meta)

	if event.ID == "" {
		t.Fatal("alert id must be assigned")
	}
	if event.PatientID != "p-1" || event.Kind != anomaly.ThresholdLow {
		t.Fatalf("alert should mirror the finding, got %+v", event)
	}
	if event.Severity != SeverityHigh {
		t.Fatalf("severity should come from the policy, got %s", event.Severity)
	}
	if !event.Timestamp.Equal(start) {
		t.Fatalf("timestamp should be the manager clock, got %s", event.Timestamp)
	}
	if event.Metadata["connectivity"] != "offline" {
		t.Fatalf("metadata should pass through, got %+v", event.Metadata)
	}

	second := m.CreateAlert("p-1", f, nil)
	if second.ID == event.ID {
		t.Fatal("alert ids must be unique")
	}
}
