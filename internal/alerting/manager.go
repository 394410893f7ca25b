// Package alerting turns anomaly findings into deliverable alert events:
// severity classification, per-stream debounce, and outbound notification.
package alerting

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vital-signs-monitor/internal/anomaly"
	"vital-signs-monitor/internal/vitals"
)

// Severity grades an alert. The policy table may define further levels.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// DefaultSeverity applies to measurement types missing from the policy table.
const DefaultSeverity = SeverityMedium

// Event is one emitted alert. It is delivered exactly once, either
// published or cached, and never mutated after creation.
type Event struct {
	ID        string          `json:"alertId"`
	PatientID string          `json:"patientId"`
	Kind      anomaly.Kind    `json:"alertType"`
	Severity  Severity        `json:"severityLevel"`
	Timestamp time.Time       `json:"timestamp"`
	Finding   anomaly.Finding `json:"associatedAnomaly"`
	Metadata  map[string]any  `json:"contextualMetadata,omitempty"`
}

type debounceKey struct {
	patientID string
	typ       vitals.MeasurementType
	kind      anomaly.Kind
}

// Manager classifies severities and suppresses repeated alerts for the same
// (patient, measurement type, anomaly kind) within the debounce window.
//
// Allow reserves the debounce window at decision time: the emission instant
// is recorded before the caller builds or delivers the alert, so a failure
// downstream still consumes the window. Entries are never evicted; the map
// grows with the set of distinct keys seen.
type Manager struct {
	policy   map[vitals.MeasurementType]Severity
	debounce time.Duration
	last     map[debounceKey]time.Time
	logger   zerolog.Logger
	now      func() time.Time
}

// NewManager builds a Manager from the severity policy table and debounce
// interval.
func NewManager(policy map[vitals.MeasurementType]Severity, debounce time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		policy:   policy,
		debounce: debounce,
		last:     make(map[debounceKey]time.Time),
		logger:   logger.With().Str("component", "alert_manager").Logger(),
		now:      time.Now,
	}
}

// ClassifySeverity resolves the severity for a finding from the policy
// table, defaulting to MEDIUM for unlisted measurement types.
func (m *Manager) ClassifySeverity(f anomaly.Finding) Severity {
	if s, ok := m.policy[f.Type]; ok {
		return s
	}
	return DefaultSeverity
}

// Allow reports whether an alert for this finding may be emitted now. A
// denial leaves the debounce state untouched; an approval records the
// current instant as the key's last emission.
func (m *Manager) Allow(patientID string, f anomaly.Finding) bool {
	key := debounceKey{patientID: patientID, typ: f.Type, kind: f.Kind}
	now := m.now()

	if last, ok := m.last[key]; ok && now.Sub(last) < m.debounce {
		m.logger.Debug().
			Str("patient_id", patientID).
			Str("measurement_type", string(f.Type)).
			Str("anomaly_type", string(f.Kind)).
			Msg("alert suppressed by debounce")
		return false
	}

	m.last[key] = now
	return true
}

// CreateAlert builds the alert event for a finding, assigning a fresh id,
// the classified severity, and the current timestamp.
func (m *Manager) CreateAlert(patientID string, f anomaly.Finding, meta map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		PatientID: patientID,
		Kind:      f.Kind,
		Severity:  m.ClassifySeverity(f),
		Timestamp: m.now().UTC(),
		Finding:   f,
		Metadata:  meta,
	}
}
