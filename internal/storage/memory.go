package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"vital-signs-monitor/internal/vitals"
)

// DefaultMemoryCapacity bounds the in-memory history per record kind.
const DefaultMemoryCapacity = 10000

// MemoryStore keeps history in memory for deployments without a database,
// the usual mode on small edge gateways. It implements the same interfaces
// as the SQL store with a bounded buffer: once full, the oldest rows are
// dropped.
type MemoryStore struct {
	mu           sync.Mutex
	capacity     int
	nextID       int64
	measurements []MeasurementRecord
	alerts       []AlertRecord
}

// NewMemoryStore builds an in-memory store holding at most capacity rows
// per record kind.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// InsertMeasurement appends a measurement row, evicting the oldest beyond
// capacity.
func (s *MemoryStore) InsertMeasurement(_ context.Context, rec MeasurementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.measurements = append(s.measurements, rec)
	if len(s.measurements) > s.capacity {
		s.measurements = s.measurements[len(s.measurements)-s.capacity:]
	}
	return nil
}

// ListRecentMeasurements lists the most recent measurements, newest first.
func (s *MemoryStore) ListRecentMeasurements(_ context.Context, limit int) ([]MeasurementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MeasurementRecord, len(s.measurements))
	copy(out, s.measurements)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	return truncateMeasurements(out, limit), nil
}

// ListPatientMeasurements lists one patient stream, newest first.
func (s *MemoryStore) ListPatientMeasurements(_ context.Context, patientID string, t vitals.MeasurementType, limit int) ([]MeasurementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MeasurementRecord, 0)
	for _, rec := range s.measurements {
		if rec.PatientID == patientID && rec.Type == t {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	return truncateMeasurements(out, limit), nil
}

// ListPatientMeasurementsBetween lists one patient stream within [from, to),
// oldest first.
func (s *MemoryStore) ListPatientMeasurementsBetween(_ context.Context, patientID string, t vitals.MeasurementType, from, to time.Time) ([]MeasurementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MeasurementRecord, 0)
	for _, rec := range s.measurements {
		if rec.PatientID != patientID || rec.Type != t {
			continue
		}
		if rec.RecordedAt.Before(from) || !rec.RecordedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out, nil
}

// CountMeasurements counts stored measurements.
func (s *MemoryStore) CountMeasurements(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.measurements)), nil
}

// DeleteMeasurementsBefore prunes measurements older than the retention
// boundary.
func (s *MemoryStore) DeleteMeasurementsBefore(_ context.Context, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.measurements[:0]
	for _, rec := range s.measurements {
		if !rec.RecordedAt.Before(olderThan) {
			kept = append(kept, rec)
		}
	}
	s.measurements = kept
	return nil
}

// InsertAlert appends an alert row, evicting the oldest beyond capacity.
func (s *MemoryStore) InsertAlert(_ context.Context, rec AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.alerts = append(s.alerts, rec)
	if len(s.alerts) > s.capacity {
		s.alerts = s.alerts[len(s.alerts)-s.capacity:]
	}
	return nil
}

// ListRecentAlerts lists the most recent alerts, newest first.
func (s *MemoryStore) ListRecentAlerts(_ context.Context, limit int) ([]AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AlertRecord, len(s.alerts))
	copy(out, s.alerts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RaisedAt.After(out[j].RaisedAt)
	})
	return truncateAlerts(out, limit), nil
}

// ListPatientAlerts lists one patient's alerts, newest first.
func (s *MemoryStore) ListPatientAlerts(_ context.Context, patientID string, limit int) ([]AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AlertRecord, 0)
	for _, rec := range s.alerts {
		if rec.PatientID == patientID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RaisedAt.After(out[j].RaisedAt)
	})
	return truncateAlerts(out, limit), nil
}

// DeleteAlertsBefore prunes alerts older than the retention boundary.
func (s *MemoryStore) DeleteAlertsBefore(_ context.Context, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.alerts[:0]
	for _, rec := range s.alerts {
		if !rec.RaisedAt.Before(olderThan) {
			kept = append(kept, rec)
		}
	}
	s.alerts = kept
	return nil
}

func truncateMeasurements(records []MeasurementRecord, limit int) []MeasurementRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

func truncateAlerts(records []AlertRecord, limit int) []AlertRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

var (
	_ MeasurementHistory = (*MemoryStore)(nil)
	_ AlertHistory       = (*MemoryStore)(nil)
)
