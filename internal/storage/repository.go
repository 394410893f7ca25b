package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vital-signs-monitor/internal/alerting"
	"vital-signs-monitor/internal/anomaly"
	"vital-signs-monitor/internal/vitals"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertMeasurementSQL = `INSERT INTO measurements (
        measurement_id,
        patient_id,
        measurement_type,
        value,
        recorded_at,
        signal_quality
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (measurement_id) DO NOTHING;`

	listRecentMeasurementsSQL = `SELECT
        id,
        measurement_id,
        patient_id,
        measurement_type,
        value,
        recorded_at,
        signal_quality,
        created_at
    FROM measurements
    ORDER BY recorded_at DESC
    LIMIT $1;`

	listPatientMeasurementsSQL = `SELECT
        id,
        measurement_id,
        patient_id,
        measurement_type,
        value,
        recorded_at,
        signal_quality,
        created_at
    FROM measurements
    WHERE patient_id = $1
      AND measurement_type = $2
    ORDER BY recorded_at DESC
    LIMIT $3;`

	listPatientMeasurementsBetweenSQL = `SELECT
        id,
        measurement_id,
        patient_id,
        measurement_type,
        value,
        recorded_at,
        signal_quality,
        created_at
    FROM measurements
    WHERE patient_id = $1
      AND measurement_type = $2
      AND recorded_at >= $3
      AND recorded_at < $4
    ORDER BY recorded_at;`

	countMeasurementsSQL = `SELECT COUNT(*) FROM measurements;`

	deleteMeasurementsBeforeSQL = `DELETE FROM measurements WHERE recorded_at < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        alert_id,
        patient_id,
        alert_type,
        severity,
        raised_at,
        finding,
        metadata
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (alert_id) DO NOTHING;`

	listRecentAlertsSQL = `SELECT
        id,
        alert_id,
        patient_id,
        alert_type,
        severity,
        raised_at,
        finding,
        metadata,
        created_at
    FROM alerts
    ORDER BY raised_at DESC
    LIMIT $1;`

	listPatientAlertsSQL = `SELECT
        id,
        alert_id,
        patient_id,
        alert_type,
        severity,
        raised_at,
        finding,
        metadata,
        created_at
    FROM alerts
    WHERE patient_id = $1
    ORDER BY raised_at DESC
    LIMIT $2;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE raised_at < $1;`
)

// MeasurementHistory defines operations for measurement persistence.
type MeasurementHistory interface {
	InsertMeasurement(ctx context.Context, rec MeasurementRecord) error
	ListRecentMeasurements(ctx context.Context, limit int) ([]MeasurementRecord, error)
	ListPatientMeasurements(ctx context.Context, patientID string, t vitals.MeasurementType, limit int) ([]MeasurementRecord, error)
	ListPatientMeasurementsBetween(ctx context.Context, patientID string, t vitals.MeasurementType, from, to time.Time) ([]MeasurementRecord, error)
	CountMeasurements(ctx context.Context) (int64, error)
	DeleteMeasurementsBefore(ctx context.Context, olderThan time.Time) error
}

// AlertHistory defines operations for alert auditing.
type AlertHistory interface {
	InsertAlert(ctx context.Context, rec AlertRecord) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListPatientAlerts(ctx context.Context, patientID string, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates access to measurements and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertMeasurement persists a measurement. Re-inserting the same
// measurement id is a no-op so cached data can be replayed safely.
func (s *Store) InsertMeasurement(ctx context.Context, rec MeasurementRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, execErr := pool.Exec(ctx, insertMeasurementSQL,
		rec.MeasurementID,
		rec.PatientID,
		string(rec.Type),
		rec.Value,
		rec.RecordedAt,
		rec.SignalQuality,
	); execErr != nil {
		return fmt.Errorf("insert measurement: %w", execErr)
	}
	return nil
}

// ListRecentMeasurements lists the most recent measurements, newest first.
func (s *Store) ListRecentMeasurements(ctx context.Context, limit int) ([]MeasurementRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentMeasurementsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent measurements: %w", queryErr)
	}
	defer rows.Close()

	return collectMeasurements(rows, limit)
}

// ListPatientMeasurements lists one patient stream, newest first.
func (s *Store) ListPatientMeasurements(ctx context.Context, patientID string, t vitals.MeasurementType, limit int) ([]MeasurementRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPatientMeasurementsSQL, patientID, string(t), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list patient measurements: %w", queryErr)
	}
	defer rows.Close()

	return collectMeasurements(rows, limit)
}

// ListPatientMeasurementsBetween lists one patient stream within a time
// window, oldest first, for charting.
func (s *Store) ListPatientMeasurementsBetween(ctx context.Context, patientID string, t vitals.MeasurementType, from, to time.Time) ([]MeasurementRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPatientMeasurementsBetweenSQL, patientID, string(t), from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list patient measurements between: %w", queryErr)
	}
	defer rows.Close()

	return collectMeasurements(rows, 0)
}

// CountMeasurements counts stored measurements.
func (s *Store) CountMeasurements(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countMeasurementsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count measurements: %w", scanErr)
	}
	return count, nil
}

// DeleteMeasurementsBefore prunes measurements older than the retention
// boundary.
func (s *Store) DeleteMeasurementsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteMeasurementsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete measurements before: %w", execErr)
	}
	return nil
}

// InsertAlert persists an alert emission. Duplicate alert ids are ignored.
func (s *Store) InsertAlert(ctx context.Context, rec AlertRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	metadata := rec.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	if _, execErr := pool.Exec(ctx, insertAlertSQL,
		rec.AlertID,
		rec.PatientID,
		string(rec.Kind),
		string(rec.Severity),
		rec.RaisedAt,
		[]byte(rec.Finding),
		[]byte(metadata),
	); execErr != nil {
		return fmt.Errorf("insert alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists the most recent alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, limit)
}

// ListPatientAlerts lists one patient's alerts, newest first.
func (s *Store) ListPatientAlerts(ctx context.Context, patientID string, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPatientAlertsSQL, patientID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list patient alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, limit)
}

// DeleteAlertsBefore prunes alerts older than the retention boundary.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectMeasurements(rows pgx.Rows, capacity int) ([]MeasurementRecord, error) {
	records := make([]MeasurementRecord, 0, capacity)
	for rows.Next() {
		rec, scanErr := scanMeasurement(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func collectAlerts(rows pgx.Rows, capacity int) ([]AlertRecord, error) {
	records := make([]AlertRecord, 0, capacity)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanMeasurement(rows pgx.Rows) (MeasurementRecord, error) {
	var (
		rec             MeasurementRecord
		measurementType string
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.MeasurementID,
		&rec.PatientID,
		&measurementType,
		&rec.Value,
		&rec.RecordedAt,
		&rec.SignalQuality,
		&rec.CreatedAt,
	); err != nil {
		return MeasurementRecord{}, err
	}

	rec.Type = vitals.MeasurementType(measurementType)
	return rec, nil
}

func scanAlert(rows pgx.Rows) (AlertRecord, error) {
	var (
		rec      AlertRecord
		kind     string
		severity string
		finding  json.RawMessage
		metadata json.RawMessage
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.AlertID,
		&rec.PatientID,
		&kind,
		&severity,
		&rec.RaisedAt,
		&finding,
		&metadata,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	rec.Kind = anomaly.Kind(kind)
	rec.Severity = alerting.Severity(severity)
	rec.Finding = finding
	rec.Metadata = metadata
	return rec, nil
}

var (
	_ MeasurementHistory = (*Store)(nil)
	_ AlertHistory       = (*Store)(nil)
)
