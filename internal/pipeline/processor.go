// Package pipeline composes validation, windowing, anomaly detection,
// alerting and the offline cache into the edge measurement pipeline.
package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"vital-signs-monitor/internal/alerting"
	"vital-signs-monitor/internal/anomaly"
	"vital-signs-monitor/internal/offline"
	"vital-signs-monitor/internal/signal"
	"vital-signs-monitor/internal/vitals"
)

// Terminal statuses of an ingested measurement.
const (
	StatusDiscarded = "discarded"
	StatusOK        = "ok"
	StatusAlert     = "alert"
)

// Statuses of a flush call.
const (
	FlushOffline = "offline"
	FlushFlushed = "flushed"
)

// NoteDebounced annotates results whose anomaly was suppressed by the
// debounce gate.
const NoteDebounced = "debounced"

// Result is the terminal outcome of one ingested measurement.
type Result struct {
	Status      string              `json:"status"`
	Reason      string              `json:"reason,omitempty"`
	Note        string              `json:"note,omitempty"`
	Measurement *vitals.Measurement `json:"measurement,omitempty"`
	Alert       *alerting.Event     `json:"alert,omitempty"`
	Finding     *anomaly.Finding    `json:"anomaly,omitempty"`
}

// FlushResult reports a flush. While offline both lists are nil; once
// flushed they are non-nil even when empty, so callers can tell "nothing
// buffered" apart from "still disconnected".
type FlushResult struct {
	Status       string               `json:"status"`
	Measurements []vitals.Measurement `json:"measurements"`
	Alerts       []alerting.Event     `json:"alerts"`
}

// Stats is a point-in-time snapshot of pipeline activity.
type Stats struct {
	Online    bool  `json:"online"`
	Processed int64 `json:"processed"`
	Discarded int64 `json:"discarded"`
	Debounced int64 `json:"debounced"`
	Alerts    int64 `json:"alerts"`
	Cached    int   `json:"cached"`
	Streams   int   `json:"streams"`
}

// Validator gates raw measurements before they enter the windows.
type Validator interface {
	Validate(m vitals.Measurement) signal.Result
}

// WindowStore keeps the per-stream sliding windows and their smoothed view.
type WindowStore interface {
	Append(m vitals.Measurement) []vitals.Measurement
	Smoothed(patientID string, t vitals.MeasurementType) []vitals.Measurement
	Count() int
}

// Detector evaluates a window for threshold and trend anomalies.
type Detector interface {
	Evaluate(window []vitals.Measurement, t vitals.MeasurementType) *anomaly.Finding
}

// AlertPolicy debounces findings and builds alert events.
type AlertPolicy interface {
	Allow(patientID string, f anomaly.Finding) bool
	CreateAlert(patientID string, f anomaly.Finding, meta map[string]any) alerting.Event
}

// Cache is the connectivity-aware store-and-forward buffer.
type Cache interface {
	Online() bool
	SetOnline(online bool)
	StoreMeasurement(m vitals.Measurement)
	StoreAlert(a alerting.Event)
	Flush() []offline.CachedEvent
	Len() int
}

// History is the append-only persistence collaborator. Failures are logged
// and never fail the pipeline.
type History interface {
	SaveMeasurement(ctx context.Context, m vitals.Measurement) error
	SaveAlert(ctx context.Context, a alerting.Event) error
}

// Delivery sends accepted measurements and alerts to the backend while
// online. Failures are logged and never fail the pipeline.
type Delivery interface {
	PublishMeasurement(ctx context.Context, m vitals.Measurement) error
	PublishAlert(ctx context.Context, a alerting.Event) error
}

// EdgeProcessor orchestrates the measurement pipeline and the connectivity
// state transitions. All owned state (windows, debounce map, cache queue,
// validator high-water marks) sits behind a single mutex, so concurrent
// front ends can call it directly.
type EdgeProcessor struct {
	mu        sync.Mutex
	validator Validator
	windows   WindowStore
	detector  Detector
	policy    AlertPolicy
	cache     Cache

	history  History
	delivery Delivery
	notifier alerting.Notifier
	logger   zerolog.Logger

	processed int64
	discarded int64
	debounced int64
	alerts    int64
}

// New constructs the edge processor. History, delivery and notifier are
// optional collaborators and may be nil.
func New(validator Validator, windows WindowStore, detector Detector, policy AlertPolicy, cache Cache, history History, delivery Delivery, notifier alerting.Notifier, logger zerolog.Logger) *EdgeProcessor {
	return &EdgeProcessor{
		validator: validator,
		windows:   windows,
		detector:  detector,
		policy:    policy,
		cache:     cache,
		history:   history,
		delivery:  delivery,
		notifier:  notifier,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// IngestMeasurement runs one measurement through the full pipeline:
// validate, deliver-or-cache the raw sample, window it, detect anomalies on
// the smoothed view, and emit a debounced alert when one is found.
func (p *EdgeProcessor) IngestMeasurement(ctx context.Context, m vitals.Measurement) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res := p.validator.Validate(m); !res.OK {
		p.discarded++
		p.logger.Warn().
			Str("patient_id", m.PatientID).
			Str("type", string(m.Type)).
			Str("reason", res.Reason).
			Msg("measurement discarded")
		return Result{Status: StatusDiscarded, Reason: res.Reason}
	}
	p.processed++

	if p.cache.Online() {
		p.deliverMeasurement(ctx, m)
	} else {
		p.cache.StoreMeasurement(m)
	}

	p.windows.Append(m)
	p.saveMeasurement(ctx, m)

	smoothed := p.windows.Smoothed(m.PatientID, m.Type)
	finding := p.detector.Evaluate(smoothed, m.Type)
	if finding == nil {
		return Result{Status: StatusOK, Measurement: &m}
	}

	if !p.policy.Allow(m.PatientID, *finding) {
		p.debounced++
		return Result{Status: StatusOK, Measurement: &m, Note: NoteDebounced}
	}

	alert := p.policy.CreateAlert(m.PatientID, *finding, map[string]any{
		"connectivity": connectivityLabel(p.cache.Online()),
	})
	p.alerts++

	if p.cache.Online() {
		p.deliverAlert(ctx, alert)
	} else {
		p.cache.StoreAlert(alert)
	}
	p.saveAlert(ctx, alert)

	p.logger.Info().
		Str("alert_id", alert.ID).
		Str("patient_id", alert.PatientID).
		Str("alert_type", string(alert.Kind)).
		Str("severity", string(alert.Severity)).
		Msg("alert emitted")
	return Result{Status: StatusAlert, Alert: &alert, Finding: finding}
}

// FlushCachedData drains the offline cache in event-time order and
// partitions the drained events back into measurements and alerts. While
// offline it is a no-op reporting FlushOffline.
func (p *EdgeProcessor) FlushCachedData() FlushResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cache.Online() {
		return FlushResult{Status: FlushOffline}
	}

	drained := p.cache.Flush()
	measurements := make([]vitals.Measurement, 0, len(drained))
	alerts := make([]alerting.Event, 0, len(drained))
	for _, ev := range drained {
		switch ev.Kind {
		case offline.EventMeasurement:
			if ev.Measurement != nil {
				measurements = append(measurements, *ev.Measurement)
			}
		case offline.EventAlert:
			if ev.Alert != nil {
				alerts = append(alerts, *ev.Alert)
			}
		}
	}

	p.logger.Info().
		Int("measurements", len(measurements)).
		Int("alerts", len(alerts)).
		Msg("offline cache flushed")
	return FlushResult{Status: FlushFlushed, Measurements: measurements, Alerts: alerts}
}

// SetOnline toggles the connectivity flag. Buffered data is untouched until
// an explicit flush.
func (p *EdgeProcessor) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := p.cache.Online() != online
	p.cache.SetOnline(online)
	if changed {
		p.logger.Info().Bool("online", online).Msg("connectivity changed")
	}
}

// Online reports the current connectivity flag.
func (p *EdgeProcessor) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Online()
}

// Stats snapshots pipeline counters for status reporting.
func (p *EdgeProcessor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Online:    p.cache.Online(),
		Processed: p.processed,
		Discarded: p.discarded,
		Debounced: p.debounced,
		Alerts:    p.alerts,
		Cached:    p.cache.Len(),
		Streams:   p.windows.Count(),
	}
}

func (p *EdgeProcessor) deliverMeasurement(ctx context.Context, m vitals.Measurement) {
	if p.delivery == nil {
		return
	}
	if err := p.delivery.PublishMeasurement(ctx, m); err != nil {
		p.logger.Error().Err(err).Str("measurement_id", m.ID).Msg("failed to publish measurement")
	}
}

func (p *EdgeProcessor) deliverAlert(ctx context.Context, a alerting.Event) {
	if p.delivery != nil {
		if err := p.delivery.PublishAlert(ctx, a); err != nil {
			p.logger.Error().Err(err).Str("alert_id", a.ID).Msg("failed to publish alert")
		}
	}
	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, a); err != nil {
			p.logger.Error().Err(err).Str("alert_id", a.ID).Msg("failed to dispatch alert")
		}
	}
}

func (p *EdgeProcessor) saveMeasurement(ctx context.Context, m vitals.Measurement) {
	if p.history == nil {
		return
	}
	if err := p.history.SaveMeasurement(ctx, m); err != nil {
		p.logger.Error().Err(err).Str("measurement_id", m.ID).Msg("failed to persist measurement")
	}
}

func (p *EdgeProcessor) saveAlert(ctx context.Context, a alerting.Event) {
	if p.history == nil {
		return
	}
	if err := p.history.SaveAlert(ctx, a); err != nil {
		p.logger.Error().Err(err).Str("alert_id", a.ID).Msg("failed to persist alert")
	}
}

func connectivityLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

var (
	_ Validator   = (*signal.Validator)(nil)
	_ WindowStore = (*signal.Windows)(nil)
	_ Detector    = (*anomaly.Detector)(nil)
	_ AlertPolicy = (*alerting.Manager)(nil)
	_ Cache       = (*offline.Cache)(nil)
)
