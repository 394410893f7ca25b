package uplink

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vital-signs-monitor/internal/alerting"
	"vital-signs-monitor/internal/pipeline"
	"vital-signs-monitor/internal/vitals"
)

// Prober checks backend reachability.
type Prober interface {
	Probe(ctx context.Context) error
}

// Publisher re-delivers flushed events after a reconnect.
type Publisher interface {
	PublishMeasurement(ctx context.Context, m vitals.Measurement) error
	PublishAlert(ctx context.Context, a alerting.Event) error
}

// Controller is the pipeline surface the monitor drives.
type Controller interface {
	Online() bool
	SetOnline(online bool)
	FlushCachedData() pipeline.FlushResult
}

// Monitor reconciles the pipeline's connectivity flag with actual backend
// reachability. On an offline-to-online transition it flushes the cache and
// replays the buffered events to the backend.
type Monitor struct {
	prober    Prober
	publisher Publisher
	control   Controller
	autoFlush bool
	logger    zerolog.Logger
}

// NewMonitor constructs the connectivity monitor. With autoFlush disabled
// the cache is only drained by an explicit flush call.
func NewMonitor(prober Prober, publisher Publisher, control Controller, autoFlush bool, logger zerolog.Logger) *Monitor {
	return &Monitor{
		prober:    prober,
		publisher: publisher,
		control:   control,
		autoFlush: autoFlush,
		logger:    logger.With().Str("component", "connectivity_monitor").Logger(),
	}
}

// Check probes the backend once and applies any connectivity transition.
// It matches scheduler.TickFunc and never returns an error: probe failures
// are a state, not a fault.
func (m *Monitor) Check(ctx context.Context, at time.Time) error {
	err := m.prober.Probe(ctx)
	online := err == nil

	if online == m.control.Online() {
		return nil
	}

	m.control.SetOnline(online)
	if !online {
		m.logger.Warn().Err(err).Time("probed_at", at).Msg("backend unreachable, entering offline mode")
		return nil
	}

	m.logger.Info().Time("probed_at", at).Msg("backend reachable again")
	if m.autoFlush {
		m.replay(ctx)
	}
	return nil
}

// replay drains the offline cache and pushes every buffered event to the
// backend in the order the flush returns them.
// TODO: re-queue events whose republish fails instead of only logging.
func (m *Monitor) replay(ctx context.Context) {
	res := m.control.FlushCachedData()
	if res.Status != pipeline.FlushFlushed {
		return
	}

	failed := 0
	for _, measurement := range res.Measurements {
		if err := m.publisher.PublishMeasurement(ctx, measurement); err != nil {
			failed++
			m.logger.Error().Err(err).Str("measurement_id", measurement.ID).Msg("failed to republish measurement")
		}
	}
	for _, alert := range res.Alerts {
		if err := m.publisher.PublishAlert(ctx, alert); err != nil {
			failed++
			m.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to republish alert")
		}
	}

	m.logger.Info().
		Int("measurements", len(res.Measurements)).
		Int("alerts", len(res.Alerts)).
		Int("failed", failed).
		Msg("offline cache replayed")
}

var _ Prober = (*Client)(nil)
var _ Publisher = (*Client)(nil)
