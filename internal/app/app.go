package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"vital-signs-monitor/internal/alerting"
	"vital-signs-monitor/internal/anomaly"
	"vital-signs-monitor/internal/config"
	"vital-signs-monitor/internal/offline"
	"vital-signs-monitor/internal/pipeline"
	"vital-signs-monitor/internal/scheduler"
	"vital-signs-monitor/internal/server"
	vsignal "vital-signs-monitor/internal/signal"
	"vital-signs-monitor/internal/storage"
	"vital-signs-monitor/internal/uplink"
)

// retentionSweepInterval is how often expired history rows are purged when a
// retention window is configured.
const retentionSweepInterval = time.Hour

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newProcessor assembles the measurement pipeline from configuration. History
// and delivery are optional and may be nil.
func (a *App) newProcessor(history pipeline.History, delivery pipeline.Delivery) *pipeline.EdgeProcessor {
	p := a.Config.Pipeline

	validator := vsignal.NewValidator(p.MinSignalQuality, p.RangeTable())
	windows := vsignal.NewWindows(p.WindowSize)
	detector := anomaly.NewDetector(p.ThresholdTable(), p.TrendRules())
	policy := alerting.NewManager(p.SeverityTable(), p.Debounce, a.Logger)
	cache := offline.NewCache()

	return pipeline.New(validator, windows, detector, policy, cache, history, delivery, a.newNotifier(), a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Webhook.Enabled {
		cfg := a.Config.Alerting.Webhook
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return alerting.NewWebhookNotifier(cfg.URL, timeout, a.Logger)
	}
	return nil
}

func (a *App) newUplink() *uplink.Client {
	if a.Config.Backend.BaseURL == "" {
		return nil
	}
	return uplink.NewClient(uplink.Options{
		BaseURL:   a.Config.Backend.BaseURL,
		Timeout:   a.Config.Backend.RequestTimeout,
		UserAgent: a.Config.Backend.UserAgent,
	}, a.Logger)
}

// openHistory returns the measurement and alert history backends. Postgres
// when database.dsn is configured, otherwise a bounded in-memory store so the
// gateway still keeps recent context for the API.
func (a *App) openHistory(ctx context.Context) (storage.MeasurementHistory, storage.AlertHistory, func(), error) {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory history")
		mem := storage.NewMemoryStore(a.Config.Database.MemoryCapacity)
		return mem, mem, func() {}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, nil, err
	}

	store := storage.NewStore(pool)
	return store, store, func() { store.Close() }, nil
}

// openStore returns the Postgres store for commands that read history.
// Returns a nil store when the database is not configured.
func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running edge gateway.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	measurements, alerts, closeHistory, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	defer closeHistory()

	history := storage.History{Measurements: measurements, Alerts: alerts}

	uplinkClient := a.newUplink()
	var delivery pipeline.Delivery
	if uplinkClient != nil {
		delivery = uplinkClient
	}

	processor := a.newProcessor(history, delivery)

	hub := server.NewHub(a.Logger)
	go hub.Run(ctx)

	if uplinkClient != nil {
		monitor := uplink.NewMonitor(uplinkClient, uplinkClient, processor, a.Config.Backend.AutoFlush, a.Logger)
		probe := scheduler.New(scheduler.Options{
			Interval:     a.Config.Backend.ProbeInterval,
			StartupDelay: a.Config.Backend.ProbeStartupDelay,
		}, a.Logger)
		go func() {
			if err := probe.Run(ctx, monitor.Check); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("connectivity monitor stopped")
			}
		}()
	} else {
		a.Logger.Warn().Msg("backend.base_url not configured; connectivity probing disabled")
	}

	if a.Config.Database.Retention > 0 {
		prune := scheduler.New(scheduler.Options{Interval: retentionSweepInterval}, a.Logger)
		go func() {
			if err := prune.Run(ctx, a.pruneHistory(measurements, alerts)); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("retention sweep stopped")
			}
		}()
	}

	srv := server.New(server.Options{
		Listen:          a.Config.Server.Listen,
		ReadTimeout:     a.Config.Server.ReadTimeout,
		WriteTimeout:    a.Config.Server.WriteTimeout,
		ShutdownTimeout: a.Config.Server.ShutdownTimeout,
	}, processor, measurements, alerts, hub, a.Logger)

	a.Logger.Info().Msg("starting vitals gateway")
	err = srv.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("gateway terminated with error")
		return err
	}

	a.Logger.Info().Msg("vitals gateway stopped")
	return nil
}

func (a *App) pruneHistory(measurements storage.MeasurementHistory, alerts storage.AlertHistory) scheduler.TickFunc {
	return func(ctx context.Context, at time.Time) error {
		cutoff := at.Add(-a.Config.Database.Retention)
		if err := measurements.DeleteMeasurementsBefore(ctx, cutoff); err != nil {
			return fmt.Errorf("prune measurements: %w", err)
		}
		if err := alerts.DeleteAlertsBefore(ctx, cutoff); err != nil {
			return fmt.Errorf("prune alerts: %w", err)
		}
		a.Logger.Debug().Time("cutoff", cutoff).Msg("history pruned")
		return nil
	}
}

// ExportOptions hold parameters for exporting historical measurements.
type ExportOptions struct {
	PatientID string
	Type      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ReplayOptions configure the replay job.
type ReplayOptions struct {
	Path    string
	Offline bool
	DryRun  bool
}
