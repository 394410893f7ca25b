package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"vital-signs-monitor/internal/alerting"
	"vital-signs-monitor/internal/anomaly"
	"vital-signs-monitor/internal/logging"
	"vital-signs-monitor/internal/vitals"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN keeps
// history in memory, the usual mode on small gateways.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	Retention       time.Duration `mapstructure:"retention"`
	MemoryCapacity  int           `mapstructure:"memory_capacity"`
}

// ServerConfig governs the local HTTP API.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PipelineConfig parameterises the measurement pipeline. Map keys are
// measurement type names; viper lowercases them on the way in, so consumers
// go through the typed accessors which normalise them back.
type PipelineConfig struct {
	WindowSize       int                          `mapstructure:"window_size"`
	MinSignalQuality float64                      `mapstructure:"min_signal_quality"`
	Debounce         time.Duration                `mapstructure:"debounce"`
	PlausibleRanges  map[string]vitals.Range      `mapstructure:"plausible_ranges"`
	Thresholds       map[string]anomaly.Threshold `mapstructure:"thresholds"`
	Trend            TrendConfig                  `mapstructure:"trend"`
	SeverityPolicy   map[string]string            `mapstructure:"severity_policy"`
}

// TrendConfig parameterises the trend rule.
type TrendConfig struct {
	MinPoints       int                `mapstructure:"min_points"`
	SlopeThresholds map[string]float64 `mapstructure:"slope_thresholds"`
}

// BackendConfig captures the central backend uplink. An empty base URL
// disables the uplink entirely: the device runs standalone.
type BackendConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	ProbeInterval     time.Duration `mapstructure:"probe_interval"`
	ProbeStartupDelay time.Duration `mapstructure:"probe_startup_delay"`
	AutoFlush         bool          `mapstructure:"auto_flush"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig 描述 Webhook 告警参数。
type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VITALSWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vitalswatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("pipeline.window_size", 5)
	v.SetDefault("pipeline.min_signal_quality", 0.3)
	v.SetDefault("pipeline.debounce", "1m")
	v.SetDefault("pipeline.plausible_ranges", map[string]any{
		"heart_rate":  map[string]any{"min": 30.0, "max": 250.0},
		"spo2":        map[string]any{"min": 50.0, "max": 100.0},
		"temperature": map[string]any{"min": 30.0, "max": 45.0},
	})
	v.SetDefault("pipeline.thresholds", map[string]any{
		"heart_rate":  map[string]any{"max": 120.0},
		"spo2":        map[string]any{"min": 90.0},
		"temperature": map[string]any{"max": 39.0},
	})
	v.SetDefault("pipeline.trend.min_points", 4)
	v.SetDefault("pipeline.trend.slope_thresholds", map[string]any{
		"spo2":       -0.5,
		"heart_rate": 2.0,
	})
	v.SetDefault("pipeline.severity_policy", map[string]any{
		"heart_rate":  "HIGH",
		"spo2":        "HIGH",
		"temperature": "MEDIUM",
	})

	v.SetDefault("backend.request_timeout", "10s")
	v.SetDefault("backend.user_agent", "vitalswatcher/1.0")
	v.SetDefault("backend.probe_interval", "30s")
	v.SetDefault("backend.probe_startup_delay", "5s")
	v.SetDefault("backend.auto_flush", true)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.webhook.enabled", false)
	v.SetDefault("alerting.webhook.timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.retention", "0s")
	v.SetDefault("database.memory_capacity", 10000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must be set")
	}
	if c.Pipeline.WindowSize <= 0 {
		return fmt.Errorf("pipeline.window_size must be greater than zero")
	}
	if c.Pipeline.MinSignalQuality < 0 || c.Pipeline.MinSignalQuality > 1 {
		return fmt.Errorf("pipeline.min_signal_quality must be within [0,1]")
	}
	if c.Pipeline.Debounce < 0 {
		return fmt.Errorf("pipeline.debounce cannot be negative")
	}
	if len(c.Pipeline.PlausibleRanges) == 0 {
		return fmt.Errorf("pipeline.plausible_ranges 不能为空")
	}
	for name, r := range c.Pipeline.PlausibleRanges {
		if r.Min >= r.Max {
			return fmt.Errorf("pipeline.plausible_ranges.%s: min must be below max", name)
		}
	}
	if c.Pipeline.Trend.MinPoints <= 0 {
		return fmt.Errorf("pipeline.trend.min_points must be greater than zero")
	}
	for name, level := range c.Pipeline.SeverityPolicy {
		switch alerting.Severity(strings.ToUpper(level)) {
		case alerting.SeverityLow, alerting.SeverityMedium, alerting.SeverityHigh:
		default:
			return fmt.Errorf("pipeline.severity_policy.%s: unknown level %q", name, level)
		}
	}
	if c.Backend.BaseURL != "" && c.Backend.ProbeInterval <= 0 {
		return fmt.Errorf("backend.probe_interval must be greater than zero")
	}
	if c.Alerting.Webhook.Enabled && c.Alerting.Webhook.URL == "" {
		return fmt.Errorf("alerting.webhook.url 必须配置")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// RangeTable returns the plausible ranges keyed by canonical measurement
// type.
func (c PipelineConfig) RangeTable() map[vitals.MeasurementType]vitals.Range {
	out := make(map[vitals.MeasurementType]vitals.Range, len(c.PlausibleRanges))
	for name, r := range c.PlausibleRanges {
		out[vitals.MeasurementType(strings.ToUpper(name))] = r
	}
	return out
}

// ThresholdTable returns the alert thresholds keyed by canonical
// measurement type.
func (c PipelineConfig) ThresholdTable() map[vitals.MeasurementType]anomaly.Threshold {
	out := make(map[vitals.MeasurementType]anomaly.Threshold, len(c.Thresholds))
	for name, th := range c.Thresholds {
		out[vitals.MeasurementType(strings.ToUpper(name))] = th
	}
	return out
}

// TrendRules returns the trend detection configuration with canonical type
// keys.
func (c PipelineConfig) TrendRules() anomaly.TrendConfig {
	slopes := make(map[vitals.MeasurementType]float64, len(c.Trend.SlopeThresholds))
	for name, slope := range c.Trend.SlopeThresholds {
		slopes[vitals.MeasurementType(strings.ToUpper(name))] = slope
	}
	return anomaly.TrendConfig{MinPoints: c.Trend.MinPoints, SlopeThresholds: slopes}
}

// SeverityTable returns the severity policy keyed by canonical measurement
// type.
func (c PipelineConfig) SeverityTable() map[vitals.MeasurementType]alerting.Severity {
	out := make(map[vitals.MeasurementType]alerting.Severity, len(c.SeverityPolicy))
	for name, level := range c.SeverityPolicy {
		out[vitals.MeasurementType(strings.ToUpper(name))] = alerting.Severity(strings.ToUpper(level))
	}
	return out
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
