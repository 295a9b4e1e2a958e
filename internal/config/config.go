// Package config loads and validates the pipeline's global static
// configuration using viper, mirroring the teacher's internal/config
// package: a YAML file populates a GlobalConfig struct, environment
// variables override it, and ValidateAndApplyDefaults fills in
// host-dependent defaults and rejects inconsistent values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GlobalConfig is the top-level configuration shared by cmd/aggregator and
// cmd/writer. Each stage binary reads only the sections it needs.
type GlobalConfig struct {
	Node       NodeConfig       `mapstructure:"node"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Topics     TopicsConfig     `mapstructure:"topics"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Writer     WriterConfig     `mapstructure:"writer"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// NodeConfig identifies this process instance in logs and consumer group
// membership.
type NodeConfig struct {
	Hostname string `mapstructure:"hostname"` // empty = os.Hostname()
}

// KafkaConfig is the shared broker connection used by both the reader and
// writer sides of internal/transport.
type KafkaConfig struct {
	Brokers []string   `mapstructure:"brokers"`
	GroupID string     `mapstructure:"group_id"`
	SASL    SASLConfig `mapstructure:"sasl"`
	TLS     TLSConfig  `mapstructure:"tls"`
}

// SASLConfig contains SASL authentication settings.
type SASLConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Mechanism string `mapstructure:"mechanism"` // PLAIN | SCRAM-SHA-256 | SCRAM-SHA-512
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// TLSConfig contains TLS settings for the broker connection.
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CACert             string `mapstructure:"ca_cert"`
	ClientCert         string `mapstructure:"client_cert"`
	ClientKey          string `mapstructure:"client_key"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// TopicsConfig names the six wire topics dispatch.Handler instances bind
// to (spec §4.4 and GLOSSARY).
type TopicsConfig struct {
	DigitiserEvent string `mapstructure:"digitiser_event"`
	FrameEvent     string `mapstructure:"frame_event"`
	SampleEnv      string `mapstructure:"sample_env"`
	RunLog         string `mapstructure:"run_log"`
	Alarm          string `mapstructure:"alarm"`
	Control        string `mapstructure:"control"`
}

// AggregatorConfig configures the frame-aggregation stage (internal/framecache).
type AggregatorConfig struct {
	FrameTTL           string `mapstructure:"frame_ttl"` // duration string, e.g. "2s"
	ExpectedDigitisers []uint8 `mapstructure:"expected_digitisers"`
}

// Expiry parses FrameTTL as a time.Duration.
func (a AggregatorConfig) Expiry() (time.Duration, error) {
	return parseDuration("aggregator.frame_ttl", a.FrameTTL)
}

// WriterConfig configures the run-state/append-writer stage
// (internal/runengine, internal/writer).
type WriterConfig struct {
	TempDir       string `mapstructure:"temp_dir"`
	CompletedDir  string `mapstructure:"completed_dir"`
	ShardCount    int    `mapstructure:"shard_count"`
	FlushInterval string `mapstructure:"flush_interval"` // how often Engine.Flush runs
	FlushDelay    string `mapstructure:"flush_delay"`    // idle time before a stopped run retires
}

// Interval parses FlushInterval as a time.Duration.
func (w WriterConfig) Interval() (time.Duration, error) {
	return parseDuration("writer.flush_interval", w.FlushInterval)
}

// Delay parses FlushDelay as a time.Duration.
func (w WriterConfig) Delay() (time.Duration, error) {
	return parseDuration("writer.flush_delay", w.FlushDelay)
}

// MetricsConfig configures the prometheus HTTP exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// LogConfig configures internal/log's slog initialization.
type LogConfig struct {
	Level   string         `mapstructure:"level"` // debug | info | warn | error
	Format  string         `mapstructure:"format"` // json | text
	Outputs []OutputConfig `mapstructure:"outputs"`
}

// OutputConfig configures one structured-log output destination.
type OutputConfig struct {
	Type       string   `mapstructure:"type"` // console | file | kafka
	Path       string   `mapstructure:"path"`
	MaxSizeMB  int      `mapstructure:"max_size_mb"`
	MaxAgeDays int      `mapstructure:"max_age_days"`
	MaxBackups int      `mapstructure:"max_backups"`
	Compress   bool     `mapstructure:"compress"`
	Brokers    []string `mapstructure:"brokers"` // kafka output
	Topic      string   `mapstructure:"topic"`   // kafka output
}

func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	return d, nil
}

// Load reads path as YAML into a GlobalConfig, applies PULSE_CORE_ prefixed
// environment overrides, fills in defaults, and validates the result.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("pulse_core")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("topics.digitiser_event", "digitiser_event")
	v.SetDefault("topics.frame_event", "frame_event")
	v.SetDefault("topics.sample_env", "sample_env")
	v.SetDefault("topics.run_log", "run_log")
	v.SetDefault("topics.alarm", "alarm")
	v.SetDefault("topics.control", "control")

	v.SetDefault("aggregator.frame_ttl", "2s")

	v.SetDefault("writer.shard_count", 1)
	v.SetDefault("writer.flush_interval", "1s")
	v.SetDefault("writer.flush_delay", "30s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("kafka.group_id", "pulse-core")
}

// ValidateAndApplyDefaults resolves host-dependent defaults (hostname) and
// rejects configurations that cannot be used to construct the stages.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}

	if _, err := cfg.Aggregator.Expiry(); err != nil {
		return err
	}
	if _, err := cfg.Writer.Interval(); err != nil {
		return err
	}
	if _, err := cfg.Writer.Delay(); err != nil {
		return err
	}
	if cfg.Writer.TempDir == "" {
		return fmt.Errorf("writer.temp_dir is required")
	}
	if cfg.Writer.CompletedDir == "" {
		return fmt.Errorf("writer.completed_dir is required")
	}
	if cfg.Writer.ShardCount <= 0 {
		cfg.Writer.ShardCount = 1
	}

	if len(cfg.Aggregator.ExpectedDigitisers) == 0 {
		return fmt.Errorf("aggregator.expected_digitisers is required")
	}

	return nil
}
