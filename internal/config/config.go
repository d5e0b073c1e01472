// Package config provides configuration loading, validation, and hot-reload
// for streamguard.
//
// Configuration file: /etc/streamguard/config.yaml (default)
// Schema version: 1
//
// Hot-reload:
//   - The process listens for SIGHUP.
//   - On SIGHUP: re-read and re-validate config.yaml.
//   - A valid reload copies the scoring weights and thresholds into the
//     process's Config value. The running Analyzer and scoring policy keep
//     the values they were built with, and the log level is not changed.
//   - Every other field (DB path, ingestion input path, operator socket
//     path, ...) takes effect only on restart.
//   - If the new config is invalid, the old config remains active and an
//     error is logged. The process does NOT crash on invalid hot-reload
//     config.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (weights >= 0, entropy weight in [0,1]).
//   - Invalid config on startup: the process refuses to start (fatal error).
//   - Invalid config on hot-reload: logged, old config retained.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/streamguard/streamguard/internal/scoring"
	"github.com/streamguard/streamguard/internal/storage"
)

// Version, GitCommit, BuildTime are injected by the Makefile via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for streamguard.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this streamguard instance in the startup log line.
	// Default: hostname.
	NodeID string `yaml:"node_id"`

	Ingestion     IngestionConfig     `yaml:"ingestion"`
	Window        WindowConfig        `yaml:"window"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Audit         AuditConfig         `yaml:"audit"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
	Operator      OperatorConfig      `yaml:"operator"`
}

// IngestionConfig holds Ingestion-adapter parameters.
type IngestionConfig struct {
	// InputPath is the log source file. If absent and Synthesize is true,
	// a small sample file is generated in its place.
	InputPath string `yaml:"input_path"`

	// Synthesize controls whether a sample input file is generated when
	// InputPath does not exist (spec §6).
	Synthesize bool `yaml:"synthesize"`

	// LineDelay artificially paces ingestion, useful for demos and tests
	// that want to observe the window filling over time. Zero disables it.
	LineDelay time.Duration `yaml:"line_delay"`
}

// WindowConfig holds sliding-window and Analyzer loop parameters.
type WindowConfig struct {
	// Seconds is the sliding window width (spec §3, WINDOW_SECONDS).
	// Default: 300.
	Seconds int `yaml:"seconds"`

	// AnalyzerIntervalMS is the Analyzer's sleep between loop iterations,
	// in milliseconds; a new log does not cut the sleep short. While the
	// window is empty the Analyzer instead waits for the next log.
	// Default: 500.
	AnalyzerIntervalMS int `yaml:"analyzer_interval_ms"`
}

// ScoringConfig selects and configures the scoring policy.
type ScoringConfig struct {
	// Policy names the registered scoring.Policy to use. Default:
	// "additive". "mahalanobis" is the optional alternative.
	Policy string `yaml:"policy"`

	Additive    AdditiveConfig    `yaml:"additive"`
	Mahalanobis MahalanobisConfig `yaml:"mahalanobis"`

	Thresholds ThresholdsConfig `yaml:"thresholds"`
}

// AdditiveConfig holds AdditivePolicy weights.
type AdditiveConfig struct {
	WeightFailedAttempts float64 `yaml:"weight_failed_attempts"`
	WeightResourceCount  float64 `yaml:"weight_resource_count"`
	WeightIPCount        float64 `yaml:"weight_ip_count"`
}

// MahalanobisConfig holds MahalanobisPolicy parameters.
type MahalanobisConfig struct {
	// EntropyWeight is wₑ in A = mahal + wₑ|ΔH|. Range [0,1]. Default 0.3.
	EntropyWeight float64 `yaml:"entropy_weight"`
}

// ThresholdsConfig holds the severity score step points.
type ThresholdsConfig struct {
	Suspicious float64 `yaml:"suspicious"`
	High       float64 `yaml:"high"`
	Critical   float64 `yaml:"critical"`
}

// ToWeights converts AdditiveConfig to scoring.Weights.
func (a AdditiveConfig) ToWeights() scoring.Weights {
	return scoring.Weights{
		FailedAttempts: a.WeightFailedAttempts,
		ResourceCount:  a.WeightResourceCount,
		IPCount:        a.WeightIPCount,
	}
}

// ToThresholds converts ThresholdsConfig to scoring.Thresholds.
func (t ThresholdsConfig) ToThresholds() scoring.Thresholds {
	return scoring.Thresholds{Suspicious: t.Suspicious, High: t.High, Critical: t.Critical}
}

// AuditConfig holds internal/audit.AlertValidator parameters.
type AuditConfig struct {
	// SkewTolerance is the allowed backward timestamp drift between
	// consecutive alerts before one is rejected as non-monotonic.
	SkewTolerance time.Duration `yaml:"skew_tolerance"`
}

// StorageConfig holds BoltDB parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the BoltDB file.
	DBPath string `yaml:"db_path"`

	// RetentionDays is the alert-ledger retention period. Default: 30.
	RetentionDays int `yaml:"retention_days"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	LogFormat string `yaml:"log_format"`
}

// OperatorConfig holds the operator Unix-socket control plane parameters
// (SPEC_FULL.md §5).
type OperatorConfig struct {
	// SocketPath is the Unix domain socket path. Permissions: 0600.
	SocketPath string `yaml:"socket_path"`

	// Enabled controls whether the operator socket is active. Default: true.
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Ingestion: IngestionConfig{
			InputPath:  "sample_logs.txt",
			Synthesize: true,
		},
		Window: WindowConfig{
			Seconds:            300,
			AnalyzerIntervalMS: 500,
		},
		Scoring: ScoringConfig{
			Policy: "additive",
			Additive: AdditiveConfig{
				WeightFailedAttempts: 5.0,
				WeightResourceCount:  3.0,
				WeightIPCount:        4.0,
			},
			Mahalanobis: MahalanobisConfig{
				EntropyWeight: 0.3,
			},
			Thresholds: ThresholdsConfig{
				Suspicious: 11,
				High:       21,
				Critical:   31,
			},
		},
		Audit: AuditConfig{
			SkewTolerance: 5 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:        storage.DefaultDBPath,
			RetentionDays: storage.DefaultRetentionDays,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Operator: OperatorConfig{
			Enabled:    true,
			SocketPath: "/run/streamguard/operator.sock",
		},
	}
}

// Load reads and validates a config file from the given path. Returns the
// merged config (defaults overridden by file values).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks all config fields for correctness, returning a single
// error that lists every violation found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.Window.Seconds < 1 {
		errs = append(errs, fmt.Sprintf("window.seconds must be >= 1, got %d", cfg.Window.Seconds))
	}
	if cfg.Window.AnalyzerIntervalMS < 1 {
		errs = append(errs, fmt.Sprintf("window.analyzer_interval_ms must be >= 1, got %d", cfg.Window.AnalyzerIntervalMS))
	}
	if cfg.Scoring.Policy != "additive" && cfg.Scoring.Policy != "mahalanobis" {
		errs = append(errs, fmt.Sprintf("scoring.policy must be \"additive\" or \"mahalanobis\", got %q", cfg.Scoring.Policy))
	}
	if cfg.Scoring.Additive.WeightFailedAttempts < 0 ||
		cfg.Scoring.Additive.WeightResourceCount < 0 ||
		cfg.Scoring.Additive.WeightIPCount < 0 {
		errs = append(errs, "scoring.additive weights must all be >= 0")
	}
	if cfg.Scoring.Mahalanobis.EntropyWeight < 0.0 || cfg.Scoring.Mahalanobis.EntropyWeight > 1.0 {
		errs = append(errs, fmt.Sprintf("scoring.mahalanobis.entropy_weight must be in [0.0, 1.0], got %f", cfg.Scoring.Mahalanobis.EntropyWeight))
	}
	if !(cfg.Scoring.Thresholds.Suspicious < cfg.Scoring.Thresholds.High &&
		cfg.Scoring.Thresholds.High < cfg.Scoring.Thresholds.Critical) {
		errs = append(errs, "scoring.thresholds must be strictly increasing: suspicious < high < critical")
	}
	if cfg.Audit.SkewTolerance < 0 {
		errs = append(errs, "audit.skew_tolerance must be >= 0")
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.retention_days must be >= 1, got %d", cfg.Storage.RetentionDays))
	}
	if cfg.Observability.LogFormat != "json" && cfg.Observability.LogFormat != "console" {
		errs = append(errs, fmt.Sprintf("observability.log_format must be \"json\" or \"console\", got %q", cfg.Observability.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
