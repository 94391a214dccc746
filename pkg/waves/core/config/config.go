// Package config holds the WAVES configuration tree and its loader.
package config

import "time"

// EmbeddedConfig is the raw YAML document compiled into the binary.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelSilent LogLevel = "SILENT"
)

// Repository kinds accepted by infrastructure.repository.
const (
	RepositorySQL      = "sql"
	RepositoryInMemory = "inmemory"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// JobsConfig holds the job workflow settings.
type JobsConfig struct {
	// BaseDir is the root of the per-job working directories.
	BaseDir  string `yaml:"base_dir"`
	MaxRetry int    `yaml:"max_retry"`
	// LogLevel applies to the per-job log file.
	LogLevel        string `yaml:"log_level"`
	LeaseTTLSeconds int    `yaml:"lease_ttl_seconds"`
	// RetryableErrors names extra error types retried like adaptor failures.
	RetryableErrors []string `yaml:"retryable_errors"`
	// Backoff between two scheduler attempts on a failing job.
	InitialIntervalSeconds int     `yaml:"initial_interval_seconds"`
	MaxIntervalSeconds     int     `yaml:"max_interval_seconds"`
	Factor                 float64 `yaml:"factor"`
}

// LeaseTTL returns the job lease duration.
func (c JobsConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// AdaptorsConfig selects the adaptor kinds offered.
type AdaptorsConfig struct {
	// Enabled lists adaptor kinds; empty enables every registered kind.
	Enabled []string `yaml:"enabled"`
}

// RunnerConfig is a named execution target new jobs bind to.
type RunnerConfig struct {
	Adaptor string                 `yaml:"adaptor"`
	Params  map[string]interface{} `yaml:"params"`
}

// SchedulerConfig configures the tick loop of the serve command.
type SchedulerConfig struct {
	PollingIntervalSeconds int `yaml:"polling_interval_seconds"`
	Workers                int `yaml:"workers"`
	BatchSize              int `yaml:"batch_size"`
}

// PollingInterval returns the tick period.
func (c SchedulerConfig) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalSeconds) * time.Second
}

// InfrastructureConfig selects the job repository implementation.
type InfrastructureConfig struct {
	// Repository is "sql" or "inmemory".
	Repository string `yaml:"repository"`
	// DatabaseRef names the entry of the database section used by the SQL repository.
	DatabaseRef string `yaml:"database_ref"`
	// AutoMigrate applies pending schema migrations when the application starts.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// NotificationConfig configures job status notifications.
type NotificationConfig struct {
	// NatsURL enables the NATS notifier when set; otherwise notifications are logged.
	NatsURL string `yaml:"nats_url"`
	// Subject is the subject prefix; the job slug and "status" are appended.
	Subject string `yaml:"subject"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	MetricsAddress string `yaml:"metrics_address"`
	// OtlpEndpoint enables OTLP gRPC trace export when set.
	OtlpEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// ExportConfig configures the job history exporter.
type ExportConfig struct {
	StorageRef string `yaml:"storage_ref"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	// Compression is one of UNCOMPRESSED, SNAPPY, GZIP, ZSTD.
	Compression string `yaml:"compression"`
	// Limit caps the jobs exported per run; 0 exports all of them.
	Limit int `yaml:"limit"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys are adaptor parameter names masked in logs and dumps,
	// in addition to the "crypt" prefixed ones.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
}

// WavesConfig holds everything under the "waves" top-level key.
type WavesConfig struct {
	System         SystemConfig            `yaml:"system"`
	Jobs           JobsConfig              `yaml:"jobs"`
	Adaptors       AdaptorsConfig          `yaml:"adaptors"`
	Runners        map[string]RunnerConfig `yaml:"runners"`
	Scheduler      SchedulerConfig         `yaml:"scheduler"`
	Infrastructure InfrastructureConfig    `yaml:"infrastructure"`
	Notification   NotificationConfig      `yaml:"notification"`
	Observability  ObservabilityConfig     `yaml:"observability"`
	Export         ExportConfig            `yaml:"export"`
	Security       SecurityConfig          `yaml:"security"`
	// Database holds the connection maps keyed by name, decoded by the database adapter.
	Database map[string]interface{} `yaml:"database"`
	// Storage holds the storage maps keyed by name, decoded by the storage adapter.
	Storage map[string]interface{} `yaml:"storage"`
}

// Config is the root of the configuration document.
type Config struct {
	Waves WavesConfig `yaml:"waves"`
}

// NewConfig returns a Config holding the defaults.
func NewConfig() *Config {
	return &Config{
		Waves: WavesConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: string(LogLevelInfo), Format: "text"},
			},
			Jobs: JobsConfig{
				BaseDir:                "data/jobs",
				MaxRetry:               5,
				LogLevel:               string(LogLevelInfo),
				LeaseTTLSeconds:        300,
				InitialIntervalSeconds: 10,
				MaxIntervalSeconds:     600,
				Factor:                 2,
			},
			Runners: map[string]RunnerConfig{},
			Scheduler: SchedulerConfig{
				PollingIntervalSeconds: 10,
				Workers:                4,
				BatchSize:              100,
			},
			Infrastructure: InfrastructureConfig{
				Repository:  RepositorySQL,
				DatabaseRef: "metadata",
				AutoMigrate: true,
			},
			Notification: NotificationConfig{Subject: "waves.jobs"},
			Observability: ObservabilityConfig{
				MetricsAddress: ":9090",
				ServiceName:    "wavesd",
			},
			Export: ExportConfig{
				StorageRef:  "archive",
				Prefix:      "history",
				Compression: "SNAPPY",
			},
		},
	}
}
