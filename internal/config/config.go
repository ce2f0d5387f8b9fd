// Package config provides the configuration schema, loader, and provider registry
// for the stresslens voice stress service.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/stresslens/pkg/types"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog level. Unknown levels map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Config is the root configuration structure for stresslens.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Quality    QualityConfig    `yaml:"quality"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Model      ModelConfig      `yaml:"model"`
	Remedies   RemediesConfig   `yaml:"remedies"`
	History    HistoryConfig    `yaml:"history"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	// Empty disables the HTTP server in monitor mode.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins are host patterns accepted for websocket upgrades from
	// browsers. Same-origin requests are always accepted.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AudioConfig describes the capture format and chunking.
type AudioConfig struct {
	// SampleRate is the pipeline sample rate in Hz. Default 22050.
	SampleRate int `yaml:"sample_rate"`

	// WindowSeconds is the chunk duration. Default 3.
	WindowSeconds float64 `yaml:"window_seconds"`

	// FrameSize is the number of samples requested per capture read.
	// Default 1024.
	FrameSize int `yaml:"frame_size"`

	// QueueCapacity bounds the chunk queue. Default 8.
	QueueCapacity int `yaml:"queue_capacity"`
}

// Window returns the chunk duration.
func (a AudioConfig) Window() time.Duration {
	return time.Duration(a.WindowSeconds * float64(time.Second))
}

// ChunkSize returns the number of samples in one chunk.
func (a AudioConfig) ChunkSize() int {
	return int(float64(a.SampleRate) * a.WindowSeconds)
}

// PipelineConfig tunes the streaming lifecycle.
type PipelineConfig struct {
	PollInterval           time.Duration `yaml:"poll_interval"`
	DequeueTimeout         time.Duration `yaml:"dequeue_timeout"`
	ShutdownGrace          time.Duration `yaml:"shutdown_grace"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`

	// DrainOnStop processes queued chunks before the pipeline exits. Default
	// true.
	DrainOnStop *bool `yaml:"drain_on_stop"`

	// Language is a fixed language hint ("english", "en", "hindi", ...).
	// Empty lets the langid provider decide per chunk.
	Language string `yaml:"language"`
}

// Drain reports the effective DrainOnStop value.
func (p PipelineConfig) Drain() bool {
	return p.DrainOnStop == nil || *p.DrainOnStop
}

// ConfidenceConfig holds the tier thresholds. Hot-reloadable.
type ConfidenceConfig struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
}

// QualityConfig holds per-label model quality (F1) scores.
type QualityConfig struct {
	Scores  map[types.Label]float64 `yaml:"scores"`
	Default float64                 `yaml:"default"`
}

// ProvidersConfig declares which implementation to use for each pipeline
// stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	Source     ProviderEntry `yaml:"source"`
	Features   ProviderEntry `yaml:"features"`
	Classifier ProviderEntry `yaml:"classifier"`
	LangID     ProviderEntry `yaml:"langid"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "energy", "remote").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL is the endpoint of a remote provider.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// ModelConfig points at the model artifact bundle.
type ModelConfig struct {
	// Bundle is the path of the YAML model bundle. Empty selects the
	// built-in bundle.
	Bundle string `yaml:"bundle"`
}

// RemediesConfig points at the remedy catalog.
type RemediesConfig struct {
	// Catalog is the path of a YAML remedy catalog. Empty selects the
	// built-in catalog.
	Catalog string `yaml:"catalog"`
}

// HistoryConfig configures recommendation history storage.
type HistoryConfig struct {
	// PostgresDSN selects the PostgreSQL store. Empty keeps history in memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Capacity bounds the in-memory store. Default 1000.
	Capacity int `yaml:"capacity"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`

	// Metrics enables the Prometheus exporter and the /metrics endpoint.
	Metrics bool `yaml:"metrics"`
}
