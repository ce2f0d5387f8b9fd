package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/stresslens/internal/langid"
	"github.com/MrWong99/stresslens/internal/stress"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultSampleRate      = 22050
	DefaultWindowSeconds   = 3.0
	DefaultFrameSize       = 1024
	DefaultQueueCapacity   = 8
	DefaultPollInterval    = 5 * time.Second
	DefaultDequeueTimeout  = time.Second
	DefaultShutdownGrace   = 5 * time.Second
	DefaultMaxFailures     = 5
	DefaultHistoryCapacity = 1000
	DefaultServiceName     = "stresslens"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"source":     {"portaudio", "websocket", "file"},
	"features":   {"energy", "remote"},
	"classifier": {"linear", "remote"},
	"langid":     {"centroid", "static", "whisper"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields. A zero threshold or quality score
// selects the default, so "0" cannot be configured for those fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}

	a := &cfg.Audio
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.WindowSeconds == 0 {
		a.WindowSeconds = DefaultWindowSeconds
	}
	if a.FrameSize == 0 {
		a.FrameSize = DefaultFrameSize
	}
	if a.QueueCapacity == 0 {
		a.QueueCapacity = DefaultQueueCapacity
	}

	p := &cfg.Pipeline
	if p.PollInterval == 0 {
		p.PollInterval = DefaultPollInterval
	}
	if p.DequeueTimeout == 0 {
		p.DequeueTimeout = DefaultDequeueTimeout
	}
	if p.ShutdownGrace == 0 {
		p.ShutdownGrace = DefaultShutdownGrace
	}
	if p.MaxConsecutiveFailures == 0 {
		p.MaxConsecutiveFailures = DefaultMaxFailures
	}

	if cfg.Confidence.High == 0 {
		cfg.Confidence.High = stress.DefaultHighThreshold
	}
	if cfg.Confidence.Medium == 0 {
		cfg.Confidence.Medium = stress.DefaultMediumThreshold
	}

	if cfg.Quality.Scores == nil {
		def := stress.DefaultQualityTable()
		cfg.Quality.Scores = def.Scores()
	}
	if cfg.Quality.Default == 0 {
		cfg.Quality.Default = stress.DefaultQuality
	}

	if cfg.Providers.Source.Name == "" {
		cfg.Providers.Source.Name = "portaudio"
	}
	if cfg.Providers.Features.Name == "" {
		cfg.Providers.Features.Name = "energy"
	}
	if cfg.Providers.Classifier.Name == "" {
		cfg.Providers.Classifier.Name = "linear"
	}
	if cfg.Providers.LangID.Name == "" {
		cfg.Providers.LangID.Name = "centroid"
	}

	if cfg.History.Capacity == 0 {
		cfg.History.Capacity = DefaultHistoryCapacity
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	a := cfg.Audio
	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", a.SampleRate))
	}
	if a.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.window_seconds %v must be positive", a.WindowSeconds))
	}
	if a.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", a.FrameSize))
	}
	if a.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("audio.queue_capacity %d must be at least 1", a.QueueCapacity))
	}

	// Pipeline
	p := cfg.Pipeline
	for name, d := range map[string]time.Duration{
		"poll_interval":   p.PollInterval,
		"dequeue_timeout": p.DequeueTimeout,
		"shutdown_grace":  p.ShutdownGrace,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s %s must not be negative", name, d))
		}
	}
	if p.MaxConsecutiveFailures < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_consecutive_failures %d must be at least 1", p.MaxConsecutiveFailures))
	}
	if p.Language != "" {
		if _, ok := langid.Normalize(p.Language); !ok {
			errs = append(errs, fmt.Errorf("pipeline.language %q is not a supported language", p.Language))
		}
	}

	// Confidence and quality
	if err := cfg.Thresholds().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("confidence: %w", err))
	}
	for label := range cfg.Quality.Scores {
		if !label.IsValid() {
			errs = append(errs, fmt.Errorf("quality.scores: unknown label %q", label))
		}
	}
	if _, err := cfg.QualityTable(); err != nil {
		errs = append(errs, fmt.Errorf("quality: %w", err))
	}

	// Providers
	validateProviderName("source", cfg.Providers.Source.Name)
	validateProviderName("features", cfg.Providers.Features.Name)
	validateProviderName("classifier", cfg.Providers.Classifier.Name)
	validateProviderName("langid", cfg.Providers.LangID.Name)
	if e := cfg.Providers.Features; e.Name == "remote" && e.BaseURL == "" {
		errs = append(errs, errors.New("providers.features.base_url is required for the remote extractor"))
	}
	if e := cfg.Providers.Classifier; e.Name == "remote" && e.BaseURL == "" {
		errs = append(errs, errors.New("providers.classifier.base_url is required for the remote classifier"))
	}
	if e := cfg.Providers.Source; e.Name == "file" && optString(e.Options, "path") == "" {
		errs = append(errs, errors.New("providers.source.options.path is required for the file source"))
	}

	// History
	if cfg.History.Capacity < 0 {
		errs = append(errs, fmt.Errorf("history.capacity %d must not be negative", cfg.History.Capacity))
	}
	if cfg.History.PostgresDSN == "" {
		slog.Debug("history.postgres_dsn is empty; recommendation history is kept in memory")
	}

	return errors.Join(errs...)
}

// Thresholds returns the configured confidence thresholds.
func (c *Config) Thresholds() stress.Thresholds {
	return stress.Thresholds{High: c.Confidence.High, Medium: c.Confidence.Medium}
}

// QualityTable builds the configured model quality table.
func (c *Config) QualityTable() (stress.QualityTable, error) {
	return stress.NewQualityTable(c.Quality.Scores, c.Quality.Default)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
