package config

import (
	"maps"
	"reflect"

	"github.com/MrWong99/stresslens/internal/stress"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ThresholdsChanged is set when the confidence tier bounds moved. They
	// are applied to the running aggregator without a restart.
	ThresholdsChanged bool
	NewThresholds     stress.Thresholds

	// QualityChanged is set when the model quality table differs.
	QualityChanged bool

	// RestartRequired lists the sections that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// Reloadable reports whether any hot-reloadable field changed.
func (d ConfigDiff) Reloadable() bool {
	return d.LogLevelChanged || d.ThresholdsChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Confidence != new.Confidence {
		d.ThresholdsChanged = true
		d.NewThresholds = new.Thresholds()
	}
	if old.Quality.Default != new.Quality.Default || !maps.Equal(old.Quality.Scores, new.Quality.Scores) {
		d.QualityChanged = true
		d.RestartRequired = append(d.RestartRequired, "quality")
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.LogFormat != new.Server.LogFormat ||
		!reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !reflect.DeepEqual(old.Pipeline, new.Pipeline) {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Model != new.Model {
		d.RestartRequired = append(d.RestartRequired, "model")
	}
	if old.Remedies != new.Remedies {
		d.RestartRequired = append(d.RestartRequired, "remedies")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}
