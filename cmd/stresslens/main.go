// Command stresslens estimates speaker stress from live or recorded speech and
// suggests remedies.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/stresslens/internal/app"
	"github.com/MrWong99/stresslens/internal/config"
	"github.com/MrWong99/stresslens/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	defaultConfigPath = "stresslens.yaml"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stresslens: %v\n", err)
		return 1
	}
	return 0
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "stresslens",
		Short:         "Voice stress estimation with remedy suggestions",
		Long:          "stresslens classifies the stress level of speech in three second windows and suggests remedies in English or Hindi.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", defaultConfigPath, "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	root.AddCommand(
		newAnalyzeCmd(g),
		newMonitorCmd(g),
		newServeCmd(g),
		newMCPCmd(g),
		newInfoCmd(g),
		newInitCmd(g),
	)
	return root
}

// ── Runtime ───────────────────────────────────────────────────────────────────

// runtime is the state every long-running subcommand shares: the loaded
// config, the logger level and the optional telemetry providers.
type runtime struct {
	cfg        *config.Config
	configPath string
	level      *slog.LevelVar
	telemetry  *observe.Telemetry
}

// setup loads the config, installs the default logger and, when enabled,
// the metrics exporter.
func setup(ctx context.Context, cmd *cobra.Command, g *globalFlags) (*runtime, error) {
	cfg, path, err := loadConfig(cmd, g)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		lvl := config.LogLevel(g.logLevel)
		if !lvl.IsValid() {
			return nil, fmt.Errorf("invalid --log-level %q", g.logLevel)
		}
		cfg.Server.LogLevel = lvl
	}

	rt := &runtime{cfg: cfg, configPath: path, level: new(slog.LevelVar)}
	rt.level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(cfg.Server.LogFormat, rt.level))

	if cfg.Telemetry.Metrics {
		t, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
		})
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		rt.telemetry = t
	}
	return rt, nil
}

// loadConfig reads the config file. A missing file is only an error when the
// path was given explicitly; otherwise the defaults are used.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, string, error) {
	cfg, err := config.Load(g.configPath)
	switch {
	case err == nil:
		return cfg, g.configPath, nil
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		return config.Default(), "", nil
	case errors.Is(err, os.ErrNotExist):
		return nil, "", fmt.Errorf("config file %q not found, run 'stresslens init' to create one", g.configPath)
	default:
		return nil, "", err
	}
}

// newApp builds the application. withSource controls whether the configured
// audio source is instantiated.
func (rt *runtime) newApp(ctx context.Context, withSource bool, opts ...app.Option) (*app.App, error) {
	var m *observe.Metrics
	if rt.telemetry != nil {
		var err error
		if m, err = observe.NewMetrics(rt.telemetry.MeterProvider); err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		opts = append(opts, app.WithMetrics(m), app.WithMetricsHandler(rt.telemetry.MetricsHandler()))
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, m)

	providers, err := buildProviders(ctx, rt.cfg, reg, withSource)
	if err != nil {
		return nil, err
	}
	if rt.configPath != "" {
		opts = append(opts, app.WithConfigWatch(rt.configPath, rt.level))
	}
	return app.New(ctx, rt.cfg, providers, opts...)
}

// close flushes telemetry.
func (rt *runtime) close(ctx context.Context) {
	if rt.telemetry == nil {
		return
	}
	if err := rt.telemetry.Shutdown(ctx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
}

// runApp runs a until ctx is cancelled or the pipeline ends, then shuts it
// down.
func (rt *runtime) runApp(ctx context.Context, a *app.App) error {
	runErr := a.Run(ctx)
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("stopping…")
	if err := a.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	rt.close(shutdownCtx)
	if runErr != nil {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(format config.LogFormat, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
