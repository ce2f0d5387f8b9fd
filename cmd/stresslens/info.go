package main

import (
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/stresslens/internal/app"
	"github.com/MrWong99/stresslens/internal/config"
	"github.com/MrWong99/stresslens/pkg/types"
)

func newInfoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show version, supported languages and labels, and the active model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if path == "" {
				path = "(built-in defaults)"
			}
			return printInfo(cmd.OutOrStdout(), cfg, path)
		},
	}
}

// printInfo writes the system information report.
func printInfo(w io.Writer, cfg *config.Config, configPath string) error {
	bundle, err := app.LoadBundle(cfg)
	if err != nil {
		return fmt.Errorf("load model bundle: %w", err)
	}

	fmt.Fprintf(w, "stresslens %s (%s)\n\n", version, goVersion())
	fmt.Fprintf(w, "Config:       %s\n", configPath)

	langs := make([]string, len(types.Languages))
	for i, l := range types.Languages {
		langs[i] = l.Title()
	}
	fmt.Fprintf(w, "Languages:    %s\n", strings.Join(langs, ", "))

	labels := make([]string, len(types.Labels))
	for i, l := range types.Labels {
		labels[i] = l.Title()
	}
	fmt.Fprintf(w, "Stress levels: %s\n\n", strings.Join(labels, ", "))

	fmt.Fprintf(w, "Audio:        %d Hz, %.1f s window (%d samples), queue of %d\n",
		cfg.Audio.SampleRate, cfg.Audio.WindowSeconds, cfg.Audio.ChunkSize(), cfg.Audio.QueueCapacity)
	fmt.Fprintf(w, "Confidence:   high >= %.2f, medium >= %.2f\n", cfg.Confidence.High, cfg.Confidence.Medium)

	fmt.Fprintln(w, "Model quality:")
	for _, l := range types.Labels {
		score, ok := cfg.Quality.Scores[l]
		if !ok {
			score = cfg.Quality.Default
		}
		fmt.Fprintf(w, "  %-14s %.2f\n", l.Title(), score)
	}

	origin := cfg.Model.Bundle
	if origin == "" {
		origin = "built-in"
	}
	fmt.Fprintf(w, "\nModel bundle: %s (%s)\n", bundle.Name, origin)
	fmt.Fprintf(w, "  sample rate: %d Hz\n", bundle.SampleRate)
	fmt.Fprintf(w, "  extractor:  %s\n", bundle.Extractor)
	fmt.Fprintf(w, "  classifier: %s\n", bundle.Classifier.Type)
	fmt.Fprintf(w, "  classes:    %d\n", len(bundle.Classes))
	fmt.Fprintf(w, "  features:   %s\n", strings.Join(bundle.FeatureNames, ", "))

	fmt.Fprintln(w, "\nProviders:")
	printProviderLine(w, "source", cfg.Providers.Source)
	printProviderLine(w, "features", cfg.Providers.Features)
	printProviderLine(w, "classifier", cfg.Providers.Classifier)
	printProviderLine(w, "langid", cfg.Providers.LangID)
	return nil
}

func printProviderLine(w io.Writer, kind string, e config.ProviderEntry) {
	value := e.Name
	if e.Model != "" {
		value += " / " + e.Model
	}
	if e.BaseURL != "" {
		value += " @ " + e.BaseURL
	}
	fmt.Fprintf(w, "  %-11s %s\n", kind+":", value)
}

func goVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		return bi.GoVersion
	}
	return "unknown"
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, streaming bool) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║       stresslens, startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	if streaming {
		printProvider(w, "Source", cfg.Providers.Source.Name, "")
	} else {
		printProvider(w, "Source", "", "")
	}
	printProvider(w, "Features", cfg.Providers.Features.Name, "")
	printProvider(w, "Classifier", cfg.Providers.Classifier.Name, "")
	printProvider(w, "Language ID", cfg.Providers.LangID.Name, cfg.Providers.LangID.Model)
	fmt.Fprintf(w, "║  Window          : %-19s ║\n", fmt.Sprintf("%.1fs @ %d Hz", cfg.Audio.WindowSeconds, cfg.Audio.SampleRate))
	fmt.Fprintf(w, "║  Poll interval   : %-19s ║\n", cfg.Pipeline.PollInterval)
	if cfg.History.PostgresDSN != "" {
		fmt.Fprintf(w, "║  History         : %-19s ║\n", "postgres")
	} else {
		fmt.Fprintf(w, "║  History         : %-19s ║\n", "in memory")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}
