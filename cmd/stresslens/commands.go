package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/stresslens/internal/app"
	"github.com/MrWong99/stresslens/internal/config"
	"github.com/MrWong99/stresslens/internal/mcpserver"
	"github.com/MrWong99/stresslens/internal/pipeline"
	"github.com/MrWong99/stresslens/internal/remedy"
	"github.com/MrWong99/stresslens/pkg/types"
)

// ── analyze ───────────────────────────────────────────────────────────────────

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	var (
		language string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Analyse one recording and print the recommendation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer rt.close(ctx)
			rt.cfg.Server.ListenAddr = ""
			rt.configPath = ""

			a, err := rt.newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Shutdown(ctx)

			rec, err := a.Analyzer().AnalyzeFile(ctx, args[0], language)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			_, err = fmt.Fprintln(out, remedy.Format(rec))
			return err
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "language of the recording (english, hindi); detected when empty")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the recommendation as JSON")
	return cmd
}

// ── monitor ───────────────────────────────────────────────────────────────────

func newMonitorCmd(g *globalFlags) *cobra.Command {
	var (
		language string
		file     string
		realtime bool
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Continuously classify live audio and print recommendations",
		Long: "monitor captures audio from the configured source, classifies every three second window " +
			"and prints the latest recommendation every poll interval. Press Ctrl+C once to stop " +
			"gracefully and twice to force.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx, cmd, g)
			if err != nil {
				return err
			}
			if language != "" {
				rt.cfg.Pipeline.Language = language
			}
			if file != "" {
				rt.cfg.Providers.Source = config.ProviderEntry{
					Name:    "file",
					Options: map[string]any{"path": file, "realtime": realtime},
				}
			}

			a, err := rt.newApp(ctx, true, appWithStdout(cmd))
			if err != nil {
				rt.close(ctx)
				return err
			}

			// A second signal forces teardown.
			sigs := make(chan os.Signal, 2)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)
			go func() {
				<-sigs // the first one cancels ctx
				for range sigs {
					a.Stop()
				}
			}()

			printStartupSummary(cmd.ErrOrStderr(), rt.cfg, true)
			slog.Info("monitoring, press Ctrl+C to stop")
			return rt.runApp(ctx, a)
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "language hint for every chunk; detected when empty")
	cmd.Flags().StringVarP(&file, "file", "f", "", "replay a WAV file instead of the configured source")
	cmd.Flags().BoolVar(&realtime, "realtime", true, "replay --file at its natural speed")
	return cmd
}

// ── serve ─────────────────────────────────────────────────────────────────────

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		listen string
		stream bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (analysis, history, live feed, metrics)",
		Long: "serve runs the HTTP API. With --stream, or when providers.source is \"websocket\", " +
			"the streaming pipeline runs as well and its recommendations are pushed to /v1/feed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx, cmd, g)
			if err != nil {
				return err
			}
			switch {
			case listen != "":
				rt.cfg.Server.ListenAddr = listen
			case rt.cfg.Server.ListenAddr == "":
				rt.cfg.Server.ListenAddr = config.DefaultListenAddr
			}
			withSource := stream || rt.cfg.Providers.Source.Name == "websocket"

			a, err := rt.newApp(ctx, withSource)
			if err != nil {
				rt.close(ctx)
				return err
			}
			printStartupSummary(cmd.ErrOrStderr(), rt.cfg, withSource)
			slog.Info("server ready, press Ctrl+C to shut down")
			return rt.runApp(ctx, a)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides server.listen_addr")
	cmd.Flags().BoolVar(&stream, "stream", false, "also run the streaming pipeline on the configured source")
	return cmd
}

// ── mcp ───────────────────────────────────────────────────────────────────────

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve stresslens tools over the Model Context Protocol on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer rt.close(ctx)
			rt.cfg.Server.ListenAddr = ""

			a, err := rt.newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Shutdown(ctx)

			srv := mcpserver.New(version,
				mcpserver.WithAnalyzer(a.Analyzer()),
				mcpserver.WithHistory(a.History()),
			)
			return srv.Run(ctx)
		},
	}
}

// ── init ──────────────────────────────────────────────────────────────────────

func newInitCmd(g *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create the data directory layout and a default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			dirs, err := initLayout(root)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range dirs {
				fmt.Fprintf(out, "created %s\n", d)
			}

			path := g.configPath
			if !filepath.IsAbs(path) {
				path = filepath.Join(root, path)
			}
			written, err := writeDefaultConfig(path, force)
			if err != nil {
				return err
			}
			if written {
				fmt.Fprintf(out, "wrote %s\n", path)
			} else {
				fmt.Fprintf(out, "kept existing %s (use --force to overwrite)\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// initLayout creates data/raw/<language>/<label>, data/processed,
// data/models and logs under root.
func initLayout(root string) ([]string, error) {
	var dirs []string
	for _, lang := range types.Languages {
		for _, label := range types.Labels {
			dirs = append(dirs, filepath.Join(root, "data", "raw", string(lang), string(label)))
		}
	}
	dirs = append(dirs,
		filepath.Join(root, "data", "processed"),
		filepath.Join(root, "data", "models"),
		filepath.Join(root, "logs"),
	)
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: %w", err)
		}
	}
	return dirs, nil
}

// writeDefaultConfig writes the default config as YAML. It reports false
// without writing when path exists and force is unset.
func writeDefaultConfig(path string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("init: %w", err)
	}
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return false, fmt.Errorf("init: encode config: %w", err)
	}
	header := []byte("# stresslens configuration. See configs/example.yaml for every option.\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return false, fmt.Errorf("init: %w", err)
	}
	return true, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// appWithStdout prints the full report of every recommendation to the
// command's output.
func appWithStdout(cmd *cobra.Command) app.Option {
	return app.WithSinks(&pipeline.WriterSink{W: cmd.OutOrStdout()})
}
