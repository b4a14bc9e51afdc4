package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	coreapp "polybuild/internal/core/app"
	"polybuild/internal/core/config"
	"polybuild/internal/data/history"
	"polybuild/internal/shared/observability"
	"polybuild/internal/ui/report"

	"github.com/joho/godotenv"
)

// Run executes the polybuild command line and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		return 2
	}

	if opts.version {
		fmt.Fprintf(stdout, "polybuild v%s\n", versionString)
		return 0
	}

	_ = godotenv.Load()
	configureLogging(stderr, opts.verbose)

	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("failed to detect working directory", "error", err)
		return 1
	}

	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	applyModeOptions(opts, cfg)
	base := filepath.Dir(cfgPath)

	paths, err := config.ResolvePaths(cfg, base)
	if err != nil {
		slog.Error("failed to resolve runtime paths", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.EnableTracing {
		shutdown, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint)
		if err != nil {
			slog.Error("failed to initialize tracing", "error", err)
			return 1
		}
		defer flushTracing(shutdown)
	}

	historyStore, err := openHistoryStoreIfEnabled(cfg, paths)
	if err != nil {
		slog.Error("history setup failed", "error", err)
		return 1
	}
	builderOpts := coreapp.Options{ConfigPath: cfgPath, Output: stdout}
	if historyStore != nil {
		defer historyStore.Close()
		builderOpts.History = historyStore
	}

	builder, err := coreapp.NewBuilder(cfg, base, builderOpts)
	if err != nil {
		slog.Error("failed to initialize builder", "error", err)
		return 1
	}

	if stopCmd, code := runQueryCommand(ctx, builder, opts, historyStore != nil, stdout); stopCmd {
		return code
	}

	if addr := cfg.Observability.MetricsAddress; addr != "" {
		server := NewObservabilityServer(addr, builder)
		if err := server.Start(ctx); err != nil {
			slog.Error("failed to start observability server", "addr", addr, "error", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(shutdownCtx)
		}()
	}

	if opts.watch {
		if err := builder.Watch(ctx); err != nil {
			slog.Error("watch mode failed", "error", err)
			return 1
		}
		return 0
	}

	if _, err := builder.Build(ctx); err != nil {
		return 1
	}
	return 0
}

// runQueryCommand serves the history query modes, which read recorded
// builds and never start one.
func runQueryCommand(ctx context.Context, builder *coreapp.Builder, opts cliOptions, historyEnabled bool, stdout io.Writer) (bool, int) {
	if opts.history <= 0 && opts.dependents == "" {
		return false, 0
	}
	if !historyEnabled {
		slog.Error("history queries require history.enabled = true")
		return true, 1
	}

	if opts.history > 0 {
		builds, err := builder.RecentBuilds(ctx, opts.history)
		if err != nil {
			slog.Error("failed to read build history", "error", err)
			return true, 1
		}
		if opts.historyJSON {
			data, err := report.RenderHistoryJSON(builds)
			if err != nil {
				slog.Error("failed to render build history", "error", err)
				return true, 1
			}
			fmt.Fprintln(stdout, string(data))
		} else {
			_, _ = stdout.Write(report.RenderHistoryTSV(builds))
		}
	}

	if opts.dependents != "" {
		fragments, err := builder.Dependents(ctx, opts.dependents)
		if err != nil {
			slog.Error("failed to query dependents", "dependency", opts.dependents, "error", err)
			return true, 1
		}
		fmt.Fprint(stdout, report.RenderDependents(opts.dependents, fragments))
	}
	return true, 0
}

func loadConfig(path, cwd string) (*config.Config, string, error) {
	if path == "" {
		found, err := config.FindConfig(cwd)
		if err != nil {
			return nil, "", err
		}
		path = found
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, "", err
	}
	config.ApplyEnvOverrides(cfg)
	return cfg, abs, nil
}

func applyModeOptions(opts cliOptions, cfg *config.Config) {
	if opts.noSplit {
		disabled := false
		cfg.Build.SplitScripts = &disabled
	}
}

func openHistoryStoreIfEnabled(cfg *config.Config, paths config.ResolvedPaths) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	return history.Open(paths.HistoryDB)
}

func flushTracing(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Warn("failed to flush traces", "error", err)
	}
}

func configureLogging(output io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}
