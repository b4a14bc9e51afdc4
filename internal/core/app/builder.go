// Package app wires configuration, sources, the dependency analyzer and the
// split/rejoin stages into a complete build.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"polybuild/internal/core/config"
	"polybuild/internal/core/ports"
	"polybuild/internal/data/sources"
	"polybuild/internal/engine/analyzer"
	"polybuild/internal/engine/parser"
	"polybuild/internal/engine/split"
	"polybuild/internal/engine/vfs"
	"polybuild/internal/shared/observability"
	"polybuild/internal/shared/util"
	"polybuild/internal/ui/report"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ScriptTransform rewrites one file between the split and rejoin stages.
// Synthetic script files and carriers both pass through it.
type ScriptTransform func(ctx context.Context, file *vfs.File) (*vfs.File, error)

type Options struct {
	// ConfigPath enables config reloads in watch mode.
	ConfigPath string
	Logger     *slog.Logger
	// Output receives rendered warnings and summaries. Nil logs them instead.
	Output    io.Writer
	History   ports.HistoryStore
	Transform ScriptTransform
}

// BuildResult describes one finished build, successful or not.
type BuildResult struct {
	ID           string
	Status       string
	StartedAt    time.Time
	Duration     time.Duration
	Fragments    int
	Sources      int
	Dependencies int
	Outputs      int
	Warnings     []ports.Warning
	Index        *analyzer.DepsIndex
	Err          error
}

func (r *BuildResult) Summary() report.Summary {
	return report.Summary{
		ID:           r.ID,
		Status:       r.Status,
		Duration:     r.Duration,
		Fragments:    r.Fragments,
		Sources:      r.Sources,
		Dependencies: r.Dependencies,
		Outputs:      r.Outputs,
		Warnings:     r.Warnings,
		Err:          r.Err,
	}
}

// buildSetup is everything derived from one configuration. It is swapped as
// a whole when the configuration reloads.
type buildSetup struct {
	cfg       *config.Config
	project   *config.Project
	parser    *parser.DocumentParser
	finder    *parser.ScriptRegionFinder
	scanner   *sources.Scanner
	transform ScriptTransform
}

type Builder struct {
	base       string
	configPath string
	fetcher    *sources.Fetcher
	history    ports.HistoryStore
	transform  ScriptTransform
	out        io.Writer
	log        *slog.Logger

	mu    sync.Mutex
	setup *buildSetup
	// building serializes builds; watch mode never overlaps two.
	building sync.Mutex
	last     *BuildResult
}

// NewBuilder prepares builds of cfg. base is the directory cfg was loaded
// from; relative paths in cfg resolve against it.
func NewBuilder(cfg *config.Config, base string, opts Options) (*Builder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fetcher, err := sources.NewFetcher(cfg.Cache.Files)
	if err != nil {
		return nil, err
	}
	b := &Builder{
		base:       base,
		configPath: opts.ConfigPath,
		fetcher:    fetcher,
		history:    opts.History,
		transform:  opts.Transform,
		out:        opts.Output,
		log:        logger,
	}
	setup, err := b.prepare(cfg)
	if err != nil {
		return nil, err
	}
	b.setup = setup
	return b, nil
}

func (b *Builder) prepare(cfg *config.Config) (*buildSetup, error) {
	project, err := cfg.Project(b.base)
	if err != nil {
		return nil, err
	}
	registry, err := parser.BuildLanguageRegistry(cfg.LanguageOverrides())
	if err != nil {
		return nil, err
	}
	grammars, err := parser.NewGrammarLoader(registry)
	if err != nil {
		return nil, err
	}
	finder, err := parser.NewScriptRegionFinder(grammars)
	if err != nil {
		return nil, err
	}
	return &buildSetup{
		cfg:       cfg,
		project:   project,
		parser:    parser.NewDocumentParser(grammars, b.log),
		finder:    finder,
		scanner:   sources.NewScanner(project, b.fetcher, b.log),
		transform: b.transform,
	}, nil
}

// Reload swaps in a new configuration for subsequent builds.
func (b *Builder) Reload(cfg *config.Config) error {
	setup, err := b.prepare(cfg)
	if err != nil {
		return err
	}
	b.mu.Lock()
	previous := b.setup
	b.setup = setup
	b.mu.Unlock()
	if previous.project.Root() != setup.project.Root() {
		b.log.Warn("project root changed; restart watch mode to watch the new root",
			"old", previous.project.Root(), "new", setup.project.Root())
	}
	return nil
}

func (b *Builder) current() *buildSetup {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setup
}

func (b *Builder) Project() *config.Project { return b.current().project }

func (b *Builder) Config() *config.Config { return b.current().cfg }

// Build runs one complete build. The returned error is the build failure, if
// any; the result is always non-nil and carries the same error in Err.
func (b *Builder) Build(ctx context.Context) (*BuildResult, error) {
	b.building.Lock()
	defer b.building.Unlock()

	setup := b.current()
	result := &BuildResult{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    ports.BuildFailed,
	}
	log := b.log.With("build_id", result.ID)

	ctx, span := observability.Tracer.Start(ctx, "app.Build",
		trace.WithAttributes(attribute.String("build_id", result.ID)))
	defer span.End()

	err := b.run(ctx, setup, result, log)
	result.Duration = time.Since(result.StartedAt)
	result.Err = err
	if err == nil {
		result.Status = ports.BuildSucceeded
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.String("status", result.Status),
		attribute.Int("sources", result.Sources),
		attribute.Int("dependencies", result.Dependencies),
	)
	observability.BuildDuration.WithLabelValues(result.Status).Observe(result.Duration.Seconds())
	observability.BuildsTotal.WithLabelValues(result.Status).Inc()

	b.recordHistory(ctx, setup, result, log)
	b.printSummary(result)
	b.mu.Lock()
	b.last = result
	b.mu.Unlock()

	if err != nil {
		log.Error("build failed", "duration", result.Duration, "error", err)
	} else {
		log.Info("build succeeded", "duration", result.Duration,
			"sources", result.Sources, "dependencies", result.Dependencies, "outputs", result.Outputs)
	}
	return result, err
}

func (b *Builder) run(ctx context.Context, setup *buildSetup, result *BuildResult, log *slog.Logger) error {
	cfg := setup.cfg
	if cfg.Build.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Build.Timeout)
		defer cancel()
	}

	an, err := analyzer.New(analyzer.Options{
		Project:          setup.project,
		Parser:           setup.parser,
		Fetcher:          b.fetcher,
		FetchConcurrency: cfg.Build.FetchConcurrency,
		Limiter:          util.NewLimiter(cfg.Build.FetchRate, cfg.Build.FetchBurst),
		Logger:           log,
		Reporter:         b.reportWarnings(log),
	})
	if err != nil {
		return err
	}

	extras, err := setup.scanner.ExtraDependencies(ctx)
	if err != nil {
		return err
	}
	for _, url := range extras {
		an.PushDependency(url)
	}

	g, gctx := errgroup.WithContext(ctx)
	input := make(chan *vfs.File)
	an.Start(gctx, input)

	g.Go(func() error {
		return setup.scanner.Scan(gctx, input)
	})
	var outputs outputCounter
	for _, stream := range []*analyzer.FileStream{an.Sources(), an.Dependencies()} {
		g.Go(func() error {
			return b.runStream(gctx, setup, stream, &outputs, log)
		})
	}
	g.Go(func() error {
		index, err := an.Wait(gctx)
		if err != nil {
			return err
		}
		result.Index = index
		return writeManifest(setup.project.Paths().Manifest, index)
	})

	err = g.Wait()
	// The analyzer's own failure explains a build better than the context
	// cancellation it caused in sibling stages.
	if buildErr := an.Err(); buildErr != nil {
		err = buildErr
	}

	result.Warnings = an.Warnings()
	result.Sources = an.Count(analyzer.StreamSources)
	result.Dependencies = an.Count(analyzer.StreamDependencies)
	result.Fragments = len(setup.project.Fragments())
	result.Outputs = outputs.load()
	if err != nil {
		result.Index = nil
		return err
	}
	return nil
}

func (b *Builder) reportWarnings(log *slog.Logger) analyzer.WarningReporter {
	if b.out == nil {
		return nil
	}
	return func(warnings []ports.Warning) {
		if rendered := report.RenderWarnings(warnings); rendered != "" {
			if _, err := io.WriteString(b.out, rendered); err != nil {
				log.Warn("failed to print warnings", "error", err)
			}
		}
	}
}

func (b *Builder) printSummary(result *BuildResult) {
	if b.out == nil {
		return
	}
	fmt.Fprint(b.out, report.RenderSummary(result.Summary()))
}

func (b *Builder) stages(setup *buildSetup) (*split.Splitter, *split.Rejoiner) {
	registry := split.NewRegistry()
	return split.NewSplitter(setup.finder, registry, b.log), split.NewRejoiner(setup.finder, registry, b.log)
}
