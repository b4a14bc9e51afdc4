// Package analyzer builds the dependency index of a project's fragments while
// exposing source files and discovered dependency files as two streams.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"polybuild/internal/core/errors"
	"polybuild/internal/core/ports"
	"polybuild/internal/engine/urlpath"
	"polybuild/internal/engine/vfs"
	"polybuild/internal/shared/observability"
	"polybuild/internal/shared/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	StreamSources      = "sources"
	StreamDependencies = "dependencies"

	defaultFetchConcurrency = 8
)

// WarningReporter receives the full warning set, sorted by severity, right
// before the completion decision.
type WarningReporter func(warnings []ports.Warning)

type Options struct {
	Project ports.ProjectConfig
	Parser  ports.DocumentParser
	Fetcher ports.DependencyFetcher
	// FetchConcurrency bounds concurrent dependency reads. Defaults to 8.
	FetchConcurrency int
	// Limiter optionally rate-limits dependency reads.
	Limiter  *util.Limiter
	Logger   *slog.Logger
	Reporter WarningReporter
}

// Analyzer owns one build's file registry, fragment worklist, warning set,
// deferred loads and dependency index. Create one per build.
type Analyzer struct {
	root       string
	project    ports.ProjectConfig
	parser     ports.DocumentParser
	fetcher    ports.DependencyFetcher
	limiter    *util.Limiter
	fetchSlots chan struct{}
	log        *slog.Logger
	report     WarningReporter
	loader     *URLLoader

	mu        sync.Mutex
	files     map[string]*vfs.File // url -> file
	pending   *DeferredTable
	worklist  map[string]bool // fragment urls not yet analyzed
	analyzing map[string]bool
	running   int
	parked    map[string]int      // fragment url -> loads parked on the deferred table
	parkedOn  map[string][]string // pending path -> fragments waiting on it
	requested map[string]bool // urls handed to the fetcher
	inflight  int
	warnings  map[ports.Warning]struct{}
	index     *DepsIndex
	counts    map[string]int
	started   bool
	inputDone bool
	finished  bool
	err       error

	sources *FileStream
	deps    *FileStream

	runCtx   context.Context
	cancel   context.CancelFunc
	failedCh chan struct{}
	doneCh   chan struct{}
}

func New(opts Options) (*Analyzer, error) {
	if opts.Project == nil {
		return nil, errors.New(errors.CodeValidationError, "analyzer requires a project config")
	}
	if opts.Parser == nil {
		return nil, errors.New(errors.CodeValidationError, "analyzer requires a document parser")
	}
	if opts.Fetcher == nil {
		return nil, errors.New(errors.CodeValidationError, "analyzer requires a dependency fetcher")
	}
	concurrency := opts.FetchConcurrency
	if concurrency <= 0 {
		concurrency = defaultFetchConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Analyzer{
		root:       filepath.Clean(opts.Project.Root()),
		project:    opts.Project,
		parser:     opts.Parser,
		fetcher:    opts.Fetcher,
		limiter:    opts.Limiter,
		fetchSlots: make(chan struct{}, concurrency),
		log:        logger,
		report:     opts.Reporter,
		files:      make(map[string]*vfs.File),
		pending:    NewDeferredTable(),
		worklist:   make(map[string]bool),
		analyzing:  make(map[string]bool),
		parked:     make(map[string]int),
		parkedOn:   make(map[string][]string),
		requested:  make(map[string]bool),
		warnings:   make(map[ports.Warning]struct{}),
		index:      NewDepsIndex(),
		counts:     make(map[string]int),
		sources:    newFileStream(StreamSources),
		deps:       newFileStream(StreamDependencies),
		failedCh:   make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	if a.report == nil {
		a.report = a.logWarnings
	}
	a.loader = &URLLoader{a: a}
	a.runCtx, a.cancel = context.WithCancel(context.Background())
	for _, fragment := range opts.Project.Fragments() {
		a.worklist[urlpath.Normalize(fragment)] = true
	}
	return a, nil
}

// Sources yields every file received from the file source, in arrival order.
func (a *Analyzer) Sources() *FileStream { return a.sources }

// Dependencies yields every fetched dependency file, each URL at most once.
func (a *Analyzer) Dependencies() *FileStream { return a.deps }

// Loader is the content loader handed to the document parser.
func (a *Analyzer) Loader() *URLLoader { return a.loader }

// Start begins consuming the file source. A nil input means no sources.
// Cancelling ctx before completion fails the build with the pending
// references named.
func (a *Analyzer) Start(ctx context.Context, input <-chan *vfs.File) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	if input == nil {
		a.inputDone = true
	}
	a.maybeCompleteLocked()
	a.checkStalledLocked()
	a.mu.Unlock()

	go a.watchContext(ctx)
	if input != nil {
		go a.consumeSources(ctx, input)
	}
}

func (a *Analyzer) watchContext(ctx context.Context) {
	select {
	case <-ctx.Done():
		a.mu.Lock()
		a.failAfterReportLocked(a.interruptedErrorLocked(ctx.Err()))
		a.mu.Unlock()
	case <-a.doneCh:
	}
}

func (a *Analyzer) consumeSources(ctx context.Context, input <-chan *vfs.File) {
	for {
		select {
		case file, ok := <-input:
			if !ok {
				a.mu.Lock()
				a.inputDone = true
				if a.finished && a.err == nil {
					a.sources.close(nil)
				}
				a.checkStalledLocked()
				a.mu.Unlock()
				return
			}
			a.mu.Lock()
			a.registerLocked(file, a.sources)
			a.mu.Unlock()
		case <-a.failedCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RegisterFile inserts or replaces a registry entry and answers any load
// waiting on it. Files registered this way appear on neither stream.
func (a *Analyzer) RegisterFile(file *vfs.File) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registerLocked(file, nil)
}

func (a *Analyzer) registerLocked(file *vfs.File, stream *FileStream) error {
	if a.finished && a.err != nil {
		return a.err
	}
	path := filepath.Clean(file.Path)
	url := urlpath.URLFromPath(a.root, path)
	a.files[url] = file

	streamName := "injected"
	if stream != nil {
		streamName = stream.Name()
	}
	a.counts[streamName]++
	observability.FilesRegisteredTotal.WithLabelValues(streamName).Inc()
	a.log.Debug("registered file", "stream", streamName, "url", url)

	if a.pending.Has(path) {
		if err := a.pending.Resolve(path, string(file.Contents)); err != nil {
			a.failLocked(err)
			return err
		}
		a.releaseParkedLocked(path)
		observability.DeferredLoadsPending.Set(float64(a.pending.Len()))
	}
	if stream != nil {
		stream.push(file)
	}
	if a.worklist[url] && !a.analyzing[url] {
		a.analyzing[url] = true
		a.running++
		go a.analyzeFragment(url)
	}
	return nil
}

func (a *Analyzer) analyzeFragment(url string) {
	ctx, span := observability.Tracer.Start(withFragment(a.runCtx, url), "analyzer.analyzeFragment",
		trace.WithAttributes(attribute.String("fragment", url)))
	defer span.End()

	start := time.Now()
	a.log.Debug("analyzing fragment", "url", url)
	result, err := a.parser.Analyze(ctx, url, a.loader)
	observability.FragmentAnalysisDuration.Observe(time.Since(start).Seconds())

	a.mu.Lock()
	defer a.mu.Unlock()
	a.running--
	if a.finished {
		return
	}
	if err != nil {
		span.RecordError(err)
		a.failLocked(errors.AddContext(errors.Wrap(err, errors.CodeInternal, "analyze fragment"), errors.CtxURL, url))
		return
	}

	for _, w := range result.Warnings {
		a.warnings[w] = struct{}{}
	}
	var deps DocumentDeps
	for _, ref := range result.References {
		if urlpath.IsExternal(ref.URL) {
			a.log.Debug("ignoring external dependency", "fragment", url, "url", ref.URL)
			continue
		}
		deps.add(ref)
	}
	if err := a.completeFragmentLocked(url, deps); err != nil {
		a.failLocked(err)
		return
	}
	a.maybeCompleteLocked()
	a.checkStalledLocked()
}

func (a *Analyzer) completeFragmentLocked(url string, deps DocumentDeps) error {
	if !a.worklist[url] {
		reason := "is not a fragment"
		if a.project.IsFragment(url) {
			reason = "was already analyzed"
		}
		return errors.AddContext(
			errors.New(errors.CodeProtocolMisuse, fmt.Sprintf("fragment %s %s", url, reason)),
			errors.CtxURL, url,
		)
	}
	delete(a.worklist, url)
	if err := a.index.Add(url, deps); err != nil {
		return err
	}
	a.log.Debug("fragment analyzed", "url", url,
		"imports", len(deps.Imports), "scripts", len(deps.Scripts), "styles", len(deps.Styles),
		"remaining", len(a.worklist))
	return nil
}

// PushDependency asks for url to be read from the backing store and emitted
// on the dependency stream. URLs already registered, already requested, or
// matching a source glob are ignored, as are external URLs.
func (a *Analyzer) PushDependency(url string) {
	if urlpath.IsExternal(url) {
		a.log.Debug("ignoring external dependency", "url", url)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pushDependencyLocked(a.canonicalURL(url))
}

// canonicalURL is the registry key for url: percent-escapes decoded,
// separators normalized, root-relative.
func (a *Analyzer) canonicalURL(url string) string {
	return urlpath.URLFromPath(a.root, urlpath.PathFromURL(a.root, url))
}

func (a *Analyzer) pushDependencyLocked(url string) {
	if a.finished {
		a.log.Warn("dependency pushed after analysis finished", "url", url)
		return
	}
	if _, ok := a.files[url]; ok {
		return
	}
	if a.requested[url] {
		return
	}
	if a.project.IsSource(url) {
		a.log.Debug("dependency matches sources, awaiting source stream", "url", url)
		return
	}
	a.requested[url] = true
	a.inflight++
	path := urlpath.PathFromURL(a.root, url)
	a.log.Debug("pushing dependency", "url", url, "path", path)
	observability.DependencyFetchesTotal.Inc()
	go a.fetch(url, path)
}

func (a *Analyzer) fetch(url, path string) {
	select {
	case a.fetchSlots <- struct{}{}:
	case <-a.runCtx.Done():
		a.fetchDone()
		return
	}
	defer func() { <-a.fetchSlots }()

	if a.limiter != nil {
		if err := a.limiter.Wait(a.runCtx, 1); err != nil {
			a.fetchDone()
			return
		}
	}

	start := time.Now()
	file, err := a.fetcher.Fetch(a.runCtx, path)
	observability.DependencyFetchDuration.Observe(time.Since(start).Seconds())

	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight--
	if a.finished {
		return
	}
	if err != nil {
		a.log.Error("failed to load dependency", "url", url, "error", err)
		a.failLocked(errors.AddContext(errors.Wrap(err, errors.CodeIO, "load dependency"), errors.CtxURL, url))
		return
	}
	if err := a.registerLocked(file, a.deps); err != nil {
		return
	}
	a.maybeCompleteLocked()
	a.checkStalledLocked()
}

func (a *Analyzer) fetchDone() {
	a.mu.Lock()
	a.inflight--
	a.mu.Unlock()
}

// maybeCompleteLocked evaluates completion once the worklist is empty and no
// fetch is in flight. Error warnings win over unresolved references.
func (a *Analyzer) maybeCompleteLocked() {
	if !a.started || a.finished || len(a.worklist) > 0 || a.inflight > 0 {
		return
	}

	if !a.pending.IsEmpty() {
		a.failAfterReportLocked(a.unresolvedErrorLocked())
		return
	}
	warnings := a.sortedWarningsLocked()
	a.report(warnings)
	if err := analysisError(warnings); err != nil {
		a.failLocked(err)
		return
	}

	a.finished = true
	a.deps.close(nil)
	if a.inputDone {
		a.sources.close(nil)
	}
	close(a.doneCh)
	a.cancel()
	a.log.Debug("dependency analysis complete", "fragments", len(a.index.FragmentToFullDeps), "files", len(a.files))
}

// checkStalledLocked fails a build that can no longer make progress: the
// source input is exhausted, no fetch is in flight and every running
// fragment analysis is parked on a load that nothing will answer.
func (a *Analyzer) checkStalledLocked() {
	if !a.started || a.finished || !a.inputDone || a.inflight > 0 {
		return
	}
	if a.running > len(a.parked) {
		return
	}
	if !a.pending.IsEmpty() {
		a.failAfterReportLocked(a.unresolvedErrorLocked())
		return
	}
	if a.running == 0 && len(a.worklist) > 0 {
		missing := util.SortedStringKeys(a.worklist)
		for _, u := range missing {
			a.log.Error("fragment never arrived", "url", u)
		}
		err := errors.New(errors.CodeUnresolvedReference, fmt.Sprintf("%d fragment(s) not found", len(missing)))
		err = errors.AddContext(err, errors.CtxCount, len(missing))
		a.failAfterReportLocked(errors.AddContext(err, errors.CtxURL, missing))
	}
}

// failAfterReportLocked reports the warning set, then fails the build. Any
// error-severity warning takes precedence over cause.
func (a *Analyzer) failAfterReportLocked(cause error) {
	if a.finished {
		return
	}
	warnings := a.sortedWarningsLocked()
	a.report(warnings)
	if err := analysisError(warnings); err != nil {
		cause = err
	}
	a.failLocked(cause)
}

func analysisError(warnings []ports.Warning) error {
	count := 0
	for _, w := range warnings {
		if w.Severity == ports.SeverityError {
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return errors.AddContext(
		errors.New(errors.CodeAnalysisErrors, fmt.Sprintf("%d error(s) found during dependency analysis", count)),
		errors.CtxCount, count,
	)
}

func (a *Analyzer) unresolvedErrorLocked() error {
	pending := a.pending.Pending()
	urls := make([]string, 0, len(pending))
	for _, path := range pending {
		u := urlpath.URLFromPath(a.root, path)
		a.log.Error("unresolved reference", "url", u)
		urls = append(urls, u)
	}
	err := errors.New(errors.CodeUnresolvedReference, fmt.Sprintf("%d unresolved reference(s)", len(urls)))
	err = errors.AddContext(err, errors.CtxCount, len(urls))
	return errors.AddContext(err, errors.CtxURL, urls)
}

func (a *Analyzer) interruptedErrorLocked(cause error) error {
	if !a.pending.IsEmpty() {
		return a.unresolvedErrorLocked()
	}
	return errors.Wrap(cause, errors.CodeInternal, "dependency analysis interrupted")
}

func (a *Analyzer) failLocked(err error) {
	if a.finished {
		return
	}
	a.finished = true
	a.err = err
	a.log.Error("dependency analysis failed", "error", err)
	a.deps.close(err)
	a.sources.close(err)
	close(a.failedCh)
	close(a.doneCh)
	a.cancel()
}

// Wait blocks until analysis finishes and returns the dependency index.
func (a *Analyzer) Wait(ctx context.Context) (*DepsIndex, error) {
	select {
	case <-a.doneCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.index, nil
}

// Err returns the build error, if the build failed.
func (a *Analyzer) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// GetFile looks up a registered file by absolute path.
func (a *Analyzer) GetFile(path string) (*vfs.File, bool) {
	return a.GetFileByURL(urlpath.URLFromPath(a.root, path))
}

// GetFileByURL looks up a registered file by root-relative URL.
func (a *Analyzer) GetFileByURL(url string) (*vfs.File, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	file, ok := a.files[a.canonicalURL(url)]
	return file, ok
}

// Warnings returns the collected warnings, most severe first.
func (a *Analyzer) Warnings() []ports.Warning {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sortedWarningsLocked()
}

// Count returns how many files were registered through the named stream.
func (a *Analyzer) Count(stream string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[stream]
}

func (a *Analyzer) sortedWarningsLocked() []ports.Warning {
	out := make([]ports.Warning, 0, len(a.warnings))
	for w := range a.warnings {
		out = append(out, w)
	}
	SortWarnings(out)
	return out
}

func (a *Analyzer) logWarnings(warnings []ports.Warning) {
	for _, w := range warnings {
		level := slog.LevelInfo
		switch w.Severity {
		case ports.SeverityError:
			level = slog.LevelError
		case ports.SeverityWarning:
			level = slog.LevelWarn
		}
		a.log.Log(context.Background(), level, w.Message, "location", w.Location.String())
	}
}

// SortWarnings orders warnings by severity (errors first), then location.
func SortWarnings(warnings []ports.Warning) {
	sort.Slice(warnings, func(i, j int) bool {
		wi, wj := warnings[i], warnings[j]
		if wi.Severity != wj.Severity {
			return wi.Severity > wj.Severity
		}
		if wi.Location.URL != wj.Location.URL {
			return wi.Location.URL < wj.Location.URL
		}
		if wi.Location.Line != wj.Location.Line {
			return wi.Location.Line < wj.Location.Line
		}
		if wi.Location.Column != wj.Location.Column {
			return wi.Location.Column < wj.Location.Column
		}
		return wi.Message < wj.Message
	})
}

func buildClosedError(url string) error {
	return errors.AddContext(
		errors.New(errors.CodeProtocolMisuse, "load requested after dependency analysis finished"),
		errors.CtxURL, url,
	)
}
