package analyzer

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"polybuild/internal/core/config"
	"polybuild/internal/core/errors"
	"polybuild/internal/core/ports"
	"polybuild/internal/engine/vfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoot = "/proj"

type testProject struct {
	fragments []string
	sources   []string
}

func (p testProject) Root() string       { return testRoot }
func (p testProject) Entrypoint() string { return p.fragments[0] }
func (p testProject) Shell() string      { return "" }

func (p testProject) Fragments() []string {
	return append([]string(nil), p.fragments...)
}

func (p testProject) IsFragment(url string) bool {
	for _, f := range p.fragments {
		if f == url {
			return true
		}
	}
	return false
}

func (p testProject) IsSource(url string) bool {
	for _, pattern := range p.sources {
		if ok, _ := path.Match(pattern, url); ok {
			return true
		}
	}
	return false
}

// fakeParser loads every declared reference, following imports, and reports
// the whole closure.
type fakeParser struct {
	refs     map[string][]ports.Reference
	warnings map[string][]ports.Warning
}

func (p *fakeParser) Analyze(ctx context.Context, url string, loader ports.URLLoader) (ports.Analysis, error) {
	out := ports.Analysis{Warnings: p.warnings[url]}
	seen := map[string]bool{url: true}
	var visit func(string) error
	visit = func(u string) error {
		for _, ref := range p.refs[u] {
			if seen[ref.URL] {
				continue
			}
			seen[ref.URL] = true
			if _, err := loader.Load(ctx, ref.URL); err != nil {
				return err
			}
			out.References = append(out.References, ref)
			if ref.Kind == ports.KindImport {
				if err := visit(ref.URL); err != nil {
					return err
				}
			}
		}
		return nil
	}
	err := visit(url)
	return out, err
}

type fakeFetcher struct {
	mu       sync.Mutex
	contents map[string]string
	calls    map[string]int
	fail     map[string]bool
	block    chan struct{}
}

func newFakeFetcher(contents map[string]string) *fakeFetcher {
	return &fakeFetcher{contents: contents, calls: make(map[string]int), fail: make(map[string]bool)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, p string) (*vfs.File, error) {
	f.mu.Lock()
	f.calls[p]++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	url := filepath.ToSlash(mustRel(p))
	if f.fail[url] {
		return nil, fmt.Errorf("read %s: permission denied", p)
	}
	body, ok := f.contents[url]
	if !ok {
		return nil, fmt.Errorf("read %s: no such file", p)
	}
	return vfs.NewFile(p, []byte(body)), nil
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[abs(url)]
}

func abs(url string) string {
	return filepath.Join(testRoot, filepath.FromSlash(url))
}

func mustRel(p string) string {
	rel, err := filepath.Rel(testRoot, p)
	if err != nil {
		panic(err)
	}
	return rel
}

func sourceChan(files map[string]string, order ...string) chan *vfs.File {
	ch := make(chan *vfs.File, len(order))
	for _, url := range order {
		ch <- vfs.NewFile(abs(url), []byte(files[url]))
	}
	close(ch)
	return ch
}

func imp(url string) ports.Reference { return ports.Reference{URL: url, Kind: ports.KindImport} }

func newTestAnalyzer(t *testing.T, project testProject, parser *fakeParser, fetcher *fakeFetcher) *Analyzer {
	t.Helper()
	a, err := New(Options{
		Project:  project,
		Parser:   parser,
		Fetcher:  fetcher,
		Reporter: func([]ports.Warning) {},
	})
	require.NoError(t, err)
	return a
}

func urlsOf(files []*vfs.File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, filepath.ToSlash(mustRel(f.Path)))
	}
	return out
}

func TestAnalyzer_ShellImportIsOnlyDependency(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html", "shell.html"}, sources: []string{"*.html"}}
	parser := &fakeParser{refs: map[string][]ports.Reference{
		"shell.html": {imp("bower_components/dep.html")},
	}}
	fetcher := newFakeFetcher(map[string]string{"bower_components/dep.html": "<dep>"})
	a := newTestAnalyzer(t, project, parser, fetcher)

	files := map[string]string{"index.html": "<index>", "shell.html": "<shell>"}
	a.Start(ctx, sourceChan(files, "index.html", "shell.html"))
	a.Sources().Start()
	a.Dependencies().Start()

	deps, err := a.Dependencies().Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bower_components/dep.html"}, urlsOf(deps))

	sources, err := a.Sources().Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html", "shell.html"}, urlsOf(sources))

	index, err := a.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html", "shell.html"}, index.Fragments())
	assert.Equal(t, []string{"bower_components/dep.html"}, index.FragmentToDeps["shell.html"])
	assert.Empty(t, index.FragmentToDeps["index.html"])
	assert.Equal(t, []string{"shell.html"}, index.DepsToFragments["bower_components/dep.html"])
	assert.Equal(t, 1, a.Count(StreamDependencies))
	assert.Equal(t, 2, a.Count(StreamSources))
}

func TestAnalyzer_SourceGlobDependencyNeverEmitted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html", "src/*.html"}}
	parser := &fakeParser{refs: map[string][]ports.Reference{
		"index.html": {imp("src/late.html")},
	}}
	fetcher := newFakeFetcher(nil)
	a := newTestAnalyzer(t, project, parser, fetcher)

	input := make(chan *vfs.File, 2)
	input <- vfs.NewFile(abs("index.html"), []byte("<index>"))
	a.Start(ctx, input)
	a.Dependencies().Start()

	// the deferred load resolves only when the source arrives
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.pending.Has(abs("src/late.html"))
	}, 2*time.Second, 5*time.Millisecond)
	input <- vfs.NewFile(abs("src/late.html"), []byte("<late>"))
	close(input)

	deps, err := a.Dependencies().Collect(ctx)
	require.NoError(t, err)
	assert.Empty(t, deps)
	assert.Equal(t, 0, fetcher.callCount("src/late.html"))

	index, err := a.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/late.html"}, index.FragmentToDeps["index.html"])
}

func TestAnalyzer_SharedDependencyFetchedOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"a.html", "b.html"}, sources: []string{"*.html"}}
	parser := &fakeParser{refs: map[string][]ports.Reference{
		"a.html":          {imp("lib/common.html")},
		"b.html":          {imp("lib/common.html"), {URL: "lib/app.js", Kind: ports.KindScript}},
		"lib/common.html": {{URL: "lib/style.css", Kind: ports.KindStyle}},
	}}
	fetcher := newFakeFetcher(map[string]string{
		"lib/common.html": "<common>",
		"lib/app.js":      "app()",
		"lib/style.css":   "body{}",
	})
	fetcher.block = make(chan struct{})
	a := newTestAnalyzer(t, project, parser, fetcher)

	files := map[string]string{"a.html": "", "b.html": ""}
	a.Start(ctx, sourceChan(files, "a.html", "b.html"))
	a.Dependencies().Start()

	// hold the fetch until both fragments are parked on common.html
	require.Eventually(t, func() bool {
		a.mu.Lock()
		parked := len(a.parkedOn[abs("lib/common.html")])
		a.mu.Unlock()
		return parked == 2 && fetcher.callCount("lib/common.html") == 1
	}, 2*time.Second, 5*time.Millisecond)
	close(fetcher.block)

	deps, err := a.Dependencies().Collect(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"lib/common.html", "lib/app.js", "lib/style.css"}, urlsOf(deps))
	assert.Equal(t, 1, fetcher.callCount("lib/common.html"))

	index, err := a.Wait(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.html", "b.html"}, index.DepsToFragments["lib/common.html"])
	assert.Equal(t, DocumentDeps{
		Imports: []string{"lib/common.html"},
		Scripts: []string{"lib/app.js"},
		Styles:  []string{"lib/style.css"},
	}, index.FragmentToFullDeps["b.html"])
}

func TestAnalyzer_ExternalReferencesExcluded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html"}}
	parser := &fakeParser{refs: map[string][]ports.Reference{
		"index.html": {
			{URL: "https://cdn.example.com/lib.js", Kind: ports.KindScript},
			{URL: "//fonts.example.com/font.css", Kind: ports.KindStyle},
		},
	}}
	fetcher := newFakeFetcher(nil)
	a := newTestAnalyzer(t, project, parser, fetcher)
	a.Start(ctx, sourceChan(map[string]string{"index.html": ""}, "index.html"))

	index, err := a.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, DocumentDeps{}, index.FragmentToFullDeps["index.html"])
	assert.Empty(t, fetcher.calls)
}

func TestAnalyzer_ErrorWarningsFailBeforeUnresolved(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html"}}
	bad := ports.Warning{Severity: ports.SeverityError, Message: "unexpected token", Location: ports.Location{URL: "index.html", Line: 3, Column: 1}}
	minor := ports.Warning{Severity: ports.SeverityWarning, Message: "missing tag", Location: ports.Location{URL: "index.html", Line: 1, Column: 1}}
	parser := &fakeParser{warnings: map[string][]ports.Warning{"index.html": {minor, bad, bad}}}
	var reported []ports.Warning
	a, err := New(Options{
		Project:  project,
		Parser:   parser,
		Fetcher:  newFakeFetcher(nil),
		Reporter: func(w []ports.Warning) { reported = w },
	})
	require.NoError(t, err)
	// a parked load that will never resolve
	a.mu.Lock()
	a.pending.Create(abs("ghost.html"))
	a.requested["ghost.html"] = true
	a.mu.Unlock()

	a.Start(ctx, sourceChan(map[string]string{"index.html": ""}, "index.html"))
	a.Dependencies().Start()

	_, err = a.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAnalysisErrors))
	count, ok := errors.ContextValue(err, errors.CtxCount)
	require.True(t, ok)
	assert.Equal(t, 1, count)
	assert.Equal(t, []ports.Warning{bad, minor}, reported)

	_, err = a.Dependencies().Collect(ctx)
	assert.True(t, errors.IsCode(err, errors.CodeAnalysisErrors))
}

func TestAnalyzer_WarningsOnlyStillSucceed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html"}}
	w := ports.Warning{Severity: ports.SeverityWarning, Message: "missing tag", Location: ports.Location{URL: "index.html"}}
	parser := &fakeParser{warnings: map[string][]ports.Warning{"index.html": {w}}}
	a := newTestAnalyzer(t, project, parser, newFakeFetcher(nil))
	a.Start(ctx, sourceChan(map[string]string{"index.html": ""}, "index.html"))

	_, err := a.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ports.Warning{w}, a.Warnings())
}

func TestAnalyzer_FetchErrorFailsBothStreams(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html"}}
	parser := &fakeParser{refs: map[string][]ports.Reference{"index.html": {imp("lib/missing.html")}}}
	fetcher := newFakeFetcher(map[string]string{})
	fetcher.fail["lib/missing.html"] = true
	a := newTestAnalyzer(t, project, parser, fetcher)

	input := make(chan *vfs.File, 1)
	input <- vfs.NewFile(abs("index.html"), nil)
	a.Start(ctx, input)
	a.Sources().Start()
	a.Dependencies().Start()

	_, err := a.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeIO))

	_, err = a.Sources().Collect(ctx)
	assert.True(t, errors.IsCode(err, errors.CodeIO))
	_, err = a.Dependencies().Collect(ctx)
	assert.True(t, errors.IsCode(err, errors.CodeIO))
}

func TestAnalyzer_ExtraDependencyPushedBeforeStart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html"}}
	fetcher := newFakeFetcher(map[string]string{"assets/logo.svg": "<svg/>"})
	a := newTestAnalyzer(t, project, &fakeParser{}, fetcher)

	a.PushDependency("assets/logo.svg")
	a.PushDependency("./assets/logo.svg")
	a.PushDependency("index.html")
	a.Start(ctx, sourceChan(map[string]string{"index.html": ""}, "index.html"))
	a.Dependencies().Start()

	deps, err := a.Dependencies().Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"assets/logo.svg"}, urlsOf(deps))
	assert.Equal(t, 1, fetcher.callCount("assets/logo.svg"))

	file, ok := a.GetFileByURL("assets/logo.svg")
	require.True(t, ok)
	assert.Equal(t, "<svg/>", file.String())
}

func TestAnalyzer_MissingSourceDependencyFailsWhenInputEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html"}}
	parser := &fakeParser{refs: map[string][]ports.Reference{"index.html": {imp("never.html")}}}
	a := newTestAnalyzer(t, project, parser, newFakeFetcher(nil))
	a.Start(ctx, sourceChan(map[string]string{"index.html": ""}, "index.html"))

	_, err := a.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnresolvedReference))
	urls, ok := errors.ContextValue(err, errors.CtxURL)
	require.True(t, ok)
	assert.Equal(t, []string{"never.html"}, urls)
}

func TestAnalyzer_MissingFragmentFailsWhenInputEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html", "shell.html"}, sources: []string{"*.html"}}
	a := newTestAnalyzer(t, project, &fakeParser{}, newFakeFetcher(nil))
	a.Start(ctx, sourceChan(map[string]string{"index.html": ""}, "index.html"))

	_, err := a.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnresolvedReference))
}

func TestAnalyzer_DeadlineNamesPendingURLs(t *testing.T) {
	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html"}}
	parser := &fakeParser{refs: map[string][]ports.Reference{"index.html": {imp("slow/dep.html")}}}
	fetcher := newFakeFetcher(map[string]string{"slow/dep.html": ""})
	fetcher.block = make(chan struct{})
	a := newTestAnalyzer(t, project, parser, fetcher)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	input := make(chan *vfs.File, 1)
	input <- vfs.NewFile(abs("index.html"), nil)
	a.Start(ctx, input)

	_, err := a.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnresolvedReference))
	urls, _ := errors.ContextValue(err, errors.CtxURL)
	assert.Equal(t, []string{"slow/dep.html"}, urls)
}

func TestAnalyzer_LoadAfterFinishIsRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html"}}
	a := newTestAnalyzer(t, project, &fakeParser{}, newFakeFetcher(nil))
	a.Start(ctx, sourceChan(map[string]string{"index.html": "hello"}, "index.html"))
	_, err := a.Wait(ctx)
	require.NoError(t, err)

	contents, err := a.Loader().Load(ctx, "index.html")
	require.NoError(t, err)
	assert.Equal(t, "hello", contents)

	_, err = a.Loader().Load(ctx, "late.html")
	assert.True(t, errors.IsCode(err, errors.CodeProtocolMisuse))

	contents, err = a.Loader().Load(ctx, "https://example.com/x.html")
	require.NoError(t, err)
	assert.Empty(t, contents)
}

func TestAnalyzer_RegisterFileResolvesDeferredLoad(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html", "parts/*.html"}}
	a := newTestAnalyzer(t, project, &fakeParser{}, newFakeFetcher(nil))

	result := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			contents, err := a.Loader().Load(ctx, "parts/nav.html")
			if err != nil {
				result <- "error: " + err.Error()
				return
			}
			result <- contents
		}()
	}
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.pending.Has(abs("parts/nav.html"))
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, a.RegisterFile(vfs.NewFile(abs("parts/nav.html"), []byte("<nav>"))))
	assert.Equal(t, "<nav>", <-result)
	assert.Equal(t, "<nav>", <-result)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	if !errors.IsCode(err, errors.CodeValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAnalyzer_ErrorWarningsWinOverStalledSourceLoad(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"a.html", "b.html"}, sources: []string{"*.html", "src/*.html"}}
	bad := ports.Warning{Severity: ports.SeverityError, Message: "unexpected token", Location: ports.Location{URL: "a.html", Line: 1, Column: 1}}
	parser := &fakeParser{
		refs:     map[string][]ports.Reference{"b.html": {imp("src/never.html")}},
		warnings: map[string][]ports.Warning{"a.html": {bad}},
	}
	var (
		mu       sync.Mutex
		reported []ports.Warning
	)
	a, err := New(Options{
		Project: project,
		Parser:  parser,
		Fetcher: newFakeFetcher(nil),
		Reporter: func(w []ports.Warning) {
			mu.Lock()
			defer mu.Unlock()
			reported = w
		},
	})
	require.NoError(t, err)
	a.Start(ctx, sourceChan(map[string]string{"a.html": "", "b.html": ""}, "b.html", "a.html"))

	_, err = a.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAnalysisErrors), "got %v", err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ports.Warning{bad}, reported)
}

func TestAnalyzer_StalledBuildReportsWarnings(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html"}}
	minor := ports.Warning{Severity: ports.SeverityWarning, Message: "missing tag", Location: ports.Location{URL: "index.html"}}
	parser := &fakeParser{
		refs:     map[string][]ports.Reference{"index.html": {imp("never.html")}},
		warnings: map[string][]ports.Warning{"index.html": {minor}},
	}
	reported := make(chan []ports.Warning, 1)
	a, err := New(Options{
		Project:  project,
		Parser:   parser,
		Fetcher:  newFakeFetcher(nil),
		Reporter: func(w []ports.Warning) { reported <- w },
	})
	require.NoError(t, err)
	a.Start(ctx, sourceChan(map[string]string{"index.html": ""}, "index.html"))

	_, err = a.Wait(ctx)
	assert.True(t, errors.IsCode(err, errors.CodeUnresolvedReference), "got %v", err)
	select {
	case w := <-reported:
		assert.Empty(t, w, "warnings of an unfinished fragment are not collected yet")
	default:
		t.Fatal("expected the warning set to be reported before failing")
	}
}

func TestAnalyzer_ConfigProjectFragments(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	root := t.TempDir()
	cfg, err := config.Parse(`
entrypoint = "index.html"
shell = "src/shell.html"
sources = ["index.html", "src/**"]
`)
	require.NoError(t, err)
	project, err := cfg.Project(root)
	require.NoError(t, err)
	require.Equal(t, []string{"index.html", "src/shell.html"}, project.Fragments())

	parser := &fakeParser{refs: map[string][]ports.Reference{
		"src/shell.html": {imp("src/view.html")},
	}}
	a, err := New(Options{
		Project:  project,
		Parser:   parser,
		Fetcher:  newFakeFetcher(nil),
		Reporter: func([]ports.Warning) {},
	})
	require.NoError(t, err)

	input := make(chan *vfs.File, 3)
	for _, url := range []string{"index.html", "src/shell.html", "src/view.html"} {
		input <- vfs.NewFile(filepath.Join(project.Root(), filepath.FromSlash(url)), []byte("<"+url+">"))
	}
	close(input)
	a.Start(ctx, input)

	index, err := a.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html", "src/shell.html"}, index.Fragments())
	assert.Equal(t, []string{"src/view.html"}, index.FragmentToDeps["src/shell.html"])
}

func TestAnalyzer_PercentEncodedDependencyFetchedOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html"}}
	parser := &fakeParser{refs: map[string][]ports.Reference{"index.html": {imp("lib/my%20widget.html")}}}
	fetcher := newFakeFetcher(map[string]string{"lib/my widget.html": "<widget>"})
	a := newTestAnalyzer(t, project, parser, fetcher)

	a.PushDependency("lib/my widget.html")
	a.PushDependency("lib/my%20widget.html")
	a.Start(ctx, sourceChan(map[string]string{"index.html": ""}, "index.html"))
	a.Dependencies().Start()

	deps, err := a.Dependencies().Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/my widget.html"}, urlsOf(deps))
	assert.Equal(t, 1, fetcher.callCount("lib/my widget.html"))

	_, ok := a.GetFileByURL("lib/my%20widget.html")
	assert.True(t, ok)
}

func TestAnalyzer_CompleteFragmentRejectsUnknownAndRepeated(t *testing.T) {
	project := testProject{fragments: []string{"index.html"}, sources: []string{"*.html"}}
	a := newTestAnalyzer(t, project, &fakeParser{}, newFakeFetcher(nil))

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.completeFragmentLocked("index.html", DocumentDeps{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := a.completeFragmentLocked("index.html", DocumentDeps{})
	if !errors.IsCode(err, errors.CodeProtocolMisuse) || !strings.Contains(err.Error(), "already analyzed") {
		t.Fatalf("expected repeated completion to be rejected, got %v", err)
	}
	err = a.completeFragmentLocked("other.html", DocumentDeps{})
	if !errors.IsCode(err, errors.CodeProtocolMisuse) || !strings.Contains(err.Error(), "is not a fragment") {
		t.Fatalf("expected unknown fragment to be rejected, got %v", err)
	}
}
