package ports

import (
	"context"
	"fmt"
	"time"

	"polybuild/internal/engine/vfs"
)

// Severity grades a document warning. Only SeverityError fails a build.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Location points into a document by root-relative URL, 1-based line/column.
type Location struct {
	URL    string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.Line == 0 {
		return l.URL
	}
	return fmt.Sprintf("%s:%d:%d", l.URL, l.Line, l.Column)
}

// Warning is comparable so it can be collected in a value-deduplicated set.
type Warning struct {
	Severity Severity
	Message  string
	Location Location
}

// ReferenceKind partitions the direct dependencies of a document.
type ReferenceKind int

const (
	KindImport ReferenceKind = iota
	KindScript
	KindStyle
)

func (k ReferenceKind) String() string {
	switch k {
	case KindImport:
		return "import"
	case KindScript:
		return "script"
	case KindStyle:
		return "style"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reference is one URL a document depends on. External URLs are reported
// as written; internal ones are root-relative.
type Reference struct {
	URL  string
	Kind ReferenceKind
}

// Analysis is the document parser's answer for one fragment.
type Analysis struct {
	Warnings   []Warning
	References []Reference
}

// URLLoader is the pull side seen by the document parser.
type URLLoader interface {
	CanLoad(url string) bool
	// Load blocks until the content for url is available.
	Load(ctx context.Context, url string) (string, error)
}

// DocumentParser analyzes a document, requesting every referenced file's
// content through loader before returning.
type DocumentParser interface {
	Analyze(ctx context.Context, url string, loader URLLoader) (Analysis, error)
}

// DependencyFetcher reads a pushed dependency path from the backing store.
type DependencyFetcher interface {
	Fetch(ctx context.Context, path string) (*vfs.File, error)
}

// ProjectConfig is the read-only project view consumed by the analyzer.
type ProjectConfig interface {
	// Root is the absolute project root directory.
	Root() string
	// Entrypoint, Shell and Fragments are root-relative URLs.
	Entrypoint() string
	Shell() string
	Fragments() []string
	// IsFragment reports whether a root-relative URL names a fragment.
	IsFragment(url string) bool
	// IsSource reports whether a root-relative URL matches a source glob.
	IsSource(url string) bool
}

// HistoryStore persists finished builds for trend and dependents queries.
type HistoryStore interface {
	SaveBuild(ctx context.Context, record BuildRecord) error
	RecentBuilds(ctx context.Context, project string, limit int) ([]BuildRecord, error)
	Dependents(ctx context.Context, project, dependency string) ([]string, error)
	Prune(ctx context.Context, project string, keep int) (int, error)
}

// BuildRecord summarizes one finished build.
type BuildRecord struct {
	ID           string
	Project      string
	StartedAt    time.Time
	Duration     time.Duration
	Status       string
	Fragments    int
	Sources      int
	Dependencies int
	Warnings     int
	Errors       int
	Message      string
	Edges        []DependencyEdge
}

// DependencyEdge is one fragment -> dependency row of the dependency index.
type DependencyEdge struct {
	Fragment   string
	Dependency string
	Kind       ReferenceKind
}

const (
	BuildSucceeded = "succeeded"
	BuildFailed    = "failed"
)
