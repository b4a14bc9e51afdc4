// Package parser implements document analysis on tree-sitter: it discovers
// the transitive references of an HTML fragment and locates inline scripts.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"polybuild/internal/core/errors"
	"polybuild/internal/core/ports"
	"polybuild/internal/engine/urlpath"
	"polybuild/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var _ ports.DocumentParser = (*DocumentParser)(nil)

// DocumentParser is safe for concurrent Analyze calls.
type DocumentParser struct {
	grammars *GrammarLoader
	log      *slog.Logger
}

func NewDocumentParser(grammars *GrammarLoader, logger *slog.Logger) *DocumentParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentParser{grammars: grammars, log: logger}
}

// Extract parses one document of the given language without following any
// reference.
func (p *DocumentParser) Extract(lang, url string, source []byte) (*Extraction, error) {
	result := &Extraction{}
	if err := p.extract(newExtractionContext(url, source, result), lang); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *DocumentParser) extract(ctx *ExtractionContext, lang string) error {
	pool, ok := p.grammars.Pool(lang)
	if !ok {
		return nil
	}
	start := time.Now()
	tree, err := pool.Parse(ctx.Source)
	if err != nil {
		return errors.AddContext(err, errors.CtxURL, ctx.URL)
	}
	defer tree.Close()

	root := tree.RootNode()
	switch lang {
	case LangHTML:
		p.walkHTML(ctx, root)
	case LangCSS:
		p.walkCSS(ctx, root)
	default:
		p.walkScript(ctx, root)
	}
	observability.ParsingDuration.WithLabelValues(lang).Observe(time.Since(start).Seconds())
	return nil
}

func (p *DocumentParser) extractInline(ctx *ExtractionContext, lang string) {
	if err := p.extract(ctx, lang); err != nil {
		p.log.Warn("inline document parse failed", "url", ctx.URL, "language", lang, "error", err)
	}
}

// Analyze returns every reference reachable from the fragment at url,
// following HTML imports, stylesheets and module scripts. The content of
// every reference is requested through loader before Analyze returns; loads
// of one document's references run concurrently.
func (p *DocumentParser) Analyze(ctx context.Context, url string, loader ports.URLLoader) (ports.Analysis, error) {
	ctx, span := observability.Tracer.Start(ctx, "parser.Analyze",
		trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	contents, err := loader.Load(ctx, url)
	if err != nil {
		return ports.Analysis{}, err
	}
	run := &analysisRun{parser: p, loader: loader, seen: map[string]bool{url: true}}
	if err := run.document(ctx, url, LangHTML, contents); err != nil {
		span.RecordError(err)
		return ports.Analysis{}, err
	}
	span.SetAttributes(attribute.Int("references", len(run.result.References)))
	return run.result, nil
}

type analysisRun struct {
	parser *DocumentParser
	loader ports.URLLoader
	seen   map[string]bool
	result ports.Analysis
}

type followTarget struct {
	url  string
	lang string
}

func (r *analysisRun) document(ctx context.Context, url, lang, contents string) error {
	extraction, err := r.parser.Extract(lang, url, []byte(contents))
	if err != nil {
		return err
	}
	r.result.Warnings = append(r.result.Warnings, extraction.Warnings...)

	var fresh []followTarget
	for _, ref := range extraction.Refs {
		resolved, ok, err := urlpath.Resolve(url, ref.Raw)
		if err != nil {
			r.result.Warnings = append(r.result.Warnings, ports.Warning{
				Severity: ports.SeverityWarning,
				Message:  fmt.Sprintf("invalid URL %q: %v", ref.Raw, err),
				Location: ref.Location,
			})
			continue
		}
		if !ok || r.seen[resolved] {
			continue
		}
		r.seen[resolved] = true
		r.result.References = append(r.result.References, ports.Reference{URL: resolved, Kind: ref.Kind})
		fresh = append(fresh, followTarget{url: resolved, lang: r.followLanguage(ref.Follow, resolved)})
	}
	if len(fresh) == 0 {
		return nil
	}

	loaded := make([]string, len(fresh))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range fresh {
		g.Go(func() error {
			body, err := r.loader.Load(gctx, target.url)
			if err != nil {
				return err
			}
			loaded[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, target := range fresh {
		if target.lang == "" || urlpath.IsExternal(target.url) {
			continue
		}
		if err := r.document(ctx, target.url, target.lang, loaded[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *analysisRun) followLanguage(follow, url string) string {
	grammars := r.parser.grammars
	switch follow {
	case "":
		return ""
	case followModule:
		switch lang := grammars.LanguageForURL(url); lang {
		case LangJavaScript, LangTypeScript, LangTSX:
			return lang
		}
		if grammars.Enabled(LangJavaScript) {
			return LangJavaScript
		}
		return ""
	default:
		if grammars.Enabled(follow) {
			return follow
		}
		return ""
	}
}
