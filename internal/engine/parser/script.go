package parser

import (
	"strings"

	"polybuild/internal/core/ports"
	"polybuild/internal/engine/urlpath"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// walkScript collects static imports, re-exports and import() calls of a
// JavaScript or TypeScript module.
func (p *DocumentParser) walkScript(ctx *ExtractionContext, root *sitter.Node) {
	ctx.reportSyntaxIssues(root, ports.SeverityWarning, ports.SeverityWarning)
	engine := NewExtractorEngine(map[string]NodeHandler{
		"import_statement": extractModuleSource,
		"export_statement": extractModuleSource,
		"call_expression":  extractDynamicImport,
	})
	engine.Walk(ctx, root)
}

func extractModuleSource(ctx *ExtractionContext, node *sitter.Node) bool {
	source := node.ChildByFieldName("source")
	if source == nil {
		return false
	}
	addModuleRef(ctx, trimQuoted(ctx.Text(source)), source)
	return node.Kind() == "import_statement"
}

func extractDynamicImport(ctx *ExtractionContext, node *sitter.Node) bool {
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "import" {
		return false
	}
	args := node.ChildByFieldName("arguments")
	if args == nil {
		return false
	}
	for i := uint(0); i < args.NamedChildCount(); i++ {
		arg := args.NamedChild(i)
		if arg.Kind() == "string" {
			addModuleRef(ctx, trimQuoted(ctx.Text(arg)), arg)
		}
		break
	}
	return false
}

// addModuleRef records relative and absolute specifiers. Bare specifiers
// ("lit", "@scope/pkg") name packages, not files, and are reported instead.
func addModuleRef(ctx *ExtractionContext, specifier string, node *sitter.Node) {
	if specifier == "" {
		return
	}
	if !urlpath.IsExternal(specifier) &&
		!strings.HasPrefix(specifier, "./") &&
		!strings.HasPrefix(specifier, "../") &&
		!strings.HasPrefix(specifier, "/") {
		ctx.warn(ports.SeverityInfo, "bare module specifier "+quoteSnippet(specifier)+" ignored", node)
		return
	}
	ctx.addRef(specifier, ports.KindScript, followModule, node)
}
