package parser

import (
	"strings"

	"polybuild/internal/core/ports"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

func (p *DocumentParser) walkCSS(ctx *ExtractionContext, root *sitter.Node) {
	ctx.reportSyntaxIssues(root, ports.SeverityWarning, ports.SeverityWarning)
	engine := NewExtractorEngine(map[string]NodeHandler{
		"import_statement": extractCSSImport,
	})
	engine.Walk(ctx, root)
}

// extractCSSImport handles both @import "a.css" and @import url(a.css).
func extractCSSImport(ctx *ExtractionContext, node *sitter.Node) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "string_value":
			ctx.addRef(trimQuoted(ctx.Text(child)), ports.KindStyle, LangCSS, node)
			return true
		case "call_expression":
			if !strings.EqualFold(ctx.ChildText(child, "function_name"), "url") {
				continue
			}
			args := childOfKind(child, "arguments")
			if args == nil {
				continue
			}
			for j := uint(0); j < args.ChildCount(); j++ {
				arg := args.Child(j)
				if arg.Kind() == "string_value" || arg.Kind() == "plain_value" {
					ctx.addRef(trimQuoted(ctx.Text(arg)), ports.KindStyle, LangCSS, node)
					return true
				}
			}
		}
	}
	return true
}
