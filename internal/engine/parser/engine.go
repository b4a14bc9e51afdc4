package parser

import (
	"strings"

	"polybuild/internal/core/ports"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler processes a node for a language-specific extractor.
// Returns true if the walker should not descend into the node's children.
type NodeHandler func(ctx *ExtractionContext, node *sitter.Node) bool

// ExtractionContext carries the document being walked and the result being
// built. Inline documents (a <style> body, a module <script>) get their own
// context whose positions are shifted into the enclosing document.
type ExtractionContext struct {
	Source []byte
	URL    string
	Result *Extraction

	lineOffset int
	colOffset  int
}

func newExtractionContext(url string, source []byte, result *Extraction) *ExtractionContext {
	return &ExtractionContext{Source: source, URL: url, Result: result}
}

// inline returns a context for a document embedded at node.
func (c *ExtractionContext) inline(node *sitter.Node) *ExtractionContext {
	loc := c.Location(node)
	return &ExtractionContext{
		Source:     []byte(c.Text(node)),
		URL:        c.URL,
		Result:     c.Result,
		lineOffset: loc.Line - 1,
		colOffset:  loc.Column - 1,
	}
}

// ExtractorEngine walks the syntax tree and dispatches node handlers by kind.
type ExtractorEngine struct {
	handlers map[string]NodeHandler
}

func NewExtractorEngine(handlers map[string]NodeHandler) *ExtractorEngine {
	return &ExtractorEngine{handlers: handlers}
}

func (e *ExtractorEngine) Walk(ctx *ExtractionContext, node *sitter.Node) {
	if node == nil {
		return
	}

	stop := false
	if handler, ok := e.handlers[node.Kind()]; ok {
		stop = handler(ctx, node)
	}
	if stop {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		e.Walk(ctx, node.Child(i))
	}
}

func (c *ExtractionContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(c.Source[node.StartByte():node.EndByte()])
}

func (c *ExtractionContext) Location(node *sitter.Node) ports.Location {
	pos := node.StartPosition()
	col := int(pos.Column) + 1
	if pos.Row == 0 {
		col += c.colOffset
	}
	return ports.Location{
		URL:    c.URL,
		Line:   int(pos.Row) + 1 + c.lineOffset,
		Column: col,
	}
}

func (c *ExtractionContext) ChildText(node *sitter.Node, kind string) string {
	if child := childOfKind(node, kind); child != nil {
		return c.Text(child)
	}
	return ""
}

func (c *ExtractionContext) addRef(raw string, kind ports.ReferenceKind, follow string, node *sitter.Node) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	c.Result.Refs = append(c.Result.Refs, ExtractedRef{
		Raw:      raw,
		Kind:     kind,
		Follow:   follow,
		Location: c.Location(node),
	})
}

func (c *ExtractionContext) warn(severity ports.Severity, message string, node *sitter.Node) {
	c.Result.Warnings = append(c.Result.Warnings, ports.Warning{
		Severity: severity,
		Message:  message,
		Location: c.Location(node),
	})
}

// reportSyntaxIssues records ERROR and missing nodes below root, descending
// only into subtrees that contain errors.
func (c *ExtractionContext) reportSyntaxIssues(root *sitter.Node, errorSeverity, missingSeverity ports.Severity) {
	if root == nil || !root.HasError() {
		return
	}
	var visit func(*sitter.Node)
	visit = func(n *sitter.Node) {
		switch {
		case n.IsMissing():
			c.warn(missingSeverity, "missing "+n.Kind(), n)
			return
		case n.IsError():
			c.warn(errorSeverity, "syntax error near "+quoteSnippet(c.Text(n)), n)
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			child := n.Child(i)
			if child != nil && (child.HasError() || child.IsMissing()) {
				visit(child)
			}
		}
	}
	visit(root)
}

func childOfKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == kind {
			return child
		}
	}
	return nil
}
