package parser

import (
	"html"
	"strings"

	"polybuild/internal/core/ports"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// walkHTML collects imports, stylesheets and scripts. Malformed markup is an
// error: a broken fragment cannot be trusted to list its dependencies.
func (p *DocumentParser) walkHTML(ctx *ExtractionContext, root *sitter.Node) {
	ctx.reportSyntaxIssues(root, ports.SeverityError, ports.SeverityWarning)
	engine := NewExtractorEngine(map[string]NodeHandler{
		"start_tag":        p.extractLink,
		"self_closing_tag": p.extractLink,
		"script_element":   p.extractScriptElement,
		"style_element":    p.extractStyleElement,
	})
	engine.Walk(ctx, root)
}

func (p *DocumentParser) extractLink(ctx *ExtractionContext, node *sitter.Node) bool {
	tag, attrs := ctx.tag(node)
	if tag != "link" {
		return false
	}
	href, ok := attrs["href"]
	if !ok {
		return true
	}
	rel := attrs["rel"]
	switch {
	case hasToken(rel, "import"):
		if strings.EqualFold(strings.TrimSpace(attrs["type"]), "css") {
			ctx.addRef(href, ports.KindStyle, LangCSS, node)
		} else {
			ctx.addRef(href, ports.KindImport, LangHTML, node)
		}
	case hasToken(rel, "stylesheet"):
		ctx.addRef(href, ports.KindStyle, LangCSS, node)
	}
	return true
}

func (p *DocumentParser) extractScriptElement(ctx *ExtractionContext, node *sitter.Node) bool {
	startTag := childOfKind(node, "start_tag")
	_, attrs := ctx.tag(startTag)
	module := isModuleType(attrs["type"])

	if src, ok := attrs["src"]; ok {
		follow := ""
		if module {
			follow = followModule
		}
		ctx.addRef(src, ports.KindScript, follow, startTag)
		return true
	}
	if module {
		if body := childOfKind(node, "raw_text"); body != nil {
			p.extractInline(ctx.inline(body), LangJavaScript)
		}
	}
	return true
}

func (p *DocumentParser) extractStyleElement(ctx *ExtractionContext, node *sitter.Node) bool {
	if body := childOfKind(node, "raw_text"); body != nil {
		p.extractInline(ctx.inline(body), LangCSS)
	}
	return true
}

// tag returns the lower-cased tag name and attributes of a start tag. Values
// are unquoted and entity-decoded; the first occurrence of a name wins.
func (c *ExtractionContext) tag(node *sitter.Node) (string, map[string]string) {
	attrs := make(map[string]string)
	if node == nil {
		return "", attrs
	}
	name := strings.ToLower(strings.TrimSpace(c.ChildText(node, "tag_name")))
	for i := uint(0); i < node.ChildCount(); i++ {
		attr := node.Child(i)
		if attr == nil || attr.Kind() != "attribute" {
			continue
		}
		key, value := "", ""
		for j := uint(0); j < attr.ChildCount(); j++ {
			part := attr.Child(j)
			switch part.Kind() {
			case "attribute_name":
				key = strings.ToLower(strings.TrimSpace(c.Text(part)))
			case "quoted_attribute_value", "attribute_value":
				value = html.UnescapeString(trimQuoted(c.Text(part)))
			}
		}
		if key == "" {
			continue
		}
		if _, dup := attrs[key]; !dup {
			attrs[key] = value
		}
	}
	return name, attrs
}

func isModuleType(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "module")
}

var javaScriptTypes = map[string]bool{
	"":                         true,
	"module":                   true,
	"text/javascript":          true,
	"application/javascript":   true,
	"text/ecmascript":          true,
	"application/ecmascript":   true,
	"application/x-javascript": true,
}

// isJavaScriptType reports whether a script type attribute denotes
// executable JavaScript. Parameters such as ";charset=utf-8" are ignored.
func isJavaScriptType(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	return javaScriptTypes[value]
}
