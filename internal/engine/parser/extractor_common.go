package parser

import (
	"strconv"
	"strings"

	"polybuild/internal/core/ports"
)

// ExtractedRef is a reference exactly as written in a document, before
// resolution against the document URL.
type ExtractedRef struct {
	Raw  string
	Kind ports.ReferenceKind
	// Follow names the language the target is parsed as to find its own
	// references. Empty means the target is not followed.
	Follow   string
	Location ports.Location
}

// Extraction is the result of walking one document.
type Extraction struct {
	Refs     []ExtractedRef
	Warnings []ports.Warning
}

// followModule marks a module script target whose language is picked from
// its extension.
const followModule = "module"

func trimQuoted(value string) string {
	value = strings.TrimSpace(value)
	return strings.Trim(value, "\"'`")
}

func quoteSnippet(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if len(value) > 40 {
		value = value[:40] + "..."
	}
	return strconv.Quote(value)
}

func hasToken(value, token string) bool {
	for _, field := range strings.Fields(strings.ToLower(value)) {
		if field == token {
			return true
		}
	}
	return false
}
