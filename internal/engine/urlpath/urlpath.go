// Package urlpath maps project files to root-relative URLs and back.
package urlpath

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

// URLFromPath returns the root-relative URL for absPath. absPath must lie under root.
func URLFromPath(root, absPath string) string {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(absPath))
	if err != nil {
		rel = strings.TrimPrefix(filepath.Clean(absPath), filepath.Clean(root))
	}
	return Normalize(rel)
}

// PathFromURL is the inverse of URLFromPath. Percent-escapes are decoded.
func PathFromURL(root, rawURL string) string {
	decoded, err := url.PathUnescape(rawURL)
	if err != nil {
		decoded = rawURL
	}
	decoded = Normalize(decoded)
	return filepath.Join(filepath.Clean(root), filepath.FromSlash(decoded))
}

// Normalize converts separators to '/', cleans the path and strips any
// leading separator or "./".
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	p = strings.TrimLeft(p, "/")
	if p == "." {
		return ""
	}
	return strings.TrimPrefix(p, "./")
}

// IsExternal reports whether rawURL names a resource outside the project:
// it carries a scheme ("https:", "data:") or is protocol-relative ("//host").
func IsExternal(rawURL string) bool {
	return strings.HasPrefix(rawURL, "//") || schemePattern.MatchString(rawURL)
}

// Resolve resolves ref against the document at base (both root-relative).
// Query and fragment are dropped. External refs are returned unchanged.
// ok is false for empty or fragment-only refs and for unparseable URLs.
func Resolve(base, ref string) (resolved string, ok bool, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false, nil
	}
	if IsExternal(ref) {
		return ref, true, nil
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", false, err
	}
	baseURL := &url.URL{Path: "/" + Normalize(base)}
	target := baseURL.ResolveReference(&url.URL{Path: parsed.Path})
	out := Normalize(target.Path)
	if out == "" {
		return "", false, nil
	}
	return out, true, nil
}
