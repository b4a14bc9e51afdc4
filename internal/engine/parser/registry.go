package parser

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"polybuild/internal/shared/util"
)

const (
	LangHTML       = "html"
	LangCSS        = "css"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangTSX        = "tsx"
)

type LanguageSpec struct {
	Name       string
	Extensions []string
	Enabled    bool
}

type LanguageOverride struct {
	Enabled    *bool
	Extensions []string
}

func DefaultLanguageRegistry() map[string]LanguageSpec {
	return map[string]LanguageSpec{
		LangHTML: {
			Name:       LangHTML,
			Extensions: []string{".html", ".htm"},
			Enabled:    true,
		},
		LangCSS: {
			Name:       LangCSS,
			Extensions: []string{".css"},
			Enabled:    true,
		},
		LangJavaScript: {
			Name:       LangJavaScript,
			Extensions: []string{".js", ".cjs", ".mjs"},
			Enabled:    true,
		},
		LangTypeScript: {
			Name:       LangTypeScript,
			Extensions: []string{".ts", ".mts"},
			Enabled:    true,
		},
		LangTSX: {
			Name:       LangTSX,
			Extensions: []string{".tsx"},
			Enabled:    true,
		},
	}
}

// BuildLanguageRegistry applies overrides on top of the defaults. HTML cannot
// be disabled since every fragment is an HTML document.
func BuildLanguageRegistry(overrides map[string]LanguageOverride) (map[string]LanguageSpec, error) {
	registry := cloneLanguageRegistry(DefaultLanguageRegistry())
	for language, override := range overrides {
		spec, ok := registry[language]
		if !ok {
			return nil, fmt.Errorf("unknown language override %q", language)
		}
		if override.Enabled != nil {
			spec.Enabled = *override.Enabled
		}
		if len(override.Extensions) > 0 {
			spec.Extensions = normalizeExtensions(override.Extensions)
		}
		registry[language] = spec
	}

	if err := validateLanguageRegistry(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func cloneLanguageRegistry(in map[string]LanguageSpec) map[string]LanguageSpec {
	out := make(map[string]LanguageSpec, len(in))
	for id, spec := range in {
		copySpec := spec
		copySpec.Extensions = append([]string(nil), spec.Extensions...)
		out[id] = copySpec
	}
	return out
}

func validateLanguageRegistry(registry map[string]LanguageSpec) error {
	if !registry[LangHTML].Enabled {
		return fmt.Errorf("language %q cannot be disabled", LangHTML)
	}
	extOwner := make(map[string]string)
	for _, id := range util.SortedStringKeys(registry) {
		spec := registry[id]
		if !spec.Enabled {
			continue
		}
		for _, ext := range normalizeExtensions(spec.Extensions) {
			if existing, ok := extOwner[ext]; ok && existing != id {
				return fmt.Errorf("duplicate extension %q owned by %q and %q", ext, existing, id)
			}
			extOwner[ext] = id
		}
	}
	return nil
}

func normalizeExtensions(values []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(values))
	for _, value := range values {
		raw := strings.TrimSpace(strings.ToLower(value))
		if raw == "" {
			continue
		}
		if !strings.HasPrefix(raw, ".") {
			raw = "." + raw
		}
		if seen[raw] {
			continue
		}
		seen[raw] = true
		out = append(out, raw)
	}
	sort.Strings(out)
	return out
}

func extensionOf(url string) string {
	return strings.ToLower(path.Ext(url))
}
