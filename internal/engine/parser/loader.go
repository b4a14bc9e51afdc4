package parser

import (
	"fmt"

	"polybuild/internal/shared/util"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_css "github.com/tree-sitter/tree-sitter-css/bindings/go"
	tree_sitter_html "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// GrammarLoader holds the compiled grammars and one parser pool per enabled
// language.
type GrammarLoader struct {
	languages  map[string]*sitter.Language
	pools      map[string]*ParserPool
	extensions map[string]string
	registry   map[string]LanguageSpec
}

func NewGrammarLoader(registry map[string]LanguageSpec) (*GrammarLoader, error) {
	if registry == nil {
		var err error
		registry, err = BuildLanguageRegistry(nil)
		if err != nil {
			return nil, err
		}
	}

	gl := &GrammarLoader{
		languages:  make(map[string]*sitter.Language),
		pools:      make(map[string]*ParserPool),
		extensions: make(map[string]string),
		registry:   cloneLanguageRegistry(registry),
	}

	for _, langID := range util.SortedStringKeys(gl.registry) {
		spec := gl.registry[langID]
		if !spec.Enabled {
			continue
		}
		var lang *sitter.Language
		switch langID {
		case LangCSS:
			lang = sitter.NewLanguage(tree_sitter_css.Language())
		case LangHTML:
			lang = sitter.NewLanguage(tree_sitter_html.Language())
		case LangJavaScript:
			lang = sitter.NewLanguage(tree_sitter_javascript.Language())
		case LangTSX:
			lang = sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
		case LangTypeScript:
			lang = sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
		default:
			return nil, fmt.Errorf("language %q is enabled but runtime grammar loading is not implemented", langID)
		}
		gl.languages[langID] = lang
		gl.pools[langID] = NewParserPool(lang)
		for _, ext := range normalizeExtensions(spec.Extensions) {
			gl.extensions[ext] = langID
		}
	}

	return gl, nil
}

// Pool returns the parser pool for an enabled language.
func (gl *GrammarLoader) Pool(langID string) (*ParserPool, bool) {
	pool, ok := gl.pools[langID]
	return pool, ok
}

func (gl *GrammarLoader) Enabled(langID string) bool {
	_, ok := gl.languages[langID]
	return ok
}

// LanguageForURL maps a URL to an enabled language by extension.
func (gl *GrammarLoader) LanguageForURL(url string) string {
	return gl.extensions[extensionOf(url)]
}

func (gl *GrammarLoader) SupportedExtensions() []string {
	return util.SortedStringKeys(gl.extensions)
}
