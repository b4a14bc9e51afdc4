package parser

import (
	"polybuild/internal/core/errors"
	"polybuild/internal/engine/vfs"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ScriptRegionFinder locates the bodies of inline JavaScript blocks in an
// HTML document. Scripts with a src attribute, non-JavaScript types and
// scripts inside comments are not regions.
type ScriptRegionFinder struct {
	pool *ParserPool
}

func NewScriptRegionFinder(grammars *GrammarLoader) (*ScriptRegionFinder, error) {
	pool, ok := grammars.Pool(LangHTML)
	if !ok {
		return nil, errors.New(errors.CodeNotSupported, "html grammar not loaded")
	}
	return &ScriptRegionFinder{pool: pool}, nil
}

// FindRegions returns the byte ranges between each inline script's start tag
// and end tag, in document order. Empty scripts yield empty ranges.
func (f *ScriptRegionFinder) FindRegions(contents []byte) ([]vfs.Range, error) {
	tree, err := f.pool.Parse(contents)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var regions []vfs.Range
	ctx := newExtractionContext("", contents, &Extraction{})
	engine := NewExtractorEngine(map[string]NodeHandler{
		"script_element": func(ctx *ExtractionContext, node *sitter.Node) bool {
			startTag := childOfKind(node, "start_tag")
			endTag := childOfKind(node, "end_tag")
			if startTag == nil || endTag == nil || endTag.IsMissing() {
				return true
			}
			_, attrs := ctx.tag(startTag)
			if _, hasSrc := attrs["src"]; hasSrc || !isJavaScriptType(attrs["type"]) {
				return true
			}
			regions = append(regions, vfs.Range{Start: int(startTag.EndByte()), End: int(endTag.StartByte())})
			return true
		},
	})
	engine.Walk(ctx, tree.RootNode())
	return regions, nil
}
