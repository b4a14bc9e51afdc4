package analyzer

import (
	"fmt"

	"polybuild/internal/core/errors"
	"polybuild/internal/core/ports"
	"polybuild/internal/shared/util"
)

// DocumentDeps are the direct, non-external dependency URLs of one fragment,
// partitioned by kind, each in first-seen order.
type DocumentDeps struct {
	Imports []string `json:"imports"`
	Scripts []string `json:"scripts"`
	Styles  []string `json:"styles"`
}

func (d *DocumentDeps) add(ref ports.Reference) {
	switch ref.Kind {
	case ports.KindScript:
		d.Scripts = appendOnce(d.Scripts, ref.URL)
	case ports.KindStyle:
		d.Styles = appendOnce(d.Styles, ref.URL)
	default:
		d.Imports = appendOnce(d.Imports, ref.URL)
	}
}

// Edges flattens the record into fragment -> dependency rows.
func (d DocumentDeps) Edges(fragment string) []ports.DependencyEdge {
	edges := make([]ports.DependencyEdge, 0, len(d.Imports)+len(d.Scripts)+len(d.Styles))
	for _, u := range d.Imports {
		edges = append(edges, ports.DependencyEdge{Fragment: fragment, Dependency: u, Kind: ports.KindImport})
	}
	for _, u := range d.Scripts {
		edges = append(edges, ports.DependencyEdge{Fragment: fragment, Dependency: u, Kind: ports.KindScript})
	}
	for _, u := range d.Styles {
		edges = append(edges, ports.DependencyEdge{Fragment: fragment, Dependency: u, Kind: ports.KindStyle})
	}
	return edges
}

func appendOnce(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}

// DepsIndex is the completed result of dependency analysis. All keys and
// values are root-relative URLs.
type DepsIndex struct {
	// FragmentToFullDeps holds every fragment's partitioned dependencies.
	FragmentToFullDeps map[string]DocumentDeps `json:"fragmentToFullDeps"`
	// FragmentToDeps holds only the HTML imports of each fragment.
	FragmentToDeps map[string][]string `json:"fragmentToDeps"`
	// DepsToFragments lists, per import, the fragments referencing it in
	// fragment completion order.
	DepsToFragments map[string][]string `json:"depsToFragments"`
}

func NewDepsIndex() *DepsIndex {
	return &DepsIndex{
		FragmentToFullDeps: make(map[string]DocumentDeps),
		FragmentToDeps:     make(map[string][]string),
		DepsToFragments:    make(map[string][]string),
	}
}

// Add records a fragment's dependencies. A fragment may be added once.
func (idx *DepsIndex) Add(fragment string, deps DocumentDeps) error {
	if _, exists := idx.FragmentToFullDeps[fragment]; exists {
		return errors.AddContext(
			errors.New(errors.CodeProtocolMisuse, fmt.Sprintf("fragment %s already in dependency index", fragment)),
			errors.CtxURL, fragment,
		)
	}
	idx.FragmentToFullDeps[fragment] = deps
	idx.FragmentToDeps[fragment] = append([]string(nil), deps.Imports...)
	for _, dep := range deps.Imports {
		idx.DepsToFragments[dep] = append(idx.DepsToFragments[dep], fragment)
	}
	return nil
}

// Fragments returns the indexed fragments, sorted.
func (idx *DepsIndex) Fragments() []string {
	return util.SortedStringKeys(idx.FragmentToFullDeps)
}

// Edges returns every fragment -> dependency row, fragments sorted.
func (idx *DepsIndex) Edges() []ports.DependencyEdge {
	var edges []ports.DependencyEdge
	for _, fragment := range idx.Fragments() {
		edges = append(edges, idx.FragmentToFullDeps[fragment].Edges(fragment)...)
	}
	return edges
}
