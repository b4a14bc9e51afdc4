package analyzer

import (
	"reflect"
	"testing"

	"polybuild/internal/core/errors"
	"polybuild/internal/core/ports"
)

func TestDepsIndex_AddBuildsReverseIndex(t *testing.T) {
	idx := NewDepsIndex()
	var shell DocumentDeps
	shell.add(ports.Reference{URL: "dep.html", Kind: ports.KindImport})
	shell.add(ports.Reference{URL: "dep.html", Kind: ports.KindImport})
	shell.add(ports.Reference{URL: "app.js", Kind: ports.KindScript})
	shell.add(ports.Reference{URL: "app.css", Kind: ports.KindStyle})

	var index DocumentDeps
	index.add(ports.Reference{URL: "dep.html", Kind: ports.KindImport})

	if err := idx.Add("shell.html", shell); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add("index.html", index); err != nil {
		t.Fatal(err)
	}

	if got := idx.FragmentToDeps["shell.html"]; !reflect.DeepEqual(got, []string{"dep.html"}) {
		t.Errorf("unexpected imports %v", got)
	}
	if got := idx.DepsToFragments["dep.html"]; !reflect.DeepEqual(got, []string{"shell.html", "index.html"}) {
		t.Errorf("expected completion order, got %v", got)
	}
	if _, ok := idx.DepsToFragments["app.js"]; ok {
		t.Error("scripts must not appear in the reverse import index")
	}
	if got := len(idx.Edges()); got != 4 {
		t.Errorf("expected 4 edges, got %d", got)
	}
}

func TestDepsIndex_AddTwiceIsProtocolMisuse(t *testing.T) {
	idx := NewDepsIndex()
	if err := idx.Add("a.html", DocumentDeps{}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add("a.html", DocumentDeps{}); !errors.IsCode(err, errors.CodeProtocolMisuse) {
		t.Fatalf("expected protocol misuse, got %v", err)
	}
}
