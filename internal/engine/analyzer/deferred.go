package analyzer

import (
	"context"
	"fmt"
	"sort"

	"polybuild/internal/core/errors"
)

// Future is the single-use answer to a deferred load. It completes once,
// when the awaited path registers.
type Future struct {
	done     chan struct{}
	contents string
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done is closed when the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.contents, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *Future) resolve(contents string) {
	f.contents = contents
	close(f.done)
}

// DeferredTable maps a normalized path to the pending load waiting on it.
// It is not synchronized; the analyzer owns it under its own lock.
type DeferredTable struct {
	entries map[string]*Future
}

func NewDeferredTable() *DeferredTable {
	return &DeferredTable{entries: make(map[string]*Future)}
}

func (t *DeferredTable) Has(path string) bool {
	_, ok := t.entries[path]
	return ok
}

func (t *DeferredTable) IsEmpty() bool {
	return len(t.entries) == 0
}

func (t *DeferredTable) Len() int {
	return len(t.entries)
}

// Create registers a pending load for path. A second Create for a path that
// is still pending returns the same future, so every waiter is answered by
// the one resolve.
func (t *DeferredTable) Create(path string) *Future {
	if f, ok := t.entries[path]; ok {
		return f
	}
	f := newFuture()
	t.entries[path] = f
	return f
}

// Resolve answers and removes the pending load for path. Resolving a path
// with no pending entry is a protocol error.
func (t *DeferredTable) Resolve(path, contents string) error {
	f, ok := t.entries[path]
	if !ok {
		return errors.AddContext(
			errors.New(errors.CodeProtocolMisuse, fmt.Sprintf("no deferred load pending for %s", path)),
			errors.CtxPath, path,
		)
	}
	delete(t.entries, path)
	f.resolve(contents)
	return nil
}

// Pending lists the paths still waiting, sorted.
func (t *DeferredTable) Pending() []string {
	out := make([]string, 0, len(t.entries))
	for p := range t.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
