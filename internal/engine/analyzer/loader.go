package analyzer

import (
	"context"

	"polybuild/internal/core/ports"
	"polybuild/internal/engine/urlpath"
	"polybuild/internal/shared/observability"
)

var _ ports.URLLoader = (*URLLoader)(nil)

// URLLoader answers the document parser's content requests. It only reads
// the registry; misses are parked in the deferred table and fetched through
// the analyzer's PushDependency.
type URLLoader struct {
	a *Analyzer
}

// CanLoad is always true: external URLs load as empty content so they never
// break analysis.
func (l *URLLoader) CanLoad(string) bool {
	return true
}

// Load returns the contents for url, waiting for the file to register when
// it has not arrived yet.
func (l *URLLoader) Load(ctx context.Context, url string) (string, error) {
	if urlpath.IsExternal(url) {
		return "", nil
	}

	a := l.a
	path := urlpath.PathFromURL(a.root, url)

	a.mu.Lock()
	if file, ok := a.files[urlpath.URLFromPath(a.root, path)]; ok {
		a.mu.Unlock()
		return string(file.Contents), nil
	}
	if a.finished {
		err := a.err
		a.mu.Unlock()
		if err == nil {
			err = buildClosedError(url)
		}
		return "", err
	}
	if !a.pending.Has(path) {
		observability.DeferredLoadsTotal.Inc()
	}
	future := a.pending.Create(path)
	fragment := fragmentFrom(ctx)
	a.parkLocked(path, fragment)
	observability.DeferredLoadsPending.Set(float64(a.pending.Len()))
	a.log.Debug("deferring load", "url", url, "path", path)
	a.pushDependencyLocked(urlpath.URLFromPath(a.root, path))
	a.checkStalledLocked()
	failed := a.failedCh
	a.mu.Unlock()

	select {
	case <-future.Done():
		return future.contents, nil
	case <-failed:
		return "", a.Err()
	case <-ctx.Done():
		a.mu.Lock()
		a.unparkLocked(path, fragment)
		a.mu.Unlock()
		return "", ctx.Err()
	}
}

type fragmentKey struct{}

// withFragment tags ctx with the fragment whose analysis issues its loads.
func withFragment(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, fragmentKey{}, url)
}

func fragmentFrom(ctx context.Context) string {
	url, _ := ctx.Value(fragmentKey{}).(string)
	return url
}

// parkLocked records that fragment waits on path. Loads issued outside a
// fragment analysis are not tracked.
func (a *Analyzer) parkLocked(path, fragment string) {
	if fragment == "" {
		return
	}
	a.parked[fragment]++
	a.parkedOn[path] = append(a.parkedOn[path], fragment)
}

// releaseParkedLocked wakes the bookkeeping of every fragment waiting on a
// path that just resolved.
func (a *Analyzer) releaseParkedLocked(path string) {
	for _, fragment := range a.parkedOn[path] {
		a.dropParkedLocked(fragment)
	}
	delete(a.parkedOn, path)
}

// unparkLocked forgets one wait of fragment on path when its load gave up
// before path resolved.
func (a *Analyzer) unparkLocked(path, fragment string) {
	waiting := a.parkedOn[path]
	for i, f := range waiting {
		if f != fragment {
			continue
		}
		a.parkedOn[path] = append(waiting[:i:i], waiting[i+1:]...)
		if len(a.parkedOn[path]) == 0 {
			delete(a.parkedOn, path)
		}
		a.dropParkedLocked(fragment)
		return
	}
}

func (a *Analyzer) dropParkedLocked(fragment string) {
	a.parked[fragment]--
	if a.parked[fragment] <= 0 {
		delete(a.parked, fragment)
	}
}
