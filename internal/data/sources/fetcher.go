package sources

import (
	"context"
	"os"
	"time"

	"polybuild/internal/core/errors"
	"polybuild/internal/core/ports"
	"polybuild/internal/engine/vfs"
	"polybuild/internal/shared/observability"

	lru "github.com/hashicorp/golang-lru/v2"
)

var _ ports.DependencyFetcher = (*Fetcher)(nil)

type cachedContent struct {
	size     int64
	modTime  time.Time
	contents []byte
}

// Fetcher reads files from disk through an LRU cache keyed by path. An entry
// is reused only while the file's size and modification time are unchanged,
// which keeps rebuilds in watch mode from re-reading untouched files.
type Fetcher struct {
	cache *lru.Cache[string, cachedContent]
}

// NewFetcher creates a fetcher caching up to size files. Zero disables caching.
func NewFetcher(size int) (*Fetcher, error) {
	f := &Fetcher{}
	if size > 0 {
		cache, err := lru.New[string, cachedContent](size)
		if err != nil {
			return nil, err
		}
		f.cache = cache
	}
	return f, nil
}

func (f *Fetcher) Fetch(ctx context.Context, path string) (*vfs.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, wrapReadError(err, path)
	}
	if info.IsDir() {
		return nil, errors.AddContext(errors.New(errors.CodeIO, "path is a directory"), errors.CtxPath, path)
	}

	if f.cache != nil {
		if entry, ok := f.cache.Get(path); ok && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
			observability.FetchCacheHitsTotal.Inc()
			return vfs.NewFile(path, entry.contents), nil
		}
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapReadError(err, path)
	}
	if f.cache != nil {
		f.cache.Add(path, cachedContent{size: info.Size(), modTime: info.ModTime(), contents: contents})
	}
	return vfs.NewFile(path, contents), nil
}

// Invalidate drops a cached entry, used when the watcher reports a change.
func (f *Fetcher) Invalidate(path string) {
	if f.cache != nil {
		f.cache.Remove(path)
	}
}

func (f *Fetcher) Len() int {
	if f.cache == nil {
		return 0
	}
	return f.cache.Len()
}

func wrapReadError(err error, path string) error {
	code := errors.CodeIO
	if os.IsNotExist(err) {
		code = errors.CodeNotFound
	}
	return errors.AddContext(errors.Wrap(err, code, "read file"), errors.CtxPath, path)
}
