// Package watcher turns filesystem events under a project root into
// debounced batches of changed paths.
package watcher

import (
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"polybuild/internal/engine/urlpath"
	"polybuild/internal/shared/observability"

	"github.com/fsnotify/fsnotify"
)

// Filter decides which root-relative paths are ignored.
type Filter interface {
	ExcludedDir(rel string) bool
	ExcludedFile(rel string) bool
}

type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	root       string
	filter     Filter
	debounce   time.Duration
	onChange   func([]string)
	callbackMu sync.Mutex
	log        *slog.Logger

	pending   map[string]struct{}
	pendingMu sync.Mutex
	timer     *time.Timer
	closed    bool
}

// NewWatcher watches root recursively once Watch is called. onChange receives
// the absolute paths changed during each quiet period, sorted; calls never
// overlap.
func NewWatcher(root string, filter Filter, debounce time.Duration, onChange func([]string), logger *slog.Logger) (*Watcher, error) {
	if onChange == nil || filter == nil {
		return nil, os.ErrInvalid
	}
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsWatcher: fsw,
		root:      filepath.Clean(root),
		filter:    filter,
		debounce:  debounce,
		onChange:  onChange,
		log:       logger,
		pending:   make(map[string]struct{}),
	}, nil
}

// SetDebounce changes the quiet period, applied from the next event on.
func (w *Watcher) SetDebounce(debounce time.Duration) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.debounce = debounce
}

// SetFilter swaps the exclusion rules after a configuration reload.
func (w *Watcher) SetFilter(filter Filter) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.filter = filter
}

func (w *Watcher) Watch() error {
	if err := w.watchRecursive(w.root); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excludedDir(path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if event.Op&fsnotify.Create == fsnotify.Create {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					if !w.excludedDir(event.Name) {
						if err := w.watchRecursive(event.Name); err != nil {
							w.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
						} else {
							w.enqueueExistingFiles(event.Name)
						}
					}
					continue
				}
			}

			if w.excludedFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.scheduleChange(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if w.closed {
		return
	}

	w.pending[filepath.Clean(path)] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flushChanges)
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)
	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.onChange(paths)
}

func (w *Watcher) rel(path string) string {
	return urlpath.URLFromPath(w.root, path)
}

func (w *Watcher) currentFilter() Filter {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return w.filter
}

func (w *Watcher) excludedDir(path string) bool {
	return w.currentFilter().ExcludedDir(w.rel(path))
}

// excludedFile also skips files inside excluded directories, since events
// for a watched parent can name them.
func (w *Watcher) excludedFile(p string) bool {
	filter := w.currentFilter()
	rel := w.rel(p)
	if filter.ExcludedFile(rel) {
		return true
	}
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if filter.ExcludedDir(dir) {
			return true
		}
	}
	return false
}

func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}

func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d == nil || d.IsDir() {
			return nil
		}
		if w.excludedFile(path) {
			return nil
		}
		w.scheduleChange(path)
		return nil
	})
}
