package app

import (
	"context"
	"errors"
	"io"

	"polybuild/internal/core/config"
	"polybuild/internal/core/watcher"
	"polybuild/internal/data/queue"
)

const rebuildQueueCapacity = 64

// Watch builds once, then rebuilds after every debounced batch of changes
// under the project root until ctx ends. Each rebuild uses a fresh analyzer.
// Build failures are reported and do not stop watching.
func (b *Builder) Watch(ctx context.Context) error {
	setup := b.current()
	changes := queue.NewMemoryQueue[[]string](rebuildQueueCapacity)
	defer changes.Close()

	w, err := watcher.NewWatcher(setup.project.Root(), setup.project, setup.cfg.Watch.Debounce, func(paths []string) {
		for _, p := range paths {
			b.fetcher.Invalidate(p)
		}
		if changes.Enqueue(paths) == queue.EnqueueDropped {
			b.log.Warn("rebuild queue full, dropping change batch", "paths", len(paths))
		}
	}, b.log)
	if err != nil {
		return err
	}
	if err := w.Watch(); err != nil {
		w.Close()
		return err
	}
	defer w.Close()

	if b.configPath != "" {
		cw := config.NewWatcher(b.configPath, func(cfg *config.Config) {
			if err := b.Reload(cfg); err != nil {
				b.log.Error("config reload rejected", "error", err)
				return
			}
			w.SetFilter(b.Project())
			w.SetDebounce(cfg.Watch.Debounce)
			changes.Enqueue([]string{b.configPath})
		}, b.log)
		if err := cw.Start(ctx); err != nil {
			return err
		}
		defer cw.Stop()
	}

	b.log.Info("watching for changes", "root", setup.project.Root(), "debounce", setup.cfg.Watch.Debounce)
	_, _ = b.Build(ctx)

	for {
		batches, err := changes.DequeueBatch(ctx, rebuildQueueCapacity, 0)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || err == io.EOF {
				return nil
			}
			return err
		}
		changed := 0
		for _, batch := range batches {
			changed += len(batch)
		}
		b.log.Info("changes detected, rebuilding", "paths", changed)
		if _, err := b.Build(ctx); err != nil && ctx.Err() != nil {
			return nil
		}
	}
}
