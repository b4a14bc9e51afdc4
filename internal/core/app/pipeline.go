package app

import (
	"context"
	"log/slog"
	"sync/atomic"

	"polybuild/internal/engine/analyzer"
	"polybuild/internal/engine/vfs"

	"golang.org/x/sync/errgroup"
)

type outputCounter struct {
	n atomic.Int64
}

func (c *outputCounter) add()      { c.n.Add(1) }
func (c *outputCounter) load() int { return int(c.n.Load()) }

// runStream drains one analyzer stream through split, transform and rejoin
// into the output directory. Without splitting, files go straight to output.
func (b *Builder) runStream(ctx context.Context, setup *buildSetup, stream *analyzer.FileStream, outputs *outputCounter, log *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	log = log.With("stream", stream.Name())

	streamed := make(chan *vfs.File)
	g.Go(func() error {
		return stream.Pipe(ctx, streamed)
	})

	final := streamed
	if setup.cfg.Build.SplitEnabled() {
		splitter, rejoiner := b.stages(setup)
		split := make(chan *vfs.File)
		transformed := make(chan *vfs.File)
		rejoined := make(chan *vfs.File)
		g.Go(func() error {
			return splitter.Run(ctx, streamed, split)
		})
		g.Go(func() error {
			return runTransform(ctx, setup.transform, split, transformed)
		})
		g.Go(func() error {
			return rejoiner.Run(ctx, transformed, rejoined)
		})
		final = rejoined
	}

	outputDir := setup.project.Paths().OutputDir
	root := setup.project.Root()
	g.Go(func() error {
		for file := range final {
			if err := writeOutput(root, outputDir, file); err != nil {
				return err
			}
			outputs.add()
			log.Debug("wrote output", "path", file.Path)
		}
		return nil
	})
	return g.Wait()
}

func runTransform(ctx context.Context, transform ScriptTransform, in <-chan *vfs.File, out chan<- *vfs.File) error {
	defer close(out)
	for file := range in {
		if transform != nil {
			next, err := transform(ctx, file)
			if err != nil {
				return err
			}
			file = next
		}
		select {
		case out <- file:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
