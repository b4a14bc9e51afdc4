package split

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"polybuild/internal/engine/vfs"
	"polybuild/internal/shared/observability"
)

var defaultCarrierExtensions = []string{".html", ".htm"}

// Splitter emits each carrier with its inline scripts removed, followed by
// one synthetic file per script in document order. Other files pass through.
type Splitter struct {
	finder     RegionFinder
	registry   *Registry
	extensions map[string]bool
	log        *slog.Logger
}

func NewSplitter(finder RegionFinder, registry *Registry, logger *slog.Logger) *Splitter {
	if logger == nil {
		logger = slog.Default()
	}
	exts := make(map[string]bool, len(defaultCarrierExtensions))
	for _, ext := range defaultCarrierExtensions {
		exts[ext] = true
	}
	return &Splitter{finder: finder, registry: registry, extensions: exts, log: logger}
}

// Run consumes in until it closes, then closes out.
func (s *Splitter) Run(ctx context.Context, in <-chan *vfs.File, out chan<- *vfs.File) error {
	defer close(out)
	for {
		select {
		case file, ok := <-in:
			if !ok {
				return nil
			}
			for _, f := range s.Split(file) {
				select {
				case out <- f:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Split returns the files one input becomes. A carrier whose scripts cannot
// be located passes through unsplit and unrecorded.
func (s *Splitter) Split(file *vfs.File) []*vfs.File {
	if !s.extensions[strings.ToLower(filepath.Ext(file.Path))] {
		return []*vfs.File{file}
	}
	regions, err := s.finder.FindRegions(file.Contents)
	if err != nil {
		s.log.Warn("script regions not found, passing file through", "path", file.Path, "error", err)
		return []*vfs.File{file}
	}

	carrier := make([]byte, 0, len(file.Contents))
	offsets := make([]int, 0, len(regions))
	out := make([]*vfs.File, 1, len(regions)+1)
	prev := 0
	for i, r := range regions {
		carrier = append(carrier, file.Contents[prev:r.Start]...)
		offsets = append(offsets, len(carrier))
		script := append([]byte(nil), file.Contents[r.Start:r.End]...)
		out = append(out, &vfs.File{Path: SyntheticPath(file.Path, i), Contents: script})
		prev = r.End
	}
	carrier = append(carrier, file.Contents[prev:]...)

	s.registry.put(&Record{Path: file.Path, Carrier: carrier, Offsets: offsets})
	out[0] = file.WithContents(carrier)
	if len(regions) > 0 {
		observability.ScriptsSplitTotal.Add(float64(len(regions)))
		s.log.Debug("split inline scripts", "path", file.Path, "scripts", len(regions))
	}
	return out
}
