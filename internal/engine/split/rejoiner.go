package split

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"

	"polybuild/internal/core/errors"
	"polybuild/internal/engine/vfs"
)

type group struct {
	carrier *vfs.File
	scripts map[int]*vfs.File
}

// Rejoiner collects each carrier and its synthetic siblings, in any order,
// and emits the reassembled carrier once all have arrived. Synthetic files
// are never emitted: one whose carrier is not awaiting rejoin is an error.
// Other files the splitter did not record pass through.
type Rejoiner struct {
	finder   RegionFinder
	registry *Registry
	log      *slog.Logger
	groups   map[string]*group
}

func NewRejoiner(finder RegionFinder, registry *Registry, logger *slog.Logger) *Rejoiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rejoiner{finder: finder, registry: registry, log: logger, groups: make(map[string]*group)}
}

// Run consumes in until it closes, then closes out. Groups still incomplete
// when in closes are a protocol error.
func (r *Rejoiner) Run(ctx context.Context, in <-chan *vfs.File, out chan<- *vfs.File) error {
	defer close(out)
	for {
		select {
		case file, ok := <-in:
			if !ok {
				return r.incompleteError()
			}
			joined, err := r.Add(file)
			if err != nil {
				return err
			}
			if joined == nil {
				continue
			}
			select {
			case out <- joined:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Add takes one file and returns the file to emit, or nil while its group
// is incomplete.
func (r *Rejoiner) Add(file *vfs.File) (*vfs.File, error) {
	if carrierKey, index, ok := parseSynthetic(file.Path); ok {
		rec, known := r.registry.lookup(carrierKey)
		if !known {
			return nil, errors.AddContext(
				errors.New(errors.CodeProtocolMisuse, fmt.Sprintf("script %d has no carrier awaiting rejoin", index)),
				errors.CtxPath, file.Path,
			)
		}
		if index >= rec.Count() {
			return nil, errors.AddContext(
				errors.New(errors.CodeProtocolMisuse, fmt.Sprintf("script %d out of range for %s", index, rec.Path)),
				errors.CtxPath, file.Path,
			)
		}
		g := r.group(carrierKey)
		g.scripts[index] = file
		return r.tryJoin(carrierKey, rec, g)
	}

	key := Key(file.Path)
	rec, known := r.registry.lookup(key)
	if !known {
		return file, nil
	}
	g := r.group(key)
	g.carrier = file
	return r.tryJoin(key, rec, g)
}

func (r *Rejoiner) group(key string) *group {
	g, ok := r.groups[key]
	if !ok {
		g = &group{scripts: make(map[int]*vfs.File)}
		r.groups[key] = g
	}
	return g
}

func (r *Rejoiner) tryJoin(key string, rec *Record, g *group) (*vfs.File, error) {
	if g.carrier == nil || len(g.scripts) < rec.Count() {
		return nil, nil
	}
	delete(r.groups, key)
	r.registry.remove(key)

	contents, err := r.join(rec, g)
	if err != nil {
		return nil, err
	}
	return &vfs.File{Path: rec.Path, Contents: contents}, nil
}

// join re-inserts the scripts. An untouched carrier uses the recorded cut
// offsets; a modified one is re-scanned and its k-th script region filled.
func (r *Rejoiner) join(rec *Record, g *group) ([]byte, error) {
	current := g.carrier.Contents
	if rec.Count() == 0 {
		return current, nil
	}

	offsets := rec.Offsets
	if !bytes.Equal(current, rec.Carrier) {
		regions, err := r.finder.FindRegions(current)
		if err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "rescan carrier"), errors.CtxPath, rec.Path)
		}
		if len(regions) != rec.Count() {
			return nil, errors.AddContext(
				errors.New(errors.CodeConflict, fmt.Sprintf("carrier %s now has %d script regions, expected %d", rec.Path, len(regions), rec.Count())),
				errors.CtxPath, rec.Path,
			)
		}
		return fill(current, regions, g.scripts), nil
	}

	var buf bytes.Buffer
	prev := 0
	for i, off := range offsets {
		buf.Write(current[prev:off])
		buf.Write(g.scripts[i].Contents)
		prev = off
	}
	buf.Write(current[prev:])
	return buf.Bytes(), nil
}

func fill(current []byte, regions []vfs.Range, scripts map[int]*vfs.File) []byte {
	var buf bytes.Buffer
	prev := 0
	for i, region := range regions {
		buf.Write(current[prev:region.Start])
		buf.Write(scripts[i].Contents)
		prev = region.End
	}
	buf.Write(current[prev:])
	return buf.Bytes()
}

func (r *Rejoiner) incompleteError() error {
	if len(r.groups) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.groups))
	for key := range r.groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		r.log.Error("split group never completed", "carrier", key)
	}
	return errors.AddContext(
		errors.New(errors.CodeProtocolMisuse, fmt.Sprintf("%d split carrier(s) incomplete at end of stream", len(keys))),
		errors.CtxCount, len(keys),
	)
}
