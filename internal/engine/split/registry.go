// Package split carves inline scripts out of HTML documents into sibling
// files and reassembles them after downstream stages have run.
package split

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"polybuild/internal/engine/vfs"
)

// RegionFinder locates inline script bodies in a document.
type RegionFinder interface {
	FindRegions(contents []byte) ([]vfs.Range, error)
}

// Record remembers how a carrier was split so its scripts can be put back.
type Record struct {
	// Path is the carrier path as it entered the splitter.
	Path string
	// Carrier is the emitted carrier body, scripts removed.
	Carrier []byte
	// Offsets holds, per script index, where the script was cut out of Carrier.
	Offsets []int
}

func (r *Record) Count() int {
	return len(r.Offsets)
}

// Registry is shared by the split and rejoin stages of one pipeline.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

func (r *Registry) put(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[Key(rec.Path)] = rec
}

func (r *Registry) lookup(key string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	return rec, ok
}

func (r *Registry) remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, key)
}

// Len returns the number of carriers split but not yet rejoined.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

const syntheticInfix = "_script_"

var syntheticPattern = regexp.MustCompile(`^(.+)` + syntheticInfix + `(\d+)\.js$`)

// SyntheticPath names the index-th script extracted from carrier.
func SyntheticPath(carrier string, index int) string {
	return fmt.Sprintf("%s%s%d.js", carrier, syntheticInfix, index)
}

// Key is the separator-independent identity of a path.
func Key(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// parseSynthetic splits a synthetic path into its carrier key and index.
func parseSynthetic(p string) (string, int, bool) {
	m := syntheticPattern.FindStringSubmatch(Key(p))
	if m == nil {
		return "", 0, false
	}
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], index, true
}
