// Package index implements the identifier authority set of §4.5: given a
// stream of canonical identifiers, it builds a structure supporting exact
// membership and prefix membership tests, with an optional pebble-backed
// disk overflow for authority sets too large to hold comfortably in
// memory (the 10^7-identifier capacity hint).
package index

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/pebble/v2"
)

// Index is a set of canonical identifiers plus their prefixes. It is
// append-only during the build phase (Add) and read-only once handed to
// concurrent validator workers (Contains / ContainsPrefix never mutate
// state and take only a read lock, so concurrent lookups do not block
// one another once a build completes).
type Index struct {
	mu       sync.RWMutex
	ids      map[string]struct{}
	prefixes map[string]struct{}

	disk    *pebble.DB
	diskDir string

	malformed int
}

// New returns an empty in-memory Index.
func New() *Index {
	return &Index{
		ids:      make(map[string]struct{}),
		prefixes: make(map[string]struct{}),
	}
}

// WithDiskBacking returns an empty Index whose identifier set overflows to
// a pebble store rooted at dir instead of the in-memory map. The prefix
// set always stays in memory: its cardinality (10^5) is small relative to
// the identifier set (10^7) per §4.5's capacity hint.
func WithDiskBacking(dir string) (*Index, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("index: open disk backing at %s: %w", dir, err)
	}
	return &Index{
		ids:      make(map[string]struct{}),
		prefixes: make(map[string]struct{}),
		disk:     db,
		diskDir:  dir,
	}, nil
}

// Close releases the disk-backed store, if any. It is a no-op for
// in-memory indexes.
func (ix *Index) Close() error {
	if ix.disk != nil {
		return ix.disk.Close()
	}
	return nil
}

// Add inserts a canonical identifier and its prefix. prefix is supplied by
// the caller (ident.Identifier.Prefix) rather than recomputed here, since
// this package has no notion of DOI vs. arXiv shape.
func (ix *Index) Add(canonical, prefix string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if prefix != "" {
		ix.prefixes[prefix] = struct{}{}
	}

	if ix.disk != nil {
		return ix.disk.Set([]byte(canonical), nil, pebble.NoSync)
	}
	ix.ids[canonical] = struct{}{}
	return nil
}

// Contains reports exact membership.
func (ix *Index) Contains(canonical string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.disk != nil {
		_, closer, err := ix.disk.Get([]byte(canonical))
		if err != nil {
			return false
		}
		closer.Close()
		return true
	}
	_, ok := ix.ids[canonical]
	return ok
}

// ContainsPrefix reports prefix membership.
func (ix *Index) ContainsPrefix(prefix string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.prefixes[prefix]
	return ok
}

// Len reports the number of distinct identifiers inserted. For a
// disk-backed index this requires a full scan and is intended for
// diagnostics/stats printing, not hot paths.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.disk == nil {
		return len(ix.ids)
	}
	iter, err := ix.disk.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0
	}
	defer iter.Close()
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n
}

// Malformed reports how many lines BuildFromStream skipped as unparsable.
func (ix *Index) Malformed() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.malformed
}

type idLine struct {
	ID     string `json:"id"`
	Prefix string `json:"prefix,omitempty"`
}

// BuildFromStream reads a gzipped JSON-lines stream from r, one idLine per
// line, inserting each into ix. Malformed lines are counted via Malformed
// and skipped rather than treated as fatal, per §4.5. prefixOf derives a
// prefix from an identifier when the source line doesn't carry one
// already (callers typically pass ident.Identifier{...}.Prefix via a
// small adapter, since this package doesn't know DOI/arXiv shape).
func (ix *Index) BuildFromStream(r io.Reader, prefixOf func(id string) string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("index: gzip framing: %w", err)
	}
	defer gz.Close()

	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec idLine
		if err := json.Unmarshal(line, &rec); err != nil || rec.ID == "" {
			ix.mu.Lock()
			ix.malformed++
			ix.mu.Unlock()
			continue
		}
		prefix := rec.Prefix
		if prefix == "" && prefixOf != nil {
			prefix = prefixOf(rec.ID)
		}
		if err := ix.Add(rec.ID, prefix); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("index: scan identifier stream: %w", err)
	}
	return nil
}

// BuildFromFile opens path (a gzipped JSON-lines file of identifiers) and
// builds an in-memory Index from it.
func BuildFromFile(path string, prefixOf func(id string) string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	defer f.Close()

	ix := New()
	if err := ix.BuildFromStream(f, prefixOf); err != nil {
		return nil, err
	}
	return ix, nil
}
