// Package invert implements the partition inverter of §4.4: a
// data-parallel pass over partition shards that deduplicates citing/cited
// pairs, groups by cited identifier, and emits InvertedRecords in a single
// globally ordered stream via a fixed worker pool and a heap-based k-way
// merge — the same shape as the teacher corpus's own CreatePresenters /
// CreateManifold pipeline, specialised from "merge records sharing an
// identifier across files" to "merge disjoint, already-ordered per-shard
// streams into one total order".
package invert

import (
	"container/heap"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cometadata/crossref-citation-extraction/internal/metrics"
	"github.com/cometadata/crossref-citation-extraction/internal/partition"
	"github.com/cometadata/crossref-citation-extraction/internal/record"
	"github.com/cometadata/crossref-citation-extraction/internal/tuning"
)

// DiscoverPartitions lists the partition shard keys present in dir, i.e.
// every "<key>.parquet" file's key, derived from a directory listing
// rather than Writer.Keys so that a restart can discover partitions
// written by a prior process.
func DiscoverPartitions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("invert: list partition dir %s: %w", dir, err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(name, ".parquet") {
			keys = append(keys, strings.TrimSuffix(name, ".parquet"))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// invertPartition loads one shard file and produces its InvertedRecords,
// locally ordered by (-citation_count, cited_id ascending) per §4.4.
func invertPartition(dir, key string) ([]record.InvertedRecord, error) {
	rows, err := partition.ReadAll(filepath.Join(dir, key+".parquet"))
	if err != nil {
		return nil, fmt.Errorf("invert: read partition %s: %w", key, err)
	}

	type rawMatch struct {
		raw  string
		ref  string
		prov int
	}
	type citingGroup struct {
		matches []rawMatch
		seen    map[[2]string]bool // (raw_match, ref_index) distinctness
	}

	groups := make(map[string]map[string]*citingGroup) // cited_id -> citing_id -> group

	for _, r := range rows {
		if r.CitingID == r.CitedID {
			continue // defence in depth against self-citation
		}

		byCiting, ok := groups[r.CitedID]
		if !ok {
			byCiting = make(map[string]*citingGroup)
			groups[r.CitedID] = byCiting
		}

		g, ok := byCiting[r.CitingID]
		if !ok {
			g = &citingGroup{seen: make(map[[2]string]bool)}
			byCiting[r.CitingID] = g
		}

		dedupKey := [2]string{r.RawMatch, fmt.Sprint(r.RefIndex)}
		if g.seen[dedupKey] {
			continue
		}
		g.seen[dedupKey] = true

		g.matches = append(g.matches, rawMatch{raw: r.RawMatch, ref: r.RefJSON, prov: r.Provenance})
	}

	out := make([]record.InvertedRecord, 0, len(groups))
	for citedID, byCiting := range groups {
		citingIDs := make([]string, 0, len(byCiting))
		for cid := range byCiting {
			citingIDs = append(citingIDs, cid)
		}
		sort.Strings(citingIDs)

		citedBy := make([]record.CitedBy, 0, len(byCiting))
		refCount := 0
		for _, cid := range citingIDs {
			g := byCiting[cid]

			matches := make([]record.Match, 0, len(g.matches))
			best := 0
			for _, m := range g.matches {
				if m.prov > best {
					best = m.prov
				}
				matches = append(matches, record.Match{
					RawMatch:   m.raw,
					Reference:  []byte(m.ref),
					Provenance: identProvenanceString(m.prov),
				})
			}

			citedBy = append(citedBy, record.CitedBy{
				CitingDOI:  cid,
				Provenance: identProvenanceString(best),
				Matches:    matches,
			})
			refCount += len(matches)
		}

		ir := record.InvertedRecord{
			DOI:            citedID,
			ReferenceCount: refCount,
			CitationCount:  len(citedBy),
			CitedBy:        citedBy,
		}
		out = append(out, ir)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CitationCount != out[j].CitationCount {
			return out[i].CitationCount > out[j].CitationCount
		}
		return out[i].DOI < out[j].DOI
	})

	return out, nil
}

func identProvenanceString(p int) string {
	switch p {
	case 2:
		return "publisher"
	case 1:
		return "crossref"
	default:
		return "mined"
	}
}

// cursor is a read position within one partition's already-materialized,
// locally-sorted []InvertedRecord slice, used by the merge below to track
// "which slice, how far into it" without copying the slice itself.
type cursor struct {
	rec  record.InvertedRecord
	from int // index into the per-partition results slice
	next int // index of the next unread record in that partition's slice
}

type cursorHeap []cursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	if h[i].rec.CitationCount != h[j].rec.CitationCount {
		return h[i].rec.CitationCount > h[j].rec.CitationCount
	}
	return h[i].rec.DOI < h[j].rec.DOI
}
func (h cursorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(cursor)) }
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Run processes every partition shard in dir with a fixed pool of
// tuning.Workers() goroutines, skipping partitions already marked done in
// the checkpoint at checkpointPath, and returns a single channel of
// InvertedRecords in the global (-citation_count, cited_id) order
// guaranteed by §4.4, plus an error channel carrying at most one fatal
// error (partition I/O or checkpoint I/O; both are fatal per §7).
//
// Each worker fully materializes its partition's []InvertedRecord (already
// sorted by invertPartition) before the merge begins — there is no
// per-partition channel to block on, so a pending-partition count larger
// than the worker pool, or partitions producing more records than any
// fixed buffer, can never deadlock the merge the way a bounded
// channel-per-partition scheme would. Peak memory is one []InvertedRecord
// per partition held concurrently, which is the same data invertPartition
// already builds in full before returning.
func Run(dir, checkpointPath string) (<-chan record.InvertedRecord, <-chan error) {
	out := make(chan record.InvertedRecord, tuning.ChanDepth())
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		keys, err := DiscoverPartitions(dir)
		if err != nil {
			errc <- err
			return
		}

		done, _, err := Load(checkpointPath)
		if err != nil {
			errc <- err
			return
		}

		cp, err := OpenCheckpoint(checkpointPath)
		if err != nil {
			errc <- err
			return
		}
		defer cp.Close()

		var pending []string
		for _, k := range keys {
			if !done[k] {
				pending = append(pending, k)
			}
		}

		type job struct {
			idx int
			key string
		}
		jobs := make(chan job, len(pending))
		for i, k := range pending {
			jobs <- job{idx: i, key: k}
		}
		close(jobs)

		results := make([][]record.InvertedRecord, len(pending))

		var cpMu sync.Mutex
		var firstErr error
		var errMu sync.Mutex

		var wg sync.WaitGroup
		workers := tuning.Workers()
		if workers < 1 {
			workers = 1
		}
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range jobs {
					recs, err := invertPartition(dir, j.key)
					if err != nil {
						errMu.Lock()
						if firstErr == nil {
							firstErr = err
						}
						errMu.Unlock()
						continue
					}
					metrics.PartitionsInvertedTotal.Inc()
					metrics.InvertedRecordsTotal.Add(float64(len(recs)))
					results[j.idx] = recs

					cpMu.Lock()
					cpErr := cp.MarkPartitionDone(j.key)
					cpMu.Unlock()
					if cpErr != nil {
						errMu.Lock()
						if firstErr == nil {
							firstErr = cpErr
						}
						errMu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		if firstErr != nil {
			errc <- firstErr
			return
		}

		// k-way merge over the fully-materialized, already-sorted
		// per-partition slices: prime the heap with each partition's
		// first record, then repeatedly pop the globally-least element
		// and push that partition's next record, if any.
		hp := &cursorHeap{}
		heap.Init(hp)
		for i, recs := range results {
			if len(recs) > 0 {
				heap.Push(hp, cursor{rec: recs[0], from: i, next: 1})
			}
		}

		for hp.Len() > 0 {
			top := heap.Pop(hp).(cursor)
			out <- top.rec
			if recs := results[top.from]; top.next < len(recs) {
				heap.Push(hp, cursor{rec: recs[top.next], from: top.from, next: top.next + 1})
			}
		}

		if err := cp.MarkRunDone(); err != nil {
			errc <- err
		}
	}()

	return out, errc
}
