package partition

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/cometadata/crossref-citation-extraction/internal/record"
)

// shard is one partition's in-memory buffer plus its append-only file
// handle and zstd stream, guarded by its own mutex — the per-key locking
// the teacher's Inverter.ilock idiom uses for its own map-of-shards
// structure, applied here to physical file writes instead of an in-memory
// map.
type shard struct {
	mu     sync.Mutex
	key    string
	buf    []record.ExtractionRow
	file   *os.File
	bw     *bufio.Writer
	zw     *zstd.Encoder
	opened bool
}

// Writer is the partition fan-out buffer of §4.3: a single-producer-safe
// mapping from partition key to columnar shard, flushing each shard's
// buffer as a row group once it reaches batchRows.
type Writer struct {
	dir       string
	batchRows int

	mu     sync.Mutex
	shards map[string]*shard
}

// NewWriter creates a Writer rooted at dir, which must already exist.
// batchRows is the row-count threshold from §6.8's "Partition batch
// threshold" configuration option; values less than 1 fall back to a
// fixed 250,000 rows. The memory-scaled default of internal/tuning is
// applied by the caller (internal/pipeline), not here.
func NewWriter(dir string, batchRows int) *Writer {
	if batchRows < 1 {
		batchRows = 250_000
	}
	return &Writer{
		dir:       dir,
		batchRows: batchRows,
		shards:    make(map[string]*shard),
	}
}

func (w *Writer) shardFor(key string) (*shard, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s, ok := w.shards[key]; ok {
		return s, nil
	}

	s := &shard{key: key}
	w.shards[key] = s
	return s, nil
}

func (s *shard) ensureOpen(dir string) error {
	if s.opened {
		return nil
	}
	path := filepath.Join(dir, s.key+".parquet")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("partition: open shard %s: %w", path, err)
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return fmt.Errorf("partition: create zstd writer for %s: %w", path, err)
	}
	s.file = f
	s.zw = zw
	s.bw = bufio.NewWriter(zw)
	s.opened = true
	return nil
}

// WriteRow appends one ExtractionRow to the shard derived from row's
// CitedID, per §4.3's invariant that partition_key(cited_id) equals the
// shard's name. WriteRow is safe for concurrent use across distinct keys;
// callers writing to the same key concurrently serialize on that shard's
// mutex, matching §5's "partition writer made multi-producer with per-key
// locks" allowance.
func (w *Writer) WriteRow(row record.ExtractionRow) error {
	key := KeyFor(row.CitedID)
	s, err := w.shardFor(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, row)
	if len(s.buf) >= w.batchRows {
		return s.flushLocked(w.dir)
	}
	return nil
}

// flushLocked writes the shard's buffered rows as one row group and
// clears the buffer. Callers must hold s.mu.
func (s *shard) flushLocked(dir string) error {
	if len(s.buf) == 0 {
		return nil
	}
	if err := s.ensureOpen(dir); err != nil {
		return err
	}
	if err := EncodeRowGroup(s.bw, s.buf); err != nil {
		return fmt.Errorf("partition: encode row group for %s: %w", s.key, err)
	}
	if err := s.bw.Flush(); err != nil {
		return fmt.Errorf("partition: flush buffered writer for %s: %w", s.key, err)
	}
	s.buf = s.buf[:0]
	return nil
}

// FlushAll flushes every non-empty shard buffer and closes every open file
// handle, per §4.3's shutdown contract. It is safe to call exactly once,
// at the end of extraction.
func (w *Writer) FlushAll() error {
	w.mu.Lock()
	shards := make([]*shard, 0, len(w.shards))
	for _, s := range w.shards {
		shards = append(shards, s)
	}
	w.mu.Unlock()

	var firstErr error
	for _, s := range shards {
		s.mu.Lock()
		if err := s.flushLocked(w.dir); err != nil && firstErr == nil {
			firstErr = err
		}
		if s.opened {
			if err := s.zw.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("partition: close zstd writer for %s: %w", s.key, err)
			}
			if err := s.file.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("partition: close file for %s: %w", s.key, err)
			}
		}
		s.mu.Unlock()
	}
	return firstErr
}

// Keys returns the set of partition keys that have been written to so
// far, in no particular order. The inverter does not use it: it discovers
// shard files from a directory listing (invert.DiscoverPartitions).
func (w *Writer) Keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	keys := make([]string, 0, len(w.shards))
	for k := range w.shards {
		keys = append(keys, k)
	}
	return keys
}

// Dir returns the directory this Writer's shard files live in.
func (w *Writer) Dir() string { return w.dir }
