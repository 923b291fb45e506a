package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Persistence format: a single zstd-compressed stream of
// length-prefixed strings, one per identifier (or prefix). This is the
// "single-column columnar file" of §4.5 — a specialisation of the
// row-group framing internal/partition uses for multi-column
// ExtractionRows, reduced to one column since an authority set carries
// no sibling fields.

func writeLengthPrefixed(w *bufio.Writer, s string) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	if _, err := w.Write(buf[:n]); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

type byteReader struct{ io.Reader }

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(b.Reader, buf[:])
	return buf[0], err
}

func readLengthPrefixed(r io.Reader) (string, error) {
	n, err := binary.ReadUvarint(byteReader{r})
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeColumn(path string, values func(yield func(string) bool)) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("index: create %s: %w", path, err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("index: create zstd writer for %s: %w", path, err)
	}
	bw := bufio.NewWriter(zw)

	var writeErr error
	values(func(s string) bool {
		if err := writeLengthPrefixed(bw, s); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	if writeErr != nil {
		return fmt.Errorf("index: write column %s: %w", path, writeErr)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return zw.Close()
}

func readColumn(path string, insert func(string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("index: create zstd reader for %s: %w", path, err)
	}
	defer zr.Close()

	for {
		s, err := readLengthPrefixed(zr)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("index: read column %s: %w", path, err)
		}
		insert(s)
	}
}

// Save writes ix's identifier set to path, and its prefix set to
// path+".prefixes".
func (ix *Index) Save(path string) error {
	if ix.disk != nil {
		return fmt.Errorf("index: Save is not supported for disk-backed indexes")
	}

	ix.mu.RLock()
	ids := make([]string, 0, len(ix.ids))
	for id := range ix.ids {
		ids = append(ids, id)
	}
	prefixes := make([]string, 0, len(ix.prefixes))
	for p := range ix.prefixes {
		prefixes = append(prefixes, p)
	}
	ix.mu.RUnlock()

	if err := writeColumn(path, func(yield func(string) bool) {
		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}); err != nil {
		return err
	}

	return writeColumn(path+".prefixes", func(yield func(string) bool) {
		for _, p := range prefixes {
			if !yield(p) {
				return
			}
		}
	})
}

// Load reads an identifier column from path into a fresh in-memory Index.
// If the adjacent path+".prefixes" file is absent, prefixes are rebuilt
// from identifiers via prefixOf, per §4.5.
func Load(path string, prefixOf func(id string) string) (*Index, error) {
	ix := New()

	if err := readColumn(path, func(id string) {
		ix.ids[id] = struct{}{}
	}); err != nil {
		return nil, err
	}

	prefixPath := path + ".prefixes"
	if _, err := os.Stat(prefixPath); err == nil {
		if err := readColumn(prefixPath, func(p string) {
			ix.prefixes[p] = struct{}{}
		}); err != nil {
			return nil, err
		}
		return ix, nil
	}

	if prefixOf != nil {
		for id := range ix.ids {
			ix.prefixes[prefixOf(id)] = struct{}{}
		}
	}
	return ix, nil
}
