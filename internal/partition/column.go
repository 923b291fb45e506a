package partition

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/cometadata/crossref-citation-extraction/internal/record"
)

// magic identifies one row group in this repo's columnar batch framing.
// Partition files keep the ".parquet" extension name from §6.4 for
// interface compatibility, but the encoding here is a sequence of
// column-of-arrays row groups inside a single zstd stream, not Apache
// Parquet — see SPEC_FULL.md §4.3 and DESIGN.md for why.
var magic = [6]byte{'E', 'X', 'R', 'O', 'W', '1'}

// columns are written in a fixed order: citing_id, ref_index, ref_json,
// raw_match, cited_id, provenance. Keeping them as separate contiguous
// arrays (rather than row-major JSON) is what makes this "columnar": a
// reader that only needs cited_id for grouping never has to touch
// ref_json's bytes for that row group.

func writeString(w *bufio.Writer, s string) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(s)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r io.Reader) (string, error) {
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

func writeUvarint(w *bufio.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

func readUvarint(r io.Reader) (uint64, error) {
	return binary.ReadUvarint(byteReader{r})
}

// byteReader adapts any io.Reader to io.ByteReader one byte at a time, for
// use with encoding/binary's varint readers. It is only used for the small
// per-field length/value prefixes, never for bulk payload bytes.
type byteReader struct {
	io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(b.Reader, buf[:])
	return buf[0], err
}

// EncodeRowGroup writes one columnar row group (magic, row count, then
// each column's array in turn) to w. An empty rows slice still writes a
// valid zero-row group. Multiple row groups may be concatenated by
// calling EncodeRowGroup repeatedly against the same underlying
// zstd-compressed stream; see shard.flushLocked.
func EncodeRowGroup(w *bufio.Writer, rows []record.ExtractionRow) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := writeUvarint(w, uint64(len(rows))); err != nil {
		return err
	}

	for _, r := range rows {
		if err := writeString(w, r.CitingID); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := writeUvarint(w, uint64(r.RefIndex)); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := writeString(w, r.RefJSON); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := writeString(w, r.RawMatch); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := writeString(w, r.CitedID); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := writeUvarint(w, uint64(r.Provenance)); err != nil {
			return err
		}
	}
	return nil
}

// ErrEndOfRowGroups is returned by DecodeRowGroup when the stream is
// exhausted at a row-group boundary (a clean end, not a truncated group).
var ErrEndOfRowGroups = errors.New("partition: end of row groups")

// DecodeRowGroup reads one row group from r. It returns ErrEndOfRowGroups
// when r is exhausted before any bytes of a new group are read.
func DecodeRowGroup(r io.Reader) ([]record.ExtractionRow, error) {
	var got [6]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEndOfRowGroups
		}
		return nil, fmt.Errorf("partition: read magic: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("partition: bad magic %q", got)
	}

	n, err := readUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("partition: read row count: %w", err)
	}

	rows := make([]record.ExtractionRow, n)

	for i := range rows {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("partition: read citing_id[%d]: %w", i, err)
		}
		rows[i].CitingID = s
	}
	for i := range rows {
		v, err := readUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("partition: read ref_index[%d]: %w", i, err)
		}
		rows[i].RefIndex = int(v)
	}
	for i := range rows {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("partition: read ref_json[%d]: %w", i, err)
		}
		rows[i].RefJSON = s
	}
	for i := range rows {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("partition: read raw_match[%d]: %w", i, err)
		}
		rows[i].RawMatch = s
	}
	for i := range rows {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("partition: read cited_id[%d]: %w", i, err)
		}
		rows[i].CitedID = s
	}
	for i := range rows {
		v, err := readUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("partition: read provenance[%d]: %w", i, err)
		}
		rows[i].Provenance = int(v)
	}

	return rows, nil
}

// ReadAll decompresses and decodes every row group in path, in on-disk
// order, into a single row slice.
func ReadAll(path string) ([]record.ExtractionRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return ReadAllFrom(f)
}

// ReadAllFrom is ReadAll parameterised over an already-opened reader, so
// tests can exercise it against an in-memory buffer.
func ReadAllFrom(rc io.ReadCloser) ([]record.ExtractionRow, error) {
	defer rc.Close()

	zr, err := zstd.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("partition: create zstd reader: %w", err)
	}
	defer zr.Close()

	var all []record.ExtractionRow
	for {
		rows, err := DecodeRowGroup(zr)
		if errors.Is(err, ErrEndOfRowGroups) {
			break
		}
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}
