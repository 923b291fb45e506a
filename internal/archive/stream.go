// ===========================================================================
//
//                            PUBLIC DOMAIN NOTICE
//            National Center for Biotechnology Information (NCBI)
//
//  Portions of this file adapt NCBI's EDirect archive/XML streaming idiom
//  (channel-of-records over a decompressing reader) to this module's
//  gzipped-tar-of-JSON input shape. The original is a United States
//  Government Work, freely available to the public.
//
// ===========================================================================

// Package archive implements the streaming decoder of §4.1: it walks a
// gzipped tar archive of JSON batch documents without materialising the
// archive on disk or holding more than one entry's document in memory at
// a time, and yields individual citing-work records on a channel — the
// same channel-of-records shape the teacher corpus uses for its own
// XML archive streamer (CreateXMLStreamer / PartitionXML).
package archive

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/pgzip"

	"github.com/cometadata/crossref-citation-extraction/internal/record"
)

// SkipFunc is called for every recoverable failure: a tar entry that
// fails to parse as JSON, or a malformed record within an otherwise valid
// entry. It is never called for gzip/tar framing errors, which are fatal
// per §4.1/§7.
type SkipFunc func(entry string, err error)

// Stream decompresses and walks path, a gzipped tar archive of JSON batch
// documents, emitting one record.CitingWork per item across every batch
// in every regular tar entry, in archive order. It returns immediately;
// all I/O happens in a background goroutine that closes both returned
// channels when done. The error channel carries at most one value: a
// fatal open or framing error, or nothing if the archive was consumed
// successfully.
//
// Memory use is bounded by one tar entry's JSON document plus up to
// chanDepth buffered CitingWorks — the archive itself is never buffered
// whole, and the channel provides backpressure, so Stream reads ahead of
// the consumer by at most that much.
func Stream(path string, chanDepth int, skip SkipFunc) (<-chan record.CitingWork, <-chan error) {
	if chanDepth < 1 {
		chanDepth = 16
	}

	out := make(chan record.CitingWork, chanDepth)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		f, err := os.Open(path)
		if err != nil {
			errc <- fmt.Errorf("archive: open %s: %w", path, err)
			return
		}
		defer f.Close()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			errc <- fmt.Errorf("archive: gzip framing: %w", err)
			return
		}
		defer gz.Close()

		tr := tar.NewReader(gz)

		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				errc <- fmt.Errorf("archive: tar framing: %w", err)
				return
			}
			if !hdr.FileInfo().Mode().IsRegular() || hdr.Size == 0 {
				continue
			}

			var batch struct {
				Items []json.RawMessage `json:"items"`
			}
			dec := json.NewDecoder(tr)
			if err := dec.Decode(&batch); err != nil {
				if skip != nil {
					skip(hdr.Name, fmt.Errorf("malformed JSON entry: %w", err))
				}
				continue
			}

			for i, raw := range batch.Items {
				var item record.CitingWork
				if err := json.Unmarshal(raw, &item); err != nil {
					if skip != nil {
						skip(hdr.Name, fmt.Errorf("malformed record %d: %w", i, err))
					}
					continue
				}
				out <- item
			}
		}
	}()

	return out, errc
}
