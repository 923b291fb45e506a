package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cometadata/crossref-citation-extraction/internal/ident"
	"github.com/cometadata/crossref-citation-extraction/internal/record"
	"github.com/cometadata/crossref-citation-extraction/internal/validate"
)

// outputWriter buffers JSON-lines records to a temporary file and renames
// it into place on Close, giving §7's "final flush-and-rename step" atomic
// commit discipline: a reader never observes a partially-written output
// file.
type outputWriter struct {
	finalPath string
	tmpPath   string
	f         *os.File
	bw        *bufio.Writer
}

func newOutputWriter(path string) (*outputWriter, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create output temp file %s: %w", tmp, err)
	}
	return &outputWriter{
		finalPath: path,
		tmpPath:   tmp,
		f:         f,
		bw:        bufio.NewWriter(f),
	}, nil
}

func (w *outputWriter) writeRecord(rec record.InvertedRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("pipeline: marshal output record %s: %w", rec.DOI, err)
	}
	if _, err := w.bw.Write(b); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

// commit flushes, closes, and atomically renames the temp file into place.
// On any error prior to commit, the caller should call abort instead.
func (w *outputWriter) commit() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("pipeline: flush output %s: %w", w.tmpPath, err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("pipeline: close output %s: %w", w.tmpPath, err)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		return fmt.Errorf("pipeline: rename %s to %s: %w", w.tmpPath, w.finalPath, err)
	}
	return nil
}

func (w *outputWriter) abort() {
	w.f.Close()
	os.Remove(w.tmpPath)
}

// withArxivIdentity rewrites rec for arXiv-mode output per §6.5: the
// top-level doi becomes the canonical arXiv DOI form, and arxiv_id /
// arxiv_doi are both populated.
func withArxivIdentity(rec record.InvertedRecord) record.InvertedRecord {
	rec.ArxivID = rec.DOI
	rec.ArxivDOI = ident.CanonicalArxivDOI(rec.DOI)
	rec.DOI = rec.ArxivDOI
	return rec
}

// splitWriters holds the three destination writers for a split-enabled
// run: the unfiltered output plus the two provenance-class outputs of
// §6.6.
type splitWriters struct {
	main     *outputWriter
	asserted *outputWriter
	mined    *outputWriter
}

func newSplitWriters(path string, split bool) (*splitWriters, error) {
	main, err := newOutputWriter(path)
	if err != nil {
		return nil, err
	}
	sw := &splitWriters{main: main}
	if !split {
		return sw, nil
	}
	sw.asserted, err = newOutputWriter(path + "_asserted")
	if err != nil {
		main.abort()
		return nil, err
	}
	sw.mined, err = newOutputWriter(path + "_mined")
	if err != nil {
		main.abort()
		sw.asserted.abort()
		return nil, err
	}
	return sw, nil
}

func (sw *splitWriters) writeRecord(rec record.InvertedRecord) error {
	if err := sw.main.writeRecord(rec); err != nil {
		return err
	}
	if sw.asserted == nil {
		return nil
	}
	if filtered, ok := validate.Filter(rec, validate.ClassAsserted); ok {
		if err := sw.asserted.writeRecord(filtered); err != nil {
			return err
		}
	}
	if filtered, ok := validate.Filter(rec, validate.ClassMined); ok {
		if err := sw.mined.writeRecord(filtered); err != nil {
			return err
		}
	}
	return nil
}

func (sw *splitWriters) commit() error {
	if err := sw.main.commit(); err != nil {
		return err
	}
	if sw.asserted != nil {
		if err := sw.asserted.commit(); err != nil {
			return err
		}
	}
	if sw.mined != nil {
		if err := sw.mined.commit(); err != nil {
			return err
		}
	}
	return nil
}

func (sw *splitWriters) abort() {
	sw.main.abort()
	if sw.asserted != nil {
		sw.asserted.abort()
	}
	if sw.mined != nil {
		sw.mined.abort()
	}
}
