// Package extract wires the archive streamer, the identifier extractor,
// and the partition writer into the driver of §4.1: for every citing work
// in the archive it extracts identifiers from every reference, drops
// self-citations, writes the survivors as ExtractionRows, and opportunely
// records the citing identifier itself in a local-authority index.
package extract

import (
	"fmt"

	"github.com/cometadata/crossref-citation-extraction/internal/archive"
	"github.com/cometadata/crossref-citation-extraction/internal/ident"
	"github.com/cometadata/crossref-citation-extraction/internal/index"
	"github.com/cometadata/crossref-citation-extraction/internal/metrics"
	"github.com/cometadata/crossref-citation-extraction/internal/partition"
	"github.com/cometadata/crossref-citation-extraction/internal/record"
)

// Stats accumulates counters for the orchestrator's end-of-run report.
type Stats struct {
	WorksSeen      int
	WorksSkipped   int // missing/malformed citing identifier
	ReferencesSeen int
	RowsWritten    int
	SelfCitations  int
	MalformedBatch int // malformed tar-entry JSON or record, surfaced via SkipFunc
}

// Driver runs the extraction pass described by §4.1.
type Driver struct {
	Mode      ident.Mode
	Writer    *partition.Writer
	Authority *index.Index // local-authority index (authority A), populated as a side effect

	ChanDepth int
}

// Run streams archivePath and drives extraction into d.Writer, returning
// accumulated Stats. It does not call d.Writer.FlushAll; the caller owns
// that, since the same Writer may be shared across multiple archives.
func (d *Driver) Run(archivePath string) (Stats, error) {
	var stats Stats

	skip := func(entry string, err error) {
		stats.MalformedBatch++
		metrics.MalformedEntriesTotal.Inc()
	}

	works, errc := archive.Stream(archivePath, d.ChanDepth, skip)

	for work := range works {
		stats.WorksSeen++

		citingCanon := d.canonicalizeCiting(work.DOI)
		if citingCanon == "" {
			stats.WorksSkipped++
			continue
		}

		for refIdx, ref := range work.Reference {
			stats.ReferencesSeen++

			findings := ident.Extract(ref, d.Mode)
			for _, f := range findings {
				if f.Identifier.Canonical == citingCanon {
					stats.SelfCitations++
					metrics.SelfCitationsDroppedTotal.Inc()
					continue
				}

				row := record.ExtractionRow{
					CitingID:   citingCanon,
					RefIndex:   refIdx,
					RefJSON:    string(ref.Raw()),
					RawMatch:   f.Identifier.Raw,
					CitedID:    f.Identifier.Canonical,
					Provenance: int(f.Provenance),
				}
				if err := d.Writer.WriteRow(row); err != nil {
					return stats, fmt.Errorf("extract: write row for %s: %w", citingCanon, err)
				}
				stats.RowsWritten++
				metrics.RowsExtractedTotal.Inc()
			}
		}

		if d.Authority != nil {
			if err := d.Authority.Add(citingCanon, citingPrefix(citingCanon)); err != nil {
				return stats, fmt.Errorf("extract: populate authority index: %w", err)
			}
		}
	}

	if err := <-errc; err != nil {
		return stats, fmt.Errorf("extract: archive framing: %w", err)
	}

	return stats, nil
}

// canonicalizeCiting derives the citing work's own canonical identifier
// for self-citation comparison. In DOI mode this is simply the citing
// work's DOI, normalised; in arXiv mode, citing works are still
// DOI-keyed (the citing corpus is a DOI-based bibliographic feed), so
// the same normalisation applies — only the cited-side identifiers
// extracted from references differ by mode.
func (d *Driver) canonicalizeCiting(doi string) string {
	if doi == "" {
		return ""
	}
	canon := ident.NormalizeDOI(doi)
	if canon == "" {
		return ""
	}
	return canon
}

// citingPrefix derives authority A's prefix entry for a citing identifier,
// which is always a DOI regardless of extraction mode (see
// canonicalizeCiting).
func citingPrefix(canonical string) string {
	return ident.Identifier{Kind: ident.KindDOI, Canonical: canonical}.Prefix()
}
