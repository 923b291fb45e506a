package validate

import "github.com/cometadata/crossref-citation-extraction/internal/record"

// Class is a provenance class used to split a validated output stream
// into "asserted" and "mined" sub-streams per §4.6/§6.6.
type Class int

const (
	ClassAsserted Class = iota // provenance ∈ {Publisher, Crossref}
	ClassMined                 // provenance == Mined
)

func inClass(provenance string, c Class) bool {
	asserted := provenance == "publisher" || provenance == "crossref"
	if c == ClassAsserted {
		return asserted
	}
	return !asserted
}

// Filter returns rec with cited_by restricted to entries matching c, with
// citation_count recomputed over the filtered list, and ok=false if the
// filtered cited_by would be empty (the record is omitted from that
// sub-stream entirely, per §4.6).
func Filter(rec record.InvertedRecord, c Class) (record.InvertedRecord, bool) {
	filtered := make([]record.CitedBy, 0, len(rec.CitedBy))
	refCount := 0
	for _, cb := range rec.CitedBy {
		if !inClass(cb.Provenance, c) {
			continue
		}
		filtered = append(filtered, cb)
		refCount += len(cb.Matches)
	}
	if len(filtered) == 0 {
		return record.InvertedRecord{}, false
	}

	out := rec
	out.CitedBy = filtered
	out.CitationCount = len(filtered)
	out.ReferenceCount = refCount
	return out, true
}
