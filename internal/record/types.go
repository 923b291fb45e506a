// Package record defines the wire-format data model shared by every stage
// of the pipeline: the archive's input shape, the columnar ExtractionRow
// written by the partitioner, and the InvertedRecord/ValidationOutcome
// shapes emitted downstream.
package record

import (
	"encoding/json"
	"sort"
)

// namedFields lists the RawReference JSON keys that are bound to a
// dedicated struct field below; every other string-valued key in the
// object lands in Extra instead, per §3's "arbitrary other string fields
// that may contain identifiers".
var namedFields = map[string]struct{}{
	"DOI": {}, "doi-asserted-by": {}, "unstructured": {}, "article-title": {},
	"journal-title": {}, "author": {}, "year": {}, "volume": {}, "key": {},
}

// RawReference is one entry of a citing work's reference[] array.
type RawReference struct {
	DOI           string `json:"DOI,omitempty"`
	DOIAssertedBy string `json:"doi-asserted-by,omitempty"`
	Unstructured  string `json:"unstructured,omitempty"`
	ArticleTitle  string `json:"article-title,omitempty"`
	JournalTitle  string `json:"journal-title,omitempty"`
	Author        string `json:"author,omitempty"`
	Year          string `json:"year,omitempty"`
	Volume        string `json:"volume,omitempty"`
	Key           string `json:"key,omitempty"`

	// Extra holds every other string-valued field in the source object,
	// keyed by field name (a map, so unordered; SearchText sorts the keys),
	// for ancillary-field mining per §4.1 step 3.
	Extra map[string]string `json:"-"`

	raw json.RawMessage
}

// UnmarshalJSON decodes the named fields and stashes both the raw object
// bytes (for ref_json round-tripping) and every other string field (for
// ancillary-field mining).
func (r *RawReference) UnmarshalJSON(b []byte) error {
	type named RawReference
	var n named
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = RawReference(n)
	r.raw = append(json.RawMessage(nil), b...)

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil
	}
	for k, v := range generic {
		if _, named := namedFields[k]; named {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[k] = s
	}
	return nil
}

// Raw returns the original JSON object bytes, or "{}" if none were stashed
// (e.g. for a RawReference built programmatically in tests).
func (r RawReference) Raw() json.RawMessage {
	if len(r.raw) == 0 {
		return json.RawMessage("{}")
	}
	return r.raw
}

// SearchText concatenates every string field of interest into one blob for
// the extractor to scan, per §4.2. Field order is stable (named fields
// first, then Extra sorted by key) so that deduplication-by-first-
// occurrence behaves deterministically.
func (r RawReference) SearchText() string {
	parts := []string{r.DOI, r.Unstructured, r.ArticleTitle, r.JournalTitle, r.Author, r.Key}

	extraKeys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		parts = append(parts, r.Extra[k])
	}

	var out string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += p
	}
	return out
}

// CitingWork is one element of an archive batch's items[] array.
type CitingWork struct {
	DOI       string         `json:"DOI"`
	Reference []RawReference `json:"reference"`
}

// Batch is the top-level shape of one JSON document inside the archive.
type Batch struct {
	Items []CitingWork `json:"items"`
}

// ExtractionRow is one row of a partition: one (citing work, reference
// index, extracted identifier) triple.
type ExtractionRow struct {
	CitingID   string `json:"citing_id"`
	RefIndex   int    `json:"ref_index"`
	RefJSON    string `json:"ref_json"`
	RawMatch   string `json:"raw_match"`
	CitedID    string `json:"cited_id"`
	Provenance int    `json:"provenance"`
}

// Match is one raw finding within a CitedBy entry.
type Match struct {
	RawMatch   string          `json:"raw_match"`
	Reference  json.RawMessage `json:"reference"`
	Provenance string          `json:"provenance"`
}

// CitedBy groups all matches from one citing work against one cited
// identifier.
type CitedBy struct {
	CitingDOI  string  `json:"doi"`
	Provenance string  `json:"provenance"`
	Matches    []Match `json:"matches"`
}

// InvertedRecord is one emitted record: a cited identifier plus every
// citing work that references it.
type InvertedRecord struct {
	DOI            string    `json:"doi"`
	ArxivID        string    `json:"arxiv_id,omitempty"`
	ArxivDOI       string    `json:"arxiv_doi,omitempty"`
	ReferenceCount int       `json:"reference_count"`
	CitationCount  int       `json:"citation_count"`
	CitedBy        []CitedBy `json:"cited_by"`
}

// ValidationSource identifies which authority matched a record, or that
// none did and the record was resolved (or not) over the network.
type ValidationSource int

const (
	SourceNone ValidationSource = iota
	SourceAuthorityA
	SourceAuthorityB
	SourceNetwork
)

func (s ValidationSource) String() string {
	switch s {
	case SourceAuthorityA:
		return "authority-a"
	case SourceAuthorityB:
		return "authority-b"
	case SourceNetwork:
		return "network"
	default:
		return "none"
	}
}

// ValidationOutcome is the per-record result of §4.6's two-phase
// validation: which record, whether it was found, and by what source.
type ValidationOutcome struct {
	Record InvertedRecord
	Found  bool
	Source ValidationSource
}
