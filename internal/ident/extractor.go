package ident

import (
	"strings"

	"github.com/cometadata/crossref-citation-extraction/internal/record"
)

// Mode selects which identifier family a reference is scanned for, mapping
// onto §6.7's per-source-mode "Extract" column.
type Mode int

const (
	ModeDOI Mode = iota
	ModeArxiv
)

// Finding is one extracted identifier together with its classified
// provenance, before self-citation filtering (done by the caller, which
// has access to the citing work's own identifier).
type Finding struct {
	Identifier Identifier
	Provenance Provenance
}

// Extract scans a RawReference's fields of interest for identifiers of the
// requested kind and classifies each by provenance per §4.2. When the same
// canonical identifier is found via more than one path within the
// reference (e.g. once via the explicit DOI field and once via free text),
// the maximum provenance across all paths is retained and only one Finding
// is returned for it.
func Extract(ref record.RawReference, mode Mode) []Finding {
	text := ref.SearchText()

	var candidates []Identifier
	switch mode {
	case ModeDOI:
		candidates = FindDOIs(text)
	case ModeArxiv:
		candidates = FindArxivIDs(text)
	}
	if len(candidates) == 0 {
		return nil
	}

	assertedCanon := assertedIdentifier(ref, mode)

	order := make([]string, 0, len(candidates))
	byCanon := make(map[string]*Finding, len(candidates))

	for _, c := range candidates {
		prov := classify(c.Canonical, assertedCanon, ref.DOIAssertedBy)
		if f, ok := byCanon[c.Canonical]; ok {
			f.Provenance = MaxProvenance(f.Provenance, prov)
			continue
		}
		f := &Finding{Identifier: c, Provenance: prov}
		byCanon[c.Canonical] = f
		order = append(order, c.Canonical)
	}

	out := make([]Finding, 0, len(order))
	for _, k := range order {
		out = append(out, *byCanon[k])
	}
	return out
}

// assertedIdentifier returns the canonical form of the reference's
// explicit asserted-identifier field for the given mode, or "" if absent
// or unparseable. For ModeArxiv, the DOI field is checked for the
// canonical arXiv DOI form (10.48550/arXiv.<id>) since arXiv references
// are frequently asserted through the same DOI field as any other work.
func assertedIdentifier(ref record.RawReference, mode Mode) string {
	if ref.DOI == "" {
		return ""
	}
	switch mode {
	case ModeDOI:
		return NormalizeDOI(ref.DOI)
	case ModeArxiv:
		m := canonicalArxivDOI.FindStringSubmatch(ref.DOI)
		if m == nil {
			return ""
		}
		return NormalizeArxiv(m[1])
	default:
		return ""
	}
}

// classify implements §4.2's provenance rule: a finding that matches the
// asserted field (exactly, or by substring containment either direction)
// takes the provenance implied by the assertion-origin tag; every other
// finding is Mined.
func classify(canon, assertedCanon, assertedBy string) Provenance {
	if assertedCanon == "" || canon == "" {
		return Mined
	}
	if canon != assertedCanon &&
		!strings.Contains(assertedCanon, canon) &&
		!strings.Contains(canon, assertedCanon) {
		return Mined
	}
	switch strings.ToLower(strings.TrimSpace(assertedBy)) {
	case "publisher":
		return Publisher
	case "crossref":
		return Crossref
	default:
		return Mined
	}
}
