// Package ident recognises and normalises bibliographic identifiers (DOIs
// and arXiv identifiers) inside citing-work references, and classifies each
// finding by provenance.
package ident

import "fmt"

// Kind distinguishes the two identifier families this package recognises.
type Kind int

const (
	KindDOI Kind = iota
	KindArxiv
)

func (k Kind) String() string {
	switch k {
	case KindDOI:
		return "doi"
	case KindArxiv:
		return "arxiv"
	default:
		return "unknown"
	}
}

// Provenance is a totally ordered classification of how an identifier was
// discovered. Larger values win ties: max(Mined, Crossref, Publisher) ==
// Publisher.
type Provenance int

const (
	Mined Provenance = iota
	Crossref
	Publisher
)

func (p Provenance) String() string {
	switch p {
	case Mined:
		return "mined"
	case Crossref:
		return "crossref"
	case Publisher:
		return "publisher"
	default:
		return "unknown"
	}
}

// MaxProvenance returns the higher-ranked of a and b.
func MaxProvenance(a, b Provenance) Provenance {
	if b > a {
		return b
	}
	return a
}

// Identifier is a tagged value produced by normalisation: either a DOI or
// an arXiv identifier, always already in canonical (lowercase, stripped)
// form, paired with the raw substring that was matched before
// normalisation.
type Identifier struct {
	Kind      Kind
	Canonical string
	Raw       string
}

// Prefix returns the partition-relevant prefix of the identifier: the DOI
// registrant prefix for DOIs, or the lowercased four-character stem for
// arXiv identifiers. See internal/partition for how this is turned into a
// partition key.
func (id Identifier) Prefix() string {
	switch id.Kind {
	case KindDOI:
		return doiRegistrantPrefix(id.Canonical)
	case KindArxiv:
		return arxivStem(id.Canonical)
	default:
		return ""
	}
}

func (id Identifier) String() string {
	return fmt.Sprintf("%s:%s", id.Kind, id.Canonical)
}

// Equal reports whether two identifiers denote the same cited work, i.e.
// have equal canonical forms. Kind is not compared: a DOI and an arXiv
// canonical DOI form (10.48550/arXiv.*) are reconciled upstream by the
// extractor, not here.
func (id Identifier) Equal(other Identifier) bool {
	return id.Canonical == other.Canonical
}
