package ident

import (
	"testing"

	"github.com/cometadata/crossref-citation-extraction/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBareDOIInText is scenario S1: a bare DOI mentioned only in
// unstructured text is Mined and its raw match keeps its original case
// with trailing punctuation stripped.
func TestBareDOIInText(t *testing.T) {
	ref := record.RawReference{Unstructured: "See 10.1234/Example-A, thanks"}

	findings := Extract(ref, ModeDOI)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, "10.1234/example-a", f.Identifier.Canonical)
	assert.Equal(t, "10.1234/Example-A", f.Identifier.Raw)
	assert.Equal(t, Mined, f.Provenance)
}

// TestAssertedDOI is scenario S2: a DOI asserted through the explicit
// field with a "publisher" origin tag is classified Publisher.
func TestAssertedDOI(t *testing.T) {
	ref := record.RawReference{DOI: "10.1234/Y", DOIAssertedBy: "publisher"}

	findings := Extract(ref, ModeDOI)
	require.Len(t, findings, 1)

	assert.Equal(t, "10.1234/y", findings[0].Identifier.Canonical)
	assert.Equal(t, Publisher, findings[0].Provenance)
}

// TestCrossrefAssertedDOI exercises the Crossref-tagged branch of the same
// rule.
func TestCrossrefAssertedDOI(t *testing.T) {
	ref := record.RawReference{DOI: "10.5678/z", DOIAssertedBy: "crossref"}

	findings := Extract(ref, ModeDOI)
	require.Len(t, findings, 1)
	assert.Equal(t, Crossref, findings[0].Provenance)
}

// TestAssertedDOIWithoutTagIsMined covers the "tag absent" branch of §4.2's
// provenance rule: the explicit field is populated but carries no
// assertion-origin, so the finding is still Mined.
func TestAssertedDOIWithoutTagIsMined(t *testing.T) {
	ref := record.RawReference{DOI: "10.5678/z"}

	findings := Extract(ref, ModeDOI)
	require.Len(t, findings, 1)
	assert.Equal(t, Mined, findings[0].Provenance)
}

// TestArxivGating is scenario S4: arXiv identifiers only match when the
// literal "arxiv" substring is present.
func TestArxivGating(t *testing.T) {
	noGate := record.RawReference{Unstructured: "value is 2403.03542"}
	assert.Empty(t, Extract(noGate, ModeArxiv))

	gated := record.RawReference{Unstructured: "see arXiv:2403.03542v3"}
	findings := Extract(gated, ModeArxiv)
	require.Len(t, findings, 1)
	assert.Equal(t, "2403.03542", findings[0].Identifier.Canonical)
	assert.Equal(t, "2403", findings[0].Identifier.Prefix())
}

func TestArxivLegacyForm(t *testing.T) {
	ref := record.RawReference{Unstructured: "arXiv:hep-th/9901001 discusses..."}
	findings := Extract(ref, ModeArxiv)
	require.Len(t, findings, 1)
	assert.Equal(t, "hep-th/9901001", findings[0].Identifier.Canonical)
	assert.Equal(t, "hep-", findings[0].Identifier.Prefix())
}

func TestArxivCanonicalDOIForm(t *testing.T) {
	ref := record.RawReference{Unstructured: "see 10.48550/arXiv.2403.03542 for details"}
	findings := Extract(ref, ModeArxiv)
	require.Len(t, findings, 1)
	assert.Equal(t, "2403.03542", findings[0].Identifier.Canonical)
}

func TestArxivURLForm(t *testing.T) {
	ref := record.RawReference{Unstructured: "available at https://arxiv.org/abs/2403.03542v2"}
	findings := Extract(ref, ModeArxiv)
	require.Len(t, findings, 1)
	assert.Equal(t, "2403.03542", findings[0].Identifier.Canonical)
}

// TestDOINormalizationIdempotent is universal property 4.
func TestDOINormalizationIdempotent(t *testing.T) {
	inputs := []string{
		"10.1234/Example-A,", "10.1234/FOO%2Fbar.", "10.55/x&gt", "10.1/ALREADY-LOWER",
	}
	for _, in := range inputs {
		once := NormalizeDOI(in)
		twice := NormalizeDOI(once)
		assert.Equal(t, once, twice, "normalisation of %q not idempotent", in)
	}
}

func TestMaxProvenanceWithinReference(t *testing.T) {
	// Same canonical identifier discovered twice: once via the asserted
	// field (Publisher) and once via unstructured text (would be Mined on
	// its own). The merged Finding must keep the higher provenance.
	ref := record.RawReference{
		DOI:           "10.1234/dup",
		DOIAssertedBy: "publisher",
		Unstructured:  "also see 10.1234/dup again",
	}
	findings := Extract(ref, ModeDOI)
	require.Len(t, findings, 1)
	assert.Equal(t, Publisher, findings[0].Provenance)
}

func TestDeduplicatesFirstOccurrenceWithinReference(t *testing.T) {
	ref := record.RawReference{Unstructured: "10.1234/a then 10.1234/a again then 10.1234/b"}
	findings := Extract(ref, ModeDOI)
	require.Len(t, findings, 2)
	assert.Equal(t, "10.1234/a", findings[0].Identifier.Canonical)
	assert.Equal(t, "10.1234/b", findings[1].Identifier.Canonical)
}
