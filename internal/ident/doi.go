package ident

import (
	"regexp"
	"strings"
)

// doiPattern captures a DOI substring, optionally preceded by a "doi:"
// label or a doi.org resolver URL. Matching is case-insensitive; the
// captured group is the raw DOI text before normalisation.
var doiPattern = regexp.MustCompile(`(?i)(?:doi[:\s]*|(?:https?://)?(?:dx\.)?doi\.org/)?(10\.\d{4,}/[^\s\]\)>,;"']+)`)

// trailingPunct is stripped from the end of a captured DOI one rune at a
// time, matching the teacher corpus's own trailing-punctuation cleanup
// idiom used when pulling identifiers out of free text.
const trailingPunct = ".,;:)]>\"' "

var entityTails = []string{"&gt", "&lt", "&amp", "&quot"}

// urlEscapes maps the small set of percent-escapes §4.2 requires decoded
// prior to normalisation. Only these six octets are handled; arbitrary
// percent-decoding is not attempted since DOI suffixes may legitimately
// contain a literal "%" that is not an escape.
var urlEscapes = []struct {
	from string
	to   string
}{
	{"%2F", "/"}, {"%2f", "/"},
	{"%3A", ":"}, {"%3a", ":"},
	{"%28", "("}, {"%29", ")"},
	{"%3C", "<"}, {"%3c", "<"},
	{"%3E", ">"}, {"%3e", ">"},
}

// FindDOIs scans text for candidate DOI substrings and returns each as a
// normalised Identifier paired with the raw (pre-normalisation) matched
// text. Results are deduplicated by canonical form, keeping only the
// first occurrence, per §4.2's per-reference deduplication rule.
func FindDOIs(text string) []Identifier {
	matches := doiPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]Identifier, 0, len(matches))

	for _, m := range matches {
		raw := m[1]
		canon := NormalizeDOI(raw)
		if canon == "" {
			continue
		}
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, Identifier{Kind: KindDOI, Canonical: canon, Raw: raw})
	}

	return out
}

// NormalizeDOI applies §4.2's normalisation rules to a raw DOI substring:
// URL-decode a fixed set of escaped octets, lowercase, and strip trailing
// punctuation and HTML entity tails. Lowercasing before the strip lets an
// upper-case entity tail ("&GT") be stripped on the first pass, so
// normalisation is idempotent: NormalizeDOI(NormalizeDOI(x)) ==
// NormalizeDOI(x).
func NormalizeDOI(raw string) string {
	s := raw

	for _, esc := range urlEscapes {
		s = strings.ReplaceAll(s, esc.from, esc.to)
	}

	s = strings.ToLower(s)

	// Trailing punctuation and entity tails can each expose more of the
	// other (e.g. "x&gt." strips to "x&gt" then to "x"), so alternate the
	// two strips until neither changes the string.
	for {
		trimmed := strings.TrimRight(s, trailingPunct)
		for _, tail := range entityTails {
			trimmed = strings.TrimSuffix(trimmed, tail)
		}
		if trimmed == s {
			break
		}
		s = trimmed
	}

	if !strings.HasPrefix(s, "10.") {
		return ""
	}

	return s
}

// doiRegistrantPrefix returns the substring of a canonical DOI preceding
// the first "/", e.g. "10.1234/example" -> "10.1234".
func doiRegistrantPrefix(canonical string) string {
	if idx := strings.IndexByte(canonical, '/'); idx >= 0 {
		return canonical[:idx]
	}
	return canonical
}
