package ident

import (
	"regexp"
	"strings"
)

// arxivGate gates all arXiv recognition on the literal presence of "arxiv"
// (case-insensitive) somewhere in the search text, per §4.2: bare numeric
// strings that coincidentally match the modern shape must never match.
var arxivGate = regexp.MustCompile(`(?i)arxiv`)

// modernArxiv matches arXiv:YYYY.NNNNN[vK] and arXiv.YYYY.NNNNN[vK]. A bare
// YYYY.NNNNN[vK] not directly preceded by "arxiv" is not matched, even in
// text that passes arxivGate.
var modernArxiv = regexp.MustCompile(`(?i)arxiv[:.]?\s*(\d{4}\.\d{4,5}(?:v\d+)?)`)

// legacyArxiv matches legacy subject-class identifiers, e.g.
// "arXiv:hep-th/9901001" or "arXiv:math.GT/0309136".
var legacyArxiv = regexp.MustCompile(`(?i)arxiv[:.]?\s*([a-z][a-z.\-]*[a-z]/\d{7}(?:v\d+)?)`)

// canonicalArxivDOI matches the canonical DOI form 10.48550/arXiv.YYYY.NNNNN.
var canonicalArxivDOI = regexp.MustCompile(`(?i)10\.48550/arxiv\.(\d{4}\.\d{4,5}(?:v\d+)?)`)

// arxivURL matches arxiv.org/(abs|pdf)/<id> URLs, with or without scheme.
var arxivURL = regexp.MustCompile(`(?i)arxiv\.org/(?:abs|pdf)/([a-z0-9.\-/]+?)(?:v(\d+))?(?:\.pdf)?(?:[\s\]\)>,;"']|$)`)

var versionSuffix = regexp.MustCompile(`(?i)v\d+$`)

// FindArxivIDs scans text for candidate arXiv identifiers. Recognition is
// gated on the literal substring "arxiv" appearing anywhere in text; absent
// that, this always returns nil even if the text contains a
// YYYY.NNNNN-shaped number. Results are deduplicated by canonical form,
// first occurrence wins.
func FindArxivIDs(text string) []Identifier {
	if !arxivGate.MatchString(text) {
		return nil
	}

	seen := make(map[string]struct{})
	var out []Identifier

	add := func(raw string) {
		canon := NormalizeArxiv(raw)
		if canon == "" {
			return
		}
		if _, dup := seen[canon]; dup {
			return
		}
		seen[canon] = struct{}{}
		out = append(out, Identifier{Kind: KindArxiv, Canonical: canon, Raw: raw})
	}

	for _, m := range modernArxiv.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range legacyArxiv.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range canonicalArxivDOI.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range arxivURL.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if m[2] != "" {
			id += "v" + m[2]
		}
		add(id)
	}

	return out
}

// NormalizeArxiv lowercases an arXiv identifier and strips any trailing
// "vK" version suffix. Legacy identifiers keep their internal "/" here;
// the "/" -> "_" substitution is purely a partition-key concern (see
// Identifier.Prefix / internal/partition) and must not alter the
// canonical identifier itself.
func NormalizeArxiv(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = versionSuffix.ReplaceAllString(s, "")
	return s
}

// arxivStem returns the first four characters of a canonical arXiv
// identifier with "/" replaced by "_", used to derive the partition key.
func arxivStem(canonical string) string {
	s := strings.ReplaceAll(canonical, "/", "_")
	if len(s) <= 4 {
		return s
	}
	return s[:4]
}

// CanonicalArxivDOI formats an arXiv canonical identifier as its DOI form,
// 10.48550/arXiv.<id>, per §6.5's arxiv output mode.
func CanonicalArxivDOI(canonicalArxivID string) string {
	return "10.48550/arXiv." + canonicalArxivID
}
