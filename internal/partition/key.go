// Package partition implements the fan-out buffer that shards extracted
// rows by identifier prefix onto disk as columnar batches (§4.3), and the
// columnar batch codec those files use (§4.3's "(or equivalent)" clause,
// resolved in column.go).
package partition

import "strings"

// KeyFor derives the partition key for a canonical cited identifier, per
// §4.3: the DOI registrant prefix for DOIs, or the lowercased first four
// characters (with "/" replaced by "_") for arXiv identifiers.
func KeyFor(canonicalCitedID string) string {
	id := strings.ToLower(canonicalCitedID)
	if strings.HasPrefix(id, "10.") {
		if idx := strings.IndexByte(id, '/'); idx >= 0 {
			return id[:idx]
		}
		return id
	}
	id = strings.ReplaceAll(id, "/", "_")
	if len(id) <= 4 {
		return id
	}
	return id[:4]
}
