package extract

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cometadata/crossref-citation-extraction/internal/ident"
	"github.com/cometadata/crossref-citation-extraction/internal/index"
	"github.com/cometadata/crossref-citation-extraction/internal/partition"
)

func writeArchive(t *testing.T, dir string, doc string) string {
	t.Helper()
	path := filepath.Join(dir, "in.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	hdr := &tar.Header{Name: "batch.json", Mode: 0o644, Size: int64(len(doc))}
	require.NoError(t, tw.WriteHeader(hdr))
	_, err = tw.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return path
}

// TestDriverDropsSelfCitations is scenario S3: a reference whose asserted
// DOI equals the citing work's own DOI must never produce an
// ExtractionRow.
func TestDriverDropsSelfCitations(t *testing.T) {
	dir := t.TempDir()
	doc := `{"items":[{"DOI":"10.1234/self","reference":[
		{"DOI":"10.1234/self","doi-asserted-by":"crossref"},
		{"unstructured":"see 10.5678/other for details"}
	]}]}`
	archivePath := writeArchive(t, dir, doc)

	w := partition.NewWriter(filepath.Join(dir, "parts"), 1)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "parts"), 0o755))

	d := &Driver{Mode: ident.ModeDOI, Writer: w, Authority: index.New()}
	stats, err := d.Run(archivePath)
	require.NoError(t, err)
	require.NoError(t, w.FlushAll())

	assert.Equal(t, 1, stats.SelfCitations)
	assert.Equal(t, 1, stats.RowsWritten)

	rows, err := partition.ReadAll(filepath.Join(dir, "parts", "10.5678.parquet"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "10.5678/other", rows[0].CitedID)
}

func TestDriverPopulatesAuthorityIndex(t *testing.T) {
	dir := t.TempDir()
	doc := `{"items":[{"DOI":"10.9999/citer","reference":[{"unstructured":"10.5678/other"}]}]}`
	archivePath := writeArchive(t, dir, doc)

	partDir := filepath.Join(dir, "parts")
	require.NoError(t, os.MkdirAll(partDir, 0o755))
	w := partition.NewWriter(partDir, 1)
	authority := index.New()

	d := &Driver{Mode: ident.ModeDOI, Writer: w, Authority: authority}
	_, err := d.Run(archivePath)
	require.NoError(t, err)
	require.NoError(t, w.FlushAll())

	assert.True(t, authority.Contains("10.9999/citer"))
	assert.False(t, authority.Contains("10.5678/other"))
}

func TestDriverSkipsWorkWithMissingCitingIdentifier(t *testing.T) {
	dir := t.TempDir()
	doc := `{"items":[{"reference":[{"unstructured":"10.5678/other"}]}]}`
	archivePath := writeArchive(t, dir, doc)

	partDir := filepath.Join(dir, "parts")
	require.NoError(t, os.MkdirAll(partDir, 0o755))
	w := partition.NewWriter(partDir, 1)

	d := &Driver{Mode: ident.ModeDOI, Writer: w}
	stats, err := d.Run(archivePath)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.WorksSkipped)
	assert.Equal(t, 0, stats.RowsWritten)
}
