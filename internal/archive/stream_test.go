package archive

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildArchive writes a gzipped tar containing one entry per document,
// for test fixtures. Production code never writes archives, only reads
// them, so this helper lives in the test file, not stream.go.
func buildArchive(t *testing.T, dir string, docs []string) string {
	t.Helper()

	path := filepath.Join(dir, "corpus.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for i, doc := range docs {
		name := filepath.Join("batches", filepathSeq(i)+".json")
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(doc))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(doc))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return path
}

func filepathSeq(i int) string {
	return string(rune('a' + i))
}

func TestStreamYieldsRecordsInOrder(t *testing.T) {
	dir := t.TempDir()
	path := buildArchive(t, dir, []string{
		`{"items":[{"DOI":"10.1/a","reference":[]},{"DOI":"10.1/b","reference":[]}]}`,
		`{"items":[{"DOI":"10.1/c","reference":[]}]}`,
	})

	out, errc := Stream(path, 0, nil)

	var got []string
	for w := range out {
		got = append(got, w.DOI)
	}
	require.NoError(t, <-errc)

	assert.Equal(t, []string{"10.1/a", "10.1/b", "10.1/c"}, got)
}

func TestStreamSkipsMalformedEntryWithoutFailing(t *testing.T) {
	dir := t.TempDir()
	path := buildArchive(t, dir, []string{
		`not valid json`,
		`{"items":[{"DOI":"10.1/ok","reference":[]}]}`,
	})

	var skipped []string
	out, errc := Stream(path, 0, func(entry string, err error) {
		skipped = append(skipped, entry)
	})

	var got []string
	for w := range out {
		got = append(got, w.DOI)
	}
	require.NoError(t, <-errc)

	assert.Equal(t, []string{"10.1/ok"}, got)
	assert.Len(t, skipped, 1)
}

func TestStreamReportsFramingErrorAsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-gzip.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("this is not gzip"), 0o644))

	out, errc := Stream(path, 0, nil)
	for range out {
	}
	err := <-errc
	require.Error(t, err)
}

func TestStreamHandlesEmptyArchive(t *testing.T) {
	dir := t.TempDir()
	path := buildArchive(t, dir, nil)

	out, errc := Stream(path, 0, nil)
	var count int
	for range out {
		count++
	}
	require.NoError(t, <-errc)
	assert.Equal(t, 0, count)
}
