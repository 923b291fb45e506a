package pipeline

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cometadata/crossref-citation-extraction/internal/record"
)

func writeTestArchive(t *testing.T, dir string, docs ...string) string {
	t.Helper()
	path := filepath.Join(dir, "in.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for i, doc := range docs {
		hdr := &tar.Header{Name: filepath.Base(path) + string(rune('a'+i)), Mode: 0o644, Size: int64(len(doc))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(doc))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return path
}

func readOutputRecords(t *testing.T, path string) []record.InvertedRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []record.InvertedRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r record.InvertedRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		out = append(out, r)
	}
	require.NoError(t, sc.Err())
	return out
}

// TestRunCrossrefModeEndToEnd exercises the full pipeline in crossref
// mode, which needs no authority B input and no HTTP fallback: every
// citing identifier the archive itself asserts becomes authority A.
func TestRunCrossrefModeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	doc := `{"items":[
		{"DOI":"10.1111/citer-one","reference":[
			{"DOI":"10.2222/target","doi-asserted-by":"crossref"},
			{"DOI":"10.1111/citer-one","doi-asserted-by":"crossref"}
		]},
		{"DOI":"10.3333/citer-two","reference":[
			{"unstructured":"see 10.2222/target for background"}
		]}
	]}`
	archivePath := writeTestArchive(t, dir, doc)
	outPath := filepath.Join(dir, "out.jsonl")

	cfg := Config{
		Mode:        ModeCrossref,
		ArchivePath: archivePath,
		OutputPath:  outPath,
		TmpDir:      filepath.Join(dir, "tmp"),
	}
	require.NoError(t, cfg.Validate())

	p := New(cfg)
	p.NoColor = true
	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Extract.SelfCitations)
	assert.Equal(t, 2, stats.Extract.RowsWritten)

	recs := readOutputRecords(t, outPath)
	require.Len(t, recs, 1)
	assert.Equal(t, "10.2222/target", recs[0].DOI)
	assert.Equal(t, 2, recs[0].CitationCount)
	assert.Equal(t, 2, recs[0].ReferenceCount)
}

// TestRunArxivModeRewritesIdentity exercises §6.5's arXiv output shape:
// the top-level doi becomes the canonical arXiv DOI, with arxiv_id and
// arxiv_doi both populated.
func TestRunArxivModeRewritesIdentity(t *testing.T) {
	dir := t.TempDir()
	doc := `{"items":[
		{"DOI":"10.1111/citer","reference":[
			{"unstructured":"see arXiv:2101.00001 for background"}
		]}
	]}`
	archivePath := writeTestArchive(t, dir, doc)
	outPath := filepath.Join(dir, "out.jsonl")

	authRecords := filepath.Join(dir, "authority-b.jsonl.gz")
	f, err := os.Create(authRecords)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(`{"id":"2101.00001"}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	cfg := Config{
		Mode:                  ModeArxiv,
		ArchivePath:           archivePath,
		AuthorityBRecordsPath: authRecords,
		OutputPath:            outPath,
		TmpDir:                filepath.Join(dir, "tmp"),
	}
	require.NoError(t, cfg.Validate())

	p := New(cfg)
	p.NoColor = true
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	recs := readOutputRecords(t, outPath)
	require.Len(t, recs, 1)
	assert.Equal(t, "2101.00001", recs[0].ArxivID)
	assert.Equal(t, "10.48550/arXiv.2101.00001", recs[0].ArxivDOI)
	assert.Equal(t, "10.48550/arXiv.2101.00001", recs[0].DOI)
}

// TestValidateCatchesMissingRequiredInput exercises §6.7's precondition
// table: datacite mode without authority B records or index is a
// configuration error, fatal before any I/O.
func TestValidateCatchesMissingRequiredInput(t *testing.T) {
	cfg := Config{Mode: ModeDatacite, ArchivePath: "in.tar.gz", OutputPath: "out.jsonl"}
	err := cfg.Validate()
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ExitConfig, pe.Code)
}
