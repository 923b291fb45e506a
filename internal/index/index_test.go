package index

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipLines(t *testing.T, lines ...string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	for _, l := range lines {
		_, err := gw.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gw.Close())
	return &buf
}

func stemPrefix(id string) string {
	if len(id) >= 4 {
		return id[:4]
	}
	return id
}

func TestBuildFromStreamInsertsValidLinesAndSkipsMalformed(t *testing.T) {
	src := gzipLines(t,
		`{"id":"10.1234/a"}`,
		`not json`,
		`{"id":"10.1234/b"}`,
		`{}`,
	)

	ix := New()
	require.NoError(t, ix.BuildFromStream(src, stemPrefix))

	assert.True(t, ix.Contains("10.1234/a"))
	assert.True(t, ix.Contains("10.1234/b"))
	assert.False(t, ix.Contains("10.1234/c"))
	assert.Equal(t, 2, ix.Malformed())
	assert.Equal(t, 2, ix.Len())
	assert.True(t, ix.ContainsPrefix("10.1"))
}

// TestRoundTripSaveLoad is universal property 6: persisting and reloading
// an index preserves membership for every identifier and prefix.
func TestRoundTripSaveLoad(t *testing.T) {
	dir := t.TempDir()
	ix := New()
	require.NoError(t, ix.Add("10.1234/a", "10.1234"))
	require.NoError(t, ix.Add("10.5678/b", "10.5678"))
	require.NoError(t, ix.Add("2403.03542", "2403"))

	path := filepath.Join(dir, "authority.bin")
	require.NoError(t, ix.Save(path))

	loaded, err := Load(path, stemPrefix)
	require.NoError(t, err)

	assert.True(t, loaded.Contains("10.1234/a"))
	assert.True(t, loaded.Contains("10.5678/b"))
	assert.True(t, loaded.Contains("2403.03542"))
	assert.False(t, loaded.Contains("10.9999/z"))
	assert.True(t, loaded.ContainsPrefix("10.1234"))
	assert.True(t, loaded.ContainsPrefix("2403"))
}

func TestLoadRebuildsPrefixesWhenPrefixFileMissing(t *testing.T) {
	dir := t.TempDir()
	ix := New()
	require.NoError(t, ix.Add("10.1234/a", "10.1234"))

	path := filepath.Join(dir, "authority.bin")
	require.NoError(t, ix.Save(path))
	require.NoError(t, os.Remove(path+".prefixes"))

	loaded, err := Load(path, func(id string) string { return "rebuilt" })
	require.NoError(t, err)
	assert.True(t, loaded.ContainsPrefix("rebuilt"))
}

func TestDiskBackedIndex(t *testing.T) {
	dir := t.TempDir()
	ix, err := WithDiskBacking(filepath.Join(dir, "disk"))
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Add("10.1234/a", "10.1234"))
	assert.True(t, ix.Contains("10.1234/a"))
	assert.False(t, ix.Contains("10.1234/missing"))
	assert.True(t, ix.ContainsPrefix("10.1234"))
}
