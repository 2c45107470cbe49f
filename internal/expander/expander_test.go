package expander

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohdata/prismzonal/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestExpandAll(t *testing.T) {
	db, err := ledger.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "PRISM_tmax_stable_4kmD2_20110121_bil.zip"), map[string]string{
		"PRISM_tmax_stable_4kmD2_20110121_bil.bil": "bilbytes",
		"PRISM_tmax_stable_4kmD2_20110121_bil.hdr": "NROWS 1\n",
	})

	expanded, err := ExpandAll(context.Background(), db, testLogger(), dir)
	require.NoError(t, err)
	require.Len(t, expanded, 1)

	destDir := filepath.Join(dir, "PRISM_tmax_stable_4kmD2_20110121_bil")
	assert.Equal(t, destDir, expanded[0])
	assert.FileExists(t, filepath.Join(destDir, "PRISM_tmax_stable_4kmD2_20110121_bil.bil"))
	assert.FileExists(t, filepath.Join(destDir, "PRISM_tmax_stable_4kmD2_20110121_bil.hdr"))

	// No stray temp directories.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2) // archive + expansion dir
}

func TestExpandAll_SkipsExpanded(t *testing.T) {
	db, err := ledger.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "PRISM_tmax_stable_4kmD2_20110121_bil.zip"), map[string]string{
		"PRISM_tmax_stable_4kmD2_20110121_bil.bil": "newbytes",
	})

	// Pre-existing expansion directory with sentinel content.
	destDir := filepath.Join(dir, "PRISM_tmax_stable_4kmD2_20110121_bil")
	require.NoError(t, os.MkdirAll(destDir, 0o755))
	sentinel := filepath.Join(destDir, "sentinel.txt")
	require.NoError(t, os.WriteFile(sentinel, []byte("keep"), 0o644))

	expanded, err := ExpandAll(context.Background(), db, testLogger(), dir)
	require.NoError(t, err)
	assert.Empty(t, expanded)

	// Directory contents unchanged.
	data, err := os.ReadFile(sentinel)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
	assert.NoFileExists(t, filepath.Join(destDir, "PRISM_tmax_stable_4kmD2_20110121_bil.bil"))
}

func TestExpandAll_BadArchiveContinues(t *testing.T) {
	db, err := ledger.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PRISM_tmax_stable_4kmD2_20110121_bil.zip"), []byte("not a zip"), 0o644))
	writeZip(t, filepath.Join(dir, "PRISM_tmax_stable_4kmD2_20110122_bil.zip"), map[string]string{
		"PRISM_tmax_stable_4kmD2_20110122_bil.bil": "bilbytes",
	})

	expanded, err := ExpandAll(context.Background(), db, testLogger(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRISM_tmax_stable_4kmD2_20110121_bil.zip")

	// The valid archive still expanded, the bad one left no directory.
	require.Len(t, expanded, 1)
	assert.DirExists(t, filepath.Join(dir, "PRISM_tmax_stable_4kmD2_20110122_bil"))
	assert.NoDirExists(t, filepath.Join(dir, "PRISM_tmax_stable_4kmD2_20110121_bil"))
}
