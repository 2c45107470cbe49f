package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestExtractFileDate(t *testing.T) {
	d, err := ExtractFileDate("PRISM_tmax_stable_4kmD2_20110121_bil.zip")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2011, 1, 21, 0, 0, 0, 0, time.UTC), d)
}

func TestExtractFileDate_NoDate(t *testing.T) {
	_, err := ExtractFileDate("tracts2010.geojson")
	require.Error(t, err)
}

func TestExtractFileDate_InvalidCalendarDate(t *testing.T) {
	_, err := ExtractFileDate("PRISM_tmax_20113355_bil.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "20113355")
}

func TestParseLinks(t *testing.T) {
	page := `<html><body><pre>
<a href="../">Parent Directory</a>
<a href="/">root</a>
<a href="PRISM_tmax_stable_4kmD2_20110121_bil.zip">PRISM_tmax_stable_4kmD2_20110121_bil.zip</a>
<a href="PRISM_tmax_stable_4kmD2_20110122_bil.zip">PRISM_tmax_stable_4kmD2_20110122_bil.zip</a>
<a href="readme.txt">readme.txt</a>
</pre></body></html>`
	root, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)

	links := ParseLinks(root, "_bil")
	assert.Equal(t, []string{
		"PRISM_tmax_stable_4kmD2_20110121_bil.zip",
		"PRISM_tmax_stable_4kmD2_20110122_bil.zip",
	}, links)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	require.NoError(t, WriteFileAtomic(path, []byte("GEOID10,date,mean\n"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "GEOID10,date,mean\n", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
