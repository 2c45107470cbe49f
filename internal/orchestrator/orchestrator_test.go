package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohdata/prismzonal/internal/config"
	"github.com/dohdata/prismzonal/internal/extractor"
	"github.com/dohdata/prismzonal/internal/ledger"
)

const gridName = "PRISM_tmax_stable_4kmD2_20110121_bil"

const gridHeader = `BYTEORDER      I
LAYOUT         BIL
NROWS          2
NCOLS          2
NBANDS         1
NBITS          32
PIXELTYPE      FLOAT
ULXMAP         -125.0
ULYMAP         49.0
XDIM           0.5
YDIM           0.5
NODATA         -9999
`

// One zone covering the whole 2x2 grid.
const zonesJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"GEOID10": "53033000100"},
     "geometry": {"type": "Polygon", "coordinates": [[[-125.5,48.2],[-124.2,48.2],[-124.2,49.3],[-125.5,49.3],[-125.5,48.2]]]}}
  ]
}`

func gridArchive(t *testing.T) []byte {
	t.Helper()
	band := make([]byte, 16)
	for i, v := range []float32{1, 2, 3, 4} {
		binary.LittleEndian.PutUint32(band[i*4:], math.Float32bits(v))
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(gridName + ".hdr")
	require.NoError(t, err)
	_, err = w.Write([]byte(gridHeader))
	require.NoError(t, err)
	w, err = zw.Create(gridName + ".bil")
	require.NoError(t, err)
	_, err = w.Write(band)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRunPipeline_EndToEnd(t *testing.T) {
	archive := gridArchive(t)
	var archiveHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tmax/2011/":
			fmt.Fprintf(w, `<html><body><a href="../">Parent</a><a href="%s.zip">%s.zip</a></body></html>`, gridName, gridName)
		case "/tmax/2011/" + gridName + ".zip":
			archiveHits++
			w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	db, err := ledger.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	zonesPath := filepath.Join(dir, "tracts.geojson")
	require.NoError(t, os.WriteFile(zonesPath, []byte(zonesJSON), 0o644))
	cfg := config.Config{
		DataDir:        dir,
		ZonesPath:      zonesPath,
		ZoneIDProperty: "GEOID10",
		BaseURL:        srv.URL,
		Variable:       "tmax",
		Year:           2011,
		NumWorkers:     2,
	}
	require.NoError(t, cfg.EnsureDirs())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	var results []extractor.Result
	require.NoError(t, RunPipeline(ctx, cfg, db, logger, func(r extractor.Result) { results = append(results, r) }))
	require.Len(t, results, 1)
	assert.False(t, results[0].Skipped)

	got, err := os.ReadFile(filepath.Join(cfg.OutputDir(), gridName+".csv"))
	require.NoError(t, err)
	assert.Equal(t, "GEOID10,date,mean\n53033000100,2011-01-21,2.5\n", string(got))

	// Second run touches nothing: archive on disk, expansion present,
	// output present.
	results = nil
	require.NoError(t, RunPipeline(ctx, cfg, db, logger, func(r extractor.Result) { results = append(results, r) }))
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, 1, archiveHits)
}

func TestRunPipeline_CatalogDownStillExtractsLocal(t *testing.T) {
	db, err := ledger.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	zonesPath := filepath.Join(dir, "tracts.geojson")
	require.NoError(t, os.WriteFile(zonesPath, []byte(zonesJSON), 0o644))
	cfg := config.Config{
		DataDir:        dir,
		ZonesPath:      zonesPath,
		ZoneIDProperty: "GEOID10",
		BaseURL:        "http://127.0.0.1:1", // nothing listening
		Variable:       "tmax",
		Year:           2011,
		NumWorkers:     1,
	}
	require.NoError(t, cfg.EnsureDirs())

	// A grid already expanded on disk from an earlier run.
	gridDir := filepath.Join(cfg.DownloadDir(), gridName)
	require.NoError(t, os.MkdirAll(gridDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gridDir, gridName+".hdr"), []byte(gridHeader), 0o644))
	band := make([]byte, 16)
	for i, v := range []float32{1, 2, 3, 4} {
		binary.LittleEndian.PutUint32(band[i*4:], math.Float32bits(v))
	}
	require.NoError(t, os.WriteFile(filepath.Join(gridDir, gridName+".bil"), band, 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err = RunPipeline(context.Background(), cfg, db, logger, nil)
	require.Error(t, err) // the listing failure is reported

	// but extraction of local grids still ran.
	_, statErr := os.Stat(filepath.Join(cfg.OutputDir(), gridName+".csv"))
	assert.NoError(t, statErr)
}
