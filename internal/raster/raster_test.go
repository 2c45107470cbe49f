package raster

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHdr = `BYTEORDER      I
LAYOUT         BIL
NROWS          3
NCOLS          4
NBANDS         1
NBITS          32
PIXELTYPE      FLOAT
ULXMAP         -125.0
ULYMAP         49.0
XDIM           0.5
YDIM           0.5
NODATA         -9999
`

// writeTestGrid writes a 3x4 float32 grid with row-major values
// 0..11, cell (1,1) set to nodata.
func writeTestGrid(t *testing.T, dir string) string {
	t.Helper()
	stem := filepath.Join(dir, "PRISM_tmax_stable_4kmD2_20110121_bil")

	values := make([]float32, 12)
	for i := range values {
		values[i] = float32(i)
	}
	values[1*4+1] = -9999

	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	require.NoError(t, os.WriteFile(stem+".bil", buf, 0o644))
	require.NoError(t, os.WriteFile(stem+".hdr", []byte(testHdr), 0o644))
	return stem + ".bil"
}

func TestReadDataset(t *testing.T) {
	bilPath := writeTestGrid(t, t.TempDir())

	r, err := ReadDataset(bilPath)
	require.NoError(t, err)

	assert.Equal(t, 3, r.NRows)
	assert.Equal(t, 4, r.NCols)
	assert.Equal(t, CRSGeographic, r.CRS)

	v, ok := r.Value(0, 0)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)

	v, ok = r.Value(2, 3)
	require.True(t, ok)
	assert.Equal(t, 11.0, v)

	// The nodata cell reads as invalid.
	_, ok = r.Value(1, 1)
	assert.False(t, ok)

	// Out of range reads as invalid, not a panic.
	_, ok = r.Value(3, 0)
	assert.False(t, ok)
}

func TestReadDataset_MercatorPrj(t *testing.T) {
	dir := t.TempDir()
	bilPath := writeTestGrid(t, dir)
	stem := bilPath[:len(bilPath)-len(".bil")]
	wkt := `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984"]]`
	require.NoError(t, os.WriteFile(stem+".prj", []byte(wkt), 0o644))

	r, err := ReadDataset(bilPath)
	require.NoError(t, err)
	assert.Equal(t, CRSWebMercator, r.CRS)
}

func TestReadDataset_TruncatedBand(t *testing.T) {
	dir := t.TempDir()
	bilPath := writeTestGrid(t, dir)
	require.NoError(t, os.Truncate(bilPath, 10))

	_, err := ReadDataset(bilPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 48")
}

func TestCellCenterAndBound(t *testing.T) {
	bilPath := writeTestGrid(t, t.TempDir())
	r, err := ReadDataset(bilPath)
	require.NoError(t, err)

	assert.Equal(t, orb.Point{-125.0, 49.0}, r.CellCenter(0, 0))
	assert.Equal(t, orb.Point{-124.5, 48.5}, r.CellCenter(1, 1))

	b := r.Bound()
	assert.InDelta(t, -125.25, b.Min[0], 1e-9)
	assert.InDelta(t, 47.75, b.Min[1], 1e-9)
	assert.InDelta(t, -123.25, b.Max[0], 1e-9)
	assert.InDelta(t, 49.25, b.Max[1], 1e-9)
}

func TestCrop(t *testing.T) {
	bilPath := writeTestGrid(t, t.TempDir())
	r, err := ReadDataset(bilPath)
	require.NoError(t, err)

	// Bound around the lower-right 2x2 block (rows 1-2, cols 2-3).
	b := orb.Bound{Min: orb.Point{-124.1, 48.0}, Max: orb.Point{-123.4, 48.6}}
	c := r.Crop(b)

	assert.Equal(t, 2, c.NRows)
	assert.Equal(t, 2, c.NCols)
	assert.Equal(t, orb.Point{-124.0, 48.5}, c.CellCenter(0, 0))

	v, ok := c.Value(0, 0)
	require.True(t, ok)
	assert.Equal(t, 6.0, v) // original (1,2)
	v, ok = c.Value(1, 1)
	require.True(t, ok)
	assert.Equal(t, 11.0, v) // original (2,3)
}

func TestCrop_OutsideGrid(t *testing.T) {
	bilPath := writeTestGrid(t, t.TempDir())
	r, err := ReadDataset(bilPath)
	require.NoError(t, err)

	b := orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{20, 20}}
	c := r.Crop(b)
	assert.Equal(t, 0, c.NRows)
	assert.Equal(t, 0, c.NCols)
	_, ok := c.Value(0, 0)
	assert.False(t, ok)
}

func TestParseCRS(t *testing.T) {
	assert.Equal(t, CRSGeographic, ParseCRS(`GEOGCS["NAD83",DATUM["North_American_Datum_1983"]]`))
	assert.Equal(t, CRSWebMercator, ParseCRS(`PROJCS["WGS_1984_Web_Mercator"]`))
}
