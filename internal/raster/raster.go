// Package raster reads ESRI BIL grids as shipped in PRISM daily archives:
// a raw single-band .bil alongside a .hdr key/value header and an optional
// .prj projection file.
package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// CRS identifies the coordinate reference system of a grid. PRISM grids
// are geographic (lon/lat, NAD83); Web Mercator shows up when grids have
// been re-tiled for web maps.
type CRS int

const (
	CRSGeographic CRS = iota
	CRSWebMercator
)

func (c CRS) String() string {
	switch c {
	case CRSWebMercator:
		return "web-mercator"
	default:
		return "geographic"
	}
}

// Header describes a BIL grid's layout and georeference. ULXMap/ULYMap are
// the coordinates of the center of the upper-left cell, per the ESRI
// convention; rows run from north to south.
type Header struct {
	NRows, NCols int
	NBits        int
	PixelType    string // "FLOAT" or "SIGNEDINT"
	LittleEndian bool
	ULXMap       float64
	ULYMap       float64
	XDim, YDim   float64
	NoData       float64
}

// Raster is one in-memory grid: header, CRS and row-major cell values.
// Values equal to the nodata sentinel stay in the slice; Value filters
// them.
type Raster struct {
	Header
	CRS    CRS
	values []float64
}

// New builds a raster from an explicit header and row-major values.
func New(hdr Header, crs CRS, values []float64) (*Raster, error) {
	if len(values) != hdr.NRows*hdr.NCols {
		return nil, fmt.Errorf("raster values: got %d, want %dx%d", len(values), hdr.NRows, hdr.NCols)
	}
	return &Raster{Header: hdr, CRS: crs, values: values}, nil
}

// Value returns the cell value and whether it is valid (in range and not
// nodata).
func (r *Raster) Value(row, col int) (float64, bool) {
	if row < 0 || row >= r.NRows || col < 0 || col >= r.NCols {
		return 0, false
	}
	v := r.values[row*r.NCols+col]
	if v == r.NoData || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// CellCenter returns the coordinate of a cell's center in the grid's CRS.
func (r *Raster) CellCenter(row, col int) orb.Point {
	return orb.Point{
		r.ULXMap + float64(col)*r.XDim,
		r.ULYMap - float64(row)*r.YDim,
	}
}

// Bound returns the outer edge of the grid (cell edges, not centers).
func (r *Raster) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{
			r.ULXMap - r.XDim/2,
			r.ULYMap - float64(r.NRows-1)*r.YDim - r.YDim/2,
		},
		Max: orb.Point{
			r.ULXMap + float64(r.NCols-1)*r.XDim + r.XDim/2,
			r.ULYMap + r.YDim/2,
		},
	}
}

// Crop returns the sub-grid of cells whose centers fall within b, expanded
// by half a cell so boundary cells are kept. Cropping to a bound outside
// the grid yields an empty raster, not an error; downstream statistics
// treat that as all-missing.
func (r *Raster) Crop(b orb.Bound) *Raster {
	halfX, halfY := r.XDim/2, r.YDim/2

	// Lowest/highest cell indices whose centers land inside the expanded
	// bound.
	col0 := int(math.Ceil((b.Min[0] - halfX - r.ULXMap) / r.XDim))
	col1 := int(math.Floor((b.Max[0] + halfX - r.ULXMap) / r.XDim))
	row0 := int(math.Ceil((r.ULYMap - (b.Max[1] + halfY)) / r.YDim))
	row1 := int(math.Floor((r.ULYMap - (b.Min[1] - halfY)) / r.YDim))

	col0 = clamp(col0, 0, r.NCols)
	col1 = clamp(col1+1, 0, r.NCols)
	row0 = clamp(row0, 0, r.NRows)
	row1 = clamp(row1+1, 0, r.NRows)

	out := &Raster{Header: r.Header, CRS: r.CRS}
	out.NRows = max(0, row1-row0)
	out.NCols = max(0, col1-col0)
	if out.NRows == 0 || out.NCols == 0 {
		out.NRows, out.NCols = 0, 0
		return out
	}
	out.ULXMap = r.ULXMap + float64(col0)*r.XDim
	out.ULYMap = r.ULYMap - float64(row0)*r.YDim
	out.values = make([]float64, out.NRows*out.NCols)
	for row := 0; row < out.NRows; row++ {
		src := (row0+row)*r.NCols + col0
		copy(out.values[row*out.NCols:(row+1)*out.NCols], r.values[src:src+out.NCols])
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
