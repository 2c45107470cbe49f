package extractor

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/dohdata/prismzonal/internal/raster"
)

// ZonalMean averages the valid cells of r whose centers fall inside geom.
// The grid is first cropped to the zone's bounding box so the containment
// test only runs over candidate cells; a census tract covers a handful of
// 4km cells while the grid covers the continent. A zone with no valid
// covered cell yields an invalid Stat.
func ZonalMean(r *raster.Raster, geom orb.MultiPolygon) Stat {
	cropped := r.Crop(geom.Bound())

	var sum float64
	var n int
	for row := 0; row < cropped.NRows; row++ {
		for col := 0; col < cropped.NCols; col++ {
			v, ok := cropped.Value(row, col)
			if !ok {
				continue
			}
			if !planar.MultiPolygonContains(geom, cropped.CellCenter(row, col)) {
				continue
			}
			sum += v
			n++
		}
	}
	if n == 0 {
		return Stat{}
	}
	return Stat{Mean: sum / float64(n), Valid: true}
}
