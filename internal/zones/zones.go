// Package zones loads the reference zone polygon set: census tract
// boundaries as a GeoJSON FeatureCollection with a stable identifier
// property. The set is loaded and reprojected once per run and shared
// read-only by all extraction workers.
package zones

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"github.com/dohdata/prismzonal/internal/raster"
)

// Zone is one named boundary. Geometry is always held as a MultiPolygon;
// single polygons are wrapped on load.
type Zone struct {
	ID       string
	Geometry orb.MultiPolygon
}

// Set is the fixed collection of zones for a run, tagged with the CRS its
// coordinates are currently expressed in. GeoJSON input is lon/lat per
// RFC 7946.
type Set struct {
	Zones []Zone
	CRS   raster.CRS
}

// Load reads a GeoJSON FeatureCollection and pulls the zone identifier out
// of idProperty on each feature. Features without the property or with
// non-areal geometry are errors; a boundary file with holes in it would
// silently shrink every output, better to fail loudly.
func Load(path, idProperty string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zone file %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse zone file %s: %w", path, err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("zone file %s: no features", path)
	}

	set := &Set{CRS: raster.CRSGeographic, Zones: make([]Zone, 0, len(fc.Features))}
	for i, feat := range fc.Features {
		id, err := featureID(feat, idProperty)
		if err != nil {
			return nil, fmt.Errorf("zone file %s feature %d: %w", path, i, err)
		}

		var geom orb.MultiPolygon
		switch g := feat.Geometry.(type) {
		case orb.Polygon:
			geom = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			geom = g
		default:
			return nil, fmt.Errorf("zone file %s feature %d (%s): geometry is %T, want polygon", path, i, id, feat.Geometry)
		}
		set.Zones = append(set.Zones, Zone{ID: id, Geometry: geom})
	}
	return set, nil
}

func featureID(feat *geojson.Feature, idProperty string) (string, error) {
	v, ok := feat.Properties[idProperty]
	if !ok {
		return "", fmt.Errorf("missing property %q", idProperty)
	}
	switch id := v.(type) {
	case string:
		return id, nil
	case float64:
		// JSON numbers decode as float64; tract GEOIDs are integral.
		return fmt.Sprintf("%.0f", id), nil
	default:
		return "", fmt.Errorf("property %q has unsupported type %T", idProperty, v)
	}
}

// Reproject returns the set expressed in the target CRS. Same-CRS calls
// return the receiver unchanged. This runs once per pipeline invocation,
// before workers start; reprojecting a tract set is far more expensive
// than any single zonal pass.
func (s *Set) Reproject(target raster.CRS) (*Set, error) {
	if s.CRS == target {
		return s, nil
	}

	var proj orb.Projection
	switch {
	case s.CRS == raster.CRSGeographic && target == raster.CRSWebMercator:
		proj = project.WGS84.ToMercator
	case s.CRS == raster.CRSWebMercator && target == raster.CRSGeographic:
		proj = project.Mercator.ToWGS84
	default:
		return nil, fmt.Errorf("no projection from %s to %s", s.CRS, target)
	}

	out := &Set{CRS: target, Zones: make([]Zone, len(s.Zones))}
	for i, z := range s.Zones {
		out.Zones[i] = Zone{
			ID:       z.ID,
			Geometry: project.MultiPolygon(z.Geometry.Clone(), proj),
		}
	}
	return out, nil
}

// Bound is the combined bounding box of every zone, used to crop each
// raster before the per-polygon pass.
func (s *Set) Bound() orb.Bound {
	b := s.Zones[0].Geometry.Bound()
	for _, z := range s.Zones[1:] {
		b = b.Union(z.Geometry.Bound())
	}
	return b
}
