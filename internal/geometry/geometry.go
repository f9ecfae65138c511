// Package geometry carries the scene corner model and the projected
// coordinate systems accepted for input imagery.
package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Extent holds the four corner coordinates of a scene in a single plane,
// projected metres or geographic degrees. Points follow the orb convention
// of (x, y), so geographic corners are (lon, lat).
type Extent struct {
	TL orb.Point `json:"tl"`
	TR orb.Point `json:"tr"`
	BL orb.Point `json:"bl"`
	BR orb.Point `json:"br"`
}

// InvariantError reports corners that do not form an axis-aligned rectangle
// in the projected plane.
type InvariantError struct {
	Extent Extent
}

func (e *InvariantError) Error() string {
	return "image is not square in projected coordinates"
}

// Validate checks that the left and right edges are vertical and the top and
// bottom edges horizontal. Scene metadata is never built from corners that
// fail this.
func (e Extent) Validate() error {
	if e.TL[0] == e.BL[0] && e.TL[1] == e.TR[1] && e.TR[0] == e.BR[0] && e.BL[1] == e.BR[1] {
		return nil
	}
	return &InvariantError{Extent: e}
}

// Centre derives the scene centre from the corners: the x midpoint walks from
// the top-left corner, the y midpoint from the bottom-right.
func (e Extent) Centre() orb.Point {
	return orb.Point{
		e.TL[0] + ((e.TR[0] - e.TL[0]) / 2),
		e.BR[1] + ((e.TL[1] - e.BR[1]) / 2),
	}
}

// Bound returns the axis-aligned bounding box of the four corners.
func (e Extent) Bound() orb.Bound {
	b := orb.Bound{Min: e.TL, Max: e.TL}
	for _, p := range []orb.Point{e.TR, e.BL, e.BR} {
		b = b.Extend(p)
	}
	return b
}

// Polygon returns the footprint ring TL-TR-BR-BL.
func (e Extent) Polygon() orb.Polygon {
	return orb.Polygon{orb.Ring{e.TL, e.TR, e.BR, e.BL, e.TL}}
}

// PolarStereoWKT is the spatial reference applied to scenes delivered in
// polar stereographic projection.
const PolarStereoWKT = `PROJCS["PS WGS84", GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563, AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]],PROJECTION["Polar_Stereographic"],PARAMETER["latitude_of_origin",-71],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]]]`

// Projection identifies the spatial reference of a scene, by EPSG code for
// UTM and by WKT for polar stereographic.
type Projection struct {
	EPSG int
	WKT  string
}

// ProjectionError reports a projection/datum/ellipsoid combination outside
// the supported set.
type ProjectionError struct {
	MapProjection string
	Datum         string
	Ellipsoid     string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf(
		"expecting the scene to be projected in UTM or PolarStereographic (PS) with datum=WGS84 and ellipsoid=WGS84, got projection=%q datum=%q ellipsoid=%q",
		e.MapProjection, e.Datum, e.Ellipsoid)
}

// ResolveProjection maps a header's projection description to a spatial
// reference. UTM zones map into the northern EPSG range 32601-32660.
// TODO: confirm whether southern hemisphere scenes should map to 327xx codes
// instead; products observed so far all carry northern zone definitions.
func ResolveProjection(mapProjection, datum, ellipsoid string, utmZone int) (Projection, error) {
	switch {
	case mapProjection == "UTM" && datum == "WGS84" && ellipsoid == "WGS84":
		if utmZone < 1 || utmZone > 60 {
			return Projection{}, fmt.Errorf("utm zone %d outside 1-60", utmZone)
		}
		return Projection{EPSG: 32600 + utmZone}, nil
	case mapProjection == "PS" && datum == "WGS84" && ellipsoid == "WGS84":
		return Projection{WKT: PolarStereoWKT}, nil
	default:
		return Projection{}, &ProjectionError{MapProjection: mapProjection, Datum: datum, Ellipsoid: ellipsoid}
	}
}
