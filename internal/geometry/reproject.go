package geometry

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// ToLatLonFunc converts a projected point to WGS84 latitude and longitude.
// The production implementation is GDAL-backed; tests substitute pure
// functions.
type ToLatLonFunc func(proj Projection, x, y float64) (lat float64, lon float64, err error)

// ProjectedToLatLon reprojects a single point to WGS84.
func ProjectedToLatLon(proj Projection, x, y float64) (float64, float64, error) {
	srs, err := NewSpatialRef(proj)
	if err != nil {
		return 0, 0, err
	}
	defer srs.Close()

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return 0, 0, fmt.Errorf("creating WGS84 spatial reference: %w", err)
	}
	defer wgs84.Close()

	tr, err := godal.NewTransform(srs, wgs84)
	if err != nil {
		return 0, 0, fmt.Errorf("creating coordinate transform: %w", err)
	}
	defer tr.Close()

	xs := []float64{x}
	ys := []float64{y}
	if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
		return 0, 0, fmt.Errorf("reprojecting point (%f, %f): %w", x, y, err)
	}
	return ys[0], xs[0], nil
}

// NewSpatialRef materializes the projection as a GDAL spatial reference.
// The caller owns the handle and must Close it.
func NewSpatialRef(proj Projection) (*godal.SpatialRef, error) {
	if proj.EPSG != 0 {
		srs, err := godal.NewSpatialRefFromEPSG(proj.EPSG)
		if err != nil {
			return nil, fmt.Errorf("creating spatial reference for EPSG %d: %w", proj.EPSG, err)
		}
		return srs, nil
	}
	srs, err := godal.NewSpatialRefFromWKT(proj.WKT)
	if err != nil {
		return nil, fmt.Errorf("creating spatial reference from WKT: %w", err)
	}
	return srs, nil
}
