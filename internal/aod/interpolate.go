package aod

import (
	"errors"

	"github.com/clearsat/atmcorr/internal/raster"
)

const (
	// InterpolationSmoothing is the length scale, in map units, added to
	// every sample distance so exact hits do not dominate their cell.
	InterpolationSmoothing = 10.0
	// AODFloor is the minimum depth an interpolated raster reports.
	AODFloor = 0.05
)

// Point is one sparse sample for interpolation.
type Point struct {
	Easting  float64
	Northing float64
	Value    float64
}

// Interpolate fills a raster shaped like the template with inverse
// distance weighted values from the samples. Uniform samples produce a
// constant raster; outputs below the floor are raised to it.
func Interpolate(points []Point, template *raster.Grid, smoothing, floor float64) (*raster.Grid, error) {
	if len(points) == 0 {
		return nil, errors.New("no sample points to interpolate from")
	}

	out := template.Like()
	s2 := smoothing * smoothing
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			east, north := out.PixelCentre(x, y)
			var num, den float64
			for _, p := range points {
				dx := east - p.Easting
				dy := north - p.Northing
				w := 1 / (dx*dx + dy*dy + s2)
				num += w * p.Value
				den += w
			}
			v := num / den
			if v < floor {
				v = floor
			}
			out.Set(x, y, v)
		}
	}
	return out, nil
}

// selectedPoints collects the interpolation samples from the segments
// that won grid selection, valued by the searched depths.
func selectedPoints(segments []Segment, aots []float64) []Point {
	points := make([]Point, 0, len(segments))
	for i, seg := range segments {
		if !seg.Selected {
			continue
		}
		points = append(points, Point{Easting: seg.Easting, Northing: seg.Northing, Value: aots[i]})
	}
	return points
}
