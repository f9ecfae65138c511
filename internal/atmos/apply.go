package atmos

import (
	"fmt"
	"math"

	"github.com/clearsat/atmcorr/internal/calibrate"
	"github.com/clearsat/atmcorr/internal/raster"
	"github.com/clearsat/atmcorr/internal/sixs"
)

// InvertReflectance converts one radiance value to surface reflectance
// with a band's coefficients.
func InvertReflectance(radiance float64, c sixs.Coefficients) float64 {
	t := c.XA*radiance - c.XB
	return t / (1 + c.XC*t)
}

func scaleReflectance(refl float64) float64 {
	v := math.Round(refl * calibrate.ReflectanceScale)
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return v
}

func checkStack(radiance []*raster.Grid, nCoeffs int) error {
	if len(radiance) == 0 {
		return fmt.Errorf("no radiance bands to correct")
	}
	if len(radiance) != nCoeffs {
		return fmt.Errorf("%d radiance bands but coefficients for %d", len(radiance), nCoeffs)
	}
	for i, band := range radiance[1:] {
		if !band.SameShape(radiance[0]) {
			return fmt.Errorf("radiance band %d does not match the stack shape", i+2)
		}
	}
	return nil
}

// ApplySingle corrects a radiance stack with one coefficient set for the
// whole scene. Output values are scaled reflectance in the unsigned 16 bit
// range; zero radiance stays zero.
func ApplySingle(radiance []*raster.Grid, coeffs []sixs.Coefficients) ([]*raster.Grid, error) {
	if err := checkStack(radiance, len(coeffs)); err != nil {
		return nil, err
	}
	out := make([]*raster.Grid, len(radiance))
	for b, band := range radiance {
		sref := band.Like()
		for i, v := range band.Pixels {
			if v == 0 {
				continue
			}
			sref.Pixels[i] = scaleReflectance(InvertReflectance(v, coeffs[b]))
		}
		out[b] = sref
	}
	return out, nil
}

// ApplyElevationLUT corrects a radiance stack using the coefficient entry
// nearest to each pixel's elevation.
func ApplyElevationLUT(radiance []*raster.Grid, dem *raster.Grid, lut ElevationLUT) ([]*raster.Grid, error) {
	if len(lut) == 0 {
		return nil, fmt.Errorf("elevation coefficient table is empty")
	}
	if err := checkStack(radiance, len(lut[0].Bands)); err != nil {
		return nil, err
	}
	if !dem.SameShape(radiance[0]) {
		return nil, fmt.Errorf("elevation image does not match the stack shape")
	}

	out := make([]*raster.Grid, len(radiance))
	for b := range radiance {
		out[b] = radiance[b].Like()
	}
	for i := range dem.Pixels {
		entry, err := lut.Nearest(dem.Pixels[i])
		if err != nil {
			return nil, err
		}
		for b, band := range radiance {
			if v := band.Pixels[i]; v != 0 {
				out[b].Pixels[i] = scaleReflectance(InvertReflectance(v, entry.Bands[b]))
			}
		}
	}
	return out, nil
}

// ApplyElevationAOTLUT corrects a radiance stack using the coefficient
// entry nearest to each pixel's elevation and aerosol depth.
func ApplyElevationAOTLUT(radiance []*raster.Grid, dem, aot *raster.Grid, lut ElevationAOTLUT) ([]*raster.Grid, error) {
	if len(lut) == 0 || len(lut[0].AOT) == 0 {
		return nil, fmt.Errorf("elevation and aerosol coefficient table is empty")
	}
	if err := checkStack(radiance, len(lut[0].AOT[0].Bands)); err != nil {
		return nil, err
	}
	if !dem.SameShape(radiance[0]) {
		return nil, fmt.Errorf("elevation image does not match the stack shape")
	}
	if !aot.SameShape(radiance[0]) {
		return nil, fmt.Errorf("aerosol depth image does not match the stack shape")
	}

	out := make([]*raster.Grid, len(radiance))
	for b := range radiance {
		out[b] = radiance[b].Like()
	}
	for i := range dem.Pixels {
		coeffs, err := lut.Nearest(dem.Pixels[i], aot.Pixels[i])
		if err != nil {
			return nil, err
		}
		for b, band := range radiance {
			if v := band.Pixels[i]; v != 0 {
				out[b].Pixels[i] = scaleReflectance(InvertReflectance(v, coeffs[b]))
			}
		}
	}
	return out, nil
}
