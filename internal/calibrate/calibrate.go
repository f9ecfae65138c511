// Package calibrate converts raw digital numbers along the radiometric
// chain: at-sensor radiance, top of atmosphere reflectance, brightness
// temperature and per-band saturation masks. Zero is the nodata value on
// every input and is carried through unchanged.
package calibrate

import (
	"fmt"
	"math"

	"github.com/clearsat/atmcorr/internal/raster"
	"github.com/clearsat/atmcorr/internal/sensor"
)

// ReflectanceScale is the factor applied to unit reflectance before it is
// stored in an unsigned 16 bit product. Downstream consumers divide by it
// to get back to the 0..1 range.
const ReflectanceScale = 1000.0

// Radiance rescales digital numbers to at-sensor radiance with the linear
// calibration carried in the scene header.
func Radiance(dn *raster.Grid, cal sensor.BandCalibration) (*raster.Grid, error) {
	if cal.QCalMax == cal.QCalMin {
		return nil, fmt.Errorf("band %s: digital number range is empty (%v..%v)", cal.Name, cal.QCalMin, cal.QCalMax)
	}
	gain := (cal.LMax - cal.LMin) / (cal.QCalMax - cal.QCalMin)
	out := dn.Like()
	for i, v := range dn.Pixels {
		if v == 0 {
			continue
		}
		out.Pixels[i] = gain*(v-cal.QCalMin) + cal.LMin
	}
	return out, nil
}

// ScaledRadiance rescales digital numbers by a constant factor, the form
// radiometrically calibrated RapidEye tiles use.
func ScaledRadiance(dn *raster.Grid, scale float64) (*raster.Grid, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("radiometric scale factor %v is not usable", scale)
	}
	out := dn.Like()
	for i, v := range dn.Pixels {
		out.Pixels[i] = v * scale
	}
	return out, nil
}

// EarthSunDistance approximates the earth to sun distance in astronomical
// units for a day of year.
func EarthSunDistance(dayOfYear int) float64 {
	return 1 - 0.01672*math.Cos(0.9856*(float64(dayOfYear)-4)*math.Pi/180)
}

// TOAReflectance normalizes at-sensor radiance by solar irradiance and sun
// geometry. Values are scaled by ReflectanceScale and rounded into the
// unsigned 16 bit range so in-memory grids match what a written product
// would read back.
func TOAReflectance(rad *raster.Grid, solarIrradiance, solarZenith float64, dayOfYear int) (*raster.Grid, error) {
	if solarIrradiance <= 0 {
		return nil, fmt.Errorf("solar irradiance %v is not usable", solarIrradiance)
	}
	dist := EarthSunDistance(dayOfYear)
	scale := math.Pi * dist * dist / (solarIrradiance * math.Cos(solarZenith*math.Pi/180)) * ReflectanceScale
	out := rad.Like()
	for i, v := range rad.Pixels {
		if v == 0 {
			continue
		}
		refl := math.Round(v * scale)
		if refl < 0 {
			refl = 0
		} else if refl > math.MaxUint16 {
			refl = math.MaxUint16
		}
		out.Pixels[i] = refl
	}
	return out, nil
}

// BrightnessTemperature converts thermal radiance to at-sensor brightness
// temperature in kelvin, scaled by ReflectanceScale and rounded the way
// the signed 32 bit product stores it.
func BrightnessTemperature(rad *raster.Grid, band sensor.ThermalBand) (*raster.Grid, error) {
	if band.K1 <= 0 || band.K2 <= 0 {
		return nil, fmt.Errorf("band %s: thermal constants are not set", band.Name)
	}
	out := rad.Like()
	for i, v := range rad.Pixels {
		if v <= 0 {
			continue
		}
		out.Pixels[i] = math.Round(band.K2 / math.Log(band.K1/v+1) * ReflectanceScale)
	}
	return out, nil
}

// Saturation flags digital numbers at or above the sensor's saturation
// value with 1, everything else with 0.
func Saturation(dn *raster.Grid, saturationValue float64) *raster.Grid {
	out := dn.Like()
	for i, v := range dn.Pixels {
		if v != 0 && v >= saturationValue {
			out.Pixels[i] = 1
		}
	}
	return out
}
