// Package sensor normalizes vendor metadata headers into a single scene
// model. Each supported sensor is a tagged variant backed by a constant
// calibration table; one parameterized extraction path serves them all.
package sensor

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/clearsat/atmcorr/internal/geometry"
	"github.com/clearsat/atmcorr/internal/sixs"
)

// ID tags a supported sensor variant.
type ID string

const (
	Landsat5TM  ID = "LS5TM"
	Landsat7ETM ID = "LS7"
	Landsat2MSS ID = "LS2MSS"
	RapidEye    ID = "RapidEye"
)

// FromName maps a command line sensor name to its ID.
func FromName(name string) (ID, error) {
	switch strings.ToLower(name) {
	case "ls5tm":
		return Landsat5TM, nil
	case "ls7", "ls7etm":
		return Landsat7ETM, nil
	case "ls2mss":
		return Landsat2MSS, nil
	case "rapideye":
		return RapidEye, nil
	default:
		return "", fmt.Errorf("unknown sensor name %q", name)
	}
}

// Names lists the accepted command line sensor names.
func Names() []string {
	return []string{"ls5tm", "ls7", "ls2mss", "rapideye"}
}

// UnrecognizedError reports spacecraft/instrument identifiers outside the
// accepted set for the requested variant.
type UnrecognizedError struct {
	Spacecraft string
	Instrument string
}

func (e *UnrecognizedError) Error() string {
	return fmt.Sprintf("unrecognised spacecraft and sensor combination: %q / %q", e.Spacecraft, e.Instrument)
}

// QAFormat identifies the quality band convention a scene carries.
type QAFormat int

const (
	QANone QAFormat = iota
	QACollection1
	QACollection2
)

// BandCalibration is the immutable calibration record for one reflective
// band: where its pixels live and how its digital numbers map to radiance.
type BandCalibration struct {
	Name      string
	FilePath  string
	BandIndex int
	QCalMin   float64
	QCalMax   float64
	LMin      float64
	LMax      float64
}

// ThermalBand extends a calibration record with the Planck constants used
// for brightness temperature.
type ThermalBand struct {
	BandCalibration
	K1 float64
	K2 float64
}

// SceneMetadata is the normalized description of one acquisition. It is
// built once by a parser and read-only afterwards.
type SceneMetadata struct {
	Sensor     ID
	Spacecraft string
	Instrument string
	HeaderPath string

	Acquired time.Time
	Path     int
	Row      int
	TileID   string

	SolarZenith   float64
	SolarAzimuth  float64
	SensorZenith  float64
	SensorAzimuth float64

	CloudCover float64

	Projected  geometry.Extent
	Geographic geometry.Extent
	Centre     orb.Point
	LatCentre  float64
	LonCentre  float64
	Projection geometry.Projection

	Bands   []BandCalibration
	Thermal []ThermalBand

	QAFile   string
	QAFormat QAFormat

	// RadianceScale, when non-zero, converts digital numbers to radiance
	// directly (RapidEye). Zero means linear lMin/lMax calibration.
	RadianceScale float64
}

// Band finds a reflective band by name.
func (m *SceneMetadata) Band(name string) (BandCalibration, bool) {
	for _, b := range m.Bands {
		if b.Name == name {
			return b, true
		}
	}
	return BandCalibration{}, false
}

// GMTDecimalHour is the acquisition hour with minutes folded in, the form
// the radiative transfer geometry expects.
func (m *SceneMetadata) GMTDecimalHour() float64 {
	return float64(m.Acquired.Hour()) + float64(m.Acquired.Minute())/60.0
}

// SixSGeometry assembles the fixed model geometry for this scene.
func (m *SceneMetadata) SixSGeometry() sixs.Geometry {
	return sixs.Geometry{
		Month:          int(m.Acquired.Month()),
		Day:            m.Acquired.Day(),
		GMTDecimalHour: m.GMTDecimalHour(),
		Latitude:       m.LatCentre,
		Longitude:      m.LonCentre,
	}
}

// SolarIrradiances returns the per-band exo-atmospheric irradiance values in
// stack order.
func (id ID) SolarIrradiances() []float64 {
	defs := bandTable(id)
	out := make([]float64, len(defs))
	for i, d := range defs {
		out[i] = d.irradiance
	}
	return out
}

// Wavelengths returns the per-band spectral intervals in stack order.
func (id ID) Wavelengths() []sixs.Wavelength {
	defs := bandTable(id)
	out := make([]sixs.Wavelength, len(defs))
	for i, d := range defs {
		out[i] = d.wavelength
	}
	return out
}

// BandRoles gives the 1-based stack positions of the spectral roles the
// aerosol estimators rely on. Zero marks a role the sensor lacks.
type BandRoles struct {
	Blue  int
	Green int
	Red   int
	NIR   int
	SWIR1 int
	SWIR2 int
}

// Parse reads and normalizes the header file for the named variant.
func Parse(id ID, headerPath string, toLatLon geometry.ToLatLonFunc) (*SceneMetadata, error) {
	if id == RapidEye {
		return ParseRapidEyeFile(headerPath)
	}
	return ParseLandsatFile(id, headerPath, toLatLon)
}

// Roles reports the spectral role layout of the reflective stack.
func (id ID) Roles() BandRoles {
	switch id {
	case Landsat5TM, Landsat7ETM:
		return BandRoles{Blue: 1, Green: 2, Red: 3, NIR: 4, SWIR1: 5, SWIR2: 6}
	case Landsat2MSS:
		return BandRoles{Green: 1, Red: 2, NIR: 3}
	case RapidEye:
		return BandRoles{Blue: 1, Green: 2, Red: 3, NIR: 5}
	default:
		return BandRoles{}
	}
}
