package sensor

import "github.com/clearsat/atmcorr/internal/sixs"

// bandDef binds a band's header key tokens to its physical constants.
// calNum is the band token in collection-era keys
// (QUANTIZE_CAL_MIN_BAND_<calNum>), legacyNum the token in pre-collection
// keys (QCALMIN_BAND<legacyNum>).
type bandDef struct {
	name       string
	calNum     string
	legacyNum  string
	wavelength sixs.Wavelength
	irradiance float64
	defLMin    float64
	defLMax    float64
}

type thermalDef struct {
	bandDef
	k1 float64
	k2 float64
}

// variant is the constant table that parameterizes the shared Landsat
// extraction path for one sensor.
type variant struct {
	id          ID
	spacecrafts []string
	instruments []string
	bands       []bandDef
	thermal     []thermalDef

	// strict variants (the older MSS products) expose exactly one key form
	// and carry no calibration fallbacks.
	strict bool
	// utmOnly variants reject polar stereographic scenes.
	utmOnly bool
}

var landsat5TM = variant{
	id:          Landsat5TM,
	spacecrafts: []string{"LANDSAT_5", "LANDSAT5"},
	instruments: []string{"TM"},
	bands: []bandDef{
		{name: "Blue", calNum: "1", legacyNum: "1", wavelength: sixs.Wavelength{Name: "Blue", Start: 0.45, End: 0.52}, irradiance: 1957.0, defLMin: -1.52, defLMax: 193.0},
		{name: "Green", calNum: "2", legacyNum: "2", wavelength: sixs.Wavelength{Name: "Green", Start: 0.52, End: 0.60}, irradiance: 1826.0, defLMin: -2.84, defLMax: 365.0},
		{name: "Red", calNum: "3", legacyNum: "3", wavelength: sixs.Wavelength{Name: "Red", Start: 0.63, End: 0.69}, irradiance: 1554.0, defLMin: -1.17, defLMax: 264.0},
		{name: "NIR", calNum: "4", legacyNum: "4", wavelength: sixs.Wavelength{Name: "NIR", Start: 0.76, End: 0.90}, irradiance: 1036.0, defLMin: -1.51, defLMax: 221.0},
		{name: "SWIR1", calNum: "5", legacyNum: "5", wavelength: sixs.Wavelength{Name: "SWIR1", Start: 1.55, End: 1.75}, irradiance: 215.0, defLMin: -0.37, defLMax: 30.2},
		{name: "SWIR2", calNum: "7", legacyNum: "7", wavelength: sixs.Wavelength{Name: "SWIR2", Start: 2.08, End: 2.35}, irradiance: 80.67, defLMin: -0.15, defLMax: 16.5},
	},
	thermal: []thermalDef{
		{bandDef: bandDef{name: "ThermalB6", calNum: "6", legacyNum: "6", wavelength: sixs.Wavelength{Name: "ThermalB6", Start: 10.40, End: 12.50}, defLMin: 1.238, defLMax: 15.303}, k1: 607.76, k2: 1260.56},
	},
}

var landsat7ETM = variant{
	id:          Landsat7ETM,
	spacecrafts: []string{"LANDSAT_7", "LANDSAT7"},
	instruments: []string{"ETM", "ETM+"},
	bands: []bandDef{
		{name: "Blue", calNum: "1", legacyNum: "1", wavelength: sixs.Wavelength{Name: "Blue", Start: 0.45, End: 0.515}, irradiance: 1997.0, defLMin: -6.2, defLMax: 191.6},
		{name: "Green", calNum: "2", legacyNum: "2", wavelength: sixs.Wavelength{Name: "Green", Start: 0.525, End: 0.605}, irradiance: 1812.0, defLMin: -6.4, defLMax: 196.5},
		{name: "Red", calNum: "3", legacyNum: "3", wavelength: sixs.Wavelength{Name: "Red", Start: 0.63, End: 0.69}, irradiance: 1533.0, defLMin: -5.0, defLMax: 152.9},
		{name: "NIR", calNum: "4", legacyNum: "4", wavelength: sixs.Wavelength{Name: "NIR", Start: 0.775, End: 0.90}, irradiance: 1039.0, defLMin: -5.1, defLMax: 241.1},
		{name: "SWIR1", calNum: "5", legacyNum: "5", wavelength: sixs.Wavelength{Name: "SWIR1", Start: 1.55, End: 1.75}, irradiance: 230.8, defLMin: -1.0, defLMax: 31.06},
		{name: "SWIR2", calNum: "7", legacyNum: "7", wavelength: sixs.Wavelength{Name: "SWIR2", Start: 2.09, End: 2.35}, irradiance: 84.9, defLMin: -0.35, defLMax: 10.8},
	},
	thermal: []thermalDef{
		{bandDef: bandDef{name: "ThermalB6a", calNum: "6_VCID_1", legacyNum: "61", wavelength: sixs.Wavelength{Name: "ThermalB6a", Start: 10.40, End: 12.50}, defLMin: 0.0, defLMax: 17.04}, k1: 666.09, k2: 1282.71},
		{bandDef: bandDef{name: "ThermalB6b", calNum: "6_VCID_2", legacyNum: "62", wavelength: sixs.Wavelength{Name: "ThermalB6b", Start: 10.40, End: 12.50}, defLMin: 3.2, defLMax: 12.65}, k1: 666.09, k2: 1282.71},
	},
}

var landsat2MSS = variant{
	id:          Landsat2MSS,
	spacecrafts: []string{"LANDSAT_2"},
	instruments: []string{"MSS"},
	bands: []bandDef{
		{name: "Green", calNum: "4", wavelength: sixs.Wavelength{Name: "Green", Start: 0.50, End: 0.60}, irradiance: 1829.0},
		{name: "Red", calNum: "5", wavelength: sixs.Wavelength{Name: "Red", Start: 0.60, End: 0.70}, irradiance: 1539.0},
		{name: "NIR1", calNum: "6", wavelength: sixs.Wavelength{Name: "NIR1", Start: 0.70, End: 0.80}, irradiance: 1268.0},
		{name: "NIR2", calNum: "7", wavelength: sixs.Wavelength{Name: "NIR2", Start: 0.80, End: 1.10}, irradiance: 886.6},
	},
	strict:  true,
	utmOnly: true,
}

// rapidEyeRadianceScale converts RapidEye digital numbers to radiance when
// the product is radiometrically calibrated.
const rapidEyeRadianceScale = 0.01

var rapidEyeBands = []bandDef{
	{name: "Blue", wavelength: sixs.Wavelength{Name: "Blue", Start: 0.44, End: 0.51}, irradiance: 1997.8},
	{name: "Green", wavelength: sixs.Wavelength{Name: "Green", Start: 0.52, End: 0.59}, irradiance: 1863.5},
	{name: "Red", wavelength: sixs.Wavelength{Name: "Red", Start: 0.63, End: 0.685}, irradiance: 1560.4},
	{name: "RedEdge", wavelength: sixs.Wavelength{Name: "RedEdge", Start: 0.69, End: 0.73}, irradiance: 1395.0},
	{name: "NIR", wavelength: sixs.Wavelength{Name: "NIR", Start: 0.76, End: 0.85}, irradiance: 1124.4},
}

func variantFor(id ID) (variant, bool) {
	switch id {
	case Landsat5TM:
		return landsat5TM, true
	case Landsat7ETM:
		return landsat7ETM, true
	case Landsat2MSS:
		return landsat2MSS, true
	default:
		return variant{}, false
	}
}

func bandTable(id ID) []bandDef {
	if id == RapidEye {
		return rapidEyeBands
	}
	if v, ok := variantFor(id); ok {
		return v.bands
	}
	return nil
}
