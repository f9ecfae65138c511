package sensor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsat/atmcorr/internal/geometry"
	"github.com/clearsat/atmcorr/internal/mtl"
)

func tmHeaderValues() map[string]string {
	return map[string]string{
		"SPACECRAFT_ID":     `"LANDSAT_5"`,
		"SENSOR_ID":         `"TM"`,
		"WRS_PATH":          "204",
		"WRS_ROW":           "23",
		"DATE_ACQUIRED":     "2011-05-21",
		"SCENE_CENTER_TIME": `"10:05:27.0150000Z"`,
		"SUN_ELEVATION":     "57.25",
		"SUN_AZIMUTH":       "140.36",
		"CLOUD_COVER":       "12.5",

		"CORNER_UL_LAT_PRODUCT": "52.41508",
		"CORNER_UL_LON_PRODUCT": "-3.98208",
		"CORNER_UR_LAT_PRODUCT": "52.33263",
		"CORNER_UR_LON_PRODUCT": "-0.43577",
		"CORNER_LL_LAT_PRODUCT": "50.21967",
		"CORNER_LL_LON_PRODUCT": "-3.92878",
		"CORNER_LR_LAT_PRODUCT": "50.14172",
		"CORNER_LR_LON_PRODUCT": "-0.54924",

		"CORNER_UL_PROJECTION_X_PRODUCT": "433200.000",
		"CORNER_UL_PROJECTION_Y_PRODUCT": "5809500.000",
		"CORNER_UR_PROJECTION_X_PRODUCT": "674700.000",
		"CORNER_UR_PROJECTION_Y_PRODUCT": "5809500.000",
		"CORNER_LL_PROJECTION_X_PRODUCT": "433200.000",
		"CORNER_LL_PROJECTION_Y_PRODUCT": "5563800.000",
		"CORNER_LR_PROJECTION_X_PRODUCT": "674700.000",
		"CORNER_LR_PROJECTION_Y_PRODUCT": "5563800.000",

		"MAP_PROJECTION": `"UTM"`,
		"DATUM":          `"WGS84"`,
		"ELLIPSOID":      `"WGS84"`,
		"UTM_ZONE":       "30",

		"FILE_NAME_BAND_1":       `"LT05_B1.TIF"`,
		"FILE_NAME_BAND_2":       `"LT05_B2.TIF"`,
		"FILE_NAME_BAND_3":       `"LT05_B3.TIF"`,
		"FILE_NAME_BAND_4":       `"LT05_B4.TIF"`,
		"FILE_NAME_BAND_5":       `"LT05_B5.TIF"`,
		"FILE_NAME_BAND_6":       `"LT05_B6.TIF"`,
		"FILE_NAME_BAND_7":       `"LT05_B7.TIF"`,
		"FILE_NAME_BAND_QUALITY": `"LT05_BQA.TIF"`,

		"QUANTIZE_CAL_MIN_BAND_1": "1.0",
		"QUANTIZE_CAL_MAX_BAND_1": "254.0",
		"RADIANCE_MINIMUM_BAND_1": "-1.520",
		"RADIANCE_MAXIMUM_BAND_1": "193.000",
	}
}

func renderHeader(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("GROUP = L1_METADATA_FILE\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %s = %s\n", k, values[k])
	}
	sb.WriteString("END_GROUP = L1_METADATA_FILE\nEND\n")
	return sb.String()
}

func parseHeader(t *testing.T, id ID, values map[string]string, toLatLon geometry.ToLatLonFunc) (*SceneMetadata, error) {
	t.Helper()
	hdr, err := mtl.Parse(strings.NewReader(renderHeader(values)))
	require.NoError(t, err)
	if toLatLon == nil {
		toLatLon = func(proj geometry.Projection, x, y float64) (float64, float64, error) {
			return 51.3, -2.2, nil
		}
	}
	return ParseLandsat(id, hdr, "/scenes/lt05", toLatLon)
}

func TestParseLandsat5TMHeader(t *testing.T) {
	var gotProj geometry.Projection
	var gotX, gotY float64
	toLatLon := func(proj geometry.Projection, x, y float64) (float64, float64, error) {
		gotProj, gotX, gotY = proj, x, y
		return 51.3, -2.2, nil
	}

	m, err := parseHeader(t, Landsat5TM, tmHeaderValues(), toLatLon)
	require.NoError(t, err)

	assert.Equal(t, Landsat5TM, m.Sensor)
	assert.Equal(t, "LANDSAT_5", m.Spacecraft)
	assert.Equal(t, 204, m.Path)
	assert.Equal(t, 23, m.Row)
	assert.Equal(t, time.Date(2011, 5, 21, 10, 5, 27, 0, time.UTC), m.Acquired)
	assert.InDelta(t, 32.75, m.SolarZenith, 1e-9)
	assert.InDelta(t, 140.36, m.SolarAzimuth, 1e-9)
	assert.InDelta(t, 12.5, m.CloudCover, 1e-9)

	// Centre walks from TL in x and BR in y.
	assert.Equal(t, orb.Point{553950, 5686650}, m.Centre)
	assert.Equal(t, 553950.0, gotX)
	assert.Equal(t, 5686650.0, gotY)
	assert.Equal(t, 32630, gotProj.EPSG)
	assert.Equal(t, 32630, m.Projection.EPSG)
	assert.InDelta(t, 51.3, m.LatCentre, 1e-9)
	assert.InDelta(t, -2.2, m.LonCentre, 1e-9)

	require.Len(t, m.Bands, 6)
	names := make([]string, 0, 6)
	for _, b := range m.Bands {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"Blue", "Green", "Red", "NIR", "SWIR1", "SWIR2"}, names)

	blue := m.Bands[0]
	assert.Equal(t, "/scenes/lt05/LT05_B1.TIF", blue.FilePath)
	assert.Equal(t, 1, blue.BandIndex)
	assert.Equal(t, 254.0, blue.QCalMax, "explicit header values win over defaults")
	assert.Equal(t, -1.52, blue.LMin)

	green := m.Bands[1]
	assert.Equal(t, 1.0, green.QCalMin, "absent keys take the calibration defaults")
	assert.Equal(t, 255.0, green.QCalMax)
	assert.Equal(t, -2.84, green.LMin)
	assert.Equal(t, 365.0, green.LMax)

	require.Len(t, m.Thermal, 1)
	thermal := m.Thermal[0]
	assert.Equal(t, "ThermalB6", thermal.Name)
	assert.Equal(t, 607.76, thermal.K1)
	assert.Equal(t, 1260.56, thermal.K2)
	assert.Equal(t, 1.238, thermal.LMin)
	assert.Equal(t, 15.303, thermal.LMax)

	assert.Equal(t, "/scenes/lt05/LT05_BQA.TIF", m.QAFile)
	assert.Equal(t, QACollection1, m.QAFormat)
}

func TestParseLandsatLegacyKeyFallbacks(t *testing.T) {
	values := tmHeaderValues()
	// Rewrite the header in the pre-collection vocabulary.
	replace := func(oldKey, newKey string) {
		values[newKey] = values[oldKey]
		delete(values, oldKey)
	}
	replace("DATE_ACQUIRED", "ACQUISITION_DATE")
	replace("SCENE_CENTER_TIME", "SCENE_CENTER_SCAN_TIME")
	replace("WRS_ROW", "STARTING_ROW")
	replace("UTM_ZONE", "ZONE_NUMBER")
	for _, c := range []string{"UL", "UR", "LL", "LR"} {
		replace("CORNER_"+c+"_LAT_PRODUCT", "PRODUCT_"+c+"_CORNER_LAT")
		replace("CORNER_"+c+"_LON_PRODUCT", "PRODUCT_"+c+"_CORNER_LON")
		replace("CORNER_"+c+"_PROJECTION_X_PRODUCT", "PRODUCT_"+c+"_CORNER_MAPX")
		replace("CORNER_"+c+"_PROJECTION_Y_PRODUCT", "PRODUCT_"+c+"_CORNER_MAPY")
	}
	for _, n := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		replace("FILE_NAME_BAND_"+n, "BAND"+n+"_FILE_NAME")
	}
	replace("QUANTIZE_CAL_MIN_BAND_1", "QCALMIN_BAND1")
	replace("QUANTIZE_CAL_MAX_BAND_1", "QCALMAX_BAND1")
	replace("RADIANCE_MINIMUM_BAND_1", "LMIN_BAND1")
	replace("RADIANCE_MAXIMUM_BAND_1", "LMAX_BAND1")

	m, err := parseHeader(t, Landsat5TM, values, nil)
	require.NoError(t, err)

	assert.Equal(t, 23, m.Row)
	assert.Equal(t, time.Date(2011, 5, 21, 10, 5, 27, 0, time.UTC), m.Acquired)
	assert.Equal(t, orb.Point{553950, 5686650}, m.Centre)
	assert.Equal(t, 254.0, m.Bands[0].QCalMax)
	assert.Equal(t, "/scenes/lt05/LT05_B1.TIF", m.Bands[0].FilePath)
}

func TestParseLandsatUnrecognizedCombination(t *testing.T) {
	values := tmHeaderValues()
	values["SPACECRAFT_ID"] = `"LANDSAT_8"`
	values["SENSOR_ID"] = `"OLI"`

	m, err := parseHeader(t, Landsat5TM, values, nil)
	require.Error(t, err)
	assert.Nil(t, m)

	var unrec *UnrecognizedError
	require.True(t, errors.As(err, &unrec))
	assert.Equal(t, "LANDSAT_8", unrec.Spacecraft)
	assert.Equal(t, "OLI", unrec.Instrument)
}

func TestParseLandsatNonRectangularCorners(t *testing.T) {
	values := tmHeaderValues()
	values["CORNER_LL_PROJECTION_X_PRODUCT"] = "433215.000"

	m, err := parseHeader(t, Landsat5TM, values, nil)
	require.Error(t, err)
	assert.Nil(t, m, "no metadata may be produced from invalid corners")

	var invariant *geometry.InvariantError
	assert.True(t, errors.As(err, &invariant))
}

func TestParseLandsatUnsupportedProjection(t *testing.T) {
	values := tmHeaderValues()
	values["DATUM"] = `"NAD83"`

	_, err := parseHeader(t, Landsat5TM, values, nil)
	require.Error(t, err)

	var projErr *geometry.ProjectionError
	require.True(t, errors.As(err, &projErr))
	assert.Equal(t, "NAD83", projErr.Datum)
}

func TestParseLandsatMissingKey(t *testing.T) {
	values := tmHeaderValues()
	delete(values, "SUN_ELEVATION")

	_, err := parseHeader(t, Landsat5TM, values, nil)
	require.Error(t, err)

	var missing *mtl.MissingKeyError
	require.True(t, errors.As(err, &missing))
	assert.Contains(t, missing.Candidates, "SUN_ELEVATION")
}

func etmHeaderValues() map[string]string {
	values := tmHeaderValues()
	values["SPACECRAFT_ID"] = `"LANDSAT_7"`
	values["SENSOR_ID"] = `"ETM+"`
	delete(values, "FILE_NAME_BAND_6")
	values["FILE_NAME_BAND_6_VCID_1"] = `"LE07_B6_VCID_1.TIF"`
	values["FILE_NAME_BAND_6_VCID_2"] = `"LE07_B6_VCID_2.TIF"`
	return values
}

func TestParseLandsat7VCIDThermalBands(t *testing.T) {
	m, err := parseHeader(t, Landsat7ETM, etmHeaderValues(), nil)
	require.NoError(t, err)

	require.Len(t, m.Thermal, 2)
	assert.Equal(t, "ThermalB6a", m.Thermal[0].Name)
	assert.Equal(t, "ThermalB6b", m.Thermal[1].Name)
	assert.Equal(t, "/scenes/lt05/LE07_B6_VCID_1.TIF", m.Thermal[0].FilePath)
	assert.Equal(t, 666.09, m.Thermal[0].K1)
	assert.Equal(t, 1282.71, m.Thermal[1].K2)
	assert.Equal(t, 0.0, m.Thermal[0].LMin, "VCID high gain default")
	assert.Equal(t, 3.2, m.Thermal[1].LMin, "VCID low gain default")

	// Reflective defaults come from the ETM table, not the TM one.
	assert.Equal(t, -6.4, m.Bands[1].LMin)
}

func mssHeaderValues() map[string]string {
	values := map[string]string{
		"SPACECRAFT_ID":     "LANDSAT_2",
		"SENSOR_ID":         "MSS",
		"WRS_PATH":          "224",
		"WRS_ROW":           "63",
		"DATE_ACQUIRED":     "1976-09-13",
		"SCENE_CENTER_TIME": "12:55:01.0Z",
		"SUN_ELEVATION":     "41.0",
		"SUN_AZIMUTH":       "58.5",

		"MAP_PROJECTION": "UTM",
		"DATUM":          "WGS84",
		"ELLIPSOID":      "WGS84",
		"UTM_ZONE":       "21",
	}
	for i, c := range []string{"UL", "UR", "LL", "LR"} {
		values["CORNER_"+c+"_LAT_PRODUCT"] = fmt.Sprintf("-%d.5", 20+i)
		values["CORNER_"+c+"_LON_PRODUCT"] = fmt.Sprintf("-%d.25", 55+i)
	}
	values["CORNER_UL_PROJECTION_X_PRODUCT"] = "310200.000"
	values["CORNER_UL_PROJECTION_Y_PRODUCT"] = "7787700.000"
	values["CORNER_UR_PROJECTION_X_PRODUCT"] = "558000.000"
	values["CORNER_UR_PROJECTION_Y_PRODUCT"] = "7787700.000"
	values["CORNER_LL_PROJECTION_X_PRODUCT"] = "310200.000"
	values["CORNER_LL_PROJECTION_Y_PRODUCT"] = "7563000.000"
	values["CORNER_LR_PROJECTION_X_PRODUCT"] = "558000.000"
	values["CORNER_LR_PROJECTION_Y_PRODUCT"] = "7563000.000"
	for _, n := range []string{"4", "5", "6", "7"} {
		values["FILE_NAME_BAND_"+n] = "LM02_B" + n + ".TIF"
		values["QUANTIZE_CAL_MIN_BAND_"+n] = "0.0"
		values["QUANTIZE_CAL_MAX_BAND_"+n] = "127.0"
		values["RADIANCE_MINIMUM_BAND_"+n] = "8.0"
		values["RADIANCE_MAXIMUM_BAND_"+n] = "263.0"
	}
	return values
}

func TestParseLandsat2MSS(t *testing.T) {
	m, err := parseHeader(t, Landsat2MSS, mssHeaderValues(), nil)
	require.NoError(t, err)

	assert.Equal(t, Landsat2MSS, m.Sensor)
	require.Len(t, m.Bands, 4)
	assert.Equal(t, []string{"Green", "Red", "NIR1", "NIR2"},
		[]string{m.Bands[0].Name, m.Bands[1].Name, m.Bands[2].Name, m.Bands[3].Name})
	assert.Empty(t, m.Thermal)
	assert.Equal(t, 127.0, m.Bands[0].QCalMax)
	assert.Equal(t, 32621, m.Projection.EPSG)
}

func TestParseLandsat2MSSRequiresCalibrationKeys(t *testing.T) {
	values := mssHeaderValues()
	delete(values, "QUANTIZE_CAL_MIN_BAND_4")

	_, err := parseHeader(t, Landsat2MSS, values, nil)
	require.Error(t, err)

	var missing *mtl.MissingKeyError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"QUANTIZE_CAL_MIN_BAND_4"}, missing.Candidates,
		"strict variants carry no legacy fallbacks")
}

func TestParseLandsat2MSSRejectsPolarStereographic(t *testing.T) {
	values := mssHeaderValues()
	values["MAP_PROJECTION"] = "PS"

	_, err := parseHeader(t, Landsat2MSS, values, nil)
	require.Error(t, err)

	var projErr *geometry.ProjectionError
	assert.True(t, errors.As(err, &projErr))
}

func TestSolarIrradianceTables(t *testing.T) {
	assert.Equal(t, []float64{1957.0, 1826.0, 1554.0, 1036.0, 215.0, 80.67}, Landsat5TM.SolarIrradiances())
	assert.Equal(t, []float64{1997.0, 1812.0, 1533.0, 1039.0, 230.8, 84.9}, Landsat7ETM.SolarIrradiances())
	assert.Equal(t, []float64{1829.0, 1539.0, 1268.0, 886.6}, Landsat2MSS.SolarIrradiances())
	assert.Equal(t, []float64{1997.8, 1863.5, 1560.4, 1395.0, 1124.4}, RapidEye.SolarIrradiances())
}

func TestBandRoles(t *testing.T) {
	tm := Landsat5TM.Roles()
	assert.Equal(t, 1, tm.Blue)
	assert.Equal(t, 6, tm.SWIR2)

	mss := Landsat2MSS.Roles()
	assert.Zero(t, mss.Blue, "MSS has no blue band")

	re := RapidEye.Roles()
	assert.Equal(t, 5, re.NIR)
	assert.Zero(t, re.SWIR2)
}

func TestFromName(t *testing.T) {
	id, err := FromName("LS5TM")
	require.NoError(t, err)
	assert.Equal(t, Landsat5TM, id)

	_, err = FromName("ls9")
	assert.Error(t, err)
}

func TestGMTDecimalHour(t *testing.T) {
	m := SceneMetadata{Acquired: time.Date(2011, 5, 21, 10, 30, 27, 0, time.UTC)}
	assert.InDelta(t, 10.5, m.GMTDecimalHour(), 1e-9)
}
