package sensor

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/clearsat/atmcorr/internal/geometry"
	"github.com/clearsat/atmcorr/internal/mtl"
)

// ParseLandsatFile reads and normalizes an MTL header from disk.
func ParseLandsatFile(id ID, headerPath string, toLatLon geometry.ToLatLonFunc) (*SceneMetadata, error) {
	hdr, err := mtl.ParseFile(headerPath)
	if err != nil {
		return nil, err
	}
	meta, err := ParseLandsat(id, hdr, filepath.Dir(headerPath), toLatLon)
	if err != nil {
		return nil, err
	}
	meta.HeaderPath = headerPath
	return meta, nil
}

// ParseLandsat builds scene metadata from a parsed MTL header. dir anchors
// the band file names; toLatLon reprojects the scene centre to WGS84 (nil
// selects the GDAL-backed implementation).
func ParseLandsat(id ID, hdr *mtl.Header, dir string, toLatLon geometry.ToLatLonFunc) (*SceneMetadata, error) {
	v, ok := variantFor(id)
	if !ok {
		return nil, fmt.Errorf("sensor %q does not read MTL headers", id)
	}
	if toLatLon == nil {
		toLatLon = geometry.ProjectedToLatLon
	}

	spacecraft, err := hdr.Lookup("SPACECRAFT_ID")
	if err != nil {
		return nil, err
	}
	instrument, err := hdr.Lookup("SENSOR_ID")
	if err != nil {
		return nil, err
	}
	if !v.accepts(v.spacecrafts, spacecraft) || !v.accepts(v.instruments, instrument) {
		return nil, &UnrecognizedError{Spacecraft: spacecraft, Instrument: instrument}
	}

	m := &SceneMetadata{
		Sensor:     id,
		Spacecraft: spacecraft,
		Instrument: instrument,
	}

	if m.Row, err = hdr.LookupInt(v.keys("WRS_ROW", "STARTING_ROW")...); err != nil {
		return nil, err
	}
	if m.Path, err = hdr.LookupInt("WRS_PATH"); err != nil {
		return nil, err
	}

	date, err := hdr.Lookup(v.keys("DATE_ACQUIRED", "ACQUISITION_DATE")...)
	if err != nil {
		return nil, err
	}
	clock, err := hdr.Lookup(v.keys("SCENE_CENTER_TIME", "SCENE_CENTER_SCAN_TIME")...)
	if err != nil {
		return nil, err
	}
	if m.Acquired, err = parseAcquisition(date, clock); err != nil {
		return nil, err
	}

	sunElevation, err := hdr.LookupFloat("SUN_ELEVATION")
	if err != nil {
		return nil, err
	}
	m.SolarZenith = 90 - sunElevation
	if m.SolarAzimuth, err = hdr.LookupFloat("SUN_AZIMUTH"); err != nil {
		return nil, err
	}

	if m.Geographic, err = cornerExtent(hdr, v, false); err != nil {
		return nil, err
	}
	if m.Projected, err = cornerExtent(hdr, v, true); err != nil {
		return nil, err
	}
	if err = m.Projected.Validate(); err != nil {
		return nil, err
	}

	if m.Projection, err = resolveLandsatProjection(hdr, v); err != nil {
		return nil, err
	}

	m.Centre = m.Projected.Centre()
	if m.LatCentre, m.LonCentre, err = toLatLon(m.Projection, m.Centre[0], m.Centre[1]); err != nil {
		return nil, err
	}

	for _, b := range v.bands {
		cal, err := bandCalibration(hdr, v, b, dir)
		if err != nil {
			return nil, err
		}
		m.Bands = append(m.Bands, cal)
	}
	for _, t := range v.thermal {
		cal, err := bandCalibration(hdr, v, t.bandDef, dir)
		if err != nil {
			return nil, err
		}
		m.Thermal = append(m.Thermal, ThermalBand{BandCalibration: cal, K1: t.k1, K2: t.k2})
	}

	if cc, ok := hdr.Get("CLOUD_COVER"); ok {
		if m.CloudCover, err = strconv.ParseFloat(cc, 64); err != nil {
			m.CloudCover = 0
		}
	}

	if name, ok := hdr.Get("FILE_NAME_BAND_QUALITY"); ok {
		m.QAFile = filepath.Join(dir, name)
		m.QAFormat = QACollection1
	} else if name, ok := hdr.Get("FILE_NAME_QUALITY_L1_PIXEL"); ok {
		m.QAFile = filepath.Join(dir, name)
		m.QAFormat = QACollection2
	}

	return m, nil
}

// keys drops the legacy alternatives for strict variants.
func (v variant) keys(modern string, legacy ...string) []string {
	if v.strict {
		return []string{modern}
	}
	return append([]string{modern}, legacy...)
}

func (v variant) accepts(accepted []string, value string) bool {
	for _, a := range accepted {
		if v.strict {
			if value == a {
				return true
			}
		} else if strings.ToUpper(value) == a {
			return true
		}
	}
	return false
}

// parseAcquisition combines the header's date and scene centre time.
// Fractional seconds and the trailing Z are discarded, matching the
// precision the downstream geometry needs.
func parseAcquisition(date, clock string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing acquisition date %q: %w", date, err)
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("parsing scene centre time %q: expected HH:MM:SS", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing scene centre time %q: %w", clock, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing scene centre time %q: %w", clock, err)
	}
	secField := strings.TrimSuffix(strings.SplitN(parts[2], ".", 2)[0], "Z")
	second, err := strconv.Atoi(secField)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing scene centre time %q: %w", clock, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, second, 0, time.UTC), nil
}

func cornerExtent(hdr *mtl.Header, v variant, projected bool) (geometry.Extent, error) {
	var extent geometry.Extent
	for _, c := range []struct {
		name string
		pt   *orb.Point
	}{
		{"UL", &extent.TL},
		{"UR", &extent.TR},
		{"LL", &extent.BL},
		{"LR", &extent.BR},
	} {
		if projected {
			x, err := hdr.LookupFloat(v.keys(
				fmt.Sprintf("CORNER_%s_PROJECTION_X_PRODUCT", c.name),
				fmt.Sprintf("PRODUCT_%s_CORNER_MAPX", c.name))...)
			if err != nil {
				return extent, err
			}
			y, err := hdr.LookupFloat(v.keys(
				fmt.Sprintf("CORNER_%s_PROJECTION_Y_PRODUCT", c.name),
				fmt.Sprintf("PRODUCT_%s_CORNER_MAPY", c.name))...)
			if err != nil {
				return extent, err
			}
			*c.pt = orb.Point{x, y}
		} else {
			lat, err := hdr.LookupFloat(v.keys(
				fmt.Sprintf("CORNER_%s_LAT_PRODUCT", c.name),
				fmt.Sprintf("PRODUCT_%s_CORNER_LAT", c.name))...)
			if err != nil {
				return extent, err
			}
			lon, err := hdr.LookupFloat(v.keys(
				fmt.Sprintf("CORNER_%s_LON_PRODUCT", c.name),
				fmt.Sprintf("PRODUCT_%s_CORNER_LON", c.name))...)
			if err != nil {
				return extent, err
			}
			*c.pt = orb.Point{lon, lat}
		}
	}
	return extent, nil
}

func resolveLandsatProjection(hdr *mtl.Header, v variant) (geometry.Projection, error) {
	mapProj, err := hdr.Lookup("MAP_PROJECTION")
	if err != nil {
		return geometry.Projection{}, err
	}
	datum, err := hdr.Lookup("DATUM")
	if err != nil {
		return geometry.Projection{}, err
	}
	ellipsoid, err := hdr.Lookup("ELLIPSOID")
	if err != nil {
		return geometry.Projection{}, err
	}

	if v.utmOnly && mapProj != "UTM" {
		return geometry.Projection{}, &geometry.ProjectionError{MapProjection: mapProj, Datum: datum, Ellipsoid: ellipsoid}
	}

	utmZone := 0
	if mapProj == "UTM" {
		if utmZone, err = hdr.LookupInt(v.keys("UTM_ZONE", "ZONE_NUMBER")...); err != nil {
			return geometry.Projection{}, err
		}
	}
	return geometry.ResolveProjection(mapProj, datum, ellipsoid, utmZone)
}

func bandCalibration(hdr *mtl.Header, v variant, b bandDef, dir string) (BandCalibration, error) {
	fileName, err := hdr.Lookup(v.keys(
		"FILE_NAME_BAND_"+b.calNum,
		"BAND"+b.legacyNum+"_FILE_NAME")...)
	if err != nil {
		return BandCalibration{}, err
	}

	cal := BandCalibration{
		Name:      b.name,
		FilePath:  filepath.Join(dir, fileName),
		BandIndex: 1,
	}

	if v.strict {
		if cal.QCalMin, err = hdr.LookupFloat("QUANTIZE_CAL_MIN_BAND_" + b.calNum); err != nil {
			return BandCalibration{}, err
		}
		if cal.QCalMax, err = hdr.LookupFloat("QUANTIZE_CAL_MAX_BAND_" + b.calNum); err != nil {
			return BandCalibration{}, err
		}
		if cal.LMin, err = hdr.LookupFloat("RADIANCE_MINIMUM_BAND_" + b.calNum); err != nil {
			return BandCalibration{}, err
		}
		if cal.LMax, err = hdr.LookupFloat("RADIANCE_MAXIMUM_BAND_" + b.calNum); err != nil {
			return BandCalibration{}, err
		}
		return cal, nil
	}

	if cal.QCalMin, err = hdr.FloatOr(1.0, "QUANTIZE_CAL_MIN_BAND_"+b.calNum, "QCALMIN_BAND"+b.legacyNum); err != nil {
		return BandCalibration{}, err
	}
	if cal.QCalMax, err = hdr.FloatOr(255.0, "QUANTIZE_CAL_MAX_BAND_"+b.calNum, "QCALMAX_BAND"+b.legacyNum); err != nil {
		return BandCalibration{}, err
	}
	if cal.LMin, err = hdr.FloatOr(b.defLMin, "RADIANCE_MINIMUM_BAND_"+b.calNum, "LMIN_BAND"+b.legacyNum); err != nil {
		return BandCalibration{}, err
	}
	if cal.LMax, err = hdr.FloatOr(b.defLMax, "RADIANCE_MAXIMUM_BAND_"+b.calNum, "LMAX_BAND"+b.legacyNum); err != nil {
		return BandCalibration{}, err
	}
	return cal, nil
}
