package sensor

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/clearsat/atmcorr/internal/geometry"
)

// The RapidEye vendor header is a namespaced XML document (gml/eop/opt plus
// the RapidEye product schema). Field tags below match on local names so the
// geocorrected and stitched schema variants both decode.
type rapidEyeDoc struct {
	MetaDataProperty struct {
		MetaData struct {
			TileID      string `xml:"tileId"`
			PixelFormat string `xml:"pixelFormat"`
		} `xml:"EarthObservationMetaData"`
	} `xml:"metaDataProperty"`

	Using struct {
		Equipment struct {
			Platform struct {
				Platform struct {
					ShortName        string `xml:"shortName"`
					SerialIdentifier string `xml:"serialIdentifier"`
				} `xml:"Platform"`
			} `xml:"platform"`
			Instrument struct {
				Instrument struct {
					ShortName string `xml:"shortName"`
				} `xml:"Instrument"`
			} `xml:"instrument"`
			AcquisitionParameters struct {
				Acquisition struct {
					IncidenceAngle        float64 `xml:"incidenceAngle"`
					AzimuthAngle          float64 `xml:"azimuthAngle"`
					SpaceCraftViewAngle   float64 `xml:"spaceCraftViewAngle"`
					IlluminationAzimuth   float64 `xml:"illuminationAzimuthAngle"`
					IlluminationElevation float64 `xml:"illuminationElevationAngle"`
					DateTime              string  `xml:"acquisitionDateTime"`
				} `xml:"Acquisition"`
			} `xml:"acquisitionParameters"`
		} `xml:"EarthObservationEquipment"`
	} `xml:"using"`

	Target struct {
		Footprint struct {
			CenterOf struct {
				Point struct {
					Pos string `xml:"pos"`
				} `xml:"Point"`
			} `xml:"centerOf"`
			GeographicLocation struct {
				TopLeft     rapidEyeCorner `xml:"topLeft"`
				TopRight    rapidEyeCorner `xml:"topRight"`
				BottomRight rapidEyeCorner `xml:"bottomRight"`
				BottomLeft  rapidEyeCorner `xml:"bottomLeft"`
			} `xml:"geographicLocation"`
		} `xml:"Footprint"`
	} `xml:"target"`

	ResultOf struct {
		Result struct {
			Product struct {
				Information struct {
					FileName string `xml:"fileName"`
					Spatial  struct {
						EPSGCode int `xml:"epsgCode"`
					} `xml:"spatialReferenceSystem"`
					NumBands              int    `xml:"numBands"`
					RadiometricCorrection string `xml:"radiometricCorrectionApplied"`
					RadiometricVersion    string `xml:"radiometricCalibrationVersion"`
					AtmosphericCorrection string `xml:"atmosphericCorrectionApplied"`
					ElevationCorrection   string `xml:"elevationCorrectionApplied"`
					GeoCorrectionLevel    string `xml:"geoCorrectionLevel"`
				} `xml:"ProductInformation"`
			} `xml:"product"`
		} `xml:"EarthObservationResult"`
	} `xml:"resultOf"`
}

type rapidEyeCorner struct {
	Latitude  float64 `xml:"latitude"`
	Longitude float64 `xml:"longitude"`
}

func (c rapidEyeCorner) point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// ParseRapidEyeFile reads and normalizes a RapidEye XML header from disk.
func ParseRapidEyeFile(headerPath string) (*SceneMetadata, error) {
	f, err := os.Open(headerPath)
	if err != nil {
		return nil, fmt.Errorf("opening header %s: %w", headerPath, err)
	}
	defer f.Close()
	meta, err := ParseRapidEye(f, filepath.Dir(headerPath))
	if err != nil {
		return nil, err
	}
	meta.HeaderPath = headerPath
	return meta, nil
}

// ParseRapidEye builds scene metadata from a RapidEye XML header. dir
// anchors the product file name.
func ParseRapidEye(r io.Reader, dir string) (*SceneMetadata, error) {
	var doc rapidEyeDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding RapidEye header: %w", err)
	}

	info := doc.ResultOf.Result.Product.Information
	if info.NumBands != 5 {
		return nil, fmt.Errorf("the number of image bands is not equal to 5 according to the XML header (got %d)", info.NumBands)
	}
	if info.AtmosphericCorrection == "true" {
		return nil, fmt.Errorf("an atmospheric correction has already been applied according to the metadata")
	}

	acq := doc.Using.Equipment.AcquisitionParameters.Acquisition
	acquired, err := time.Parse("2006-01-02T15:04:05.999999999", strings.TrimSuffix(acq.DateTime, "Z"))
	if err != nil {
		return nil, fmt.Errorf("parsing acquisition time %q: %w", acq.DateTime, err)
	}

	latCentre, lonCentre, err := parsePos(doc.Target.Footprint.CenterOf.Point.Pos)
	if err != nil {
		return nil, err
	}

	platform := doc.Using.Equipment.Platform.Platform
	m := &SceneMetadata{
		Sensor:     RapidEye,
		Spacecraft: strings.TrimSpace(platform.ShortName + " " + platform.SerialIdentifier),
		Instrument: doc.Using.Equipment.Instrument.Instrument.ShortName,

		Acquired: acquired.UTC(),
		TileID:   doc.MetaDataProperty.MetaData.TileID,

		SolarZenith:   90 - acq.IlluminationElevation,
		SolarAzimuth:  acq.IlluminationAzimuth,
		SensorZenith:  acq.SpaceCraftViewAngle,
		SensorAzimuth: acq.AzimuthAngle,

		LatCentre:  latCentre,
		LonCentre:  lonCentre,
		Projection: geometry.Projection{EPSG: info.Spatial.EPSGCode},
	}

	loc := doc.Target.Footprint.GeographicLocation
	m.Geographic = geometry.Extent{
		TL: loc.TopLeft.point(),
		TR: loc.TopRight.point(),
		BL: loc.BottomLeft.point(),
		BR: loc.BottomRight.point(),
	}

	imagePath := filepath.Join(dir, info.FileName)
	for i, b := range rapidEyeBands {
		m.Bands = append(m.Bands, BandCalibration{
			Name:      b.name,
			FilePath:  imagePath,
			BandIndex: i + 1,
		})
	}

	// Radiance only derives from calibrated digital numbers; products
	// without radiometric correction surface the failure at conversion.
	if info.RadiometricCorrection == "true" {
		m.RadianceScale = rapidEyeRadianceScale
	}

	return m, nil
}

func parsePos(pos string) (float64, float64, error) {
	fields := strings.Fields(pos)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("parsing footprint centre %q: expected \"lat lon\"", pos)
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing footprint centre %q: %w", pos, err)
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing footprint centre %q: %w", pos, err)
	}
	return lat, lon, nil
}
