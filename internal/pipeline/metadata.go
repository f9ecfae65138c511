package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/clearsat/atmcorr/internal/geometry"
	"github.com/clearsat/atmcorr/internal/sensor"
	"github.com/clearsat/atmcorr/internal/sixs"
)

// Version is reported in scene metadata and the command line banner.
const Version = "0.9.0"

// Metadata is the per-scene record written by the METADATA product. It
// pins the software that produced the outputs, the acquisition and its
// geometry, the band calibration sources and every generated file.
type Metadata struct {
	Software    SoftwareInfo    `json:"software"`
	Sensor      string          `json:"sensor"`
	Acquisition AcquisitionInfo `json:"acquisition"`
	Location    LocationInfo    `json:"location"`
	Bands       []BandInfo      `json:"bands"`
	Products    ProductsInfo    `json:"products"`
	Files       FilesInfo       `json:"files"`
}

type SoftwareInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type AcquisitionInfo struct {
	Time          time.Time `json:"time"`
	SolarZenith   float64   `json:"solar_zenith"`
	SolarAzimuth  float64   `json:"solar_azimuth"`
	SensorZenith  float64   `json:"sensor_zenith"`
	SensorAzimuth float64   `json:"sensor_azimuth"`
}

type LocationInfo struct {
	CentreLat  float64           `json:"centre_lat"`
	CentreLon  float64           `json:"centre_lon"`
	Geographic geometry.Extent   `json:"geographic"`
	Projected  geometry.Extent   `json:"projected"`
	Footprint  *geojson.Geometry `json:"footprint,omitempty"`
}

type BandInfo struct {
	Name            string          `json:"name"`
	File            string          `json:"file"`
	Wavelength      sixs.Wavelength `json:"wavelength"`
	SolarIrradiance float64         `json:"solar_irradiance,omitempty"`
}

// ProductsInfo records what was requested alongside the scalar values the
// run derived. Optional values stay absent rather than zero so a reader
// can tell "not computed" from "computed as zero".
type ProductsInfo struct {
	Requested       []Product `json:"requested"`
	Generated       []Product `json:"generated"`
	Skipped         []Product `json:"skipped,omitempty"`
	ProcessedAt     time.Time `json:"processed_at"`
	CloudCover      *float64  `json:"cloud_cover,omitempty"`
	AOTRangeMin     *float64  `json:"aot_range_min,omitempty"`
	AOTRangeMax     *float64  `json:"aot_range_max,omitempty"`
	AOTValue        *float64  `json:"aot_value,omitempty"`
	Elevation       *float64  `json:"elevation_m,omitempty"`
	LUTElevationMin *float64  `json:"lut_elevation_min,omitempty"`
	LUTElevationMax *float64  `json:"lut_elevation_max,omitempty"`
	LUTAOTMin       *float64  `json:"lut_aot_min,omitempty"`
	LUTAOTMax       *float64  `json:"lut_aot_max,omitempty"`
	DOSOffsets      []float64 `json:"dos_offsets,omitempty"`
}

// FilesInfo maps output roles to file names within the output directory.
type FilesInfo struct {
	BaseName       string            `json:"base_name"`
	ProviderHeader string            `json:"provider_header"`
	Outputs        map[string]string `json:"outputs"`
}

// runValues accumulates the scalar results of a run for ProductsInfo.
type runValues struct {
	CloudCover      *float64
	AOTRangeMin     *float64
	AOTRangeMax     *float64
	AOTValue        *float64
	Elevation       *float64
	LUTElevationMin *float64
	LUTElevationMax *float64
	LUTAOTMin       *float64
	LUTAOTMax       *float64
	DOSOffsets      []float64
}

func f64(v float64) *float64 { return &v }

// buildMetadata assembles the metadata document from the scene header and
// the run's bookkeeping. File paths are reduced to base names; outputs
// all live beside the document.
func buildMetadata(meta *sensor.SceneMetadata, requested []Product, generated ProductSet,
	skipped []Product, base string, files map[string]string, vals runValues) Metadata {

	bands := make([]BandInfo, len(meta.Bands))
	wavelengths := meta.Sensor.Wavelengths()
	irradiances := meta.Sensor.SolarIrradiances()
	for i, cal := range meta.Bands {
		info := BandInfo{Name: cal.Name, File: filepath.Base(cal.FilePath)}
		if i < len(wavelengths) {
			info.Wavelength = wavelengths[i]
		}
		if i < len(irradiances) {
			info.SolarIrradiance = irradiances[i]
		}
		bands[i] = info
	}

	outputs := make(map[string]string, len(files))
	for role, path := range files {
		outputs[role] = filepath.Base(path)
	}

	footprint := geojson.NewGeometry(meta.Geographic.Polygon())

	return Metadata{
		Software: SoftwareInfo{Name: "atmcorr", Version: Version},
		Sensor:   string(meta.Sensor),
		Acquisition: AcquisitionInfo{
			Time:          meta.Acquired,
			SolarZenith:   meta.SolarZenith,
			SolarAzimuth:  meta.SolarAzimuth,
			SensorZenith:  meta.SensorZenith,
			SensorAzimuth: meta.SensorAzimuth,
		},
		Location: LocationInfo{
			CentreLat:  meta.LatCentre,
			CentreLon:  meta.LonCentre,
			Geographic: meta.Geographic,
			Projected:  meta.Projected,
			Footprint:  footprint,
		},
		Bands: bands,
		Products: ProductsInfo{
			Requested:       requested,
			Generated:       generated.List(),
			Skipped:         skipped,
			ProcessedAt:     time.Now().UTC(),
			CloudCover:      vals.CloudCover,
			AOTRangeMin:     vals.AOTRangeMin,
			AOTRangeMax:     vals.AOTRangeMax,
			AOTValue:        vals.AOTValue,
			Elevation:       vals.Elevation,
			LUTElevationMin: vals.LUTElevationMin,
			LUTElevationMax: vals.LUTElevationMax,
			LUTAOTMin:       vals.LUTAOTMin,
			LUTAOTMax:       vals.LUTAOTMax,
			DOSOffsets:      vals.DOSOffsets,
		},
		Files: FilesInfo{
			BaseName:       base,
			ProviderHeader: filepath.Base(meta.HeaderPath),
			Outputs:        outputs,
		},
	}
}

func writeMetadata(path string, doc Metadata) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding scene metadata: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing scene metadata: %w", err)
	}
	return nil
}

// writeFootprint writes the scene's geographic footprint as a GeoJSON
// feature collection.
func writeFootprint(path string, meta *sensor.SceneMetadata, base string) error {
	feature := geojson.NewFeature(meta.Geographic.Polygon())
	feature.Properties["scene"] = base
	feature.Properties["sensor"] = string(meta.Sensor)
	feature.Properties["acquired"] = meta.Acquired.Format(time.RFC3339)

	fc := geojson.NewFeatureCollection()
	fc.Append(feature)
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encoding the scene footprint: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing the scene footprint: %w", err)
	}
	return nil
}
