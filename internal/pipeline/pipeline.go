// Package pipeline orchestrates a scene run: it parses the vendor header,
// walks the radiometric chain through the requested products and writes
// every output beside a scene metadata document. One run handles one
// scene; nothing is shared between runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"github.com/clearsat/atmcorr/internal/aod"
	"github.com/clearsat/atmcorr/internal/atmos"
	"github.com/clearsat/atmcorr/internal/calibrate"
	"github.com/clearsat/atmcorr/internal/cloud"
	"github.com/clearsat/atmcorr/internal/geometry"
	"github.com/clearsat/atmcorr/internal/logging"
	"github.com/clearsat/atmcorr/internal/properties"
	"github.com/clearsat/atmcorr/internal/quicklook"
	"github.com/clearsat/atmcorr/internal/raster"
	"github.com/clearsat/atmcorr/internal/sensor"
	"github.com/clearsat/atmcorr/internal/sixs"
)

// Cloud masking methods.
const (
	CloudMethodFMask = "FMASK" // external Fmask command
	CloudMethodQA    = "LSMSK" // decoded from the vendor quality band
)

// A scene under this portion of cloud gets its radiance and reflectance
// products masked; at or above it the unmasked outputs stand.
const cloudMaskLimit = 0.98

// A scene at or above this portion of cloud skips the surface products.
const cloudSkipLimit = 0.95

// Options configure one scene run. The zero value of every optional field
// selects the documented default.
type Options struct {
	Sensor     sensor.ID
	HeaderPath string
	OutDir     string
	ScratchDir string // per-scene intermediates, default under the scratch root
	Products   []Product

	DEMPath string // elevation model, any projection; resampled to the scene
	AOTPath string // precomputed aerosol surface used by SREF

	AOT        float64 // fixed aerosol depth for SREF
	Visibility float64 // km; converted to an aerosol depth when AOT is unset
	MinAOT     float64 // search floor, default 0.05
	MaxAOT     float64 // search ceiling, default 0.5
	LowAOT     float64 // range below a single estimate, default 0.1
	UpAOT      float64 // range above a single estimate, default 0.4

	Aerosol         sixs.AerosolProfile    // default Continental
	Atmosphere      sixs.AtmosphereProfile // default MidlatitudeSummer
	Ground          sixs.GroundReflectance // default GreenVegetation
	UseBRDF         bool
	SurfaceAltitude float64 // metres, used by SREF when no DEM is given

	CloudMethod   string // FMASK (default) or LSMSK
	CloudMaskPath string // user-supplied mask, overrides the method

	DOSLocal   bool    // block-local dark object offsets
	DOSSimple  bool    // one offset per band
	DOSOutRefl float64 // scaled reflectance assigned to dark objects, default 20

	Quicklook         bool
	KeepIntermediates bool
}

func (o Options) withDefaults() Options {
	if o.MinAOT == 0 {
		o.MinAOT = 0.05
	}
	if o.MaxAOT == 0 {
		o.MaxAOT = 0.5
	}
	if o.LowAOT == 0 {
		o.LowAOT = 0.1
	}
	if o.UpAOT == 0 {
		o.UpAOT = 0.4
	}
	if o.DOSOutRefl == 0 {
		o.DOSOutRefl = aod.DefaultDOSReflectance
	}
	if o.CloudMethod == "" {
		o.CloudMethod = CloudMethodFMask
	}
	if o.Aerosol == "" {
		o.Aerosol = sixs.AerosolContinental
	}
	if o.Atmosphere == "" {
		o.Atmosphere = sixs.AtmosphereMidlatSummer
	}
	if o.Ground == "" {
		o.Ground = sixs.GroundGreenVegetation
	}
	if o.Ground == sixs.GroundBRDFHapke {
		o.UseBRDF = true
	}
	if o.ScratchDir == "" {
		o.ScratchDir = properties.ScratchPath()
	}
	return o
}

func (o Options) check() error {
	if o.HeaderPath == "" {
		return errors.New("a scene header is required")
	}
	if o.OutDir == "" {
		return errors.New("an output directory is required")
	}
	return nil
}

// Pipeline holds the collaborators scene runs drive. One Pipeline can
// process scenes sequentially; collaborator invocations within a run own
// their inputs, so the runner may be shared.
type Pipeline struct {
	Runner sixs.Runner
	FMask  *cloud.FMask

	log zerolog.Logger
}

// New assembles a pipeline around the configured external commands, with
// radiative transfer results cached between runs.
func New() *Pipeline {
	return &Pipeline{
		Runner: sixs.NewCachingRunner(sixs.NewExecRunner()),
		FMask:  cloud.NewFMask(),
		log:    logging.Component("pipeline"),
	}
}

// Result summarises a completed run.
type Result struct {
	BaseName string
	Files    map[string]string
	Skipped  []Product
}

// Run processes one scene start to finish. Products removed by the heavy
// cloud gate are reported in the result, not as an error.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.check(); err != nil {
		return nil, err
	}
	set, err := Resolve(opts.Sensor, opts.Products)
	if err != nil {
		return nil, err
	}
	if set.NeedsDEM() && opts.DEMPath == "" {
		return nil, errors.New("the aerosol products need an elevation model")
	}
	if set.NeedsModel() && p.Runner == nil {
		return nil, errors.New("no radiative transfer runner configured")
	}
	if set.Has(CLOUDS) && opts.CloudMethod == CloudMethodFMask && opts.CloudMaskPath == "" && p.FMask == nil {
		return nil, errors.New("no cloud masking command configured")
	}

	meta, err := sensor.Parse(opts.Sensor, opts.HeaderPath, geometry.ProjectedToLatLon)
	if err != nil {
		return nil, err
	}
	base := BaseName(meta)

	r := &sceneRun{
		opts:    opts,
		set:     set,
		meta:    meta,
		runner:  p.Runner,
		fmask:   p.FMask,
		base:    base,
		outDir:  opts.OutDir,
		scratch: filepath.Join(opts.ScratchDir, base),
		minAOT:  opts.MinAOT,
		maxAOT:  opts.MaxAOT,
		files:   map[string]string{},
		log:     p.log.With().Str("scene", base).Logger(),
	}
	if err := r.run(ctx); err != nil {
		return nil, err
	}
	return &Result{BaseName: base, Files: r.files, Skipped: r.skipped}, nil
}

// sceneRun is the working state of one scene. Band slices follow the
// sensor's reflective stack order throughout.
type sceneRun struct {
	opts   Options
	set    ProductSet
	meta   *sensor.SceneMetadata
	runner sixs.Runner
	fmask  *cloud.FMask

	base    string
	outDir  string
	scratch string

	minAOT float64
	maxAOT float64

	dn       []*raster.Grid
	valid    *raster.Grid
	radiance []*raster.Grid
	toa      []*raster.Grid
	clouds   *raster.Grid
	dem      *raster.Grid
	aot      *raster.Grid
	aotValue float64

	files   map[string]string
	vals    runValues
	skipped []Product

	log zerolog.Logger
}

func (r *sceneRun) outPath(suffix string) string {
	return filepath.Join(r.outDir, r.base+suffix)
}

func (r *sceneRun) scratchPath(suffix string) string {
	return filepath.Join(r.scratch, r.base+suffix)
}

func (r *sceneRun) run(ctx context.Context) error {
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return fmt.Errorf("creating the output directory: %w", err)
	}
	if err := os.MkdirAll(r.scratch, 0o755); err != nil {
		return fmt.Errorf("creating the scratch directory: %w", err)
	}
	defer r.cleanup()

	r.log.Info().Strs("products", productNames(r.set.List())).Msg("processing scene")

	if err := r.loadBands(); err != nil {
		return err
	}
	if r.set.Has(FOOTPRINT) {
		path := r.outPath("_footprint.geojson")
		if err := writeFootprint(path, r.meta, r.base); err != nil {
			return err
		}
		r.files["FOOTPRINT"] = path
	}
	if r.set.Has(SATURATE) {
		if err := r.saturationMask(); err != nil {
			return err
		}
	}
	if r.set.Has(RAD) {
		if err := r.toRadiance(); err != nil {
			return err
		}
	}
	if r.set.Has(THERMAL) {
		if err := r.thermalBrightness(); err != nil {
			return err
		}
	}
	if r.set.Has(TOA) {
		if err := r.toTOA(); err != nil {
			return err
		}
	}
	if r.set.Has(CLOUDS) {
		if err := r.cloudMask(ctx); err != nil {
			return err
		}
	}
	if err := r.loadDEM(); err != nil {
		return err
	}
	if r.set.Has(DOS) {
		if err := r.darkObjectReflectance(); err != nil {
			return err
		}
	}
	if r.set.Has(DOSAOTSGL) {
		if err := r.singleAOT(ctx); err != nil {
			return err
		}
	}
	if r.set.Has(DDVAOT) {
		if err := r.aerosolDDV(ctx); err != nil {
			return err
		}
	}
	if r.set.Has(DOSAOT) {
		if err := r.aerosolDOS(ctx); err != nil {
			return err
		}
	}
	if r.set.Has(SREF) {
		if err := r.surfaceReflectance(ctx); err != nil {
			return err
		}
	}
	if r.set.Has(METADATA) {
		if err := r.metadata(); err != nil {
			return err
		}
	}
	r.log.Info().Int("files", len(r.files)).Msg("scene complete")
	return nil
}

// loadBands reads the reflective stack and derives the valid data mask:
// a pixel is valid when every band has data.
func (r *sceneRun) loadBands() error {
	r.dn = make([]*raster.Grid, len(r.meta.Bands))
	for i, cal := range r.meta.Bands {
		g, err := raster.ReadBand(cal.FilePath, cal.BandIndex)
		if err != nil {
			return fmt.Errorf("reading band %s: %w", cal.Name, err)
		}
		if i > 0 && !g.SameShape(r.dn[0]) {
			return fmt.Errorf("band %s does not match the scene shape", cal.Name)
		}
		r.dn[i] = g
	}

	r.valid = validMask(r.dn)
	path := r.outPath("_valid.tif")
	if err := raster.WriteGTiff(path, r.meta.Projection, godal.Byte, r.valid); err != nil {
		return err
	}
	r.files["VALID_MASK"] = path
	return nil
}

func (r *sceneRun) saturationMask() error {
	masks := make([]*raster.Grid, len(r.dn))
	for i, cal := range r.meta.Bands {
		masks[i] = calibrate.Saturation(r.dn[i], cal.QCalMax)
	}
	path := r.outPath("_sat.tif")
	if err := raster.WriteGTiff(path, r.meta.Projection, godal.Byte, masks...); err != nil {
		return err
	}
	r.files["SATURATION_MASK"] = path
	return nil
}

func (r *sceneRun) toRadiance() error {
	r.log.Info().Msg("converting digital numbers to radiance")
	r.radiance = make([]*raster.Grid, len(r.dn))
	for i, cal := range r.meta.Bands {
		var g *raster.Grid
		var err error
		if r.meta.RadianceScale != 0 {
			g, err = calibrate.ScaledRadiance(r.dn[i], r.meta.RadianceScale)
		} else {
			g, err = calibrate.Radiance(r.dn[i], cal)
		}
		if err != nil {
			return err
		}
		r.radiance[i] = g
	}
	path := r.outPath("_rad.tif")
	if err := raster.WriteGTiff(path, r.meta.Projection, godal.Float32, r.radiance...); err != nil {
		return err
	}
	r.files["RADIANCE"] = path
	r.files["RADIANCE_WHOLE"] = path
	return nil
}

func (r *sceneRun) thermalBrightness() error {
	if len(r.meta.Thermal) == 0 {
		return errors.New("the scene header carries no thermal band")
	}
	th := r.meta.Thermal[0]
	dn, err := raster.ReadBand(th.FilePath, th.BandIndex)
	if err != nil {
		return fmt.Errorf("reading the thermal band: %w", err)
	}
	rad, err := calibrate.Radiance(dn, th.BandCalibration)
	if err != nil {
		return err
	}
	radPath := r.outPath("_therm_rad.tif")
	if err := raster.WriteGTiff(radPath, r.meta.Projection, godal.Float32, rad); err != nil {
		return err
	}
	r.files["THERMAL_RADIANCE"] = radPath

	bright, err := calibrate.BrightnessTemperature(rad, th)
	if err != nil {
		return err
	}
	brightPath := r.outPath("_therm_bright.tif")
	if err := raster.WriteGTiff(brightPath, r.meta.Projection, godal.Int32, bright); err != nil {
		return err
	}
	r.files["THERMAL_BRIGHT"] = brightPath
	return nil
}

func (r *sceneRun) toTOA() error {
	r.log.Info().Msg("converting radiance to top of atmosphere reflectance")
	irradiances := r.meta.Sensor.SolarIrradiances()
	if len(irradiances) < len(r.radiance) {
		return fmt.Errorf("%d bands but solar irradiance for %d", len(r.radiance), len(irradiances))
	}
	day := r.meta.Acquired.YearDay()
	r.toa = make([]*raster.Grid, len(r.radiance))
	for i, rad := range r.radiance {
		g, err := calibrate.TOAReflectance(rad, irradiances[i], r.meta.SolarZenith, day)
		if err != nil {
			return err
		}
		r.toa[i] = g
	}
	path := r.outPath("_rad_toa.tif")
	if err := raster.WriteGTiff(path, r.meta.Projection, godal.UInt16, r.toa...); err != nil {
		return err
	}
	r.files["TOA"] = path
	r.files["TOA_WHOLE"] = path
	return nil
}

func (r *sceneRun) cloudMask(ctx context.Context) error {
	var mask *raster.Grid
	var err error
	switch {
	case r.opts.CloudMaskPath != "":
		mask, err = raster.ReadBand(r.opts.CloudMaskPath, 1)
	case r.opts.CloudMethod == CloudMethodQA:
		if r.meta.QAFile == "" {
			return errors.New("the scene does not carry a quality band")
		}
		var qa *raster.Grid
		qa, err = raster.ReadBand(r.meta.QAFile, 1)
		if err == nil {
			mask, err = cloud.DecodeQA(qa, r.meta.QAFormat)
		}
	case r.opts.CloudMethod == CloudMethodFMask:
		mask, err = r.runFMask(ctx)
	default:
		return fmt.Errorf("unknown cloud masking method %q", r.opts.CloudMethod)
	}
	if err != nil {
		return err
	}

	path := r.outPath("_clouds.tif")
	if err := raster.WriteGTiff(path, r.meta.Projection, godal.Byte, mask); err != nil {
		return err
	}
	r.files["CLOUD_MASK"] = path
	if r.opts.Quicklook {
		look := r.outPath("_clouds.png")
		if err := quicklook.RenderMask(mask, look); err != nil {
			return err
		}
		r.files["CLOUD_QUICKLOOK"] = look
	}

	prop, err := cloud.Coverage(mask, r.valid)
	if err != nil {
		return err
	}
	r.clouds = mask
	r.vals.CloudCover = f64(prop)
	r.log.Info().Float64("cloud_cover", prop).Msg("scored cloud coverage")

	if prop < cloudMaskLimit {
		r.radiance, err = cloud.ApplyMask(mask, r.radiance)
		if err != nil {
			return err
		}
		radPath := r.outPath("_mclds_rad.tif")
		if err := raster.WriteGTiff(radPath, r.meta.Projection, godal.Float32, r.radiance...); err != nil {
			return err
		}
		r.files["RADIANCE"] = radPath

		if r.toa != nil {
			r.toa, err = cloud.ApplyMask(mask, r.toa)
			if err != nil {
				return err
			}
			toaPath := r.outPath("_mclds_rad_toa.tif")
			if err := raster.WriteGTiff(toaPath, r.meta.Projection, godal.UInt16, r.toa...); err != nil {
				return err
			}
			r.files["TOA"] = toaPath
		}
	}

	if prop >= cloudSkipLimit {
		for _, p := range []Product{DOS, DOSAOTSGL, DDVAOT, DOSAOT, SREF} {
			if r.set.Has(p) {
				delete(r.set, p)
				r.skipped = append(r.skipped, p)
			}
		}
		if len(r.skipped) > 0 {
			r.log.Warn().Float64("cloud_cover", prop).
				Strs("skipped", productNames(r.skipped)).
				Msg("scene is nearly all cloud, skipping surface products")
		}
	}
	return nil
}

func (r *sceneRun) runFMask(ctx context.Context) (*raster.Grid, error) {
	if len(r.meta.Thermal) == 0 {
		return nil, errors.New("cloud masking needs the thermal band")
	}
	th := r.meta.Thermal[0]
	gain := (th.LMax - th.LMin) / (th.QCalMax - th.QCalMin)
	return r.fmask.Run(ctx, cloud.FMaskInputs{
		TOAPath:       r.files["TOA"],
		ThermalPath:   th.FilePath,
		SaturatePath:  r.files["SATURATION_MASK"],
		ValidPath:     r.files["VALID_MASK"],
		OutputPath:    r.scratchPath("_fmask.tif"),
		ScaleFactor:   calibrate.ReflectanceScale,
		SolarAzimuth:  r.meta.SolarAzimuth,
		SolarZenith:   r.meta.SolarZenith,
		CellSize:      r.valid.CellSize(),
		ThermalGain:   gain,
		ThermalOffset: th.LMin - gain*th.QCalMin,
		ThermalK1:     th.K1,
		ThermalK2:     th.K2,
	})
}

// loadDEM resamples the elevation model onto the scene grid. The warped
// copy is an output in its own right.
func (r *sceneRun) loadDEM() error {
	if r.opts.DEMPath == "" {
		return nil
	}
	path := r.outPath("_dem.tif")
	dem, err := raster.WarpToMatch(r.opts.DEMPath, path, r.meta.Projection, r.valid)
	if err != nil {
		return err
	}
	r.dem = dem
	r.files["IMAGE_DEM"] = path
	return nil
}

func (r *sceneRun) darkObjectReflectance() error {
	r.log.Info().Msg("subtracting dark object offsets")
	sref, offsets, err := aod.SimpleDOS(r.toa, r.opts.DOSOutRefl)
	if err != nil {
		return err
	}
	path := r.outPath("_rad_toa_dos.tif")
	if err := raster.WriteGTiff(path, r.meta.Projection, godal.UInt16, sref...); err != nil {
		return err
	}
	r.files["SREF_DOS"] = path
	r.vals.DOSOffsets = offsets
	return nil
}

func (r *sceneRun) aerosolInputs() aod.Inputs {
	return aod.Inputs{
		TOA:      r.toa,
		Radiance: r.radiance,
		DEM:      r.dem,
		Roles:    r.meta.Sensor.Roles(),
	}
}

// newModel binds the run's atmospheric profiles to a transfer model over
// the given bands.
func (r *sceneRun) newModel(bands []sixs.Wavelength) *atmos.Model {
	m := atmos.NewModel(r.runner, r.meta.SixSGeometry(), bands)
	m.Aerosol = r.opts.Aerosol
	m.Atmosphere = r.opts.Atmosphere
	m.Ground = r.opts.Ground
	m.UseBRDF = r.opts.UseBRDF
	return m
}

// blueSearch builds the aerosol grid search over the current range. The
// search evaluates the model on the blue band only.
func (r *sceneRun) blueSearch() (*aod.Search, error) {
	roles := r.meta.Sensor.Roles()
	wavelengths := r.meta.Sensor.Wavelengths()
	if roles.Blue < 1 || roles.Blue > len(wavelengths) {
		return nil, errors.New("the sensor has no blue wavelength for the aerosol search")
	}
	blue := r.newModel(wavelengths[roles.Blue-1 : roles.Blue])
	return aod.NewSearch(blue, r.minAOT, r.maxAOT), nil
}

// singleAOT estimates one aerosol depth for the scene and narrows the
// search range around it for any aerosol surface estimated afterwards.
func (r *sceneRun) singleAOT(ctx context.Context) error {
	search, err := r.blueSearch()
	if err != nil {
		return err
	}
	value, err := aod.EstimateSingleAOT(ctx, r.aerosolInputs(), search, r.opts.DOSOutRefl)
	if err != nil {
		return err
	}
	r.aotValue = value
	r.vals.AOTValue = f64(value)

	r.minAOT = value - r.opts.LowAOT
	if r.minAOT < 0.01 {
		r.minAOT = 0.05
	}
	r.maxAOT = value + r.opts.UpAOT
	r.log.Info().Float64("aot", value).
		Float64("min", r.minAOT).Float64("max", r.maxAOT).
		Msg("estimated a single aerosol depth, narrowed the search range")
	return nil
}

func (r *sceneRun) aerosolDDV(ctx context.Context) error {
	r.log.Info().Msg("estimating the aerosol surface from dark vegetation")
	search, err := r.blueSearch()
	if err != nil {
		return err
	}
	res, err := aod.EstimateDDV(ctx, r.aerosolInputs(), search)
	if err != nil {
		return err
	}
	return r.recordAerosol(res, "_ddvaod")
}

func (r *sceneRun) aerosolDOS(ctx context.Context) error {
	r.log.Info().Msg("estimating the aerosol surface from dark objects")
	search, err := r.blueSearch()
	if err != nil {
		return err
	}
	method := aod.DOSGlobal
	if r.opts.DOSLocal {
		method = aod.DOSLocal
	}
	if r.opts.DOSSimple {
		method = aod.DOSSimple
	}
	res, err := aod.EstimateDOS(ctx, r.aerosolInputs(), search, method, r.opts.DOSOutRefl)
	if err != nil {
		return err
	}
	return r.recordAerosol(res, "_dosaod")
}

func (r *sceneRun) recordAerosol(res *aod.Result, suffix string) error {
	path := r.outPath(suffix + ".tif")
	if err := raster.WriteGTiff(path, r.meta.Projection, godal.Float32, res.AOD); err != nil {
		return err
	}
	r.files["AOT_IMAGE"] = path

	segPath := r.outPath(suffix + "_segments.csv")
	if err := writeSegments(segPath, res.Segments); err != nil {
		return err
	}
	r.files["AOT_SEGMENTS"] = segPath

	if r.opts.Quicklook {
		lo, hi := quicklook.ValueRange(res.AOD)
		look := r.outPath(suffix + ".png")
		if err := quicklook.Render(res.AOD, lo, hi, look); err != nil {
			return err
		}
		r.files["AOT_QUICKLOOK"] = look
	}

	r.aot = res.AOD
	r.vals.AOTRangeMin = f64(r.minAOT)
	r.vals.AOTRangeMax = f64(r.maxAOT)
	return nil
}

// surfaceReflectance inverts radiance to surface reflectance. The model is
// driven one of three ways: a single coefficient set when no elevation
// model is given, an elevation lookup table when one is, and an elevation
// by aerosol depth table when an aerosol surface is available too.
func (r *sceneRun) surfaceReflectance(ctx context.Context) error {
	var err error
	if r.aot == nil && r.opts.AOTPath != "" {
		r.aot, err = raster.ReadBand(r.opts.AOTPath, 1)
		if err != nil {
			return fmt.Errorf("reading the aerosol surface: %w", err)
		}
	}

	aotValue, err := r.resolveAOT()
	if err != nil {
		return err
	}
	r.vals.AOTValue = f64(aotValue)
	r.log.Info().Float64("aot", aotValue).Msg("correcting to surface reflectance")

	model := r.newModel(r.meta.Sensor.Wavelengths())
	var sref []*raster.Grid
	var suffix string
	switch {
	case r.dem == nil:
		coeffs, err := model.Coefficients(ctx, r.opts.SurfaceAltitude/1000, aotValue)
		if err != nil {
			return err
		}
		if sref, err = atmos.ApplySingle(r.radiance, coeffs); err != nil {
			return err
		}
		suffix = "_rad_sref"
		r.vals.Elevation = f64(r.opts.SurfaceAltitude)

	case r.aot == nil:
		lo, hi, ok := maskedRange(r.dem, r.valid)
		if !ok {
			return errors.New("the elevation model has no values inside the scene")
		}
		lo, hi = snapElevation(lo, hi)
		r.vals.LUTElevationMin = f64(lo)
		r.vals.LUTElevationMax = f64(hi)
		lut, err := model.BuildElevationLUT(ctx, lo, hi, aotValue)
		if err != nil {
			return err
		}
		if sref, err = atmos.ApplyElevationLUT(r.radiance, r.dem, lut); err != nil {
			return err
		}
		suffix = "_rad_srefdem"

	default:
		lo, hi, ok := maskedRange(r.dem, r.valid)
		if !ok {
			return errors.New("the elevation model has no values inside the scene")
		}
		lo, hi = snapElevation(lo, hi)
		r.vals.LUTElevationMin = f64(lo)
		r.vals.LUTElevationMax = f64(hi)

		aotLo, aotHi, ok := positiveRange(r.aot)
		if !ok {
			return errors.New("the aerosol surface has no positive values")
		}
		aotLo, aotHi = snapAOT(aotLo, aotHi)
		r.vals.LUTAOTMin = f64(aotLo)
		r.vals.LUTAOTMax = f64(aotHi)

		lut, err := model.BuildElevationAOTLUT(ctx, lo, hi, aotLo, aotHi)
		if err != nil {
			return err
		}
		if sref, err = atmos.ApplyElevationAOTLUT(r.radiance, r.dem, r.aot, lut); err != nil {
			return err
		}
		suffix = "_rad_srefdemaot"
	}

	path := r.outPath(suffix + ".tif")
	if err := raster.WriteGTiff(path, r.meta.Projection, godal.UInt16, sref...); err != nil {
		return err
	}
	r.files["SREF"] = path
	return nil
}

// resolveAOT picks the scalar aerosol depth for the correction: the mean
// of an estimated surface when one exists, then a single estimated value,
// then the configured depth, then a converted visibility.
func (r *sceneRun) resolveAOT() (float64, error) {
	if r.aot != nil {
		mean, ok := meanPositive(r.aot)
		if !ok {
			return 0, errors.New("the aerosol surface has no positive values")
		}
		if mean < 0.01 {
			r.log.Warn().Float64("aot", mean).Msg("aerosol surface mean is implausibly low, using 0.05")
			mean = 0.05
		}
		return mean, nil
	}
	if r.aotValue > 0 {
		return r.aotValue, nil
	}
	if r.opts.AOT > 0 {
		return r.opts.AOT, nil
	}
	if r.opts.Visibility > 0 {
		return VisibilityToAOD(r.opts.Visibility), nil
	}
	return 0, errors.New("surface reflectance needs an aerosol depth: give a value or a visibility estimate, or request an aerosol product")
}

func (r *sceneRun) metadata() error {
	path := r.outPath("_meta.json")
	r.files["METADATA"] = path
	doc := buildMetadata(r.meta, r.opts.Products, r.set, r.skipped, r.base, r.files, r.vals)
	return writeMetadata(path, doc)
}

func (r *sceneRun) cleanup() {
	if r.opts.KeepIntermediates {
		r.log.Info().Str("dir", r.scratch).Msg("keeping intermediates")
		return
	}
	if err := os.RemoveAll(r.scratch); err != nil {
		r.log.Warn().Err(err).Msg("could not remove the scratch directory")
	}
}

// VisibilityToAOD converts a horizontal visibility estimate in kilometres
// to an aerosol optical depth at 550nm.
func VisibilityToAOD(vis float64) float64 {
	return 3.9449/vis + 0.08498
}

// validMask flags pixels where every band has data.
func validMask(bands []*raster.Grid) *raster.Grid {
	mask := bands[0].Like()
	for i := range mask.Pixels {
		v := 1.0
		for _, b := range bands {
			if b.Pixels[i] == 0 {
				v = 0
				break
			}
		}
		mask.Pixels[i] = v
	}
	return mask
}

// maskedRange finds the value range of g over pixels the mask flags valid.
func maskedRange(g, valid *raster.Grid) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for i, v := range g.Pixels {
		if valid.Pixels[i] == 0 {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

// positiveRange finds the value range of g over its positive pixels.
func positiveRange(g *raster.Grid) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range g.Pixels {
		if v <= 0 {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

// meanPositive averages the positive pixels of g.
func meanPositive(g *raster.Grid) (float64, bool) {
	sum := 0.0
	n := 0
	for _, v := range g.Pixels {
		if v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// snapElevation widens an elevation range to whole lookup table steps.
func snapElevation(lo, hi float64) (float64, float64) {
	return math.Floor(lo/100) * 100, math.Ceil(hi/100) * 100
}

// snapAOT widens an aerosol depth range to whole search steps, with the
// floor clamped away from zero.
func snapAOT(lo, hi float64) (float64, float64) {
	lo = math.Floor(lo/aod.SearchStep) * aod.SearchStep
	if lo < 0.01 {
		lo = 0.05
	}
	return lo, math.Ceil(hi/aod.SearchStep) * aod.SearchStep
}

func writeSegments(path string, segments []aod.Segment) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating the segment table: %w", err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&segments, f); err != nil {
		return fmt.Errorf("writing the segment table: %w", err)
	}
	return nil
}

func productNames(products []Product) []string {
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = string(p)
	}
	return names
}
