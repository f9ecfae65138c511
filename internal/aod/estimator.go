package aod

import (
	"context"
	"errors"
	"fmt"

	"github.com/clearsat/atmcorr/internal/logging"
	"github.com/clearsat/atmcorr/internal/raster"
	"github.com/clearsat/atmcorr/internal/segment"
	"github.com/clearsat/atmcorr/internal/sensor"
)

// Inputs collects the per-scene rasters the aerosol estimators read. TOA
// and Radiance are ordered as the sensor's reflective stack and Roles
// maps spectral roles to 1-based positions within them.
type Inputs struct {
	TOA      []*raster.Grid
	Radiance []*raster.Grid
	DEM      *raster.Grid
	Roles    sensor.BandRoles
}

// Result carries the dense aerosol surface together with the evidence it
// was interpolated from.
type Result struct {
	AOD      *raster.Grid
	Segments []Segment
	AOT      []float64
}

// UnsupportedError reports a sensor whose band layout cannot drive an
// estimator.
type UnsupportedError struct {
	Estimator string
	Reason    string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s aerosol estimation is not supported for this sensor: %s", e.Estimator, e.Reason)
}

// DOSMethod selects how the blue input of the dark object estimator is
// subtracted.
type DOSMethod int

const (
	// DOSLocal derives offsets from block local dark targets.
	DOSLocal DOSMethod = iota
	// DOSGlobal derives offsets from one scene wide histogram threshold.
	DOSGlobal
	// DOSSimple subtracts a single scene wide percentile offset.
	DOSSimple
)

func (in Inputs) validate() error {
	if len(in.TOA) == 0 || len(in.Radiance) == 0 {
		return errors.New("reflectance and radiance stacks are required")
	}
	if in.DEM == nil {
		return errors.New("an elevation model is required")
	}
	return in.TOA[0].HasValidData()
}

func bandAt(stack []*raster.Grid, role int, what string) (*raster.Grid, error) {
	if role < 1 || role > len(stack) {
		return nil, fmt.Errorf("%s band %d is outside the %d band stack", what, role, len(stack))
	}
	return stack[role-1], nil
}

// EstimateDDV derives a dense aerosol optical thickness surface from
// dense dark vegetation targets.
func EstimateDDV(ctx context.Context, in Inputs, search *Search) (*Result, error) {
	if in.Roles.SWIR2 == 0 {
		return nil, &UnsupportedError{Estimator: "dark vegetation", Reason: "the sensor has no second shortwave infrared band"}
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	redTOA, err := bandAt(in.TOA, in.Roles.Red, "red")
	if err != nil {
		return nil, err
	}
	nirTOA, err := bandAt(in.TOA, in.Roles.NIR, "near infrared")
	if err != nil {
		return nil, err
	}
	swirTOA, err := bandAt(in.TOA, in.Roles.SWIR2, "shortwave infrared")
	if err != nil {
		return nil, err
	}
	blueRad, err := bandAt(in.Radiance, in.Roles.Blue, "blue")
	if err != nil {
		return nil, err
	}

	segments, err := SelectDDVTargets(redTOA, nirTOA, swirTOA, blueRad, in.DEM)
	if err != nil {
		return nil, err
	}
	logging.Component("aod").Info().Int("segments", len(segments)).Msg("selected dark vegetation targets")
	return in.searchAndInterpolate(ctx, search, segments)
}

// EstimateDOS derives a dense aerosol surface from clustered vegetation
// segments, using a dark object subtracted blue band as the reflectance
// target.
func EstimateDOS(ctx context.Context, in Inputs, search *Search, method DOSMethod, dosOutRefl float64) (*Result, error) {
	if in.Roles.Blue == 0 || in.Roles.SWIR1 == 0 {
		return nil, &UnsupportedError{Estimator: "dark object", Reason: "the sensor has no blue or shortwave infrared band"}
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	blueTOA, err := bandAt(in.TOA, in.Roles.Blue, "blue")
	if err != nil {
		return nil, err
	}
	redTOA, err := bandAt(in.TOA, in.Roles.Red, "red")
	if err != nil {
		return nil, err
	}
	nirTOA, err := bandAt(in.TOA, in.Roles.NIR, "near infrared")
	if err != nil {
		return nil, err
	}
	swir1TOA, err := bandAt(in.TOA, in.Roles.SWIR1, "shortwave infrared")
	if err != nil {
		return nil, err
	}
	blueRad, err := bandAt(in.Radiance, in.Roles.Blue, "blue")
	if err != nil {
		return nil, err
	}
	redRad, err := bandAt(in.Radiance, in.Roles.Red, "red")
	if err != nil {
		return nil, err
	}
	nirRad, err := bandAt(in.Radiance, in.Roles.NIR, "near infrared")
	if err != nil {
		return nil, err
	}

	var dosBlue *raster.Grid
	switch method {
	case DOSSimple:
		dosBlue, _, err = SimpleBandDOS(blueTOA, dosOutRefl)
	case DOSGlobal:
		dosBlue, err = GlobalBandDOS(blueTOA, dosOutRefl)
	default:
		dosBlue, err = LocalBandDOS(blueTOA, EstimatorLocalBlockSize, dosOutRefl)
	}
	if err != nil {
		return nil, err
	}

	segments, err := SelectDOSTargets(redTOA, nirTOA, swir1TOA, dosBlue, blueRad, redRad, nirRad, in.DEM)
	if err != nil {
		return nil, err
	}
	logging.Component("aod").Info().Int("segments", len(segments)).Msg("selected dark object targets")
	return in.searchAndInterpolate(ctx, search, segments)
}

// EstimateSingleAOT derives one scene wide aerosol value from the most
// common dark segment of the blue band.
func EstimateSingleAOT(ctx context.Context, in Inputs, search *Search, dosOutRefl float64) (float64, error) {
	if in.Roles.Blue == 0 {
		return 0, &UnsupportedError{Estimator: "single value", Reason: "the sensor has no blue band"}
	}
	if err := in.validate(); err != nil {
		return 0, err
	}
	blueTOA, err := bandAt(in.TOA, in.Roles.Blue, "blue")
	if err != nil {
		return 0, err
	}
	blueRad, err := bandAt(in.Radiance, in.Roles.Blue, "blue")
	if err != nil {
		return 0, err
	}

	dosBlue, offset, err := SimpleBandDOS(blueTOA, dosOutRefl)
	if err != nil {
		return 0, err
	}
	mask, err := raster.Calc(
		fmt.Sprintf("((b1 != 0) && (b1 < %v)) ? 1 : 0", dosOutRefl+5),
		map[string]*raster.Grid{"b1": dosBlue},
	)
	if err != nil {
		return 0, err
	}
	clumps := segment.Clump(mask)
	clumps.RemoveSmall(dosMinObjectSize)
	clumps.Relabel()
	if clumps.Count == 0 {
		return 0, errors.New("no dark region large enough to estimate from")
	}

	meanTOA, err := clumps.MeanColumn(blueTOA)
	if err != nil {
		return 0, err
	}
	meanRad, err := clumps.MeanColumn(blueRad)
	if err != nil {
		return 0, err
	}
	meanElev, err := clumps.MeanColumn(in.DEM)
	if err != nil {
		return 0, err
	}

	hist := clumps.Histogram()
	best := 1
	for id := 2; id <= clumps.Count; id++ {
		if hist[id] > hist[best] {
			best = id
		}
	}

	refl := meanTOA[best] - offset
	if refl < dosOutRefl {
		refl = dosOutRefl
	}
	seg := Segment{
		ID:       best,
		Pixels:   hist[best],
		MeanElev: meanElev[best],
		BlueRad:  meanRad[best],
		Target:   refl / 1000,
		Selected: true,
	}
	logging.Component("aod").Info().
		Int("segment", best).
		Float64("pixels", hist[best]).
		Msg("estimating one aerosol value from the largest dark region")
	return search.SegmentAOT(ctx, seg)
}

// searchAndInterpolate runs the per-segment search and spreads the
// selected values into a dense surface on the scene grid.
func (in Inputs) searchAndInterpolate(ctx context.Context, search *Search, segments []Segment) (*Result, error) {
	aots, err := search.All(ctx, segments)
	if err != nil {
		return nil, err
	}
	aod, err := Interpolate(selectedPoints(segments, aots), in.TOA[0], InterpolationSmoothing, AODFloor)
	if err != nil {
		return nil, err
	}
	return &Result{AOD: aod, Segments: segments, AOT: aots}, nil
}
