package atmos

import (
	"context"
	"fmt"
	"math"

	"github.com/clearsat/atmcorr/internal/sixs"
)

// elevationStep is the vertical spacing of lookup table entries in metres.
const elevationStep = 100.0

// aotStep is the aerosol depth spacing of lookup table entries.
const aotStep = 0.05

// ElevationEntry holds the per-band coefficients for one surface elevation.
type ElevationEntry struct {
	Elevation float64 // metres above sea level
	Bands     []sixs.Coefficients
}

// ElevationLUT is a coefficient table keyed by surface elevation. It is
// built once per scene and read-only afterwards; lookups never mutate it.
type ElevationLUT []ElevationEntry

// AOTEntry holds the per-band coefficients for one aerosol depth.
type AOTEntry struct {
	AOT   float64
	Bands []sixs.Coefficients
}

// ElevationAOTEntry holds a nested aerosol depth table for one elevation.
type ElevationAOTEntry struct {
	Elevation float64
	AOT       []AOTEntry
}

// ElevationAOTLUT is a coefficient table keyed by surface elevation and
// aerosol depth, with the same build-once lifecycle as ElevationLUT.
type ElevationAOTLUT []ElevationAOTEntry

// BuildElevationLUT runs the model at a fixed aerosol depth for every
// elevation step covering minElevation..maxElevation (metres). The last
// entry can overshoot maxElevation by up to one step.
func (m *Model) BuildElevationLUT(ctx context.Context, minElevation, maxElevation, aot float64) (ElevationLUT, error) {
	steps := int(math.Ceil((maxElevation-minElevation)/elevationStep)) + 1
	if steps < 1 {
		return nil, fmt.Errorf("elevation range %v..%v is reversed", minElevation, maxElevation)
	}

	lut := make(ElevationLUT, 0, steps)
	for i := 0; i < steps; i++ {
		elevation := minElevation + elevationStep*float64(i)
		m.log.Info().Float64("elevation_m", elevation).Msg("building elevation coefficient entry")
		bands, err := m.Coefficients(ctx, elevation/1000, aot)
		if err != nil {
			return nil, err
		}
		lut = append(lut, ElevationEntry{Elevation: elevation, Bands: bands})
	}
	return lut, nil
}

// BuildElevationAOTLUT runs the model over the full elevation by aerosol
// depth grid. The aerosol axis runs one step past aotMax so boundary
// values still have a neighbour above them.
func (m *Model) BuildElevationAOTLUT(ctx context.Context, minElevation, maxElevation, aotMin, aotMax float64) (ElevationAOTLUT, error) {
	elevSteps := int(math.Ceil((maxElevation-minElevation)/elevationStep)) + 1
	if elevSteps < 1 {
		return nil, fmt.Errorf("elevation range %v..%v is reversed", minElevation, maxElevation)
	}
	aotSteps := int(math.Ceil((aotMax-aotMin)/aotStep)) + 2
	if aotSteps < 2 {
		return nil, fmt.Errorf("aerosol depth range %v..%v is reversed", aotMin, aotMax)
	}

	lut := make(ElevationAOTLUT, 0, elevSteps)
	for i := 0; i < elevSteps; i++ {
		elevation := minElevation + elevationStep*float64(i)
		m.log.Info().Float64("elevation_m", elevation).Msg("building elevation coefficient entries across aerosol depths")
		entries := make([]AOTEntry, 0, aotSteps)
		for j := 0; j < aotSteps; j++ {
			aot := aotMin + aotStep*float64(j)
			bands, err := m.Coefficients(ctx, elevation/1000, aot)
			if err != nil {
				return nil, err
			}
			entries = append(entries, AOTEntry{AOT: aot, Bands: bands})
		}
		lut = append(lut, ElevationAOTEntry{Elevation: elevation, AOT: entries})
	}
	return lut, nil
}

// Nearest returns the entry whose elevation is closest to the target.
// Exact midpoints resolve to the lower entry.
func (lut ElevationLUT) Nearest(elevation float64) (ElevationEntry, error) {
	if len(lut) == 0 {
		return ElevationEntry{}, fmt.Errorf("elevation coefficient table is empty")
	}
	best := 0
	for i := 1; i < len(lut); i++ {
		if math.Abs(lut[i].Elevation-elevation) < math.Abs(lut[best].Elevation-elevation) {
			best = i
		}
	}
	return lut[best], nil
}

// Nearest returns the per-band coefficients closest to the target
// elevation and aerosol depth, resolving elevation first.
func (lut ElevationAOTLUT) Nearest(elevation, aot float64) ([]sixs.Coefficients, error) {
	if len(lut) == 0 {
		return nil, fmt.Errorf("elevation and aerosol coefficient table is empty")
	}
	bestElev := 0
	for i := 1; i < len(lut); i++ {
		if math.Abs(lut[i].Elevation-elevation) < math.Abs(lut[bestElev].Elevation-elevation) {
			bestElev = i
		}
	}
	entries := lut[bestElev].AOT
	if len(entries) == 0 {
		return nil, fmt.Errorf("no aerosol entries at elevation %v", lut[bestElev].Elevation)
	}
	bestAOT := 0
	for j := 1; j < len(entries); j++ {
		if math.Abs(entries[j].AOT-aot) < math.Abs(entries[bestAOT].AOT-aot) {
			bestAOT = j
		}
	}
	return entries[bestAOT].Bands, nil
}
