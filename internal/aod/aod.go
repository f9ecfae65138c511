// Package aod estimates aerosol optical depth from dark targets. Targets
// come from dense dark vegetation thresholds or dark object subtraction;
// each selected target's blue radiance is pushed through the radiative
// transfer model across a grid of candidate depths, and the winning depths
// are interpolated into a dense raster.
package aod

import (
	"context"
	"math"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"

	"github.com/clearsat/atmcorr/internal/atmos"
	"github.com/clearsat/atmcorr/internal/logging"
)

// SearchStep is the spacing between candidate aerosol depths.
const SearchStep = 0.05

// RangeError reports a candidate range too narrow to hold even one step.
type RangeError struct {
	Min float64
	Max float64
}

func (e *RangeError) Error() string {
	return "min and max AOT range are too close together, they need to be at least 0.05 apart."
}

// Candidates enumerates the aerosol depths a search over min..max visits:
// min, min+0.05, ... up to the first value at or beyond max.
func Candidates(aotMin, aotMax float64) ([]float64, error) {
	steps := int(math.Ceil((aotMax-aotMin)/SearchStep)) + 1
	if steps < 1 {
		return nil, &RangeError{Min: aotMin, Max: aotMax}
	}
	out := make([]float64, steps)
	for j := range out {
		out[j] = aotMin + SearchStep*float64(j)
	}
	return out, nil
}

// Segment is one dark target candidate. The search consumes the blue
// radiance, the target reflectance and the mean elevation; the centroid
// feeds the interpolation.
type Segment struct {
	ID       int     `csv:"segment"`
	Pixels   float64 `csv:"pixels"`
	MeanElev float64 `csv:"mean_elev_m"`
	BlueRad  float64 `csv:"mean_blue_radiance"`
	Target   float64 `csv:"target_reflectance"`
	Easting  float64 `csv:"easting"`
	Northing float64 `csv:"northing"`
	Selected bool    `csv:"selected"`
}

// Search drives the per-segment brute force over candidate depths. Blue
// must be a single band model: its first coefficient set is inverted
// against each segment's radiance.
type Search struct {
	Blue    *atmos.Model
	AOTMin  float64
	AOTMax  float64
	Workers int

	log zerolog.Logger
}

// NewSearch builds a search over min..max backed by a blue band model.
func NewSearch(blue *atmos.Model, aotMin, aotMax float64) *Search {
	return &Search{
		Blue:    blue,
		AOTMin:  aotMin,
		AOTMax:  aotMax,
		Workers: 4,
		log:     logging.Component("aod"),
	}
}

// SegmentAOT finds the candidate depth whose modelled blue surface
// reflectance lands closest to the segment's target. The first candidate
// seen wins exact distance ties.
func (s *Search) SegmentAOT(ctx context.Context, seg Segment) (float64, error) {
	candidates, err := Candidates(s.AOTMin, s.AOTMax)
	if err != nil {
		return 0, err
	}

	var bestAOT, bestDist float64
	for j, aot := range candidates {
		coeffs, err := s.Blue.Coefficients(ctx, seg.MeanElev/1000, aot)
		if err != nil {
			return 0, err
		}
		refl := atmos.InvertReflectance(seg.BlueRad, coeffs[0])
		dist := math.Sqrt(math.Pow(refl-seg.Target, 2))
		if j == 0 || dist < bestDist {
			bestAOT = aot
			bestDist = dist
		}
	}
	s.log.Debug().Int("segment", seg.ID).Float64("aot", bestAOT).Float64("distance", bestDist).Msg("search finished")
	return bestAOT, nil
}

// All searches every selected segment and returns the depths aligned with
// the input slice. Unselected segments keep a depth of zero. Segments are
// searched concurrently; the first failure wins the returned error.
func (s *Search) All(ctx context.Context, segments []Segment) ([]float64, error) {
	if _, err := Candidates(s.AOTMin, s.AOTMax); err != nil {
		return nil, err
	}

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	pool := workerpool.New(workers)

	out := make([]float64, len(segments))
	var mu sync.Mutex
	var firstErr error

	for i, seg := range segments {
		if !seg.Selected {
			continue
		}
		pool.Submit(func() {
			aot, err := s.SegmentAOT(ctx, seg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			out[i] = aot
		})
	}
	pool.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
