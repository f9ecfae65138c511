package aod

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/clearsat/atmcorr/internal/logging"
	"github.com/clearsat/atmcorr/internal/raster"
	"github.com/clearsat/atmcorr/internal/segment"
)

const (
	// dosMinObjectSize drops dark clumps too small to be real targets.
	dosMinObjectSize = 5
	// dosDarkPercentile is the starting fraction of pixels treated as dark.
	dosDarkPercentile = 0.01
	// offsetGridRows by offsetGridCols cells spread the offset samples.
	offsetGridRows = 20
	offsetGridCols = 20

	dosHistBinWidth = 1.0
	dosHistMin      = 1.0
	dosHistBins     = 10000

	// DefaultDOSReflectance is the residual reflectance left in a dark
	// object after subtraction, in scaled units.
	DefaultDOSReflectance = 20.0
	// DefaultLocalBlockSize is the window for block-local dark targets.
	DefaultLocalBlockSize = 200
	// EstimatorLocalBlockSize is the window used when deriving the blue
	// input of the aerosol estimator.
	EstimatorLocalBlockSize = 1000

	dosClusters         = 20
	dosMinSegmentSize   = 10
	dosKMeansIterations = 100
	radNDVIThreshold    = 0.2
)

// darkPixelThreshold walks a unit-width histogram until the cumulative
// count reaches the percentile target. The threshold is the highest value
// whose bin stayed fully below the target; 0 when the first bin crosses.
func darkPixelThreshold(counts []int, fraction float64) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	target := float64(total) * fraction
	threshold := 0.0
	seen := 0
	for _, c := range counts {
		seen += c
		if float64(seen) < target {
			threshold += dosHistBinWidth
		} else {
			break
		}
	}
	return threshold
}

// offsetSurface interpolates the minimum reflectance of the selected dark
// clumps into a full offset raster for one band.
func offsetSurface(band *raster.Grid, clumps *segment.Clumps) (*raster.Grid, error) {
	if clumps.Count == 0 {
		return nil, errors.New("no dark targets survived the minimum object size")
	}
	minRefl, err := clumps.MinColumn(band)
	if err != nil {
		return nil, err
	}
	meanRefl, err := clumps.MeanColumn(band)
	if err != nil {
		return nil, err
	}

	eastings, northings := clumps.SpatialLocation()
	eligible := make(segment.Column, clumps.Count+1)
	for id := 1; id <= clumps.Count; id++ {
		eligible[id] = 1
	}
	winners := clumps.SelectOnGrid(eligible, eastings, northings, meanRefl, offsetGridRows, offsetGridCols)

	var points []Point
	for id := 1; id <= clumps.Count; id++ {
		if winners[id] == 1 {
			points = append(points, Point{Easting: eastings[id], Northing: northings[id], Value: minRefl[id]})
		}
	}
	return Interpolate(points, band, InterpolationSmoothing, 0)
}

// globalBandOffsets derives the offset surface for one band from a scene
// wide histogram threshold. When fewer than ten dark clumps turn up the
// percentile doubles and the threshold is rebuilt; once the percentile
// reaches one the band is used as it stands.
func globalBandOffsets(band *raster.Grid, log zerolog.Logger) (*raster.Grid, error) {
	counts := raster.Histogram(band.Pixels, dosHistMin, dosHistBinWidth, dosHistBins)
	percentile := dosDarkPercentile
	var clumps *segment.Clumps
	for {
		threshold := darkPixelThreshold(counts, percentile)
		mask, err := raster.Calc(
			fmt.Sprintf("(b1 != 0) && (b1 <= %v) ? 1 : 0", threshold),
			map[string]*raster.Grid{"b1": band},
		)
		if err != nil {
			return nil, err
		}
		clumps = segment.Clump(mask)
		clumps.RemoveSmall(dosMinObjectSize)
		clumps.Relabel()
		if clumps.Count > 9 || percentile >= 1 {
			break
		}
		percentile *= 2
		log.Debug().Float64("percentile", percentile).Msg("too few dark targets, widening the dark pixel percentile")
	}
	return offsetSurface(band, clumps)
}

// GlobalOffsets derives a dark target offset surface for every band of a
// top of atmosphere stack.
func GlobalOffsets(toa []*raster.Grid) ([]*raster.Grid, error) {
	if len(toa) == 0 {
		return nil, errors.New("no bands to derive offsets for")
	}
	log := logging.Component("aod")
	out := make([]*raster.Grid, len(toa))
	for i, band := range toa {
		log.Info().Int("band", i+1).Msg("deriving global dark target offsets")
		offsets, err := globalBandOffsets(band, log)
		if err != nil {
			return nil, fmt.Errorf("band %d: %w", i+1, err)
		}
		out[i] = offsets
	}
	return out, nil
}

// localDarkMask marks the darkest valid pixels of each block. Blocks that
// are flat, nearly empty or mostly nodata contribute nothing.
func localDarkMask(band *raster.Grid, blockSize int, fraction float64) *raster.Grid {
	out := band.Like()
	minCount := float64(blockSize*blockSize) * 0.1
	for y0 := 0; y0 < band.Height; y0 += blockSize {
		for x0 := 0; x0 < band.Width; x0 += blockSize {
			h := min(blockSize, band.Height-y0)
			w := min(blockSize, band.Width-x0)
			markBlockDarkPixels(band, out, x0, y0, w, h, minCount, fraction)
		}
	}
	return out
}

func markBlockDarkPixels(band, out *raster.Grid, x0, y0, w, h int, minCount, fraction float64) {
	rawMin := math.Inf(1)
	rawMax := math.Inf(-1)
	var data []float64
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			v := band.At(x, y)
			if v < rawMin {
				rawMin = v
			}
			if v > rawMax {
				rawMax = v
			}
			if v != 0 {
				data = append(data, v)
			}
		}
	}
	if rawMax-rawMin <= 5 || float64(len(data)) <= minCount {
		return
	}

	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	nBins := int(math.Ceil(hi-lo)) + 1
	width := (hi - lo) / float64(nBins)

	threshold := 0.0
	if width > 0 {
		counts := make([]int, nBins)
		for _, v := range data {
			idx := int((v - lo) / width)
			if idx >= nBins {
				idx = nBins - 1
			}
			counts[idx]++
		}
		target := math.Floor(float64(len(data)) * fraction)
		seen := 0
		for n, c := range counts {
			if float64(seen+c) > target {
				break
			}
			seen += c
			threshold = lo + float64(n+1)*width
		}
	}

	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			if v := band.At(x, y); v > 0 && v <= threshold {
				out.Set(x, y, 1)
			}
		}
	}
}

// LocalOffsets derives per-band offset surfaces from block-local dark
// targets instead of a scene wide threshold.
func LocalOffsets(toa []*raster.Grid, blockSize int) ([]*raster.Grid, error) {
	if len(toa) == 0 {
		return nil, errors.New("no bands to derive offsets for")
	}
	log := logging.Component("aod")
	out := make([]*raster.Grid, len(toa))
	for i, band := range toa {
		log.Info().Int("band", i+1).Msg("deriving local dark target offsets")
		mask := localDarkMask(band, blockSize, dosDarkPercentile)
		clumps := segment.Clump(mask)
		clumps.RemoveSmall(dosMinObjectSize)
		clumps.Relabel()
		offsets, err := offsetSurface(band, clumps)
		if err != nil {
			return nil, fmt.Errorf("band %d: %w", i+1, err)
		}
		out[i] = offsets
	}
	return out, nil
}

// subtractSurface removes an offset surface from a band, keeping zero as
// nodata and leaving at least 1 where the subtraction consumed the whole
// signal.
func subtractSurface(band, offsets *raster.Grid, dosOutRefl float64) (*raster.Grid, error) {
	out, err := raster.Calc(
		fmt.Sprintf("(TOA == 0) ? 0 : (((TOA - Off) + %v) <= 0) ? 1 : ((TOA - Off) + %v)", dosOutRefl, dosOutRefl),
		map[string]*raster.Grid{"TOA": band, "Off": offsets},
	)
	if err != nil {
		return nil, err
	}
	quantizeUint16(out)
	return out, nil
}

// SubtractOffsets applies per-band offset surfaces to a whole stack.
func SubtractOffsets(toa, offsets []*raster.Grid, dosOutRefl float64) ([]*raster.Grid, error) {
	if len(toa) != len(offsets) {
		return nil, fmt.Errorf("%d bands but %d offset surfaces", len(toa), len(offsets))
	}
	out := make([]*raster.Grid, len(toa))
	for b := range toa {
		subtracted, err := subtractSurface(toa[b], offsets[b], dosOutRefl)
		if err != nil {
			return nil, fmt.Errorf("band %d: %w", b+1, err)
		}
		out[b] = subtracted
	}
	return out, nil
}

// SimpleDOS subtracts each band's dark percentile as one scene wide
// offset. It returns the subtracted stack and the per-band offsets.
func SimpleDOS(toa []*raster.Grid, dosOutRefl float64) ([]*raster.Grid, []float64, error) {
	if len(toa) == 0 {
		return nil, nil, errors.New("no bands to subtract")
	}
	out := make([]*raster.Grid, len(toa))
	offsets := make([]float64, len(toa))
	for b, band := range toa {
		offset, ok := raster.Percentile(band.Pixels, dosDarkPercentile, 0)
		if !ok {
			return nil, nil, raster.ErrNoValidData
		}
		subtracted, err := raster.Calc(
			fmt.Sprintf("(b1 == 0) ? 0 : (((b1 - %v) + %v) <= 0) ? 1 : ((b1 - %v) + %v)", offset, dosOutRefl, offset, dosOutRefl),
			map[string]*raster.Grid{"b1": band},
		)
		if err != nil {
			return nil, nil, fmt.Errorf("band %d: %w", b+1, err)
		}
		quantizeUint16(subtracted)
		out[b] = subtracted
		offsets[b] = offset
	}
	return out, offsets, nil
}

// SimpleBandDOS subtracts one band's dark percentile offset and reports
// the offset used.
func SimpleBandDOS(band *raster.Grid, dosOutRefl float64) (*raster.Grid, float64, error) {
	offset, ok := raster.Percentile(band.Pixels, dosDarkPercentile, 0)
	if !ok {
		return nil, 0, raster.ErrNoValidData
	}
	out, err := raster.Calc(
		fmt.Sprintf("(b1 == 0) ? 0 : (((b1 - %v) + %v) < 0) ? 1 : ((b1 - %v) + %v)", offset, dosOutRefl, offset, dosOutRefl),
		map[string]*raster.Grid{"b1": band},
	)
	if err != nil {
		return nil, 0, err
	}
	quantizeUint16(out)
	return out, offset, nil
}

// GlobalBandDOS derives and subtracts a global offset surface for one
// band.
func GlobalBandDOS(band *raster.Grid, dosOutRefl float64) (*raster.Grid, error) {
	offsets, err := globalBandOffsets(band, logging.Component("aod"))
	if err != nil {
		return nil, err
	}
	return subtractSurface(band, offsets, dosOutRefl)
}

// LocalBandDOS derives and subtracts a block-local offset surface for one
// band.
func LocalBandDOS(band *raster.Grid, blockSize int, dosOutRefl float64) (*raster.Grid, error) {
	mask := localDarkMask(band, blockSize, dosDarkPercentile)
	clumps := segment.Clump(mask)
	clumps.RemoveSmall(dosMinObjectSize)
	clumps.Relabel()
	offsets, err := offsetSurface(band, clumps)
	if err != nil {
		return nil, err
	}
	return subtractSurface(band, offsets, dosOutRefl)
}

// SelectDOSTargets clusters the scene on its infrared and red reflectance
// and keeps the clusters that look vegetated in radiance. Within each
// grid cell the segment with the darkest subtracted blue mean wins.
func SelectDOSTargets(redTOA, nirTOA, swir1TOA, dosBlue, blueRad, redRad, nirRad, dem *raster.Grid) ([]Segment, error) {
	classes, err := segment.KMeans([]*raster.Grid{nirTOA, swir1TOA, redTOA}, dosClusters, dosKMeansIterations, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster the scene: %w", err)
	}
	clumps := segment.Clump(classes)
	clumps.RemoveSmall(dosMinSegmentSize)
	clumps.Relabel()
	if clumps.Count == 0 {
		return nil, errors.New("no segments survived clustering")
	}

	meanElev, err := clumps.MeanColumn(dem)
	if err != nil {
		return nil, err
	}
	meanDOS, err := clumps.MeanColumn(dosBlue)
	if err != nil {
		return nil, err
	}
	meanBlueRad, err := clumps.MeanColumn(blueRad)
	if err != nil {
		return nil, err
	}
	meanRedRad, err := clumps.MeanColumn(redRad)
	if err != nil {
		return nil, err
	}
	meanNIRRad, err := clumps.MeanColumn(nirRad)
	if err != nil {
		return nil, err
	}

	target := make(segment.Column, clumps.Count+1)
	eligible := make(segment.Column, clumps.Count+1)
	for id := 1; id <= clumps.Count; id++ {
		target[id] = meanDOS[id] / 1000
		ndvi := (meanNIRRad[id] - meanRedRad[id]) / (meanNIRRad[id] + meanRedRad[id])
		if ndvi > radNDVIThreshold {
			eligible[id] = 1
		}
	}
	return assembleSegments(clumps, meanElev, meanBlueRad, target, eligible, meanDOS), nil
}

func quantizeUint16(g *raster.Grid) {
	for i, v := range g.Pixels {
		v = math.Round(v)
		if v < 0 {
			v = 0
		} else if v > math.MaxUint16 {
			v = math.MaxUint16
		}
		g.Pixels[i] = v
	}
}
