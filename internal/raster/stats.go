package raster

import (
	"errors"
	"math"
)

// ErrNoValidData reports an image whose pixels carry no information at all.
var ErrNoValidData = errors.New("There is no valid data in this image.")

// HasValidData verifies the grid holds at least two distinct pixel values;
// a constant image is indistinguishable from an empty download.
func (g *Grid) HasValidData() error {
	if len(g.Pixels) == 0 {
		return ErrNoValidData
	}
	first := g.Pixels[0]
	for _, v := range g.Pixels[1:] {
		if v != first {
			return nil
		}
	}
	return ErrNoValidData
}

// Histogram counts pixels into nBins bins of binWidth starting at min.
// Values outside the range are dropped.
func Histogram(pixels []float64, min, binWidth float64, nBins int) []int {
	counts := make([]int, nBins)
	for _, v := range pixels {
		bin := int(math.Floor((v - min) / binWidth))
		if bin < 0 || bin >= nBins {
			continue
		}
		counts[bin]++
	}
	return counts
}

// PercentileBin walks a histogram to the first bin at which the cumulative
// count reaches the given fraction of the population. Returns -1 when the
// histogram is empty.
func PercentileBin(counts []int, fraction float64) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return -1
	}
	target := fraction * float64(total)
	cumulative := 0
	for i, c := range counts {
		cumulative += c
		if float64(cumulative) >= target && c > 0 {
			return i
		}
	}
	return len(counts) - 1
}

// Percentile returns the value at the given population fraction among
// pixels strictly above noData, using unit-width bins. ok is false when no
// pixel qualifies.
func Percentile(pixels []float64, fraction, noData float64) (value float64, ok bool) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range pixels {
		if v <= noData {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if math.IsInf(min, 1) {
		return 0, false
	}

	min, max = math.Floor(min), math.Floor(max)
	nBins := int(max-min) + 1
	counts := make([]int, nBins)
	for _, v := range pixels {
		if v <= noData {
			continue
		}
		counts[int(math.Floor(v)-min)]++
	}
	bin := PercentileBin(counts, fraction)
	return min + float64(bin), true
}
