package segment

import (
	"fmt"
	"math"

	"github.com/clearsat/atmcorr/internal/raster"
)

// KMeans classifies pixels into the given number of clusters over the band
// values and returns a class image with labels 1..clusters. Pixels that are
// zero in every band are background. Centroids start evenly spaced along
// the diagonal of the sampled value range and converge with Lloyd
// iterations, so the result is deterministic.
func KMeans(bands []*raster.Grid, clusters, maxIterations, sampleStride int) (*raster.Grid, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("k-means needs at least one band")
	}
	if clusters < 1 {
		return nil, fmt.Errorf("k-means needs at least one cluster, got %d", clusters)
	}
	if sampleStride < 1 {
		sampleStride = 1
	}
	base := bands[0]
	for _, b := range bands[1:] {
		if !b.SameShape(base) {
			return nil, fmt.Errorf("k-means band shapes differ")
		}
	}
	dims := len(bands)

	// Sample the valid pixels that seed the clustering.
	var samples [][]float64
	for i := 0; i < len(base.Pixels); i += sampleStride {
		if !validPixel(bands, i) {
			continue
		}
		s := make([]float64, dims)
		for d, b := range bands {
			s[d] = b.Pixels[i]
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("k-means found no valid pixels")
	}
	if len(samples) < clusters {
		clusters = len(samples)
	}

	minVal := make([]float64, dims)
	maxVal := make([]float64, dims)
	for d := 0; d < dims; d++ {
		minVal[d], maxVal[d] = math.Inf(1), math.Inf(-1)
	}
	for _, s := range samples {
		for d, v := range s {
			if v < minVal[d] {
				minVal[d] = v
			}
			if v > maxVal[d] {
				maxVal[d] = v
			}
		}
	}

	centroids := make([][]float64, clusters)
	for k := range centroids {
		centroids[k] = make([]float64, dims)
		frac := (float64(k) + 0.5) / float64(clusters)
		for d := 0; d < dims; d++ {
			centroids[k][d] = minVal[d] + frac*(maxVal[d]-minVal[d])
		}
	}

	assignment := make([]int, len(samples))
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, s := range samples {
			k := nearestCentroid(centroids, s)
			if k != assignment[i] {
				assignment[i] = k
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, clusters)
		counts := make([]int, clusters)
		for k := range sums {
			sums[k] = make([]float64, dims)
		}
		for i, s := range samples {
			k := assignment[i]
			counts[k]++
			for d, v := range s {
				sums[k][d] += v
			}
		}
		for k := range centroids {
			if counts[k] == 0 {
				continue
			}
			for d := 0; d < dims; d++ {
				centroids[k][d] = sums[k][d] / float64(counts[k])
			}
		}
	}

	out := base.Like()
	pixel := make([]float64, dims)
	for i := range base.Pixels {
		if !validPixel(bands, i) {
			continue
		}
		for d, b := range bands {
			pixel[d] = b.Pixels[i]
		}
		out.Pixels[i] = float64(nearestCentroid(centroids, pixel) + 1)
	}
	return out, nil
}

func validPixel(bands []*raster.Grid, i int) bool {
	for _, b := range bands {
		if b.Pixels[i] != 0 {
			return true
		}
	}
	return false
}

func nearestCentroid(centroids [][]float64, v []float64) int {
	best, bestDist := 0, math.Inf(1)
	for k, c := range centroids {
		dist := 0.0
		for d := range v {
			diff := v[d] - c[d]
			dist += diff * diff
		}
		if dist < bestDist {
			best, bestDist = k, dist
		}
	}
	return best
}
