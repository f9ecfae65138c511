package aod

import (
	"errors"
	"fmt"

	"github.com/clearsat/atmcorr/internal/raster"
	"github.com/clearsat/atmcorr/internal/segment"
)

const (
	// ddvReflectanceFloor is the lowest usable SWIR threshold in scaled
	// reflectance units.
	ddvReflectanceFloor = 30.0
	// ddvMinPixels drops clumps too small to give stable band means.
	ddvMinPixels = 100
	// selectionGridRows by selectionGridCols cells spread the selected
	// targets across the scene.
	selectionGridRows = 10
	selectionGridCols = 10
	// swirToBlueReflectance predicts blue surface reflectance from the
	// SWIR mean of a vegetated target.
	swirToBlueReflectance = 0.33
)

// ddvThreshold picks the SWIR cutoff: the 5th percentile of the valid
// reflectance values, floored at 30.
func ddvThreshold(swirTOA *raster.Grid) float64 {
	if p, ok := raster.Percentile(swirTOA.Pixels, 0.05, 0); ok && p > ddvReflectanceFloor {
		return p
	}
	return ddvReflectanceFloor
}

// SelectDDVTargets finds dense dark vegetation in a top of atmosphere
// reflectance scene: dark SWIR, valid data and a vegetation index above
// 0.1. Pixels are clumped, small clumps dropped and one segment per grid
// cell selected by its SWIR minimum.
func SelectDDVTargets(redTOA, nirTOA, swirTOA, blueRad, dem *raster.Grid) ([]Segment, error) {
	threshold := ddvThreshold(swirTOA)
	mask, err := raster.Calc(
		fmt.Sprintf("(b6 < %v) && (b6 != 0) && (((b4 - b3) / (b4 + b3)) > 0.1) ? 1 : 0", threshold),
		map[string]*raster.Grid{"b3": redTOA, "b4": nirTOA, "b6": swirTOA},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to threshold dark targets: %w", err)
	}

	clumps := segment.Clump(mask)
	clumps.RemoveSmall(ddvMinPixels)
	clumps.Relabel()
	if clumps.Count == 0 {
		return nil, errors.New("no dense dark vegetation targets were found")
	}

	meanElev, err := clumps.MeanColumn(dem)
	if err != nil {
		return nil, err
	}
	meanBlueRad, err := clumps.MeanColumn(blueRad)
	if err != nil {
		return nil, err
	}
	minSWIR, err := clumps.MinColumn(swirTOA)
	if err != nil {
		return nil, err
	}
	meanSWIR, err := clumps.MeanColumn(swirTOA)
	if err != nil {
		return nil, err
	}

	target := make(segment.Column, clumps.Count+1)
	eligible := make(segment.Column, clumps.Count+1)
	for id := 1; id <= clumps.Count; id++ {
		target[id] = meanSWIR[id] / 1000 * swirToBlueReflectance
		eligible[id] = 1
	}

	return assembleSegments(clumps, meanElev, meanBlueRad, target, eligible, minSWIR), nil
}

// assembleSegments runs the grid selection and flattens the per-clump
// columns into segments. The metric decides the winner within each cell.
func assembleSegments(clumps *segment.Clumps, meanElev, blueRad, target, eligible, metric segment.Column) []Segment {
	eastings, northings := clumps.SpatialLocation()
	hist := clumps.Histogram()
	winners := clumps.SelectOnGrid(eligible, eastings, northings, metric, selectionGridRows, selectionGridCols)

	segments := make([]Segment, 0, clumps.Count)
	for id := 1; id <= clumps.Count; id++ {
		segments = append(segments, Segment{
			ID:       id,
			Pixels:   hist[id],
			MeanElev: meanElev[id],
			BlueRad:  blueRad[id],
			Target:   target[id],
			Easting:  eastings[id],
			Northing: northings[id],
			Selected: winners[id] == 1,
		})
	}
	return segments
}
