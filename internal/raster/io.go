package raster

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/airbusgeo/godal"

	"github.com/clearsat/atmcorr/internal/geometry"
)

// ReadBand loads one band (1-based) of a georeferenced image into memory.
func ReadBand(path string, band int) (*Grid, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	structure := ds.Structure()
	if band < 1 || band > structure.NBands {
		return nil, fmt.Errorf("%s has %d bands, band %d requested", path, structure.NBands, band)
	}
	geoTransform, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to get GeoTransform of %s: %w", path, err)
	}

	g := NewGrid(structure.SizeX, structure.SizeY, geoTransform)
	if err := ds.Bands()[band-1].Read(0, 0, g.Pixels, g.Width, g.Height); err != nil {
		return nil, fmt.Errorf("failed to read band %d of %s: %w", band, path, err)
	}
	return g, nil
}

// WarpToMatch resamples the first band of an image onto the template's
// grid with cubic spline interpolation, writing the warped copy to path
// and loading it back. Source georeferencing comes from the image itself;
// reprojection is implied when it differs from proj.
func WarpToMatch(srcPath, path string, proj geometry.Projection, template *Grid) (*Grid, error) {
	src, err := godal.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer src.Close()

	gt := template.GeoTransform
	minX := gt[0]
	maxY := gt[3]
	maxX := minX + gt[1]*float64(template.Width)
	minY := maxY + gt[5]*float64(template.Height)
	cell := template.CellSize()

	switches := []string{
		"-t_srs", warpSRS(proj),
		"-te", warpFloat(minX), warpFloat(minY), warpFloat(maxX), warpFloat(maxY),
		"-tr", warpFloat(cell), warpFloat(cell),
		"-r", "cubicspline",
		"-of", "GTiff",
		"-overwrite",
	}
	warped, err := godal.Warp(path, []*godal.Dataset{src}, switches,
		godal.CreationOption("COMPRESS=LZW", "TILED=YES"))
	if err != nil {
		return nil, fmt.Errorf("failed to warp %s onto the scene grid: %w", srcPath, err)
	}
	if err := warped.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalise %s: %w", path, err)
	}
	return ReadBand(path, 1)
}

func warpSRS(proj geometry.Projection) string {
	if proj.EPSG != 0 {
		return fmt.Sprintf("EPSG:%d", proj.EPSG)
	}
	return proj.WKT
}

func warpFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WriteGTiff writes the grids as the bands of a tiled, compressed GeoTIFF.
// All grids must share a shape; georeferencing comes from the first.
func WriteGTiff(path string, proj geometry.Projection, dataType godal.DataType, grids ...*Grid) error {
	if len(grids) == 0 {
		return errors.New("no bands to write")
	}
	base := grids[0]
	for _, g := range grids[1:] {
		if !g.SameShape(base) {
			return fmt.Errorf("band shapes differ: %dx%d vs %dx%d", base.Width, base.Height, g.Width, g.Height)
		}
	}

	ds, err := godal.Create(godal.GTiff, path, len(grids), dataType, base.Width, base.Height,
		godal.CreationOption("COMPRESS=LZW", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := ds.SetGeoTransform(base.GeoTransform); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set GeoTransform on %s: %w", path, err)
	}
	srs, err := geometry.NewSpatialRef(proj)
	if err != nil {
		ds.Close()
		return err
	}
	defer srs.Close()
	if err := ds.SetSpatialRef(srs); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set spatial reference on %s: %w", path, err)
	}

	for i, g := range grids {
		if err := ds.Bands()[i].Write(0, 0, g.Pixels, g.Width, g.Height); err != nil {
			ds.Close()
			return fmt.Errorf("failed to write band %d of %s: %w", i+1, path, err)
		}
	}
	return ds.Close()
}
