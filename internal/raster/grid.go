// Package raster holds single-band pixel grids in memory and the GDAL-backed
// I/O that moves them to and from GeoTIFF files. Processing code operates on
// Grids so it stays testable without a GDAL installation.
package raster

// Grid is one band of pixels with its georeferencing. Pixels are stored
// row-major as float64 regardless of the on-disk data type.
type Grid struct {
	Width  int
	Height int
	// GeoTransform is the GDAL affine transform: origin, pixel size, skew.
	GeoTransform [6]float64
	Pixels       []float64
}

// NewGrid allocates a zero-filled grid.
func NewGrid(width, height int, geoTransform [6]float64) *Grid {
	return &Grid{
		Width:        width,
		Height:       height,
		GeoTransform: geoTransform,
		Pixels:       make([]float64, width*height),
	}
}

// Like allocates a zero-filled grid with the same shape and georeferencing.
func (g *Grid) Like() *Grid {
	return NewGrid(g.Width, g.Height, g.GeoTransform)
}

// Clone copies the grid and its pixels.
func (g *Grid) Clone() *Grid {
	out := g.Like()
	copy(out.Pixels, g.Pixels)
	return out
}

func (g *Grid) At(x, y int) float64 {
	return g.Pixels[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v float64) {
	g.Pixels[y*g.Width+x] = v
}

// SameShape reports whether two grids align pixel for pixel.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

// PixelCentre maps a pixel index to the map coordinates of its centre.
func (g *Grid) PixelCentre(x, y int) (float64, float64) {
	fx, fy := float64(x)+0.5, float64(y)+0.5
	gt := g.GeoTransform
	return gt[0] + fx*gt[1] + fy*gt[2], gt[3] + fx*gt[4] + fy*gt[5]
}

// CellSize is the ground size of one pixel along x.
func (g *Grid) CellSize() float64 {
	s := g.GeoTransform[1]
	if s < 0 {
		return -s
	}
	return s
}
