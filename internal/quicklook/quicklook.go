// Package quicklook renders browse images of derived rasters: a colour
// ramp for continuous surfaces and class colours for masks.
package quicklook

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"github.com/clearsat/atmcorr/internal/raster"
)

const legendHeight = 40

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

// valueToColor maps [0,1] through a blue, green, red ramp.
func valueToColor(norm float64) color.RGBA {
	var r, g, b uint8
	if norm <= 0.5 {
		ratio := norm / 0.5
		r = 0
		g = uint8(255 * ratio)
		b = uint8(255 * (1 - ratio))
	} else {
		ratio := (norm - 0.5) / 0.5
		r = uint8(255 * ratio)
		g = uint8(255 * (1 - ratio))
		b = 0
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// ValueRange finds the lowest and highest nonzero value of the grid, for
// ramp scaling. A grid with no nonzero pixels reports (0, 0).
func ValueRange(g *raster.Grid) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range g.Pixels {
		if v == 0 {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// Render writes a colour-ramped quicklook of the grid with a legend strip
// underneath. Zero pixels are nodata and drawn black.
func Render(g *raster.Grid, lo, hi float64, path string) error {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.At(x, y)
			if v == 0 {
				img.Set(x, y, color.Black)
				continue
			}
			img.Set(x, y, valueToColor(normalize(v, lo, hi)))
		}
	}

	dc := gg.NewContext(g.Width, g.Height+legendHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(img, 0, 0)
	drawRampLegend(dc, g.Width, g.Height, lo, hi)
	return dc.SavePNG(path)
}

func drawRampLegend(dc *gg.Context, width, top int, lo, hi float64) {
	barY := float64(top) + 6
	barW := float64(width) - 20
	if barW < 1 {
		barW = 1
	}
	for i := 0; i < int(barW); i++ {
		c := valueToColor(float64(i) / barW)
		dc.SetRGB(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255)
		dc.DrawRectangle(10+float64(i), barY, 1, 12)
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("%.2f", lo), 10, barY+22, 0, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.2f", hi), 10+barW, barY+22, 1, 0.5)
}

// Mask quicklook colours follow the classified product convention: clouds
// blue, shadows cyan, background black.
var maskClasses = []struct {
	value float64
	name  string
	color color.RGBA
}{
	{1, "Clouds", color.RGBA{B: 255, A: 255}},
	{2, "Shadows", color.RGBA{G: 255, B: 255, A: 255}},
}

// RenderMask writes a class-coloured quicklook of a cloud mask with a
// colour-box legend underneath.
func RenderMask(mask *raster.Grid, path string) error {
	img := image.NewRGBA(image.Rect(0, 0, mask.Width, mask.Height))
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			img.Set(x, y, maskColor(mask.At(x, y)))
		}
	}

	dc := gg.NewContext(mask.Width, mask.Height+legendHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(img, 0, 0)

	for i, class := range maskClasses {
		x := float64(10 + i*90)
		y := float64(mask.Height + 10)

		c := class.color
		dc.SetRGB(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255)
		dc.DrawRectangle(x, y, 15, 15)
		dc.Fill()

		dc.SetRGB(0, 0, 0)
		dc.DrawRectangle(x, y, 15, 15)
		dc.SetLineWidth(1)
		dc.Stroke()
		dc.DrawStringAnchored(class.name, x+20, y+7, 0, 0.5)
	}

	return dc.SavePNG(path)
}

func maskColor(v float64) color.RGBA {
	for _, class := range maskClasses {
		if class.value == v {
			return class.color
		}
	}
	return color.RGBA{A: 255}
}
