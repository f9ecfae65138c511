// Package segment labels connected pixel regions and computes per-segment
// attribute columns, the in-memory equivalent of a labeled raster with an
// attribute table. Column index equals segment id; row 0 is the background
// and stays zero everywhere.
package segment

import (
	"fmt"

	"github.com/clearsat/atmcorr/internal/raster"
)

// Clumps is a labeled raster. Labels run 1..Count, 0 is background.
type Clumps struct {
	Grid  *raster.Grid
	Count int
}

// Column is a per-segment attribute, indexed by segment id.
type Column []float64

// Clump labels 4-connected regions of equal nonzero value in raster-scan
// order of first encounter.
func Clump(mask *raster.Grid) *Clumps {
	labels := mask.Like()
	count := 0
	stack := make([][2]int, 0, 1024)

	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			seed := mask.At(x, y)
			if seed == 0 || labels.At(x, y) != 0 {
				continue
			}
			count++
			label := float64(count)
			labels.Set(x, y, label)
			stack = append(stack[:0], [2]int{x, y})
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for _, n := range [4][2]int{
					{p[0] - 1, p[1]}, {p[0] + 1, p[1]},
					{p[0], p[1] - 1}, {p[0], p[1] + 1},
				} {
					nx, ny := n[0], n[1]
					if nx < 0 || ny < 0 || nx >= mask.Width || ny >= mask.Height {
						continue
					}
					if mask.At(nx, ny) != seed || labels.At(nx, ny) != 0 {
						continue
					}
					labels.Set(nx, ny, label)
					stack = append(stack, [2]int{nx, ny})
				}
			}
		}
	}
	return &Clumps{Grid: labels, Count: count}
}

// Histogram returns the pixel count per segment.
func (c *Clumps) Histogram() Column {
	counts := make(Column, c.Count+1)
	for _, v := range c.Grid.Pixels {
		if v != 0 {
			counts[int(v)]++
		}
	}
	return counts
}

// RemoveSmall reassigns segments under minPixels to the background. Labels
// become sparse; follow with Relabel.
func (c *Clumps) RemoveSmall(minPixels int) {
	counts := c.Histogram()
	for i, v := range c.Grid.Pixels {
		if v != 0 && counts[int(v)] < float64(minPixels) {
			c.Grid.Pixels[i] = 0
		}
	}
}

// Relabel renumbers the surviving segments consecutively from 1, in
// raster-scan order of first encounter.
func (c *Clumps) Relabel() {
	remap := make([]float64, c.Count+1)
	next := 0
	for _, v := range c.Grid.Pixels {
		if v == 0 || remap[int(v)] != 0 {
			continue
		}
		next++
		remap[int(v)] = float64(next)
	}
	for i, v := range c.Grid.Pixels {
		if v != 0 {
			c.Grid.Pixels[i] = remap[int(v)]
		}
	}
	c.Count = next
}

// MeanColumn averages the image over each segment's pixels.
func (c *Clumps) MeanColumn(img *raster.Grid) (Column, error) {
	if !c.Grid.SameShape(img) {
		return nil, fmt.Errorf("segment stats: image shape %dx%d does not match segments %dx%d",
			img.Width, img.Height, c.Grid.Width, c.Grid.Height)
	}
	sums := make([]float64, c.Count+1)
	counts := make([]int, c.Count+1)
	for i, v := range c.Grid.Pixels {
		if v == 0 {
			continue
		}
		sums[int(v)] += img.Pixels[i]
		counts[int(v)]++
	}
	out := make(Column, c.Count+1)
	for id := 1; id <= c.Count; id++ {
		if counts[id] > 0 {
			out[id] = sums[id] / float64(counts[id])
		}
	}
	return out, nil
}

// MinColumn takes the minimum of the image over each segment's pixels.
func (c *Clumps) MinColumn(img *raster.Grid) (Column, error) {
	if !c.Grid.SameShape(img) {
		return nil, fmt.Errorf("segment stats: image shape %dx%d does not match segments %dx%d",
			img.Width, img.Height, c.Grid.Width, c.Grid.Height)
	}
	out := make(Column, c.Count+1)
	seen := make([]bool, c.Count+1)
	for i, v := range c.Grid.Pixels {
		if v == 0 {
			continue
		}
		id := int(v)
		if !seen[id] || img.Pixels[i] < out[id] {
			out[id] = img.Pixels[i]
			seen[id] = true
		}
	}
	return out, nil
}

// SpatialLocation returns each segment's centroid as mean pixel-centre
// eastings and northings.
func (c *Clumps) SpatialLocation() (eastings, northings Column) {
	sumE := make([]float64, c.Count+1)
	sumN := make([]float64, c.Count+1)
	counts := make([]int, c.Count+1)
	for y := 0; y < c.Grid.Height; y++ {
		for x := 0; x < c.Grid.Width; x++ {
			v := c.Grid.At(x, y)
			if v == 0 {
				continue
			}
			e, n := c.Grid.PixelCentre(x, y)
			sumE[int(v)] += e
			sumN[int(v)] += n
			counts[int(v)]++
		}
	}
	eastings = make(Column, c.Count+1)
	northings = make(Column, c.Count+1)
	for id := 1; id <= c.Count; id++ {
		if counts[id] > 0 {
			eastings[id] = sumE[id] / float64(counts[id])
			northings[id] = sumN[id] / float64(counts[id])
		}
	}
	return eastings, northings
}

// SelectOnGrid partitions the scene extent into rows x cols cells and, per
// cell, flags the single selected segment with the lowest metric. Ties keep
// the lowest segment id.
func (c *Clumps) SelectOnGrid(selected, eastings, northings, metric Column, rows, cols int) Column {
	out := make(Column, c.Count+1)
	gt := c.Grid.GeoTransform
	minX := gt[0]
	topY := gt[3]
	cellW := gt[1] * float64(c.Grid.Width) / float64(cols)
	cellH := -gt[5] * float64(c.Grid.Height) / float64(rows)

	winners := make([]int, rows*cols)
	for id := 1; id <= c.Count; id++ {
		if selected[id] == 0 {
			continue
		}
		cx := clampCell(int((eastings[id]-minX)/cellW), cols)
		cy := clampCell(int((topY-northings[id])/cellH), rows)
		cell := cy*cols + cx
		if w := winners[cell]; w == 0 || metric[id] < metric[w] {
			winners[cell] = id
		}
	}
	for _, id := range winners {
		if id != 0 {
			out[id] = 1
		}
	}
	return out
}

func clampCell(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
