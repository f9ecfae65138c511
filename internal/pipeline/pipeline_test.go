package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsat/atmcorr/internal/aod"
	"github.com/clearsat/atmcorr/internal/raster"
	"github.com/clearsat/atmcorr/internal/sensor"
	"github.com/clearsat/atmcorr/internal/sixs"
)

func pixelGrid(values ...float64) *raster.Grid {
	g := raster.NewGrid(len(values), 1, [6]float64{0, 30, 0, 0, 0, -30})
	copy(g.Pixels, values)
	return g
}

func TestValidMaskRequiresAllBands(t *testing.T) {
	b1 := pixelGrid(4, 0, 7, 9)
	b2 := pixelGrid(5, 6, 0, 1)
	mask := validMask([]*raster.Grid{b1, b2})
	assert.Equal(t, []float64{1, 0, 0, 1}, mask.Pixels)
}

func TestMaskedRange(t *testing.T) {
	g := pixelGrid(120, 415, 980, -12)
	valid := pixelGrid(1, 1, 0, 1)

	lo, hi, ok := maskedRange(g, valid)
	require.True(t, ok)
	assert.Equal(t, -12.0, lo)
	assert.Equal(t, 415.0, hi)
}

func TestMaskedRangeEmptyExtent(t *testing.T) {
	_, _, ok := maskedRange(pixelGrid(1, 2), pixelGrid(0, 0))
	assert.False(t, ok)
}

func TestPositiveRangeSkipsNonPositive(t *testing.T) {
	lo, hi, ok := positiveRange(pixelGrid(0, 0.3, -1, 0.95))
	require.True(t, ok)
	assert.InDelta(t, 0.3, lo, 1e-12)
	assert.InDelta(t, 0.95, hi, 1e-12)

	_, _, ok = positiveRange(pixelGrid(0, -2))
	assert.False(t, ok)
}

func TestMeanPositive(t *testing.T) {
	mean, ok := meanPositive(pixelGrid(0.2, 0.4, 0, -3))
	require.True(t, ok)
	assert.InDelta(t, 0.3, mean, 1e-12)

	_, ok = meanPositive(pixelGrid(0, 0))
	assert.False(t, ok)
}

func TestSnapElevationWidensToSteps(t *testing.T) {
	lo, hi := snapElevation(123, 1742)
	assert.Equal(t, 100.0, lo)
	assert.Equal(t, 1800.0, hi)

	lo, hi = snapElevation(-35, 40)
	assert.Equal(t, -100.0, lo)
	assert.Equal(t, 100.0, hi)
}

func TestSnapAOTWidensAndClampsFloor(t *testing.T) {
	lo, hi := snapAOT(0.12, 0.33)
	assert.InDelta(t, 0.10, lo, 1e-12)
	assert.InDelta(t, 0.35, hi, 1e-12)

	lo, _ = snapAOT(0.004, 0.2)
	assert.InDelta(t, 0.05, lo, 1e-12)
}

func TestVisibilityToAOD(t *testing.T) {
	assert.InDelta(t, 0.1836025, VisibilityToAOD(40), 1e-7)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 0.05, o.MinAOT)
	assert.Equal(t, 0.5, o.MaxAOT)
	assert.Equal(t, 0.1, o.LowAOT)
	assert.Equal(t, 0.4, o.UpAOT)
	assert.Equal(t, 20.0, o.DOSOutRefl)
	assert.Equal(t, CloudMethodFMask, o.CloudMethod)
	assert.Equal(t, sixs.AerosolContinental, o.Aerosol)
	assert.Equal(t, sixs.AtmosphereMidlatSummer, o.Atmosphere)
	assert.Equal(t, sixs.GroundGreenVegetation, o.Ground)
	assert.False(t, o.UseBRDF)
	assert.NotEmpty(t, o.ScratchDir)
}

func TestOptionsBRDFGroundImpliesBRDF(t *testing.T) {
	o := Options{Ground: sixs.GroundBRDFHapke}.withDefaults()
	assert.True(t, o.UseBRDF)
}

func TestRunRejectsMissingInputs(t *testing.T) {
	p := New()

	_, err := p.Run(context.Background(), Options{OutDir: "out", Products: []Product{RAD}})
	assert.EqualError(t, err, "a scene header is required")

	_, err = p.Run(context.Background(), Options{HeaderPath: "header", Products: []Product{RAD}})
	assert.EqualError(t, err, "an output directory is required")
}

func TestRunAerosolNeedsElevationModel(t *testing.T) {
	p := New()
	_, err := p.Run(context.Background(), Options{
		Sensor:     sensor.Landsat5TM,
		HeaderPath: "header",
		OutDir:     "out",
		Products:   []Product{DDVAOT},
	})
	assert.EqualError(t, err, "the aerosol products need an elevation model")
}

func TestWriteSegmentsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segments.csv")
	segs := []aod.Segment{
		{ID: 1, Pixels: 412, MeanElev: 230, BlueRad: 41.5, Target: 0.013, Easting: 501500, Northing: 7400500, Selected: true},
		{ID: 2, Pixels: 96, MeanElev: 180, BlueRad: 39.2, Target: 0.011, Easting: 502900, Northing: 7401100, Selected: false},
	}
	require.NoError(t, writeSegments(path, segs))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "segment")
	assert.Contains(t, text, "mean_blue_radiance")
	assert.Contains(t, text, "target_reflectance")
	assert.Contains(t, text, "41.5")
}
