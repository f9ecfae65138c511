package atmos

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsat/atmcorr/internal/raster"
	"github.com/clearsat/atmcorr/internal/sixs"
)

var utm30m = [6]float64{433200, 30, 0, 5809500, 0, -30}

func gridFrom(t *testing.T, pixels []float64) *raster.Grid {
	t.Helper()
	g := raster.NewGrid(len(pixels), 1, utm30m)
	copy(g.Pixels, pixels)
	return g
}

// recordingRunner captures every invocation and answers from a fixed
// coefficient table keyed by band name.
type recordingRunner struct {
	mu     sync.Mutex
	calls  []sixs.Invocation
	coeffs map[string]sixs.Coefficients
	fail   map[string]error
}

func (r *recordingRunner) Run(_ context.Context, inv sixs.Invocation) (sixs.Coefficients, error) {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	r.mu.Unlock()
	if err, ok := r.fail[inv.Band.Name]; ok {
		return sixs.Coefficients{}, err
	}
	return r.coeffs[inv.Band.Name], nil
}

func testBands() []sixs.Wavelength {
	return []sixs.Wavelength{
		{Name: "Blue", Start: 0.45, End: 0.52},
		{Name: "Green", Start: 0.52, End: 0.60},
		{Name: "Red", Start: 0.63, End: 0.69},
	}
}

func TestCoefficientsRunsEveryBand(t *testing.T) {
	runner := &recordingRunner{coeffs: map[string]sixs.Coefficients{
		"Blue":  {XA: 1},
		"Green": {XA: 2},
		"Red":   {XA: 3},
	}}
	model := NewModel(runner, sixs.Geometry{Month: 5, Day: 21, Latitude: 51.3}, testBands())
	model.Aerosol = sixs.AerosolContinental
	model.Atmosphere = sixs.AtmosphereMidlatSummer
	model.Ground = sixs.GroundGreenVegetation

	coeffs, err := model.Coefficients(context.Background(), 0.25, 0.3)
	require.NoError(t, err)

	require.Len(t, coeffs, 3)
	assert.Equal(t, 1.0, coeffs[0].XA)
	assert.Equal(t, 2.0, coeffs[1].XA)
	assert.Equal(t, 3.0, coeffs[2].XA)

	require.Len(t, runner.calls, 3)
	for _, inv := range runner.calls {
		assert.Equal(t, 0.25, inv.AltitudeKM)
		assert.Equal(t, 0.3, inv.AOT550)
		assert.Equal(t, sixs.AerosolContinental, inv.Aerosol)
		assert.Equal(t, sixs.AtmosphereMidlatSummer, inv.Atmosphere)
		assert.Equal(t, sixs.GroundGreenVegetation, inv.Ground)
		assert.Equal(t, 5, inv.Geometry.Month)
	}
}

func TestCoefficientsPropagatesRunnerFailure(t *testing.T) {
	boom := errors.New("model blew up")
	runner := &recordingRunner{fail: map[string]error{"Green": boom}}
	model := NewModel(runner, sixs.Geometry{}, testBands())

	_, err := model.Coefficients(context.Background(), 0, 0.1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCoefficientsValidatesConfiguration(t *testing.T) {
	_, err := NewModel(nil, sixs.Geometry{}, testBands()).Coefficients(context.Background(), 0, 0.1)
	assert.Error(t, err)

	_, err = NewModel(&recordingRunner{}, sixs.Geometry{}, nil).Coefficients(context.Background(), 0, 0.1)
	assert.Error(t, err)
}

func TestBuildElevationLUTCoversRange(t *testing.T) {
	runner := &recordingRunner{coeffs: map[string]sixs.Coefficients{"Blue": {XA: 1}}}
	model := NewModel(runner, sixs.Geometry{}, testBands()[:1])

	lut, err := model.BuildElevationLUT(context.Background(), 0, 950, 0.2)
	require.NoError(t, err)

	require.Len(t, lut, 11)
	for i, entry := range lut {
		assert.Equal(t, float64(i)*100, entry.Elevation)
		require.Len(t, entry.Bands, 1)
	}
	// Altitudes are handed to the model in kilometres.
	assert.Equal(t, 0.0, runner.calls[0].AltitudeKM)
	assert.InDelta(t, 1.0, runner.calls[len(runner.calls)-1].AltitudeKM, 1e-9)
}

func TestBuildElevationLUTSingleStep(t *testing.T) {
	runner := &recordingRunner{coeffs: map[string]sixs.Coefficients{"Blue": {}}}
	model := NewModel(runner, sixs.Geometry{}, testBands()[:1])

	lut, err := model.BuildElevationLUT(context.Background(), 120, 120, 0.2)
	require.NoError(t, err)
	require.Len(t, lut, 1)
	assert.Equal(t, 120.0, lut[0].Elevation)
}

func TestBuildElevationLUTReversedRange(t *testing.T) {
	model := NewModel(&recordingRunner{}, sixs.Geometry{}, testBands()[:1])
	_, err := model.BuildElevationLUT(context.Background(), 500, 100, 0.2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reversed")
}

func TestBuildElevationAOTLUTPadsTopOfRange(t *testing.T) {
	runner := &recordingRunner{coeffs: map[string]sixs.Coefficients{"Blue": {}}}
	model := NewModel(runner, sixs.Geometry{}, testBands()[:1])

	lut, err := model.BuildElevationAOTLUT(context.Background(), 0, 0, 0.05, 0.25)
	require.NoError(t, err)

	require.Len(t, lut, 1)
	require.Len(t, lut[0].AOT, 6)
	assert.InDelta(t, 0.05, lut[0].AOT[0].AOT, 1e-9)
	assert.InDelta(t, 0.30, lut[0].AOT[5].AOT, 1e-9)
}

func TestNearestElevation(t *testing.T) {
	lut := ElevationLUT{
		{Elevation: 0, Bands: []sixs.Coefficients{{XA: 1}}},
		{Elevation: 100, Bands: []sixs.Coefficients{{XA: 2}}},
		{Elevation: 200, Bands: []sixs.Coefficients{{XA: 3}}},
	}

	entry, err := lut.Nearest(49)
	require.NoError(t, err)
	assert.Equal(t, 0.0, entry.Elevation)

	// The exact midpoint resolves to the lower entry.
	entry, err = lut.Nearest(50)
	require.NoError(t, err)
	assert.Equal(t, 0.0, entry.Elevation)

	entry, err = lut.Nearest(51)
	require.NoError(t, err)
	assert.Equal(t, 100.0, entry.Elevation)

	entry, err = lut.Nearest(10000)
	require.NoError(t, err)
	assert.Equal(t, 200.0, entry.Elevation)

	_, err = ElevationLUT{}.Nearest(0)
	assert.Error(t, err)
}

func TestNearestElevationAOT(t *testing.T) {
	lut := ElevationAOTLUT{
		{Elevation: 0, AOT: []AOTEntry{
			{AOT: 0.05, Bands: []sixs.Coefficients{{XA: 1}}},
			{AOT: 0.15, Bands: []sixs.Coefficients{{XA: 2}}},
		}},
		{Elevation: 100, AOT: []AOTEntry{
			{AOT: 0.05, Bands: []sixs.Coefficients{{XA: 3}}},
			{AOT: 0.15, Bands: []sixs.Coefficients{{XA: 4}}},
		}},
	}

	coeffs, err := lut.Nearest(10, 0.06)
	require.NoError(t, err)
	assert.Equal(t, 1.0, coeffs[0].XA)

	coeffs, err = lut.Nearest(90, 0.14)
	require.NoError(t, err)
	assert.Equal(t, 4.0, coeffs[0].XA)

	_, err = ElevationAOTLUT{}.Nearest(0, 0.1)
	assert.Error(t, err)
}

func TestInvertReflectanceRoundTrip(t *testing.T) {
	c := sixs.Coefficients{XA: 0.002, XB: 0.1, XC: 0.5}
	// Radiance solved by hand so the inversion lands on 0.25 exactly.
	assert.InDelta(t, 0.25, InvertReflectance(192.85714285714283, c), 1e-6)
}

func TestApplySingle(t *testing.T) {
	rad := gridFrom(t, []float64{0, 100, 10})
	coeffs := []sixs.Coefficients{{XA: 0.01, XB: 0.2, XC: 1.5}}

	sref, err := ApplySingle([]*raster.Grid{rad}, coeffs)
	require.NoError(t, err)
	require.Len(t, sref, 1)

	assert.Equal(t, 0.0, sref[0].Pixels[0], "nodata must stay zero")
	assert.Equal(t, 364.0, sref[0].Pixels[1])
	assert.Equal(t, 0.0, sref[0].Pixels[2], "negative reflectance clamps to zero")
}

func TestApplySingleCapsAtUint16(t *testing.T) {
	sref, err := ApplySingle([]*raster.Grid{gridFrom(t, []float64{1e5})}, []sixs.Coefficients{{XA: 0.01}})
	require.NoError(t, err)
	assert.Equal(t, 65535.0, sref[0].Pixels[0])
}

func TestApplySingleValidatesStack(t *testing.T) {
	_, err := ApplySingle(nil, nil)
	assert.Error(t, err)

	_, err = ApplySingle([]*raster.Grid{gridFrom(t, []float64{1})}, nil)
	assert.Error(t, err)

	a := gridFrom(t, []float64{1, 2})
	b := gridFrom(t, []float64{1})
	_, err = ApplySingle([]*raster.Grid{a, b}, []sixs.Coefficients{{}, {}})
	assert.Error(t, err)
}

func TestApplyElevationLUT(t *testing.T) {
	rad := gridFrom(t, []float64{100, 100})
	dem := gridFrom(t, []float64{0, 150})
	lut := ElevationLUT{
		{Elevation: 0, Bands: []sixs.Coefficients{{XA: 0.01, XB: 0.2, XC: 1.5}}},
		{Elevation: 200, Bands: []sixs.Coefficients{{XA: 0.02, XB: 0.2, XC: 1.5}}},
	}

	sref, err := ApplyElevationLUT([]*raster.Grid{rad}, dem, lut)
	require.NoError(t, err)
	assert.Equal(t, 364.0, sref[0].Pixels[0])
	assert.Equal(t, 486.0, sref[0].Pixels[1])
}

func TestApplyElevationAOTLUT(t *testing.T) {
	rad := gridFrom(t, []float64{100, 100})
	dem := gridFrom(t, []float64{0, 0})
	aot := gridFrom(t, []float64{0.06, 0.14})
	lut := ElevationAOTLUT{
		{Elevation: 0, AOT: []AOTEntry{
			{AOT: 0.05, Bands: []sixs.Coefficients{{XA: 0.01, XB: 0.2, XC: 1.5}}},
			{AOT: 0.15, Bands: []sixs.Coefficients{{XA: 0.02, XB: 0.2, XC: 1.5}}},
		}},
	}

	sref, err := ApplyElevationAOTLUT([]*raster.Grid{rad}, dem, aot, lut)
	require.NoError(t, err)
	assert.Equal(t, 364.0, sref[0].Pixels[0])
	assert.Equal(t, 486.0, sref[0].Pixels[1])
}
