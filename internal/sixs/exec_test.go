package sixs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsat/atmcorr/internal/cache"
)

const fullOutput = `model 6sv1.1
coef_xa 0.00472
coef_xb 0.16178
coef_xc 0.11276
direct_solar_irradiance 512.1
diffuse_solar_irradiance 98.2
environmental_irradiance 14.8
`

func TestParseCoefficients(t *testing.T) {
	c, err := parseCoefficients(fullOutput)
	require.NoError(t, err)
	assert.InDelta(t, 0.00472, c.XA, 1e-12)
	assert.InDelta(t, 0.16178, c.XB, 1e-12)
	assert.InDelta(t, 0.11276, c.XC, 1e-12)
	assert.True(t, c.HasIrradiance)
	assert.InDelta(t, 512.1, c.DirectIrradiance, 1e-12)
	assert.InDelta(t, 98.2, c.DiffuseIrradiance, 1e-12)
	assert.InDelta(t, 14.8, c.EnvironmentIrradiance, 1e-12)
}

func TestParseCoefficientsWithoutIrradiance(t *testing.T) {
	c, err := parseCoefficients("coef_xa 1\ncoef_xb 2\ncoef_xc 3\n")
	require.NoError(t, err)
	assert.False(t, c.HasIrradiance)
	assert.Zero(t, c.DirectIrradiance)
}

func TestParseCoefficientsPartialIrradianceIsIgnored(t *testing.T) {
	c, err := parseCoefficients("coef_xa 1\ncoef_xb 2\ncoef_xc 3\ndirect_solar_irradiance 500\n")
	require.NoError(t, err)
	assert.False(t, c.HasIrradiance, "the irradiance components only count as a full set")
}

func TestParseCoefficientsMissingKeyFails(t *testing.T) {
	_, err := parseCoefficients("coef_xa 1\ncoef_xc 3\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coef_xb")
}

func TestParseCoefficientsSkipsNoise(t *testing.T) {
	out := "starting\nnot a pair here at all\ncoef_xa bad\ncoef_xa 7\ncoef_xb 8\ncoef_xc 9\n"
	c, err := parseCoefficients(out)
	require.NoError(t, err)
	assert.Equal(t, 7.0, c.XA)
}

func TestBuildArgs(t *testing.T) {
	inv := Invocation{
		Aerosol:    AerosolContinental,
		Atmosphere: AtmosphereMidlatSummer,
		Ground:     GroundGreenVegetation,
		Geometry:   Geometry{Month: 5, Day: 21, GMTDecimalHour: 10.5, Latitude: 52.1, Longitude: -3.9},
		AltitudeKM: 0.21,
		AOT550:     0.15,
		Band:       Wavelength{Name: "Blue", Start: 0.45, End: 0.52},
	}

	args := buildArgs(inv)
	assert.Contains(t, args, "Continental")
	assert.Contains(t, args, "MidlatitudeSummer")
	assert.Contains(t, args, "0.15")
	assert.Contains(t, args, "0.45")
	assert.NotContains(t, args, "--brdf")

	inv.UseBRDF = true
	assert.Contains(t, buildArgs(inv), "--brdf")
}

func TestRunErrorWhenBinaryMissing(t *testing.T) {
	r := &ExecRunner{Bin: ""}
	_, err := r.Run(context.Background(), Invocation{Band: Wavelength{Name: "Blue"}})
	require.Error(t, err)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "Blue", runErr.Band)
}

type countingRunner struct {
	calls  int
	result Coefficients
}

func (c *countingRunner) Run(ctx context.Context, inv Invocation) (Coefficients, error) {
	c.calls++
	return c.result, nil
}

func TestCachingRunnerMemoizes(t *testing.T) {
	inner := &countingRunner{result: Coefficients{XA: 1.5, XB: 2.5, XC: 3.5}}
	runner := NewCachingRunnerWith(inner, cache.NewFileCacheAt[Coefficients](t.TempDir()))

	inv := Invocation{
		Aerosol:    AerosolMaritime,
		Atmosphere: AtmosphereTropical,
		Ground:     GroundSand,
		AltitudeKM: 1.2,
		AOT550:     0.25,
		Band:       Wavelength{Name: "Red", Start: 0.63, End: 0.69},
	}

	first, err := runner.Run(context.Background(), inv)
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), inv)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "second call must come from the cache")

	inv.AOT550 = 0.30
	_, err = runner.Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "a different AOD is a different key")
}

func TestCachingRunnerDoesNotCacheFailures(t *testing.T) {
	failing := RunnerFunc(func(ctx context.Context, inv Invocation) (Coefficients, error) {
		return Coefficients{}, &RunError{Band: inv.Band.Name, Err: assert.AnError}
	})
	runner := NewCachingRunnerWith(failing, cache.NewFileCacheAt[Coefficients](t.TempDir()))

	_, err := runner.Run(context.Background(), Invocation{Band: Wavelength{Name: "Blue"}})
	require.Error(t, err)
	_, err = runner.Run(context.Background(), Invocation{Band: Wavelength{Name: "Blue"}})
	require.Error(t, err, "failures are never served from the cache")
}
