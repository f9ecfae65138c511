package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsat/atmcorr/internal/sensor"
)

func TestParseProductNormalisesCase(t *testing.T) {
	p, err := ParseProduct(" ddvaot ")
	require.NoError(t, err)
	assert.Equal(t, DDVAOT, p)
}

func TestParseProductUnknown(t *testing.T) {
	_, err := ParseProduct("NDVI")
	assert.EqualError(t, err, `unknown product "NDVI"`)
}

func TestParseProductsPropagatesFailure(t *testing.T) {
	products, err := ParseProducts([]string{"rad", "toa"})
	require.NoError(t, err)
	assert.Equal(t, []Product{RAD, TOA}, products)

	_, err = ParseProducts([]string{"rad", "bogus"})
	assert.EqualError(t, err, `unknown product "bogus"`)
}

func TestResolveReflectancePullsRadiance(t *testing.T) {
	set, err := Resolve(sensor.Landsat5TM, []Product{TOA})
	require.NoError(t, err)
	assert.Equal(t, []Product{RAD, TOA}, set.List())
}

func TestResolveCloudsPullsMaskInputs(t *testing.T) {
	set, err := Resolve(sensor.Landsat7ETM, []Product{CLOUDS})
	require.NoError(t, err)
	assert.Equal(t, []Product{SATURATE, RAD, THERMAL, TOA, CLOUDS}, set.List())
}

func TestResolveAerosolPullsBothStacks(t *testing.T) {
	set, err := Resolve(sensor.Landsat5TM, []Product{DDVAOT})
	require.NoError(t, err)
	assert.Equal(t, []Product{RAD, TOA, DDVAOT}, set.List())
}

func TestResolveSurfaceReflectancePullsRadianceOnly(t *testing.T) {
	set, err := Resolve(sensor.RapidEye, []Product{SREF})
	require.NoError(t, err)
	assert.Equal(t, []Product{RAD, SREF}, set.List())
}

func TestResolveThermalNeedsThermalBand(t *testing.T) {
	_, err := Resolve(sensor.RapidEye, []Product{THERMAL})
	assert.EqualError(t, err, "sensor RapidEye does not have a thermal band, required for the THERMAL product")

	_, err = Resolve(sensor.Landsat2MSS, []Product{CLOUDS})
	assert.EqualError(t, err, "sensor LS2MSS does not have a thermal band, required for the CLOUDS product")
}

func TestResolveAerosolUnsupportedSensor(t *testing.T) {
	for _, p := range []Product{DDVAOT, DOSAOT, DOSAOTSGL} {
		_, err := Resolve(sensor.Landsat2MSS, []Product{p})
		assert.EqualError(t, err, "the "+string(p)+" product is not supported for sensor LS2MSS")
	}
}

func TestResolveRejectsBothAerosolSurfaces(t *testing.T) {
	_, err := Resolve(sensor.Landsat5TM, []Product{DDVAOT, DOSAOT})
	assert.EqualError(t, err, "the DDVAOT and DOSAOT products cannot be requested together, choose one or the other")
}

func TestResolveEmptyRequest(t *testing.T) {
	_, err := Resolve(sensor.Landsat5TM, nil)
	assert.EqualError(t, err, "no products requested")
}

func TestProductSetNeeds(t *testing.T) {
	set, err := Resolve(sensor.Landsat5TM, []Product{SREF})
	require.NoError(t, err)
	assert.True(t, set.NeedsModel())
	assert.False(t, set.NeedsDEM())

	set, err = Resolve(sensor.Landsat5TM, []Product{DOSAOT})
	require.NoError(t, err)
	assert.True(t, set.NeedsModel())
	assert.True(t, set.NeedsDEM())

	set, err = Resolve(sensor.Landsat5TM, []Product{TOA, METADATA})
	require.NoError(t, err)
	assert.False(t, set.NeedsModel())
	assert.False(t, set.NeedsDEM())
}
