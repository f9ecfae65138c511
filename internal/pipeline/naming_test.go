package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clearsat/atmcorr/internal/sensor"
)

func TestBaseNameLandsat(t *testing.T) {
	meta := &sensor.SceneMetadata{
		Sensor:    sensor.Landsat5TM,
		Acquired:  time.Date(2011, 7, 24, 23, 46, 0, 0, time.UTC),
		LatCentre: -23.47,
		LonCentre: 150.51,
		Row:       76,
		Path:      91,
	}
	assert.Equal(t, "LS5TM_20110724_lats235lone1505_r76p91", BaseName(meta))
}

func TestBaseNameRapidEyeTile(t *testing.T) {
	meta := &sensor.SceneMetadata{
		Sensor:    sensor.RapidEye,
		Acquired:  time.Date(2013, 3, 2, 11, 10, 0, 0, time.UTC),
		LatCentre: 51.04,
		LonCentre: -0.64,
		TileID:    "3363308",
	}
	assert.Equal(t, "RapidEye_20130302_latn510lonw06_tid3363308", BaseName(meta))
}

func TestBaseNameEquatorIsNorth(t *testing.T) {
	meta := &sensor.SceneMetadata{
		Sensor:   sensor.Landsat7ETM,
		Acquired: time.Date(2002, 1, 9, 9, 30, 0, 0, time.UTC),
		Row:      60,
		Path:     172,
	}
	assert.Equal(t, "LS7_20020109_latn00lone00_r60p172", BaseName(meta))
}

func TestCoordTokenRounding(t *testing.T) {
	assert.Equal(t, "235", coordToken(-23.47))
	assert.Equal(t, "235", coordToken(23.47))
	assert.Equal(t, "00", coordToken(0))
	assert.Equal(t, "1801", coordToken(180.06))
}
