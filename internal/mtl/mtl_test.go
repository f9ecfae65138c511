package mtl

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHeader = `GROUP = L1_METADATA_FILE
  GROUP = PRODUCT_METADATA
    SPACECRAFT_ID = "LANDSAT_5"
    SENSOR_ID = "TM"
    DATE_ACQUIRED = 2011-05-21
    SCENE_CENTER_TIME = "10:05:27.0150000Z"
    FILE_NAME_BAND_1 = "LT52040232011141KIS00_B1.TIF"
    CORNER_UL_PROJECTION_X_PRODUCT = 433200.000
  END_GROUP = PRODUCT_METADATA
  GROUP = PROJECTION_PARAMETERS
    UTM_ZONE = 30
  END_GROUP = PROJECTION_PARAMETERS
END_GROUP = L1_METADATA_FILE
END
`

func TestParseStoresKeyValues(t *testing.T) {
	h, err := Parse(strings.NewReader(sampleHeader))
	require.NoError(t, err)

	v, err := h.Lookup("SPACECRAFT_ID")
	require.NoError(t, err)
	assert.Equal(t, "LANDSAT_5", v)

	v, err = h.Lookup("FILE_NAME_BAND_1")
	require.NoError(t, err)
	assert.Equal(t, "LT52040232011141KIS00_B1.TIF", v, "quotes should be stripped")
}

func TestParseKeepsGroupMarkers(t *testing.T) {
	h, err := Parse(strings.NewReader(sampleHeader))
	require.NoError(t, err)

	v, ok := h.Get("GROUP")
	assert.True(t, ok)
	assert.Equal(t, "PROJECTION_PARAMETERS", v, "last GROUP marker wins")

	v, ok = h.Get("END_GROUP")
	assert.True(t, ok)
	assert.Equal(t, "L1_METADATA_FILE", v)
}

func TestParseSkipsMalformedLines(t *testing.T) {
	h, err := Parse(strings.NewReader("A = B = C\nVALID = yes\n\nEND\n"))
	require.NoError(t, err)

	_, ok := h.Get("A")
	assert.False(t, ok, "lines with more than one separator are dropped")

	v, err := h.Lookup("VALID")
	require.NoError(t, err)
	assert.Equal(t, "yes", v)

	_, ok = h.Get("END")
	assert.False(t, ok)
}

func TestLookupCandidateOrder(t *testing.T) {
	h, err := Parse(strings.NewReader("DATE_ACQUIRED = 2011-05-21\nACQUISITION_DATE = 1999-01-01\n"))
	require.NoError(t, err)

	v, err := h.Lookup("DATE_ACQUIRED", "ACQUISITION_DATE")
	require.NoError(t, err)
	assert.Equal(t, "2011-05-21", v, "earlier candidates take precedence")

	h, err = Parse(strings.NewReader("ACQUISITION_DATE = 1999-01-01\n"))
	require.NoError(t, err)
	v, err = h.Lookup("DATE_ACQUIRED", "ACQUISITION_DATE")
	require.NoError(t, err)
	assert.Equal(t, "1999-01-01", v, "falls back to later candidates")
}

func TestLookupMissingReportsAllCandidates(t *testing.T) {
	h, err := Parse(strings.NewReader("OTHER = 1\n"))
	require.NoError(t, err)

	_, err = h.Lookup("DATE_ACQUIRED", "ACQUISITION_DATE")
	require.Error(t, err)

	var missing *MissingKeyError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"DATE_ACQUIRED", "ACQUISITION_DATE"}, missing.Candidates)
	assert.Contains(t, err.Error(), "DATE_ACQUIRED, ACQUISITION_DATE")
}

func TestLookupFloat(t *testing.T) {
	h, err := Parse(strings.NewReader("SUN_ELEVATION = 57.25\nBAD = abc\n"))
	require.NoError(t, err)

	f, err := h.LookupFloat("SUN_ELEVATION")
	require.NoError(t, err)
	assert.InDelta(t, 57.25, f, 1e-9)

	_, err = h.LookupFloat("BAD")
	assert.Error(t, err)
}

func TestLookupInt(t *testing.T) {
	h, err := Parse(strings.NewReader("WRS_ROW = 23\nWRS_PATH = 204.0\n"))
	require.NoError(t, err)

	row, err := h.LookupInt("WRS_ROW", "STARTING_ROW")
	require.NoError(t, err)
	assert.Equal(t, 23, row)

	path, err := h.LookupInt("WRS_PATH")
	require.NoError(t, err)
	assert.Equal(t, 204, path, "float-typed values truncate")
}

func TestFloatOr(t *testing.T) {
	h, err := Parse(strings.NewReader("QUANTIZE_CAL_MAX_BAND_1 = 255.0\nBROKEN = x\n"))
	require.NoError(t, err)

	f, err := h.FloatOr(1.0, "QUANTIZE_CAL_MIN_BAND_1", "QCALMIN_BAND1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, f, "missing keys take the fallback")

	f, err = h.FloatOr(1.0, "QUANTIZE_CAL_MAX_BAND_1")
	require.NoError(t, err)
	assert.Equal(t, 255.0, f)

	_, err = h.FloatOr(1.0, "BROKEN")
	assert.Error(t, err, "present but malformed values do not fall back")
}
