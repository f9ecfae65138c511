package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/clearsat/atmcorr/internal/sensor"
)

// BaseName derives the scene's output file stem from its identity:
// sensor, acquisition date and the centre coordinate rounded to a tenth
// of a degree, plus the row/path (Landsat) or tile (RapidEye) reference.
// Every product file name is this stem plus a product suffix.
func BaseName(meta *sensor.SceneMetadata) string {
	ns := "n"
	if meta.LatCentre < 0 {
		ns = "s"
	}
	ew := "e"
	if meta.LonCentre < 0 {
		ew = "w"
	}
	name := fmt.Sprintf("%s_%s_lat%s%slon%s%s",
		meta.Sensor, meta.Acquired.Format("20060102"),
		ns, coordToken(meta.LatCentre), ew, coordToken(meta.LonCentre))

	if meta.TileID != "" {
		return name + "_tid" + meta.TileID
	}
	return fmt.Sprintf("%s_r%dp%d", name, meta.Row, meta.Path)
}

// coordToken renders a coordinate rounded to one decimal with the sign
// and separator stripped, so -23.47 becomes "235".
func coordToken(v float64) string {
	s := strconv.FormatFloat(math.Abs(math.Round(v*10)/10), 'f', 1, 64)
	return strings.ReplaceAll(s, ".", "")
}
