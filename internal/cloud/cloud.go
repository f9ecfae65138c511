// Package cloud derives the cloud and shadow mask for a scene, either by
// decoding the quality band shipped with it or by running an external
// Fmask command over the calibrated products.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clearsat/atmcorr/internal/logging"
	"github.com/clearsat/atmcorr/internal/properties"
	"github.com/clearsat/atmcorr/internal/raster"
	"github.com/clearsat/atmcorr/internal/sensor"
)

// Mask pixel values shared by every mask source.
const (
	MaskClear  = 0.0
	MaskCloud  = 1.0
	MaskShadow = 2.0
)

// Collection 1 BQA words carrying high cloud confidence, and the cloud
// shadow words.
const c1Expression = "(b1 == 752) || (b1 == 756) || (b1 == 760) || (b1 == 764) ? 1 : " +
	"(b1 == 928) || (b1 == 932) || (b1 == 936) || (b1 == 940) || " +
	"(b1 == 960) || (b1 == 964) || (b1 == 968) || (b1 == 972) ? 2 : 0"

// Bit positions within the Collection 2 QA_PIXEL word.
const (
	qaDilatedCloudBit = 1
	qaCloudBit        = 3
	qaCloudShadowBit  = 4
)

// DecodeQA turns a scene quality band into a cloud/shadow mask.
func DecodeQA(qa *raster.Grid, format sensor.QAFormat) (*raster.Grid, error) {
	switch format {
	case sensor.QACollection1:
		return raster.Calc(c1Expression, map[string]*raster.Grid{"b1": qa})
	case sensor.QACollection2:
		return decodeCollection2(qa)
	default:
		return nil, errors.New("only Collection 1 and 2 quality bands can be decoded")
	}
}

func decodeCollection2(qa *raster.Grid) (*raster.Grid, error) {
	return raster.Calc("(DilatedCloud == 1) || (Cloud == 1) ? 1 : (CloudShadow == 1) ? 2 : 0",
		map[string]*raster.Grid{
			"DilatedCloud": bitFlag(qa, qaDilatedCloudBit),
			"Cloud":        bitFlag(qa, qaCloudBit),
			"CloudShadow":  bitFlag(qa, qaCloudShadowBit),
		})
}

// bitFlag unpacks one flag bit of the quality word into a 0/1 grid.
func bitFlag(qa *raster.Grid, bit uint) *raster.Grid {
	out := qa.Like()
	for i, v := range qa.Pixels {
		if int(v)>>bit&1 == 1 {
			out.Pixels[i] = 1
		}
	}
	return out
}

// Coverage is the proportion of valid pixels flagged as cloud or shadow.
func Coverage(mask, valid *raster.Grid) (float64, error) {
	if !mask.SameShape(valid) {
		return 0, errors.New("the mask and valid extent shapes differ")
	}
	total, flagged := 0, 0
	for i, v := range valid.Pixels {
		if v == 0 {
			continue
		}
		total++
		if mask.Pixels[i] == MaskCloud || mask.Pixels[i] == MaskShadow {
			flagged++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(flagged) / float64(total), nil
}

// ApplyMask zeroes every pixel flagged as cloud or shadow. The inputs are
// left untouched.
func ApplyMask(mask *raster.Grid, bands []*raster.Grid) ([]*raster.Grid, error) {
	out := make([]*raster.Grid, len(bands))
	for i, band := range bands {
		if !band.SameShape(mask) {
			return nil, fmt.Errorf("band %d does not match the mask shape", i+1)
		}
		g := band.Clone()
		for j, v := range mask.Pixels {
			if v == MaskCloud || v == MaskShadow {
				g.Pixels[j] = 0
			}
		}
		out[i] = g
	}
	return out, nil
}

// Buffer distances grown around detected clouds and shadows, in metres.
const (
	cloudBufferMetres  = 150.0
	shadowBufferMetres = 300.0
	minCloudSizePixels = 0
)

// FMaskInputs names the calibrated products the external command reads and
// the thermal calibration it needs to recover at-sensor temperature.
type FMaskInputs struct {
	TOAPath      string
	ThermalPath  string
	SaturatePath string
	ValidPath    string
	OutputPath   string

	ScaleFactor  float64
	SolarAzimuth float64
	SolarZenith  float64
	CellSize     float64

	ThermalGain   float64
	ThermalOffset float64
	ThermalK1     float64
	ThermalK2     float64
}

// FMask shells out to the configured Fmask command and reads back the
// class raster it writes.
type FMask struct {
	Bin string
	log zerolog.Logger
}

func NewFMask() *FMask {
	return &FMask{Bin: properties.FMaskBin(), log: logging.Component("cloud")}
}

func (f *FMask) Run(ctx context.Context, in FMaskInputs) (*raster.Grid, error) {
	if f.Bin == "" {
		return nil, errors.New("no fmask command configured")
	}
	if in.CellSize <= 0 {
		return nil, errors.New("a positive cell size is needed to size the cloud buffers")
	}

	args := fmaskArgs(in)
	f.log.Debug().Strs("args", args).Msg("running fmask")

	cmd := exec.CommandContext(ctx, f.Bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("executing %s: %w: %s", f.Bin, err, strings.TrimSpace(string(out)))
	}

	classes, err := raster.ReadBand(in.OutputPath, 1)
	if err != nil {
		return nil, err
	}
	return remapFMaskClasses(classes)
}

func fmaskArgs(in FMaskInputs) []string {
	return []string{
		"--toa", in.TOAPath,
		"--thermal", in.ThermalPath,
		"--saturation", in.SaturatePath,
		"--valid", in.ValidPath,
		"--output", in.OutputPath,
		"--scale", formatFloat(in.ScaleFactor),
		"--sun-azimuth", formatFloat(in.SolarAzimuth),
		"--sun-zenith", formatFloat(in.SolarZenith),
		"--thermal-gain", formatFloat(in.ThermalGain),
		"--thermal-offset", formatFloat(in.ThermalOffset),
		"--k1", formatFloat(in.ThermalK1),
		"--k2", formatFloat(in.ThermalK2),
		"--min-cloud-size", strconv.Itoa(minCloudSizePixels),
		"--cloud-buffer", strconv.Itoa(int(cloudBufferMetres / in.CellSize)),
		"--shadow-buffer", strconv.Itoa(int(shadowBufferMetres / in.CellSize)),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// The command writes the usual Fmask coding: 2 cloud, 3 shadow. Remap to
// the shared mask values.
func remapFMaskClasses(classes *raster.Grid) (*raster.Grid, error) {
	return raster.Calc("(b1 == 2) ? 1 : (b1 == 3) ? 2 : 0", map[string]*raster.Grid{"b1": classes})
}
