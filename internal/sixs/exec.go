package sixs

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clearsat/atmcorr/internal/logging"
	"github.com/clearsat/atmcorr/internal/properties"
)

// atmosCorrRadiance is the radiance level the model inverts from when
// deriving the correction coefficients.
const atmosCorrRadiance = 200.0

// ExecRunner shells out to the configured 6S driver executable. The driver
// prints one "key value" pair per line; coef_xa, coef_xb and coef_xc are
// mandatory, the three irradiance components optional.
type ExecRunner struct {
	Bin string
	log zerolog.Logger
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{Bin: properties.SixSBin(), log: logging.Component("sixs")}
}

func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Coefficients, error) {
	if r.Bin == "" {
		return Coefficients{}, &RunError{Band: inv.Band.Name, Err: fmt.Errorf("no 6S executable configured")}
	}

	args := buildArgs(inv)
	r.log.Debug().Str("band", inv.Band.Name).Strs("args", args).Msg("running radiative transfer model")

	cmd := exec.CommandContext(ctx, r.Bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return Coefficients{}, &RunError{
			Band:   inv.Band.Name,
			Output: string(out),
			Err:    fmt.Errorf("executing %s: %w", r.Bin, err),
		}
	}

	coeffs, err := parseCoefficients(string(out))
	if err != nil {
		return Coefficients{}, &RunError{Band: inv.Band.Name, Output: string(out), Err: err}
	}
	return coeffs, nil
}

func buildArgs(inv Invocation) []string {
	args := []string{
		"--aerosol", string(inv.Aerosol),
		"--atmosphere", string(inv.Atmosphere),
		"--ground", string(inv.Ground),
		"--month", strconv.Itoa(inv.Geometry.Month),
		"--day", strconv.Itoa(inv.Geometry.Day),
		"--hour", formatFloat(inv.Geometry.GMTDecimalHour),
		"--lat", formatFloat(inv.Geometry.Latitude),
		"--lon", formatFloat(inv.Geometry.Longitude),
		"--altitude", formatFloat(inv.AltitudeKM),
		"--aot", formatFloat(inv.AOT550),
		"--wave-start", formatFloat(inv.Band.Start),
		"--wave-end", formatFloat(inv.Band.End),
		"--radiance", formatFloat(atmosCorrRadiance),
	}
	if inv.UseBRDF {
		args = append(args, "--brdf")
	}
	return args
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseCoefficients reads the labelled driver output. A missing coefficient
// key is a configuration fault, never retriable.
func parseCoefficients(out string) (Coefficients, error) {
	values := map[string]float64{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		values[fields[0]] = v
	}

	var c Coefficients
	var ok bool
	if c.XA, ok = values["coef_xa"]; !ok {
		return Coefficients{}, fmt.Errorf("output missing coef_xa")
	}
	if c.XB, ok = values["coef_xb"]; !ok {
		return Coefficients{}, fmt.Errorf("output missing coef_xb")
	}
	if c.XC, ok = values["coef_xc"]; !ok {
		return Coefficients{}, fmt.Errorf("output missing coef_xc")
	}

	dir, hasDir := values["direct_solar_irradiance"]
	dif, hasDif := values["diffuse_solar_irradiance"]
	env, hasEnv := values["environmental_irradiance"]
	if hasDir && hasDif && hasEnv {
		c.DirectIrradiance = dir
		c.DiffuseIrradiance = dif
		c.EnvironmentIrradiance = env
		c.HasIrradiance = true
	}
	return c, nil
}
