// Package atmos computes atmospheric correction coefficients through a
// radiative transfer runner and applies them to radiance imagery. One run
// yields the inversion terms for a single band at a single surface
// elevation and aerosol depth; the lookup tables assemble runs over an
// elevation (by aerosol depth) grid.
package atmos

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clearsat/atmcorr/internal/logging"
	"github.com/clearsat/atmcorr/internal/sixs"
)

// Model fixes everything about a radiative transfer invocation except the
// band, the surface elevation and the aerosol depth. A Model is assembled
// once per scene and shared by all coefficient estimation paths.
type Model struct {
	Runner     sixs.Runner
	Aerosol    sixs.AerosolProfile
	Atmosphere sixs.AtmosphereProfile
	Ground     sixs.GroundReflectance
	Geometry   sixs.Geometry
	Bands      []sixs.Wavelength
	UseBRDF    bool

	log zerolog.Logger
}

// NewModel builds a scene model around a runner. The profile choices come
// from the caller; the bands must be in radiance stack order.
func NewModel(runner sixs.Runner, geometry sixs.Geometry, bands []sixs.Wavelength) *Model {
	return &Model{
		Runner:   runner,
		Geometry: geometry,
		Bands:    bands,
		log:      logging.Component("atmos"),
	}
}

// Coefficients runs the model once per band at the given surface altitude
// (kilometres) and aerosol depth. The result is in stack order. Runs are
// issued concurrently; the first failure cancels the rest.
func (m *Model) Coefficients(ctx context.Context, altitudeKM, aot float64) ([]sixs.Coefficients, error) {
	if m.Runner == nil {
		return nil, errors.New("no radiative transfer runner configured")
	}
	if len(m.Bands) == 0 {
		return nil, errors.New("no band wavelengths configured")
	}

	out := make([]sixs.Coefficients, len(m.Bands))
	group, ctx := errgroup.WithContext(ctx)
	for i, band := range m.Bands {
		group.Go(func() error {
			coeffs, err := m.Runner.Run(ctx, sixs.Invocation{
				Aerosol:    m.Aerosol,
				Atmosphere: m.Atmosphere,
				Ground:     m.Ground,
				Geometry:   m.Geometry,
				AltitudeKM: altitudeKM,
				AOT550:     aot,
				Band:       band,
				UseBRDF:    m.UseBRDF,
			})
			if err != nil {
				return err
			}
			out[i] = coeffs
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
