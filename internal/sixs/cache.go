package sixs

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/clearsat/atmcorr/internal/cache"
	"github.com/clearsat/atmcorr/internal/logging"
)

// CachingRunner memoizes invocations on disk. Identical inputs always yield
// identical coefficients, so entries never expire.
type CachingRunner struct {
	inner Runner
	store cache.CacheService[Coefficients]
	log   zerolog.Logger
}

func NewCachingRunner(inner Runner) *CachingRunner {
	return NewCachingRunnerWith(inner, cache.NewFileCache[Coefficients]("sixs"))
}

// NewCachingRunnerWith substitutes the backing store.
func NewCachingRunnerWith(inner Runner, store cache.CacheService[Coefficients]) *CachingRunner {
	return &CachingRunner{inner: inner, store: store, log: logging.Component("sixs-cache")}
}

func (r *CachingRunner) Run(ctx context.Context, inv Invocation) (Coefficients, error) {
	key := r.store.GenerateKey(
		inv.Aerosol, inv.Atmosphere, inv.Ground, inv.UseBRDF,
		inv.Geometry.Month, inv.Geometry.Day, inv.Geometry.GMTDecimalHour,
		inv.Geometry.Latitude, inv.Geometry.Longitude,
		inv.AltitudeKM, inv.AOT550,
		inv.Band.Name, inv.Band.Start, inv.Band.End,
	)
	if coeffs, ok := r.store.Get(key); ok {
		return coeffs, nil
	}

	coeffs, err := r.inner.Run(ctx, inv)
	if err != nil {
		return Coefficients{}, err
	}
	if err := r.store.Set(key, coeffs); err != nil {
		r.log.Warn().Err(err).Msg("failed to persist model result")
	}
	return coeffs, nil
}
