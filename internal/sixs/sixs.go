// Package sixs drives a 6S radiative transfer executable and exposes the
// coefficient contract consumed by the correction pipeline: one invocation
// per band per (elevation, AOD) point, returning the xa/xb/xc inversion
// coefficients and, when reported, the irradiance components.
package sixs

import (
	"context"
	"fmt"
)

type AerosolProfile string

const (
	AerosolNone           AerosolProfile = "NoAerosols"
	AerosolContinental    AerosolProfile = "Continental"
	AerosolMaritime       AerosolProfile = "Maritime"
	AerosolUrban          AerosolProfile = "Urban"
	AerosolDesert         AerosolProfile = "Desert"
	AerosolBiomassBurning AerosolProfile = "BiomassBurning"
	AerosolStratospheric  AerosolProfile = "Stratospheric"
)

type AtmosphereProfile string

const (
	AtmosphereNone            AtmosphereProfile = "NoGaseousAbsorption"
	AtmosphereTropical        AtmosphereProfile = "Tropical"
	AtmosphereMidlatSummer    AtmosphereProfile = "MidlatitudeSummer"
	AtmosphereMidlatWinter    AtmosphereProfile = "MidlatitudeWinter"
	AtmosphereSubarcticSummer AtmosphereProfile = "SubarcticSummer"
	AtmosphereSubarcticWinter AtmosphereProfile = "SubarcticWinter"
	AtmosphereUSStandard      AtmosphereProfile = "USStandard1962"
)

type GroundReflectance string

const (
	GroundGreenVegetation GroundReflectance = "GreenVegetation"
	GroundClearWater      GroundReflectance = "ClearWater"
	GroundSand            GroundReflectance = "Sand"
	GroundLakeWater       GroundReflectance = "LakeWater"
	// GroundBRDFHapke models the surface with a Hapke BRDF instead of a
	// Lambertian reflectance and implies a BRDF-aware invocation.
	GroundBRDFHapke GroundReflectance = "BRDFHapke"
)

// ParseAerosolProfile maps a profile name to its constant.
func ParseAerosolProfile(name string) (AerosolProfile, error) {
	for _, p := range []AerosolProfile{
		AerosolNone, AerosolContinental, AerosolMaritime, AerosolUrban,
		AerosolDesert, AerosolBiomassBurning, AerosolStratospheric,
	} {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown aerosol profile %q", name)
}

// ParseAtmosphereProfile maps a profile name to its constant.
func ParseAtmosphereProfile(name string) (AtmosphereProfile, error) {
	for _, p := range []AtmosphereProfile{
		AtmosphereNone, AtmosphereTropical, AtmosphereMidlatSummer,
		AtmosphereMidlatWinter, AtmosphereSubarcticSummer,
		AtmosphereSubarcticWinter, AtmosphereUSStandard,
	} {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown atmospheric profile %q", name)
}

// ParseGroundReflectance maps a surface name to its constant.
func ParseGroundReflectance(name string) (GroundReflectance, error) {
	for _, g := range []GroundReflectance{
		GroundGreenVegetation, GroundClearWater, GroundSand,
		GroundLakeWater, GroundBRDFHapke,
	} {
		if string(g) == name {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown ground reflectance %q", name)
}

// Wavelength describes a band's spectral interval in micrometres.
type Wavelength struct {
	Name  string  `json:"name"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Geometry fixes the solar and scene configuration of one invocation. 6S
// derives the solar position from the date, decimal GMT hour and location.
type Geometry struct {
	Month          int     `json:"month"`
	Day            int     `json:"day"`
	GMTDecimalHour float64 `json:"gmt_decimal_hour"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
}

// Invocation is one complete model configuration. Invocations are values:
// concurrent evaluations each own their copy, so a shared Runner never sees
// state from another call.
type Invocation struct {
	Aerosol    AerosolProfile
	Atmosphere AtmosphereProfile
	Ground     GroundReflectance
	Geometry   Geometry
	AltitudeKM float64
	AOT550     float64
	Band       Wavelength
	UseBRDF    bool
}

// Coefficients holds the atmospheric correction terms for one band at one
// (elevation, AOD) point. Radiance L inverts to surface reflectance as
// t = XA*L - XB; refl = t / (1 + XC*t).
type Coefficients struct {
	XA float64 `json:"xa"`
	XB float64 `json:"xb"`
	XC float64 `json:"xc"`

	DirectIrradiance      float64 `json:"direct_irr"`
	DiffuseIrradiance     float64 `json:"diffuse_irr"`
	EnvironmentIrradiance float64 `json:"environ_irr"`
	HasIrradiance         bool    `json:"has_irr"`
}

// RunError reports a failed model invocation. It is terminal: the caller
// propagates it without retrying.
type RunError struct {
	Band   string
	Output string
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("radiative transfer run for band %s failed: %v", e.Band, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Runner executes the radiative transfer model. Implementations must treat
// every call as independent; the estimator issues calls concurrently.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Coefficients, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, inv Invocation) (Coefficients, error)

func (f RunnerFunc) Run(ctx context.Context, inv Invocation) (Coefficients, error) {
	return f(ctx, inv)
}
