package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clearsat/atmcorr/internal/sensor"
)

// Product names one deliverable of a scene run.
type Product string

const (
	RAD       Product = "RAD"       // at-sensor radiance
	SATURATE  Product = "SATURATE"  // per-band saturation mask
	THERMAL   Product = "THERMAL"   // thermal brightness temperature
	TOA       Product = "TOA"       // top of atmosphere reflectance
	CLOUDS    Product = "CLOUDS"    // cloud and shadow mask
	DDVAOT    Product = "DDVAOT"    // aerosol surface from dark vegetation
	DOSAOT    Product = "DOSAOT"    // aerosol surface from dark objects
	DOSAOTSGL Product = "DOSAOTSGL" // single aerosol value from dark objects
	DOS       Product = "DOS"       // dark object subtracted reflectance
	SREF      Product = "SREF"      // surface reflectance through the model
	METADATA  Product = "METADATA"  // scene metadata document
	FOOTPRINT Product = "FOOTPRINT" // scene footprint polygon
)

// allProducts fixes the processing (and reporting) order.
var allProducts = []Product{
	FOOTPRINT, SATURATE, RAD, THERMAL, TOA, CLOUDS,
	DOS, DOSAOTSGL, DDVAOT, DOSAOT, SREF, METADATA,
}

// ParseProduct resolves a command line product name, case insensitively.
func ParseProduct(name string) (Product, error) {
	want := strings.ToUpper(strings.TrimSpace(name))
	for _, p := range allProducts {
		if string(p) == want {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown product %q", name)
}

// ParseProducts resolves a list of command line product names.
func ParseProducts(names []string) ([]Product, error) {
	out := make([]Product, 0, len(names))
	for _, name := range names {
		p, err := ParseProduct(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ProductSet is the closed set of products a run will generate, after
// dependency imputation.
type ProductSet map[Product]bool

// Has reports whether the set includes the product.
func (s ProductSet) Has(p Product) bool { return s[p] }

// List returns the set in processing order.
func (s ProductSet) List() []Product {
	out := make([]Product, 0, len(s))
	for _, p := range allProducts {
		if s[p] {
			out = append(out, p)
		}
	}
	return out
}

// NeedsModel reports whether any product in the set drives the radiative
// transfer model.
func (s ProductSet) NeedsModel() bool {
	return s[DDVAOT] || s[DOSAOT] || s[DOSAOTSGL] || s[SREF]
}

// NeedsDEM reports whether any product in the set requires an elevation
// model.
func (s ProductSet) NeedsDEM() bool {
	return s[DDVAOT] || s[DOSAOT] || s[DOSAOTSGL]
}

// supportsProduct gates products on sensor capability. Cloud masking and
// the aerosol estimators need band layouts only the TM and ETM+ variants
// carry; the thermal chain needs a thermal band.
func supportsProduct(id sensor.ID, p Product) bool {
	switch p {
	case THERMAL, CLOUDS, DDVAOT, DOSAOT, DOSAOTSGL:
		return id == sensor.Landsat5TM || id == sensor.Landsat7ETM
	}
	return true
}

// Resolve expands the requested products into the closed set a run has to
// generate: reflectance products pull in the radiance they are derived
// from, cloud masking pulls in its mask inputs, and the aerosol
// estimators pull in both stacks. Requests outside the sensor's
// capability fail here rather than partway through a run.
func Resolve(id sensor.ID, requested []Product) (ProductSet, error) {
	if len(requested) == 0 {
		return nil, errors.New("no products requested")
	}

	set := ProductSet{}
	for _, p := range requested {
		if !supportsProduct(id, p) {
			if p == THERMAL || p == CLOUDS {
				return nil, fmt.Errorf("sensor %s does not have a thermal band, required for the %s product", id, p)
			}
			return nil, fmt.Errorf("the %s product is not supported for sensor %s", p, id)
		}
		switch p {
		case RAD, SATURATE, THERMAL, METADATA, FOOTPRINT:
			set[p] = true
		case TOA, DOS:
			set[RAD] = true
			set[TOA] = true
			set[p] = true
		case CLOUDS:
			set[RAD] = true
			set[TOA] = true
			set[SATURATE] = true
			set[THERMAL] = true
			set[CLOUDS] = true
		case DDVAOT, DOSAOT, DOSAOTSGL:
			set[RAD] = true
			set[TOA] = true
			set[p] = true
		case SREF:
			set[RAD] = true
			set[SREF] = true
		}
	}

	if set[DDVAOT] && set[DOSAOT] {
		return nil, errors.New("the DDVAOT and DOSAOT products cannot be requested together, choose one or the other")
	}
	return set, nil
}
