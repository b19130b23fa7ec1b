package integrand

import (
	"sort"

	"github.com/copyleftdev/STRATA/internal/integrate"
)

// Definition describes a named integrand family selectable at run time
// from problem files and API requests.
type Definition struct {
	// Name used in problem files and API requests.
	Name string

	// Build constructs the evaluator for the given coefficients.
	Build func(Params) integrate.Integrand

	// Expected returns the closed-form integral over the region when
	// one is known.
	Expected func(Params, integrate.Region) (float64, bool)
}

var registry = map[string]Definition{
	"polynomial": {
		Name:  "polynomial",
		Build: Polynomial,
		Expected: func(par Params, region integrate.Region) (float64, bool) {
			return PolynomialExpected(par, region), true
		},
	},
	"unit": {
		Name:  "unit",
		Build: Unit,
		Expected: func(_ Params, region integrate.Region) (float64, bool) {
			return region.Volume(), true
		},
	},
	"gaussian": {
		Name:     "gaussian",
		Build:    Gaussian,
		Expected: GaussianExpected,
	},
}

// Lookup returns the definition registered under name.
func Lookup(name string) (Definition, error) {
	def, ok := registry[name]
	if !ok {
		return Definition{}, integrate.NewConfigErrorf("integrand", "unknown integrand %q, have %v", name, Names())
	}
	return def, nil
}

// Names lists the registered integrands in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
