package integrate

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

// Integrand is the function being integrated. Implementations must be
// pure: safe for concurrent calls from multiple workers and free of
// retained state. Non-finite outputs are propagated to the final result
// rather than clamped.
type Integrand func(x []float64) float64

// Region is an axis-aligned hyper-rectangle of integration.
type Region struct {
	// Lower bounds, one entry per dimension
	Lower []float64

	// Upper bounds, same length as Lower
	Upper []float64
}

// UnitCube returns the region [0,1]^dim.
func UnitCube(dim int) Region {
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := range upper {
		upper[i] = 1
	}
	return Region{Lower: lower, Upper: upper}
}

// Dim returns the number of dimensions.
func (r Region) Dim() int { return len(r.Lower) }

// Volume returns the product of the axis widths. A region with a
// zero-width axis has volume 0.
func (r Region) Volume() float64 {
	vol := 1.0
	for i := range r.Lower {
		vol *= r.Upper[i] - r.Lower[i]
	}
	return vol
}

// Validate checks the region invariants: at least one dimension,
// matching bound lengths, finite bounds, and Lower[i] <= Upper[i] on
// every axis. Zero-width axes are valid; the integral over a region
// containing one is exactly 0.
func (r Region) Validate() error {
	if len(r.Lower) == 0 {
		return &ConfigError{Field: "region", Message: "at least one dimension required"}
	}
	if len(r.Lower) != len(r.Upper) {
		return &ConfigError{
			Field:   "region",
			Message: fmt.Sprintf("bound lengths differ: %d lower, %d upper", len(r.Lower), len(r.Upper)),
		}
	}
	for i := range r.Lower {
		lo, hi := r.Lower[i], r.Upper[i]
		if math.IsNaN(lo) || math.IsInf(lo, 0) || math.IsNaN(hi) || math.IsInf(hi, 0) {
			return &ConfigError{
				Field:   "region",
				Message: fmt.Sprintf("non-finite bound on axis %d", i),
			}
		}
		if lo > hi {
			return &ConfigError{
				Field:   "region",
				Message: fmt.Sprintf("lower bound %v exceeds upper bound %v on axis %d", lo, hi, i),
			}
		}
	}
	return nil
}

// Estimate is a single integrator's output: the estimated value of the
// integral and its standard error.
type Estimate struct {
	Value  float64
	StdErr float64
}

// finite reports whether both fields are finite.
func (e Estimate) finite() bool {
	return !math.IsNaN(e.Value) && !math.IsInf(e.Value, 0) &&
		!math.IsNaN(e.StdErr) && !math.IsInf(e.StdErr, 0)
}

// Result is the combined output of a parallel integration run.
type Result struct {
	Estimate

	// Workers actually used
	Workers int

	// CallsPerWorker is each worker's share of the sample budget,
	// calls/workers rounded down. The remainder is never sampled.
	CallsPerWorker int

	// NonFinite is set when any worker produced a NaN or infinite
	// partial estimate. The combined values carry it unmodified.
	NonFinite bool
}

// Integrator estimates the integral of f over region using the given
// number of samples. Implementations draw randomness only from rng so
// that runs are reproducible, and observe ctx between internal
// iterations.
type Integrator interface {
	Integrate(ctx context.Context, f Integrand, region Region, calls int, rng *rand.Rand) (Estimate, error)
}
