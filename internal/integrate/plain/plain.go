// Package plain implements uniform-sampling Monte Carlo integration.
// It is the non-adaptive baseline for the vegas package and satisfies
// the same interface.
package plain

import (
	"context"
	"math"
	"math/rand"

	"github.com/copyleftdev/STRATA/internal/integrate"
)

// ctxCheckMask throttles the cancellation check to every 64Ki samples.
const ctxCheckMask = 1<<16 - 1

// Integrator samples the region uniformly. It is stateless; one
// instance is safe to reuse across sequential calls.
type Integrator struct{}

// New creates an Integrator.
func New() *Integrator {
	return &Integrator{}
}

// Integrate estimates the integral of f over region using calls
// uniform samples drawn from rng.
func (p *Integrator) Integrate(ctx context.Context, f integrate.Integrand, region integrate.Region, calls int, rng *rand.Rand) (integrate.Estimate, error) {
	if err := region.Validate(); err != nil {
		return integrate.Estimate{}, err
	}
	if f == nil {
		return integrate.Estimate{}, integrate.NewConfigErrorf("integrand", "must not be nil")
	}
	if rng == nil {
		return integrate.Estimate{}, integrate.NewConfigErrorf("rng", "must not be nil")
	}
	if calls < 2 {
		return integrate.Estimate{}, integrate.NewConfigErrorf("calls", "must be at least 2, got %d", calls)
	}

	dim := region.Dim()
	vol := region.Volume()
	x := make([]float64, dim)

	var sum, sumSq float64
	for s := 0; s < calls; s++ {
		if s&ctxCheckMask == 0 {
			select {
			case <-ctx.Done():
				return integrate.Estimate{}, ctx.Err()
			default:
			}
		}
		for d := 0; d < dim; d++ {
			x[d] = region.Lower[d] + rng.Float64()*(region.Upper[d]-region.Lower[d])
		}
		v := f(x)
		sum += v
		sumSq += v * v
	}

	n := float64(calls)
	mean := sum / n
	variance := (sumSq/n - mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return integrate.Estimate{
		Value:  vol * mean,
		StdErr: vol * math.Sqrt(variance/n),
	}, nil
}
