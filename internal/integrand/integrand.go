// Package integrand provides the built-in family of integrable
// functions and their closed-form expectations where known.
package integrand

import (
	"math"

	"github.com/copyleftdev/STRATA/internal/integrate"
)

// Params holds the coefficients shared by the integrand family.
// Constructors capture them by value; evaluation never mutates them.
type Params struct {
	P float64 `json:"p" yaml:"p"`
	Q float64 `json:"q" yaml:"q"`
}

// DefaultParams returns the reference coefficients.
func DefaultParams() Params {
	return Params{P: 0.1, Q: 0.1}
}

// Polynomial returns f(x) = p*sum(x_i) + q*sum(x_i^2).
func Polynomial(par Params) integrate.Integrand {
	return func(x []float64) float64 {
		var lin, quad float64
		for _, xi := range x {
			lin += xi
			quad += xi * xi
		}
		return par.P*lin + par.Q*quad
	}
}

// PolynomialExpected returns the closed-form integral of Polynomial
// over the region. On the unit cube in d dimensions it reduces to
// d*(p/2 + q/3); 1/4 for the reference case d=3, p=q=0.1.
func PolynomialExpected(par Params, region integrate.Region) float64 {
	vol := region.Volume()
	var total float64
	for i := range region.Lower {
		lo, hi := region.Lower[i], region.Upper[i]
		total += vol * (par.P*(lo+hi)/2 + par.Q*(lo*lo+lo*hi+hi*hi)/3)
	}
	return total
}

// Unit returns f(x) = 1 regardless of params. Its variance is zero, so
// it exercises the degenerate accumulation path of adaptive engines.
func Unit(Params) integrate.Integrand {
	return func([]float64) float64 { return 1 }
}

// Gaussian returns f(x) = p*exp(-q*sum(x_i^2)).
func Gaussian(par Params) integrate.Integrand {
	return func(x []float64) float64 {
		var quad float64
		for _, xi := range x {
			quad += xi * xi
		}
		return par.P * math.Exp(-par.Q*quad)
	}
}

// GaussianExpected returns the closed-form integral of Gaussian over
// the region. No closed form is reported for q <= 0.
func GaussianExpected(par Params, region integrate.Region) (float64, bool) {
	if par.Q <= 0 {
		return 0, false
	}
	sq := math.Sqrt(par.Q)
	c := math.Sqrt(math.Pi/par.Q) / 2
	prod := par.P
	for i := range region.Lower {
		prod *= c * (math.Erf(sq*region.Upper[i]) - math.Erf(sq*region.Lower[i]))
	}
	return prod, true
}
