package integrate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CombineMode selects how worker partials are merged into one estimate.
type CombineMode int

const (
	// CombineMean averages the worker values and pools their standard
	// errors as sqrt(sum(e_i^2))/W. Workers receiving equal budgets
	// make this the reference combination.
	CombineMean CombineMode = iota

	// CombineInverseVariance weights each worker by 1/e_i^2, which
	// minimizes the variance of the merged estimate for independent
	// workers. Falls back to CombineMean when any worker reports a
	// zero or non-finite standard error.
	CombineInverseVariance
)

// String returns the parseable name of the mode.
func (m CombineMode) String() string {
	switch m {
	case CombineMean:
		return "mean"
	case CombineInverseVariance:
		return "invvar"
	default:
		return fmt.Sprintf("CombineMode(%d)", int(m))
	}
}

// ParseCombineMode maps a mode name to its CombineMode. The empty
// string selects the default mean mode.
func ParseCombineMode(name string) (CombineMode, error) {
	switch name {
	case "", "mean":
		return CombineMean, nil
	case "invvar", "inverse-variance":
		return CombineInverseVariance, nil
	default:
		return 0, NewConfigErrorf("combine", "unknown mode %q, have mean or invvar", name)
	}
}

// combine merges worker partials into one estimate. Partials are
// consumed in slot order so fixed-seed runs combine identically.
func (m CombineMode) combine(parts []Estimate) Estimate {
	if len(parts) == 0 {
		return Estimate{}
	}
	if m == CombineInverseVariance {
		if est, ok := combineInverseVariance(parts); ok {
			return est
		}
	}
	return combineMean(parts)
}

// combineMean is the plain-average combination:
// value = sum(v_i)/W, stderr = sqrt(sum(e_i^2))/W.
func combineMean(parts []Estimate) Estimate {
	values := make([]float64, len(parts))
	errSq := make([]float64, len(parts))
	for i, p := range parts {
		values[i] = p.Value
		errSq[i] = p.StdErr * p.StdErr
	}
	return Estimate{
		Value:  stat.Mean(values, nil),
		StdErr: math.Sqrt(floats.Sum(errSq)) / float64(len(parts)),
	}
}

// combineInverseVariance merges partials weighted by 1/e_i^2. It
// reports false when the weights are undefined for any partial.
func combineInverseVariance(parts []Estimate) (Estimate, bool) {
	values := make([]float64, len(parts))
	weights := make([]float64, len(parts))
	var total float64
	for i, p := range parts {
		if !(p.StdErr > 0) || math.IsInf(p.StdErr, 0) || math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return Estimate{}, false
		}
		values[i] = p.Value
		weights[i] = 1 / (p.StdErr * p.StdErr)
		total += weights[i]
	}
	return Estimate{
		Value:  stat.Mean(values, weights),
		StdErr: math.Sqrt(1 / total),
	}, true
}
