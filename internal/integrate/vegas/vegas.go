package vegas

import (
	"context"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/STRATA/internal/integrate"
)

// Options contains configuration for the integrator.
type Options struct {
	// Iterations is the number of sample-then-refine passes. The
	// sample budget of one Integrate call is split evenly across them.
	Iterations int

	// Bins is the number of grid subdivisions per axis. Values above
	// 50 are clamped to 50.
	Bins int

	// Alpha damps the grid refinement between iterations. Higher
	// values adapt faster.
	Alpha float64

	// Logger for structured logging. Nil disables logging.
	Logger *zap.Logger
}

const (
	defaultIterations = 5
	defaultBins       = 50
	maxBins           = 50
	defaultAlpha      = 1.5
)

// Integrator is an adaptive importance-sampling Monte Carlo integrator.
// Each Integrate call starts from a uniform grid and refines it between
// iterations; no state carries over between calls, so one instance may
// be reused sequentially. For concurrent use create one instance per
// goroutine.
type Integrator struct {
	opts   Options
	logger *zap.Logger
}

// New creates an Integrator, applying defaults for unset options.
func New(opts Options) *Integrator {
	if opts.Iterations < 1 {
		opts.Iterations = defaultIterations
	}
	if opts.Bins < 1 {
		opts.Bins = defaultBins
	}
	if opts.Bins > maxBins {
		opts.Bins = maxBins
	}
	if opts.Alpha <= 0 {
		opts.Alpha = defaultAlpha
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Integrator{opts: opts, logger: logger}
}

// Integrate estimates the integral of f over region using calls samples
// drawn from rng. Iterations with positive variance enter an
// inverse-variance weighted average; a degenerate zero-variance
// iteration (constant integrand, zero-volume region) switches the
// cumulative estimate to a plain running mean with zero standard error,
// so a zero-volume region returns exactly (0, 0). The context is
// observed between iterations.
func (v *Integrator) Integrate(ctx context.Context, f integrate.Integrand, region integrate.Region, calls int, rng *rand.Rand) (integrate.Estimate, error) {
	if err := region.Validate(); err != nil {
		return integrate.Estimate{}, err
	}
	if f == nil {
		return integrate.Estimate{}, integrate.NewConfigErrorf("integrand", "must not be nil")
	}
	if rng == nil {
		return integrate.Estimate{}, integrate.NewConfigErrorf("rng", "must not be nil")
	}
	perIter := calls / v.opts.Iterations
	if perIter < 2 {
		return integrate.Estimate{}, integrate.NewConfigErrorf("calls",
			"%d is too small for %d iterations, need at least %d", calls, v.opts.Iterations, 2*v.opts.Iterations)
	}

	dim := region.Dim()
	bins := v.opts.Bins
	vol := region.Volume()

	v.logger.Debug("Starting VEGAS run",
		zap.Int("dim", dim),
		zap.Int("calls", calls),
		zap.Int("iterations", v.opts.Iterations),
		zap.Int("bins", bins),
		zap.Float64("volume", vol),
	)

	grid := newGrid(dim, bins)

	// Per-axis, per-bin accumulated squared weights driving the grid
	// refinement.
	dist := make([][]float64, dim)
	for d := range dist {
		dist[d] = make([]float64, bins)
	}

	x := make([]float64, dim)
	binOf := make([]int, dim)

	var (
		value, stdErr                  float64
		weightSum, weightedSum, chiSum float64
		weighted                       int
	)

	for it := 0; it < v.opts.Iterations; it++ {
		select {
		case <-ctx.Done():
			return integrate.Estimate{}, ctx.Err()
		default:
			// Continue sampling
		}

		for d := range dist {
			for i := range dist[d] {
				dist[d][i] = 0
			}
		}

		var sum, sumSq float64
		for s := 0; s < perIter; s++ {
			// Pick a bin and an offset inside it per axis. The
			// importance weight of the point is the Jacobian of
			// the grid map.
			weight := vol
			for d := 0; d < dim; d++ {
				z := rng.Float64() * float64(bins)
				k := int(z)
				if k > bins-1 {
					k = bins - 1
				}
				edges := grid.edges[d]
				width := edges[k+1] - edges[k]
				y := edges[k] + (z-float64(k))*width
				x[d] = region.Lower[d] + y*(region.Upper[d]-region.Lower[d])
				weight *= width * float64(bins)
				binOf[d] = k
			}
			fw := weight * f(x)
			sum += fw
			sq := fw * fw
			sumSq += sq
			for d := 0; d < dim; d++ {
				dist[d][binOf[d]] += sq
			}
		}

		n := float64(perIter)
		mean := sum / n
		variance := (sumSq/n - mean*mean) / (n - 1)
		if variance < 0 {
			variance = 0
		}

		if variance > 0 {
			wgt := 1 / variance
			weighted++
			weightSum += wgt
			weightedSum += wgt * mean
			chiSum += wgt * mean * mean
			value = weightedSum / weightSum
			stdErr = math.Sqrt(1 / weightSum)
		} else {
			// Degenerate iteration. Fold it into a plain running
			// mean over all iterations so far.
			value += (mean - value) / float64(it+1)
			stdErr = 0
		}

		v.logger.Debug("VEGAS iteration",
			zap.Int("iteration", it+1),
			zap.Float64("estimate", mean),
			zap.Float64("sigma", math.Sqrt(variance)),
			zap.Float64("cumulative", value),
			zap.Float64("cumulative_std_err", stdErr),
		)

		if it < v.opts.Iterations-1 {
			grid.refine(dist, v.opts.Alpha)
		}
	}

	if weighted > 1 {
		// Chi-squared consistency of the per-iteration estimates.
		// Values far from dof flag an untrustworthy error estimate.
		total := chiSum - weightedSum*value
		if total < 0 {
			total = 0
		}
		if !math.IsNaN(total) && !math.IsInf(total, 0) {
			dof := float64(weighted - 1)
			v.logger.Debug("Grid consistency",
				zap.Float64("chi_sq_per_dof", total/dof),
				zap.Float64("p_value", distuv.ChiSquared{K: dof}.Survival(total)),
			)
		}
	}

	return integrate.Estimate{Value: value, StdErr: stdErr}, nil
}
