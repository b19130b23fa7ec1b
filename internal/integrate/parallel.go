package integrate

import (
	"context"
	"math/rand"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options contains configuration for a parallel integration run.
type Options struct {
	// Workers is the number of parallel integrators. Zero means one
	// per CPU.
	Workers int

	// BaseSeed roots the per-worker seed derivation. Zero means seed
	// from the wall clock; any fixed value makes repeated runs with
	// the same engine, workers and budget bit-identical.
	BaseSeed int64

	// Mode selects how worker partials are combined.
	Mode CombineMode

	// NewIntegrator builds one integrator per worker. Instances are
	// never shared between goroutines.
	NewIntegrator func() Integrator

	// Logger for structured logging. Nil disables logging.
	Logger *zap.Logger
}

// Parallel fans an integration out over independent workers and merges
// their partial estimates.
type Parallel struct {
	opts   Options
	logger *zap.Logger
}

// NewParallel creates a Parallel coordinator from opts.
func NewParallel(opts Options) (*Parallel, error) {
	if opts.Workers < 0 {
		return nil, NewConfigErrorf("workers", "must not be negative, got %d", opts.Workers)
	}
	if opts.NewIntegrator == nil {
		return nil, NewConfigErrorf("integrator", "factory must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parallel{opts: opts, logger: logger}, nil
}

// Integrate estimates the integral of f over region with a total budget
// of calls samples split evenly across the workers. The remainder of
// the floor division stays unsampled; Result.CallsPerWorker records the
// share each worker received. All validation happens before any worker
// starts.
func (p *Parallel) Integrate(ctx context.Context, f Integrand, region Region, calls int) (*Result, error) {
	const op = "Parallel.Integrate"

	if f == nil {
		return nil, NewConfigErrorf("integrand", "must not be nil")
	}
	if err := region.Validate(); err != nil {
		return nil, err
	}
	if calls <= 0 {
		return nil, NewConfigErrorf("calls", "must be positive, got %d", calls)
	}

	workers := p.opts.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}
	if calls < workers {
		return nil, NewConfigErrorf("calls", "budget %d cannot cover %d workers", calls, workers)
	}

	base := p.opts.BaseSeed
	if base == 0 {
		base = timeSeed()
	}
	perWorker := calls / workers

	p.logger.Info("Starting parallel integration",
		zap.Int("workers", workers),
		zap.Int("calls_per_worker", perWorker),
		zap.Int("total_calls", calls),
		zap.Int("dim", region.Dim()),
		zap.Stringer("combine", p.opts.Mode),
	)

	// One result slot per worker; the join below is the only
	// synchronization the slots need.
	partials := make([]Estimate, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w // per-iteration copy; required under the go 1.21 language version
		g.Go(func() error {
			rng := rand.New(rand.NewSource(DeriveSeed(base, w)))
			integ := p.opts.NewIntegrator()
			if integ == nil {
				return NewError("integrator factory returned nil").WithOperation(op)
			}
			est, err := integ.Integrate(ctx, f, region, perWorker, rng)
			if err != nil {
				return WrapErrorf(err, "worker %d", w).WithOperation(op)
			}
			partials[w] = est
			p.logger.Debug("Worker finished",
				zap.Int("worker", w),
				zap.Float64("value", est.Value),
				zap.Float64("std_err", est.StdErr),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Estimate:       p.opts.Mode.combine(partials),
		Workers:        workers,
		CallsPerWorker: perWorker,
	}
	for _, est := range partials {
		if !est.finite() {
			res.NonFinite = true
			break
		}
	}

	p.logger.Info("Integration complete",
		zap.Float64("value", res.Value),
		zap.Float64("std_err", res.StdErr),
		zap.Bool("non_finite", res.NonFinite),
	)
	return res, nil
}
