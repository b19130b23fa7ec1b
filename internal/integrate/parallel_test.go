package integrate

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubIntegrator adapts a function to the Integrator interface so
// coordinator behavior can be tested without real sampling.
type stubIntegrator struct {
	fn func(ctx context.Context, f Integrand, region Region, calls int, rng *rand.Rand) (Estimate, error)
}

func (s *stubIntegrator) Integrate(ctx context.Context, f Integrand, region Region, calls int, rng *rand.Rand) (Estimate, error) {
	return s.fn(ctx, f, region, calls, rng)
}

func stubFactory(fn func(ctx context.Context, f Integrand, region Region, calls int, rng *rand.Rand) (Estimate, error)) func() Integrator {
	return func() Integrator { return &stubIntegrator{fn: fn} }
}

func constIntegrand([]float64) float64 { return 1 }

func TestNewParallel(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		p, err := NewParallel(Options{
			Workers:       2,
			NewIntegrator: stubFactory(nil),
		})
		require.NoError(t, err)
		assert.NotNil(t, p)
	})

	t.Run("negative workers", func(t *testing.T) {
		_, err := NewParallel(Options{
			Workers:       -1,
			NewIntegrator: stubFactory(nil),
		})
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})

	t.Run("nil factory", func(t *testing.T) {
		_, err := NewParallel(Options{Workers: 2})
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})
}

func TestParallelIntegrate_BudgetPartition(t *testing.T) {
	tests := []struct {
		name    string
		calls   int
		workers int
		wantPer int
	}{
		{name: "exact division", calls: 1000, workers: 4, wantPer: 250},
		{name: "remainder dropped", calls: 1003, workers: 4, wantPer: 250},
		{name: "small budget", calls: 7, workers: 3, wantPer: 2},
		{name: "one call each", calls: 5, workers: 5, wantPer: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sampled atomic.Int64
			p, err := NewParallel(Options{
				Workers:  tt.workers,
				BaseSeed: 7,
				NewIntegrator: stubFactory(func(_ context.Context, _ Integrand, _ Region, calls int, _ *rand.Rand) (Estimate, error) {
					assert.Equal(t, tt.wantPer, calls, "every worker receives the same share")
					sampled.Add(int64(calls))
					return Estimate{Value: 1, StdErr: 0.1}, nil
				}),
			})
			require.NoError(t, err)

			res, err := p.Integrate(context.Background(), constIntegrand, UnitCube(3), tt.calls)
			require.NoError(t, err)

			assert.Equal(t, tt.workers, res.Workers)
			assert.Equal(t, tt.wantPer, res.CallsPerWorker)
			assert.Equal(t, int64(tt.workers*tt.wantPer), sampled.Load(),
				"sampled total must be workers*floor(calls/workers)")
		})
	}
}

func TestParallelIntegrate_Deterministic(t *testing.T) {
	// The stub folds the worker RNG stream into the estimate, so equal
	// results mean equal per-worker seeds.
	run := func(seed int64) *Result {
		p, err := NewParallel(Options{
			Workers:  4,
			BaseSeed: seed,
			NewIntegrator: stubFactory(func(_ context.Context, _ Integrand, _ Region, _ int, rng *rand.Rand) (Estimate, error) {
				return Estimate{Value: rng.Float64(), StdErr: 0.1 + 0.4*rng.Float64()}, nil
			}),
		})
		require.NoError(t, err)
		res, err := p.Integrate(context.Background(), constIntegrand, UnitCube(3), 4000)
		require.NoError(t, err)
		return res
	}

	first := run(42)
	second := run(42)
	assert.Equal(t, first.Value, second.Value, "fixed seed runs must agree bit for bit")
	assert.Equal(t, first.StdErr, second.StdErr)

	other := run(43)
	assert.NotEqual(t, first.Value, other.Value, "base seed must change the streams")
}

func TestParallelIntegrate_WorkerStreamsDiffer(t *testing.T) {
	var mu sync.Mutex
	var draws []float64

	p, err := NewParallel(Options{
		Workers:  8,
		BaseSeed: 99,
		NewIntegrator: stubFactory(func(_ context.Context, _ Integrand, _ Region, _ int, rng *rand.Rand) (Estimate, error) {
			v := rng.Float64()
			mu.Lock()
			draws = append(draws, v)
			mu.Unlock()
			return Estimate{Value: v, StdErr: 0.1}, nil
		}),
	})
	require.NoError(t, err)

	_, err = p.Integrate(context.Background(), constIntegrand, UnitCube(3), 8000)
	require.NoError(t, err)

	require.Len(t, draws, 8)
	seen := make(map[float64]bool)
	for _, v := range draws {
		assert.False(t, seen[v], "worker streams must not collide")
		seen[v] = true
	}
}

func TestParallelIntegrate_CombinesPartials(t *testing.T) {
	// Workers return 1, 2, 3 in scheduling order; the mean combination
	// is permutation invariant so the result is fixed.
	var counter atomic.Int64

	p, err := NewParallel(Options{
		Workers:  3,
		BaseSeed: 1,
		NewIntegrator: stubFactory(func(_ context.Context, _ Integrand, _ Region, _ int, _ *rand.Rand) (Estimate, error) {
			return Estimate{Value: float64(counter.Add(1)), StdErr: 0.1}, nil
		}),
	})
	require.NoError(t, err)

	res, err := p.Integrate(context.Background(), constIntegrand, UnitCube(3), 300)
	require.NoError(t, err)

	assert.Equal(t, 2.0, res.Value)
	assert.InDelta(t, 0.1/math.Sqrt(3), res.StdErr, 1e-15)
	assert.False(t, res.NonFinite)
}

func TestParallelIntegrate_DefaultWorkerCount(t *testing.T) {
	p, err := NewParallel(Options{
		BaseSeed: 5,
		NewIntegrator: stubFactory(func(_ context.Context, _ Integrand, _ Region, _ int, _ *rand.Rand) (Estimate, error) {
			return Estimate{Value: 1, StdErr: 0.1}, nil
		}),
	})
	require.NoError(t, err)

	res, err := p.Integrate(context.Background(), constIntegrand, UnitCube(3), runtime.NumCPU()*100)
	require.NoError(t, err)

	assert.Equal(t, runtime.NumCPU(), res.Workers)
}

func TestParallelIntegrate_WorkerError(t *testing.T) {
	errBoom := errors.New("boom")

	p, err := NewParallel(Options{
		Workers:       3,
		BaseSeed:      1,
		NewIntegrator: stubFactory(func(context.Context, Integrand, Region, int, *rand.Rand) (Estimate, error) {
			return Estimate{}, errBoom
		}),
	})
	require.NoError(t, err)

	_, err = p.Integrate(context.Background(), constIntegrand, UnitCube(3), 300)
	require.Error(t, err)

	_, ok := IsIntegrationError(err)
	assert.True(t, ok, "worker failures are wrapped as integration errors")
	assert.True(t, errors.Is(err, errBoom))
	assert.Contains(t, err.Error(), "worker")
}

func TestParallelIntegrate_NilIntegrator(t *testing.T) {
	p, err := NewParallel(Options{
		Workers:       1,
		BaseSeed:      1,
		NewIntegrator: func() Integrator { return nil },
	})
	require.NoError(t, err)

	_, err = p.Integrate(context.Background(), constIntegrand, UnitCube(3), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factory returned nil")
}

func TestParallelIntegrate_NonFinitePartial(t *testing.T) {
	var counter atomic.Int64

	p, err := NewParallel(Options{
		Workers:  2,
		BaseSeed: 1,
		NewIntegrator: stubFactory(func(_ context.Context, _ Integrand, _ Region, _ int, _ *rand.Rand) (Estimate, error) {
			if counter.Add(1) == 1 {
				return Estimate{Value: math.NaN(), StdErr: 0.1}, nil
			}
			return Estimate{Value: 1, StdErr: 0.1}, nil
		}),
	})
	require.NoError(t, err)

	res, err := p.Integrate(context.Background(), constIntegrand, UnitCube(3), 200)
	require.NoError(t, err, "non-finite estimates are reported, not failed")

	assert.True(t, res.NonFinite)
	assert.True(t, math.IsNaN(res.Value))
}

func TestParallelIntegrate_Validation(t *testing.T) {
	okStub := stubFactory(func(context.Context, Integrand, Region, int, *rand.Rand) (Estimate, error) {
		return Estimate{Value: 1, StdErr: 0.1}, nil
	})

	tests := []struct {
		name    string
		workers int
		f       Integrand
		region  Region
		calls   int
	}{
		{name: "nil integrand", workers: 2, f: nil, region: UnitCube(3), calls: 100},
		{name: "invalid region", workers: 2, f: constIntegrand, region: Region{Lower: []float64{1}, Upper: []float64{0}}, calls: 100},
		{name: "zero calls", workers: 2, f: constIntegrand, region: UnitCube(3), calls: 0},
		{name: "negative calls", workers: 2, f: constIntegrand, region: UnitCube(3), calls: -5},
		{name: "budget below worker count", workers: 8, f: constIntegrand, region: UnitCube(3), calls: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewParallel(Options{Workers: tt.workers, BaseSeed: 1, NewIntegrator: okStub})
			require.NoError(t, err)

			_, err = p.Integrate(context.Background(), tt.f, tt.region, tt.calls)
			require.Error(t, err)
			assert.True(t, IsConfigError(err), "pre-run validation failures are config errors")
		})
	}
}

func TestParallelIntegrate_Cancellation(t *testing.T) {
	p, err := NewParallel(Options{
		Workers:  2,
		BaseSeed: 1,
		NewIntegrator: stubFactory(func(ctx context.Context, _ Integrand, _ Region, _ int, _ *rand.Rand) (Estimate, error) {
			<-ctx.Done()
			return Estimate{}, ctx.Err()
		}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Integrate(ctx, constIntegrand, UnitCube(3), 200)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
