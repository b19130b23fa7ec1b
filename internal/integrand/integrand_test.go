package integrand

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/STRATA/internal/integrate"
)

func TestPolynomial(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		x      []float64
		want   float64
	}{
		{
			name:   "reference coefficients",
			params: DefaultParams(),
			x:      []float64{1, 2, 3},
			want:   0.1*6 + 0.1*14,
		},
		{
			name:   "linear only",
			params: Params{P: 1},
			x:      []float64{1, 2, 3},
			want:   6,
		},
		{
			name:   "quadratic only",
			params: Params{Q: 2},
			x:      []float64{0.5, 0.5},
			want:   1,
		},
		{
			name:   "origin",
			params: DefaultParams(),
			x:      []float64{0, 0, 0},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Polynomial(tt.params)
			assert.InDelta(t, tt.want, f(tt.x), 1e-12)
		})
	}
}

func TestPolynomialExpected(t *testing.T) {
	t.Run("reference case is one quarter", func(t *testing.T) {
		got := PolynomialExpected(DefaultParams(), integrate.UnitCube(3))
		assert.InDelta(t, 0.25, got, 1e-15)
	})

	t.Run("linear term over a shifted axis", func(t *testing.T) {
		// Integral of x over [0,2] is 2.
		region := integrate.Region{Lower: []float64{0}, Upper: []float64{2}}
		got := PolynomialExpected(Params{P: 1}, region)
		assert.InDelta(t, 2.0, got, 1e-15)
	})

	t.Run("quadratic term over a symmetric axis", func(t *testing.T) {
		// Integral of x^2 over [-1,1] is 2/3.
		region := integrate.Region{Lower: []float64{-1}, Upper: []float64{1}}
		got := PolynomialExpected(Params{Q: 1}, region)
		assert.InDelta(t, 2.0/3.0, got, 1e-15)
	})

	t.Run("zero volume region", func(t *testing.T) {
		region := integrate.Region{Lower: []float64{0, 1}, Upper: []float64{1, 1}}
		assert.Equal(t, 0.0, PolynomialExpected(DefaultParams(), region))
	})
}

func TestUnit(t *testing.T) {
	f := Unit(Params{P: 123, Q: -4})
	assert.Equal(t, 1.0, f([]float64{0.3, 0.7}))
	assert.Equal(t, 1.0, f(nil))
}

func TestGaussian(t *testing.T) {
	f := Gaussian(Params{P: 2, Q: 1})
	assert.InDelta(t, 2.0, f([]float64{0, 0}), 1e-15)
	assert.InDelta(t, 2*math.Exp(-2), f([]float64{1, 1}), 1e-15)
}

func TestGaussianExpected(t *testing.T) {
	t.Run("matches the one dimensional error function", func(t *testing.T) {
		region := integrate.Region{Lower: []float64{0}, Upper: []float64{1}}
		got, ok := GaussianExpected(Params{P: 1, Q: 1}, region)
		require.True(t, ok)
		assert.InDelta(t, math.Sqrt(math.Pi)/2*math.Erf(1), got, 1e-15)
	})

	t.Run("symmetric box doubles the half box", func(t *testing.T) {
		par := Params{P: 0.7, Q: 2.5}
		full := integrate.Region{Lower: []float64{-1}, Upper: []float64{1}}
		half := integrate.Region{Lower: []float64{0}, Upper: []float64{1}}

		gotFull, ok := GaussianExpected(par, full)
		require.True(t, ok)
		gotHalf, ok := GaussianExpected(par, half)
		require.True(t, ok)

		assert.InDelta(t, 2*gotHalf, gotFull, 1e-15)
	})

	t.Run("wide box approaches the full Gaussian integral", func(t *testing.T) {
		region := integrate.Region{Lower: []float64{-10, -10}, Upper: []float64{10, 10}}
		got, ok := GaussianExpected(Params{P: 1, Q: 1}, region)
		require.True(t, ok)
		assert.InDelta(t, math.Pi, got, 1e-9)
	})

	t.Run("no closed form without decay", func(t *testing.T) {
		_, ok := GaussianExpected(Params{P: 1, Q: 0}, integrate.UnitCube(1))
		assert.False(t, ok)
	})
}

func TestLookup(t *testing.T) {
	t.Run("known integrands", func(t *testing.T) {
		for _, name := range []string{"polynomial", "unit", "gaussian"} {
			def, err := Lookup(name)
			require.NoError(t, err, name)
			assert.Equal(t, name, def.Name)
			assert.NotNil(t, def.Build)
			assert.NotNil(t, def.Expected)
		}
	})

	t.Run("built integrand evaluates", func(t *testing.T) {
		def, err := Lookup("polynomial")
		require.NoError(t, err)

		f := def.Build(DefaultParams())
		assert.InDelta(t, 0.2, f([]float64{1, 0, 0}), 1e-15)

		want, ok := def.Expected(DefaultParams(), integrate.UnitCube(3))
		require.True(t, ok)
		assert.InDelta(t, 0.25, want, 1e-15)
	})

	t.Run("unit expectation is the region volume", func(t *testing.T) {
		def, err := Lookup("unit")
		require.NoError(t, err)

		region := integrate.Region{Lower: []float64{0, 0}, Upper: []float64{2, 3}}
		want, ok := def.Expected(Params{}, region)
		require.True(t, ok)
		assert.Equal(t, 6.0, want)
	})

	t.Run("unknown integrand", func(t *testing.T) {
		_, err := Lookup("lorentzian")
		require.Error(t, err)
		assert.True(t, integrate.IsConfigError(err))
		assert.Contains(t, err.Error(), "unknown integrand")
	})
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"gaussian", "polynomial", "unit"}, Names())
}
