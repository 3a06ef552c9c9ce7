package ukf

import (
	"testing"

	soc "github.com/milosgajdos/go-soc"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestNewWeights(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		n  int
		c  *Config
		ok bool
	}{
		{1, &Config{Alpha: 1, Beta: 2, Kappa: 0}, true},
		{2, &Config{Alpha: 1e-3, Beta: 2, Kappa: 0}, true},
		{3, &Config{Alpha: 0.75, Beta: 2, Kappa: 3}, true},
		{0, &Config{Alpha: 1, Beta: 2, Kappa: 0}, false},
		{1, nil, false},
		{1, &Config{Alpha: 0, Beta: 2, Kappa: 0}, false},
		{1, &Config{Alpha: 1, Beta: -1, Kappa: 0}, false},
		{1, &Config{Alpha: 1, Beta: 2, Kappa: -1}, false},
	}

	for _, tc := range testCases {
		w, err := NewWeights(tc.n, tc.c)
		if !tc.ok {
			assert.Error(err)
			continue
		}
		assert.NoError(err)
		assert.Len(w.Mean, 2*tc.n+1)
		assert.Len(w.Cov, 2*tc.n+1)
		assert.Equal(tc.n, w.Dim())
		assert.InDelta(1.0, floats.Sum(w.Mean), 1e-6)
		a := tc.c.Alpha
		assert.InDelta(1.0+(1-a*a+tc.c.Beta), floats.Sum(w.Cov), 1e-6)
	}
}

func TestWeightsValues(t *testing.T) {
	assert := assert.New(t)

	// n=1, alpha=1, kappa=0 => lambda=0
	w, err := NewWeights(1, &Config{Alpha: 1, Beta: 2, Kappa: 0})
	assert.NoError(err)
	assert.Equal(0.0, w.Lambda)
	assert.Equal([]float64{0, 0.5, 0.5}, w.Mean)
	assert.Equal([]float64{2, 0.5, 0.5}, w.Cov)
}

func TestSigmaPoints(t *testing.T) {
	assert := assert.New(t)

	w, err := NewWeights(2, &Config{Alpha: 0.75, Beta: 2, Kappa: 3})
	assert.NoError(err)

	x := mat.NewVecDense(2, []float64{0.5, 0.01})
	p := mat.NewSymDense(2, []float64{0.04, 0.001, 0.001, 0.02})

	sp, err := w.SigmaPoints(x, p)
	assert.NoError(err)
	assert.False(sp.Regularized)

	rows, cols := sp.X.Dims()
	assert.Equal(2, rows)
	assert.Equal(5, cols)
	assert.True(mat.EqualApprox(x, sp.X.ColView(0), 1e-15))

	// weighted mean and covariance reproduce x and p
	mean := mat.NewVecDense(2, nil)
	for c := 0; c < cols; c++ {
		mean.AddScaledVec(mean, w.Mean[c], sp.X.ColView(c))
	}
	assert.True(mat.EqualApprox(x, mean, 1e-12))

	cov := mat.NewSymDense(2, nil)
	d := mat.NewVecDense(2, nil)
	for c := 0; c < cols; c++ {
		d.SubVec(sp.X.ColView(c), x)
		cov.SymRankOne(cov, w.Cov[c], d)
	}
	assert.True(mat.EqualApprox(p, cov, 1e-12))

	// invalid dimensions
	_, err = w.SigmaPoints(mat.NewVecDense(1, []float64{0.5}), p)
	assert.Error(err)
}

func TestSigmaPointsRegularize(t *testing.T) {
	assert := assert.New(t)

	w, err := NewWeights(1, &Config{Alpha: 1, Beta: 2, Kappa: 0})
	assert.NoError(err)

	x := mat.NewVecDense(1, []float64{0.5})

	// zero covariance gets jitter
	sp, err := w.SigmaPoints(x, mat.NewSymDense(1, []float64{0}))
	assert.NoError(err)
	assert.True(sp.Regularized)
	assert.InDelta(0.5+1e-4, sp.X.At(0, 1), 1e-12)
	assert.InDelta(0.5-1e-4, sp.X.At(0, 2), 1e-12)
	assert.Equal(1e-8, sp.Cov.At(0, 0))

	sp, err = w.SigmaPoints(x, mat.NewSymDense(1, []float64{0.04}))
	assert.NoError(err)
	assert.False(sp.Regularized)
	assert.Equal(0.04, sp.Cov.At(0, 0))

	// negative definite covariance can not be fixed by jitter
	_, err = w.SigmaPoints(x, mat.NewSymDense(1, []float64{-1}))
	assert.ErrorIs(err, soc.ErrNotPositiveDefinite)
}
