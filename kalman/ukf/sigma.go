package ukf

import (
	"fmt"

	soc "github.com/milosgajdos/go-soc"
	"gonum.org/v1/gonum/mat"
)

// jitter is added to the covariance diagonal when its factorization fails
const jitter = 1e-8

// Config contains UKF [unitless] configuration parameters
type Config struct {
	// Alpha is alpha parameter (0,1]
	Alpha float64
	// Beta is beta parameter (2 is optimal choice for Gaussian)
	Beta float64
	// Kappa is kappa parameter (must be non-negative)
	Kappa float64
}

// Weights are sigma point weights derived from UKF config for state dimension n
type Weights struct {
	// Lambda is unitless scaling parameter alpha^2*(n+kappa)-n
	Lambda float64
	// Mean are sigma point mean weights Wm
	Mean []float64
	// Cov are sigma point covariance weights Wc
	Cov []float64
}

// NewWeights computes 2n+1 sigma point weights and returns them.
// It returns error if n is not positive, config parameters are negative or n+lambda is not positive.
func NewWeights(n int, c *Config) (*Weights, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid state dimension: %d", n)
	}

	if c == nil || c.Alpha <= 0 || c.Beta < 0 || c.Kappa < 0 {
		return nil, fmt.Errorf("invalid config supplied: %+v", c)
	}

	nf := float64(n)
	lambda := c.Alpha*c.Alpha*(nf+c.Kappa) - nf
	if nf+lambda <= 0 {
		return nil, fmt.Errorf("invalid sigma point spread: n+lambda=%v", nf+lambda)
	}

	wm := make([]float64, 2*n+1)
	wc := make([]float64, 2*n+1)

	wm[0] = lambda / (nf + lambda)
	wc[0] = wm[0] + (1 - c.Alpha*c.Alpha + c.Beta)
	for i := 1; i < len(wm); i++ {
		wm[i] = 1 / (2 * (nf + lambda))
		wc[i] = wm[i]
	}

	return &Weights{
		Lambda: lambda,
		Mean:   wm,
		Cov:    wc,
	}, nil
}

// Dim returns state dimension the weights were derived for
func (w *Weights) Dim() int {
	return (len(w.Mean) - 1) / 2
}

// SigmaPoints stores sigma points in matrix columns
type SigmaPoints struct {
	// X stores sigma point vectors in columns: x, x+L[:,i], x-L[:,i]
	X *mat.Dense
	// Cov is the covariance the points were generated from, including any jitter
	Cov *mat.SymDense
	// Regularized is true if the covariance had to be regularized
	Regularized bool
}

// SigmaPoints generates 2n+1 sigma points around x with covariance p.
// If p is not positive definite it adds jitter to its diagonal and retries once.
// It returns soc.ErrNotPositiveDefinite if the retry fails too.
func (w *Weights) SigmaPoints(x mat.Vector, p mat.Symmetric) (*SigmaPoints, error) {
	n := w.Dim()
	if x.Len() != n || p.SymmetricDim() != n {
		return nil, fmt.Errorf("invalid sigma point dimensions: x=%d p=%d n=%d", x.Len(), p.SymmetricDim(), n)
	}

	scale := float64(n) + w.Lambda

	cov := mat.NewSymDense(n, nil)
	cov.CopySym(p)

	scaled := mat.NewSymDense(n, nil)
	scaled.ScaleSym(scale, cov)

	var chol mat.Cholesky
	regularized := false
	if ok := chol.Factorize(scaled); !ok {
		for i := 0; i < n; i++ {
			cov.SetSym(i, i, cov.At(i, i)+jitter)
		}
		scaled.ScaleSym(scale, cov)

		if ok := chol.Factorize(scaled); !ok {
			return nil, fmt.Errorf("cholesky factorization failed: %w", soc.ErrNotPositiveDefinite)
		}
		regularized = true
	}

	var l mat.TriDense
	chol.LTo(&l)

	sp := mat.NewDense(n, 2*n+1, nil)
	for r := 0; r < n; r++ {
		xr := x.AtVec(r)
		sp.Set(r, 0, xr)
		for i := 0; i < n; i++ {
			sp.Set(r, 1+i, xr+l.At(r, i))
			sp.Set(r, 1+n+i, xr-l.At(r, i))
		}
	}

	return &SigmaPoints{
		X:           sp,
		Cov:         cov,
		Regularized: regularized,
	}, nil
}
