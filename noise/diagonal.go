package noise

import (
	"fmt"

	soc "github.com/milosgajdos/go-soc"
	"gonum.org/v1/gonum/mat"
)

// NewDiagonal returns zero mean noise of dimension size with covariance variance*I.
// Zero variance yields Zero noise; negative variance is an error.
func NewDiagonal(size int, variance float64, seed uint64) (soc.Noise, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d", size)
	}

	if variance < 0 {
		return nil, fmt.Errorf("invalid noise variance: %v", variance)
	}

	if variance == 0 {
		return &Zero{mean: make([]float64, size), cov: mat.NewSymDense(size, nil)}, nil
	}

	cov := mat.NewSymDense(size, nil)
	for i := 0; i < size; i++ {
		cov.SetSym(i, i, variance)
	}

	g, err := NewGaussianWithSeed(make([]float64, size), cov, seed)
	if err != nil {
		return nil, err
	}

	return g, nil
}
