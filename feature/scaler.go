package feature

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes values to zero mean and unit variance
type Scaler struct {
	// Mean is the fitted mean
	Mean float64
	// Scale is the fitted population standard deviation
	Scale float64
}

// NewScaler fits a Scaler to xs and returns it.
// Zero variance data are scaled by 1.
// It returns error if xs is empty or contains non-finite values.
func NewScaler(xs []float64) (*Scaler, error) {
	s := &Scaler{}
	if err := s.Fit(xs); err != nil {
		return nil, err
	}

	return s, nil
}

// Fit fits the scaler to xs.
func (s *Scaler) Fit(xs []float64) error {
	if len(xs) == 0 {
		return fmt.Errorf("no data to fit")
	}

	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("non-finite value at %d: %v", i, x)
		}
	}

	mean, std := stat.PopMeanStdDev(xs, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}

	s.Mean, s.Scale = mean, std

	return nil
}

// Transform returns standardized x
func (s *Scaler) Transform(x float64) float64 {
	return (x - s.Mean) / s.Scale
}

// TransformAll returns standardized copy of xs
func (s *Scaler) TransformAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = s.Transform(x)
	}

	return out
}

// Inverse maps standardized x back to original units
func (s *Scaler) Inverse(x float64) float64 {
	return x*s.Scale + s.Mean
}
