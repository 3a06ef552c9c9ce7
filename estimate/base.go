package estimate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Base is a filter estimate: state mean and its covariance
type Base struct {
	// val is estimated state
	val *mat.VecDense
	// cov is estimated state covariance
	cov *mat.SymDense
}

// NewBaseWithCov returns estimate of val with covariance cov.
// It returns error if the dimensions of val and cov do not match.
func NewBaseWithCov(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	if val == nil || cov == nil {
		return nil, fmt.Errorf("invalid estimate: val=%v cov=%v", val, cov)
	}

	if val.Len() != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid dimensions. Val: %d, Cov: %d x %d", val.Len(), cov.SymmetricDim(), cov.SymmetricDim())
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// Val returns a copy of the estimated state
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns a copy of the estimated covariance
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// SOC returns state of charge i.e. the first state component
func (b *Base) SOC() float64 {
	return b.val.AtVec(0)
}

// Variance returns SOC variance
func (b *Base) Variance() float64 {
	return b.cov.At(0, 0)
}
