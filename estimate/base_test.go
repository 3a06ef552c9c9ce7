package estimate

import (
	"testing"

	soc "github.com/milosgajdos/go-soc"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var _ soc.Estimate = (*Base)(nil)

func TestNewBaseWithCov(t *testing.T) {
	assert := assert.New(t)

	state := mat.NewVecDense(2, []float64{0.5, 0.01})
	cov := mat.NewSymDense(2, []float64{1.0, 0.0, 0.0, 1.0})

	b, err := NewBaseWithCov(state, cov)
	assert.NotNil(b)
	assert.NoError(err)

	b, err = NewBaseWithCov(state, mat.NewSymDense(1, []float64{1.0}))
	assert.Nil(b)
	assert.Error(err)

	b, err = NewBaseWithCov(nil, cov)
	assert.Nil(b)
	assert.Error(err)
}

func TestValCovAreCopies(t *testing.T) {
	assert := assert.New(t)

	state := mat.NewVecDense(2, []float64{0.8, 0.02})
	cov := mat.NewSymDense(2, []float64{0.1, 0.01, 0.01, 0.2})

	b, err := NewBaseWithCov(state, cov)
	assert.NoError(err)

	assert.Equal(0.8, b.SOC())
	assert.Equal(0.1, b.Variance())

	v := b.Val().(*mat.VecDense)
	v.SetVec(0, 0.1)
	assert.Equal(0.8, b.SOC())

	c := b.Cov().(*mat.SymDense)
	c.SetSym(0, 0, 5)
	assert.Equal(0.1, b.Variance())

	r, cl := b.Cov().Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < cl; j++ {
			assert.Equal(cov.At(i, j), b.cov.At(i, j))
		}
	}
}
