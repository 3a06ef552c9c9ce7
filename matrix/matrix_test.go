package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestEye(t *testing.T) {
	assert := assert.New(t)

	m := Eye(3, 0.5)
	assert.Equal(3, m.SymmetricDim())
	assert.Equal(0.5, m.At(2, 2))
	assert.Equal(0.0, m.At(0, 2))
}

func TestSymmetrize(t *testing.T) {
	assert := assert.New(t)

	m := mat.NewDense(2, 2, []float64{1.0, 2.0, 4.0, 3.0})
	assert.InDelta(2.0, MaxAsymmetry(m), 1e-12)

	s := Symmetrize(m)
	assert.Equal(3.0, s.At(0, 1))
	assert.Equal(3.0, s.At(1, 0))
	assert.Equal(0.0, MaxAsymmetry(s))

	assert.Panics(func() { Symmetrize(mat.NewDense(2, 3, nil)) })
	assert.Panics(func() { MaxAsymmetry(mat.NewDense(3, 2, nil)) })
}

func TestMinEigen(t *testing.T) {
	assert := assert.New(t)

	s := mat.NewSymDense(2, []float64{2, 1, 1, 2})
	min, ok := MinEigen(s)
	assert.True(ok)
	assert.InDelta(1.0, min, 1e-9)

	s = mat.NewSymDense(2, []float64{1, 2, 2, 1})
	min, ok = MinEigen(s)
	assert.True(ok)
	assert.InDelta(-1.0, min, 1e-9)
}

func TestClipEigen(t *testing.T) {
	assert := assert.New(t)

	s := mat.NewSymDense(2, []float64{1, 2, 2, 1})
	c, ok := ClipEigen(s)
	assert.True(ok)
	assert.InDelta(1.5, c.At(0, 0), 1e-9)
	assert.InDelta(1.5, c.At(0, 1), 1e-9)
	assert.InDelta(1.5, c.At(1, 1), 1e-9)

	min, ok := MinEigen(c)
	assert.True(ok)
	assert.InDelta(0.0, min, 1e-9)

	// positive definite matrix is unchanged
	s = mat.NewSymDense(2, []float64{2, 1, 1, 2})
	c, ok = ClipEigen(s)
	assert.True(ok)
	assert.True(mat.EqualApprox(s, c, 1e-12))

	// scalar negative variance is clipped to exactly zero
	c, ok = ClipEigen(mat.NewSymDense(1, []float64{-1e-24}))
	assert.True(ok)
	assert.Equal(0.0, c.At(0, 0))
}

func TestClamp(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(1.0, Clamp(1.2, 0, 1))
	assert.Equal(0.0, Clamp(-0.1, 0, 1))
	assert.Equal(0.5, Clamp(0.5, 0, 1))
}
