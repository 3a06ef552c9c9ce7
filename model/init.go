package model

import (
	"fmt"

	"github.com/milosgajdos/go-soc/matrix"
	"gonum.org/v1/gonum/mat"
)

// InitCond implements soc.InitCond
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond creates new InitCond and returns it.
// It returns error if state and cov dimensions do not match.
func NewInitCond(state mat.Vector, cov mat.Symmetric) (*InitCond, error) {
	if state.Len() != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid initial condition dimensions: %d != %d", state.Len(), cov.SymmetricDim())
	}

	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}, nil
}

// NewSOCInitCond returns initial condition of an n dimensional state whose
// SOC component is soc, remaining components are zero and covariance is v*I.
func NewSOCInitCond(n int, soc, v float64) (*InitCond, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid state dimension: %d", n)
	}

	state := mat.NewVecDense(n, nil)
	state.SetVec(0, matrix.Clamp(soc, 0, 1))

	return NewInitCond(state, matrix.Eye(n, v))
}

// State returns initial state
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CopyVec(c.state)

	return state
}

// Cov returns initial covariance
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}
