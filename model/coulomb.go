package model

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-soc/matrix"
	"gonum.org/v1/gonum/mat"
)

// secondsPerHour converts Ah to As
const secondsPerHour = 3600.0

// RC is a first order RC pair of an equivalent circuit model
type RC struct {
	// R is resistance [Ohm]
	R float64
	// Tau is time constant R*C [s]
	Tau float64
}

// Coulomb is a coulomb counting battery process model.
// State is [soc, v_rc1, ..., v_rcN], input is [current] with discharge current positive.
type Coulomb struct {
	// CapacityAh is nominal capacity [Ah]
	CapacityAh float64
	// Efficiency is coulomb efficiency (0,1]
	Efficiency float64
	// RC are optional RC pairs tracked as extra states
	RC []RC
}

// NewCoulomb creates new coulomb counting model and returns it.
// It returns error if capacity or efficiency are not positive or any RC pair is invalid.
func NewCoulomb(capacityAh, efficiency float64, rc ...RC) (*Coulomb, error) {
	if capacityAh <= 0 {
		return nil, fmt.Errorf("invalid capacity: %v", capacityAh)
	}

	if efficiency <= 0 || efficiency > 1 {
		return nil, fmt.Errorf("invalid coulomb efficiency: %v", efficiency)
	}

	for i, p := range rc {
		if p.R < 0 || p.Tau <= 0 {
			return nil, fmt.Errorf("invalid RC pair %d: %+v", i, p)
		}
	}

	pairs := make([]RC, len(rc))
	copy(pairs, rc)

	return &Coulomb{
		CapacityAh: capacityAh,
		Efficiency: efficiency,
		RC:         pairs,
	}, nil
}

// Delta returns SOC change removed by current [A] flowing for dt seconds
func (c *Coulomb) Delta(current, dt float64) float64 {
	return (c.Efficiency * current * dt) / (c.CapacityAh * secondsPerHour)
}

// Propagate propagates state x to the next step given input current u over dt seconds.
// SOC is clamped to [0, 1].
func (c *Coulomb) Propagate(x, u mat.Vector, dt float64) (mat.Vector, error) {
	nx, nu := c.Dims()
	if x == nil || x.Len() != nx {
		return nil, fmt.Errorf("invalid state vector")
	}

	if u == nil || u.Len() != nu {
		return nil, fmt.Errorf("invalid input vector")
	}

	if dt < 0 || math.IsNaN(dt) {
		return nil, fmt.Errorf("invalid time step: %v", dt)
	}

	current := u.AtVec(0)

	out := mat.NewVecDense(nx, nil)
	out.SetVec(0, matrix.Clamp(x.AtVec(0)-c.Delta(current, dt), 0, 1))

	for i, p := range c.RC {
		decay := math.Exp(-dt / p.Tau)
		out.SetVec(i+1, x.AtVec(i+1)*decay+p.R*(1-decay)*current)
	}

	return out, nil
}

// Dims returns state and input dimensions
func (c *Coulomb) Dims() (nx, nu int) {
	return 1 + len(c.RC), 1
}
