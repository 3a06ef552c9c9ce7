package ukf

import (
	"fmt"
	"math"

	soc "github.com/milosgajdos/go-soc"
	"github.com/milosgajdos/go-soc/estimate"
	"github.com/milosgajdos/go-soc/matrix"
	"github.com/milosgajdos/go-soc/noise"
	"gonum.org/v1/gonum/mat"
)

// UKF is Unscented (aka Sigma Point) Kalman Filter estimating battery SOC.
// The first state component is SOC and it is always kept within [0,1].
// Observation is a scalar terminal voltage predicted outside of the filter,
// so the sigma point observation function selects the SOC component.
type UKF struct {
	// model is UKF process model
	model soc.Model
	// w are sigma point weights
	w *Weights
	// q is process noise
	q soc.Noise
	// r is measurement noise
	r soc.Noise
	// x is filter state
	x *mat.VecDense
	// p is the UKF covariance matrix
	p *mat.SymDense
	// inn is the last innovation
	inn float64
	// k is Kalman gain
	k *mat.Dense
	// regs counts covariance regularizations
	regs int
}

// New creates new UKF and returns it.
// It accepts the following arguments:
// - model:  process model
// - init:   initial condition of the filter
// - q:      process noise; nil means no noise
// - r:      measurement noise; nil means no noise
// - c:      filter configuration
// It returns error if any of the dimensions do not match or if the config is invalid.
func New(model soc.Model, init soc.InitCond, q, r soc.Noise, c *Config) (*UKF, error) {
	nx, _ := model.Dims()
	if nx <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: %d", nx)
	}

	w, err := NewWeights(nx, c)
	if err != nil {
		return nil, err
	}

	state, cov := init.State(), init.Cov()
	if state.Len() != nx || cov.SymmetricDim() != nx {
		return nil, fmt.Errorf("invalid initial condition dimensions: state=%d cov=%d model=%d",
			state.Len(), cov.SymmetricDim(), nx)
	}

	if q == nil {
		if q, err = noise.NewZero(nx); err != nil {
			return nil, err
		}
	}
	if q.Cov().SymmetricDim() != nx {
		return nil, fmt.Errorf("invalid process noise dimension: %d", q.Cov().SymmetricDim())
	}

	if r == nil {
		if r, err = noise.NewZero(1); err != nil {
			return nil, err
		}
	}
	if r.Cov().SymmetricDim() != 1 {
		return nil, fmt.Errorf("invalid measurement noise dimension: %d", r.Cov().SymmetricDim())
	}

	x := &mat.VecDense{}
	x.CloneFromVec(state)
	x.SetVec(0, matrix.Clamp(x.AtVec(0), 0, 1))

	p := mat.NewSymDense(nx, nil)
	p.CopySym(cov)

	return &UKF{
		model: model,
		w:     w,
		q:     q,
		r:     r,
		x:     x,
		p:     p,
		k:     mat.NewDense(nx, 1, nil),
	}, nil
}

// GenSigmaPoints generates sigma points for the current filter state and covariance.
func (k *UKF) GenSigmaPoints() (*SigmaPoints, error) {
	return k.w.SigmaPoints(k.x, k.p)
}

func (k *UKF) sigmaPoints(x mat.Vector, p mat.Symmetric) (*SigmaPoints, error) {
	sp, err := k.w.SigmaPoints(x, p)
	if err != nil {
		return nil, err
	}

	if sp.Regularized {
		k.regs++
	}

	return sp, nil
}

// Predict propagates the filter state by dt seconds given input u and returns the predicted estimate.
// It returns error if it fails to generate or propagate sigma points.
// Filter state is left untouched on error.
func (k *UKF) Predict(u mat.Vector, dt float64) (soc.Estimate, error) {
	sp, err := k.sigmaPoints(k.x, k.p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate sigma points: %w", err)
	}

	nx, cols := sp.X.Dims()

	xs := mat.NewDense(nx, cols, nil)
	mean := mat.NewVecDense(nx, nil)
	for c := 0; c < cols; c++ {
		next, err := k.model.Propagate(sp.X.ColView(c), u, dt)
		if err != nil {
			return nil, fmt.Errorf("failed to propagate sigma point: %w", err)
		}

		for r := 0; r < nx; r++ {
			xs.Set(r, c, next.AtVec(r))
		}
		mean.AddScaledVec(mean, k.w.Mean[c], next)
	}

	cov := mat.NewSymDense(nx, nil)
	cov.CopySym(k.q.Cov())

	d := mat.NewVecDense(nx, nil)
	for c := 0; c < cols; c++ {
		d.SubVec(xs.ColView(c), mean)
		cov.SymRankOne(cov, k.w.Cov[c], d)
	}

	mean.SetVec(0, matrix.Clamp(mean.AtVec(0), 0, 1))

	est, err := estimate.NewBaseWithCov(mean, cov)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate next state: %w", err)
	}

	// it's safe to update the filter state
	k.x.CopyVec(mean)
	k.p.CopySym(cov)

	return est, nil
}

// Update corrects the filter state using measurement z and its predicted value zPred.
// Both z and zPred must be vectors of length 1.
// It returns soc.ErrSingularInnovation if the innovation covariance can not be inverted.
// Filter state is left untouched on error.
func (k *UKF) Update(z, zPred mat.Vector) (soc.Estimate, error) {
	if z.Len() != 1 || zPred.Len() != 1 {
		return nil, fmt.Errorf("invalid measurement dimensions: z=%d zPred=%d", z.Len(), zPred.Len())
	}

	sp, err := k.sigmaPoints(k.x, k.p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate sigma points: %w", err)
	}

	nx, cols := sp.X.Dims()

	zs := make([]float64, cols)
	zMean := 0.0
	for c := 0; c < cols; c++ {
		zs[c] = sp.X.At(0, c)
		zMean += k.w.Mean[c] * zs[c]
	}

	pzz := mat.NewDense(1, 1, []float64{k.r.Cov().At(0, 0)})
	pxz := mat.NewDense(nx, 1, nil)

	dx := mat.NewVecDense(nx, nil)
	for c := 0; c < cols; c++ {
		dz := zs[c] - zMean
		pzz.Set(0, 0, pzz.At(0, 0)+k.w.Cov[c]*dz*dz)

		dx.SubVec(sp.X.ColView(c), k.x)
		for r := 0; r < nx; r++ {
			pxz.Set(r, 0, pxz.At(r, 0)+k.w.Cov[c]*dx.AtVec(r)*dz)
		}
	}

	gain, err := kalmanGain(pxz, pzz)
	if err != nil {
		return nil, err
	}

	inn := z.AtVec(0) - zPred.AtVec(0)

	x := &mat.VecDense{}
	x.CloneFromVec(k.x)
	x.AddScaledVec(x, inn, gain.ColView(0))
	x.SetVec(0, matrix.Clamp(x.AtVec(0), 0, 1))

	kp := &mat.Dense{}
	kp.Mul(gain, pzz)
	kpk := &mat.Dense{}
	kpk.Mul(kp, gain.T())
	// the correction is relative to the covariance the sigma points were drawn from
	pCorr := &mat.Dense{}
	pCorr.Sub(sp.Cov, kpk)
	p := matrix.Symmetrize(pCorr)
	if minEig, ok := matrix.MinEigen(p); ok && minEig < 0 {
		if clipped, ok := matrix.ClipEigen(p); ok {
			p = clipped
		}
	}

	est, err := estimate.NewBaseWithCov(x, p)
	if err != nil {
		return nil, fmt.Errorf("failed to update estimate: %w", err)
	}

	k.x.CopyVec(x)
	k.p.CopySym(p)
	k.k.Copy(gain)
	k.inn = inn

	return est, nil
}

// kalmanGain returns pxz * inv(pzz).
func kalmanGain(pxz, pzz *mat.Dense) (*mat.Dense, error) {
	v := pzz.At(0, 0)
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("innovation covariance %v: %w", v, soc.ErrSingularInnovation)
	}

	pzzInv := &mat.Dense{}
	if err := pzzInv.Inverse(pzz); err != nil {
		return nil, fmt.Errorf("%w: %v", soc.ErrSingularInnovation, err)
	}

	gain := &mat.Dense{}
	gain.Mul(pxz, pzzInv)

	return gain, nil
}

// SOC returns current SOC estimate in [0,1]
func (k *UKF) SOC() float64 {
	return k.x.AtVec(0)
}

// State returns current filter state
func (k *UKF) State() mat.Vector {
	x := &mat.VecDense{}
	x.CloneFromVec(k.x)

	return x
}

// Cov returns UKF covariance
func (k *UKF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// Gain returns Kalman gain
func (k *UKF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}

// Innovation returns the last measurement residual z-zPred
func (k *UKF) Innovation() float64 {
	return k.inn
}

// Regularizations returns the number of times the covariance had to be regularized
func (k *UKF) Regularizations() int {
	return k.regs
}
