package soc

import (
	"context"

	"github.com/milosgajdos/go-soc/telemetry"
	"gonum.org/v1/gonum/mat"
)

// Propagator propagates internal state of the system to the next step
type Propagator interface {
	// Propagate propagates state x to the next step given input u over time step dt [s]
	Propagate(x, u mat.Vector, dt float64) (mat.Vector, error)
}

// Model is a process model of the battery
type Model interface {
	// Propagator is system propagator
	Propagator
	// Dims returns state and input dimensions of the model
	Dims() (nx, nu int)
}

// InitCond is initial state condition of the filter
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Estimate is filter estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
	// SOC returns estimated state of charge
	SOC() float64
	// Variance returns variance of the estimated state of charge
	Variance() float64
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}

// ObservationModel predicts terminal voltage from a window of feature vectors.
// Windows are stored row-wise: row i is the i-th oldest feature vector.
type ObservationModel interface {
	// Predict returns prediction for a single window
	Predict(w mat.Matrix) (float64, error)
	// PredictBatch returns predictions for all windows in submission order.
	// It must be equivalent to calling Predict once per window.
	PredictBatch(ctx context.Context, ws []mat.Matrix) ([]float64, error)
}

// DataSource fetches telemetry tables
type DataSource interface {
	// Fetch returns time ordered telemetry matching q
	Fetch(ctx context.Context, q telemetry.Query) (*telemetry.Table, error)
}
