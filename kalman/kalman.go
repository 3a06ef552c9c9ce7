package kalman

import (
	soc "github.com/milosgajdos/go-soc"
	"gonum.org/v1/gonum/mat"
)

// Kalman is a Kalman filter estimating battery state from an externally predicted observation
type Kalman interface {
	// Predict propagates filter state by dt seconds given input u
	Predict(u mat.Vector, dt float64) (soc.Estimate, error)
	// Update corrects filter state using measurement z and its predicted value zPred
	Update(z, zPred mat.Vector) (soc.Estimate, error)
	// Cov returns Kalman filter state covariance
	Cov() mat.Symmetric
	// Gain returns Kalman filter gain
	Gain() mat.Matrix
}
