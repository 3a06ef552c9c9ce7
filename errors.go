package soc

import "errors"

var (
	// ErrInvalidData is returned when input telemetry is empty or malformed
	ErrInvalidData = errors.New("invalid data")
	// ErrNotPositiveDefinite is returned when covariance factorization fails even after regularization
	ErrNotPositiveDefinite = errors.New("covariance not positive definite")
	// ErrSingularInnovation is returned when innovation covariance can not be inverted
	ErrSingularInnovation = errors.New("singular innovation covariance")
	// ErrUnavailable is returned when the estimator has no usable observation model
	ErrUnavailable = errors.New("estimator unavailable")
)
