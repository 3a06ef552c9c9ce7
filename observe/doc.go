// Package observe provides observation model backends mapping a feature window
// of shape [time steps x features] to a predicted scaled terminal voltage.
package observe
