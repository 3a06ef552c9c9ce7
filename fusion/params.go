package fusion

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/milosgajdos/go-soc/kalman/ukf"
	"github.com/milosgajdos/go-soc/model"
)

var validate = validator.New()

// Params are immutable estimation session parameters
type Params struct {
	// Filter are UKF sigma point parameters
	Filter ukf.Config
	// Q is process noise variance of every state component
	Q float64 `validate:"gte=0"`
	// R is measurement noise variance
	R float64 `validate:"gte=0"`
	// P0 is initial state variance
	P0 float64 `validate:"gte=0"`
	// InitialSOC is SOC used when no label seeds the session
	InitialSOC float64 `validate:"gte=0,lte=1"`
	// CapacityAh is battery capacity [Ah]
	CapacityAh float64 `validate:"gt=0"`
	// Efficiency is coulomb efficiency
	Efficiency float64 `validate:"gt=0,lte=1"`
	// RC are optional RC pairs extending the state
	RC []model.RC
	// SeqLen is feature window length
	SeqLen int `validate:"gt=0"`
	// BatchSize is the number of windows per observation model call
	BatchSize int `validate:"gt=0"`
}

// DefaultParams returns default estimation parameters
func DefaultParams() Params {
	return Params{
		Filter: ukf.Config{
			Alpha: 1.0,
			Beta:  2.0,
			Kappa: 0.0,
		},
		Q:          1e-6,
		R:          1e-3,
		P0:         1e-4,
		InitialSOC: 1.0,
		CapacityAh: 72,
		Efficiency: 0.995,
		SeqLen:     64,
		BatchSize:  32,
	}
}

// Validate validates p
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}

	if _, err := ukf.NewWeights(1+len(p.RC), &p.Filter); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}

	if _, err := model.NewCoulomb(p.CapacityAh, p.Efficiency, p.RC...); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}

	return nil
}
