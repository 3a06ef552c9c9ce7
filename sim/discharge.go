// Package sim generates synthetic battery telemetry and plots estimation results.
package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	soc "github.com/milosgajdos/go-soc"
	"github.com/milosgajdos/go-soc/model"
	"github.com/milosgajdos/go-soc/noise"
	"github.com/milosgajdos/go-soc/telemetry"
	"gonum.org/v1/gonum/mat"
)

// Config configures constant current discharge
type Config struct {
	// Samples is the number of generated samples
	Samples int
	// Step is sampling period
	Step time.Duration
	// Start is the timestamp of the first sample
	Start time.Time
	// Current is discharge current [A]; negative current charges the battery
	Current float64
	// InitialSOC is SOC of the first sample in [0,1]
	InitialSOC float64
	// CapacityAh is battery capacity [Ah]
	CapacityAh float64
	// Efficiency is coulomb efficiency
	Efficiency float64
	// OCVEmpty is open circuit voltage at SOC 0 [V]
	OCVEmpty float64
	// OCVFull is open circuit voltage at SOC 1 [V]
	OCVFull float64
	// R0 is internal resistance [Ohm]
	R0 float64
	// Temperature is cell temperature [C]
	Temperature float64
	// VoltageNoise is standard deviation of voltage measurement noise [V]
	VoltageNoise float64
	// Seed seeds voltage noise
	Seed uint64
	// Labels adds true SOC labels in percent
	Labels bool
}

// DefaultConfig returns one hour of 10A discharge of a full 72Ah battery sampled every second
func DefaultConfig() Config {
	return Config{
		Samples:     3601,
		Step:        time.Second,
		Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Current:     10,
		InitialSOC:  1.0,
		CapacityAh:  72,
		Efficiency:  1.0,
		OCVEmpty:    3.0,
		OCVFull:     4.2,
		R0:          0.01,
		Temperature: 25,
		Seed:        1,
		Labels:      true,
	}
}

// Discharge is a synthetic telemetry source.
// Voltage follows a linear open circuit voltage curve minus the IR drop plus Gaussian noise.
type Discharge struct {
	c     Config
	model *model.Coulomb
	noise soc.Noise
}

// NewDischarge creates new Discharge and returns it.
func NewDischarge(c Config) (*Discharge, error) {
	if c.Samples <= 0 {
		return nil, fmt.Errorf("invalid number of samples: %d", c.Samples)
	}

	if c.Step <= 0 {
		return nil, fmt.Errorf("invalid step: %v", c.Step)
	}

	if c.InitialSOC < 0 || c.InitialSOC > 1 {
		return nil, fmt.Errorf("invalid initial SOC: %v", c.InitialSOC)
	}

	if c.VoltageNoise < 0 || math.IsNaN(c.VoltageNoise) {
		return nil, fmt.Errorf("invalid voltage noise: %v", c.VoltageNoise)
	}

	m, err := model.NewCoulomb(c.CapacityAh, c.Efficiency)
	if err != nil {
		return nil, err
	}

	n, err := noise.NewDiagonal(1, c.VoltageNoise*c.VoltageNoise, c.Seed)
	if err != nil {
		return nil, err
	}

	return &Discharge{
		c:     c,
		model: m,
		noise: n,
	}, nil
}

// OCV returns open circuit voltage at the given SOC
func (d *Discharge) OCV(soc float64) float64 {
	return d.c.OCVEmpty + (d.c.OCVFull-d.c.OCVEmpty)*soc
}

// Generate generates telemetry table. Repeated calls return identical tables.
func (d *Discharge) Generate() (*telemetry.Table, error) {
	if err := d.noise.Reset(); err != nil {
		return nil, fmt.Errorf("failed to reset noise: %w", err)
	}

	t := telemetry.NewTable(d.c.Samples)

	var x mat.Vector = mat.NewVecDense(1, []float64{d.c.InitialSOC})
	u := mat.NewVecDense(1, []float64{d.c.Current})
	dt := d.c.Step.Seconds()

	for i := 0; i < d.c.Samples; i++ {
		s := x.AtVec(0)

		v := d.OCV(s) - d.c.R0*d.c.Current + d.noise.Sample().AtVec(0)

		label := math.NaN()
		if d.c.Labels {
			label = s * 100
		}

		t.Append(d.c.Start.Add(time.Duration(i)*d.c.Step), d.c.Current, v, d.c.Temperature, label)

		next, err := d.model.Propagate(x, u, dt)
		if err != nil {
			return nil, fmt.Errorf("failed to propagate state: %w", err)
		}
		x = next
	}

	return t, nil
}

// Fetch implements soc.DataSource. The query is ignored.
func (d *Discharge) Fetch(ctx context.Context, q telemetry.Query) (*telemetry.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return d.Generate()
}
