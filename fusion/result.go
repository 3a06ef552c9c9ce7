package fusion

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Metrics are summary metrics of an estimation session
type Metrics struct {
	// VoltageRMSE is RMSE of predicted voltage [V]
	VoltageRMSE float64 `json:"voltage_rmse"`
	// VoltageMAE is MAE of predicted voltage [V]
	VoltageMAE float64 `json:"voltage_mae"`
	// InitialSOC is the initial SOC [%]
	InitialSOC float64 `json:"initial_soc"`
	// FinalSOC is the final SOC [%]
	FinalSOC float64 `json:"final_soc"`
	// FinalVariance is the variance of the final SOC estimate
	FinalVariance float64 `json:"final_soc_variance"`
	// SOCRMSE is RMSE of SOC against labels, if labels were used
	SOCRMSE *float64 `json:"soc_rmse,omitempty"`
	// SOCMAE is MAE of SOC against labels, if labels were used
	SOCMAE *float64 `json:"soc_mae,omitempty"`
}

// Result is the outcome of an estimation session.
// SOC holds one value per input sample; the remaining series hold one value per step
// where step i pairs sample i with sample i-1.
type Result struct {
	// Time are sample timestamps
	Time []time.Time `json:"timestamps"`
	// SOC are SOC estimates in [0,1]
	SOC []float64 `json:"soc_estimates"`
	// VoltagePredicted are predicted terminal voltages [V]
	VoltagePredicted []float64 `json:"voltage_predictions"`
	// VoltageActual are measured terminal voltages [V]
	VoltageActual []float64 `json:"voltage_actual"`
	// Phases are fusion phases of every step
	Phases []Phase `json:"phases"`
	// Labels are SOC labels in [0,1] used to seed the session; NaN when missing
	Labels []float64 `json:"-"`
	// Metrics are summary metrics
	Metrics Metrics `json:"metrics"`
}

func newResult(ts []time.Time) *Result {
	n := len(ts)
	steps := max(n-1, 0)

	r := &Result{
		Time:             make([]time.Time, n),
		SOC:              make([]float64, n),
		VoltagePredicted: make([]float64, steps),
		VoltageActual:    make([]float64, steps),
		Phases:           make([]Phase, steps),
	}
	copy(r.Time, ts)

	return r
}

// record stores the outcome of step i.
func (r *Result) record(i int, phase Phase, soc, vPred, vAct float64) {
	r.SOC[i] = soc
	r.VoltagePredicted[i-1] = vPred
	r.VoltageActual[i-1] = vAct
	r.Phases[i-1] = phase
}

// summarize computes result metrics.
func (r *Result) summarize() {
	m := Metrics{}

	if n := len(r.VoltageActual); n > 0 {
		diff := make([]float64, n)
		floats.SubTo(diff, r.VoltageActual, r.VoltagePredicted)
		m.VoltageRMSE = floats.Norm(diff, 2) / math.Sqrt(float64(n))
		m.VoltageMAE = floats.Norm(diff, 1) / float64(n)
	}

	if len(r.SOC) > 0 {
		m.InitialSOC = r.SOC[0] * 100
		m.FinalSOC = r.SOC[len(r.SOC)-1] * 100
	}

	if len(r.Labels) == len(r.SOC) {
		var sq, abs float64
		count := 0
		for i, l := range r.Labels {
			if math.IsNaN(l) {
				continue
			}
			d := r.SOC[i] - l
			sq += d * d
			abs += math.Abs(d)
			count++
		}

		if count > 0 {
			rmse := math.Sqrt(sq / float64(count))
			mae := abs / float64(count)
			m.SOCRMSE, m.SOCMAE = &rmse, &mae
		}
	}

	r.Metrics = m
}
