package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	soc "github.com/milosgajdos/go-soc"
	"github.com/milosgajdos/go-soc/feature"
	"github.com/milosgajdos/go-soc/kalman/ukf"
	"github.com/milosgajdos/go-soc/metrics"
	"github.com/milosgajdos/go-soc/model"
	"github.com/milosgajdos/go-soc/noise"
	"github.com/milosgajdos/go-soc/telemetry"
	"gonum.org/v1/gonum/mat"
)

// featureWidth is the number of features per step: current, temperature, previous SOC
const featureWidth = 3

// noiseSeed seeds noise sources; the filter only reads their covariance
const noiseSeed = 1

// Loop is a single estimation session over a telemetry table.
// A Loop must not be reused.
type Loop struct {
	p       Params
	model   soc.ObservationModel
	phase   Phase
	logger  *slog.Logger
	metrics *metrics.Metrics

	table   *telemetry.Table
	filter  *ukf.UKF
	buffer  *feature.Buffer
	sched   *Scheduler
	voltage *feature.Scaler
	soc     *feature.Scaler
	// socScaled is the scaled SOC history read by feature windows
	socScaled []float64
	// variance is the variance of the latest SOC estimate
	variance float64
	res       *Result
}

// NewLoop creates new Loop estimating SOC with params p and observation model m.
func NewLoop(p Params, m soc.ObservationModel, opts ...Option) (*Loop, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if m == nil {
		return nil, fmt.Errorf("nil observation model")
	}

	o := newOptions(opts...)

	return &Loop{
		p:       p,
		model:   m,
		phase:   WarmingUp,
		logger:  o.logger,
		metrics: o.metrics,
	}, nil
}

// Phase returns the current phase
func (l *Loop) Phase() Phase {
	return l.phase
}

// seed returns SOC seed sequence in [0,1] and reports whether labels were used.
// Labels are used only if requested and the first one is present; missing labels are forward filled.
func seed(t *telemetry.Table, useLabels bool, initial float64) ([]float64, bool) {
	n := t.Len()
	out := make([]float64, n)

	if useLabels && len(t.SOC) == n && !math.IsNaN(t.SOC[0]) {
		last := t.SOC[0] / 100
		for i, v := range t.SOC {
			if !math.IsNaN(v) {
				last = v / 100
			}
			out[i] = last
		}
		return out, true
	}

	for i := range out {
		out[i] = initial
	}

	return out, false
}

func (l *Loop) init(t *telemetry.Table, useLabels bool) ([]float64, []float64, error) {
	if err := t.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", soc.ErrInvalidData, err)
	}

	seq, labelled := seed(t, useLabels, l.p.InitialSOC)

	current, err := feature.NewScaler(t.Current)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: current: %v", soc.ErrInvalidData, err)
	}
	temp, err := feature.NewScaler(t.Temperature)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: temperature: %v", soc.ErrInvalidData, err)
	}
	if l.voltage, err = feature.NewScaler(t.Voltage); err != nil {
		return nil, nil, fmt.Errorf("%w: voltage: %v", soc.ErrInvalidData, err)
	}
	if l.soc, err = feature.NewScaler(seq); err != nil {
		return nil, nil, fmt.Errorf("%w: soc: %v", soc.ErrInvalidData, err)
	}

	coulomb, err := model.NewCoulomb(l.p.CapacityAh, l.p.Efficiency, l.p.RC...)
	if err != nil {
		return nil, nil, err
	}
	nx, _ := coulomb.Dims()

	ic, err := model.NewSOCInitCond(nx, seq[0], l.p.P0)
	if err != nil {
		return nil, nil, err
	}

	q, err := noise.NewDiagonal(nx, l.p.Q, noiseSeed)
	if err != nil {
		return nil, nil, err
	}
	r, err := noise.NewDiagonal(1, l.p.R, noiseSeed)
	if err != nil {
		return nil, nil, err
	}

	if l.filter, err = ukf.New(coulomb, ic, q, r, &l.p.Filter); err != nil {
		return nil, nil, err
	}

	if l.buffer, err = feature.NewBuffer(l.p.SeqLen, featureWidth); err != nil {
		return nil, nil, err
	}

	if l.sched, err = NewScheduler(l.model, l.p.BatchSize, WithLogger(l.logger), WithMetrics(l.metrics)); err != nil {
		return nil, nil, err
	}

	l.table = t
	l.socScaled = l.soc.TransformAll(seq)
	l.res = newResult(t.Time)
	l.res.SOC[0] = l.filter.SOC()
	l.variance = l.filter.Cov().At(0, 0)
	if labelled {
		l.res.Labels = make([]float64, t.Len())
		for i, v := range t.SOC {
			l.res.Labels[i] = v / 100
		}
	}

	return current.TransformAll(t.Current), temp.TransformAll(t.Temperature), nil
}

// Run estimates SOC over table t. If useLabels is true and the first SOC label is present,
// labels seed the session and SOC metrics are computed against them.
// Run stops between steps when ctx is cancelled and returns the context error.
func (l *Loop) Run(ctx context.Context, t *telemetry.Table, useLabels bool) (*Result, error) {
	if l.res != nil {
		return nil, fmt.Errorf("loop already run")
	}

	cs, ts, err := l.init(t, useLabels)
	if err != nil {
		return nil, err
	}

	defer l.reportRegularizations()

	n := t.Len()
	for i := 1; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := l.buffer.Push([]float64{cs[i], ts[i], l.socScaled[i-1]}); err != nil {
			return nil, err
		}

		if !l.buffer.Ready() {
			l.res.record(i, WarmingUp, l.res.SOC[i-1], t.Voltage[i], t.Voltage[i])
			l.metrics.ObserveSample(WarmingUp.String())
			continue
		}

		if l.phase == WarmingUp {
			l.logger.Debug("filtering started", "step", i)
			l.phase = Filtering
		}

		if full := l.sched.Add(i, l.buffer.Window()); !full && i != n-1 {
			continue
		}

		preds, err := l.sched.Flush(ctx)
		if err != nil {
			return nil, err
		}

		for _, p := range preds {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := l.step(p); err != nil {
				return nil, fmt.Errorf("step %d: %w", p.Step, err)
			}
		}
	}

	l.phase = Done
	l.res.summarize()
	l.res.Metrics.FinalVariance = l.variance

	return l.res, nil
}

// reportRegularizations records covariance regularizations of the session, whether it succeeded or not.
func (l *Loop) reportRegularizations() {
	regs := l.filter.Regularizations()
	l.metrics.ObserveRegularizations(regs)
	if regs > 0 {
		l.logger.Warn("covariance regularized", "count", regs)
	}
}

// step runs UKF predict and update of step p.Step using prediction p.
func (l *Loop) step(p Prediction) error {
	i := p.Step
	t := l.table

	dt := t.Time[i].Sub(t.Time[i-1]).Seconds()
	u := mat.NewVecDense(1, []float64{t.Current[i]})
	if _, err := l.filter.Predict(u, dt); err != nil {
		return err
	}

	vPred := l.voltage.Inverse(p.Value)
	z := mat.NewVecDense(1, []float64{t.Voltage[i]})
	zPred := mat.NewVecDense(1, []float64{vPred})
	est, err := l.filter.Update(z, zPred)
	if err != nil {
		return err
	}

	l.variance = est.Variance()
	l.res.record(i, Filtering, est.SOC(), vPred, t.Voltage[i])
	l.socScaled[i] = l.soc.Transform(est.SOC())
	l.metrics.ObserveSample(Filtering.String())

	return nil
}
