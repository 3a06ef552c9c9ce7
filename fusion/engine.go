package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	soc "github.com/milosgajdos/go-soc"
	"github.com/milosgajdos/go-soc/metrics"
	"github.com/milosgajdos/go-soc/observe"
	"github.com/milosgajdos/go-soc/telemetry"
)

// Options are per request estimation options
type Options struct {
	// UseLabels seeds the session from SOC labels when available
	UseLabels bool
}

// Engine owns an observation model and runs estimation sessions with it.
// Engine is safe for concurrent use if its observation model is.
type Engine struct {
	p       Params
	model   soc.ObservationModel
	err     error
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine creates new Engine loading the observation model with load.
// A failing load does not fail the construction: the engine reports itself
// unavailable instead. It returns error if p is invalid.
func NewEngine(p Params, load observe.Loader, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	o := newOptions(opts...)

	e := &Engine{
		p:       p,
		logger:  o.logger,
		metrics: o.metrics,
	}

	var err error
	switch {
	case load == nil:
		err = fmt.Errorf("no model loader")
	default:
		e.model, err = load()
		if err == nil && e.model == nil {
			err = fmt.Errorf("loader returned no model")
		}
	}

	if err != nil {
		e.model = nil
		e.err = fmt.Errorf("%w: %v", soc.ErrUnavailable, err)
		e.logger.Warn("estimator unavailable", "error", err)
	}

	return e, nil
}

// Available returns true if the engine has a usable observation model
func (e *Engine) Available() bool {
	return e.err == nil
}

// Err returns the reason the engine is unavailable or nil
func (e *Engine) Err() error {
	return e.err
}

// Params returns engine params
func (e *Engine) Params() Params {
	return e.p
}

// Estimate runs a new estimation session over table t.
// It returns soc.ErrUnavailable if the engine has no observation model.
func (e *Engine) Estimate(ctx context.Context, t *telemetry.Table, o Options) (*Result, error) {
	if e.err != nil {
		return nil, e.err
	}

	loop, err := NewLoop(e.p, e.model, WithLogger(e.logger), WithMetrics(e.metrics))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e.logger.Info("estimation started", "samples", t.Len(), "seq_len", e.p.SeqLen, "batch_size", e.p.BatchSize)

	res, err := loop.Run(ctx, t, o.UseLabels)
	e.metrics.ObserveEstimation(err, time.Since(start))
	if err != nil {
		e.logger.Error("estimation failed", "error", err)
		return nil, err
	}

	e.logger.Info("estimation finished",
		"samples", t.Len(),
		"initial_soc", res.Metrics.InitialSOC,
		"final_soc", res.Metrics.FinalSOC,
		"voltage_rmse", res.Metrics.VoltageRMSE,
		"duration", time.Since(start))

	return res, nil
}

// EstimateQuery fetches telemetry matching q from src and estimates SOC over it.
func (e *Engine) EstimateQuery(ctx context.Context, src soc.DataSource, q telemetry.Query, o Options) (*Result, error) {
	if e.err != nil {
		return nil, e.err
	}

	t, err := src.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", q, err)
	}

	return e.Estimate(ctx, t, o)
}
