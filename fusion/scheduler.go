package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	soc "github.com/milosgajdos/go-soc"
	"github.com/milosgajdos/go-soc/metrics"
	"gonum.org/v1/gonum/mat"
)

// Prediction is observation model output for a single step
type Prediction struct {
	// Step is the index of the telemetry sample
	Step int
	// Value is the predicted scaled voltage
	Value float64
}

// Scheduler accumulates feature windows and evaluates them in batches
type Scheduler struct {
	model   soc.ObservationModel
	size    int
	windows []mat.Matrix
	steps   []int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewScheduler creates new Scheduler evaluating up to size windows per observation model call.
func NewScheduler(m soc.ObservationModel, size int, opts ...Option) (*Scheduler, error) {
	if m == nil {
		return nil, fmt.Errorf("nil observation model")
	}

	if size <= 0 {
		return nil, fmt.Errorf("invalid batch size: %d", size)
	}

	o := newOptions(opts...)

	return &Scheduler{
		model:   m,
		size:    size,
		windows: make([]mat.Matrix, 0, size),
		steps:   make([]int, 0, size),
		logger:  o.logger,
		metrics: o.metrics,
	}, nil
}

// Add queues window w of the given step and returns true once the batch is full.
func (s *Scheduler) Add(step int, w mat.Matrix) bool {
	s.windows = append(s.windows, w)
	s.steps = append(s.steps, step)

	return len(s.windows) >= s.size
}

// Pending returns the number of queued windows
func (s *Scheduler) Pending() int {
	return len(s.windows)
}

// Flush evaluates all queued windows in a single observation model call
// and returns predictions in submission order. The queue is emptied.
func (s *Scheduler) Flush(ctx context.Context) ([]Prediction, error) {
	if len(s.windows) == 0 {
		return nil, nil
	}

	windows, steps := s.windows, s.steps
	s.windows = make([]mat.Matrix, 0, s.size)
	s.steps = make([]int, 0, s.size)

	start := time.Now()
	vals, err := s.model.PredictBatch(ctx, windows)
	if err != nil {
		return nil, fmt.Errorf("observation model batch failed: %w", err)
	}

	if len(vals) != len(windows) {
		return nil, fmt.Errorf("observation model returned %d predictions for %d windows", len(vals), len(windows))
	}

	s.metrics.ObserveBatch(len(windows), time.Since(start))
	s.logger.Debug("batch flushed", "size", len(windows), "first_step", steps[0], "duration", time.Since(start))

	preds := make([]Prediction, len(vals))
	for i, v := range vals {
		preds[i] = Prediction{
			Step:  steps[i],
			Value: v,
		}
	}

	return preds, nil
}
