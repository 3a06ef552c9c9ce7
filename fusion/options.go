package fusion

import (
	"log/slog"

	"github.com/milosgajdos/go-soc/metrics"
)

type options struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures Engine and Loop
type Option func(*options)

// WithLogger sets logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets metrics collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func newOptions(opts ...Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	return o
}
