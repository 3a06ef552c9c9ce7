package observe

import (
	"fmt"
	"log/slog"

	soc "github.com/milosgajdos/go-soc"
)

const (
	// BackendGRU selects RevIN+GRU network backend
	BackendGRU = "gru"
	// BackendDouble selects placeholder doubling backend
	BackendDouble = "double"
)

// Config selects and configures observation model backend
type Config struct {
	// Backend is either BackendGRU or BackendDouble
	Backend string
	// Path is the path to GRU weights
	Path string
	// Workers limits concurrent window evaluations
	Workers int
}

// Loader creates an observation model
type Loader func() (soc.ObservationModel, error)

// New creates the observation model selected by c and returns it.
// It returns error if the backend is unknown or fails to load.
func New(c Config, logger *slog.Logger) (soc.ObservationModel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch c.Backend {
	case BackendGRU, "":
		g, err := LoadGRU(c.Path, c.Workers)
		if err != nil {
			return nil, fmt.Errorf("failed to load GRU model: %w", err)
		}
		logger.Info("observation model loaded", "backend", BackendGRU, "path", c.Path, "model", g.String())
		return g, nil
	case BackendDouble:
		logger.Info("observation model loaded", "backend", BackendDouble)
		return NewDouble(), nil
	}

	return nil, fmt.Errorf("unknown observation model backend: %q", c.Backend)
}

// NewLoader returns Loader which creates the observation model selected by c.
func NewLoader(c Config, logger *slog.Logger) Loader {
	return func() (soc.ObservationModel, error) {
		return New(c, logger)
	}
}
