package observe

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Double is a placeholder observation model returning twice the first feature of the newest window row
type Double struct{}

// NewDouble creates new Double model and returns it
func NewDouble() *Double {
	return &Double{}
}

// Predict returns 2*w[last][0]
func (d *Double) Predict(w mat.Matrix) (float64, error) {
	if w == nil {
		return 0, fmt.Errorf("nil window")
	}

	rows, cols := w.Dims()
	if rows == 0 || cols == 0 {
		return 0, fmt.Errorf("empty window: [%d x %d]", rows, cols)
	}

	return 2 * w.At(rows-1, 0), nil
}

// PredictBatch returns predictions for all windows in ws in submission order
func (d *Double) PredictBatch(ctx context.Context, ws []mat.Matrix) ([]float64, error) {
	out := make([]float64, len(ws))
	for i, w := range ws {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := d.Predict(w)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		out[i] = p
	}

	return out, nil
}

// String implements fmt.Stringer
func (d *Double) String() string {
	return "Double"
}
