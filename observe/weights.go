package observe

import (
	"encoding/json"
	"fmt"
	"os"
)

// LinearWeights are weights of a fully connected layer: y = W*x + b
type LinearWeights struct {
	Weight [][]float64 `json:"weight"`
	Bias   []float64   `json:"bias"`
}

// GRULayerWeights are weights of a single GRU layer.
// Gate rows are stacked in the order reset, update, new.
type GRULayerWeights struct {
	WeightIH [][]float64 `json:"weight_ih"`
	WeightHH [][]float64 `json:"weight_hh"`
	BiasIH   []float64   `json:"bias_ih"`
	BiasHH   []float64   `json:"bias_hh"`
}

// RevINWeights are affine parameters of reversible instance normalization
type RevINWeights struct {
	Gamma []float64 `json:"gamma"`
	Beta  []float64 `json:"beta"`
	Eps   float64   `json:"eps"`
}

// GRUWeights are weights of RevIN+GRU voltage model
type GRUWeights struct {
	InputSize  int               `json:"input_size"`
	HiddenSize int               `json:"hidden_size"`
	RevIN      *RevINWeights     `json:"revin,omitempty"`
	Layers     []GRULayerWeights `json:"layers"`
	FC1        LinearWeights     `json:"fc1"`
	FC2        LinearWeights     `json:"fc2"`
}

// ReadWeights reads GRU weights from a JSON file at path.
func ReadWeights(path string) (*GRUWeights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}

	w := new(GRUWeights)
	if err := json.Unmarshal(data, w); err != nil {
		return nil, fmt.Errorf("failed to decode weights %s: %w", path, err)
	}

	return w, nil
}
