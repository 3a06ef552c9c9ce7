package observe

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func zeros(r, c int) [][]float64 {
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
	}
	return out
}

func randn(rnd *rand.Rand, r, c int, scale float64) [][]float64 {
	out := zeros(r, c)
	for i := range out {
		for j := range out[i] {
			out[i][j] = scale * rnd.NormFloat64()
		}
	}
	return out
}

func randomWeights(seed uint64, in, hidden, layers int) *GRUWeights {
	rnd := rand.New(rand.NewSource(seed))

	w := &GRUWeights{
		InputSize:  in,
		HiddenSize: hidden,
		RevIN: &RevINWeights{
			Gamma: make([]float64, in),
			Beta:  make([]float64, in),
		},
	}
	for i := 0; i < in; i++ {
		w.RevIN.Gamma[i] = 1 + 0.1*rnd.NormFloat64()
		w.RevIN.Beta[i] = 0.1 * rnd.NormFloat64()
	}

	n := in
	for l := 0; l < layers; l++ {
		w.Layers = append(w.Layers, GRULayerWeights{
			WeightIH: randn(rnd, 3*hidden, n, 0.3),
			WeightHH: randn(rnd, 3*hidden, hidden, 0.3),
			BiasIH:   randn(rnd, 1, 3*hidden, 0.1)[0],
			BiasHH:   randn(rnd, 1, 3*hidden, 0.1)[0],
		})
		n = hidden
	}

	w.FC1 = LinearWeights{Weight: randn(rnd, hidden/2, hidden, 0.3), Bias: randn(rnd, 1, hidden/2, 0.1)[0]}
	w.FC2 = LinearWeights{Weight: randn(rnd, 1, hidden/2, 0.3), Bias: []float64{0.05}}

	return w
}

func randomWindow(rnd *rand.Rand, rows, cols int) *mat.Dense {
	w := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			w.Set(i, j, rnd.NormFloat64())
		}
	}
	return w
}

func TestNewGRU(t *testing.T) {
	assert := assert.New(t)

	g, err := NewGRU(randomWeights(1, 3, 8, 2), 2)
	assert.NoError(err)
	in, hidden := g.Dims()
	assert.Equal(3, in)
	assert.Equal(8, hidden)
	assert.Equal("GRU{input: 3, hidden: 8, layers: 2, revin: true}", g.String())

	testCases := []func(w *GRUWeights){
		func(w *GRUWeights) { w.InputSize = 0 },
		func(w *GRUWeights) { w.Layers = nil },
		func(w *GRUWeights) { w.RevIN.Gamma = w.RevIN.Gamma[:1] },
		func(w *GRUWeights) { w.Layers[0].WeightIH = w.Layers[0].WeightIH[1:] },
		func(w *GRUWeights) { w.Layers[1].WeightHH[0] = w.Layers[1].WeightHH[0][1:] },
		func(w *GRUWeights) { w.Layers[0].BiasHH = nil },
		func(w *GRUWeights) { w.FC1.Bias = nil },
		func(w *GRUWeights) { w.FC2.Weight = zeros(2, 4); w.FC2.Bias = []float64{0, 0} },
	}

	for _, mutate := range testCases {
		w := randomWeights(1, 3, 8, 2)
		mutate(w)
		g, err := NewGRU(w, 1)
		assert.Nil(g)
		assert.Error(err)
	}

	_, err = NewGRU(nil, 1)
	assert.Error(err)
}

func TestGRUSingleStep(t *testing.T) {
	assert := assert.New(t)

	// only the new gate sees the input: r=z=0.5, n=tanh(x), h=0.5*tanh(x)
	w := &GRUWeights{
		InputSize:  1,
		HiddenSize: 1,
		Layers: []GRULayerWeights{{
			WeightIH: [][]float64{{0}, {0}, {1}},
			WeightHH: zeros(3, 1),
			BiasIH:   []float64{0, 0, 0},
			BiasHH:   []float64{0, 0, 0},
		}},
		FC1: LinearWeights{Weight: [][]float64{{1}}, Bias: []float64{0}},
		FC2: LinearWeights{Weight: [][]float64{{1}}, Bias: []float64{0}},
	}

	g, err := NewGRU(w, 1)
	require.NoError(t, err)

	p, err := g.Predict(mat.NewDense(1, 1, []float64{1}))
	assert.NoError(err)
	assert.InDelta(0.5*math.Tanh(1), p, 1e-12)

	// negative hidden state is cut off by ReLU
	p, err = g.Predict(mat.NewDense(1, 1, []float64{-1}))
	assert.NoError(err)
	assert.Equal(0.0, p)

	// wrong number of features
	_, err = g.Predict(mat.NewDense(1, 2, nil))
	assert.Error(err)
}

func TestGRUZeroWeights(t *testing.T) {
	assert := assert.New(t)

	w := &GRUWeights{
		InputSize:  3,
		HiddenSize: 2,
		Layers: []GRULayerWeights{{
			WeightIH: zeros(6, 3),
			WeightHH: zeros(6, 2),
			BiasIH:   make([]float64, 6),
			BiasHH:   make([]float64, 6),
		}},
		FC1: LinearWeights{Weight: zeros(1, 2), Bias: []float64{1}},
		FC2: LinearWeights{Weight: [][]float64{{2}}, Bias: []float64{0.5}},
	}

	g, err := NewGRU(w, 1)
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(7))
	p, err := g.Predict(randomWindow(rnd, 5, 3))
	assert.NoError(err)
	assert.Equal(2.5, p)
}

func TestGRURevINShiftInvariance(t *testing.T) {
	assert := assert.New(t)

	g, err := NewGRU(randomWeights(3, 3, 8, 2), 1)
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(11))
	w := randomWindow(rnd, 16, 3)

	shifted := mat.NewDense(16, 3, nil)
	shifted.Apply(func(i, j int, v float64) float64 { return v + 5 }, w)

	p1, err := g.Predict(w)
	assert.NoError(err)
	p2, err := g.Predict(shifted)
	assert.NoError(err)
	assert.InDelta(p1, p2, 1e-9)
}

func TestGRUPredictBatch(t *testing.T) {
	assert := assert.New(t)

	g, err := NewGRU(randomWeights(5, 3, 8, 2), 4)
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(13))
	ws := make([]mat.Matrix, 20)
	for i := range ws {
		ws[i] = randomWindow(rnd, 12, 3)
	}

	ps, err := g.PredictBatch(context.Background(), ws)
	assert.NoError(err)
	assert.Len(ps, len(ws))

	for i, w := range ws {
		p, err := g.Predict(w)
		assert.NoError(err)
		assert.InDelta(p, ps[i], 1e-12)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.PredictBatch(ctx, ws)
	assert.ErrorIs(err, context.Canceled)
}

func TestLoadGRU(t *testing.T) {
	assert := assert.New(t)

	w := randomWeights(9, 3, 4, 1)
	data, err := json.Marshal(w)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "gru.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadGRU(path, 1)
	assert.NoError(err)

	direct, err := NewGRU(w, 1)
	assert.NoError(err)

	win := randomWindow(rand.New(rand.NewSource(1)), 8, 3)
	p1, err := loaded.Predict(win)
	assert.NoError(err)
	p2, err := direct.Predict(win)
	assert.NoError(err)
	assert.Equal(p2, p1)

	_, err = LoadGRU(filepath.Join(t.TempDir(), "missing.json"), 1)
	assert.Error(err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadGRU(bad, 1)
	assert.Error(err)
}
