package observe

import (
	"context"
	"fmt"
	"math"

	"github.com/sourcegraph/conc/iter"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultEps is the default RevIN variance stabilizer
const DefaultEps = 1e-5

type linear struct {
	w *mat.Dense
	b *mat.VecDense
}

func newLinear(lw LinearWeights, in int) (*linear, error) {
	out := len(lw.Weight)
	if out == 0 || len(lw.Bias) != out {
		return nil, fmt.Errorf("invalid linear layer: %d rows, %d biases", out, len(lw.Bias))
	}

	w, err := dense(lw.Weight, out, in)
	if err != nil {
		return nil, err
	}

	return &linear{
		w: w,
		b: mat.NewVecDense(out, append([]float64(nil), lw.Bias...)),
	}, nil
}

func (l *linear) forward(x mat.Vector) *mat.VecDense {
	out := mat.NewVecDense(l.b.Len(), nil)
	out.MulVec(l.w, x)
	out.AddVec(out, l.b)

	return out
}

type gruLayer struct {
	hidden int
	wih    *mat.Dense
	whh    *mat.Dense
	bih    *mat.VecDense
	bhh    *mat.VecDense
}

func newGRULayer(lw GRULayerWeights, in, hidden int) (*gruLayer, error) {
	wih, err := dense(lw.WeightIH, 3*hidden, in)
	if err != nil {
		return nil, fmt.Errorf("weight_ih: %w", err)
	}

	whh, err := dense(lw.WeightHH, 3*hidden, hidden)
	if err != nil {
		return nil, fmt.Errorf("weight_hh: %w", err)
	}

	if len(lw.BiasIH) != 3*hidden || len(lw.BiasHH) != 3*hidden {
		return nil, fmt.Errorf("invalid bias length: ih=%d hh=%d, expected %d", len(lw.BiasIH), len(lw.BiasHH), 3*hidden)
	}

	return &gruLayer{
		hidden: hidden,
		wih:    wih,
		whh:    whh,
		bih:    mat.NewVecDense(3*hidden, append([]float64(nil), lw.BiasIH...)),
		bhh:    mat.NewVecDense(3*hidden, append([]float64(nil), lw.BiasHH...)),
	}, nil
}

// step computes the next hidden state of the layer given input x and hidden state h
func (g *gruLayer) step(x, h *mat.VecDense) *mat.VecDense {
	gi := mat.NewVecDense(3*g.hidden, nil)
	gi.MulVec(g.wih, x)
	gi.AddVec(gi, g.bih)

	gh := mat.NewVecDense(3*g.hidden, nil)
	gh.MulVec(g.whh, h)
	gh.AddVec(gh, g.bhh)

	H := g.hidden
	next := mat.NewVecDense(H, nil)
	for i := 0; i < H; i++ {
		r := sigmoid(gi.AtVec(i) + gh.AtVec(i))
		z := sigmoid(gi.AtVec(H+i) + gh.AtVec(H+i))
		n := math.Tanh(gi.AtVec(2*H+i) + r*gh.AtVec(2*H+i))
		next.SetVec(i, (1-z)*n+z*h.AtVec(i))
	}

	return next
}

// GRU is RevIN+GRU voltage observation model
type GRU struct {
	in      int
	hidden  int
	gamma   []float64
	beta    []float64
	eps     float64
	revin   bool
	layers  []*gruLayer
	fc1     *linear
	fc2     *linear
	workers int
}

// NewGRU creates new GRU model from weights w and returns it.
// PredictBatch evaluates up to workers windows concurrently; non-positive workers means GOMAXPROCS.
// It returns error if the weights dimensions are inconsistent.
func NewGRU(w *GRUWeights, workers int) (*GRU, error) {
	if w == nil {
		return nil, fmt.Errorf("nil weights")
	}

	if w.InputSize <= 0 || w.HiddenSize <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: input=%d hidden=%d", w.InputSize, w.HiddenSize)
	}

	if len(w.Layers) == 0 {
		return nil, fmt.Errorf("no GRU layers")
	}

	g := &GRU{
		in:      w.InputSize,
		hidden:  w.HiddenSize,
		workers: workers,
	}

	if w.RevIN != nil {
		if len(w.RevIN.Gamma) != w.InputSize || len(w.RevIN.Beta) != w.InputSize {
			return nil, fmt.Errorf("invalid revin parameters: gamma=%d beta=%d", len(w.RevIN.Gamma), len(w.RevIN.Beta))
		}
		g.revin = true
		g.gamma = append([]float64(nil), w.RevIN.Gamma...)
		g.beta = append([]float64(nil), w.RevIN.Beta...)
		g.eps = w.RevIN.Eps
		if g.eps <= 0 {
			g.eps = DefaultEps
		}
	}

	in := w.InputSize
	for i, lw := range w.Layers {
		layer, err := newGRULayer(lw, in, w.HiddenSize)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		g.layers = append(g.layers, layer)
		in = w.HiddenSize
	}

	var err error
	if g.fc1, err = newLinear(w.FC1, w.HiddenSize); err != nil {
		return nil, fmt.Errorf("fc1: %w", err)
	}

	if g.fc2, err = newLinear(w.FC2, g.fc1.b.Len()); err != nil {
		return nil, fmt.Errorf("fc2: %w", err)
	}

	if g.fc2.b.Len() != 1 {
		return nil, fmt.Errorf("invalid output dimension: %d", g.fc2.b.Len())
	}

	return g, nil
}

// LoadGRU reads weights from the JSON file at path and creates new GRU model.
func LoadGRU(path string, workers int) (*GRU, error) {
	w, err := ReadWeights(path)
	if err != nil {
		return nil, err
	}

	return NewGRU(w, workers)
}

// Dims returns model input and hidden dimensions
func (g *GRU) Dims() (in, hidden int) {
	return g.in, g.hidden
}

// normalize applies RevIN to window w and returns normalized copy of it
func (g *GRU) normalize(w mat.Matrix) *mat.Dense {
	x := mat.DenseCopyOf(w)
	if !g.revin {
		return x
	}

	rows, cols := x.Dims()
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)

		mean, std := stat.Mean(col, nil), 0.0
		if rows > 1 {
			std = stat.StdDev(col, nil)
		}
		std += g.eps

		for i := 0; i < rows; i++ {
			x.Set(i, j, (col[i]-mean)/std*g.gamma[j]+g.beta[j])
		}
	}

	return x
}

// Predict returns scaled voltage predicted for window w of shape [time steps x input size].
func (g *GRU) Predict(w mat.Matrix) (float64, error) {
	if w == nil {
		return 0, fmt.Errorf("nil window")
	}

	rows, cols := w.Dims()
	if rows == 0 || cols != g.in {
		return 0, fmt.Errorf("invalid window dimensions: [%d x %d], expected %d features", rows, cols, g.in)
	}

	x := g.normalize(w)

	hs := make([]*mat.VecDense, len(g.layers))
	for i := range hs {
		hs[i] = mat.NewVecDense(g.hidden, nil)
	}

	for t := 0; t < rows; t++ {
		in := mat.VecDenseCopyOf(x.RowView(t))
		for l, layer := range g.layers {
			hs[l] = layer.step(in, hs[l])
			in = hs[l]
		}
	}

	out := g.fc1.forward(hs[len(hs)-1])
	for i := 0; i < out.Len(); i++ {
		out.SetVec(i, math.Max(0, out.AtVec(i)))
	}

	y := g.fc2.forward(out).AtVec(0)
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("non-finite prediction: %v", y)
	}

	return y, nil
}

// PredictBatch returns predictions for all windows in ws in submission order.
// Windows are evaluated concurrently.
func (g *GRU) PredictBatch(ctx context.Context, ws []mat.Matrix) ([]float64, error) {
	mapper := iter.Mapper[mat.Matrix, float64]{
		MaxGoroutines: g.workers,
	}

	return mapper.MapErr(ws, func(w *mat.Matrix) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		return g.Predict(*w)
	})
}

// String implements fmt.Stringer
func (g *GRU) String() string {
	return fmt.Sprintf("GRU{input: %d, hidden: %d, layers: %d, revin: %t}", g.in, g.hidden, len(g.layers), g.revin)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func dense(rows [][]float64, r, c int) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, fmt.Errorf("invalid number of rows: %d, expected %d", len(rows), r)
	}

	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("invalid row %d length: %d, expected %d", i, len(row), c)
		}
		data = append(data, row...)
	}

	return mat.NewDense(r, c, data), nil
}
