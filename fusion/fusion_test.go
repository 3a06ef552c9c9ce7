package fusion

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/milosgajdos/go-soc/internal/logging"
	"github.com/milosgajdos/go-soc/telemetry"
	"gonum.org/v1/gonum/mat"
)

// mockModel predicts scale*w[last][2] + offset and records batch sizes.
type mockModel struct {
	mu      sync.Mutex
	scale   float64
	offset  float64
	batches []int
	// onBatch is called before every batch returns
	onBatch func(n int)
	// count overrides the number of returned predictions when positive
	count int
	// failOn fails the given batch, counting from 1, when positive
	failOn int
}

var errBatch = errors.New("batch failed")

func (m *mockModel) Predict(w mat.Matrix) (float64, error) {
	rows, _ := w.Dims()
	return m.scale*w.At(rows-1, 2) + m.offset, nil
}

func (m *mockModel) PredictBatch(ctx context.Context, ws []mat.Matrix) ([]float64, error) {
	m.mu.Lock()
	m.batches = append(m.batches, len(ws))
	batch := len(m.batches)
	m.mu.Unlock()

	if m.failOn > 0 && batch == m.failOn {
		return nil, errBatch
	}

	n := len(ws)
	if m.count > 0 {
		n = m.count
	}

	out := make([]float64, n)
	for i := 0; i < n && i < len(ws); i++ {
		out[i], _ = m.Predict(ws[i])
	}

	if m.onBatch != nil {
		m.onBatch(len(ws))
	}

	return out, nil
}

func (m *mockModel) calls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.batches...)
}

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// makeTable returns n samples one second apart
func makeTable(n int, current, voltage func(i int) float64) *telemetry.Table {
	t := telemetry.NewTable(n)
	for i := 0; i < n; i++ {
		t.Append(start.Add(time.Duration(i)*time.Second), current(i), voltage(i), 25+0.01*float64(i), math.NaN())
	}
	return t
}

func constant(v float64) func(int) float64 {
	return func(int) float64 { return v }
}

func testParams() Params {
	p := DefaultParams()
	p.SeqLen = 4
	p.BatchSize = 8
	p.Efficiency = 1.0
	p.CapacityAh = 72
	p.InitialSOC = 1.0
	return p
}

var testLogger = logging.Discard()

func setup() {
	slog.SetDefault(testLogger)
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}
