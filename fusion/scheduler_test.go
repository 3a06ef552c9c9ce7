package fusion

import (
	"context"
	"testing"

	"github.com/milosgajdos/go-soc/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func window(v float64) mat.Matrix {
	return mat.NewDense(1, 3, []float64{0, 0, v})
}

func TestNewScheduler(t *testing.T) {
	assert := assert.New(t)

	s, err := NewScheduler(&mockModel{scale: 1}, 2)
	assert.NoError(err)
	assert.NotNil(s)

	_, err = NewScheduler(nil, 2)
	assert.Error(err)

	_, err = NewScheduler(&mockModel{scale: 1}, 0)
	assert.Error(err)
}

func TestSchedulerFlush(t *testing.T) {
	assert := assert.New(t)

	m := &mockModel{scale: 2}
	mx := metrics.New()
	s, err := NewScheduler(m, 3, WithLogger(testLogger), WithMetrics(mx))
	assert.NoError(err)

	preds, err := s.Flush(context.Background())
	assert.NoError(err)
	assert.Nil(preds)
	assert.Empty(m.calls())

	assert.False(s.Add(5, window(1)))
	assert.False(s.Add(6, window(2)))
	assert.Equal(2, s.Pending())
	assert.True(s.Add(7, window(3)))

	preds, err = s.Flush(context.Background())
	assert.NoError(err)
	assert.Equal([]Prediction{{5, 2}, {6, 4}, {7, 6}}, preds)
	assert.Equal(0, s.Pending())
	assert.Equal([]int{3}, m.calls())
	assert.Equal(1.0, testutil.ToFloat64(mx.Batches))

	// partial batch at the end of stream
	s.Add(8, window(4))
	preds, err = s.Flush(context.Background())
	assert.NoError(err)
	assert.Equal([]Prediction{{8, 8}}, preds)
	assert.Equal([]int{3, 1}, m.calls())
}

func TestSchedulerMismatch(t *testing.T) {
	assert := assert.New(t)

	s, err := NewScheduler(&mockModel{scale: 1, count: 1}, 2)
	assert.NoError(err)

	s.Add(1, window(1))
	s.Add(2, window(2))

	_, err = s.Flush(context.Background())
	assert.Error(err)
}
