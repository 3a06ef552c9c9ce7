package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/milosgajdos/go-soc/internal/logging"
	"github.com/milosgajdos/go-soc/metrics"
	"github.com/milosgajdos/go-soc/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type countingSource struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingSource) Fetch(ctx context.Context, q telemetry.Query) (*telemetry.Table, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return nil, s.err
	}
	return newTable(), nil
}

func TestSourceFetch(t *testing.T) {
	assert := assert.New(t)

	clock := &fakeClock{now: t0}
	src := &countingSource{}
	m := metrics.New()
	s := NewSource(src, New(WithClock(clock)), 5*time.Minute, logging.Discard(), m)

	got, err := s.Fetch(context.Background(), key)
	assert.NoError(err)
	assert.Equal(2, got.Len())
	got.Voltage[0] = 0

	got, err = s.Fetch(context.Background(), key)
	assert.NoError(err)
	assert.Equal(3.7, got.Voltage[0])
	assert.Equal(int32(1), src.calls.Load())

	clock.Advance(5 * time.Minute)
	_, err = s.Fetch(context.Background(), key)
	assert.NoError(err)
	assert.Equal(int32(2), src.calls.Load())

	assert.Equal(1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")))
	assert.Equal(2.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")))
}

func TestSourceError(t *testing.T) {
	assert := assert.New(t)

	boom := errors.New("boom")
	src := &countingSource{err: boom}
	c := New()
	s := NewSource(src, c, time.Minute, logging.Discard(), nil)

	_, err := s.Fetch(context.Background(), key)
	assert.ErrorIs(err, boom)
	assert.Equal(0, c.Len())
}

func TestSourceSingleflight(t *testing.T) {
	assert := assert.New(t)

	src := &countingSource{delay: 50 * time.Millisecond}
	s := NewSource(src, New(), time.Minute, logging.Discard(), nil)

	var wg sync.WaitGroup
	tables := make([]*telemetry.Table, 8)
	for i := range tables {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables[i], _ = s.Fetch(context.Background(), key)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(src.calls.Load(), int32(2))
	for i := range tables {
		assert.NotNil(tables[i])
		for j := i + 1; j < len(tables); j++ {
			assert.NotSame(tables[i], tables[j])
		}
	}
}

// deviceSource returns a table whose first voltage encodes the queried device
type deviceSource struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *deviceSource) Fetch(ctx context.Context, q telemetry.Query) (*telemetry.Table, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	t := newTable()
	t.Voltage[0] = float64(len(q.Device))
	return t, nil
}

func TestSourceDistinctQueries(t *testing.T) {
	assert := assert.New(t)

	src := &deviceSource{delay: 50 * time.Millisecond}
	s := NewSource(src, New(), time.Minute, logging.Discard(), nil)

	// both queries render to the same string
	queries := []telemetry.Query{
		{Device: "a_-7d", Start: "now()", Stop: "5s"},
		{Device: "a", Start: "-7d_now()", Stop: "5s"},
	}

	var wg sync.WaitGroup
	tables := make([]*telemetry.Table, len(queries))
	for i := range queries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables[i], _ = s.Fetch(context.Background(), queries[i])
		}(i)
	}
	wg.Wait()

	assert.Equal(int32(2), src.calls.Load())
	for i, q := range queries {
		if assert.NotNil(tables[i]) {
			assert.Equal(float64(len(q.Device)), tables[i].Voltage[0])
		}
	}
}
