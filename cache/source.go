package cache

import (
	"context"
	"log/slog"
	"time"

	soc "github.com/milosgajdos/go-soc"
	"github.com/milosgajdos/go-soc/metrics"
	"github.com/milosgajdos/go-soc/telemetry"
	"golang.org/x/sync/singleflight"
)

// Source is a soc.DataSource serving recent queries from a Cache.
// Concurrent misses of the same query are collapsed into a single fetch.
type Source struct {
	src     soc.DataSource
	cache   *Cache
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSource wraps src caching its tables in c for ttl.
func NewSource(src soc.DataSource, c *Cache, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Source {
	if logger == nil {
		logger = slog.Default()
	}

	return &Source{
		src:     src,
		cache:   c,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

// Fetch returns telemetry matching q from cache or fetches it from the wrapped source.
func (s *Source) Fetch(ctx context.Context, q telemetry.Query) (*telemetry.Table, error) {
	if t, ok := s.cache.Get(q, s.ttl); ok {
		s.metrics.ObserveCache(true)
		s.logger.Debug("cache hit", "query", q.String(), "rows", t.Len())
		return t, nil
	}

	s.metrics.ObserveCache(false)
	s.logger.Debug("cache miss", "query", q.String())

	v, err, _ := s.group.Do(q.Key(), func() (any, error) {
		t, err := s.src.Fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		s.cache.Put(q, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*telemetry.Table).Clone(), nil
}
