package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/metrics"
)

// Store is the slice of the Redis cache the scorer needs.
type Store interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Cached memoizes another Scorer per unordered pair and version.
// Any store failure is treated as a miss; the cache never fails a Score call.
type Cached struct {
	next  Scorer
	store Store
	ttl   time.Duration
	log   *slog.Logger
}

func NewCached(next Scorer, store Store, ttl time.Duration, log *slog.Logger) *Cached {
	if log == nil {
		log = slog.Default()
	}
	return &Cached{next: next, store: store, ttl: ttl, log: log.With("component", "score_cache")}
}

func (c *Cached) Version() string { return c.next.Version() }

func (c *Cached) Score(ctx context.Context, a, b *domain.Profile) (Result, error) {
	if a == nil || b == nil {
		return Result{}, ErrNilProfile
	}
	key := cache.KeyForScore(c.next.Version(), a.UserID, b.UserID)

	var cached Result
	ok, err := c.store.GetJSON(ctx, key, &cached)
	switch {
	case err != nil:
		metrics.ScoreCacheOps.WithLabelValues("error").Inc()
		c.log.Warn("score cache read failed", "key", key, "err", err)
	case ok:
		metrics.ScoreCacheOps.WithLabelValues("hit").Inc()
		return cached, nil
	default:
		metrics.ScoreCacheOps.WithLabelValues("miss").Inc()
	}

	res, err := c.next.Score(ctx, a, b)
	if err != nil {
		return Result{}, err
	}
	metrics.CompatibilityScores.WithLabelValues(res.Version).Observe(res.Total)

	if err := c.store.SetJSON(ctx, key, res, c.ttl); err != nil {
		c.log.Warn("score cache write failed", "key", key, "err", err)
	}
	return res, nil
}
