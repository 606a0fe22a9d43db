// Package selection builds each user's ranked daily selection.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/metrics"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/scoring"
)

const scoreConcurrency = 4

// CandidatePool resolves a user's own profile and the profiles eligible to be shown to them.
type CandidatePool interface {
	Get(ctx context.Context, userID uint64) (*domain.Profile, error)
	CandidatePool(ctx context.Context, userID uint64, date string, limit int) ([]*domain.Profile, error)
}

type Store interface {
	FindByUserDate(ctx context.Context, userID uint64, date string) (*db.DailySelection, error)
	Create(ctx context.Context, sel *db.DailySelection) error
}

type QuotaSource interface {
	GetQuota(ctx context.Context, userID uint64) (int, error)
}

type Config struct {
	// Size is how many candidates are shown per day. It does not depend on tier.
	Size int
	// PoolSize is how many eligible profiles are scored before ranking.
	PoolSize int
}

// Ranked is one scored candidate.
type Ranked struct {
	Profile *domain.Profile
	Result  scoring.Result
}

type Generator struct {
	pool     CandidatePool
	store    Store
	quotas   QuotaSource
	scorer   scoring.Scorer
	notifier notify.Notifier
	clock    domain.Clock
	cfg      Config
	log      *slog.Logger

	inflight singleflight.Group
}

func NewGenerator(
	pool CandidatePool,
	store Store,
	quotas QuotaSource,
	scorer scoring.Scorer,
	notifier notify.Notifier,
	clock domain.Clock,
	cfg Config,
	log *slog.Logger,
) *Generator {
	if cfg.Size <= 0 {
		cfg.Size = 5
	}
	if cfg.PoolSize < cfg.Size {
		cfg.PoolSize = 10 * cfg.Size
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Generator{
		pool:     pool,
		store:    store,
		quotas:   quotas,
		scorer:   scorer,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		log:      log.With("component", "selection"),
	}
}

// Generate returns userID's selection for today, creating it on first call.
//
// Behavior:
//   - An existing selection is returned unchanged.
//   - Incomplete profiles get ErrProfileIncomplete.
//   - An empty candidate pool persists an empty selection; that is not an error.
//   - Otherwise the pool is scored, ranked by score (ties by user id) and the
//     top Size candidates are stored with the user's current quota as snapshot.
//
// Concurrent calls for the same user and day share one computation; across
// processes the (user, date) unique index decides and the loser re-reads.
func (g *Generator) Generate(ctx context.Context, userID uint64) (*db.DailySelection, error) {
	date := domain.DateKey(g.clock.Now())
	v, err, _ := g.inflight.Do(fmt.Sprintf("%d:%s", userID, date), func() (any, error) {
		return g.generate(ctx, userID, date)
	})
	if err != nil {
		return nil, err
	}
	sel := *v.(*db.DailySelection)
	return &sel, nil
}

func (g *Generator) generate(ctx context.Context, userID uint64, date string) (*db.DailySelection, error) {
	log := logger.FromContext(ctx, g.log)

	existing, err := g.store.FindByUserDate(ctx, userID, date)
	if err == nil {
		metrics.SelectionsGenerated.WithLabelValues("existing").Inc()
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load selection: %w", err)
	}

	me, err := g.pool.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !me.Completed {
		return nil, domain.ErrProfileIncomplete
	}

	maxChoices, err := g.quotas.GetQuota(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve quota: %w", err)
	}

	candidates, err := g.pool.CandidatePool(ctx, userID, date, g.cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("load candidate pool: %w", err)
	}

	ranked, err := g.Rank(ctx, me, candidates)
	if err != nil {
		return nil, err
	}
	if len(ranked) > g.cfg.Size {
		ranked = ranked[:g.cfg.Size]
	}

	sel := &db.DailySelection{
		UserID:             userID,
		SelectionDate:      date,
		SelectedProfileIDs: make([]uint64, 0, len(ranked)),
		Scores:             make([]float64, 0, len(ranked)),
		MaxChoicesAllowed:  maxChoices,
	}
	for _, r := range ranked {
		sel.SelectedProfileIDs = append(sel.SelectedProfileIDs, r.Profile.UserID)
		sel.Scores = append(sel.Scores, r.Result.Total)
	}

	if err := g.store.Create(ctx, sel); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Debug("selection created concurrently, re-reading", "user_id", userID, "date", date)
			return g.store.FindByUserDate(ctx, userID, date)
		}
		return nil, fmt.Errorf("store selection: %w", err)
	}

	if len(ranked) == 0 {
		metrics.SelectionsGenerated.WithLabelValues("empty").Inc()
		log.Info("no candidates available", "user_id", userID, "date", date)
		return sel, nil
	}

	metrics.SelectionsGenerated.WithLabelValues("created").Inc()
	g.notifier.Notify(ctx, notify.SelectionReady(userID, sel.ID, date, len(ranked), g.clock.Now()))
	return sel, nil
}

// Rank scores candidates against me and orders them best first.
// A candidate whose score cannot be computed is left out.
func (g *Generator) Rank(ctx context.Context, me *domain.Profile, candidates []*domain.Profile) ([]Ranked, error) {
	log := logger.FromContext(ctx, g.log)
	results := make([]*scoring.Result, len(candidates))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(scoreConcurrency)
	for i, c := range candidates {
		eg.Go(func() error {
			res, err := g.scorer.Score(egCtx, me, c)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				log.Warn("candidate scoring failed", "user_id", me.UserID, "candidate_id", c.UserID, "err", err)
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]Ranked, 0, len(candidates))
	for i, c := range candidates {
		if results[i] != nil {
			ranked = append(ranked, Ranked{Profile: c, Result: *results[i]})
		}
	}
	// candidates arrive in user-id order; a stable sort keeps that as tie-break
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Result.Total > ranked[j].Result.Total
	})
	return ranked, nil
}
