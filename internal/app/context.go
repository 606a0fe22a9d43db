package app

import (
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/choice"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/quota"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/scheduler"
	"github.com/oggyb/muzz-matching/internal/scoring"
	"github.com/oggyb/muzz-matching/internal/selection"
)

// AppContext holds shared dependencies (DB, Redis, Logger, Config) and the
// engine components built on top of them.
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Config     *config.Config
	Clock      domain.Clock

	Profiles   *repository.ProfileRepository
	Selections *repository.SelectionRepository
	Pairings   *repository.PairingRepository

	Scorer    scoring.Scorer
	Generator *selection.Generator
	Enforcer  *quota.Enforcer
	Choices   *choice.Processor
	Batch     *scheduler.BatchRunner
	Cleaner   *scheduler.Cleaner

	scorerConn *grpc.ClientConn
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

type options struct {
	clock    domain.Clock
	notifier notify.Notifier
	chats    notify.ChatCreator
	scorer   scoring.Scorer
}

func WithClock(c domain.Clock) Option             { return func(o *options) { o.clock = c } }
func WithNotifier(n notify.Notifier) Option       { return func(o *options) { o.notifier = n } }
func WithChatCreator(c notify.ChatCreator) Option { return func(o *options) { o.chats = c } }

// WithScorer replaces the configured scoring strategy. It is still wrapped
// by the Redis score cache.
func WithScorer(s scoring.Scorer) Option { return func(o *options) { o.scorer = s } }

// New wires the engine. Call Close to release the remote scorer connection.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, opts ...Option) (*AppContext, error) {
	o := options{clock: domain.SystemClock{Location: cfg.Location()}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = notify.NewRedisPublisher(rdb, notify.DefaultChannel, logger)
	}
	if o.chats == nil {
		o.chats = notify.NewRedisChatQueue(rdb, notify.DefaultChatQueue)
	}

	a := &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Config:     cfg,
		Clock:      o.clock,
		Profiles:   repository.NewProfileRepository(db),
		Selections: repository.NewSelectionRepository(db),
		Pairings:   repository.NewPairingRepository(db),
	}

	scorer := o.scorer
	if scorer == nil {
		var err error
		if scorer, err = a.buildScorer(); err != nil {
			return nil, err
		}
	}
	a.Scorer = scoring.NewCached(scorer, rdb, cfg.Matching.ScoreTTL, logger)

	tiers := quota.NewTierLookup(repository.NewSubscriptionRepository(db), o.clock)
	a.Enforcer = quota.NewEnforcer(a.Selections, tiers, o.clock)
	a.Generator = selection.NewGenerator(
		a.Profiles,
		a.Selections,
		tiers,
		a.Scorer,
		o.notifier,
		o.clock,
		selection.Config{Size: cfg.Matching.SelectionSize, PoolSize: cfg.Matching.PoolSize},
		logger,
	)
	a.Choices = choice.NewProcessor(db, a.Enforcer, o.chats, o.notifier, rdb, o.clock, logger, choice.Options{})

	sc := cfg.Scheduler
	a.Batch = scheduler.NewBatchRunner(a.Profiles, a.Generator, o.clock, scheduler.BatchConfig{
		Concurrency:        sc.Concurrency,
		PerUserTimeout:     sc.PerUserTimeout,
		Deadline:           sc.BatchDeadline,
		ErrorRateThreshold: sc.ErrorRateThreshold,
		RetryAttempts:      sc.RetryAttempts,
	}, logger)
	a.Cleaner = scheduler.NewCleaner(a.Selections, a.Pairings, o.clock, sc.RetentionDays, sc.PendingExpiryDays, logger)

	return a, nil
}

// buildScorer picks the configured local strategy and, when a remote scorer
// address is set, puts the remote service in front of it.
func (a *AppContext) buildScorer() (scoring.Scorer, error) {
	local, err := scoring.New(a.Config.Matching.ScorerVersion, a.Clock)
	if err != nil {
		return nil, err
	}
	addr := a.Config.Matching.RemoteScorerAddr
	if addr == "" {
		return local, nil
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial remote scorer %s: %w", addr, err)
	}
	a.scorerConn = conn
	a.Logger.Info("remote scorer enabled", "addr", addr, "timeout", a.Config.Matching.RemoteScorerTimeout)
	return scoring.NewRemote(conn, a.Config.Matching.RemoteScorerTimeout, local, a.Logger), nil
}

func (a *AppContext) Close() error {
	if a.scorerConn != nil {
		return a.scorerConn.Close()
	}
	return nil
}
