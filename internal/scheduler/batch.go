package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/metrics"
)

const defaultPageSize = 500

type Generator interface {
	Generate(ctx context.Context, userID uint64) (*db.DailySelection, error)
}

// UserLister pages through active users in ascending id order.
type UserLister interface {
	ActiveUserIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error)
}

type BatchConfig struct {
	Concurrency        int
	PerUserTimeout     time.Duration
	Deadline           time.Duration
	ErrorRateThreshold float64
	RetryAttempts      int
	PageSize           int
	// RetryBackOff overrides the delay between per-user attempts.
	RetryBackOff backoff.BackOff
}

// Report summarises one batch run.
type Report struct {
	RunID     string        `json:"run_id"`
	Date      string        `json:"date"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	ErrorRate float64       `json:"error_rate"`
}

type outcome int

const (
	succeeded outcome = iota
	failed
	skipped
)

func (o outcome) String() string {
	switch o {
	case succeeded:
		return "succeeded"
	case failed:
		return "failed"
	default:
		return "skipped"
	}
}

// BatchRunner generates today's selection for every active user.
type BatchRunner struct {
	users UserLister
	gen   Generator
	clock domain.Clock
	cfg   BatchConfig
	log   *slog.Logger
}

func NewBatchRunner(users UserLister, gen Generator, clock domain.Clock, cfg BatchConfig, log *slog.Logger) *BatchRunner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &BatchRunner{users: users, gen: gen, clock: clock, cfg: cfg, log: log.With("component", "batch")}
}

// Run fans out over all active users.
//
// Behavior:
//   - Each user is isolated: a failure is counted and the batch moves on.
//   - Client-facing conditions (e.g. incomplete profile) and per-user
//     timeouts count as skips; system errors are retried with backoff and
//     count as failures once attempts run out.
//   - When the batch deadline passes, users not yet started are skipped.
//   - The error rate is failed/total; crossing the threshold logs an alert.
//
// The returned error is set only when the user list itself cannot be read.
func (r *BatchRunner) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{RunID: uuid.NewString(), Date: domain.DateKey(r.clock.Now())}
	log := r.log.With("run_id", report.RunID, "date", report.Date)
	log.Info("daily selection batch started")

	batchCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.cfg.Deadline > 0 {
		batchCtx, cancel = context.WithTimeout(ctx, r.cfg.Deadline)
	}
	defer cancel()
	batchCtx = logger.IntoContext(batchCtx, log)

	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	eg.SetLimit(r.cfg.Concurrency)
	record := func(o outcome) {
		metrics.BatchUsers.WithLabelValues(o.String()).Inc()
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case succeeded:
			report.Succeeded++
		case failed:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	var after uint64
	var listErr error
	for {
		ids, err := r.users.ActiveUserIDs(ctx, after, r.cfg.PageSize)
		if err != nil {
			listErr = fmt.Errorf("list active users: %w", err)
			break
		}
		for _, id := range ids {
			report.Total++
			if batchCtx.Err() != nil {
				record(skipped)
				continue
			}
			eg.Go(func() error {
				record(r.runUser(batchCtx, log, id))
				return nil
			})
		}
		if len(ids) < r.cfg.PageSize {
			break
		}
		after = ids[len(ids)-1]
	}
	_ = eg.Wait()

	report.Duration = time.Since(start)
	if report.Total > 0 {
		report.ErrorRate = float64(report.Failed) / float64(report.Total)
	}
	metrics.BatchDuration.Observe(report.Duration.Seconds())
	metrics.BatchErrorRate.Set(report.ErrorRate)

	log.Info("daily selection batch finished",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"error_rate", report.ErrorRate,
		"duration", report.Duration,
	)
	if report.Total > 0 && report.ErrorRate > r.cfg.ErrorRateThreshold {
		log.Error("daily selection error rate above threshold",
			"error_rate", report.ErrorRate, "threshold", r.cfg.ErrorRateThreshold)
	}
	return report, listErr
}

// runUser generates one user's selection with retries and classifies the result.
func (r *BatchRunner) runUser(batchCtx context.Context, log *slog.Logger, userID uint64) outcome {
	opts := []backoff.RetryOption{backoff.WithMaxTries(uint(r.cfg.RetryAttempts))}
	if r.cfg.RetryBackOff != nil {
		opts = append(opts, backoff.WithBackOff(r.cfg.RetryBackOff))
	}

	_, err := backoff.Retry(batchCtx, func() (struct{}, error) {
		userCtx, cancel := batchCtx, context.CancelFunc(func() {})
		if r.cfg.PerUserTimeout > 0 {
			userCtx, cancel = context.WithTimeout(batchCtx, r.cfg.PerUserTimeout)
		}
		defer cancel()

		_, err := r.gen.Generate(userCtx, userID)
		switch {
		case err == nil:
			return struct{}{}, nil
		case domain.IsClientError(err), userCtx.Err() != nil:
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, opts...)

	switch {
	case err == nil:
		return succeeded
	case domain.IsClientError(err):
		log.Debug("user skipped", "user_id", userID, "reason", err)
		return skipped
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		log.Warn("user timed out", "user_id", userID, "err", err)
		return skipped
	}
	log.Error("selection generation failed", "user_id", userID, "err", err)
	return failed
}
