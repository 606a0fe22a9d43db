package scheduler_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/quota"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/scheduler"
	"github.com/oggyb/muzz-matching/internal/scoring"
	"github.com/oggyb/muzz-matching/internal/selection"
	"github.com/oggyb/muzz-matching/internal/testutil"
)

var runDay = time.Date(2026, 5, 4, 0, 5, 0, 0, time.UTC)

type staticUsers struct {
	ids []uint64
	err error
}

func (s staticUsers) ActiveUserIDs(_ context.Context, afterID uint64, limit int) ([]uint64, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []uint64
	for _, id := range s.ids {
		if id > afterID && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

// scriptedGenerator answers per user: a listed error is returned on every
// call, flaky users fail once, slow users wait for their context.
type scriptedGenerator struct {
	mu       sync.Mutex
	errs     map[uint64]error
	flaky    map[uint64]bool
	slow     map[uint64]bool
	delay    time.Duration
	attempts map[uint64]int
}

func (g *scriptedGenerator) Generate(ctx context.Context, userID uint64) (*db.DailySelection, error) {
	g.mu.Lock()
	if g.attempts == nil {
		g.attempts = map[uint64]int{}
	}
	g.attempts[userID]++
	n := g.attempts[userID]
	g.mu.Unlock()

	if g.slow[userID] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := g.errs[userID]; err != nil {
		return nil, err
	}
	if g.flaky[userID] && n == 1 {
		return nil, errors.New("deadlock found when trying to get lock")
	}
	return &db.DailySelection{UserID: userID}, nil
}

func (g *scriptedGenerator) attemptsFor(userID uint64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[userID]
}

func ids(from, to uint64) []uint64 {
	var out []uint64
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestBatchClassifiesOutcomes(t *testing.T) {
	gen := &scriptedGenerator{
		errs: map[uint64]error{
			3: domain.ErrProfileIncomplete,
			5: errors.New("connection reset"),
		},
		flaky: map[uint64]bool{7: true},
		slow:  map[uint64]bool{8: true},
	}
	runner := scheduler.NewBatchRunner(
		staticUsers{ids: ids(1, 10)},
		gen,
		&domain.FixedClock{T: runDay},
		scheduler.BatchConfig{
			Concurrency:        4,
			PerUserTimeout:     50 * time.Millisecond,
			ErrorRateThreshold: 0.05,
			RetryAttempts:      3,
			PageSize:           3,
			RetryBackOff:       &backoff.ZeroBackOff{},
		},
		logger.Discard(),
	)

	rep, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, "2026-05-04", rep.Date)
	assert.Equal(t, 10, rep.Total)
	assert.Equal(t, 7, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 2, rep.Skipped)
	assert.InDelta(t, 0.1, rep.ErrorRate, 1e-9)

	assert.Equal(t, 3, gen.attemptsFor(5), "system errors are retried")
	assert.Equal(t, 1, gen.attemptsFor(3), "client errors are not retried")
	assert.Equal(t, 1, gen.attemptsFor(8), "timeouts are not retried")
	assert.Equal(t, 2, gen.attemptsFor(7))
}

func TestBatchDeadlineSkipsRemainingUsers(t *testing.T) {
	gen := &scriptedGenerator{delay: 20 * time.Millisecond}
	runner := scheduler.NewBatchRunner(
		staticUsers{ids: ids(1, 50)},
		gen,
		&domain.FixedClock{T: runDay},
		scheduler.BatchConfig{
			Concurrency: 1,
			Deadline:    60 * time.Millisecond,
		},
		logger.Discard(),
	)

	rep, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, rep.Total)
	assert.Zero(t, rep.Failed)
	assert.Greater(t, rep.Skipped, 0)
	assert.Less(t, rep.Succeeded, 50)
	assert.Equal(t, 50, rep.Succeeded+rep.Skipped)
}

func TestBatchListFailure(t *testing.T) {
	runner := scheduler.NewBatchRunner(
		staticUsers{err: errors.New("db down")},
		&scriptedGenerator{},
		&domain.FixedClock{T: runDay},
		scheduler.BatchConfig{},
		logger.Discard(),
	)
	rep, err := runner.Run(context.Background())
	assert.ErrorContains(t, err, "db down")
	assert.Zero(t, rep.Total)
}

func TestBatchWithGenerator(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	clock := &domain.FixedClock{T: runDay}
	testutil.AddCompleteUsers(t, gdb, 1, 2, 3)
	testutil.AddUser(t, gdb, 4, db.Profile{Completed: false})

	profiles := repository.NewProfileRepository(gdb)
	gen := selection.NewGenerator(
		profiles,
		repository.NewSelectionRepository(gdb),
		quota.NewTierLookup(repository.NewSubscriptionRepository(gdb), clock),
		scoring.V1{},
		notify.Nop{},
		clock,
		selection.Config{Size: 5},
		logger.Discard(),
	)
	runner := scheduler.NewBatchRunner(profiles, gen, clock, scheduler.BatchConfig{Concurrency: 2}, logger.Discard())

	rep, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Equal(t, 1, rep.Skipped)

	var count int64
	require.NoError(t, gdb.Model(&db.DailySelection{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	// a second run the same day reuses every selection
	rep, err = runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Succeeded)
	require.NoError(t, gdb.Model(&db.DailySelection{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestCleaner(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	now := time.Date(2026, 5, 4, 3, 0, 0, 0, time.UTC)
	selections := repository.NewSelectionRepository(gdb)
	pairings := repository.NewPairingRepository(gdb)

	for _, d := range []time.Time{now, now.AddDate(0, 0, -30), now.AddDate(0, 0, -31), now.AddDate(0, 0, -90)} {
		require.NoError(t, selections.Create(ctx, &db.DailySelection{
			UserID: 1, SelectionDate: domain.DateKey(d), MaxChoicesAllowed: 1,
		}))
	}
	_, err := pairings.CreatePending(ctx, 1, 2, now.AddDate(0, 0, -40))
	require.NoError(t, err)
	_, err = pairings.CreatePending(ctx, 1, 3, now.AddDate(0, 0, -2))
	require.NoError(t, err)

	cleaner := scheduler.NewCleaner(selections, pairings, &domain.FixedClock{T: now}, 30, 30, logger.Discard())
	rep, err := cleaner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.SelectionsDeleted)
	assert.Equal(t, int64(1), rep.PairingsExpired)

	p, err := pairings.Find(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, string(domain.PairingExpired), p.Status)
	p, err = pairings.Find(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, string(domain.PairingPending), p.Status)
}

type generatorFunc func(ctx context.Context, userID uint64) (*db.DailySelection, error)

func (f generatorFunc) Generate(ctx context.Context, userID uint64) (*db.DailySelection, error) {
	return f(ctx, userID)
}

func TestBatchScopesLoggerToRun(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&syncWriter{w: &buf}, nil))

	gen := generatorFunc(func(ctx context.Context, userID uint64) (*db.DailySelection, error) {
		logger.FromContext(ctx, nil).Info("generated", "user_id", userID)
		return &db.DailySelection{UserID: userID}, nil
	})
	runner := scheduler.NewBatchRunner(
		staticUsers{ids: ids(1, 2)},
		gen,
		&domain.FixedClock{T: runDay},
		scheduler.BatchConfig{Concurrency: 1},
		log,
	)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var generated int
	for _, line := range lines {
		if strings.Contains(line, "msg=generated") {
			generated++
			assert.Contains(t, line, "run_id="+report.RunID)
		}
	}
	assert.Equal(t, 2, generated)
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
