package choice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/choice"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/metrics"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/quota"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/testutil"
)

var morning = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type chatRecorder struct {
	mu   sync.Mutex
	ids  []uint64
	fail bool
}

func (c *chatRecorder) CreateChatForMatch(_ context.Context, pairingID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, pairingID)
	if c.fail {
		return errors.New("chat service unavailable")
	}
	return nil
}

func (c *chatRecorder) calls() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.ids...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *eventRecorder) Notify(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type fixture struct {
	gdb    *gorm.DB
	clock  *domain.FixedClock
	chats  *chatRecorder
	events *eventRecorder
	proc   *choice.Processor
}

func newFixture(t *testing.T, scores choice.ScoreInvalidator) *fixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	clock := &domain.FixedClock{T: morning}
	selections := repository.NewSelectionRepository(gdb)
	tiers := quota.NewTierLookup(repository.NewSubscriptionRepository(gdb), clock)
	f := &fixture{
		gdb:    gdb,
		clock:  clock,
		chats:  &chatRecorder{},
		events: &eventRecorder{},
	}
	f.proc = choice.NewProcessor(
		gdb,
		quota.NewEnforcer(selections, tiers, clock),
		f.chats,
		f.events,
		scores,
		clock,
		logger.Discard(),
		choice.Options{MaxAttempts: 10, RetryBackOff: &backoff.ZeroBackOff{}},
	)
	return f
}

// offer stores today's selection for userID.
func (f *fixture) offer(t *testing.T, userID uint64, maxChoices int, targets ...uint64) *db.DailySelection {
	t.Helper()
	sel := &db.DailySelection{
		UserID:             userID,
		SelectionDate:      domain.DateKey(f.clock.Now()),
		SelectedProfileIDs: targets,
		MaxChoicesAllowed:  maxChoices,
	}
	require.NoError(t, repository.NewSelectionRepository(f.gdb).Create(context.Background(), sel))
	return sel
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.gdb.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) pairing(t *testing.T, a, b uint64) *db.Pairing {
	t.Helper()
	p, err := repository.NewPairingRepository(f.gdb).Find(context.Background(), a, b)
	require.NoError(t, err)
	return p
}

func TestFreeUserGetsOneChoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.offer(t, 1, 1, 2, 3, 4, 5, 6)

	res, err := f.proc.Choose(ctx, 1, 2, domain.ChoiceLike)
	require.NoError(t, err)
	assert.False(t, res.IsMatch)
	assert.Equal(t, 0, res.ChoicesRemaining)
	assert.False(t, res.CanContinue)
	assert.NotZero(t, res.PairingID)
	assert.Equal(t, quota.TierFree, res.Tier)
	assert.Equal(t, domain.StartOfNextDay(morning), res.ResetsAt)

	_, err = f.proc.Choose(ctx, 1, 3, domain.ChoiceLike)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "Upgrade to Premium")

	assert.Equal(t, int64(1), f.count(t, &db.Choice{}))
	assert.Equal(t, string(domain.PairingPending), f.pairing(t, 1, 2).Status)
}

func TestPremiumUserGetsThreeChoices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.offer(t, 1, 3, 2, 3, 4, 5, 6)

	for i, target := range []uint64{2, 3, 4} {
		res, err := f.proc.Choose(ctx, 1, target, domain.ChoicePass)
		require.NoError(t, err)
		assert.Equal(t, 2-i, res.ChoicesRemaining)
		assert.Equal(t, quota.TierPremium, res.Tier)
	}

	_, err := f.proc.Choose(ctx, 1, 5, domain.ChoiceLike)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "all 3")
}

func TestGuardRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.proc.Choose(ctx, 1, 2, domain.ChoiceLike)
	assert.ErrorIs(t, err, domain.ErrSelectionNotFound)

	f.offer(t, 1, 3, 2, 3)

	_, err = f.proc.Choose(ctx, 1, 9, domain.ChoiceLike)
	assert.ErrorIs(t, err, domain.ErrTargetNotInSelection)

	_, err = f.proc.Choose(ctx, 1, 2, domain.ChoiceLike)
	require.NoError(t, err)
	_, err = f.proc.Choose(ctx, 1, 2, domain.ChoicePass)
	assert.ErrorIs(t, err, domain.ErrAlreadyChosenToday)

	// yesterday's selection does not carry over
	f.clock.T = morning.Add(24 * time.Hour)
	_, err = f.proc.Choose(ctx, 1, 3, domain.ChoiceLike)
	assert.ErrorIs(t, err, domain.ErrSelectionNotFound)
}

func TestPassNeverTouchesPairings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.offer(t, 1, 3, 2, 3)
	f.offer(t, 2, 1, 1)

	_, err := f.proc.Choose(ctx, 1, 3, domain.ChoicePass)
	require.NoError(t, err)
	assert.Zero(t, f.count(t, &db.Pairing{}))

	// even when the other side already liked
	_, err = f.proc.Choose(ctx, 2, 1, domain.ChoiceLike)
	require.NoError(t, err)
	res, err := f.proc.Choose(ctx, 1, 2, domain.ChoicePass)
	require.NoError(t, err)
	assert.False(t, res.IsMatch)
	assert.Zero(t, res.PairingID)
	assert.Equal(t, string(domain.PairingPending), f.pairing(t, 1, 2).Status)
	assert.Empty(t, f.chats.calls())
}

func TestMutualLikeMatchesOnce(t *testing.T) {
	for _, first := range []uint64{1, 2} {
		t.Run("first_"+map[uint64]string{1: "low", 2: "high"}[first], func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, nil)
			f.offer(t, 1, 1, 2)
			f.offer(t, 2, 1, 1)
			second := 3 - first

			res, err := f.proc.Choose(ctx, first, second, domain.ChoiceLike)
			require.NoError(t, err)
			assert.False(t, res.IsMatch)

			f.clock.T = morning.Add(time.Hour)
			res, err = f.proc.Choose(ctx, second, first, domain.ChoiceLike)
			require.NoError(t, err)
			assert.True(t, res.IsMatch)

			p := f.pairing(t, 1, 2)
			assert.Equal(t, res.PairingID, p.ID)
			assert.Equal(t, string(domain.PairingMatched), p.Status)
			assert.Equal(t, first, p.InitiatorID)
			require.NotNil(t, p.MatchedAt)
			assert.True(t, p.MatchedAt.Equal(morning.Add(time.Hour)))

			assert.Equal(t, []uint64{p.ID}, f.chats.calls())

			events := f.events.all()
			require.Len(t, events, 2)
			notified := map[uint64]bool{}
			for _, ev := range events {
				assert.Equal(t, notify.EventNewMatch, ev.Type)
				notified[ev.UserID] = true
			}
			assert.Equal(t, map[uint64]bool{1: true, 2: true}, notified)
		})
	}
}

func TestSimultaneousMutualLikes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.offer(t, 1, 1, 2)
	f.offer(t, 2, 1, 1)

	var wg sync.WaitGroup
	results := make([]choice.Result, 2)
	errs := make([]error, 2)
	for i, pair := range [][2]uint64{{1, 2}, {2, 1}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.proc.Choose(ctx, pair[0], pair[1], domain.ChoiceLike)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.True(t, results[0].IsMatch != results[1].IsMatch, "exactly one side observes the match")
	assert.Len(t, f.chats.calls(), 1)
	assert.Equal(t, int64(1), f.count(t, &db.Pairing{}))
}

func TestConcurrentChoicesNeverExceedQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sel := f.offer(t, 1, 3, 2, 3, 4, 5, 6, 7)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		exceeded int
	)
	for _, target := range sel.SelectedProfileIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.proc.Choose(ctx, 1, target, domain.ChoiceLike)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrQuotaExceeded):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, accepted)
	assert.Equal(t, 3, exceeded)

	stored, err := repository.NewSelectionRepository(f.gdb).FindByUserDate(ctx, 1, sel.SelectionDate)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ChoicesUsed)
	assert.Len(t, stored.ChosenProfileIDs, 3)
	assert.Equal(t, int64(3), f.count(t, &db.Choice{}))
	assert.Equal(t, int64(3), f.count(t, &db.Pairing{}))
}

func TestLostUpdateIsRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sel := f.offer(t, 1, 1, 2, 3)

	// another writer bumps the version between our read and our update, once
	var bumped int
	err := f.gdb.Callback().Update().Before("gorm:update").Register("test:bump_selection_version", func(tx *gorm.DB) {
		if bumped > 0 || tx.Statement.Table != "daily_selections" {
			return
		}
		bumped++
		_, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
			"UPDATE daily_selections SET version = version + 1 WHERE id = ?", sel.ID)
		require.NoError(t, err)
	})
	require.NoError(t, err)

	conflictsBefore := promtestutil.ToFloat64(metrics.ChoiceConflicts)
	res, err := f.proc.Choose(ctx, 1, 2, domain.ChoiceLike)
	require.NoError(t, err)

	assert.Equal(t, 1, bumped)
	assert.Equal(t, conflictsBefore+1, promtestutil.ToFloat64(metrics.ChoiceConflicts))
	assert.Equal(t, 0, res.ChoicesRemaining)

	stored, err := repository.NewSelectionRepository(f.gdb).FindByUserDate(ctx, 1, sel.SelectionDate)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ChoicesUsed)
	assert.Equal(t, []uint64{2}, []uint64(stored.ChosenProfileIDs))
	assert.Equal(t, int64(1), f.count(t, &db.Choice{}))
	assert.Equal(t, int64(1), f.count(t, &db.Pairing{}))
}

func TestChatFailureKeepsMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.chats.fail = true
	f.offer(t, 1, 1, 2)
	f.offer(t, 2, 1, 1)
	failuresBefore := promtestutil.ToFloat64(metrics.ChatCreationFailures)

	_, err := f.proc.Choose(ctx, 1, 2, domain.ChoiceLike)
	require.NoError(t, err)
	res, err := f.proc.Choose(ctx, 2, 1, domain.ChoiceLike)
	require.NoError(t, err)
	assert.True(t, res.IsMatch)
	assert.Equal(t, string(domain.PairingMatched), f.pairing(t, 1, 2).Status)
	assert.Len(t, f.chats.calls(), 1)
	assert.Equal(t, failuresBefore+1, promtestutil.ToFloat64(metrics.ChatCreationFailures))
}

func TestLikeReopensExpiredPairing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	pairings := repository.NewPairingRepository(f.gdb)

	_, err := pairings.CreatePending(ctx, 2, 1, morning.AddDate(0, -2, 0))
	require.NoError(t, err)
	n, err := pairings.ExpireStale(ctx, morning.AddDate(0, -1, 0))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	f.offer(t, 1, 1, 2)
	res, err := f.proc.Choose(ctx, 1, 2, domain.ChoiceLike)
	require.NoError(t, err)
	assert.False(t, res.IsMatch)

	p := f.pairing(t, 1, 2)
	assert.Equal(t, string(domain.PairingPending), p.Status)
	assert.Equal(t, uint64(1), p.InitiatorID)
	assert.True(t, p.CreatedAt.Equal(morning))
}

func TestHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.offer(t, 1, 3, 2, 3, 4)
	f.offer(t, 2, 1, 1)

	steps := []struct {
		at     time.Duration
		target uint64
		kind   domain.ChoiceType
	}{
		{0, 2, domain.ChoiceLike},
		{5 * time.Minute, 3, domain.ChoicePass},
		{10 * time.Minute, 4, domain.ChoiceLike},
	}
	for _, s := range steps {
		f.clock.T = morning.Add(s.at)
		_, err := f.proc.Choose(ctx, 1, s.target, s.kind)
		require.NoError(t, err)
	}
	_, err := f.proc.Choose(ctx, 2, 1, domain.ChoiceLike)
	require.NoError(t, err)

	entries, next, err := f.proc.History(ctx, 1, choice.HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, entries, 3)
	for i, s := range steps {
		assert.Equal(t, s.target, entries[i].TargetUserID)
		assert.Equal(t, s.kind, entries[i].Type)
		assert.True(t, entries[i].CreatedAt.Equal(morning.Add(s.at)))
	}
	assert.True(t, entries[0].Matched)
	assert.False(t, entries[1].Matched)
	assert.False(t, entries[2].Matched)

	ranged, _, err := f.proc.History(ctx, 1, choice.HistoryQuery{
		From: morning.Add(time.Minute),
		To:   morning.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, uint64(3), ranged[0].TargetUserID)

	page1, token, err := f.proc.History(ctx, 1, choice.HistoryQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, token)
	page2, token, err := f.proc.History(ctx, 1, choice.HistoryQuery{Limit: 2, PageToken: token})
	require.NoError(t, err)
	assert.Empty(t, token)
	require.Len(t, page2, 1)
	assert.Equal(t, uint64(4), page2[0].TargetUserID)
}

func TestPendingLikesAndMatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.offer(t, 2, 1, 1)
	f.offer(t, 3, 1, 1)
	f.offer(t, 1, 1, 3)

	_, err := f.proc.Choose(ctx, 2, 1, domain.ChoiceLike)
	require.NoError(t, err)
	f.clock.T = morning.Add(time.Minute)
	_, err = f.proc.Choose(ctx, 3, 1, domain.ChoiceLike)
	require.NoError(t, err)

	likes, _, err := f.proc.PendingLikes(ctx, 1, "", 0)
	require.NoError(t, err)
	require.Len(t, likes, 2)
	assert.Equal(t, uint64(3), likes[0].UserID)
	assert.Equal(t, uint64(2), likes[1].UserID)

	res, err := f.proc.Choose(ctx, 1, 3, domain.ChoiceLike)
	require.NoError(t, err)
	require.True(t, res.IsMatch)

	likes, _, err = f.proc.PendingLikes(ctx, 1, "", 0)
	require.NoError(t, err)
	require.Len(t, likes, 1)
	assert.Equal(t, uint64(2), likes[0].UserID)

	matches, _, err := f.proc.Matches(ctx, 3, "", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint64(1), matches[0].UserID)
	assert.Equal(t, res.PairingID, matches[0].PairingID)
}

func TestUnmatch(t *testing.T) {
	ctx := context.Background()
	rc, mr := testutil.NewRedis(t)
	f := newFixture(t, rc)
	f.offer(t, 1, 1, 2)
	f.offer(t, 2, 1, 1)

	_, err := f.proc.Choose(ctx, 1, 2, domain.ChoiceLike)
	require.NoError(t, err)
	res, err := f.proc.Choose(ctx, 2, 1, domain.ChoiceLike)
	require.NoError(t, err)
	require.True(t, res.IsMatch)

	require.NoError(t, mr.Set(cache.KeyForScore("v2", 1, 2), "{}"))
	require.NoError(t, mr.Set(cache.KeyForScore("v2", 1, 5), "{}"))
	require.NoError(t, mr.Set(cache.KeyForScore("v2", 7, 8), "{}"))

	err = f.proc.Unmatch(ctx, 9, res.PairingID)
	assert.ErrorIs(t, err, domain.ErrPairingNotFound)

	require.NoError(t, f.proc.Unmatch(ctx, 2, res.PairingID))
	assert.Zero(t, f.count(t, &db.Pairing{}))
	assert.False(t, mr.Exists(cache.KeyForScore("v2", 1, 2)))
	assert.False(t, mr.Exists(cache.KeyForScore("v2", 1, 5)))
	assert.True(t, mr.Exists(cache.KeyForScore("v2", 7, 8)))

	err = f.proc.Unmatch(ctx, 2, res.PairingID)
	assert.ErrorIs(t, err, domain.ErrPairingNotFound)
}
