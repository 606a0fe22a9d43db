package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/metrics"
)

type SelectionPurger interface {
	DeleteOlderThan(ctx context.Context, date string) (int64, error)
}

type PairingExpirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupReport counts the rows each retention step touched.
type CleanupReport struct {
	SelectionsDeleted int64
	PairingsExpired   int64
}

// Cleaner applies retention: old selections are deleted and stale PENDING
// pairings become EXPIRED. A zero day count disables that step.
type Cleaner struct {
	selections        SelectionPurger
	pairings          PairingExpirer
	clock             domain.Clock
	retentionDays     int
	pendingExpiryDays int
	log               *slog.Logger
}

func NewCleaner(selections SelectionPurger, pairings PairingExpirer, clock domain.Clock, retentionDays, pendingExpiryDays int, log *slog.Logger) *Cleaner {
	return &Cleaner{
		selections:        selections,
		pairings:          pairings,
		clock:             clock,
		retentionDays:     retentionDays,
		pendingExpiryDays: pendingExpiryDays,
		log:               log.With("component", "cleanup"),
	}
}

func (c *Cleaner) Run(ctx context.Context) (CleanupReport, error) {
	var rep CleanupReport
	now := c.clock.Now()

	if c.retentionDays > 0 {
		cutoff := domain.DateKey(now.AddDate(0, 0, -c.retentionDays))
		n, err := c.selections.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return rep, fmt.Errorf("delete old selections: %w", err)
		}
		rep.SelectionsDeleted = n
		metrics.CleanupRows.WithLabelValues("selections_deleted").Add(float64(n))
	}

	if c.pendingExpiryDays > 0 {
		n, err := c.pairings.ExpireStale(ctx, now.AddDate(0, 0, -c.pendingExpiryDays))
		if err != nil {
			return rep, fmt.Errorf("expire pending pairings: %w", err)
		}
		rep.PairingsExpired = n
		metrics.CleanupRows.WithLabelValues("pairings_expired").Add(float64(n))
	}

	c.log.Info("retention cleanup finished",
		"selections_deleted", rep.SelectionsDeleted,
		"pairings_expired", rep.PairingsExpired)
	return rep, nil
}
