package quota

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
)

// Snapshot is the quota state of one user's selection for one day.
type Snapshot struct {
	SelectionID uint64    `json:"selection_id,omitempty"`
	Date        string    `json:"date"`
	Tier        Tier      `json:"tier"`
	Max         int       `json:"max"`
	Used        int       `json:"used"`
	Remaining   int       `json:"remaining"`
	ResetsAt    time.Time `json:"resets_at"`
}

// CanContinue reports whether another choice is allowed today.
func (s Snapshot) CanContinue() bool { return s.Remaining > 0 }

type snapshotKey struct{}

// WithSnapshot attaches a resolved snapshot to ctx for downstream handlers.
func WithSnapshot(ctx context.Context, s Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, s)
}

func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	s, ok := ctx.Value(snapshotKey{}).(Snapshot)
	return s, ok
}

type SelectionReader interface {
	FindByUserDate(ctx context.Context, userID uint64, date string) (*db.DailySelection, error)
}

// Enforcer is the pre-condition guard for "choose profile X".
type Enforcer struct {
	selections SelectionReader
	tiers      *TierLookup
	clock      domain.Clock
}

func NewEnforcer(selections SelectionReader, tiers *TierLookup, clock domain.Clock) *Enforcer {
	return &Enforcer{selections: selections, tiers: tiers, clock: clock}
}

// Guard loads today's selection for userID and checks targetID against it.
//
// Behavior:
//   - No selection today → ErrSelectionNotFound.
//   - Target outside the selection → ErrTargetNotInSelection.
//   - Target already chosen → ErrAlreadyChosenToday.
//   - Budget spent → ErrQuotaExceeded with the tier's message.
//
// On success the returned context carries the Snapshot.
func (e *Enforcer) Guard(ctx context.Context, userID, targetID uint64) (context.Context, *db.DailySelection, error) {
	now := e.clock.Now()
	sel, err := e.selections.FindByUserDate(ctx, userID, domain.DateKey(now))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ctx, nil, domain.ErrSelectionNotFound
	} else if err != nil {
		return ctx, nil, err
	}

	if err := Validate(sel, targetID); err != nil {
		return ctx, sel, err
	}
	return WithSnapshot(ctx, SnapshotOf(sel, now)), sel, nil
}

// Validate applies the guard rules to an already loaded selection.
func Validate(sel *db.DailySelection, targetID uint64) error {
	if !sel.Contains(targetID) {
		return domain.ErrTargetNotInSelection
	}
	if sel.HasChosen(targetID) {
		return domain.ErrAlreadyChosenToday
	}
	if sel.ChoicesUsed >= sel.MaxChoicesAllowed {
		return domain.ErrQuotaExceeded.WithMessage(PolicyForQuota(sel.MaxChoicesAllowed).ExceededMessage())
	}
	return nil
}

// Status reports today's quota for userID. Before the day's selection exists
// it reflects the tier the user would be generated under.
func (e *Enforcer) Status(ctx context.Context, userID uint64) (Snapshot, error) {
	now := e.clock.Now()
	sel, err := e.selections.FindByUserDate(ctx, userID, domain.DateKey(now))
	if err == nil {
		return SnapshotOf(sel, now), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, err
	}

	p, err := e.tiers.Policy(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Date:      domain.DateKey(now),
		Tier:      p.Tier(),
		Max:       p.MaxChoices(),
		Remaining: p.MaxChoices(),
		ResetsAt:  domain.StartOfNextDay(now),
	}, nil
}

// SnapshotOf derives the quota view of a stored selection.
func SnapshotOf(sel *db.DailySelection, now time.Time) Snapshot {
	return Snapshot{
		SelectionID: sel.ID,
		Date:        sel.SelectionDate,
		Tier:        PolicyForQuota(sel.MaxChoicesAllowed).Tier(),
		Max:         sel.MaxChoicesAllowed,
		Used:        sel.ChoicesUsed,
		Remaining:   sel.Remaining(),
		ResetsAt:    domain.StartOfNextDay(now),
	}
}
