package quota

import (
	"context"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
)

type SubscriptionReader interface {
	Get(ctx context.Context, userID uint64) (*db.Subscription, error)
}

// TierLookup resolves a user's current tier from the subscription table.
// No row, an expired row, or an unknown tier name all mean free.
type TierLookup struct {
	subs  SubscriptionReader
	clock domain.Clock
}

func NewTierLookup(subs SubscriptionReader, clock domain.Clock) *TierLookup {
	return &TierLookup{subs: subs, clock: clock}
}

func (l *TierLookup) Policy(ctx context.Context, userID uint64) (Policy, error) {
	sub, err := l.subs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return PolicyFor(TierFree), nil
	}
	if sub.ExpiresAt != nil && !sub.ExpiresAt.After(l.clock.Now()) {
		return PolicyFor(TierFree), nil
	}
	return PolicyFor(Tier(sub.Tier)), nil
}

// GetQuota returns the number of choices userID gets today (1 or 3).
func (l *TierLookup) GetQuota(ctx context.Context, userID uint64) (int, error) {
	p, err := l.Policy(ctx, userID)
	if err != nil {
		return 0, err
	}
	return p.MaxChoices(), nil
}
