// Package choice applies like/pass decisions to a user's daily selection and
// drives the pairing lifecycle NONE -> PENDING -> MATCHED (-> EXPIRED).
package choice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/metrics"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/quota"
	"github.com/oggyb/muzz-matching/internal/repository"
)

const (
	defaultAttempts = 5
	sideEffectWait  = 5 * time.Second
)

// errConflict marks a lost optimistic race; the whole transaction is retried.
var errConflict = errors.New("concurrent update")

// ScoreInvalidator drops cached compatibility scores involving a user.
type ScoreInvalidator interface {
	InvalidateUserScores(ctx context.Context, userID uint64) (int, error)
}

// Result is what the caller learns from one choice.
type Result struct {
	IsMatch          bool       `json:"is_match"`
	PairingID        uint64     `json:"pairing_id,omitempty"`
	ChoicesRemaining int        `json:"choices_remaining"`
	CanContinue      bool       `json:"can_continue"`
	Tier             quota.Tier `json:"tier"`
	ResetsAt         time.Time  `json:"resets_at"`
}

type Options struct {
	// MaxAttempts bounds retries after a lost compare-and-swap.
	MaxAttempts int
	// RetryBackOff overrides the delay between attempts.
	RetryBackOff backoff.BackOff
}

type Processor struct {
	db       *gorm.DB
	enforcer *quota.Enforcer
	chats    notify.ChatCreator
	notifier notify.Notifier
	scores   ScoreInvalidator
	clock    domain.Clock
	log      *slog.Logger
	opts     Options

	selections *repository.SelectionRepository
	choices    *repository.ChoiceRepository
	pairings   *repository.PairingRepository
}

func NewProcessor(
	database *gorm.DB,
	enforcer *quota.Enforcer,
	chats notify.ChatCreator,
	notifier notify.Notifier,
	scores ScoreInvalidator,
	clock domain.Clock,
	log *slog.Logger,
	opts Options,
) *Processor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultAttempts
	}
	if chats == nil {
		chats = notify.Nop{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Processor{
		db:         database,
		enforcer:   enforcer,
		chats:      chats,
		notifier:   notifier,
		scores:     scores,
		clock:      clock,
		log:        log.With("component", "choice"),
		opts:       opts,
		selections: repository.NewSelectionRepository(database),
		choices:    repository.NewChoiceRepository(database),
		pairings:   repository.NewPairingRepository(database),
	}
}

// outcome is the committed state of one choice transaction.
type outcome struct {
	sel     *db.DailySelection
	pairing *db.Pairing
	matched bool
}

// Choose records userID's like or pass on targetID from today's selection.
//
// Behavior:
//   - Guard failures (no selection, target not offered, already chosen, quota
//     spent) are returned as domain errors and change nothing.
//   - The selection row is updated with compare-and-swap inside a transaction
//     together with the Choice insert and any pairing change. A lost race
//     re-reads and re-validates, so choicesUsed never exceeds the snapshot.
//   - A like creates a PENDING pairing, or promotes the counterpart's PENDING
//     pairing to MATCHED. Only the transaction that performed that promotion
//     triggers chat creation and match notifications, after commit.
//   - A pass never reads or writes pairings.
func (p *Processor) Choose(ctx context.Context, userID, targetID uint64, kind domain.ChoiceType) (Result, error) {
	ctx, _, err := p.enforcer.Guard(ctx, userID, targetID)
	if err != nil {
		if domain.IsClientError(err) {
			metrics.ChoicesTotal.WithLabelValues(string(kind), "rejected").Inc()
			p.log.Debug("choice rejected", "user_id", userID, "target_id", targetID, "err", err)
		}
		return Result{}, err
	}
	snap, _ := quota.SnapshotFromContext(ctx)

	opts := []backoff.RetryOption{backoff.WithMaxTries(uint(p.opts.MaxAttempts))}
	if p.opts.RetryBackOff != nil {
		opts = append(opts, backoff.WithBackOff(p.opts.RetryBackOff))
	} else {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 5 * time.Millisecond
		b.MaxInterval = 100 * time.Millisecond
		opts = append(opts, backoff.WithBackOff(b))
	}

	out, err := backoff.Retry(ctx, func() (outcome, error) {
		out, err := p.apply(ctx, snap.Date, userID, targetID, kind)
		if errors.Is(err, errConflict) {
			metrics.ChoiceConflicts.Inc()
			return outcome{}, err
		}
		if err != nil {
			return outcome{}, backoff.Permanent(err)
		}
		return out, nil
	}, opts...)
	if err != nil {
		if domain.IsClientError(err) {
			metrics.ChoicesTotal.WithLabelValues(string(kind), "rejected").Inc()
			p.log.Debug("choice rejected after re-read", "user_id", userID, "target_id", targetID, "tier", snap.Tier, "err", err)
			return Result{}, err
		}
		metrics.ChoicesTotal.WithLabelValues(string(kind), "error").Inc()
		return Result{}, fmt.Errorf("record choice: %w", err)
	}

	metrics.ChoicesTotal.WithLabelValues(string(kind), "accepted").Inc()
	if out.matched {
		p.onMatch(ctx, out.pairing)
	}

	res := Result{
		IsMatch:          out.matched,
		ChoicesRemaining: out.sel.Remaining(),
		CanContinue:      out.sel.Remaining() > 0,
		Tier:             snap.Tier,
		ResetsAt:         snap.ResetsAt,
	}
	if out.pairing != nil {
		res.PairingID = out.pairing.ID
	}
	return res, nil
}

// apply runs one attempt of the choose transaction.
func (p *Processor) apply(ctx context.Context, date string, userID, targetID uint64, kind domain.ChoiceType) (outcome, error) {
	var out outcome
	now := p.clock.Now()

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		selections := p.selections.WithTx(tx)

		sel, err := selections.FindByUserDate(ctx, userID, date)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrSelectionNotFound
		} else if err != nil {
			return err
		}
		if err := quota.Validate(sel, targetID); err != nil {
			return err
		}

		ok, err := selections.RecordChoice(ctx, sel, targetID)
		if err != nil {
			return err
		}
		if !ok {
			return errConflict
		}

		if err := p.choices.WithTx(tx).Create(ctx, &db.Choice{
			UserID:       userID,
			TargetUserID: targetID,
			SelectionID:  sel.ID,
			Type:         string(kind),
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("append choice: %w", err)
		}

		out.sel = sel
		if kind != domain.ChoiceLike {
			return nil
		}

		out.pairing, out.matched, err = p.like(ctx, p.pairings.WithTx(tx), userID, targetID, now)
		return err
	})
	if err != nil {
		return outcome{}, err
	}
	return out, nil
}

// like moves the pairing between userID and targetID forward.
func (p *Processor) like(ctx context.Context, pairings *repository.PairingRepository, userID, targetID uint64, now time.Time) (*db.Pairing, bool, error) {
	pairing, err := pairings.Find(ctx, userID, targetID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pairing, err = pairings.CreatePending(ctx, userID, targetID, now)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// the other side liked at the same moment; retry sees their row
			return nil, false, errConflict
		}
		return pairing, false, err
	}
	if err != nil {
		return nil, false, err
	}

	switch domain.PairingStatus(pairing.Status) {
	case domain.PairingPending:
		if pairing.InitiatorID == userID {
			return pairing, false, nil
		}
		ok, err := pairings.MarkMatched(ctx, pairing, now)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, errConflict
		}
		return pairing, true, nil
	case domain.PairingExpired:
		ok, err := pairings.Reopen(ctx, pairing, userID, now)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, errConflict
		}
		return pairing, false, nil
	default:
		// already matched; liking again changes nothing
		return pairing, false, nil
	}
}

// onMatch fires the post-commit side effects of a new match. Failures are
// logged; the match itself stands.
func (p *Processor) onMatch(ctx context.Context, pairing *db.Pairing) {
	metrics.MatchesTotal.Inc()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectWait)
	defer cancel()

	if err := p.chats.CreateChatForMatch(ctx, pairing.ID); err != nil {
		metrics.ChatCreationFailures.Inc()
		p.log.Error("chat creation failed", "pairing_id", pairing.ID, "err", err)
	}

	at := p.clock.Now()
	if pairing.MatchedAt != nil {
		at = *pairing.MatchedAt
	}
	p.notifier.Notify(ctx, notify.NewMatch(pairing.User1ID, pairing.User2ID, pairing.ID, at))
	p.notifier.Notify(ctx, notify.NewMatch(pairing.User2ID, pairing.User1ID, pairing.ID, at))

	p.log.Info("new match", "pairing_id", pairing.ID, "user1_id", pairing.User1ID, "user2_id", pairing.User2ID)
}
