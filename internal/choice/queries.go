package choice

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/repository"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// HistoryEntry is one past choice. Matched is true when the user currently
// shares a MATCHED pairing with the target; a pass is never matched.
type HistoryEntry struct {
	ChoiceID     uint64            `json:"choice_id"`
	TargetUserID uint64            `json:"target_user_id"`
	SelectionID  uint64            `json:"selection_id"`
	Type         domain.ChoiceType `json:"type"`
	CreatedAt    time.Time         `json:"created_at"`
	Matched      bool              `json:"matched"`
}

// LikeEntry is a pending like received from another user.
type LikeEntry struct {
	PairingID uint64    `json:"pairing_id"`
	UserID    uint64    `json:"user_id"`
	LikedAt   time.Time `json:"liked_at"`
}

// MatchEntry is an active match seen from one side.
type MatchEntry struct {
	PairingID uint64    `json:"pairing_id"`
	UserID    uint64    `json:"user_id"`
	MatchedAt time.Time `json:"matched_at"`
}

// HistoryQuery narrows History to [From, To); zero times leave a side open.
type HistoryQuery struct {
	From      time.Time
	To        time.Time
	PageToken string
	Limit     int
}

func pageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

// History returns userID's choices oldest first with their match state.
func (p *Processor) History(ctx context.Context, userID uint64, q HistoryQuery) ([]HistoryEntry, string, error) {
	rows, next, err := p.choices.History(ctx, repository.HistoryQuery{
		UserID:    userID,
		From:      q.From,
		To:        q.To,
		PageToken: q.PageToken,
		Limit:     pageSize(q.Limit),
	})
	if err != nil {
		return nil, "", err
	}

	var liked []uint64
	for _, c := range rows {
		if c.Type == string(domain.ChoiceLike) {
			liked = append(liked, c.TargetUserID)
		}
	}
	matched, err := p.pairings.MatchedWith(ctx, userID, liked)
	if err != nil {
		return nil, "", err
	}

	out := make([]HistoryEntry, 0, len(rows))
	for _, c := range rows {
		kind := domain.ChoiceType(c.Type)
		out = append(out, HistoryEntry{
			ChoiceID:     c.ID,
			TargetUserID: c.TargetUserID,
			SelectionID:  c.SelectionID,
			Type:         kind,
			CreatedAt:    c.CreatedAt,
			Matched:      kind == domain.ChoiceLike && matched[c.TargetUserID],
		})
	}
	return out, next, nil
}

// PendingLikes lists users who liked userID and are still waiting, newest first.
func (p *Processor) PendingLikes(ctx context.Context, userID uint64, token string, limit int) ([]LikeEntry, string, error) {
	rows, next, err := p.pairings.ListPendingLikes(ctx, userID, token, pageSize(limit))
	if err != nil {
		return nil, "", err
	}
	out := make([]LikeEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, LikeEntry{PairingID: r.ID, UserID: r.InitiatorID, LikedAt: r.CreatedAt})
	}
	return out, next, nil
}

// Matches lists userID's active matches, most recent first.
func (p *Processor) Matches(ctx context.Context, userID uint64, token string, limit int) ([]MatchEntry, string, error) {
	rows, next, err := p.pairings.ListMatches(ctx, userID, token, pageSize(limit))
	if err != nil {
		return nil, "", err
	}
	out := make([]MatchEntry, 0, len(rows))
	for _, r := range rows {
		e := MatchEntry{PairingID: r.ID, UserID: r.Counterpart(userID), MatchedAt: r.CreatedAt}
		if r.MatchedAt != nil {
			e.MatchedAt = *r.MatchedAt
		}
		out = append(out, e)
	}
	return out, next, nil
}

// Unmatch deletes a pairing userID belongs to, whatever its status, and
// drops both users' cached scores.
func (p *Processor) Unmatch(ctx context.Context, userID, pairingID uint64) error {
	pairing, err := p.pairings.DeleteForUser(ctx, pairingID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrPairingNotFound
	}
	if err != nil {
		return err
	}

	p.log.Info("pairing removed", "pairing_id", pairing.ID, "by_user_id", userID, "status", pairing.Status)
	p.invalidate(ctx, pairing)
	return nil
}

func (p *Processor) invalidate(ctx context.Context, pairing *db.Pairing) {
	if p.scores == nil {
		return
	}
	for _, id := range []uint64{pairing.User1ID, pairing.User2ID} {
		if _, err := p.scores.InvalidateUserScores(ctx, id); err != nil {
			p.log.Warn("score cache invalidation failed", "user_id", id, "err", err)
		}
	}
}
