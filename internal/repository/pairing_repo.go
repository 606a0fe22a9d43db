package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// PairingRepository provides data access for the Pairing model.
// Every method normalizes the user pair, so callers pass ids in any order.
type PairingRepository struct {
	db *gorm.DB
}

func NewPairingRepository(database *gorm.DB) *PairingRepository {
	return &PairingRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *PairingRepository) WithTx(tx *gorm.DB) *PairingRepository {
	return &PairingRepository{db: tx}
}

// Find returns the pairing between a and b, or gorm.ErrRecordNotFound.
func (r *PairingRepository) Find(ctx context.Context, a, b uint64) (*db.Pairing, error) {
	low, high := domain.PairKey(a, b)
	var p db.Pairing
	err := r.db.WithContext(ctx).
		Where("user1_id = ? AND user2_id = ?", low, high).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePending inserts a PENDING pairing initiated by initiatorID.
// A concurrent first-like from the other side fails with gorm.ErrDuplicatedKey.
func (r *PairingRepository) CreatePending(ctx context.Context, initiatorID, targetID uint64, at time.Time) (*db.Pairing, error) {
	low, high := domain.PairKey(initiatorID, targetID)
	p := &db.Pairing{
		User1ID:     low,
		User2ID:     high,
		InitiatorID: initiatorID,
		Status:      string(domain.PairingPending),
		CreatedAt:   at.UTC().Truncate(time.Millisecond),
	}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// MarkMatched promotes a PENDING pairing to MATCHED.
// Returns false when the row was not PENDING anymore; only the caller that
// gets true may fire match side effects.
func (r *PairingRepository) MarkMatched(ctx context.Context, p *db.Pairing, at time.Time) (bool, error) {
	at = at.UTC().Truncate(time.Millisecond)
	res := r.db.WithContext(ctx).
		Model(&db.Pairing{}).
		Where("id = ? AND status = ?", p.ID, string(domain.PairingPending)).
		Updates(map[string]any{
			"status":     string(domain.PairingMatched),
			"matched_at": at,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return false, res.Error
	}
	p.Status = string(domain.PairingMatched)
	p.MatchedAt = &at
	return true, nil
}

// Reopen turns an EXPIRED pairing back into PENDING with a new initiator.
func (r *PairingRepository) Reopen(ctx context.Context, p *db.Pairing, initiatorID uint64, at time.Time) (bool, error) {
	at = at.UTC().Truncate(time.Millisecond)
	res := r.db.WithContext(ctx).
		Model(&db.Pairing{}).
		Where("id = ? AND status = ?", p.ID, string(domain.PairingExpired)).
		Updates(map[string]any{
			"status":       string(domain.PairingPending),
			"initiator_id": initiatorID,
			"matched_at":   nil,
			"created_at":   at,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return false, res.Error
	}
	p.Status = string(domain.PairingPending)
	p.InitiatorID = initiatorID
	p.MatchedAt = nil
	p.CreatedAt = at
	return true, nil
}

// DeleteForUser removes pairing id if userID is one of its members.
// Returns the deleted row, or nil when nothing matched.
func (r *PairingRepository) DeleteForUser(ctx context.Context, id, userID uint64) (*db.Pairing, error) {
	var p db.Pairing
	err := r.db.WithContext(ctx).
		Where("id = ? AND (user1_id = ? OR user2_id = ?)", id, userID, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}

	res := r.db.WithContext(ctx).Delete(&db.Pairing{}, p.ID)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

// ListPendingLikes returns PENDING pairings where someone else liked userID first.
//
// Behavior:
//   - Ordered newest first (created_at DESC, id DESC).
//   - Supports cursor-based pagination.
func (r *PairingRepository) ListPendingLikes(ctx context.Context, userID uint64, token string, limit int) ([]db.Pairing, string, error) {
	query := r.db.WithContext(ctx).
		Where("(user1_id = ? OR user2_id = ?) AND status = ? AND initiator_id <> ?",
			userID, userID, string(domain.PairingPending), userID)
	return r.page(query, "created_at", token, limit, func(p db.Pairing) time.Time { return p.CreatedAt })
}

// ListMatches returns MATCHED pairings for userID, most recent match first.
func (r *PairingRepository) ListMatches(ctx context.Context, userID uint64, token string, limit int) ([]db.Pairing, string, error) {
	query := r.db.WithContext(ctx).
		Where("(user1_id = ? OR user2_id = ?) AND status = ?", userID, userID, string(domain.PairingMatched))
	return r.page(query, "matched_at", token, limit, func(p db.Pairing) time.Time {
		if p.MatchedAt == nil {
			return p.CreatedAt
		}
		return *p.MatchedAt
	})
}

// MatchedWith reports which of the given counterparts currently share a
// MATCHED pairing with userID.
func (r *PairingRepository) MatchedWith(ctx context.Context, userID uint64, counterparts []uint64) (map[uint64]bool, error) {
	out := make(map[uint64]bool)
	if len(counterparts) == 0 {
		return out, nil
	}

	var rows []db.Pairing
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.PairingMatched)).
		Where("((user1_id = ? AND user2_id IN ?) OR (user2_id = ? AND user1_id IN ?))",
			userID, counterparts, userID, counterparts).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.Counterpart(userID)] = true
	}
	return out, nil
}

// ExpireStale moves PENDING pairings created before cutoff to EXPIRED.
func (r *PairingRepository) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Pairing{}).
		Where("status = ? AND created_at < ?", string(domain.PairingPending), cutoff.UTC()).
		Update("status", string(domain.PairingExpired))
	return res.RowsAffected, res.Error
}

// page applies a DESC keyset cursor over (col, id).
func (r *PairingRepository) page(
	query *gorm.DB,
	col, token string,
	limit int,
	key func(db.Pairing) time.Time,
) ([]db.Pairing, string, error) {
	cursor, err := pagination.Decode(token)
	if err != nil {
		return nil, "", err
	}

	query = query.Order(col + " DESC, id DESC").Limit(limit + 1)
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where("("+col+" < ? OR ("+col+" = ? AND id < ?))", ts, ts, cursor.ID)
	}

	var rows []db.Pairing
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}

	var next string
	if len(rows) > limit {
		last := rows[limit-1]
		next, _ = pagination.Encode(pagination.Cursor{ID: last.ID, CreatedUnix: key(last).UnixMilli()})
		rows = rows[:limit]
	}
	return rows, next, nil
}
