package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// ChoiceRepository appends and reads the like/pass event log.
type ChoiceRepository struct {
	db *gorm.DB
}

func NewChoiceRepository(database *gorm.DB) *ChoiceRepository {
	return &ChoiceRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *ChoiceRepository) WithTx(tx *gorm.DB) *ChoiceRepository {
	return &ChoiceRepository{db: tx}
}

// Create appends one event. CreatedAt must be set by the caller's clock.
func (r *ChoiceRepository) Create(ctx context.Context, c *db.Choice) error {
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Millisecond)
	return r.db.WithContext(ctx).Create(c).Error
}

// HistoryQuery filters a user's choice log. Zero From/To leave that side open;
// To is exclusive.
type HistoryQuery struct {
	UserID    uint64
	From      time.Time
	To        time.Time
	PageToken string
	Limit     int
}

// History returns a user's choices in chronological order.
//
// Behavior:
//   - Filters on [From, To) when set.
//   - Ordered by created_at ASC, id ASC.
//   - Supports cursor-based pagination; the returned token is empty on the last page.
//
// Example:
//
//	repo.History(ctx, HistoryQuery{UserID: 42, From: monday, To: friday, Limit: 20})
func (r *ChoiceRepository) History(ctx context.Context, q HistoryQuery) ([]db.Choice, string, error) {
	cursor, err := pagination.Decode(q.PageToken)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ?", q.UserID).
		Order("created_at ASC, id ASC").
		Limit(q.Limit + 1)

	if !q.From.IsZero() {
		query = query.Where("created_at >= ?", q.From.UTC())
	}
	if !q.To.IsZero() {
		query = query.Where("created_at < ?", q.To.UTC())
	}

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where("(created_at > ? OR (created_at = ? AND id > ?))", ts, ts, cursor.ID)
	}

	var choices []db.Choice
	if err := query.Find(&choices).Error; err != nil {
		return nil, "", err
	}

	var next string
	if len(choices) > q.Limit {
		last := choices[q.Limit-1]
		next, _ = pagination.Encode(pagination.Cursor{ID: last.ID, CreatedUnix: last.CreatedAt.UnixMilli()})
		choices = choices[:q.Limit]
	}
	return choices, next, nil
}
