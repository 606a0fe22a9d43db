package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
)

// SubscriptionRepository reads the billing-owned subscription table.
type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(database *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: database}
}

// Get returns the user's subscription row, or nil when the user never subscribed.
func (r *SubscriptionRepository) Get(ctx context.Context, userID uint64) (*db.Subscription, error) {
	var s db.Subscription
	err := r.db.WithContext(ctx).First(&s, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert inserts or overwrites a subscription. Used by seeding and tests;
// in production billing owns the writes.
func (r *SubscriptionRepository) Upsert(ctx context.Context, s *db.Subscription) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"tier", "expires_at", "updated_at"}),
		}).
		Create(s).Error
}
