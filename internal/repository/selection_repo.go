package repository

import (
	"context"
	"slices"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
)

// SelectionRepository persists daily selections.
type SelectionRepository struct {
	db *gorm.DB
}

func NewSelectionRepository(database *gorm.DB) *SelectionRepository {
	return &SelectionRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *SelectionRepository) WithTx(tx *gorm.DB) *SelectionRepository {
	return &SelectionRepository{db: tx}
}

// FindByUserDate loads the selection for (userID, date).
// Returns gorm.ErrRecordNotFound when none exists.
func (r *SelectionRepository) FindByUserDate(ctx context.Context, userID uint64, date string) (*db.DailySelection, error) {
	var sel db.DailySelection
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND selection_date = ?", userID, date).
		First(&sel).Error
	if err != nil {
		return nil, err
	}
	return &sel, nil
}

// Create inserts a new selection. A concurrent insert for the same
// (user, date) fails with gorm.ErrDuplicatedKey.
func (r *SelectionRepository) Create(ctx context.Context, sel *db.DailySelection) error {
	if sel.ChosenProfileIDs == nil {
		sel.ChosenProfileIDs = datatypes.JSONSlice[uint64]{}
	}
	if sel.SelectedProfileIDs == nil {
		sel.SelectedProfileIDs = datatypes.JSONSlice[uint64]{}
	}
	if sel.Scores == nil {
		sel.Scores = datatypes.JSONSlice[float64]{}
	}
	return r.db.WithContext(ctx).Create(sel).Error
}

// RecordChoice appends targetID to the chosen list and consumes one choice.
//
// Behavior:
//   - Compare-and-swap on version; also re-checks quota in the same statement.
//   - Returns false without error when another writer got there first or the
//     quota is already spent. The caller re-reads and re-validates.
//   - On success sel is updated in place to the stored state.
func (r *SelectionRepository) RecordChoice(ctx context.Context, sel *db.DailySelection, targetID uint64) (bool, error) {
	chosen := append(slices.Clone([]uint64(sel.ChosenProfileIDs)), targetID)

	res := r.db.WithContext(ctx).
		Model(&db.DailySelection{}).
		Where("id = ? AND version = ? AND choices_used < max_choices_allowed", sel.ID, sel.Version).
		Updates(map[string]any{
			"chosen_profile_ids": datatypes.JSONSlice[uint64](chosen),
			"choices_used":       gorm.Expr("choices_used + 1"),
			"version":            gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	sel.ChosenProfileIDs = chosen
	sel.ChoicesUsed++
	sel.Version++
	return true, nil
}

// DeleteOlderThan removes selections dated strictly before date ("YYYY-MM-DD").
func (r *SelectionRepository) DeleteOlderThan(ctx context.Context, date string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("selection_date < ?", date).
		Delete(&db.DailySelection{})
	return res.RowsAffected, res.Error
}
