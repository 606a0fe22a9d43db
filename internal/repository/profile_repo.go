package repository

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
)

// ProfileRepository is the engine's read-only window onto profiles and user activity.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new repository bound to the given DB connection.
func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// Get loads one profile joined with the owner's last activity.
// A missing row returns domain.ErrProfileNotFound.
func (r *ProfileRepository) Get(ctx context.Context, userID uint64) (*domain.Profile, error) {
	var p db.Profile
	err := r.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProfileNotFound
	} else if err != nil {
		return nil, err
	}

	active, err := r.lastActive(ctx, []uint64{userID})
	if err != nil {
		return nil, err
	}
	return p.ToDomain(active[userID]), nil
}

// CandidatePool returns up to limit completed profiles eligible for userID on date.
//
// Behavior:
//   - Excludes userID itself.
//   - Excludes anyone sharing a pairing with userID, whatever its status.
//   - Excludes incomplete profiles.
//   - When more than limit profiles qualify, the window starts at a pivot id
//     derived from (userID, date) and wraps around the id space, so every
//     eligible profile is reachable by someone on some day.
//   - The result is sorted by user_id so rank tie-breaks are reproducible.
//
// Example:
//
//	repo.CandidatePool(ctx, 42, "2026-05-04", 50) // up to 50 candidates for user 42
func (r *ProfileRepository) CandidatePool(ctx context.Context, userID uint64, date string, limit int) ([]*domain.Profile, error) {
	var bounds struct {
		Lo uint64
		Hi uint64
	}
	err := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Select("COALESCE(MIN(user_id), 0) AS lo, COALESCE(MAX(user_id), 0) AS hi").
		Where("completed = ?", true).
		Scan(&bounds).Error
	if err != nil {
		return nil, err
	}
	pivot := poolPivot(userID, date, bounds.Lo, bounds.Hi)

	rows, err := r.eligible(ctx, userID, limit, "user_id >= ?", pivot)
	if err != nil {
		return nil, err
	}
	if len(rows) < limit && pivot > bounds.Lo {
		wrapped, err := r.eligible(ctx, userID, limit-len(rows), "user_id < ?", pivot)
		if err != nil {
			return nil, err
		}
		rows = append(rows, wrapped...)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return r.toDomain(ctx, rows)
}

func (r *ProfileRepository) eligible(ctx context.Context, userID uint64, limit int, window string, pivot uint64) ([]db.Profile, error) {
	pairedAsFirst := r.db.Model(&db.Pairing{}).Select("user2_id").Where("user1_id = ?", userID)
	pairedAsSecond := r.db.Model(&db.Pairing{}).Select("user1_id").Where("user2_id = ?", userID)

	var rows []db.Profile
	err := r.db.WithContext(ctx).
		Where("completed = ? AND user_id <> ?", true, userID).
		Where("user_id NOT IN (?)", pairedAsFirst).
		Where("user_id NOT IN (?)", pairedAsSecond).
		Where(window, pivot).
		Order("user_id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// poolPivot maps (userID, date) onto [lo, hi].
func poolPivot(userID uint64, date string, lo, hi uint64) uint64 {
	if hi <= lo {
		return lo
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%s", userID, date)
	return lo + h.Sum64()%(hi-lo+1)
}

// GetMany loads profiles by id. Unknown ids are silently absent from the result.
func (r *ProfileRepository) GetMany(ctx context.Context, ids []uint64) (map[uint64]*domain.Profile, error) {
	out := make(map[uint64]*domain.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []db.Profile
	if err := r.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	profiles, err := r.toDomain(ctx, rows)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.UserID] = p
	}
	return out, nil
}

// ActiveUserIDs lists active users in id order, starting after afterID.
// The scheduler walks the population with it page by page.
func (r *ProfileRepository) ActiveUserIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("active = ? AND id > ?", true, afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *ProfileRepository) toDomain(ctx context.Context, rows []db.Profile) ([]*domain.Profile, error) {
	ids := make([]uint64, 0, len(rows))
	for _, p := range rows {
		ids = append(ids, p.UserID)
	}
	active, err := r.lastActive(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Profile, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain(active[rows[i].UserID]))
	}
	return out, nil
}

func (r *ProfileRepository) lastActive(ctx context.Context, ids []uint64) (map[uint64]*time.Time, error) {
	out := make(map[uint64]*time.Time, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []db.User
	err := r.db.WithContext(ctx).
		Select("id", "last_active_at").
		Where("id IN ?", ids).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.LastActiveAt
	}
	return out, nil
}
