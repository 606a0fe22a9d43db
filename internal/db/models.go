package db

import (
	"time"

	"gorm.io/datatypes"

	"github.com/oggyb/muzz-matching/internal/domain"
)

// User table. Authentication lives elsewhere; the engine reads activity only.
type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Active       bool   `gorm:"default:true"`
	LastActiveAt *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Profile is owned by the profile service; the engine only reads it.
//
// Indexes:
//   - idx_profile_completed(completed, user_id)
//     Drives the candidate pool scan in user-id order.
type Profile struct {
	UserID    uint64 `gorm:"primaryKey;index:idx_profile_completed,priority:2"`
	Completed bool   `gorm:"not null;default:false;index:idx_profile_completed,priority:1"`
	Age       int
	Gender    string `gorm:"size:16"`
	Latitude  *float64
	Longitude *float64

	PrefMinAge        int
	PrefMaxAge        int
	PrefGender        string `gorm:"size:16"`
	PrefMaxDistanceKm float64

	Interests datatypes.JSONSlice[string]
	Answers   datatypes.JSONSlice[domain.Answer]

	MessagesSent     int
	MessagesReceived int
	MatchesCount     int

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// ToDomain joins the profile with its user's activity timestamp.
func (p *Profile) ToDomain(lastActiveAt *time.Time) *domain.Profile {
	return &domain.Profile{
		UserID:    p.UserID,
		Completed: p.Completed,
		Age:       p.Age,
		Gender:    p.Gender,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Preferences: domain.Preferences{
			MinAge:        p.PrefMinAge,
			MaxAge:        p.PrefMaxAge,
			Gender:        p.PrefGender,
			MaxDistanceKm: p.PrefMaxDistanceKm,
		},
		Interests:        []string(p.Interests),
		Answers:          []domain.Answer(p.Answers),
		LastActiveAt:     lastActiveAt,
		MessagesSent:     p.MessagesSent,
		MessagesReceived: p.MessagesReceived,
		MatchesCount:     p.MatchesCount,
	}
}

// Subscription is written by billing; a missing or expired row means free tier.
type Subscription struct {
	UserID    uint64 `gorm:"primaryKey"`
	Tier      string `gorm:"size:16;not null"`
	ExpiresAt *time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// DailySelection is one user's ranked candidates for one calendar day.
//
// Unique (user_id, selection_date) is the authoritative guard against two
// concurrent generations for the same user and day.
//
// Version is bumped by every choice; choice writes compare-and-swap on it.
type DailySelection struct {
	ID                 uint64                      `gorm:"primaryKey;autoIncrement"`
	UserID             uint64                      `gorm:"not null;uniqueIndex:uq_selection_user_date,priority:1"`
	SelectionDate      string                      `gorm:"size:10;not null;uniqueIndex:uq_selection_user_date,priority:2;index:idx_selection_date"`
	SelectedProfileIDs datatypes.JSONSlice[uint64] `gorm:"not null"`
	Scores             datatypes.JSONSlice[float64]
	ChosenProfileIDs   datatypes.JSONSlice[uint64]
	ChoicesUsed        int       `gorm:"not null;default:0"`
	MaxChoicesAllowed  int       `gorm:"not null"`
	Version            uint64    `gorm:"not null;default:0"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

// Contains reports whether id is among the selected candidates.
func (s *DailySelection) Contains(id uint64) bool {
	for _, v := range s.SelectedProfileIDs {
		if v == id {
			return true
		}
	}
	return false
}

// HasChosen reports whether id was already chosen from this selection.
func (s *DailySelection) HasChosen(id uint64) bool {
	for _, v := range s.ChosenProfileIDs {
		if v == id {
			return true
		}
	}
	return false
}

// Remaining is the number of choices still available, never negative.
func (s *DailySelection) Remaining() int {
	if r := s.MaxChoicesAllowed - s.ChoicesUsed; r > 0 {
		return r
	}
	return 0
}

// Choice is an append-only like/pass event.
//
// Indexes:
//   - idx_choice_user_created(user_id, created_at, id)
//     Serves chronological history with date-range filtering.
type Choice struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement;index:idx_choice_user_created,priority:3"`
	UserID       uint64    `gorm:"not null;index:idx_choice_user_created,priority:1"`
	TargetUserID uint64    `gorm:"not null;index"`
	SelectionID  uint64    `gorm:"not null;index"`
	Type         string    `gorm:"size:8;not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_choice_user_created,priority:2"`
}

// Pairing tracks the relationship between two users.
//
// User1ID < User2ID always; uq_pairing_users makes re-likes idempotent and
// resolves concurrent first-likes from both sides.
type Pairing struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	User1ID     uint64 `gorm:"not null;uniqueIndex:uq_pairing_users,priority:1"`
	User2ID     uint64 `gorm:"not null;uniqueIndex:uq_pairing_users,priority:2;index"`
	InitiatorID uint64 `gorm:"not null"`
	Status      string `gorm:"size:16;not null;index"`
	MatchedAt   *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Counterpart returns the other member of the pair.
func (p *Pairing) Counterpart(userID uint64) uint64 {
	if p.User1ID == userID {
		return p.User2ID
	}
	return p.User1ID
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&User{}, &Profile{}, &Subscription{}, &DailySelection{}, &Choice{}, &Pairing{}}
}
