package matching

import (
	"time"

	"github.com/oggyb/muzz-matching/internal/choice"
	"github.com/oggyb/muzz-matching/internal/quota"
)

type UserRequest struct {
	UserID uint64 `json:"user_id" validate:"required"`
}

type Candidate struct {
	UserID    uint64   `json:"user_id"`
	Rank      int      `json:"rank"`
	Score     float64  `json:"score"`
	Chosen    bool     `json:"chosen"`
	Age       int      `json:"age,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

type DailySelectionResponse struct {
	SelectionID uint64         `json:"selection_id"`
	Date        string         `json:"date"`
	Candidates  []Candidate    `json:"candidates"`
	Quota       quota.Snapshot `json:"quota"`
	// Message explains an empty selection; it is not an error.
	Message string `json:"message,omitempty"`
}

type ChooseRequest struct {
	UserID       uint64 `json:"user_id" validate:"required"`
	TargetUserID uint64 `json:"target_user_id" validate:"required,nefield=UserID"`
	Choice       string `json:"choice" validate:"required"`
}

type ChooseResponse struct {
	IsMatch          bool       `json:"is_match"`
	PairingID        uint64     `json:"pairing_id,omitempty"`
	ChoicesRemaining int        `json:"choices_remaining"`
	CanContinue      bool       `json:"can_continue"`
	Tier             quota.Tier `json:"tier"`
	ResetsAt         time.Time  `json:"resets_at"`
}

type QuotaStatusResponse struct {
	quota.Snapshot
	CanContinue bool `json:"can_continue"`
}

type HistoryRequest struct {
	UserID    uint64     `json:"user_id" validate:"required"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	PageToken string     `json:"page_token,omitempty"`
	Limit     int        `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
}

type HistoryResponse struct {
	Entries       []choice.HistoryEntry `json:"entries"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type PageRequest struct {
	UserID    uint64 `json:"user_id" validate:"required"`
	PageToken string `json:"page_token,omitempty"`
	Limit     int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
}

type PendingLikesResponse struct {
	Likes         []choice.LikeEntry `json:"likes"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type MatchesResponse struct {
	Matches       []choice.MatchEntry `json:"matches"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

type UnmatchRequest struct {
	UserID    uint64 `json:"user_id" validate:"required"`
	PairingID uint64 `json:"pairing_id" validate:"required"`
}

type UnmatchResponse struct {
	Removed bool `json:"removed"`
}

type CompatibilityRequest struct {
	UserID       uint64 `json:"user_id" validate:"required"`
	TargetUserID uint64 `json:"target_user_id" validate:"required,nefield=UserID"`
}

type CompatibilityResponse struct {
	Total           float64            `json:"total"`
	Breakdown       map[string]float64 `json:"breakdown"`
	SharedInterests []string           `json:"shared_interests"`
	Version         string             `json:"version"`
	Reasons         []string           `json:"reasons"`
}

type BatchCompatibilityRequest struct {
	UserID        uint64   `json:"user_id" validate:"required"`
	TargetUserIDs []uint64 `json:"target_user_ids" validate:"required,min=1,max=100,dive,required"`
}

// ScoredTarget is one target of a batch compatibility call, best first.
type ScoredTarget struct {
	UserID          uint64             `json:"user_id"`
	Rank            int                `json:"rank"`
	Total           float64            `json:"total"`
	Breakdown       map[string]float64 `json:"breakdown"`
	SharedInterests []string           `json:"shared_interests"`
	Reasons         []string           `json:"reasons"`
}

type BatchCompatibilityResponse struct {
	Version string         `json:"version"`
	Results []ScoredTarget `json:"results"`
	// Missing lists requested targets without a profile or whose score failed.
	Missing []uint64 `json:"missing,omitempty"`
}
