package domain

import "time"

// AnswerKind tells the scorer which similarity function applies to an answer.
type AnswerKind string

const (
	AnswerNumeric        AnswerKind = "numeric"
	AnswerBoolean        AnswerKind = "boolean"
	AnswerMultipleChoice AnswerKind = "multiple_choice"
	AnswerText           AnswerKind = "text"
)

// Question categories used for the score breakdown.
const (
	CategoryCommunication = "communication"
	CategoryValues        = "values"
	CategoryLifestyle     = "lifestyle"
	CategoryPersonality   = "personality"
)

// Answer is one personality-questionnaire answer. Only the field matching Kind is read.
type Answer struct {
	QuestionID string     `json:"question_id"`
	Category   string     `json:"category,omitempty"`
	Kind       AnswerKind `json:"kind"`
	Numeric    *int       `json:"numeric,omitempty"`
	Boolean    *bool      `json:"boolean,omitempty"`
	Choices    []string   `json:"choices,omitempty"`
	Text       string     `json:"text,omitempty"`
}

// Preferences are the hard constraints a user declares about counterparts.
type Preferences struct {
	MinAge        int     `json:"min_age,omitempty"`
	MaxAge        int     `json:"max_age,omitempty"`
	Gender        string  `json:"gender,omitempty"` // "" or "any" means no preference
	MaxDistanceKm float64 `json:"max_distance_km,omitempty"`
}

// Profile is the engine's read-only view of a user's profile and behavioural signals.
type Profile struct {
	UserID      uint64      `json:"user_id"`
	Completed   bool        `json:"completed"`
	Age         int         `json:"age,omitempty"`
	Gender      string      `json:"gender,omitempty"`
	Latitude    *float64    `json:"latitude,omitempty"`
	Longitude   *float64    `json:"longitude,omitempty"`
	Preferences Preferences `json:"preferences"`
	Interests   []string    `json:"interests,omitempty"`
	Answers     []Answer    `json:"answers,omitempty"`

	LastActiveAt     *time.Time `json:"last_active_at,omitempty"`
	MessagesSent     int        `json:"messages_sent"`
	MessagesReceived int        `json:"messages_received"`
	MatchesCount     int        `json:"matches_count"`
}

// HasLocation reports whether both coordinates are present.
func (p *Profile) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}
