package domain

import (
	"fmt"
	"strings"
	"time"
)

type ChoiceType string

const (
	ChoiceLike ChoiceType = "like"
	ChoicePass ChoiceType = "pass"
)

// ParseChoiceType accepts "like"/"pass" in any case.
func ParseChoiceType(s string) (ChoiceType, error) {
	switch ChoiceType(strings.ToLower(strings.TrimSpace(s))) {
	case ChoiceLike:
		return ChoiceLike, nil
	case ChoicePass:
		return ChoicePass, nil
	}
	return "", fmt.Errorf("unknown choice type %q", s)
}

type PairingStatus string

const (
	PairingPending PairingStatus = "pending"
	PairingMatched PairingStatus = "matched"
	PairingExpired PairingStatus = "expired"
)

// PairKey orders two user ids so an unordered pair has exactly one representation.
func PairKey(a, b uint64) (low, high uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Clock is injected everywhere "today" matters so tests can pin the date.
type Clock interface {
	Now() time.Time
}

type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns T. Tests advance it by assigning T.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

// DateKey is the calendar-day key used for daily selections.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// StartOfNextDay returns local midnight following t.
func StartOfNextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
