// Package scoring computes pairwise compatibility between two profiles.
//
// Every Scorer is deterministic and symmetric: Score(a, b) and Score(b, a)
// return the same Result. Strategies are picked by version string through New,
// so callers never branch on which one is active.
package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/oggyb/muzz-matching/internal/domain"
)

const (
	VersionV1 = "v1"
	VersionV2 = "v2"
)

// Breakdown keys. Category averages share their names with domain categories.
const (
	KeyPersonality   = "personality"
	KeyInterests     = "interests"
	KeyValues        = domain.CategoryValues
	KeyCommunication = domain.CategoryCommunication
	KeyLifestyle     = domain.CategoryLifestyle
	KeyActivity      = "activity"
	KeyResponseRate  = "response_rate"
	KeyReciprocity   = "reciprocity"
)

// Result is a 0..100 score with a 0..1 breakdown per factor.
type Result struct {
	Total           float64            `json:"total"`
	Breakdown       map[string]float64 `json:"breakdown"`
	SharedInterests []string           `json:"shared_interests"`
	Version         string             `json:"version"`
}

// Scorer turns two profiles into a compatibility Result.
type Scorer interface {
	Score(ctx context.Context, a, b *domain.Profile) (Result, error)
	Version() string
}

var ErrNilProfile = errors.New("scoring: nil profile")

// New returns the local strategy for version.
func New(version string, clock domain.Clock) (Scorer, error) {
	switch version {
	case VersionV1:
		return V1{}, nil
	case VersionV2, "":
		return NewV2(clock), nil
	}
	return nil, fmt.Errorf("unknown scorer version %q", version)
}
