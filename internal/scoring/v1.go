package scoring

import (
	"context"
	"math"

	"github.com/oggyb/muzz-matching/internal/domain"
)

const (
	v1PersonalityWeight = 0.4
	v1InterestsWeight   = 0.3
	v1ValuesWeight      = 0.3
)

// V1 scores questionnaire answers and declared interests only.
type V1 struct{}

func (V1) Version() string { return VersionV1 }

func (V1) Score(_ context.Context, a, b *domain.Profile) (Result, error) {
	if a == nil || b == nil {
		return Result{}, ErrNilProfile
	}
	base := computeBase(a, b)
	return Result{
		Total:           round1(100 * base.fraction()),
		Breakdown:       base.breakdown(),
		SharedInterests: base.shared,
		Version:         VersionV1,
	}, nil
}

// base holds the personality-only components reused by V2.
type base struct {
	personality float64
	categories  map[string]float64
	interests   float64
	shared      []string
}

func computeBase(a, b *domain.Profile) base {
	p, cats := personalityScore(a.Answers, b.Answers)
	return base{
		personality: p,
		categories:  cats,
		interests:   interestScore(a.Interests, b.Interests),
		shared:      sharedInterests(a.Interests, b.Interests),
	}
}

// fraction is the V1 total on a 0..1 scale.
func (c base) fraction() float64 {
	return v1PersonalityWeight*c.personality +
		v1InterestsWeight*c.interests +
		v1ValuesWeight*c.categories[domain.CategoryValues]
}

func (c base) breakdown() map[string]float64 {
	return map[string]float64{
		KeyPersonality:   round3(c.personality),
		KeyInterests:     round3(c.interests),
		KeyValues:        round3(c.categories[domain.CategoryValues]),
		KeyCommunication: round3(c.categories[domain.CategoryCommunication]),
		KeyLifestyle:     round3(c.categories[domain.CategoryLifestyle]),
	}
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
