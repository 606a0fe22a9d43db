package scoring

import (
	"context"
	"math"
	"time"

	"github.com/oggyb/muzz-matching/internal/domain"
)

const (
	v2BaseWeight     = 0.6
	v2AdvancedWeight = 0.4

	activityWeight    = 0.3
	responseWeight    = 0.4
	reciprocityWeight = 0.3

	// activity halves every week of inactivity
	activityHalfLifeHours = 7 * 24.0
)

// V2 folds behavioural signals (activity, messaging, dealbreakers) into V1.
type V2 struct {
	clock domain.Clock
}

// NewV2 builds a V2 scorer. A nil clock uses UTC wall time.
func NewV2(clock domain.Clock) V2 {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return V2{clock: clock}
}

func (V2) Version() string { return VersionV2 }

func (s V2) Score(_ context.Context, a, b *domain.Profile) (Result, error) {
	if a == nil || b == nil {
		return Result{}, ErrNilProfile
	}
	now := s.clock.Now()
	base := computeBase(a, b)

	activity := (activityScore(a.LastActiveAt, now) + activityScore(b.LastActiveAt, now)) / 2
	response := (responseRateScore(a) + responseRateScore(b)) / 2
	reciprocity := reciprocityScore(len(base.shared), (dealbreakerAlignment(a, b)+dealbreakerAlignment(b, a))/2, base.personality)

	advanced := activityWeight*activity + responseWeight*response + reciprocityWeight*reciprocity
	total := v2BaseWeight*base.fraction() + v2AdvancedWeight*advanced

	breakdown := base.breakdown()
	breakdown[KeyActivity] = round3(activity)
	breakdown[KeyResponseRate] = round3(response)
	breakdown[KeyReciprocity] = round3(reciprocity)

	return Result{
		Total:           round1(100 * clamp01(total)),
		Breakdown:       breakdown,
		SharedInterests: base.shared,
		Version:         VersionV2,
	}, nil
}

// activityScore decays exponentially with hours since last activity.
// Unknown activity is neutral.
func activityScore(lastActive *time.Time, now time.Time) float64 {
	if lastActive == nil || lastActive.IsZero() {
		return neutral
	}
	hours := math.Max(0, now.Sub(*lastActive).Hours())
	return math.Exp(-math.Ln2 * hours / activityHalfLifeHours)
}

// responseRateScore rewards a balanced sent/received ratio.
func responseRateScore(p *domain.Profile) float64 {
	sent, received := p.MessagesSent, p.MessagesReceived
	switch {
	case p.MatchesCount == 0:
		return 0.7
	case sent == 0 && received == 0:
		return 0.3
	case received == 0:
		return 0.5
	case sent == 0:
		return 0.2
	}

	var score float64
	ratio := float64(sent) / float64(received)
	switch {
	case ratio >= 0.7 && ratio <= 1.5:
		score = 1
	case ratio < 0.7:
		score = math.Max(0.2, ratio/0.7)
	default:
		score = math.Max(0.5, 1-(ratio-1.5)*0.2)
	}

	bonus := math.Min(float64(sent+received), 100) / 100 * 0.1
	return math.Min(1, score+bonus)
}

func reciprocityScore(shared int, dealbreaker, personality float64) float64 {
	interest := math.Min(1, float64(shared)/5)
	return clamp01(0.25*interest + 0.40*dealbreaker + 0.35*personality)
}

// dealbreakerAlignment checks b against a's hard preferences.
// Each failed check subtracts a fixed penalty; no applicable check is neutral-good.
func dealbreakerAlignment(a, b *domain.Profile) float64 {
	score := 1.0
	checks := 0
	prefs := a.Preferences

	if b.Age > 0 {
		minAge, maxAge := prefs.MinAge, prefs.MaxAge
		if minAge <= 0 {
			minAge = 18
		}
		if maxAge <= 0 {
			maxAge = 100
		}
		checks++
		if b.Age < minAge || b.Age > maxAge {
			score -= 0.3
		}
	}

	if prefs.MaxDistanceKm > 0 && a.HasLocation() && b.HasLocation() {
		checks++
		if haversineKm(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude) > prefs.MaxDistanceKm {
			score -= 0.2
		}
	}

	if prefs.Gender != "" && prefs.Gender != "any" && b.Gender != "" {
		checks++
		if prefs.Gender != b.Gender {
			score -= 0.4
		}
	}

	if checks == 0 {
		return 0.7
	}
	return clamp01(score)
}
