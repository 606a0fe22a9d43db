package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/muzz-matching/internal/domain"
)

func num(q string, cat string, n int) domain.Answer {
	return domain.Answer{QuestionID: q, Category: cat, Kind: domain.AnswerNumeric, Numeric: &n}
}

func boolean(q string, v bool) domain.Answer {
	return domain.Answer{QuestionID: q, Kind: domain.AnswerBoolean, Boolean: &v}
}

func TestAnswerSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b domain.Answer
		want float64
		ok   bool
	}{
		{"numeric equal", num("q", "", 7), num("q", "", 7), 1, true},
		{"numeric distance 3", num("q", "", 2), num("q", "", 5), 0.7, true},
		{"numeric far", num("q", "", 1), num("q", "", 10), 0.1, true},
		{"boolean same", boolean("q", true), boolean("q", true), 1, true},
		{"boolean differ", boolean("q", true), boolean("q", false), 0, true},
		{
			"multiple choice jaccard",
			domain.Answer{Kind: domain.AnswerMultipleChoice, Choices: []string{"a", "b"}},
			domain.Answer{Kind: domain.AnswerMultipleChoice, Choices: []string{"B", "c"}},
			1.0 / 3, true,
		},
		{
			"text case-insensitive",
			domain.Answer{Kind: domain.AnswerText, Text: "Tea"},
			domain.Answer{Kind: domain.AnswerText, Text: " tea"},
			1, true,
		},
		{
			"text differs",
			domain.Answer{Kind: domain.AnswerText, Text: "tea"},
			domain.Answer{Kind: domain.AnswerText, Text: "coffee"},
			0.5, true,
		},
		{"kind mismatch", num("q", "", 3), boolean("q", true), 0, false},
		{"numeric missing", domain.Answer{Kind: domain.AnswerNumeric}, num("q", "", 3), 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := answerSimilarity(tc.a, tc.b)
			assert.Equal(t, tc.ok, ok)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestPersonalityScoreCategoriesAndDefaults(t *testing.T) {
	a := []domain.Answer{num("q1", domain.CategoryValues, 5), num("q2", domain.CategoryLifestyle, 1), num("q9", "", 3)}
	b := []domain.Answer{num("q1", domain.CategoryValues, 5), num("q2", domain.CategoryLifestyle, 6)}

	overall, cats := personalityScore(a, b)
	assert.InDelta(t, 0.75, overall, 1e-9) // (1.0 + 0.5) / 2
	assert.InDelta(t, 1.0, cats[domain.CategoryValues], 1e-9)
	assert.InDelta(t, 0.5, cats[domain.CategoryLifestyle], 1e-9)
	assert.InDelta(t, neutral, cats[domain.CategoryCommunication], 1e-9)

	overall, cats = personalityScore(nil, b)
	assert.Equal(t, neutral, overall)
	assert.Len(t, cats, 4)
}

func TestInterests(t *testing.T) {
	assert.Equal(t, []string{"hiking", "music"}, sharedInterests([]string{"Music", "hiking", "art"}, []string{"music", "HIKING"}))
	assert.Empty(t, sharedInterests(nil, []string{"x"}))

	assert.InDelta(t, interestFloor, interestScore([]string{"a"}, []string{"b"}), 1e-9)
	assert.InDelta(t, 1.0, interestScore([]string{"a"}, []string{"A"}), 1e-9)
}

func TestActivityDecay(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { ts := now.Add(-d); return &ts }

	assert.Equal(t, neutral, activityScore(nil, now))
	assert.InDelta(t, 1.0, activityScore(at(0), now), 1e-9)
	assert.Greater(t, activityScore(at(24*time.Hour), now), 0.9)
	assert.InDelta(t, 0.5, activityScore(at(7*24*time.Hour), now), 1e-9)
	assert.Less(t, activityScore(at(30*24*time.Hour), now), 0.06)
	// clock skew never boosts above 1
	assert.InDelta(t, 1.0, activityScore(at(-time.Hour), now), 1e-9)
}

func TestResponseRateScore(t *testing.T) {
	cases := []struct {
		name                    string
		sent, received, matches int
		want                    float64
	}{
		{"no matches", 0, 0, 0, 0.7},
		{"no messages", 0, 0, 2, 0.3},
		{"never answered", 10, 0, 2, 0.5},
		{"never replies", 0, 10, 2, 0.2},
		{"balanced", 10, 10, 2, 1.0},
		{"unresponsive", 3, 10, 2, 3.0/10/0.7 + 0.013},
		{"over-eager", 30, 10, 2, 0.7 + 0.04},
		{"busy bonus capped", 100, 100, 2, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &domain.Profile{MessagesSent: tc.sent, MessagesReceived: tc.received, MatchesCount: tc.matches}
			assert.InDelta(t, tc.want, responseRateScore(p), 1e-9)
		})
	}
}

func TestDealbreakerAlignment(t *testing.T) {
	lat1, lon1 := 51.5074, -0.1278 // London
	lat2, lon2 := 48.8566, 2.3522  // Paris

	a := &domain.Profile{
		Latitude: &lat1, Longitude: &lon1,
		Preferences: domain.Preferences{MinAge: 25, MaxAge: 35, Gender: "female", MaxDistanceKm: 50},
	}
	near := &domain.Profile{Age: 30, Gender: "female", Latitude: &lat1, Longitude: &lon1}
	far := &domain.Profile{Age: 40, Gender: "male", Latitude: &lat2, Longitude: &lon2}

	assert.InDelta(t, 1.0, dealbreakerAlignment(a, near), 1e-9)
	assert.InDelta(t, 0.1, dealbreakerAlignment(a, far), 1e-9) // 1 - 0.3 - 0.2 - 0.4

	// nothing to check
	assert.InDelta(t, 0.7, dealbreakerAlignment(&domain.Profile{}, &domain.Profile{}), 1e-9)

	// "any" gender never penalizes, unset ages fall back to 18..100
	open := &domain.Profile{Preferences: domain.Preferences{Gender: "any"}}
	assert.InDelta(t, 1.0, dealbreakerAlignment(open, far), 1e-9)
}

func TestHaversine(t *testing.T) {
	d := haversineKm(51.5074, -0.1278, 48.8566, 2.3522)
	assert.InDelta(t, 343.5, d, 1.5)
	assert.Equal(t, 0.0, haversineKm(10, 10, 10, 10))
}
