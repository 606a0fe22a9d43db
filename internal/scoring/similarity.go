package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/oggyb/muzz-matching/internal/domain"
)

const (
	maxNumericDistance = 10.0
	neutral            = 0.5
	interestFloor      = 0.3
	earthRadiusKm      = 6371.0
)

var breakdownCategories = []string{
	domain.CategoryCommunication,
	domain.CategoryValues,
	domain.CategoryLifestyle,
	domain.CategoryPersonality,
}

// answerSimilarity compares two answers to the same question.
// ok is false when the kinds differ or a value is missing.
func answerSimilarity(a, b domain.Answer) (sim float64, ok bool) {
	if a.Kind != b.Kind {
		return 0, false
	}
	switch a.Kind {
	case domain.AnswerNumeric:
		if a.Numeric == nil || b.Numeric == nil {
			return 0, false
		}
		d := math.Abs(float64(*a.Numeric - *b.Numeric))
		return math.Max(0, (maxNumericDistance-d)/maxNumericDistance), true
	case domain.AnswerBoolean:
		if a.Boolean == nil || b.Boolean == nil {
			return 0, false
		}
		if *a.Boolean == *b.Boolean {
			return 1, true
		}
		return 0, true
	case domain.AnswerMultipleChoice:
		return jaccard(a.Choices, b.Choices), true
	case domain.AnswerText:
		if a.Text == "" || b.Text == "" {
			return 0, false
		}
		if strings.EqualFold(strings.TrimSpace(a.Text), strings.TrimSpace(b.Text)) {
			return 1, true
		}
		return neutral, true
	}
	return 0, false
}

// personalityScore averages answer similarity over shared question ids and
// per category. Missing data yields the neutral 0.5.
func personalityScore(a, b []domain.Answer) (overall float64, categories map[string]float64) {
	byID := make(map[string]domain.Answer, len(b))
	for _, ans := range b {
		byID[ans.QuestionID] = ans
	}

	common := make([]string, 0, len(a))
	mine := make(map[string]domain.Answer, len(a))
	for _, ans := range a {
		if _, ok := byID[ans.QuestionID]; ok {
			if _, dup := mine[ans.QuestionID]; !dup {
				common = append(common, ans.QuestionID)
			}
			mine[ans.QuestionID] = ans
		}
	}
	// fixed summation order keeps Score(a,b) bit-identical to Score(b,a)
	sort.Strings(common)

	var total float64
	var n int
	catSum := make(map[string]float64)
	catN := make(map[string]int)
	for _, id := range common {
		x, y := mine[id], byID[id]
		sim, ok := answerSimilarity(x, y)
		if !ok {
			continue
		}
		total += sim
		n++
		if x.Category != "" && x.Category == y.Category {
			catSum[x.Category] += sim
			catN[x.Category]++
		}
	}

	categories = make(map[string]float64, len(breakdownCategories))
	for _, c := range breakdownCategories {
		if catN[c] > 0 {
			categories[c] = catSum[c] / float64(catN[c])
		} else {
			categories[c] = neutral
		}
	}
	if n == 0 {
		return neutral, categories
	}
	return total / float64(n), categories
}

func lowerSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, s := range items {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

// jaccard is |A∩B| / |A∪B| over case-folded sets; two empty sets give 0.
func jaccard(a, b []string) float64 {
	sa, sb := lowerSet(a), lowerSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	inter := 0
	for k := range sa {
		if _, ok := sb[k]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// sharedInterests returns the sorted, lower-cased intersection.
func sharedInterests(a, b []string) []string {
	sa, sb := lowerSet(a), lowerSet(b)
	out := make([]string, 0)
	for k := range sa {
		if _, ok := sb[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// interestScore lifts Jaccard onto [0.3, 1] so no overlap is not a hard zero.
func interestScore(a, b []string) float64 {
	return interestFloor + (1-interestFloor)*jaccard(a, b)
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
