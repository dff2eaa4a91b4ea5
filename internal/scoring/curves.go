// Package scoring holds the small numeric helpers shared by the dedup and ranking engines:
// percentage differences, step curves and set similarity.
package scoring

import "math"

// Step maps a measured value onto a score: the first tier whose limit the value satisfies wins.
type Step struct {
	Limit float64
	Score float64
}

// StepCurve is an ordered list of tiers, tightest limit first.
type StepCurve struct {
	// Inclusive selects <= comparisons; otherwise tiers use <.
	Inclusive bool
	Steps     []Step
	// Else is the score when no tier matches.
	Else float64
}

// Score returns the score of v on the curve.
func (c StepCurve) Score(v float64) float64 {
	for _, s := range c.Steps {
		if c.Inclusive && v <= s.Limit {
			return s.Score
		}
		if !c.Inclusive && v < s.Limit {
			return s.Score
		}
	}
	return c.Else
}

// PercentDiff returns |a-b| relative to their average, in percent.
// The second return value is false when the average is zero, in which case
// the difference is undefined and callers fall back to a neutral score.
func PercentDiff(a, b float64) (float64, bool) {
	avg := (a + b) / 2
	if avg == 0 {
		return 0, false
	}
	return math.Abs(a-b) / math.Abs(avg) * 100, true
}

// Jaccard returns |A∩B| / |A∪B|. Two empty sets are identical and score 1.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
