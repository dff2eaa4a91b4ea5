package ranking

import (
	"sort"

	"propertyhub/server/internal/models"
)

// BehaviorSignals supplies externally computed engagement scores (0–100) per property id.
type BehaviorSignals interface {
	BehaviorScore(propertyID string) (float64, bool)
}

// BehaviorMap is a BehaviorSignals backed by a map.
type BehaviorMap map[string]float64

// BehaviorScore implements BehaviorSignals.
func (m BehaviorMap) BehaviorScore(propertyID string) (float64, bool) {
	score, ok := m[propertyID]
	return score, ok
}

// Score computes every component of one property's score. Rank is left at zero.
func (e *Engine) Score(property *models.CanonicalProperty, criteria *models.SearchCriteria, behavior BehaviorSignals) models.ScoredProperty {
	return e.score(property, criteria, behavior, daysOnMarket(property, e.now()))
}

func (e *Engine) score(property *models.CanonicalProperty, criteria *models.SearchCriteria, behavior BehaviorSignals, days int) models.ScoredProperty {
	compatibility := e.CompatibilityScore(property, criteria)
	temporal := temporalScore(property, days)

	behaviorScore := e.weights.NeutralBehavior
	if behavior != nil {
		if s, ok := behavior.BehaviorScore(property.ID); ok {
			behaviorScore = s
		}
	}

	return models.ScoredProperty{
		Property:           *property,
		CompatibilityScore: compatibility,
		BehaviorScore:      behaviorScore,
		TemporalScore:      temporal,
		FinalScore:         e.FinalScore(compatibility, behaviorScore, temporal),
		Reasons:            reasons(property, compatibility, temporal, days, criteria),
	}
}

// ScoreAndRank scores every property and orders them by final score, highest first.
// Ties keep their input order. Ranks run 1..n without gaps. The clock is read once so
// every property is measured against the same instant.
func (e *Engine) ScoreAndRank(properties []models.CanonicalProperty, criteria *models.SearchCriteria, behavior BehaviorSignals) []models.ScoredProperty {
	now := e.now()
	scored := make([]models.ScoredProperty, len(properties))
	for i := range properties {
		scored[i] = e.score(&properties[i], criteria, behavior, daysOnMarket(&properties[i], now))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FinalScore > scored[j].FinalScore
	})
	assignRanks(scored)
	return scored
}

// FilterMinScore drops results below min and renumbers the remaining ranks.
func FilterMinScore(scored []models.ScoredProperty, min float64) []models.ScoredProperty {
	kept := make([]models.ScoredProperty, 0, len(scored))
	for _, s := range scored {
		if s.FinalScore >= min {
			kept = append(kept, s)
		}
	}
	assignRanks(kept)
	return kept
}

func assignRanks(scored []models.ScoredProperty) {
	for i := range scored {
		scored[i].Rank = i + 1
	}
}

// Snapshot stores each result's final score on its property as the opportunity score
// of the given mode. It reports false, changing nothing, for an unknown mode.
func Snapshot(scored []models.ScoredProperty, mode models.SearchMode) bool {
	if !mode.Valid() {
		return false
	}
	for i := range scored {
		switch mode {
		case models.SearchModeAcquisition:
			scored[i].Property.AngariaScore = scored[i].FinalScore
		case models.SearchModeSale:
			scored[i].Property.VendaScore = scored[i].FinalScore
		}
	}
	return true
}
