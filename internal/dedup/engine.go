// Package dedup decides which canonical properties describe the same physical property
// and merges them. Every function is pure over its inputs and safe for concurrent use.
//
// Inputs are assumed well-formed: coordinates, areas and prices are validated by the
// ingestion layer, not here.
package dedup

import (
	"math"
	"time"

	"propertyhub/server/internal/geometry"
	"propertyhub/server/internal/models"
	"propertyhub/server/internal/scoring"
)

// Decision is the outcome of classifying a match probability.
type Decision string

const (
	DecisionAuto   Decision = "auto"
	DecisionReview Decision = "review"
	DecisionNone   Decision = "no"
)

func (d Decision) String() string {
	return string(d)
}

var (
	// distance in km, strict bands
	distanceCurve = scoring.StepCurve{
		Steps: []scoring.Step{{Limit: 0.05, Score: 100}, {Limit: 0.10, Score: 80}, {Limit: 0.20, Score: 50}},
	}
	// percent difference vs average, inclusive bands
	priceCurve = scoring.StepCurve{
		Inclusive: true,
		Steps:     []scoring.Step{{Limit: 5, Score: 100}, {Limit: 10, Score: 70}, {Limit: 20, Score: 40}},
	}
	areaCurve = scoring.StepCurve{
		Inclusive: true,
		Steps:     []scoring.Step{{Limit: 5, Score: 100}, {Limit: 10, Score: 80}, {Limit: 20, Score: 50}},
	}
)

// Engine is the stateless dedup engine. The zero value is not usable; call NewEngine.
type Engine struct {
	cfg Config
	now func() time.Time
}

// NewEngine returns an engine with the given policy. Merge timestamps come from time.Now.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of the engine that stamps merges with now().
func (e *Engine) WithClock(now func() time.Time) *Engine {
	c := *e
	c.now = now
	return &c
}

// Config returns the engine's policy.
func (e *Engine) Config() Config {
	return e.cfg
}

// IsCandidate applies the cheap pre-filters: same municipality and typology, area within
// AreaTolerance of the target's area and price within PriceTolerance of the target's price.
func (e *Engine) IsCandidate(target, other *models.CanonicalProperty) bool {
	if other.Location.Municipality != target.Location.Municipality {
		return false
	}
	if other.Typology != target.Typology {
		return false
	}
	if math.Abs(other.Area-target.Area) > e.cfg.AreaTolerance*target.Area {
		return false
	}
	if math.Abs(other.PriceMain-target.PriceMain) > e.cfg.PriceTolerance*target.PriceMain {
		return false
	}
	return true
}

// FindCandidates scans the pool for likely duplicates of target, skipping target itself.
// The result has no ordering guarantee beyond following the pool.
func (e *Engine) FindCandidates(target *models.CanonicalProperty, pool []models.CanonicalProperty) []models.CanonicalProperty {
	var candidates []models.CanonicalProperty
	for i := range pool {
		if pool[i].ID == target.ID {
			continue
		}
		if e.IsCandidate(target, &pool[i]) {
			candidates = append(candidates, pool[i])
		}
	}
	return candidates
}

// Breakdown is the per-dimension similarity of two properties, each on 0–100.
type Breakdown struct {
	DistanceKm  float64 `json:"distance_km"`
	Geo         float64 `json:"geo"`
	Features    float64 `json:"features"`
	Price       float64 `json:"price"`
	Area        float64 `json:"area"`
	Typology    float64 `json:"typology"`
	Probability float64 `json:"probability"`
}

// MatchBreakdown scores every similarity dimension and combines them into a probability.
func (e *Engine) MatchBreakdown(a, b *models.CanonicalProperty) Breakdown {
	var bd Breakdown

	bd.DistanceKm = geometry.DistanceKm(a.Location, b.Location)
	bd.Geo = distanceCurve.Score(bd.DistanceKm)

	bd.Features = scoring.Jaccard(a.FeatureTypes(), b.FeatureTypes()) * 100

	if diff, ok := scoring.PercentDiff(a.PriceMain, b.PriceMain); ok {
		bd.Price = priceCurve.Score(diff)
	}
	if diff, ok := scoring.PercentDiff(a.Area, b.Area); ok {
		bd.Area = areaCurve.Score(diff)
	}

	if a.Typology == b.Typology {
		bd.Typology = 100
	}

	w := e.cfg.Weights
	sum := bd.Geo*w.Geo + bd.Features*w.Features + bd.Price*w.Price + bd.Area*w.Area + bd.Typology*w.Typology
	bd.Probability = scoring.Clamp(sum/100, 0, 1)
	return bd
}

// MatchProbability returns the likelihood in [0,1] that a and b are the same property.
func (e *Engine) MatchProbability(a, b *models.CanonicalProperty) float64 {
	return e.MatchBreakdown(a, b).Probability
}

// ShouldMerge classifies a probability against the configured thresholds.
func (e *Engine) ShouldMerge(probability float64) Decision {
	switch {
	case probability >= e.cfg.Thresholds.AutoMerge:
		return DecisionAuto
	case probability >= e.cfg.Thresholds.Review:
		return DecisionReview
	default:
		return DecisionNone
	}
}

// Match is a scored candidate pair.
type Match struct {
	Candidate   models.CanonicalProperty `json:"candidate"`
	Probability float64                  `json:"probability"`
	Decision    Decision                 `json:"decision"`
}

// BestMatch returns the candidate of target with the highest match probability.
// Ties go to the candidate appearing first in the pool. ok is false when there is no candidate.
func (e *Engine) BestMatch(target *models.CanonicalProperty, pool []models.CanonicalProperty) (Match, bool) {
	var best Match
	found := false
	for _, c := range e.FindCandidates(target, pool) {
		p := e.MatchProbability(target, &c)
		if !found || p > best.Probability {
			best = Match{Candidate: c, Probability: p}
			found = true
		}
	}
	if found {
		best.Decision = e.ShouldMerge(best.Probability)
	}
	return best, found
}
