package dedup

import "fmt"

// Default policy values. They are policy decisions, not derived constants.
const (
	DefaultAutoMergeThreshold = 0.90
	DefaultReviewThreshold    = 0.70

	DefaultAreaTolerance  = 0.20
	DefaultPriceTolerance = 0.30

	DefaultGeoWeight      = 0.30
	DefaultFeatureWeight  = 0.25
	DefaultPriceWeight    = 0.20
	DefaultAreaWeight     = 0.15
	DefaultTypologyWeight = 0.10
)

// Weights are the contributions of each similarity dimension to the match probability.
type Weights struct {
	Geo      float64 `json:"geo" yaml:"geo"`
	Features float64 `json:"features" yaml:"features"`
	Price    float64 `json:"price" yaml:"price"`
	Area     float64 `json:"area" yaml:"area"`
	Typology float64 `json:"typology" yaml:"typology"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Geo + w.Features + w.Price + w.Area + w.Typology
}

// Thresholds classify a match probability into a merge decision.
type Thresholds struct {
	AutoMerge float64 `json:"auto_merge" yaml:"auto_merge"`
	Review    float64 `json:"review" yaml:"review"`
}

// Config holds the tunable parameters of the dedup engine.
type Config struct {
	Weights    Weights    `json:"weights" yaml:"weights"`
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`

	// AreaTolerance and PriceTolerance are the candidate pre-filter bands,
	// as fractions of the target's area and price.
	AreaTolerance  float64 `json:"area_tolerance" yaml:"area_tolerance"`
	PriceTolerance float64 `json:"price_tolerance" yaml:"price_tolerance"`
}

// DefaultConfig returns the standard dedup policy.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Geo:      DefaultGeoWeight,
			Features: DefaultFeatureWeight,
			Price:    DefaultPriceWeight,
			Area:     DefaultAreaWeight,
			Typology: DefaultTypologyWeight,
		},
		Thresholds: Thresholds{
			AutoMerge: DefaultAutoMergeThreshold,
			Review:    DefaultReviewThreshold,
		},
		AreaTolerance:  DefaultAreaTolerance,
		PriceTolerance: DefaultPriceTolerance,
	}
}

// Validate checks that the configuration can produce probabilities in [0,1].
func (c Config) Validate() error {
	if c.Weights.Geo < 0 || c.Weights.Features < 0 || c.Weights.Price < 0 ||
		c.Weights.Area < 0 || c.Weights.Typology < 0 {
		return fmt.Errorf("dedup weights must be non-negative")
	}
	if sum := c.Weights.Sum(); sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("dedup weights must sum to 1, got %.3f", sum)
	}
	if c.Thresholds.Review < 0 || c.Thresholds.AutoMerge > 1 || c.Thresholds.Review > c.Thresholds.AutoMerge {
		return fmt.Errorf("dedup thresholds must satisfy 0 <= review (%.2f) <= auto_merge (%.2f) <= 1",
			c.Thresholds.Review, c.Thresholds.AutoMerge)
	}
	if c.AreaTolerance < 0 || c.PriceTolerance < 0 {
		return fmt.Errorf("dedup tolerances must be non-negative")
	}
	return nil
}
