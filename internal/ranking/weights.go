// Package ranking scores canonical properties against a search and orders them by relevance.
package ranking

import "fmt"

// Maximum points of each compatibility dimension. Their sum is the compatibility scale.
const (
	MaxLocationPoints        = 30.0
	MaxPricePoints           = 30.0
	MaxTypePoints            = 20.0
	MaxCharacteristicsPoints = 20.0

	maxCompatibilityPoints = MaxLocationPoints + MaxPricePoints + MaxTypePoints + MaxCharacteristicsPoints
)

// Default blend of the final score.
const (
	DefaultCompatibilityWeight = 0.40
	DefaultBehaviorWeight      = 0.30
	DefaultTemporalWeight      = 0.30

	// DefaultBehaviorScore is used when no behavior signal exists for a property.
	DefaultBehaviorScore = 50.0
)

// Weights controls how the component scores combine into the final score.
type Weights struct {
	Compatibility float64 `json:"compatibility" yaml:"compatibility"`
	Behavior      float64 `json:"behavior" yaml:"behavior"`
	Temporal      float64 `json:"temporal" yaml:"temporal"`

	// NeutralBehavior is the behavior score assumed without a signal.
	NeutralBehavior float64 `json:"neutral_behavior" yaml:"neutral_behavior"`
}

// DefaultWeights returns the standard blend:
// final = 0.4 * compatibility + 0.3 * behavior + 0.3 * temporal
func DefaultWeights() Weights {
	return Weights{
		Compatibility:   DefaultCompatibilityWeight,
		Behavior:        DefaultBehaviorWeight,
		Temporal:        DefaultTemporalWeight,
		NeutralBehavior: DefaultBehaviorScore,
	}
}

// Validate checks that the final score stays within 0–100.
func (w Weights) Validate() error {
	if w.Compatibility < 0 || w.Behavior < 0 || w.Temporal < 0 {
		return fmt.Errorf("ranking weights must be non-negative")
	}
	if sum := w.Compatibility + w.Behavior + w.Temporal; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("ranking weights must sum to 1, got %.3f", sum)
	}
	if w.NeutralBehavior < 0 || w.NeutralBehavior > 100 {
		return fmt.Errorf("neutral behavior score must be within 0-100, got %.2f", w.NeutralBehavior)
	}
	return nil
}
