package ranking

import (
	"math"
	"strings"
	"time"

	"propertyhub/server/internal/models"
	"propertyhub/server/internal/scoring"
)

// unknownDaysOnMarket stands in for a missing first_seen: the listing is treated as very old.
const unknownDaysOnMarket = 999

var freshnessCurve = scoring.StepCurve{
	Steps: []scoring.Step{{Limit: 7, Score: 30}, {Limit: 30, Score: 20}, {Limit: 90, Score: 10}},
	Else:  -10,
}

// Engine computes compatibility, temporal and final scores. It keeps no state between
// calls apart from its configuration and clock, and is safe for concurrent use.
type Engine struct {
	weights Weights
	now     func() time.Time
}

// NewEngine returns a ranking engine using time.Now for days-on-market.
func NewEngine(weights Weights) *Engine {
	return &Engine{weights: weights, now: time.Now}
}

// WithClock returns a copy of the engine that measures time with now().
func (e *Engine) WithClock(now func() time.Time) *Engine {
	c := *e
	c.now = now
	return &c
}

// Weights returns the engine's blend.
func (e *Engine) Weights() Weights {
	return e.weights
}

// CompatibilityScore rates how well the property fits the explicit criteria, on 0–100.
// Dimensions without criteria earn half of their points.
func (e *Engine) CompatibilityScore(property *models.CanonicalProperty, criteria *models.SearchCriteria) float64 {
	if criteria == nil {
		criteria = &models.SearchCriteria{}
	}
	raw := locationPoints(property, criteria.Location) +
		pricePoints(property.PriceMain, criteria.PriceRange) +
		typePoints(property.Typology, criteria.Typologies) +
		characteristicsPoints(property, criteria)
	return scoring.Clamp(raw/maxCompatibilityPoints*100, 0, 100)
}

func locationPoints(property *models.CanonicalProperty, filter models.LocationFilter) float64 {
	pairs := [][2]string{
		{filter.District, property.Location.District},
		{filter.Municipality, property.Location.Municipality},
		{filter.Parish, property.Location.Parish},
	}

	specified, matched := 0, 0
	for _, pair := range pairs {
		if pair[0] == "" {
			continue
		}
		specified++
		if strings.EqualFold(pair[0], pair[1]) {
			matched++
		}
	}
	if specified == 0 {
		return MaxLocationPoints / 2
	}
	return float64(matched) / float64(specified) * MaxLocationPoints
}

func pricePoints(price float64, r models.Range) float64 {
	if !r.IsSet() {
		return MaxPricePoints / 2
	}

	if r.Min != nil && price < *r.Min {
		return MaxPricePoints * 0.7
	}

	if r.Max != nil && price > *r.Max {
		max := *r.Max
		if max <= 0 {
			return 0
		}
		excess := price - max
		return math.Max(0, 0.6-excess/(0.2*max)*0.6) * MaxPricePoints
	}

	// Inside the range. Open-ended ranges have no midpoint to decay from.
	if r.Min == nil || r.Max == nil {
		return MaxPricePoints
	}
	halfWidth := (*r.Max - *r.Min) / 2
	if halfWidth <= 0 {
		return MaxPricePoints
	}
	mid := (*r.Min + *r.Max) / 2
	return MaxPricePoints * (1 - 0.2*math.Abs(price-mid)/halfWidth)
}

func typePoints(typology string, wanted []string) float64 {
	if len(wanted) == 0 {
		return MaxTypePoints / 2
	}
	for _, t := range wanted {
		if strings.EqualFold(t, typology) {
			return MaxTypePoints
		}
	}
	return 0
}

func characteristicsPoints(property *models.CanonicalProperty, criteria *models.SearchCriteria) float64 {
	var total float64
	specified := 0

	if criteria.MinBedrooms != nil {
		specified++
		if missing := *criteria.MinBedrooms - property.Bedrooms; missing > 0 {
			total += math.Max(0, 1-0.2*float64(missing))
		} else {
			total++
		}
	}

	if criteria.AreaRange.Min != nil {
		specified++
		if property.Area >= *criteria.AreaRange.Min {
			total++
		} else {
			total += 0.5
		}
	}

	if specified == 0 {
		return MaxCharacteristicsPoints / 2
	}
	return total / float64(specified) * MaxCharacteristicsPoints
}

// DaysOnMarket returns the whole days since the property was first seen,
// or 999 when first_seen is unknown.
func (e *Engine) DaysOnMarket(property *models.CanonicalProperty) int {
	return daysOnMarket(property, e.now())
}

func daysOnMarket(property *models.CanonicalProperty, now time.Time) int {
	if property.FirstSeen.IsZero() {
		return unknownDaysOnMarket
	}
	days := int(now.Sub(property.FirstSeen).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// TemporalScore is the freshness and urgency signal of a property, on 0–100.
func (e *Engine) TemporalScore(property *models.CanonicalProperty) float64 {
	return temporalScore(property, daysOnMarket(property, e.now()))
}

func temporalScore(property *models.CanonicalProperty, days int) float64 {
	score := 50 + freshnessCurve.Score(float64(days))

	if property.AvailabilityProbability != nil {
		score += *property.AvailabilityProbability * 30
	} else {
		score += 15
	}

	if property.PortalCount > 3 {
		score += 10
	}
	return scoring.Clamp(score, 0, 100)
}

// FinalScore blends the three component scores with the engine's weights.
func (e *Engine) FinalScore(compatibility, behavior, temporal float64) float64 {
	w := e.weights
	return w.Compatibility*compatibility + w.Behavior*behavior + w.Temporal*temporal
}
