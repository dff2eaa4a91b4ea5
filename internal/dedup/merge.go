package dedup

import (
	"math"
	"time"

	"propertyhub/server/internal/models"
)

// Merge combines two canonical records of the same physical property.
//
//   - the id of the record seen first survives; equal first_seen keeps the lexically smaller id
//   - sources and events are concatenated (no dedup by source identity), events re-sorted newest-first
//   - portal counts are summed
//   - price_main is the unweighted mean of both price_main values, not a source-count weighted
//     mean; repeated merges therefore drift from the true mean across all sources
//   - price_min/price_max widen to cover both ranges and the divergence is recomputed
//   - features are the union of both sets; on a type collision the survivor's value wins
//   - first_seen is the earlier and last_seen the later observation
//
// Location, physical characteristics and snapshot scores come from the surviving record,
// so every field except the order of sources and events is the same for Merge(a, b) and
// Merge(b, a). Neither input is modified.
func (e *Engine) Merge(a, b *models.CanonicalProperty) models.CanonicalProperty {
	survivor, other := a, b
	if survives(b, a) {
		survivor, other = b, a
	}

	merged := *survivor
	merged.Features = unionFeatures(survivor.Features, other.Features)

	merged.Sources = make([]models.Source, 0, len(a.Sources)+len(b.Sources))
	merged.Sources = append(merged.Sources, a.Sources...)
	merged.Sources = append(merged.Sources, b.Sources...)
	merged.PortalCount = a.PortalCount + b.PortalCount

	merged.PriceMain = (a.PriceMain + b.PriceMain) / 2
	merged.PriceMin = math.Min(a.PriceMin, b.PriceMin)
	merged.PriceMax = math.Max(a.PriceMax, b.PriceMax)
	merged.PriceDivergencePct = models.PriceDivergence(merged.PriceMin, merged.PriceMax)

	merged.FirstSeen = minTime(a.FirstSeen, b.FirstSeen)
	merged.LastSeen = maxTime(a.LastSeen, b.LastSeen)
	merged.CreatedAt = minTime(a.CreatedAt, b.CreatedAt)

	merged.Events = make([]models.MarketEvent, 0, len(a.Events)+len(b.Events))
	merged.Events = append(merged.Events, a.Events...)
	merged.Events = append(merged.Events, b.Events...)
	models.SortEventsNewestFirst(merged.Events)

	if merged.AvailabilityProbability != nil {
		p := *merged.AvailabilityProbability
		merged.AvailabilityProbability = &p
	} else if other.AvailabilityProbability != nil {
		p := *other.AvailabilityProbability
		merged.AvailabilityProbability = &p
	}

	merged.UpdatedAt = e.now()
	return merged
}

// survives reports whether x keeps its id when merged with y.
func survives(x, y *models.CanonicalProperty) bool {
	if earlier(x.FirstSeen, y.FirstSeen) {
		return true
	}
	if earlier(y.FirstSeen, x.FirstSeen) {
		return false
	}
	return x.ID < y.ID
}

// unionFeatures keeps every feature of a, then the features of b whose type a lacks.
func unionFeatures(a, b []models.Feature) []models.Feature {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]models.Feature, 0, len(a)+len(b))
	for _, list := range [][]models.Feature{a, b} {
		for _, f := range list {
			if _, ok := seen[f.Type]; ok {
				continue
			}
			seen[f.Type] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// earlier reports whether x is strictly before y. An unknown (zero) time is never earlier.
func earlier(x, y time.Time) bool {
	if x.IsZero() {
		return false
	}
	if y.IsZero() {
		return true
	}
	return x.Before(y)
}

func minTime(x, y time.Time) time.Time {
	if earlier(y, x) {
		return y
	}
	return x
}

func maxTime(x, y time.Time) time.Time {
	if y.After(x) {
		return y
	}
	return x
}
