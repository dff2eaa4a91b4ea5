package ranking

import (
	"fmt"

	"propertyhub/server/internal/models"
)

// MaxReasons caps the explanation attached to a scored property.
const MaxReasons = 5

// Reason phrases. Their order in Reasons is fixed.
const (
	ReasonExcellentMatch   = "Excellent match for your criteria"
	ReasonGoodMatch        = "Good match for your criteria"
	ReasonPriceInRange     = "Price within your budget"
	ReasonUrgent           = "High opportunity urgency"
	ReasonNewOnMarket      = "New on the market"
	ReasonHighAvailability = "High availability probability"
	ReasonMultiPortal      = "Listed on multiple portals"
)

// LocationReason is the phrase naming where the property is.
func LocationReason(loc models.Location) string {
	return fmt.Sprintf("Located in %s, %s", loc.Parish, loc.Municipality)
}

// Reasons explains a score in up to five phrases, in priority order: compatibility tier,
// location, price in range, urgency, new on market, availability, multi-portal.
func (e *Engine) Reasons(property *models.CanonicalProperty, compatibility, temporal float64, criteria *models.SearchCriteria) []string {
	return reasons(property, compatibility, temporal, daysOnMarket(property, e.now()), criteria)
}

func reasons(property *models.CanonicalProperty, compatibility, temporal float64, days int, criteria *models.SearchCriteria) []string {
	out := make([]string, 0, MaxReasons)

	switch {
	case compatibility >= 80:
		out = append(out, ReasonExcellentMatch)
	case compatibility >= 60:
		out = append(out, ReasonGoodMatch)
	}

	if property.Location.Parish != "" && property.Location.Municipality != "" {
		out = append(out, LocationReason(property.Location))
	}

	if criteria != nil && criteria.PriceRange.IsSet() && criteria.PriceRange.Contains(property.PriceMain) {
		out = append(out, ReasonPriceInRange)
	}

	if temporal >= 80 {
		out = append(out, ReasonUrgent)
	}

	if days < 7 {
		out = append(out, ReasonNewOnMarket)
	}

	if property.AvailabilityProbability != nil && *property.AvailabilityProbability > 0.7 {
		out = append(out, ReasonHighAvailability)
	}

	if property.PortalCount > 3 {
		out = append(out, ReasonMultiPortal)
	}

	if len(out) > MaxReasons {
		out = out[:MaxReasons]
	}
	return out
}
