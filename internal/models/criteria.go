package models

import "strings"

// SearchMode selects which opportunity snapshot a search refreshes.
type SearchMode string

const (
	// SearchModeAcquisition ranks properties for the listing-acquisition workflow (angariação).
	SearchModeAcquisition SearchMode = "angariacao"
	// SearchModeSale ranks properties for buyers (venda).
	SearchModeSale SearchMode = "venda"
)

func (m SearchMode) String() string {
	return string(m)
}

// Valid reports whether m is a known search mode.
func (m SearchMode) Valid() bool {
	return m == SearchModeAcquisition || m == SearchModeSale
}

// LocationFilter restricts a search to an administrative area. Empty fields are unset.
type LocationFilter struct {
	District     string `json:"district"`
	Municipality string `json:"municipality"`
	Parish       string `json:"parish"`
}

// IsEmpty reports whether no location field is specified.
func (l LocationFilter) IsEmpty() bool {
	return l.District == "" && l.Municipality == "" && l.Parish == ""
}

// Range is an optional numeric interval. Nil bounds are open.
type Range struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// IsSet reports whether at least one bound is present.
func (r Range) IsSet() bool {
	return r.Min != nil || r.Max != nil
}

// Contains reports whether v lies within the bounds that are set.
func (r Range) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// SearchCriteria is what a searcher asked for.
type SearchCriteria struct {
	Mode            SearchMode     `json:"mode"`
	Location        LocationFilter `json:"location"`
	Typologies      []string       `json:"typologies"`
	AreaRange       Range          `json:"area_range"`
	PriceRange      Range          `json:"price_range"`
	MinBedrooms     *int           `json:"min_bedrooms"`
	MinBathrooms    *int           `json:"min_bathrooms"`
	MinScore        *float64       `json:"min_score"`
	Features        []string       `json:"features"`
	MinAvailability *float64       `json:"min_availability"`
	Sources         []string       `json:"sources"`
}

// Matches applies the hard filters of the criteria. Location, typology, price, area and
// bedrooms are scored by the ranking engine rather than filtered here.
func (c *SearchCriteria) Matches(property *CanonicalProperty) bool {
	if c == nil {
		return true // No criteria means allow all
	}

	if c.MinBathrooms != nil && property.Bathrooms < *c.MinBathrooms {
		return false
	}

	for _, feature := range c.Features {
		if !property.HasFeature(feature) {
			return false
		}
	}

	if c.MinAvailability != nil {
		if property.AvailabilityProbability == nil {
			return false // Filter requires availability but property has none
		}
		if *property.AvailabilityProbability < *c.MinAvailability {
			return false
		}
	}

	if len(c.Sources) > 0 {
		allowed := false
		for _, source := range property.Sources {
			for _, name := range c.Sources {
				if strings.EqualFold(source.Name, name) {
					allowed = true
					break
				}
			}
			if allowed {
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}
