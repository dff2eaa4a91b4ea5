package models

import "time"

// Location is the geographic position and administrative hierarchy of a property.
type Location struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	District     string  `json:"district"`
	Municipality string  `json:"municipality"`
	Parish       string  `json:"parish"`
}

// Feature is a named boolean or valued characteristic (e.g. "garage", "energy_label=A").
type Feature struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// Source records one portal's observation of a canonical property.
type Source struct {
	Type      SourceType `json:"source_type"`
	Name      string     `json:"source_name"`
	ListingID string     `json:"source_listing_id,omitempty"`
	LastSeen  time.Time  `json:"last_seen"`
	URL       string     `json:"url,omitempty"`
	Price     *float64   `json:"price,omitempty"`
}

// Is reports whether the source is the given portal listing. Sources stored without a
// listing id match on the portal name alone.
func (s *Source) Is(name, listingID string) bool {
	if s.Name != name {
		return false
	}
	return s.ListingID == "" || s.ListingID == listingID
}

// CanonicalProperty is the deduplicated record of one physical property across portals.
//
// Invariants kept by the dedup engine:
//   - FirstSeen <= LastSeen
//   - PriceMin <= PriceMain <= PriceMax
//   - PortalCount == len(Sources)
//
// Coordinates and areas are not validated here; the ingestion layer rejects
// out-of-range latitude/longitude and negative areas before they reach this type.
type CanonicalProperty struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	Location Location `json:"location"`

	Typology  string    `json:"typology"`
	Area      float64   `json:"area"`
	Bedrooms  int       `json:"bedrooms"`
	Bathrooms int       `json:"bathrooms"`
	Features  []Feature `json:"features"`

	PriceMain          float64 `json:"price_main"`
	PriceMin           float64 `json:"price_min"`
	PriceMax           float64 `json:"price_max"`
	PriceDivergencePct float64 `json:"price_divergence_pct"`

	Sources     []Source `json:"sources"`
	PortalCount int      `json:"portal_count"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// Events is kept sorted newest-first.
	Events []MarketEvent `json:"events"`

	AngariaScore            float64  `json:"angaria_score"`
	VendaScore              float64  `json:"venda_score"`
	AvailabilityProbability *float64 `json:"availability_probability,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FeatureTypes returns the set of feature types present on the property.
func (p *CanonicalProperty) FeatureTypes() map[string]struct{} {
	types := make(map[string]struct{}, len(p.Features))
	for _, f := range p.Features {
		types[f.Type] = struct{}{}
	}
	return types
}

// HasFeature reports whether the property carries a feature of the given type.
func (p *CanonicalProperty) HasFeature(featureType string) bool {
	for _, f := range p.Features {
		if f.Type == featureType {
			return true
		}
	}
	return false
}

// PriceDivergence returns (max-min)/min*100, or 0 when min is 0.
func PriceDivergence(min, max float64) float64 {
	if min == 0 {
		return 0
	}
	return (max - min) / min * 100
}

// ScoredProperty wraps a canonical property with the scores of one search request.
type ScoredProperty struct {
	Property           CanonicalProperty `json:"property"`
	CompatibilityScore float64           `json:"compatibility_score"`
	BehaviorScore      float64           `json:"behavior_score"`
	TemporalScore      float64           `json:"temporal_score"`
	FinalScore         float64           `json:"final_score"`
	Reasons            []string          `json:"reasons"`
	Rank               int               `json:"rank"`
}

// ReviewStatus is the state of a merge awaiting human confirmation.
type ReviewStatus string

const (
	ReviewStatusPending   ReviewStatus = "pending"
	ReviewStatusConfirmed ReviewStatus = "confirmed"
	ReviewStatusRejected  ReviewStatus = "rejected"
)

// MergeReview records a pair of properties whose match probability fell in the review band.
type MergeReview struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenant_id"`
	CandidateID string       `json:"candidate_id"`
	IncomingID  string       `json:"incoming_id"`
	Probability float64      `json:"probability"`
	Status      ReviewStatus `json:"status"`
	ReviewedAt  *time.Time   `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
