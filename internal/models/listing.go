package models

import (
	"errors"
	"fmt"
	"time"
)

// SourceType identifies what kind of publisher a listing came from.
type SourceType string

const (
	SourceTypePortal  SourceType = "portal"
	SourceTypeAgency  SourceType = "agency"
	SourceTypeOwner   SourceType = "owner"
	SourceTypeAuction SourceType = "auction"
)

func (t SourceType) String() string {
	return string(t)
}

// Valid reports whether t is one of the known source types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypePortal, SourceTypeAgency, SourceTypeOwner, SourceTypeAuction:
		return true
	}
	return false
}

// Characteristics is the physical snapshot a portal advertised for a listing.
type Characteristics struct {
	Typology  string    `json:"typology"`
	Area      float64   `json:"area"`
	Bedrooms  int       `json:"bedrooms"`
	Bathrooms int       `json:"bathrooms"`
	Features  []Feature `json:"features"`
}

// Listing is a single portal's view of a property. It is immutable once ingested.
//
// AvailabilityProbability is optional; it is supplied by whatever upstream model
// estimates how likely the property is still on the market.
type Listing struct {
	TenantID        string          `json:"tenant_id"`
	SourceType      SourceType      `json:"source_type"`
	SourceName      string          `json:"source_name"`
	SourceListingID string          `json:"source_listing_id"`
	URL             string          `json:"url"`
	LastSeen        time.Time       `json:"last_seen"`
	Price           float64         `json:"price"`
	Location        Location        `json:"location"`
	Characteristics Characteristics `json:"characteristics"`

	AvailabilityProbability *float64 `json:"availability_probability,omitempty"`
}

// ErrInvalidListing wraps every Validate failure.
var ErrInvalidListing = errors.New("invalid listing")

// Validate rejects listings the engines cannot reason about. The engines themselves
// never validate coordinates or areas.
func (l *Listing) Validate() error {
	switch {
	case l.TenantID == "":
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidListing)
	case !l.SourceType.Valid():
		return fmt.Errorf("%w: unknown source_type %q", ErrInvalidListing, l.SourceType)
	case l.SourceName == "" || l.SourceListingID == "":
		return fmt.Errorf("%w: source_name and source_listing_id are required", ErrInvalidListing)
	case l.Location.Latitude < -90 || l.Location.Latitude > 90:
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidListing, l.Location.Latitude)
	case l.Location.Longitude < -180 || l.Location.Longitude > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidListing, l.Location.Longitude)
	case l.Location.Municipality == "":
		return fmt.Errorf("%w: municipality is required", ErrInvalidListing)
	case l.Characteristics.Area < 0:
		return fmt.Errorf("%w: negative area", ErrInvalidListing)
	case l.Price < 0:
		return fmt.Errorf("%w: negative price", ErrInvalidListing)
	case l.LastSeen.IsZero():
		return fmt.Errorf("%w: last_seen is required", ErrInvalidListing)
	case l.AvailabilityProbability != nil && (*l.AvailabilityProbability < 0 || *l.AvailabilityProbability > 1):
		return fmt.Errorf("%w: availability_probability %v outside [0, 1]", ErrInvalidListing, *l.AvailabilityProbability)
	}
	return nil
}

// FromListing performs the trivial one-source canonicalization of a listing.
// The listing's last-seen time is both the first and last observation.
func FromListing(l Listing, id string) CanonicalProperty {
	price := l.Price
	features := make([]Feature, len(l.Characteristics.Features))
	copy(features, l.Characteristics.Features)
	var availability *float64
	if l.AvailabilityProbability != nil {
		v := *l.AvailabilityProbability
		availability = &v
	}

	return CanonicalProperty{
		ID:        id,
		TenantID:  l.TenantID,
		Location:  l.Location,
		Typology:  l.Characteristics.Typology,
		Area:      l.Characteristics.Area,
		Bedrooms:  l.Characteristics.Bedrooms,
		Bathrooms: l.Characteristics.Bathrooms,
		Features:  features,

		PriceMain: l.Price,
		PriceMin:  l.Price,
		PriceMax:  l.Price,

		Sources: []Source{{
			Type:      l.SourceType,
			Name:      l.SourceName,
			ListingID: l.SourceListingID,
			LastSeen:  l.LastSeen,
			URL:       l.URL,
			Price:     &price,
		}},
		PortalCount: 1,

		FirstSeen: l.LastSeen,
		LastSeen:  l.LastSeen,
		Events: []MarketEvent{{
			Type:      EventListed,
			Timestamp: l.LastSeen,
			Payload: map[string]interface{}{
				"source":            l.SourceName,
				"source_listing_id": l.SourceListingID,
				"price":             l.Price,
			},
		}},

		AvailabilityProbability: availability,

		CreatedAt: l.LastSeen,
		UpdatedAt: l.LastSeen,
	}
}
