package processor

import (
	"errors"
	"math"
	"time"

	"propertyhub/server/internal/database"
	"propertyhub/server/internal/models"
)

// DecisionSeen marks a listing that was already ingested and only refreshed its property.
const DecisionSeen = "seen"

// relistGap is how long a portal listing must have gone unseen before its return counts
// as a relisting.
const relistGap = 30 * 24 * time.Hour

// reobserve refreshes the property a known portal listing already resolved to. It
// reports false when that property no longer exists, in which case the listing is
// resolved from scratch.
func (p *DedupProcessor) reobserve(tx *database.Database, listing *models.Listing, previous database.IngestRecord) (Outcome, bool, error) {
	property, err := tx.GetProperty(listing.TenantID, previous.CanonicalID)
	if errors.Is(err, database.ErrPropertyNotFound) {
		return Outcome{}, false, nil
	}
	if err != nil {
		return Outcome{}, false, err
	}

	if observe(&property, listing, p.now()) {
		if err := tx.SaveProperty(&property); err != nil {
			return Outcome{}, false, err
		}
	}

	outcome := Outcome{
		SourceName:      listing.SourceName,
		SourceListingID: listing.SourceListingID,
		CanonicalID:     property.ID,
		Decision:        DecisionSeen,
	}
	return outcome, true, nil
}

// observe applies a fresh observation of one of the property's own sources. Sources and
// portal count are left alone. Observations older than the source's last sighting change
// nothing. It reports whether the property changed.
func observe(property *models.CanonicalProperty, listing *models.Listing, now time.Time) bool {
	idx := -1
	for i := range property.Sources {
		if property.Sources[i].Is(listing.SourceName, listing.SourceListingID) {
			idx = i
			break
		}
	}
	if idx < 0 {
		// missing from the record; restore it rather than merge a copy
		price := listing.Price
		property.Sources = append(property.Sources, models.Source{
			Type:      listing.SourceType,
			Name:      listing.SourceName,
			ListingID: listing.SourceListingID,
			Price:     &price,
		})
		property.PortalCount = len(property.Sources)
		idx = len(property.Sources) - 1
	}

	src := &property.Sources[idx]
	if !src.LastSeen.IsZero() && listing.LastSeen.Before(src.LastSeen) {
		return false
	}

	var events []models.MarketEvent
	if !src.LastSeen.IsZero() && listing.LastSeen.Sub(src.LastSeen) > relistGap {
		events = append(events, models.MarketEvent{
			Type:      models.EventRelisted,
			Timestamp: listing.LastSeen,
			Payload: map[string]interface{}{
				"source":            listing.SourceName,
				"source_listing_id": listing.SourceListingID,
				"unseen_since":      src.LastSeen,
			},
		})
	}

	if src.Price == nil || *src.Price != listing.Price {
		payload := map[string]interface{}{
			"source":            listing.SourceName,
			"source_listing_id": listing.SourceListingID,
			"price":             listing.Price,
		}
		if src.Price != nil {
			payload["previous_price"] = *src.Price
		}
		events = append(events, models.MarketEvent{
			Type:      models.EventPriceChange,
			Timestamp: listing.LastSeen,
			Payload:   payload,
		})

		price := listing.Price
		src.Price = &price
		if len(property.Sources) == 1 {
			property.PriceMain = price
		}
		property.PriceMin = math.Min(property.PriceMin, price)
		property.PriceMax = math.Max(property.PriceMax, price)
		property.PriceDivergencePct = models.PriceDivergence(property.PriceMin, property.PriceMax)
	}

	if a := listing.AvailabilityProbability; a != nil {
		if property.AvailabilityProbability == nil || *property.AvailabilityProbability != *a {
			v := *a
			property.AvailabilityProbability = &v
			events = append(events, models.MarketEvent{
				Type:      models.EventAvailabilityChange,
				Timestamp: listing.LastSeen,
				Payload: map[string]interface{}{
					"source":                   listing.SourceName,
					"availability_probability": v,
				},
			})
		}
	}

	src.LastSeen = listing.LastSeen
	if listing.URL != "" {
		src.URL = listing.URL
	}
	if listing.LastSeen.After(property.LastSeen) {
		property.LastSeen = listing.LastSeen
	}
	if len(events) > 0 {
		property.Events = append(property.Events, events...)
		models.SortEventsNewestFirst(property.Events)
	}
	property.UpdatedAt = now
	return true
}
