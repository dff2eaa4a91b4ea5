package models

import (
	"sort"
	"time"
)

// MarketEventType enumerates what happened to a property on the market.
type MarketEventType string

const (
	EventListed             MarketEventType = "listed"
	EventPriceChange        MarketEventType = "price_change"
	EventRelisted           MarketEventType = "relisted"
	EventOffMarket          MarketEventType = "off_market"
	EventSourceAdded        MarketEventType = "source_added"
	EventAvailabilityChange MarketEventType = "availability_change"
)

func (t MarketEventType) String() string {
	return string(t)
}

// MarketEvent is one entry of a property's history. Off-market is an event, not a deletion.
type MarketEvent struct {
	Type      MarketEventType        `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// SortEventsNewestFirst orders events by descending timestamp.
// Events with equal timestamps keep their relative order.
func SortEventsNewestFirst(events []MarketEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}
