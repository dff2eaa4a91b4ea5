package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertyhub/server/internal/models"
)

var mergeClock = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func mergeEngine() *Engine {
	return NewEngine(DefaultConfig()).WithClock(func() time.Time { return mergeClock })
}

func pricedProperty(id string, main, min, max float64, firstSeen, lastSeen time.Time) models.CanonicalProperty {
	p := testProperty(id)
	p.PriceMain, p.PriceMin, p.PriceMax = main, min, max
	p.FirstSeen, p.LastSeen = firstSeen, lastSeen
	p.Sources = []models.Source{{Type: models.SourceTypePortal, Name: "portal-" + id, LastSeen: lastSeen}}
	p.PortalCount = 1
	return p
}

func TestMerge_AggregateFields(t *testing.T) {
	engine := mergeEngine()

	a := pricedProperty("a", 300000, 295000, 310000, baseTime.AddDate(0, 0, -10), baseTime)
	b := pricedProperty("b", 320000, 320000, 330000, baseTime.AddDate(0, 0, -30), baseTime.AddDate(0, 0, -2))
	b.Sources = append(b.Sources, models.Source{Type: models.SourceTypeAgency, Name: "agency-x"})
	b.PortalCount = 2

	merged := engine.Merge(&a, &b)

	assert.Equal(t, "b", merged.ID, "earliest first_seen keeps its id")
	assert.Equal(t, b.FirstSeen, merged.FirstSeen)
	assert.Equal(t, a.LastSeen, merged.LastSeen)
	assert.Equal(t, 3, merged.PortalCount)
	assert.Len(t, merged.Sources, merged.PortalCount)
	assert.Equal(t, "portal-a", merged.Sources[0].Name)
	assert.Equal(t, "portal-b", merged.Sources[1].Name)

	assert.Equal(t, 310000.0, merged.PriceMain)
	assert.Equal(t, 295000.0, merged.PriceMin)
	assert.Equal(t, 330000.0, merged.PriceMax)
	assert.InDelta(t, (330000.0-295000.0)/295000.0*100, merged.PriceDivergencePct, 1e-9)
	assert.LessOrEqual(t, merged.PriceMin, merged.PriceMain)
	assert.LessOrEqual(t, merged.PriceMain, merged.PriceMax)
	assert.False(t, merged.FirstSeen.After(merged.LastSeen))

	assert.Equal(t, mergeClock, merged.UpdatedAt)
}

func TestMerge_PriceMainIsUnweightedMean(t *testing.T) {
	engine := mergeEngine()

	a := pricedProperty("a", 300000, 300000, 300000, baseTime, baseTime)
	a.PortalCount = 3
	a.Sources = append(a.Sources, a.Sources[0], a.Sources[0])
	b := pricedProperty("b", 400000, 400000, 400000, baseTime, baseTime)

	merged := engine.Merge(&a, &b)
	assert.Equal(t, 350000.0, merged.PriceMain)
}

func TestMerge_ZeroMinPriceHasNoDivergence(t *testing.T) {
	engine := mergeEngine()
	a := pricedProperty("a", 0, 0, 0, baseTime, baseTime)
	b := pricedProperty("b", 200000, 200000, 200000, baseTime, baseTime)

	merged := engine.Merge(&a, &b)
	assert.Equal(t, 0.0, merged.PriceDivergencePct)
}

func TestMerge_FeatureUnionSurvivorWins(t *testing.T) {
	engine := mergeEngine()
	a := testProperty("a")
	a.Features = []models.Feature{{Type: "energy_label", Value: "A"}, {Type: "elevator"}}
	b := testProperty("b")
	b.Features = []models.Feature{{Type: "energy_label", Value: "C"}, {Type: "garage", Value: "2"}}

	merged := engine.Merge(&a, &b)
	assert.Equal(t, []models.Feature{
		{Type: "energy_label", Value: "A"},
		{Type: "elevator"},
		{Type: "garage", Value: "2"},
	}, merged.Features)

	reversed := engine.Merge(&b, &a)
	assert.Equal(t, merged.Features, reversed.Features)

	// an earlier b survives and its label wins
	b.FirstSeen = a.FirstSeen.Add(-time.Hour)
	assert.Equal(t, "C", engine.Merge(&a, &b).Features[0].Value)
}

func TestMerge_FirstSeenTieKeepsSmallerID(t *testing.T) {
	engine := mergeEngine()
	a := testProperty("a")
	b := testProperty("b")
	b.Location.Latitude += 0.0003
	b.Area = 82
	b.Bedrooms = 3
	b.VendaScore = 71
	require.True(t, a.FirstSeen.Equal(b.FirstSeen))

	ab := engine.Merge(&a, &b)
	ba := engine.Merge(&b, &a)

	assert.Equal(t, "a", ab.ID)
	assert.Equal(t, "a", ba.ID)
	assert.Equal(t, ab.Location, ba.Location)
	assert.Equal(t, a.Location, ab.Location)
	assert.Equal(t, ab.Area, ba.Area)
	assert.Equal(t, ab.Bedrooms, ba.Bedrooms)
	assert.Equal(t, ab.VendaScore, ba.VendaScore)
	assert.Equal(t, ab.Features, ba.Features)
}

func TestMerge_EventsNewestFirst(t *testing.T) {
	engine := mergeEngine()
	a := testProperty("a")
	a.Events = []models.MarketEvent{
		{Type: models.EventPriceChange, Timestamp: baseTime.AddDate(0, 0, -1)},
		{Type: models.EventListed, Timestamp: baseTime.AddDate(0, 0, -20)},
	}
	b := testProperty("b")
	b.Events = []models.MarketEvent{
		{Type: models.EventOffMarket, Timestamp: baseTime},
		{Type: models.EventListed, Timestamp: baseTime.AddDate(0, 0, -5)},
	}

	merged := engine.Merge(&a, &b)
	require.Len(t, merged.Events, 4)
	assert.Equal(t, models.EventOffMarket, merged.Events[0].Type)
	assert.Equal(t, models.EventPriceChange, merged.Events[1].Type)
	for i := 1; i < len(merged.Events); i++ {
		assert.False(t, merged.Events[i].Timestamp.After(merged.Events[i-1].Timestamp))
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	engine := mergeEngine()
	a := testProperty("a")
	a.Events = []models.MarketEvent{{Type: models.EventListed, Timestamp: baseTime.AddDate(0, 0, -3)}}
	b := testProperty("b")
	b.Events = []models.MarketEvent{{Type: models.EventListed, Timestamp: baseTime}}
	availability := 0.4
	b.AvailabilityProbability = &availability

	merged := engine.Merge(&a, &b)
	merged.Sources[0].Name = "changed"
	*merged.AvailabilityProbability = 0.9

	assert.Equal(t, "idealista", a.Sources[0].Name)
	assert.Equal(t, 0.4, *b.AvailabilityProbability)
	assert.Equal(t, models.EventListed, a.Events[0].Type)
	assert.Equal(t, baseTime.AddDate(0, 0, -3), a.Events[0].Timestamp)
}

func TestMerge_OrderIndependentOutcome(t *testing.T) {
	engine := mergeEngine()
	a := pricedProperty("a", 300000, 290000, 300000, baseTime.AddDate(0, -1, 0), baseTime)
	b := pricedProperty("b", 310000, 310000, 320000, baseTime.AddDate(0, -2, 0), baseTime.AddDate(0, 0, 3))

	ab := engine.Merge(&a, &b)
	ba := engine.Merge(&b, &a)

	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, ab.FirstSeen, ba.FirstSeen)
	assert.Equal(t, ab.LastSeen, ba.LastSeen)
	assert.Equal(t, ab.PriceMain, ba.PriceMain)
	assert.Equal(t, ab.PriceMin, ba.PriceMin)
	assert.Equal(t, ab.PriceMax, ba.PriceMax)
	assert.Equal(t, ab.PortalCount, ba.PortalCount)
	assert.ElementsMatch(t, ab.Sources, ba.Sources)
}

func TestMerge_AssociativeAggregates(t *testing.T) {
	engine := mergeEngine()
	a := pricedProperty("a", 300000, 280000, 305000, baseTime.AddDate(0, 0, -15), baseTime.AddDate(0, 0, -1))
	a.Features = []models.Feature{{Type: "elevator"}}
	b := pricedProperty("b", 310000, 300000, 315000, baseTime.AddDate(0, 0, -40), baseTime.AddDate(0, 0, -8))
	b.Features = []models.Feature{{Type: "garage"}}
	c := pricedProperty("c", 295000, 295000, 330000, baseTime.AddDate(0, 0, -3), baseTime)
	c.Features = []models.Feature{{Type: "balcony"}, {Type: "elevator"}}

	ab := engine.Merge(&a, &b)
	left := engine.Merge(&ab, &c)
	bc := engine.Merge(&b, &c)
	right := engine.Merge(&a, &bc)

	assert.Equal(t, left.ID, right.ID)
	assert.Equal(t, left.FirstSeen, right.FirstSeen)
	assert.Equal(t, left.LastSeen, right.LastSeen)
	assert.Equal(t, left.PriceMin, right.PriceMin)
	assert.Equal(t, left.PriceMax, right.PriceMax)
	assert.Equal(t, left.PortalCount, right.PortalCount)
	assert.Equal(t, left.Sources, right.Sources)
	assert.Equal(t, left.FeatureTypes(), right.FeatureTypes())
	assert.Equal(t, left.PriceDivergencePct, right.PriceDivergencePct)
}

func TestMerge_UnknownFirstSeenNeverWins(t *testing.T) {
	engine := mergeEngine()
	a := testProperty("a")
	a.FirstSeen = time.Time{}
	b := testProperty("b")

	merged := engine.Merge(&a, &b)
	assert.Equal(t, "b", merged.ID)
	assert.Equal(t, b.FirstSeen, merged.FirstSeen)
}
