package geometry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"propertyhub/server/internal/models"
)

// FeatureCollection converts canonical properties into a GeoJSON feature collection,
// one point feature per property.
func FeatureCollection(properties []models.CanonicalProperty) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range properties {
		fc.Append(PropertyFeature(&properties[i]))
	}
	return fc
}

// PropertyFeature builds the GeoJSON point feature of a single property.
func PropertyFeature(p *models.CanonicalProperty) *geojson.Feature {
	feature := geojson.NewFeature(PointOf(p.Location))
	feature.ID = p.ID
	feature.Properties = geojson.Properties{
		"municipality":         p.Location.Municipality,
		"parish":               p.Location.Parish,
		"typology":             p.Typology,
		"area":                 p.Area,
		"price_main":           p.PriceMain,
		"price_divergence_pct": p.PriceDivergencePct,
		"portal_count":         p.PortalCount,
	}
	return feature
}

// Bounds returns the bounding box enclosing every property, or an empty bound for none.
func Bounds(properties []models.CanonicalProperty) orb.Bound {
	if len(properties) == 0 {
		return orb.Bound{}
	}
	bound := PointOf(properties[0].Location).Bound()
	for _, p := range properties[1:] {
		bound = bound.Extend(PointOf(p.Location))
	}
	return bound
}

// MarshalCollection encodes the collection with a metadata member alongside the features.
func MarshalCollection(fc *geojson.FeatureCollection, properties []models.CanonicalProperty) ([]byte, error) {
	bound := Bounds(properties)
	output := map[string]interface{}{
		"type":     "FeatureCollection",
		"features": fc.Features,
		"bbox":     []float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()},
		"metadata": map[string]interface{}{
			"generated":  time.Now().UTC().Format(time.RFC3339),
			"properties": len(fc.Features),
		},
	}

	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	return data, nil
}
