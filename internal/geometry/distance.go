package geometry

import (
	"math"

	"github.com/paulmach/orb"

	"propertyhub/server/internal/models"
)

// EarthRadiusKm is the mean Earth radius used for haversine distances.
// orb's geo package uses the WGS84 equatorial radius, which would shift the dedup
// distance bands, so the formula is evaluated here.
const EarthRadiusKm = 6371.0

// PointOf returns the orb point (lon, lat) of a property location.
func PointOf(loc models.Location) orb.Point {
	return orb.Point{loc.Longitude, loc.Latitude}
}

// HaversineKm returns the great-circle distance in kilometres between two points
// given in decimal degrees.
func HaversineKm(a, b orb.Point) float64 {
	lat1 := deg2rad(a.Lat())
	lat2 := deg2rad(b.Lat())
	dLat := deg2rad(b.Lat() - a.Lat())
	dLon := deg2rad(b.Lon() - a.Lon())

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceKm is HaversineKm between two property locations.
func DistanceKm(a, b models.Location) float64 {
	return HaversineKm(PointOf(a), PointOf(b))
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}
