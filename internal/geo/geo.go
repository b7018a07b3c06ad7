// Package geo holds the coordinate math used by the map renderers and the tracker.
package geo

import (
	"math"

	"pickme-client/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	// EarthRadiusKm is the mean spherical Earth radius used by Haversine
	EarthRadiusKm = 6371.0

	regionPadding  = 1.5
	minRegionDelta = 0.01

	// metersPerDegree is the length of one degree of latitude
	metersPerDegree = 111_320.0
)

// ValidCoordinate reports whether lat/lng are finite and inside WGS84 bounds
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// ValidPointer is ValidCoordinate for optional values; nil is invalid
func ValidPointer(lat, lng *float64) bool {
	if lat == nil || lng == nil {
		return false
	}
	return ValidCoordinate(*lat, *lng)
}

// FilterRenderable returns the pick requests that can be placed on a map, preserving order.
// Skipped entries are logged, never returned.
func FilterRenderable(requests []models.PickRequest) []models.PickRequest {
	out := make([]models.PickRequest, 0, len(requests))
	for _, r := range requests {
		if !ValidPointer(r.Latitude, r.Longitude) {
			log.Warn().
				Int64("pick_request_id", r.PickRequestID).
				Msg("Skipping pick request with invalid coordinates")
			continue
		}
		out = append(out, r)
	}
	return out
}

// HaversineKm returns the great-circle distance between two points in kilometers
func HaversineKm(a, b models.Coordinate) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLng := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// RoundKm rounds a distance to one decimal place for display
func RoundKm(km float64) float64 {
	return math.Round(km*10) / 10
}

// FrameRegion returns a region that shows both points with some padding
func FrameRegion(a, b models.Coordinate) models.Region {
	latDelta := math.Abs(a.Latitude-b.Latitude) * regionPadding
	lngDelta := math.Abs(a.Longitude-b.Longitude) * regionPadding
	return models.Region{
		Center: models.Coordinate{
			Latitude:  (a.Latitude + b.Latitude) / 2,
			Longitude: (a.Longitude + b.Longitude) / 2,
		},
		LatitudeDelta:  math.Max(latDelta, minRegionDelta),
		LongitudeDelta: math.Max(lngDelta, minRegionDelta),
	}
}

// RegionAround returns a region centered on a single point
func RegionAround(c models.Coordinate, delta float64) models.Region {
	if delta < minRegionDelta {
		delta = minRegionDelta
	}
	return models.Region{Center: c, LatitudeDelta: delta, LongitudeDelta: delta}
}

// RegionForRadius returns a region centered on c wide enough to show a circle of radius meters
func RegionForRadius(c models.Coordinate, meters float64) models.Region {
	return RegionAround(c, 2*meters/metersPerDegree)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
