package render

import "pickme-client/internal/models"

// FeatureCollection is a GeoJSON feature collection of pick request markers
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a single GeoJSON point
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry holds [longitude, latitude] as GeoJSON requires
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Features converts pick requests to GeoJSON; entries without coordinates are left out
func Features(requests []models.PickRequest) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(requests))}
	for _, r := range requests {
		c, ok := r.Coordinate()
		if !ok {
			continue
		}
		props := map[string]any{
			"pickRequestId":   r.PickRequestID,
			"userId":          r.UserID,
			"userName":        r.UserName,
			"activityType":    r.ActivityType,
			"label":           Label(r),
			"durationMinutes": r.DurationMinutes,
		}
		if r.DistanceMeters != nil {
			props["distanceMeters"] = *r.DistanceMeters
		}
		if r.ExpiresAt != nil {
			props["expiresAt"] = *r.ExpiresAt
		}
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   Geometry{Type: "Point", Coordinates: [2]float64{c.Longitude, c.Latitude}},
			Properties: props,
		})
	}
	return fc
}
