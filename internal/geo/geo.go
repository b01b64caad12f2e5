// Package geo performs radius filtering over geotagged records in memory.
// Filtering happens on the fetched result set rather than in the document
// store, which keeps the store free of compound geospatial indexes;
// per-location result sets are bounded to hundreds of records.
package geo

import (
	"math"

	"github.com/citypulse/backend/internal/models"
)

// Mean earth radius in kilometers.
const earthRadiusKm = 6371.0088

// Distance returns the great-circle (haversine) distance between two
// coordinates in kilometers.
func Distance(a, b models.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// WithinRadius keeps records whose coordinates lie within radiusKm of
// center. The boundary is inclusive. Records without coordinates are
// skipped; input order is preserved.
func WithinRadius(records []models.Record, center models.LatLng, radiusKm float64) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if r.Coordinates == nil {
			continue
		}
		if Distance(center, *r.Coordinates) <= radiusKm {
			out = append(out, r)
		}
	}
	return out
}
