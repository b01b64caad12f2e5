package geo_test

import (
	"testing"

	"github.com/citypulse/backend/internal/geo"
	"github.com/citypulse/backend/internal/models"
	"github.com/stretchr/testify/require"
)

func record(id string, lat, lng float64) models.Record {
	return models.Record{
		ID:          id,
		SourceType:  models.SourceUserReport,
		Coordinates: &models.LatLng{Lat: lat, Lng: lng},
	}
}

func TestDistanceKnownPair(t *testing.T) {
	// Bengaluru city center to the airport, roughly 32 km.
	center := models.LatLng{Lat: 12.9716, Lng: 77.5946}
	airport := models.LatLng{Lat: 13.1986, Lng: 77.7066}

	d := geo.Distance(center, airport)
	require.InDelta(t, 28.3, d, 1.5)
}

func TestDistanceZero(t *testing.T) {
	p := models.LatLng{Lat: 40.0, Lng: -73.0}
	require.Zero(t, geo.Distance(p, p))
}

func TestWithinRadiusFiltersAndPreservesOrder(t *testing.T) {
	center := models.LatLng{Lat: 40.0, Lng: -73.0}
	records := []models.Record{
		record("near-1", 40.001, -73.001),
		record("far-1", 41.0, -73.0), // ~111 km north
		record("near-2", 40.01, -73.01),
		record("far-2", 40.0, -74.0), // ~85 km west
		record("near-3", 39.99, -72.99),
	}

	got := geo.WithinRadius(records, center, 5.0)
	require.Len(t, got, 3)
	require.Equal(t, "near-1", got[0].ID)
	require.Equal(t, "near-2", got[1].ID)
	require.Equal(t, "near-3", got[2].ID)
}

func TestWithinRadiusBoundaryInclusive(t *testing.T) {
	center := models.LatLng{Lat: 0, Lng: 0}
	// One degree of longitude on the equator.
	edge := models.LatLng{Lat: 0, Lng: 1}
	exact := geo.Distance(center, edge)

	records := []models.Record{record("edge", edge.Lat, edge.Lng)}
	require.Len(t, geo.WithinRadius(records, center, exact), 1)
	require.Empty(t, geo.WithinRadius(records, center, exact-0.001))
}

func TestWithinRadiusSkipsUntaggedRecords(t *testing.T) {
	center := models.LatLng{Lat: 40.0, Lng: -73.0}
	records := []models.Record{
		{ID: "untagged", SourceType: models.SourceSocial},
		record("tagged", 40.0, -73.0),
	}

	got := geo.WithinRadius(records, center, 1.0)
	require.Len(t, got, 1)
	require.Equal(t, "tagged", got[0].ID)
}
