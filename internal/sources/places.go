package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/citypulse/backend/internal/models"
)

const placesMaxLimit = 20

// Places queries a points-of-interest API near a location.
type Places struct {
	base   string
	client *http.Client
}

// NewPlaces builds the POI adapter.
func NewPlaces(base string, timeout time.Duration) *Places {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Places{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Places) Name() models.SourceType { return models.SourcePOI }

type placesResponse struct {
	Places []struct {
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		Address  string   `json:"address"`
		Rating   float64  `json:"rating"`
		Types    []string `json:"types"`
		Lat      float64  `json:"lat"`
		Lng      float64  `json:"lng"`
		OpenNow  *bool    `json:"open_now,omitempty"`
		Distance float64  `json:"distance_m"`
	} `json:"places"`
}

// Fetch returns points of interest near the location, optionally filtered
// by topic (e.g. "restaurants").
func (p *Places) Fetch(ctx context.Context, location, topic string, limit int) ([]models.Record, error) {
	limit = clampLimit(limit, placesMaxLimit)

	q := url.Values{}
	q.Set("near", location)
	q.Set("limit", fmt.Sprintf("%d", limit))
	if topic != "" {
		q.Set("category", topic)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/places?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: places api http %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	now := time.Now().UTC()
	records := make([]models.Record, 0, len(parsed.Places))
	for _, place := range parsed.Places {
		id := place.ID
		if id == "" {
			id = uuid.NewString()
		}
		rec := models.Record{
			ID:         id,
			SourceType: models.SourcePOI,
			Location:   location,
			Payload: map[string]any{
				"name":    place.Name,
				"address": place.Address,
				"rating":  place.Rating,
				"types":   place.Types,
			},
			FetchedAt: now,
		}
		if place.Lat != 0 || place.Lng != 0 {
			rec.Coordinates = &models.LatLng{Lat: place.Lat, Lng: place.Lng}
		}
		if place.OpenNow != nil {
			rec.Payload["open_now"] = *place.OpenNow
		}
		records = append(records, rec)
	}
	return records, nil
}
