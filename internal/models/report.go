package models

import (
	"errors"
	"time"
)

// UserReport is a user-submitted geotagged observation: a Record subtype
// with mandatory coordinates and owner. Created once, never updated.
type UserReport struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Coordinates LatLng    `json:"coordinates"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate enforces the mandatory fields and coordinate ranges.
func (r UserReport) Validate() error {
	if r.UserID == "" {
		return errors.New("user report requires a user_id")
	}
	if r.Coordinates.Lat < -90 || r.Coordinates.Lat > 90 {
		return errors.New("latitude out of range")
	}
	if r.Coordinates.Lng < -180 || r.Coordinates.Lng > 180 {
		return errors.New("longitude out of range")
	}
	return nil
}

// Record converts the report into the unified record shape so the cache
// and geo filter treat it like any other source datum.
func (r UserReport) Record() Record {
	coords := r.Coordinates
	return Record{
		ID:         r.ID,
		SourceType: SourceUserReport,
		Location:   r.Location,
		Payload: map[string]any{
			"description": r.Description,
			"photo_url":   r.PhotoURL,
			"keywords":    r.Keywords,
		},
		FetchedAt:   r.CreatedAt,
		Coordinates: &coords,
		UserID:      r.UserID,
	}
}
