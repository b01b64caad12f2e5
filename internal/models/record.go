package models

import (
	"fmt"
	"strings"
	"time"
)

// SourceType identifies which upstream signal produced a record.
type SourceType string

const (
	SourceSocial     SourceType = "social"
	SourceNews       SourceType = "news"
	SourcePOI        SourceType = "poi"
	SourceUserReport SourceType = "user_report"
)

// KnownSourceTypes lists every source the unified cache aggregates over,
// in the order aggregated views report them.
func KnownSourceTypes() []SourceType {
	return []SourceType{SourceSocial, SourceNews, SourcePOI, SourceUserReport}
}

// ParseSourceType validates a caller-supplied source type string.
func ParseSourceType(raw string) (SourceType, error) {
	switch SourceType(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceSocial:
		return SourceSocial, nil
	case SourceNews:
		return SourceNews, nil
	case SourcePOI:
		return SourcePOI, nil
	case SourceUserReport:
		return SourceUserReport, nil
	default:
		return "", fmt.Errorf("unknown source type %q", raw)
	}
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Record is one fetched datum from a source. Records are immutable once
// stored; newer fetches of the same (location, source) supersede them.
type Record struct {
	ID          string         `json:"id"`
	SourceType  SourceType     `json:"source_type"`
	Location    string         `json:"location"`
	Payload     map[string]any `json:"payload"`
	FetchedAt   time.Time      `json:"fetched_at"`
	Coordinates *LatLng        `json:"coordinates,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
}

// Text pulls the best human-readable content out of the opaque payload.
// Mirrors scoring input selection order: text, then title, then description.
func (r Record) Text() string {
	for _, key := range []string{"text", "title", "description"} {
		if v, ok := r.Payload[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// CacheEntry is the stored, timestamped result set for one
// (location, source_type) key.
type CacheEntry struct {
	Location        string     `json:"location"`
	SourceType      SourceType `json:"source_type"`
	Records         []Record   `json:"records"`
	LastRefreshedAt time.Time  `json:"last_refreshed_at"`
}

// Stale reports whether the entry is older than the given ttl.
func (e *CacheEntry) Stale(ttl time.Duration, now time.Time) bool {
	if e == nil {
		return true
	}
	return now.Sub(e.LastRefreshedAt) > ttl
}

// AggregatedView is a point-in-time union of cache entries across all
// source types for one location. Derived, never persisted.
type AggregatedView struct {
	Location    string                  `json:"location"`
	Hours       int                     `json:"hours"`
	Sources     map[SourceType][]Record `json:"sources"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Total counts records across every source type.
func (v AggregatedView) Total() int {
	n := 0
	for _, records := range v.Sources {
		n += len(records)
	}
	return n
}

// Flatten returns all records in KnownSourceTypes order.
func (v AggregatedView) Flatten() []Record {
	out := make([]Record, 0, v.Total())
	for _, st := range KnownSourceTypes() {
		out = append(out, v.Sources[st]...)
	}
	return out
}
