package models

import (
	"strconv"
	"strings"
)

// IntentKind is the closed set of query intents the dispatcher handles.
// Adding a kind means extending the dispatcher switch; there is no
// string-keyed tool lookup.
type IntentKind string

const (
	IntentTopicSocial IntentKind = "ask_topic_social"
	IntentNews        IntentKind = "ask_news"
	IntentMood        IntentKind = "ask_mood"
	IntentRoute       IntentKind = "ask_route"
	IntentFindPlaces  IntentKind = "find_places"
	IntentFindReports IntentKind = "find_reports"
	IntentUnknown     IntentKind = "unknown"
)

// ParseIntentKind maps a tag emitted by the generative fallback to a known
// kind, defaulting to unknown.
func ParseIntentKind(raw string) IntentKind {
	switch IntentKind(strings.ToLower(strings.TrimSpace(raw))) {
	case IntentTopicSocial, IntentNews, IntentMood, IntentRoute,
		IntentFindPlaces, IntentFindReports:
		return IntentKind(strings.ToLower(strings.TrimSpace(raw)))
	default:
		return IntentUnknown
	}
}

// Entity names used in Intent.Entities.
const (
	EntityLocation    = "location"
	EntityTopic       = "topic"
	EntityRadiusKm    = "radius_km"
	EntityWindowHours = "time_window_hours"
	EntityOrigin      = "origin"
	EntityDestination = "destination"
)

// Intent is the symbolic classification of one user query plus its
// extracted entities. Produced per request, never persisted.
type Intent struct {
	Kind     IntentKind        `json:"intent"`
	Entities map[string]string `json:"entities"`
}

// NewIntent builds an intent with a non-nil entity map.
func NewIntent(kind IntentKind) Intent {
	return Intent{Kind: kind, Entities: map[string]string{}}
}

func (i Intent) entity(name string) string {
	return strings.TrimSpace(i.Entities[name])
}

// Location returns the extracted location or the given default.
func (i Intent) Location(fallback string) string {
	if loc := i.entity(EntityLocation); loc != "" {
		return loc
	}
	return fallback
}

// Topic returns the extracted topic, defaulting to the intent tag itself,
// which keeps source queries meaningful for bare questions.
func (i Intent) Topic() string {
	if t := i.entity(EntityTopic); t != "" {
		return t
	}
	return string(i.Kind)
}

// RadiusKm returns the extracted radius, or fallback when absent or
// unparseable.
func (i Intent) RadiusKm(fallback float64) float64 {
	if raw := i.entity(EntityRadiusKm); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

// WindowHours returns the extracted lookback window, or fallback.
func (i Intent) WindowHours(fallback int) int {
	if raw := i.entity(EntityWindowHours); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

// Origin and Destination support routing queries.
func (i Intent) Origin() string      { return i.entity(EntityOrigin) }
func (i Intent) Destination() string { return i.entity(EntityDestination) }
