package models

// MoodLabel buckets a mood score.
type MoodLabel string

const (
	MoodHappy        MoodLabel = "happy"
	MoodNeutral      MoodLabel = "neutral"
	MoodBusy         MoodLabel = "busy"
	MoodTense        MoodLabel = "tense"
	MoodInsufficient MoodLabel = "insufficient_data"
)

// EventType names a (source, topic) pair that contributed to a mood score.
type EventType struct {
	Source SourceType `json:"source"`
	Topic  string     `json:"topic"`
}

// MoodResult summarizes sentiment/activity for one location and window.
// Recomputed per query, never stored by this engine.
type MoodResult struct {
	Location               string      `json:"location"`
	Score                  float64     `json:"score"`
	Label                  MoodLabel   `json:"label"`
	ContributingEventTypes []EventType `json:"contributing_event_types"`
	Insufficient           bool        `json:"insufficient,omitempty"`
}

// InsufficientMood is the defined zero-records result: never an error,
// never a divide by zero.
func InsufficientMood(location string) MoodResult {
	return MoodResult{
		Location:               location,
		Score:                  0,
		Label:                  MoodInsufficient,
		ContributingEventTypes: []EventType{},
		Insufficient:           true,
	}
}
