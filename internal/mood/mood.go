// Package mood derives a coarse mood label for a location from the
// unified records covering it.
package mood

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/citypulse/backend/internal/models"
)

// Viewer supplies the merged per-source view the score is computed from.
type Viewer interface {
	Aggregate(ctx context.Context, location string, hours int) models.AggregatedView
}

// Aggregator computes mood summaries. Scoring is pure: for a fixed view
// and rule set the result is always the same.
type Aggregator struct {
	cache Viewer
	rules Rules
	log   *slog.Logger
}

func New(cache Viewer, rules Rules, log *slog.Logger) *Aggregator {
	return &Aggregator{
		cache: cache,
		rules: rules,
		log:   log,
	}
}

// Compute scores the location's records within the lookback window and
// maps the score to a label. Records matching no rule do not contribute;
// when nothing contributes the result reports insufficient data instead
// of a fabricated neutral.
func (a *Aggregator) Compute(ctx context.Context, location string, hours int) models.MoodResult {
	view := a.cache.Aggregate(ctx, location, hours)

	var (
		sum          float64
		contributing int
		trafficSum   float64
		eventTypes   = make(map[models.EventType]struct{})
	)

	for _, st := range models.KnownSourceTypes() {
		for _, rec := range view.Sources[st] {
			score, topics, ok := a.scoreRecord(rec)
			if !ok {
				continue
			}
			sum += score
			contributing++
			for _, topic := range topics {
				if topic == "traffic" {
					trafficSum += score
				}
				eventTypes[models.EventType{Source: st, Topic: topic}] = struct{}{}
			}
		}
	}

	if contributing == 0 {
		a.log.Debug("mood: no contributing records", "location", location, "records", view.Total())
		return models.InsufficientMood(location)
	}

	score := round2(sum / float64(contributing))
	label := a.label(score, trafficSum)

	types := make([]models.EventType, 0, len(eventTypes))
	for et := range eventTypes {
		types = append(types, et)
	}
	sort.Slice(types, func(i, j int) bool {
		if types[i].Source != types[j].Source {
			return types[i].Source < types[j].Source
		}
		return types[i].Topic < types[j].Topic
	})

	return models.MoodResult{
		Location:               location,
		Score:                  score,
		Label:                  label,
		ContributingEventTypes: types,
	}
}

// scoreRecord sums the weights of every matched rule, clamped to [-1, 1].
// ok is false when no rule matched.
func (a *Aggregator) scoreRecord(rec models.Record) (score float64, topics []string, ok bool) {
	text := strings.ToLower(rec.Text())
	if text == "" {
		return 0, nil, false
	}

	for _, rule := range a.rules.Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				score += rule.Weight
				topics = append(topics, rule.Topic)
				break
			}
		}
	}
	if len(topics) == 0 {
		return 0, nil, false
	}
	return math.Max(-1, math.Min(1, score)), topics, true
}

// label maps the mean score to a mood label. Busy wins inside the
// neutral band when traffic contributions drag the score down.
func (a *Aggregator) label(score, trafficSum float64) models.MoodLabel {
	switch {
	case score > a.rules.HappyThreshold:
		return models.MoodHappy
	case score < a.rules.TenseThreshold:
		return models.MoodTense
	case trafficSum < 0:
		return models.MoodBusy
	default:
		return models.MoodNeutral
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
