// Package dispatch routes classified queries to their structured handlers
// and escalates to the generative fallback when a handler cannot answer.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/citypulse/backend/internal/fallback"
	"github.com/citypulse/backend/internal/metrics"
	"github.com/citypulse/backend/internal/models"
)

// Cache is the slice of the unified cache the dispatcher uses.
type Cache interface {
	Get(ctx context.Context, location string, st models.SourceType, hours int, forceRefresh bool) []models.Record
	Aggregate(ctx context.Context, location string, hours int) models.AggregatedView
	Warm(location string, hours int)
}

// MoodComputer produces a mood summary for a location.
type MoodComputer interface {
	Compute(ctx context.Context, location string, hours int) models.MoodResult
}

// Classifier assigns an intent and confidence to a raw query.
type Classifier interface {
	Classify(ctx context.Context, query string) (models.Intent, float64)
}

// Responder is the fallback of last resort; it must always answer.
type Responder interface {
	Respond(ctx context.Context, query string, partial fallback.Context) string
}

// Response is the dispatcher's answer. Reply is always set; Data carries
// the structured payload when a handler produced one.
type Response struct {
	Intent     models.IntentKind `json:"intent"`
	Entities   map[string]string `json:"entities"`
	Confidence float64           `json:"confidence"`
	Reply      string            `json:"reply"`
	Data       any               `json:"data,omitempty"`
}

// Options carries the request-scoped defaults the handlers fall back to
// when the query does not pin them down.
type Options struct {
	DefaultLocation string
	DefaultHours    int
	RequestTimeout  time.Duration
	WarmOnSuccess   bool
}

type Dispatcher struct {
	intents  Classifier
	cache    Cache
	mood     MoodComputer
	fallback Responder
	opts     Options
	log      *slog.Logger
}

func New(intents Classifier, cache Cache, mood MoodComputer, fb Responder, opts Options, log *slog.Logger) *Dispatcher {
	if opts.DefaultHours <= 0 {
		opts.DefaultHours = 24
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 25 * time.Second
	}
	return &Dispatcher{
		intents:  intents,
		cache:    cache,
		mood:     mood,
		fallback: fb,
		opts:     opts,
		log:      log,
	}
}

// Handle answers one user query. It is total: every input, including
// unclassifiable or empty ones, gets a Response.
func (d *Dispatcher) Handle(ctx context.Context, userID, query string) Response {
	ctx, cancel := context.WithTimeout(ctx, d.opts.RequestTimeout)
	defer cancel()

	in, conf := d.intents.Classify(ctx, query)
	d.log.Info("query classified",
		"user_id", userID,
		"intent", in.Kind,
		"confidence", conf,
	)

	resp := Response{
		Intent:     in.Kind,
		Entities:   in.Entities,
		Confidence: conf,
	}

	location := in.Location(d.opts.DefaultLocation)
	hours := in.WindowHours(d.opts.DefaultHours)

	switch in.Kind {
	case models.IntentTopicSocial:
		records := d.cache.Get(ctx, location, models.SourceSocial, hours, false)
		if in.Topic() != string(in.Kind) {
			records = mergeRecords(records, d.cache.Get(ctx, location, models.SourceNews, hours, false))
		}
		if len(records) == 0 {
			return d.escalate(ctx, query, in, nil, resp, "no_records")
		}
		resp.Reply = summarize("updates", location, records)
		resp.Data = records

	case models.IntentNews:
		records := d.cache.Get(ctx, location, models.SourceNews, hours, false)
		if len(records) == 0 {
			return d.escalate(ctx, query, in, nil, resp, "no_records")
		}
		resp.Reply = summarize("news items", location, records)
		resp.Data = records

	case models.IntentMood:
		result := d.mood.Compute(ctx, location, hours)
		resp.Data = result
		if result.Insufficient {
			out := d.escalate(ctx, query, in, nil, resp, "insufficient_mood_data")
			out.Data = result
			return out
		}
		resp.Reply = fmt.Sprintf("The mood in %s looks %s right now (score %.2f).", location, result.Label, result.Score)

	case models.IntentRoute:
		origin, dest := in.Origin(), in.Destination()
		if origin == "" || dest == "" {
			return d.escalate(ctx, query, in, nil, resp, "route_endpoints_missing")
		}
		// The places source doubles as the routing data provider; its
		// records around the destination ground the composed reply.
		records := d.cache.Get(ctx, dest, models.SourcePOI, hours, false)
		resp.Reply = d.fallback.Respond(ctx, query, fallback.Context{Intent: in, Records: records})
		resp.Data = map[string]any{
			"origin":      origin,
			"destination": dest,
			"nearby":      records,
		}

	case models.IntentFindPlaces:
		records := d.cache.Get(ctx, location, models.SourcePOI, hours, false)
		if len(records) == 0 {
			return d.escalate(ctx, query, in, nil, resp, "no_records")
		}
		resp.Reply = summarize("places", location, records)
		resp.Data = records

	case models.IntentFindReports:
		records := d.cache.Get(ctx, location, models.SourceUserReport, hours, false)
		if len(records) == 0 {
			return d.escalate(ctx, query, in, nil, resp, "no_records")
		}
		resp.Reply = summarize("reports", location, records)
		resp.Data = records

	case models.IntentUnknown:
		return d.escalate(ctx, query, in, nil, resp, "unknown_intent")

	default:
		// Unreachable while IntentKind stays closed; treat like unknown
		// rather than panicking.
		d.log.Warn("unhandled intent kind", "intent", in.Kind)
		return d.escalate(ctx, query, in, nil, resp, "unknown_intent")
	}

	if d.opts.WarmOnSuccess {
		d.cache.Warm(location, hours)
	}
	return resp
}

// escalate hands the query to the generative fallback, keeping whatever
// structured context was gathered first.
func (d *Dispatcher) escalate(ctx context.Context, query string, in models.Intent, partial []models.Record, resp Response, reason string) Response {
	metrics.FallbackResponses.WithLabelValues(reason).Inc()
	d.log.Debug("escalating to fallback", "reason", reason, "intent", in.Kind)

	resp.Reply = d.fallback.Respond(ctx, query, fallback.Context{Intent: in, Records: partial})
	return resp
}

// mergeRecords appends b to a, skipping IDs already present.
func mergeRecords(a, b []models.Record) []models.Record {
	seen := make(map[string]struct{}, len(a))
	for _, rec := range a {
		seen[rec.ID] = struct{}{}
	}
	out := a
	for _, rec := range b {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// summarize builds a short deterministic reply from the first few records.
func summarize(noun, location string, records []models.Record) string {
	const maxShown = 3

	texts := make([]string, 0, maxShown)
	for _, rec := range records {
		text := strings.TrimSpace(rec.Text())
		if text == "" {
			continue
		}
		if runes := []rune(text); len(runes) > 80 {
			text = string(runes[:80]) + "..."
		}
		texts = append(texts, text)
		if len(texts) == maxShown {
			break
		}
	}

	reply := fmt.Sprintf("Found %d %s for %s.", len(records), noun, location)
	if len(texts) > 0 {
		reply += " Top picks: " + strings.Join(texts, " | ")
	}
	return reply
}
