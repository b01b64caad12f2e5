// Package intent maps free-text queries to a symbolic intent plus
// extracted entities. An ordered pattern pass resolves the common
// vocabulary deterministically; a generative fallback covers paraphrase
// without an ever-growing rule set.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/citypulse/backend/internal/llm"
	"github.com/citypulse/backend/internal/models"
)

// rule is one pattern in the ordered corpus. Capture group names bind
// directly to entity names.
type rule struct {
	kind       models.IntentKind
	confidence float64
	pattern    *regexp.Regexp
}

// The corpus is ordered: the first matching rule wins. Route and report
// rules come before the broad "what's happening" catch so their more
// specific phrasings are not swallowed.
var rules = []rule{
	{models.IntentRoute, 0.95, regexp.MustCompile(`(?i)(?:route|directions|way|how\s+(?:do|can)\s+i\s+get)\s+from\s+(?P<origin>.+?)\s+to\s+(?P<destination>.+)$`)},
	{models.IntentRoute, 0.85, regexp.MustCompile(`(?i)^(?:traffic|commute)\s+(?:from\s+(?P<origin>.+?)\s+)?to\s+(?P<destination>.+)$`)},
	{models.IntentFindReports, 0.9, regexp.MustCompile(`(?i)(?:photos?|reports?|sightings?)\s+(?:near|around|in|at|from)\s+(?P<location>.+)$`)},
	{models.IntentFindPlaces, 0.9, regexp.MustCompile(`(?i)(?:^|\s)(?P<topic>restaurants?|cafes?|bars?|parks?|museums?|places(?:\s+to\s+(?:visit|see|eat))?|things\s+to\s+do)\s+(?:in|near|around|at)\s+(?P<location>.+)$`)},
	{models.IntentMood, 0.9, regexp.MustCompile(`(?i)(?:mood|vibe|atmosphere|sentiment)\s+(?:in|at|around|of)\s+(?P<location>.+)$`)},
	{models.IntentMood, 0.8, regexp.MustCompile(`(?i)how\s+(?:is|does)\s+(?P<location>.+?)\s+feel(?:ing)?\b`)},
	{models.IntentNews, 0.9, regexp.MustCompile(`(?i)(?:news|headlines|articles)\s+(?:in|about|from|for|on)\s+(?P<location>.+)$`)},
	{models.IntentTopicSocial, 0.9, regexp.MustCompile(`(?i)what(?:'s|\s+is)\s+(?:happening|going\s+on)\s+(?:in|at|around|near)\s+(?P<location>.+)$`)},
	{models.IntentTopicSocial, 0.8, regexp.MustCompile(`(?i)(?:anything|any\s+(?P<topic>events?|buzz|chatter))\s+(?:in|at|around|near)\s+(?P<location>.+)$`)},
	{models.IntentTopicSocial, 0.7, regexp.MustCompile(`(?i)people\s+(?:saying|talking)\s+about\s+(?P<topic>.+?)\s+(?:in|at|around)\s+(?P<location>.+)$`)},
}

var (
	windowHours = regexp.MustCompile(`(?i)(?:last|past)\s+(\d{1,3})\s*h(?:ours?)?\b`)
	radiusKm    = regexp.MustCompile(`(?i)within\s+(\d+(?:\.\d+)?)\s*km\b`)
	nowPhrase   = regexp.MustCompile(`(?i)\b(?:right\s+now|currently|at\s+the\s+moment)\b`)
	todayPhrase = regexp.MustCompile(`(?i)\btoday\b`)
	tailTrim    = regexp.MustCompile(`(?i)[\s?.!,]+$`)
)

// Classifier turns a query into an Intent with a confidence.
type Classifier struct {
	threshold float64
	model     llm.Client
	log       *slog.Logger
}

// New builds a classifier. model may be nil, in which case ambiguous
// queries resolve to unknown directly.
func New(threshold float64, model llm.Client, log *slog.Logger) *Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	return &Classifier{threshold: threshold, model: model, log: log}
}

// Classify never fails: the worst case is the unknown intent with empty
// entities, which the dispatcher routes straight to the fallback.
func (c *Classifier) Classify(ctx context.Context, query string) (models.Intent, float64) {
	normalized := strings.Join(strings.Fields(strings.TrimSpace(query)), " ")
	if normalized == "" {
		return models.NewIntent(models.IntentUnknown), 0
	}

	for _, r := range rules {
		m := r.pattern.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		if r.confidence < c.threshold {
			continue
		}

		intent := models.NewIntent(r.kind)
		for i, name := range r.pattern.SubexpNames() {
			if name == "" || i >= len(m) || m[i] == "" {
				continue
			}
			intent.Entities[name] = cleanEntity(m[i])
		}
		extractShared(normalized, &intent)
		return intent, r.confidence
	}

	return c.modelFallback(ctx, normalized)
}

// modelFallback asks the generative model for a constrained JSON envelope
// and parses it defensively.
func (c *Classifier) modelFallback(ctx context.Context, query string) (models.Intent, float64) {
	if c.model == nil {
		return models.NewIntent(models.IntentUnknown), 0
	}

	out, err := c.model.Generate(ctx, classifyPrompt(query))
	if err != nil {
		c.log.Warn("intent fallback model call failed", slog.Any("err", err))
		return models.NewIntent(models.IntentUnknown), 0
	}

	blob := llm.ExtractJSON(out)
	if blob == "" {
		c.log.Warn("intent fallback returned no JSON", slog.String("raw", truncate(out, 120)))
		return models.NewIntent(models.IntentUnknown), 0
	}

	var parsed struct {
		Intent   string         `json:"intent"`
		Entities map[string]any `json:"entities"`
	}
	if err := json.Unmarshal([]byte(blob), &parsed); err != nil {
		c.log.Warn("intent fallback JSON unparseable", slog.Any("err", err))
		return models.NewIntent(models.IntentUnknown), 0
	}

	intent := models.NewIntent(models.ParseIntentKind(parsed.Intent))
	for name, value := range parsed.Entities {
		switch v := value.(type) {
		case string:
			if v != "" {
				intent.Entities[name] = cleanEntity(v)
			}
		case float64:
			intent.Entities[name] = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
		}
	}
	extractShared(query, &intent)

	if intent.Kind == models.IntentUnknown {
		return intent, 0
	}
	return intent, 0.5
}

func classifyPrompt(query string) string {
	return `You are an intent extractor for a smart city assistant.
Classify the user's message into exactly one intent tag from this list:
ask_topic_social, ask_news, ask_mood, ask_route, find_places, find_reports, unknown.

Extract entities when present: location, topic, radius_km, time_window_hours, origin, destination.

Respond ONLY with JSON like:
{"intent": "ask_topic_social", "entities": {"location": "HSR Layout", "topic": "flash mob"}}

User: "` + query + `"`
}

// extractShared pulls entities every intent understands: time windows and
// radii stated anywhere in the query.
func extractShared(query string, intent *models.Intent) {
	if _, ok := intent.Entities[models.EntityWindowHours]; !ok {
		switch {
		case windowHours.MatchString(query):
			intent.Entities[models.EntityWindowHours] = windowHours.FindStringSubmatch(query)[1]
		case nowPhrase.MatchString(query):
			intent.Entities[models.EntityWindowHours] = "3"
		case todayPhrase.MatchString(query):
			intent.Entities[models.EntityWindowHours] = "24"
		}
	}
	if _, ok := intent.Entities[models.EntityRadiusKm]; !ok {
		if m := radiusKm.FindStringSubmatch(query); m != nil {
			intent.Entities[models.EntityRadiusKm] = m[1]
		}
	}
}

// Connector words left dangling once a time or radius phrase is removed
// ("Cubbon Park within 2.5 km from the ..." -> "Cubbon Park from the").
var danglingTail = map[string]struct{}{
	"from": {}, "the": {}, "in": {}, "at": {}, "of": {}, "for": {}, "within": {}, "about": {},
}

// cleanEntity strips time/radius phrasing and trailing punctuation that
// captured alongside a location ("Springfield right now?" -> "Springfield").
func cleanEntity(raw string) string {
	out := nowPhrase.ReplaceAllString(raw, "")
	out = todayPhrase.ReplaceAllString(out, "")
	out = windowHours.ReplaceAllString(out, "")
	out = radiusKm.ReplaceAllString(out, "")
	out = tailTrim.ReplaceAllString(out, "")

	words := strings.Fields(out)
	for len(words) > 0 {
		if _, dangling := danglingTail[strings.ToLower(words[len(words)-1])]; !dangling {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
