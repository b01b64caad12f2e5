// Package fallback produces a conversational answer when no structured
// handler can serve a query. It is total: it always returns some text.
package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/citypulse/backend/internal/llm"
	"github.com/citypulse/backend/internal/models"
)

const apology = "Sorry, I couldn't find anything useful for that right now. " +
	"Try asking about events, traffic, news, places, or the mood in a specific area."

const prompt = `You are a helpful assistant for a city events dashboard.
Answer the user's question in two or three sentences using only the context below.
If the context is empty or unrelated, say you don't have that information and
suggest asking about local events, news, places, or traffic.

Question: %s
%s
Context:
%s`

// Context carries whatever the dispatcher gathered before escalating.
// All fields are optional.
type Context struct {
	Intent  models.Intent
	Records []models.Record
}

// Responder turns unhandled queries into free-form answers via the model,
// degrading to a fixed apology when the model is unavailable.
type Responder struct {
	model llm.Client
	log   *slog.Logger
}

func New(model llm.Client, log *slog.Logger) *Responder {
	return &Responder{
		model: model,
		log:   log,
	}
}

// Respond answers the query using the partial context. It never returns
// an error or an empty string.
func (r *Responder) Respond(ctx context.Context, query string, partial Context) string {
	if r.model == nil {
		return apology
	}

	answer, err := r.model.Generate(ctx, fmt.Sprintf(prompt, query, renderIntent(partial.Intent), renderRecords(partial.Records)))
	if err != nil {
		r.log.Warn("fallback model unavailable", "error", err)
		return apology
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return apology
	}
	return answer
}

func renderIntent(in models.Intent) string {
	if in.Kind == "" || in.Kind == models.IntentUnknown {
		return ""
	}

	// Sorted entity order keeps the prompt identical across retries of
	// the same request.
	names := make([]string, 0, len(in.Entities))
	for name := range in.Entities {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Detected intent: %s", in.Kind)
	for _, name := range names {
		fmt.Fprintf(&b, "; %s=%s", name, in.Entities[name])
	}
	b.WriteString("\n")
	return b.String()
}

// renderRecords flattens partial records into a bounded bullet list.
// Ten short lines is plenty of grounding for a two-sentence answer.
func renderRecords(records []models.Record) string {
	const maxLines = 10

	var b strings.Builder
	n := 0
	for _, rec := range records {
		text := strings.TrimSpace(rec.Text())
		if text == "" {
			continue
		}
		if runes := []rune(text); len(runes) > 200 {
			text = string(runes[:200])
		}
		fmt.Fprintf(&b, "- [%s] %s\n", rec.SourceType, text)
		n++
		if n == maxLines {
			break
		}
	}
	if n == 0 {
		return "(no records available)"
	}
	return b.String()
}
