// Package llm wraps the generative-model capability behind a narrow
// interface so prompt-format churn stays out of the dispatcher.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ErrModelUnavailable marks network/quota/timeout failures of the model
// call. Callers degrade rather than propagate it.
var ErrModelUnavailable = errors.New("generative model unavailable")

// Client is the one capability this engine needs from a generative model.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Gemini implements Client over the Google GenAI SDK.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini builds a Gemini-backed client.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

// Generate produces a completion for the prompt. Temperature is pinned low:
// the callers want extraction and summaries, not creativity.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	temp := float32(0.2)
	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{Temperature: &temp},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrModelUnavailable)
	}
	return text, nil
}

// WithTimeout bounds each model call independently of the caller's
// deadline, so one slow completion cannot eat the whole request budget.
func WithTimeout(c Client, d time.Duration) Client {
	if c == nil || d <= 0 {
		return c
	}
	return timeoutClient{inner: c, timeout: d}
}

type timeoutClient struct {
	inner   Client
	timeout time.Duration
}

func (t timeoutClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Generate(ctx, prompt)
}

var jsonBlob = regexp.MustCompile(`\{[\s\S]*\}`)

// ExtractJSON rescues a JSON object from chatty or fenced model output.
// Returns the empty string when no object is present.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return jsonBlob.FindString(text)
}
