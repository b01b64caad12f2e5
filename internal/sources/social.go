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

const socialMaxLimit = 100

// Social searches a reddit-style post API for recent chatter about a
// location and topic.
type Social struct {
	base   string
	client *http.Client
}

// NewSocial builds the social adapter. timeout bounds every Fetch call.
func NewSocial(base string, timeout time.Duration) *Social {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Social{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Social) Name() models.SourceType { return models.SourceSocial }

type socialResponse struct {
	Posts []struct {
		ID         string  `json:"id"`
		Title      string  `json:"title"`
		Text       string  `json:"text"`
		Author     string  `json:"author"`
		Score      int     `json:"score"`
		CreatedUTC float64 `json:"created_utc"`
		Subreddit  string  `json:"subreddit"`
	} `json:"posts"`
}

// Fetch returns recent posts mentioning the location and topic.
func (s *Social) Fetch(ctx context.Context, location, topic string, limit int) ([]models.Record, error) {
	limit = clampLimit(limit, socialMaxLimit)

	q := url.Values{}
	q.Set("q", location+" "+topic)
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("sort", "new")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: social api http %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed socialResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	now := time.Now().UTC()
	records := make([]models.Record, 0, len(parsed.Posts))
	for _, p := range parsed.Posts {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		records = append(records, models.Record{
			ID:         id,
			SourceType: models.SourceSocial,
			Location:   location,
			Payload: map[string]any{
				"title":      p.Title,
				"text":       p.Text,
				"author":     p.Author,
				"score":      p.Score,
				"subreddit":  p.Subreddit,
				"created_at": time.Unix(int64(p.CreatedUTC), 0).UTC().Format(time.RFC3339),
			},
			FetchedAt: now,
		})
	}
	return records, nil
}
