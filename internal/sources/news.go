package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/citypulse/backend/internal/models"
)

const newsMaxLimit = 50

// News pulls recent articles for a location from a Google News style RSS
// search feed.
type News struct {
	base   string
	client *http.Client
}

// NewNews builds the news adapter.
func NewNews(base string, timeout time.Duration) *News {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &News{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *News) Name() models.SourceType { return models.SourceNews }

type rssFeed struct {
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	GUID        string    `xml:"guid"`
	PubDate     string    `xml:"pubDate"`
	Description string    `xml:"description"`
	Source      rssSource `xml:"source"`
}

type rssSource struct {
	URL  string `xml:"url,attr"`
	Text string `xml:",chardata"`
}

// Fetch returns recent articles mentioning the location (and topic when it
// adds signal beyond the intent tag).
func (n *News) Fetch(ctx context.Context, location, topic string, limit int) ([]models.Record, error) {
	limit = clampLimit(limit, newsMaxLimit)

	query := location
	if topic != "" && !strings.EqualFold(topic, location) {
		query = location + " " + topic
	}

	u := fmt.Sprintf("%s/rss/search?q=%s&hl=en-IN&gl=IN&ceid=IN:en", n.base, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) citypulse/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, text/xml;q=0.8")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: news rss http %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var feed rssFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return nil, fmt.Errorf("%w: parse rss: %v", ErrUnavailable, err)
	}

	now := time.Now().UTC()
	items := feed.Channel.Items
	if len(items) > limit {
		items = items[:limit]
	}

	records := make([]models.Record, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.GUID)
		if id == "" {
			id = uuid.NewString()
		}
		records = append(records, models.Record{
			ID:         id,
			SourceType: models.SourceNews,
			Location:   location,
			Payload: map[string]any{
				"title":        strings.TrimSpace(item.Title),
				"description":  strings.TrimSpace(item.Description),
				"url":          item.Link,
				"published_at": parsePubDate(item.PubDate),
				"source":       strings.TrimSpace(item.Source.Text),
			},
			FetchedAt: now,
		})
	}
	return records, nil
}

func parsePubDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, f := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts.UTC().Format(time.RFC3339)
		}
	}
	return raw
}
