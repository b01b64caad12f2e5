// Package store owns document persistence: user reports and cache entry
// snapshots, both in Elasticsearch. Geospatial queries are deliberately
// not pushed down here; the geo filter runs in memory over bounded result
// sets so the indices stay free of compound geo mappings.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/citypulse/backend/internal/models"
)

// Client wraps go-elasticsearch with helpers tailored to this project.
type Client struct {
	es        *elasticsearch.Client
	reports   string
	snapshots string
	log       *slog.Logger
}

// New instantiates the Elasticsearch client.
func New(addr, reportsIndex, snapshotsIndex string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, reports: reportsIndex, snapshots: snapshotsIndex, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

// Health pings the cluster to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// IndexReport writes a user report document.
func (c *Client) IndexReport(ctx context.Context, report models.UserReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.reports,
		DocumentID: report.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index report: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index report failed: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

// SearchByLocation returns reports matching a location label, optionally
// narrowed by topic keywords.
func (c *Client) SearchByLocation(ctx context.Context, location, topic string, limit int) ([]models.UserReport, error) {
	must := []map[string]any{
		{"match": map[string]any{"location": location}},
	}
	if topic != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  topic,
				"fields": []string{"description^2", "keywords"},
			},
		})
	}
	return c.searchReports(ctx, map[string]any{"bool": map[string]any{"must": must}}, limit)
}

// SearchByUser returns reports owned by one user, newest first.
func (c *Client) SearchByUser(ctx context.Context, userID string, limit int) ([]models.UserReport, error) {
	query := map[string]any{
		"term": map[string]any{"user_id": userID},
	}
	return c.searchReports(ctx, query, limit)
}

// FetchGeotagged returns up to limit reports regardless of location, for
// the in-memory radius filter.
func (c *Client) FetchGeotagged(ctx context.Context, limit int) ([]models.UserReport, error) {
	return c.searchReports(ctx, map[string]any{"match_all": map[string]any{}}, limit)
}

func (c *Client) searchReports(ctx context.Context, query map[string]any, limit int) ([]models.UserReport, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	body := map[string]any{
		"size":  limit,
		"query": query,
		"sort": []map[string]any{
			{"created_at": map[string]any{"order": "desc"}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.reports),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search reports failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.UserReport `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	reports := make([]models.UserReport, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		reports = append(reports, hit.Source)
	}
	return reports, nil
}

func snapshotID(location string, st models.SourceType) string {
	return strings.ToLower(strings.TrimSpace(location)) + "|" + string(st)
}

// SaveSnapshot persists one cache entry wholesale. The document is always
// replaced as a unit; readers load either the old or the new generation.
func (c *Client) SaveSnapshot(ctx context.Context, entry models.CacheEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.snapshots,
		DocumentID: snapshotID(entry.Location, entry.SourceType),
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("save snapshot failed: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

// LoadSnapshot fetches one cache entry; (nil, nil) when absent.
func (c *Client) LoadSnapshot(ctx context.Context, location string, st models.SourceType) (*models.CacheEntry, error) {
	req := esapi.GetRequest{
		Index:      c.snapshots,
		DocumentID: snapshotID(location, st),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("load snapshot failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Source models.CacheEntry `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &parsed.Source, nil
}

// DeleteSnapshot removes one cache entry document. Missing is not an error.
func (c *Client) DeleteSnapshot(ctx context.Context, location string, st models.SourceType) error {
	req := esapi.DeleteRequest{
		Index:      c.snapshots,
		DocumentID: snapshotID(location, st),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("delete snapshot failed: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

// DeleteReportsOlderThan removes reports older than maxAge using batched
// delete-by-query. It loops until a batch deletes fewer documents than the
// requested batch size.
func (c *Client) DeleteReportsOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	return c.deleteOlderThan(ctx, c.reports, "created_at", maxAge, batchSize)
}

// DeleteSnapshotsOlderThan prunes cache snapshots not refreshed in maxAge.
func (c *Client) DeleteSnapshotsOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	return c.deleteOlderThan(ctx, c.snapshots, "last_refreshed_at", maxAge, batchSize)
}

func (c *Client) deleteOlderThan(ctx context.Context, index, field string, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"query": map[string]any{
				"range": map[string]any{
					field: map[string]any{
						"lte": cutoff,
					},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}
