package cache_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citypulse/backend/internal/cache"
	"github.com/citypulse/backend/internal/models"
	"github.com/citypulse/backend/internal/sources"
	"github.com/citypulse/backend/internal/store"
)

type stubAdapter struct {
	source  models.SourceType
	calls   atomic.Int64
	delay   time.Duration
	err     error
	records func(call int64) []models.Record
}

func (s *stubAdapter) Name() models.SourceType { return s.source }

func (s *stubAdapter) Fetch(ctx context.Context, location, topic string, limit int) ([]models.Record, error) {
	call := s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.records != nil {
		return s.records(call), nil
	}
	return []models.Record{{
		ID:         fmt.Sprintf("%s-%d", s.source, call),
		SourceType: s.source,
		Location:   location,
		FetchedAt:  time.Now().UTC(),
	}}, nil
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCache(t *testing.T, adapters ...sources.Adapter) (*cache.Unified, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	ttls := map[models.SourceType]time.Duration{
		models.SourceSocial: 15 * time.Minute,
		models.SourceNews:   30 * time.Minute,
	}
	return cache.New(ms, adapters, ttls, 20, nopLogger()), ms
}

func TestGetPopulatesAndServesFromCache(t *testing.T) {
	adapter := &stubAdapter{source: models.SourceSocial}
	c, _ := newCache(t, adapter)
	ctx := context.Background()

	first := c.Get(ctx, "Springfield", models.SourceSocial, 24, false)
	require.Len(t, first, 1)
	require.EqualValues(t, 1, adapter.calls.Load())

	// Within the TTL window: no second upstream call, identical records.
	second := c.Get(ctx, "Springfield", models.SourceSocial, 24, false)
	require.EqualValues(t, 1, adapter.calls.Load())
	require.Equal(t, first[0].ID, second[0].ID)
}

func TestGetForceRefreshBypassesFreshEntry(t *testing.T) {
	adapter := &stubAdapter{source: models.SourceSocial}
	c, _ := newCache(t, adapter)
	ctx := context.Background()

	c.Get(ctx, "Springfield", models.SourceSocial, 24, false)
	c.Get(ctx, "Springfield", models.SourceSocial, 24, true)
	require.EqualValues(t, 2, adapter.calls.Load())
}

func TestRefreshCoalescing(t *testing.T) {
	adapter := &stubAdapter{source: models.SourceSocial, delay: 50 * time.Millisecond}
	c, _ := newCache(t, adapter)

	const readers = 16
	var wg sync.WaitGroup
	results := make([][]models.Record, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(context.Background(), "Springfield", models.SourceSocial, 24, false)
		}(i)
	}
	wg.Wait()

	// All N concurrent readers of the same stale key share one fetch.
	require.EqualValues(t, 1, adapter.calls.Load())
	for _, r := range results {
		require.Len(t, r, 1)
		require.Equal(t, results[0][0].ID, r[0].ID)
	}
}

func TestConcurrentReadersNeverSeeMixedGenerations(t *testing.T) {
	// Each refresh generation is two records tagged with the call number.
	adapter := &stubAdapter{
		source: models.SourceSocial,
		records: func(call int64) []models.Record {
			return []models.Record{
				{ID: fmt.Sprintf("gen%d-a", call), SourceType: models.SourceSocial, FetchedAt: time.Now().UTC()},
				{ID: fmt.Sprintf("gen%d-b", call), SourceType: models.SourceSocial, FetchedAt: time.Now().UTC()},
			}
		},
	}
	c, _ := newCache(t, adapter)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				records := c.Get(context.Background(), "Springfield", models.SourceSocial, 24, j%5 == 0)
				if len(records) == 0 {
					continue
				}
				require.Len(t, records, 2)
				// Both records must come from the same generation.
				require.Equal(t, records[0].ID[:len(records[0].ID)-2], records[1].ID[:len(records[1].ID)-2])
			}
		}()
	}
	wg.Wait()
}

func TestGetReturnsStaleOnAdapterFailure(t *testing.T) {
	adapter := &stubAdapter{source: models.SourceSocial}
	c, ms := newCache(t, adapter)
	ctx := context.Background()

	first := c.Get(ctx, "Springfield", models.SourceSocial, 24, false)
	require.Len(t, first, 1)

	// Entry goes stale, adapter starts failing.
	entry, err := ms.Load(ctx, "Springfield", models.SourceSocial)
	require.NoError(t, err)
	entry.LastRefreshedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, ms.Save(ctx, *entry))
	adapter.err = sources.ErrUnavailable

	degraded := c.Get(ctx, "Springfield", models.SourceSocial, 24, false)
	require.Len(t, degraded, 1)
	require.Equal(t, first[0].ID, degraded[0].ID)
}

func TestGetReturnsEmptyWhenNoEntryAndAdapterFails(t *testing.T) {
	adapter := &stubAdapter{source: models.SourceSocial, err: errors.New("boom")}
	c, _ := newCache(t, adapter)

	records := c.Get(context.Background(), "Springfield", models.SourceSocial, 24, false)
	require.NotNil(t, records)
	require.Empty(t, records)
}

func TestGetTimeWindowFiltersOldRecords(t *testing.T) {
	now := time.Now().UTC()
	adapter := &stubAdapter{
		source: models.SourceSocial,
		records: func(int64) []models.Record {
			return []models.Record{
				{ID: "recent", SourceType: models.SourceSocial, FetchedAt: now.Add(-1 * time.Hour)},
				{ID: "old", SourceType: models.SourceSocial, FetchedAt: now.Add(-30 * time.Hour)},
			}
		},
	}
	c, _ := newCache(t, adapter)

	records := c.Get(context.Background(), "Springfield", models.SourceSocial, 24, false)
	require.Len(t, records, 1)
	require.Equal(t, "recent", records[0].ID)
}

func TestAggregateUnionsAllSourcesWithoutDuplicates(t *testing.T) {
	now := time.Now().UTC()
	social := &stubAdapter{source: models.SourceSocial, records: func(int64) []models.Record {
		return []models.Record{
			{ID: "s1", SourceType: models.SourceSocial, FetchedAt: now},
			{ID: "shared", SourceType: models.SourceSocial, FetchedAt: now},
		}
	}}
	news := &stubAdapter{source: models.SourceNews, records: func(int64) []models.Record {
		return []models.Record{
			{ID: "n1", SourceType: models.SourceNews, FetchedAt: now},
			{ID: "shared", SourceType: models.SourceNews, FetchedAt: now},
		}
	}}
	poi := &stubAdapter{source: models.SourcePOI, err: sources.ErrUnavailable}
	c, _ := newCache(t, social, news, poi)

	view := c.Aggregate(context.Background(), "Springfield", 24)
	require.Equal(t, "Springfield", view.Location)
	require.Len(t, view.Sources[models.SourceSocial], 2)
	// Duplicate ID across sources is reported once.
	require.Len(t, view.Sources[models.SourceNews], 1)
	// Failed and absent sources contribute empty slices, not errors.
	require.Empty(t, view.Sources[models.SourcePOI])
	require.Empty(t, view.Sources[models.SourceUserReport])
	require.Equal(t, 3, view.Total())
}

func TestInvalidateForcesNextReadToRefresh(t *testing.T) {
	adapter := &stubAdapter{source: models.SourceSocial}
	c, _ := newCache(t, adapter)
	ctx := context.Background()

	c.Get(ctx, "Springfield", models.SourceSocial, 24, false)
	st := models.SourceSocial
	c.Invalidate(ctx, "Springfield", &st)
	c.Get(ctx, "Springfield", models.SourceSocial, 24, false)

	require.EqualValues(t, 2, adapter.calls.Load())
}

func TestInvalidateAllSources(t *testing.T) {
	social := &stubAdapter{source: models.SourceSocial}
	news := &stubAdapter{source: models.SourceNews}
	c, _ := newCache(t, social, news)
	ctx := context.Background()

	c.Get(ctx, "Springfield", models.SourceSocial, 24, false)
	c.Get(ctx, "Springfield", models.SourceNews, 24, false)
	c.Invalidate(ctx, "Springfield", nil)
	c.Get(ctx, "Springfield", models.SourceSocial, 24, false)
	c.Get(ctx, "Springfield", models.SourceNews, 24, false)

	require.EqualValues(t, 2, social.calls.Load())
	require.EqualValues(t, 2, news.calls.Load())
}
