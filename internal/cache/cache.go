// Package cache implements the unified per-location data cache: one entry
// per (location, source_type) key with staleness-aware read-through
// refresh. The single concurrency-sensitive invariant lives here: at most
// one in-flight upstream fetch per key, with concurrent stale readers
// sharing that fetch.
package cache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/citypulse/backend/internal/metrics"
	"github.com/citypulse/backend/internal/models"
	"github.com/citypulse/backend/internal/sources"
	"github.com/citypulse/backend/internal/store"
)

const defaultTTL = 15 * time.Minute

// Unified is the keyed (location x source_type) record cache.
type Unified struct {
	store      store.CacheStore
	adapters   map[models.SourceType]sources.Adapter
	ttls       map[models.SourceType]time.Duration
	fetchLimit int
	log        *slog.Logger
	group      singleflight.Group

	now func() time.Time
}

// New builds the cache around an injected store and adapter set. ttls may
// omit sources; omitted ones default to 15 minutes.
func New(cs store.CacheStore, adapters []sources.Adapter, ttls map[models.SourceType]time.Duration, fetchLimit int, log *slog.Logger) *Unified {
	byType := make(map[models.SourceType]sources.Adapter, len(adapters))
	for _, a := range adapters {
		byType[a.Name()] = a
	}
	if fetchLimit <= 0 {
		fetchLimit = 20
	}
	return &Unified{
		store:      cs,
		adapters:   byType,
		ttls:       ttls,
		fetchLimit: fetchLimit,
		log:        log,
		now:        time.Now,
	}
}

func (u *Unified) ttl(st models.SourceType) time.Duration {
	if ttl, ok := u.ttls[st]; ok && ttl > 0 {
		return ttl
	}
	return defaultTTL
}

// Get returns records for one (location, source_type) key fetched within
// the last hours, transparently refreshing a missing or stale entry.
// Failures never surface: a failed refresh degrades to the stale entry
// when one exists and to an empty list otherwise. Deciding whether an
// empty result should escalate belongs to the dispatcher.
func (u *Unified) Get(ctx context.Context, location string, st models.SourceType, hours int, forceRefresh bool) []models.Record {
	now := u.now()

	entry, err := u.store.Load(ctx, location, st)
	if err != nil {
		u.log.Warn("cache load failed, treating as miss",
			slog.String("location", location),
			slog.String("source", string(st)),
			slog.Any("err", err),
		)
		entry = nil
	}

	if entry != nil && !forceRefresh && !entry.Stale(u.ttl(st), now) {
		metrics.CacheHits.WithLabelValues(string(st)).Inc()
		return windowed(entry.Records, now, hours)
	}
	metrics.CacheMisses.WithLabelValues(string(st)).Inc()

	fresh, refreshErr := u.refresh(ctx, location, st)
	if refreshErr != nil {
		metrics.AdapterFailures.WithLabelValues(string(st)).Inc()
		u.log.Warn("refresh failed",
			slog.String("location", location),
			slog.String("source", string(st)),
			slog.Any("err", refreshErr),
		)
		if entry != nil {
			// Degraded: serve the stale generation rather than nothing.
			return windowed(entry.Records, now, hours)
		}
		return []models.Record{}
	}

	return windowed(fresh.Records, now, hours)
}

// refresh performs the coalesced upstream fetch for one key. Concurrent
// callers for the same key share a single adapter call.
func (u *Unified) refresh(ctx context.Context, location string, st models.SourceType) (models.CacheEntry, error) {
	key := cacheFlightKey(location, st)

	v, err, shared := u.group.Do(key, func() (any, error) {
		adapter, ok := u.adapters[st]
		if !ok {
			return models.CacheEntry{Location: location, SourceType: st, LastRefreshedAt: u.now()}, nil
		}

		records, fetchErr := adapter.Fetch(ctx, location, "", u.fetchLimit)
		if fetchErr != nil {
			metrics.CacheRefreshes.WithLabelValues(string(st), "error").Inc()
			return nil, fetchErr
		}

		entry := models.CacheEntry{
			Location:        location,
			SourceType:      st,
			Records:         records,
			LastRefreshedAt: u.now(),
		}
		if saveErr := u.store.Save(ctx, entry); saveErr != nil {
			u.log.Warn("cache save failed", slog.String("location", location), slog.String("source", string(st)), slog.Any("err", saveErr))
		}
		metrics.CacheRefreshes.WithLabelValues(string(st), "ok").Inc()
		return entry, nil
	})

	if shared {
		metrics.CacheCoalesced.WithLabelValues(string(st)).Inc()
	}
	if err != nil {
		return models.CacheEntry{}, err
	}
	return v.(models.CacheEntry), nil
}

// GetAll reads every known source type for a location.
func (u *Unified) GetAll(ctx context.Context, location string, hours int, forceRefresh bool) map[models.SourceType][]models.Record {
	out := make(map[models.SourceType][]models.Record, len(models.KnownSourceTypes()))
	for _, st := range models.KnownSourceTypes() {
		out[st] = u.Get(ctx, location, st, hours, forceRefresh)
	}
	return out
}

// Aggregate unions the per-source reads into one view. Records that appear
// under multiple keys (same ID) are reported once.
func (u *Unified) Aggregate(ctx context.Context, location string, hours int) models.AggregatedView {
	view := models.AggregatedView{
		Location:    location,
		Hours:       hours,
		Sources:     make(map[models.SourceType][]models.Record),
		GeneratedAt: u.now(),
	}

	seen := make(map[string]struct{})
	for _, st := range models.KnownSourceTypes() {
		records := u.Get(ctx, location, st, hours, false)
		kept := make([]models.Record, 0, len(records))
		for _, r := range records {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			kept = append(kept, r)
		}
		view.Sources[st] = kept
	}
	return view
}

// Invalidate drops cached entries for a location. A nil source type drops
// every known type.
func (u *Unified) Invalidate(ctx context.Context, location string, st *models.SourceType) {
	targets := models.KnownSourceTypes()
	if st != nil {
		targets = []models.SourceType{*st}
	}
	for _, target := range targets {
		if err := u.store.Delete(ctx, location, target); err != nil {
			u.log.Warn("invalidate failed", slog.String("location", location), slog.String("source", string(target)), slog.Any("err", err))
		}
	}
}

// Warm prefetches every source for a location in the background. Best
// effort: errors are already absorbed by Get and results are discarded.
func (u *Unified) Warm(location string, hours int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, st := range models.KnownSourceTypes() {
			u.Get(ctx, location, st, hours, false)
		}
	}()
}

// cacheFlightKey normalizes the same way the store keys entries, so two
// spellings of one location share one in-flight refresh.
func cacheFlightKey(location string, st models.SourceType) string {
	return strings.ToLower(strings.TrimSpace(location)) + "|" + string(st)
}

// windowed keeps records fetched within the last hours. hours <= 0 means
// no window.
func windowed(records []models.Record, now time.Time, hours int) []models.Record {
	if hours <= 0 {
		out := make([]models.Record, len(records))
		copy(out, records)
		return out
	}

	cutoff := now.Add(-time.Duration(hours) * time.Hour)
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if !r.FetchedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
