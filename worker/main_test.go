package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/citypulse/backend/internal/config"
	"github.com/citypulse/backend/internal/dedupe"
	"github.com/citypulse/backend/internal/models"
)

type stubIndexer struct {
	reports []models.UserReport
	err     error
}

func (s *stubIndexer) IndexReport(_ context.Context, report models.UserReport) error {
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, report)
	return nil
}

func workerConfig() *config.Worker {
	return &config.Worker{
		Common: config.Common{
			ElasticsearchAddr: "http://test",
			ReportsIndex:      "user_reports",
			SnapshotsIndex:    "cache_snapshots",
		},
		KeywordLimit:     5,
		KeywordMinLength: 4,
	}
}

func TestProcessMessageIndexesReport(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := dedupe.NewCache(100, time.Hour)
	idx := &stubIndexer{}

	payload := rawReport{
		UserID:      "u42",
		Lat:         12.9716,
		Lng:         77.5946,
		Location:    "Cubbon Park",
		Description: "Massive waterlogging near the underpass after the downpour",
		PhotoURL:    "https://img.example/1.jpg",
		Timestamp:   "2024-01-02T15:04:05Z",
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	msg := kafka.Message{Value: data}

	require.NoError(t, processMessage(context.Background(), log, idx, cache, workerConfig(), msg))
	require.Len(t, idx.reports, 1)

	report := idx.reports[0]
	require.NotEmpty(t, report.ID)
	require.Equal(t, "u42", report.UserID)
	require.Equal(t, "Cubbon Park", report.Location)
	require.Equal(t, 12.9716, report.Coordinates.Lat)
	require.NotEmpty(t, report.Keywords)
	require.Contains(t, report.Keywords, "waterlogging")

	// same content again is a duplicate despite the fresh ID
	require.NoError(t, processMessage(context.Background(), log, idx, cache, workerConfig(), msg))
	require.Len(t, idx.reports, 1)
}

func TestProcessMessageRejectsInvalidReports(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := dedupe.NewCache(100, time.Hour)
	idx := &stubIndexer{}
	cfg := workerConfig()

	cases := map[string]rawReport{
		"missing user": {Lat: 1, Lng: 1, Description: "something"},
		"bad latitude": {UserID: "u1", Lat: 95, Lng: 1, Description: "something"},
		"empty body":   {UserID: "u1", Lat: 1, Lng: 1},
	}
	for name, payload := range cases {
		data, err := json.Marshal(payload)
		require.NoError(t, err)

		require.Error(t, processMessage(context.Background(), log, idx, cache, cfg, kafka.Message{Value: data}), name)
	}
	require.Empty(t, idx.reports)
}

func TestProcessMessageIndexerFailureIsNotMarkedSeen(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := dedupe.NewCache(100, time.Hour)
	idx := &stubIndexer{err: errors.New("es down")}
	cfg := workerConfig()

	payload := rawReport{UserID: "u1", Lat: 1, Lng: 1, Description: "pothole on main road"}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	msg := kafka.Message{Value: data}

	require.Error(t, processMessage(context.Background(), log, idx, cache, cfg, msg))

	// retry after recovery must index
	idx.err = nil
	require.NoError(t, processMessage(context.Background(), log, idx, cache, cfg, msg))
	require.Len(t, idx.reports, 1)
}

func TestProcessMessageDefaultsTimestamp(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := dedupe.NewCache(100, time.Hour)
	idx := &stubIndexer{}

	payload := rawReport{UserID: "u7", Lat: 10, Lng: 10, Description: "street light out near the junction"}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	require.NoError(t, processMessage(context.Background(), log, idx, cache, workerConfig(), kafka.Message{Value: data}))
	require.Len(t, idx.reports, 1)
	require.WithinDuration(t, time.Now().UTC(), idx.reports[0].CreatedAt, time.Minute)
}

func TestParseTimestamp(t *testing.T) {
	ts := parseTimestamp("2024-02-03T04:05:06Z")
	require.False(t, ts.IsZero())
	require.Equal(t, 2024, ts.Year())
	require.Equal(t, time.UTC, ts.Location())
	require.Equal(t, 2, int(ts.Month()))
	require.Equal(t, 3, ts.Day())
	require.Equal(t, 4, ts.Hour())

	legacy := parseTimestamp("2024-02-03 04:05:06")
	require.False(t, legacy.IsZero())
	require.Equal(t, 2024, legacy.Year())

	require.True(t, parseTimestamp("invalid").IsZero())
}
