package sources_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citypulse/backend/internal/models"
	"github.com/citypulse/backend/internal/sources"
)

func TestSocialFetchParsesPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Contains(t, r.URL.Query().Get("q"), "Springfield")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"posts":[
			{"id":"p1","title":"Street festival downtown","text":"music everywhere","author":"ana","score":42,"created_utc":1719400000,"subreddit":"springfield"},
			{"title":"Traffic jam on 5th","text":"avoid it","author":"bo","score":7,"created_utc":1719400100,"subreddit":"springfield"}
		]}`))
	}))
	defer srv.Close()

	adapter := sources.NewSocial(srv.URL, 2*time.Second)
	require.Equal(t, models.SourceSocial, adapter.Name())

	records, err := adapter.Fetch(context.Background(), "Springfield", "events", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "p1", records[0].ID)
	require.Equal(t, models.SourceSocial, records[0].SourceType)
	require.Equal(t, "Springfield", records[0].Location)
	require.Equal(t, "Street festival downtown", records[0].Payload["title"])
	// Missing upstream ID gets a generated one.
	require.NotEmpty(t, records[1].ID)
}

func TestSocialFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	adapter := sources.NewSocial(srv.URL, 2*time.Second)
	_, err := adapter.Fetch(context.Background(), "Springfield", "events", 10)
	require.ErrorIs(t, err, sources.ErrUnavailable)
}

func TestNewsFetchParsesFeed(t *testing.T) {
	feed := `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item>
  <title>Springfield marathon this weekend</title>
  <link>https://example.com/a</link>
  <guid>guid-1</guid>
  <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
  <description>Roads closed downtown</description>
  <source url="https://example.com">Example Times</source>
</item>
<item>
  <title>New park opens</title>
  <link>https://example.com/b</link>
  <guid>guid-2</guid>
  <pubDate>bogus date</pubDate>
  <description></description>
</item>
</channel></rss>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rss/search", r.URL.Path)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	adapter := sources.NewNews(srv.URL, 2*time.Second)
	records, err := adapter.Fetch(context.Background(), "Springfield", "", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "guid-1", records[0].ID)
	require.Equal(t, "Springfield marathon this weekend", records[0].Payload["title"])
	require.Equal(t, "2006-01-02T22:04:05Z", records[0].Payload["published_at"])
	require.Equal(t, "Example Times", records[0].Payload["source"])
	// Unparseable pubDate passes through raw.
	require.Equal(t, "bogus date", records[1].Payload["published_at"])
}

func TestNewsFetchRespectsLimit(t *testing.T) {
	feed := `<?xml version="1.0"?><rss><channel>` +
		`<item><title>a</title><guid>1</guid></item>` +
		`<item><title>b</title><guid>2</guid></item>` +
		`<item><title>c</title><guid>3</guid></item>` +
		`</channel></rss>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	adapter := sources.NewNews(srv.URL, 2*time.Second)
	records, err := adapter.Fetch(context.Background(), "Springfield", "", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestPlacesFetchParsesPlaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/places", r.URL.Path)
		require.Equal(t, "Springfield", r.URL.Query().Get("near"))
		require.Equal(t, "restaurants", r.URL.Query().Get("category"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"places":[
			{"id":"pl1","name":"Corner Bistro","address":"1 Main St","rating":4.4,"types":["restaurant"],"lat":39.78,"lng":-89.65,"open_now":true}
		]}`))
	}))
	defer srv.Close()

	adapter := sources.NewPlaces(srv.URL, 2*time.Second)
	records, err := adapter.Fetch(context.Background(), "Springfield", "restaurants", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, models.SourcePOI, rec.SourceType)
	require.Equal(t, "Corner Bistro", rec.Payload["name"])
	require.NotNil(t, rec.Coordinates)
	require.InDelta(t, 39.78, rec.Coordinates.Lat, 1e-9)
	require.Equal(t, true, rec.Payload["open_now"])
}

func TestPlacesFetchConnectionRefused(t *testing.T) {
	adapter := sources.NewPlaces("http://127.0.0.1:1", 500*time.Millisecond)
	_, err := adapter.Fetch(context.Background(), "Springfield", "", 5)
	require.ErrorIs(t, err, sources.ErrUnavailable)
}

type stubReportReader struct {
	reports []models.UserReport
	err     error
}

func (s *stubReportReader) SearchByLocation(_ context.Context, _, _ string, _ int) ([]models.UserReport, error) {
	return s.reports, s.err
}

func TestReportsFetchConvertsToRecords(t *testing.T) {
	reader := &stubReportReader{reports: []models.UserReport{
		{
			ID:          "r1",
			UserID:      "u1",
			Coordinates: models.LatLng{Lat: 40, Lng: -73},
			Location:    "Springfield",
			Description: "pothole on elm street",
			CreatedAt:   time.Now().UTC(),
		},
	}}

	adapter := sources.NewReports(reader)
	require.Equal(t, models.SourceUserReport, adapter.Name())

	records, err := adapter.Fetch(context.Background(), "Springfield", "", 50)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "r1", records[0].ID)
	require.Equal(t, "u1", records[0].UserID)
	require.NotNil(t, records[0].Coordinates)
	require.Equal(t, "pothole on elm street", records[0].Payload["description"])
}

func TestReportsFetchStoreFailure(t *testing.T) {
	adapter := sources.NewReports(&stubReportReader{err: errors.New("es down")})
	_, err := adapter.Fetch(context.Background(), "Springfield", "", 50)
	require.ErrorIs(t, err, sources.ErrUnavailable)
}
