package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/citypulse/backend/internal/cache"
	"github.com/citypulse/backend/internal/config"
	"github.com/citypulse/backend/internal/dispatch"
	"github.com/citypulse/backend/internal/fallback"
	"github.com/citypulse/backend/internal/geo"
	"github.com/citypulse/backend/internal/intent"
	"github.com/citypulse/backend/internal/llm"
	"github.com/citypulse/backend/internal/logger"
	"github.com/citypulse/backend/internal/models"
	"github.com/citypulse/backend/internal/mood"
	"github.com/citypulse/backend/internal/sources"
	"github.com/citypulse/backend/internal/store"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	st, err := store.New(cfg.ElasticsearchAddr, cfg.ReportsIndex, cfg.SnapshotsIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	var model llm.Client
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGemini(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Error("init gemini, continuing without model", slog.Any("err", err))
		} else {
			model = llm.WithTimeout(gemini, cfg.ModelTimeout)
		}
	} else {
		log.Warn("GEMINI_API_KEY not set, generative fallback disabled")
	}

	adapters := []sources.Adapter{
		sources.NewSocial(cfg.SocialAPIBase, cfg.AdapterTimeout),
		sources.NewNews(cfg.NewsFeedBase, cfg.AdapterTimeout),
		sources.NewPlaces(cfg.PlacesAPIBase, cfg.AdapterTimeout),
		sources.NewReports(st),
	}
	unified := cache.New(store.NewESStore(st), adapters, cfg.CacheTTLs, cfg.MaxLimit, log)

	rules := mood.DefaultRules(cfg.MoodHappyThreshold, cfg.MoodTenseThreshold)
	if cfg.MoodRulesPath != "" {
		rules, err = mood.LoadRules(cfg.MoodRulesPath, cfg.MoodHappyThreshold, cfg.MoodTenseThreshold)
		if err != nil {
			log.Error("load mood rules", slog.Any("err", err))
			os.Exit(1)
		}
	}
	moods := mood.New(unified, rules, log)

	dispatcher := dispatch.New(
		intent.New(cfg.IntentThreshold, model, log),
		unified,
		moods,
		fallback.New(model, log),
		dispatch.Options{
			DefaultLocation: cfg.DefaultLocation,
			DefaultHours:    cfg.DefaultHours,
			RequestTimeout:  cfg.RequestTimeout,
			WarmOnSuccess:   cfg.WarmOnSuccess,
		},
		log,
	)

	srv := &server{
		log:        log,
		cfg:        cfg,
		store:      st,
		cache:      unified,
		moods:      moods,
		dispatcher: dispatcher,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/chat", srv.handleChat)
	r.Get("/location_mood", srv.handleLocationMood)
	r.Get("/unified_data", srv.handleUnifiedData)
	r.Get("/unified_data/aggregated", srv.handleAggregated)
	r.Post("/unified_data/invalidate", srv.handleInvalidate)
	r.Get("/location_event_photos", srv.handleEventPhotos)
	r.Get("/users/{id}/reports", srv.handleUserReports)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

// reportStore is the slice of the document store the handlers read from.
type reportStore interface {
	Health(ctx context.Context) error
	SearchByUser(ctx context.Context, userID string, limit int) ([]models.UserReport, error)
	FetchGeotagged(ctx context.Context, limit int) ([]models.UserReport, error)
}

type server struct {
	log        *slog.Logger
	cfg        *config.API
	store      reportStore
	cache      *cache.Unified
	moods      *mood.Aggregator
	dispatcher *dispatch.Dispatcher
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	writeJSON(w, http.StatusOK, s.dispatcher.Handle(r.Context(), req.UserID, req.Message))
}

func (s *server) handleLocationMood(w http.ResponseWriter, r *http.Request) {
	location := s.location(r)
	hours := clampInt(r.URL.Query().Get("hours"), s.cfg.DefaultHours, 168)

	if raw := strings.TrimSpace(r.URL.Query().Get("datetime")); raw != "" {
		converted, err := hoursSince(raw, time.Now())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		hours = converted
	}

	writeJSON(w, http.StatusOK, s.moods.Compute(r.Context(), location, hours))
}

// hoursSince converts an absolute start time into the hours-lookback
// window the cache reads in, rounded up to whole hours and capped at a
// week like the hours parameter itself.
func hoursSince(raw string, now time.Time) (int, error) {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("datetime must be RFC3339: %q", raw)
	}
	if !ts.Before(now) {
		return 0, fmt.Errorf("datetime must be in the past")
	}

	hours := int(math.Ceil(now.Sub(ts).Hours()))
	if hours < 1 {
		hours = 1
	}
	if hours > 168 {
		hours = 168
	}
	return hours, nil
}

func (s *server) handleUnifiedData(w http.ResponseWriter, r *http.Request) {
	location := s.location(r)
	hours := clampInt(r.URL.Query().Get("hours"), s.cfg.DefaultHours, 168)
	refresh := parseBool(r.URL.Query().Get("refresh"))

	if raw := strings.TrimSpace(r.URL.Query().Get("source")); raw != "" {
		st, err := models.ParseSourceType(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		records := s.cache.Get(r.Context(), location, st, hours, refresh)
		writeJSON(w, http.StatusOK, map[string]any{
			"location": location,
			"source":   st,
			"hours":    hours,
			"count":    len(records),
			"records":  records,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"location": location,
		"hours":    hours,
		"sources":  s.cache.GetAll(r.Context(), location, hours, refresh),
	})
}

func (s *server) handleAggregated(w http.ResponseWriter, r *http.Request) {
	location := s.location(r)
	hours := clampInt(r.URL.Query().Get("hours"), s.cfg.DefaultHours, 168)

	writeJSON(w, http.StatusOK, s.cache.Aggregate(r.Context(), location, hours))
}

func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	location := strings.TrimSpace(r.URL.Query().Get("location"))
	if location == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "location is required"})
		return
	}

	var st *models.SourceType
	if raw := strings.TrimSpace(r.URL.Query().Get("source")); raw != "" {
		parsed, err := models.ParseSourceType(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		st = &parsed
	}

	s.cache.Invalidate(r.Context(), location, st)
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

type photoItem struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id,omitempty"`
	PhotoURL    string         `json:"photo_url"`
	Description string         `json:"description,omitempty"`
	Coordinates *models.LatLng `json:"coordinates,omitempty"`
	FetchedAt   time.Time      `json:"fetched_at"`
}

// geoScanLimit bounds the candidate set a coordinate photo query
// radius-filters in memory.
const geoScanLimit = 1000

func (s *server) handleEventPhotos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	location := s.location(r)
	hours := clampInt(q.Get("hours"), s.cfg.DefaultHours, 168)
	limit := clampInt(q.Get("limit"), s.cfg.DefaultLimit, s.cfg.MaxLimit)
	radius := parseFloat(q.Get("radius_km"), s.cfg.DefaultRadiusKm)

	lat, latOK := parseCoord(q.Get("lat"))
	lng, lngOK := parseCoord(q.Get("lng"))
	if latOK != lngOK {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lat and lng must be supplied together"})
		return
	}

	var records []models.Record
	if latOK {
		// Coordinate queries scan every geotagged report: location labels
		// are free text, so they must not bound the candidate set.
		reports, err := s.store.FetchGeotagged(r.Context(), geoScanLimit)
		if err != nil {
			s.log.Warn("geotagged scan failed", slog.Any("err", err))
			reports = nil
		}
		records = make([]models.Record, 0, len(reports))
		for _, rep := range reports {
			records = append(records, rep.Record())
		}
		records = geo.WithinRadius(records, models.LatLng{Lat: lat, Lng: lng}, radius)
	} else {
		records = s.cache.Get(r.Context(), location, models.SourceUserReport, hours, false)
	}

	photos := make([]photoItem, 0, limit)
	for _, rec := range records {
		url, _ := rec.Payload["photo_url"].(string)
		if url == "" {
			continue
		}
		desc, _ := rec.Payload["description"].(string)
		photos = append(photos, photoItem{
			ID:          rec.ID,
			UserID:      rec.UserID,
			PhotoURL:    url,
			Description: desc,
			Coordinates: rec.Coordinates,
			FetchedAt:   rec.FetchedAt,
		})
		if len(photos) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"location": location,
		"count":    len(photos),
		"photos":   photos,
	})
}

func (s *server) handleUserReports(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user id is required"})
		return
	}
	limit := clampInt(r.URL.Query().Get("limit"), s.cfg.DefaultLimit, s.cfg.MaxLimit)

	reports, err := s.store.SearchByUser(r.Context(), userID, limit)
	if err != nil {
		s.log.Warn("user reports lookup failed", slog.String("user_id", userID), slog.Any("err", err))
		reports = []models.UserReport{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"count":   len(reports),
		"reports": reports,
	})
}

func (s *server) location(r *http.Request) string {
	if loc := strings.TrimSpace(r.URL.Query().Get("location")); loc != "" {
		return loc
	}
	return s.cfg.DefaultLocation
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func parseFloat(raw string, fallback float64) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseCoord(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// nothing better to do
	}
}
