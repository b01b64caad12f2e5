package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/citypulse/backend/internal/models"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr string
	ReportsIndex      string
	SnapshotsIndex    string
}

// API describes the query-orchestration HTTP service.
type API struct {
	Common
	BindAddr        string
	DefaultLocation string
	DefaultLimit    int
	MaxLimit        int
	DefaultHours    int
	DefaultRadiusKm float64
	RequestTimeout  time.Duration

	SocialAPIBase  string
	NewsFeedBase   string
	PlacesAPIBase  string
	AdapterTimeout time.Duration

	GeminiAPIKey string
	GeminiModel  string
	ModelTimeout time.Duration

	IntentThreshold float64
	WarmOnSuccess   bool

	CacheTTLs map[models.SourceType]time.Duration

	MoodRulesPath      string
	MoodHappyThreshold float64
	MoodTenseThreshold float64
}

// Worker holds configuration for the Kafka -> Elasticsearch report worker.
type Worker struct {
	Common
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval       time.Duration
	ReportMaxAge   time.Duration
	SnapshotMaxAge time.Duration
	BatchSize      int
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr: getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ReportsIndex:      getEnv("ELASTICSEARCH_REPORTS_INDEX", "user_reports"),
		SnapshotsIndex:    getEnv("ELASTICSEARCH_SNAPSHOTS_INDEX", "cache_snapshots"),
	}
}

// LoadAPI builds the API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:          loadCommon(),
		BindAddr:        getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultLocation: getEnv("DEFAULT_LOCATION", "Bengaluru"),
		DefaultLimit:    getInt("API_DEFAULT_LIMIT", 20),
		MaxLimit:        getInt("API_MAX_LIMIT", 100),
		DefaultHours:    getInt("API_DEFAULT_HOURS", 24),
		DefaultRadiusKm: getFloat("API_DEFAULT_RADIUS_KM", 5),
		RequestTimeout:  getDuration("API_REQUEST_TIMEOUT", "25s"),

		SocialAPIBase:  getEnv("SOCIAL_API_BASE", "https://api.pulse.social"),
		NewsFeedBase:   getEnv("NEWS_FEED_BASE", "https://news.google.com"),
		PlacesAPIBase:  getEnv("PLACES_API_BASE", "https://places.pulse.city"),
		AdapterTimeout: getDuration("ADAPTER_TIMEOUT", "8s"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
		ModelTimeout: getDuration("MODEL_TIMEOUT", "12s"),

		IntentThreshold: getFloat("INTENT_THRESHOLD", 0.6),
		WarmOnSuccess:   getBool("CACHE_WARM_ON_SUCCESS", true),

		CacheTTLs: map[models.SourceType]time.Duration{
			models.SourceSocial:     getDuration("CACHE_TTL_SOCIAL", "15m"),
			models.SourceNews:       getDuration("CACHE_TTL_NEWS", "30m"),
			models.SourcePOI:        getDuration("CACHE_TTL_POI", "6h"),
			models.SourceUserReport: getDuration("CACHE_TTL_USER_REPORT", "5m"),
		},

		MoodRulesPath:      getEnv("MOOD_RULES_PATH", ""),
		MoodHappyThreshold: getFloat("MOOD_HAPPY_THRESHOLD", 0.3),
		MoodTenseThreshold: getFloat("MOOD_TENSE_THRESHOLD", -0.3),
	}

	if c.DefaultLimit <= 0 {
		return nil, fmt.Errorf("API_DEFAULT_LIMIT must be positive")
	}
	if c.MaxLimit <= 0 {
		return nil, fmt.Errorf("API_MAX_LIMIT must be positive")
	}
	if c.DefaultLimit > c.MaxLimit {
		return nil, fmt.Errorf("API_DEFAULT_LIMIT cannot exceed API_MAX_LIMIT")
	}
	if c.DefaultHours <= 0 {
		return nil, fmt.Errorf("API_DEFAULT_HOURS must be positive")
	}
	if c.DefaultRadiusKm <= 0 {
		return nil, fmt.Errorf("API_DEFAULT_RADIUS_KM must be positive")
	}
	if c.IntentThreshold <= 0 || c.IntentThreshold > 1 {
		return nil, fmt.Errorf("INTENT_THRESHOLD must be in (0, 1]")
	}
	if c.MoodTenseThreshold >= c.MoodHappyThreshold {
		return nil, fmt.Errorf("MOOD_TENSE_THRESHOLD must be below MOOD_HAPPY_THRESHOLD")
	}
	for st, ttl := range c.CacheTTLs {
		if ttl <= 0 {
			return nil, fmt.Errorf("cache TTL for %s must be positive", st)
		}
	}

	return c, nil
}

// LoadWorker builds the report worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common:           loadCommon(),
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "user_reports"),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "report-worker"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 8),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 4),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}

	return c, nil
}

// LoadRetention builds the retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:         loadCommon(),
		Interval:       getDuration("RETENTION_CRON", "24h"),
		ReportMaxAge:   getDuration("RETENTION_REPORT_MAX_AGE", "720h"),
		SnapshotMaxAge: getDuration("RETENTION_SNAPSHOT_MAX_AGE", "168h"),
		BatchSize:      getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.ReportMaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_REPORT_MAX_AGE must be positive")
	}
	if c.SnapshotMaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_SNAPSHOT_MAX_AGE must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
