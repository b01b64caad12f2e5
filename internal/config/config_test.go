package config_test

import (
	"testing"
	"time"

	"github.com/citypulse/backend/internal/config"
	"github.com/citypulse/backend/internal/models"
	"github.com/stretchr/testify/require"
)

func TestLoadWorkerDefaults(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "")
	t.Setenv("ELASTICSEARCH_REPORTS_INDEX", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_TOPIC", "")
	t.Setenv("KAFKA_CONSUMER_GROUP", "")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://elasticsearch:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "user_reports", cfg.ReportsIndex)
	require.Len(t, cfg.KafkaBrokers, 1)
	require.Equal(t, "kafka:9092", cfg.KafkaBrokers[0])
	require.Equal(t, "user_reports", cfg.KafkaTopic)
	require.Equal(t, "report-worker", cfg.KafkaConsumer)
}

func TestLoadWorkerOverrides(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "http://localhost:9999")
	t.Setenv("ELASTICSEARCH_REPORTS_INDEX", "custom_reports")
	t.Setenv("KAFKA_BROKERS", "broker-a:29092,broker-b:29093")
	t.Setenv("KAFKA_TOPIC", "custom_topic")
	t.Setenv("KAFKA_CONSUMER_GROUP", "custom-group")
	t.Setenv("WORKER_KEYWORD_LIMIT", "12")
	t.Setenv("WORKER_KEYWORD_MIN_LEN", "5")
	t.Setenv("WORKER_DEDUPE_CAPACITY", "5")
	t.Setenv("WORKER_DEDUPE_TTL", "48h")
	t.Setenv("WORKER_BATCH_SIZE", "3")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:9999", cfg.ElasticsearchAddr)
	require.Equal(t, "custom_reports", cfg.ReportsIndex)
	require.Len(t, cfg.KafkaBrokers, 2)
	require.Equal(t, "broker-a:29092", cfg.KafkaBrokers[0])
	require.Equal(t, "custom_topic", cfg.KafkaTopic)
	require.Equal(t, "custom-group", cfg.KafkaConsumer)
	require.Equal(t, 12, cfg.KeywordLimit)
	require.Equal(t, 5, cfg.KeywordMinLength)
	require.Equal(t, 5, cfg.DedupeCapacity)
	require.Equal(t, 48*time.Hour, cfg.DedupeTTL)
	require.Equal(t, 3, cfg.BatchSize)
}

func TestLoadAPIDefaults(t *testing.T) {
	t.Setenv("API_BIND_ADDR", "")
	t.Setenv("DEFAULT_LOCATION", "")
	t.Setenv("CACHE_TTL_SOCIAL", "")
	t.Setenv("CACHE_TTL_POI", "")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8080", cfg.BindAddr)
	require.Equal(t, "Bengaluru", cfg.DefaultLocation)
	require.Equal(t, 15*time.Minute, cfg.CacheTTLs[models.SourceSocial])
	require.Equal(t, 6*time.Hour, cfg.CacheTTLs[models.SourcePOI])
	require.Equal(t, 0.6, cfg.IntentThreshold)
	require.True(t, cfg.WarmOnSuccess)
}

func TestLoadAPIOverrides(t *testing.T) {
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("API_DEFAULT_LIMIT", "15")
	t.Setenv("API_MAX_LIMIT", "200")
	t.Setenv("CACHE_TTL_NEWS", "90m")
	t.Setenv("MOOD_HAPPY_THRESHOLD", "0.5")
	t.Setenv("MOOD_TENSE_THRESHOLD", "-0.5")
	t.Setenv("CACHE_WARM_ON_SUCCESS", "false")
	t.Setenv("ELASTICSEARCH_ADDR", "http://api-es:9200")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, 15, cfg.DefaultLimit)
	require.Equal(t, 200, cfg.MaxLimit)
	require.Equal(t, 90*time.Minute, cfg.CacheTTLs[models.SourceNews])
	require.Equal(t, 0.5, cfg.MoodHappyThreshold)
	require.Equal(t, -0.5, cfg.MoodTenseThreshold)
	require.False(t, cfg.WarmOnSuccess)
	require.Equal(t, "http://api-es:9200", cfg.ElasticsearchAddr)
}

func TestLoadAPIRejectsInvertedMoodThresholds(t *testing.T) {
	t.Setenv("MOOD_HAPPY_THRESHOLD", "-0.2")
	t.Setenv("MOOD_TENSE_THRESHOLD", "0.2")

	_, err := config.LoadAPI()
	require.Error(t, err)
}

func TestLoadRetention(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "http://ret-es:9200")
	t.Setenv("RETENTION_CRON", "12h")
	t.Setenv("RETENTION_REPORT_MAX_AGE", "360h")
	t.Setenv("RETENTION_SNAPSHOT_MAX_AGE", "36h")
	t.Setenv("RETENTION_BATCH_SIZE", "123")

	cfg, err := config.LoadRetention()
	require.NoError(t, err)

	require.Equal(t, 12*time.Hour, cfg.Interval)
	require.Equal(t, 360*time.Hour, cfg.ReportMaxAge)
	require.Equal(t, 36*time.Hour, cfg.SnapshotMaxAge)
	require.Equal(t, 123, cfg.BatchSize)
	require.Equal(t, "http://ret-es:9200", cfg.ElasticsearchAddr)
}
