package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/basket/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/basket/internal/storage/memory"
	"github.com/vladislavdragonenkov/basket/internal/vocab"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":80", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, TripleStoreDriverHTTP, cfg.TripleStoreDriver)
	assert.Equal(t, "http://database:8890/sparql", cfg.SPARQLEndpoint)
	assert.True(t, cfg.SPARQLSudo)
	assert.Equal(t, vocab.DefaultCatalogGraph, cfg.CatalogGraph)
	assert.True(t, cfg.StrictOfferings)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.True(t, cfg.PostgresAutoMigrate)
	assert.Equal(t, kafka.TopicBasketEvents, cfg.KafkaEventsTopic)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.KafkaDLQTopic)
	assert.Equal(t, kafka.TopicSessionEvents, cfg.KafkaSessionTopic)

	assert.Positive(t, cfg.OutboxPollInterval)
	assert.Positive(t, cfg.OutboxBatchSize)
	assert.Positive(t, cfg.OutboxMaxAttempts)
	assert.GreaterOrEqual(t, cfg.OutboxRetryDelay, time.Duration(0))
	assert.Positive(t, cfg.IdempotencyTTL)
	assert.Positive(t, cfg.IdempotencyCleanupInterval)
	assert.Positive(t, cfg.IdempotencyCleanupBatchSize)
}

func TestConfig_TripleStoreConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SPARQLEndpoint = "http://virtuoso:8890/sparql"
	cfg.SPARQLUpdateEndpoint = "http://virtuoso:8890/sparql-auth"
	cfg.SPARQLSudo = false

	ts := cfg.TripleStoreConfig()
	assert.Equal(t, "http://virtuoso:8890/sparql", ts.QueryEndpoint)
	assert.Equal(t, "http://virtuoso:8890/sparql-auth", ts.UpdateEndpoint)
	assert.False(t, ts.Sudo)
	assert.Equal(t, cfg.BreakerFailures, ts.BreakerFailures)
	assert.Equal(t, cfg.SPARQLTimeout, ts.Timeout)
	assert.Equal(t, cfg.SPARQLQueryAttempts, ts.QueryRetry.MaxAttempts)
	assert.Positive(t, ts.QueryRetry.InitialDelay)
}

func TestDecodeConfig_MergesOverDefaults(t *testing.T) {
	raw := []byte(`
http_addr: ":8080"
triplestore_driver: memory
strict_offerings: false
sparql_timeout: 3s
kafka_brokers: ["kafka-1:9092", "kafka-2:9092"]
kafka_consume_sessions: true
catalog:
  offerings: [O1, O2]
  delivery_places: [P1]
`)

	cfg, err := decodeConfig(raw, DefaultConfig())
	require.NoError(t, err)

	want := DefaultConfig()
	want.HTTPAddr = ":8080"
	want.TripleStoreDriver = TripleStoreDriverMemory
	want.StrictOfferings = false
	want.SPARQLTimeout = 3 * time.Second
	want.KafkaBrokers = []string{"kafka-1:9092", "kafka-2:9092"}
	want.KafkaConsumeSessions = true
	want.Catalog = memory.CatalogSeed{Offerings: []string{"O1", "O2"}, DeliveryPlaces: []string{"P1"}}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeConfig_Errors(t *testing.T) {
	base := DefaultConfig()

	_, err := decodeConfig([]byte("unknown_key: 1\n"), base)
	assert.Error(t, err)

	_, err = decodeConfig([]byte("outbox_batch_size: many\n"), base)
	assert.Error(t, err)

	cfg, err := decodeConfig(nil, base)
	require.NoError(t, err)
	if diff := cmp.Diff(base, cfg); diff != "" {
		t.Fatalf("empty file must keep base config (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "basket.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grpc_addr: 127.0.0.1:6000\n"), 0o600))

	cfg, err := LoadConfigFile(path, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6000", cfg.GRPCAddr)
	assert.Equal(t, DefaultConfig().HTTPAddr, cfg.HTTPAddr)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), DefaultConfig())
	assert.Error(t, err)
}
