package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/basket/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/basket/internal/storage/memory"
	"github.com/vladislavdragonenkov/basket/internal/storage/triplestore"
	"github.com/vladislavdragonenkov/basket/internal/vocab"
)

// Драйверы хранилища outbox и ключей идемпотентности.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Драйверы triple store.
const (
	TripleStoreDriverHTTP   = "http"
	TripleStoreDriverMemory = "memory"
)

// Config описывает настройки запуска сервиса корзин.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	TripleStoreDriver string `yaml:"triplestore_driver"`
	// SPARQLEndpoint используется и для запросов, и для обновлений, если SPARQLUpdateEndpoint пуст.
	SPARQLEndpoint       string        `yaml:"sparql_endpoint"`
	SPARQLUpdateEndpoint string        `yaml:"sparql_update_endpoint"`
	SPARQLTimeout        time.Duration `yaml:"sparql_timeout"`
	SPARQLSudo           bool          `yaml:"sparql_sudo"`
	BreakerFailures      int           `yaml:"breaker_failures"`
	BreakerReset         time.Duration `yaml:"breaker_reset"`
	SPARQLQueryAttempts  int           `yaml:"sparql_query_attempts"`

	CatalogGraph    string `yaml:"catalog_graph"`
	StrictOfferings bool   `yaml:"strict_offerings"`
	// Catalog загружается в память при TripleStoreDriverMemory.
	Catalog memory.CatalogSeed `yaml:"catalog"`

	StorageDriver       string `yaml:"storage_driver"`
	PostgresDSN         string `yaml:"postgres_dsn"`
	PostgresAutoMigrate bool   `yaml:"postgres_auto_migrate"`
	PostgresMaxConns    int    `yaml:"postgres_max_conns"`

	KafkaBrokers         []string `yaml:"kafka_brokers"`
	KafkaEventsTopic     string   `yaml:"kafka_events_topic"`
	KafkaDLQTopic        string   `yaml:"kafka_dlq_topic"`
	KafkaSessionTopic    string   `yaml:"kafka_session_topic"`
	KafkaConsumerGroup   string   `yaml:"kafka_consumer_group"`
	KafkaConsumeSessions bool     `yaml:"kafka_consume_sessions"`

	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int           `yaml:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `yaml:"outbox_retry_delay"`

	IdempotencyTTL              time.Duration `yaml:"idempotency_ttl"`
	IdempotencyCleanupInterval  time.Duration `yaml:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `yaml:"idempotency_cleanup_batch_size"`
}

// DefaultConfig возвращает настройки для запуска рядом с triple store в стеке mu.semte.ch.
func DefaultConfig() Config {
	ts := triplestore.DefaultConfig()
	return Config{
		HTTPAddr:    ":80",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		LogLevel:    "info",

		TripleStoreDriver: TripleStoreDriverHTTP,
		SPARQLEndpoint:    ts.QueryEndpoint,
		SPARQLTimeout:     ts.Timeout,
		SPARQLSudo:        ts.Sudo,
		BreakerFailures:   ts.BreakerFailures,
		BreakerReset:      ts.BreakerReset,

		SPARQLQueryAttempts: triplestore.DefaultRetryConfig().MaxAttempts,

		CatalogGraph:    vocab.DefaultCatalogGraph,
		StrictOfferings: true,

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    25,

		KafkaEventsTopic:   kafka.TopicBasketEvents,
		KafkaDLQTopic:      kafka.TopicDeadLetterQueue,
		KafkaSessionTopic:  kafka.TopicSessionEvents,
		KafkaConsumerGroup: "basket-service",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// TripleStoreConfig собирает настройки клиента triple store.
func (c Config) TripleStoreConfig() triplestore.Config {
	retry := triplestore.DefaultRetryConfig()
	retry.MaxAttempts = c.SPARQLQueryAttempts
	return triplestore.Config{
		QueryEndpoint:   c.SPARQLEndpoint,
		UpdateEndpoint:  c.SPARQLUpdateEndpoint,
		Timeout:         c.SPARQLTimeout,
		Sudo:            c.SPARQLSudo,
		BreakerFailures: c.BreakerFailures,
		BreakerReset:    c.BreakerReset,
		QueryRetry:      retry,
	}
}

// LoadConfigFile читает YAML поверх base. Неизвестные ключи считаются ошибкой.
func LoadConfigFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}
	return decodeConfig(raw, base)
}

func decodeConfig(raw []byte, base Config) (Config, error) {
	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return base, nil
		}
		return base, fmt.Errorf("decode config file: %w", err)
	}
	return cfg, nil
}
