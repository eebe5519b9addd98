package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/app"
	"github.com/vladislavdragonenkov/basket/internal/version"
)

const (
	envConfigFile                  = "BASKET_CONFIG_FILE"
	envHTTPAddr                    = "BASKET_HTTP_ADDR"
	envGRPCAddr                    = "BASKET_GRPC_ADDR"
	envMetricsAddr                 = "BASKET_METRICS_ADDR"
	envLogLevel                    = "BASKET_LOG_LEVEL"
	envTripleStoreDriver           = "BASKET_TRIPLESTORE_DRIVER"
	envSPARQLEndpoint              = "BASKET_SPARQL_ENDPOINT"
	envSPARQLUpdateEndpoint        = "BASKET_SPARQL_UPDATE_ENDPOINT"
	envSPARQLTimeout               = "BASKET_SPARQL_TIMEOUT"
	envSPARQLQueryAttempts         = "BASKET_SPARQL_QUERY_ATTEMPTS"
	envCatalogGraph                = "BASKET_CATALOG_GRAPH"
	envStrictOfferings             = "BASKET_STRICT_OFFERINGS"
	envStorageDriver               = "BASKET_STORAGE_DRIVER"
	envPostgresDSN                 = "BASKET_POSTGRES_DSN"
	envPostgresAutoMigrate         = "BASKET_POSTGRES_AUTO_MIGRATE"
	envPostgresMaxConns            = "BASKET_POSTGRES_MAX_CONNS"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envKafkaConsumeSessions        = "BASKET_KAFKA_CONSUME_SESSIONS"
	envOutboxPollInterval          = "BASKET_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "BASKET_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "BASKET_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "BASKET_OUTBOX_RETRY_DELAY"
	envIdempotencyTTL              = "BASKET_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "BASKET_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "BASKET_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// readConfigFromEnv собирает конфигурацию: значения по умолчанию, затем YAML-файл, затем окружение.
// Некорректные значения окружения не меняют конфигурацию и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []string, error) {
	cfg := app.DefaultConfig()
	if path, ok := lookupTrimmed(lookup, envConfigFile); ok {
		loaded, err := app.LoadConfigFile(path, cfg)
		if err != nil {
			return cfg, nil, err
		}
		cfg = loaded
	}

	var warnings []string
	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}

	stringVars := []struct {
		key    string
		target *string
		lower  bool
	}{
		{envHTTPAddr, &cfg.HTTPAddr, false},
		{envGRPCAddr, &cfg.GRPCAddr, false},
		{envMetricsAddr, &cfg.MetricsAddr, false},
		{envLogLevel, &cfg.LogLevel, true},
		{envTripleStoreDriver, &cfg.TripleStoreDriver, true},
		{envSPARQLEndpoint, &cfg.SPARQLEndpoint, false},
		{envSPARQLUpdateEndpoint, &cfg.SPARQLUpdateEndpoint, false},
		{envCatalogGraph, &cfg.CatalogGraph, false},
		{envStorageDriver, &cfg.StorageDriver, true},
		{envPostgresDSN, &cfg.PostgresDSN, false},
	}
	for _, s := range stringVars {
		if v, ok := lookupTrimmed(lookup, s.key); ok {
			if s.lower {
				v = strings.ToLower(v)
			}
			*s.target = v
		}
	}

	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}

	bools := []struct {
		key    string
		target *bool
	}{
		{envStrictOfferings, &cfg.StrictOfferings},
		{envPostgresAutoMigrate, &cfg.PostgresAutoMigrate},
		{envKafkaConsumeSessions, &cfg.KafkaConsumeSessions},
	}
	for _, b := range bools {
		if v, ok := lookupTrimmed(lookup, b.key); ok {
			parsed, err := parseBool(v)
			if err != nil {
				warn(b.key, v, err)
				continue
			}
			*b.target = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	ints := []struct {
		key    string
		target *int
	}{
		{envSPARQLQueryAttempts, &cfg.SPARQLQueryAttempts},
		{envPostgresMaxConns, &cfg.PostgresMaxConns},
		{envOutboxBatchSize, &cfg.OutboxBatchSize},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts},
		{envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize},
	}
	for _, i := range ints {
		if v, ok := lookupTrimmed(lookup, i.key); ok {
			parsed, err := parseInt(v, positive, "must be > 0")
			if err != nil {
				warn(i.key, v, err)
				continue
			}
			*i.target = parsed
		}
	}

	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }
	durations := []struct {
		key      string
		target   *time.Duration
		validate func(time.Duration) bool
		msg      string
	}{
		{envSPARQLTimeout, &cfg.SPARQLTimeout, positiveDuration, "must be > 0"},
		{envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0"},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0"},
		{envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0"},
		{envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0"},
	}
	for _, d := range durations {
		if v, ok := lookupTrimmed(lookup, d.key); ok {
			parsed, err := parseDuration(v, d.validate, d.msg)
			if err != nil {
				warn(d.key, v, err)
				continue
			}
			*d.target = parsed
		}
	}

	return cfg, warnings, nil
}

func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, validate func(int) bool, msg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if validate != nil && !validate(v) {
		return 0, errors.New(msg)
	}
	return v, nil
}

func parseDuration(raw string, validate func(time.Duration) bool, msg string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if validate != nil && !validate(v) {
		return 0, errors.New(msg)
	}
	return v, nil
}

func main() {
	cfg, warnings, err := readConfigFromEnv(os.LookupEnv)
	setupLogger(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatal("не удалось прочитать конфигурацию")
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"http_addr":          cfg.HTTPAddr,
		"grpc_addr":          cfg.GRPCAddr,
		"metrics_addr":       cfg.MetricsAddr,
		"triplestore_driver": cfg.TripleStoreDriver,
		"storage_driver":     cfg.StorageDriver,
	}).Info("запускаем basket-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("basket-service остановлен")
}
