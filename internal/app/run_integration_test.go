package app

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/basket/internal/health"
	"github.com/vladislavdragonenkov/basket/internal/messaging/kafka"
)

// loopbackConfig поднимает сервис целиком в памяти на случайных портах.
func loopbackConfig() Config {
	cfg := memoryConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.KafkaBrokers = nil
	cfg.Catalog.Offerings = []string{"O1"}
	return cfg
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, Run(ctx, loopbackConfig()), context.DeadlineExceeded)
}

func TestRun_StartupErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "storage driver",
			mutate:  func(c *Config) { c.StorageDriver = "sqlite" },
			wantErr: "unsupported storage driver",
		},
		{
			name:    "triple store driver",
			mutate:  func(c *Config) { c.TripleStoreDriver = "rdf4j-embedded" },
			wantErr: "unsupported triple store driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverPostgres; c.PostgresDSN = " " },
			wantErr: "requires dsn",
		},
		{
			name:   "unusable http address",
			mutate: func(c *Config) { c.HTTPAddr = "256.0.0.1:80" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loopbackConfig()
			tt.mutate(&cfg)

			err := Run(context.Background(), cfg)
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestInitRuntimeDependencies_Postgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("BASKET_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("BASKET_POSTGRES_TEST_DSN is not set")
	}

	cfg := memoryConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true
	cfg.PostgresMaxConns = 4

	logger := log.WithField("test", t.Name())
	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer deps.close(logger)

	assert.NotNil(t, deps.outboxRepo)
	assert.NotNil(t, deps.idempotencyRepo)
	assert.True(t, deps.durableOutbox)
	require.NotNil(t, deps.storageChecker)
	assert.Equal(t, healthcheck.StatusHealthy, deps.storageChecker.Check().Status)
}

func TestCloseKafka(t *testing.T) {
	closeKafka(nil, log.WithField("test", t.Name()))

	producer, err := kafka.NewProducer([]string{"localhost:9092"})
	if err != nil {
		t.Skipf("kafka unavailable: %v", err)
	}
	closeKafka(producer, log.WithField("test", t.Name()))
}
