package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/basket/internal/health"
	"github.com/vladislavdragonenkov/basket/internal/sparql"
	"github.com/vladislavdragonenkov/basket/internal/storage/memory"
	"github.com/vladislavdragonenkov/basket/internal/storage/postgres"
	"github.com/vladislavdragonenkov/basket/internal/storage/triplestore"
)

const healthCheckTimeout = 2 * time.Second

// runtimeDependencies — хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	executor     sparql.Executor
	tripleClient *triplestore.Client

	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	durableOutbox   bool

	tripleStoreChecker healthcheck.Checker
	breakerChecker     healthcheck.Checker
	storageChecker     healthcheck.Checker

	closeFn func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &runtimeDependencies{}
	if err := initTripleStore(deps, cfg, logger); err != nil {
		return nil, err
	}
	if err := initStorage(ctx, deps, cfg, logger); err != nil {
		return nil, err
	}
	return deps, nil
}

func initTripleStore(deps *runtimeDependencies, cfg Config, logger *log.Entry) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.TripleStoreDriver))
	switch driver {
	case TripleStoreDriverMemory:
		triples := memory.NewTripleStore()
		triples.Seed(cfg.CatalogGraph, cfg.Catalog)
		deps.executor = triples
		logger.WithFields(log.Fields{
			"offerings":       len(cfg.Catalog.Offerings),
			"delivery_places": len(cfg.Catalog.DeliveryPlaces),
		}).Warn("using in-memory triple store, data is lost on restart")
	case TripleStoreDriverHTTP:
		client, err := triplestore.NewClient(cfg.TripleStoreConfig(), triplestore.WithLogger(logger.WithField("layer", "triplestore")))
		if err != nil {
			return fmt.Errorf("init triple store client: %w", err)
		}
		deps.executor = client
		deps.tripleClient = client
		deps.breakerChecker = healthcheck.NewStatusChecker("triplestore-breaker", func() (healthcheck.Status, string) {
			state := client.BreakerState()
			if state == triplestore.CircuitClosed {
				return healthcheck.StatusHealthy, ""
			}
			return healthcheck.StatusDegraded, state.String()
		})
		logger.WithField("endpoint", cfg.SPARQLEndpoint).Info("triple store client initialized")
	default:
		return fmt.Errorf("unsupported triple store driver %q", cfg.TripleStoreDriver)
	}

	exec := deps.executor
	deps.tripleStoreChecker = healthcheck.NewPingChecker("triplestore", healthCheckTimeout, func(ctx context.Context) error {
		return triplestore.Ping(ctx, exec)
	})
	return nil
}

func initStorage(ctx context.Context, deps *runtimeDependencies, cfg Config, logger *log.Entry) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		deps.closeFn = func() error { return nil }
		return nil
	case StorageDriverPostgres:
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return fmt.Errorf("postgres storage driver requires dsn")
	}

	store, err := postgres.Open(ctx, dsn, postgres.WithMaxConns(cfg.PostgresMaxConns))
	if err != nil {
		return err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	deps.outboxRepo = postgres.NewOutboxRepository(store)
	deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
	deps.durableOutbox = true
	deps.storageChecker = healthcheck.NewPingChecker("postgres", healthCheckTimeout, store.Ping)
	deps.closeFn = store.Close
	return nil
}

// registerCheckers подключает проверки хранилищ к health handler.
func (d *runtimeDependencies) registerCheckers(h *healthcheck.Handler) {
	if d.tripleStoreChecker != nil {
		h.RegisterChecker("triplestore", d.tripleStoreChecker)
	}
	if d.breakerChecker != nil {
		h.RegisterChecker("triplestore-breaker", d.breakerChecker)
	}
	if d.storageChecker != nil {
		h.RegisterChecker("postgres", d.storageChecker)
	}
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
