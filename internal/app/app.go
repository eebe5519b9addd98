// Package app собирает сервис корзин: хранилища, HTTP API, воркеры и служебные listener-ы.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/basket/internal/health"
	"github.com/vladislavdragonenkov/basket/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/basket/internal/metrics"
	"github.com/vladislavdragonenkov/basket/internal/service/basket"
	"github.com/vladislavdragonenkov/basket/internal/service/graph"
	httpsvc "github.com/vladislavdragonenkov/basket/internal/service/http"
	"github.com/vladislavdragonenkov/basket/internal/service/idempotency"
	"github.com/vladislavdragonenkov/basket/internal/service/merge"
	"github.com/vladislavdragonenkov/basket/internal/service/outbox"
	"github.com/vladislavdragonenkov/basket/internal/version"
)

const shutdownTimeout = 5 * time.Second

// services — доменные сервисы поверх выбранных хранилищ.
type services struct {
	resolver *graph.Resolver
	baskets  *basket.Store
	merger   *merge.Merger
	api      *httpsvc.Server
}

func buildServices(cfg Config, deps *runtimeDependencies, events domain.OutboxRepository, registerer prometheus.Registerer, logger *log.Entry) services {
	basketMetrics := metrics.NewBasketMetricsWithRegisterer(registerer)
	exec := metrics.InstrumentExecutor(deps.executor, basketMetrics)
	recorder := outbox.NewRecorder(events, basketMetrics, logger.WithField("layer", "outbox"))

	resolver := graph.NewResolver(exec, logger.WithField("layer", "graph"))
	baskets := basket.NewStore(exec,
		basket.WithLogger(logger.WithField("layer", "basket")),
		basket.WithMetrics(basketMetrics),
		basket.WithEvents(recorder),
		basket.WithCatalogGraph(cfg.CatalogGraph),
		basket.WithStrictOfferings(cfg.StrictOfferings),
	)
	merger := merge.NewMerger(resolver, baskets, exec, recorder, basketMetrics, logger.WithField("layer", "merge"))
	api := httpsvc.NewServer(resolver, baskets, merger,
		httpsvc.WithLogger(logger.WithField("layer", "http")),
		httpsvc.WithMetrics(metrics.NewHTTPMetricsWithRegisterer(registerer)),
		httpsvc.WithIdempotency(deps.idempotencyRepo, cfg.IdempotencyTTL),
	)

	return services{resolver: resolver, baskets: baskets, merger: merger, api: api}
}

// Run запускает сервис и блокируется до отмены ctx или падения одного из listener-ов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		producer = nil
	}
	defer closeKafka(producer, logger)

	// Без Kafka события пишутся только в долговременный outbox, чтобы опубликовать их позже.
	var events domain.OutboxRepository
	if producer != nil || deps.durableOutbox {
		events = deps.outboxRepo
	}

	registerer := prometheus.DefaultRegisterer
	svc := buildServices(cfg, deps, events, registerer, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	deps.registerCheckers(healthHandler)

	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = apiLis.Close()
		return err
	}

	grpcServer, grpcHealth := newAdminGRPCServer(registerer, logger)
	apiSrv := &http.Server{Handler: svc.api.Handler(), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	metricsSrv := startMetricsServer(gctx, cfg.MetricsAddr, logger, healthHandler)

	g.Go(func() error {
		logger.WithField("addr", apiLis.Addr().String()).Info("HTTP API слушает")
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", grpcLis.Addr().String()).Info("gRPC admin сервер слушает")
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(metricsSrv, logger)
		return nil
	})

	if producer != nil && events != nil {
		worker := outbox.NewWorker(events, kafka.NewOutboxPublisher(producer, cfg.KafkaEventsTopic),
			outbox.WithLogger(logger.WithField("layer", "outbox-worker")),
			outbox.WithMetrics(metrics.NewOutboxMetrics(registerer)),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(registerer)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	g.Go(func() error {
		cleanup.Run(gctx)
		return nil
	})

	if consumer := initSessionConsumer(cfg, svc.merger, producer, metrics.NewConsumerMetrics(registerer), logger); consumer != nil {
		if err := consumer.Start(gctx); err != nil {
			logger.WithError(err).Warn("failed to start kafka consumer")
		} else {
			g.Go(func() error {
				<-gctx.Done()
				if err := consumer.Stop(); err != nil {
					logger.WithError(err).Warn("failed to stop kafka consumer")
				}
				return nil
			})
		}
	}

	err = g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// newAdminGRPCServer создаёт gRPC listener со стандартным health service и reflection.
func newAdminGRPCServer(registerer prometheus.Registerer, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// startMetricsServer запускает /metrics, и health-обработчики.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
