package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/channelsync/orders-backend/internal/ingestion"
	"github.com/channelsync/orders-backend/internal/ingestion/consumer"
	"github.com/channelsync/orders-backend/internal/invoicing"
	"github.com/channelsync/orders-backend/internal/marketplaces"
	"github.com/channelsync/orders-backend/internal/orders"
	"github.com/channelsync/orders-backend/pkg/config"
	"github.com/channelsync/orders-backend/pkg/db"
	"github.com/channelsync/orders-backend/pkg/idempotency"
	"github.com/channelsync/orders-backend/pkg/logger"
	"github.com/channelsync/orders-backend/pkg/metrics"
	"github.com/channelsync/orders-backend/pkg/migrate"
	"github.com/channelsync/orders-backend/pkg/pubsub"
	"github.com/channelsync/orders-backend/pkg/redis"
	"github.com/channelsync/orders-backend/pkg/square"
)

const serviceName = "ingest-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(logg, "database", err)

	requireResource(logg, "dev migrations", migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient))

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(logg, "pubsub", err)

	defer func() {
		if err := closeAll(dbClient, redisClient, pubsubClient); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	requireResource(logg, "dependency readiness", awaitReady(context.Background(), map[string]pinger{
		"database": dbClient,
		"redis":    redisClient,
		"pubsub":   pubsubClient,
	}))

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	requireResource(logg, "square", err)

	provider, err := invoicing.NewSquareProvider(squareClient)
	requireResource(logg, "invoice provider", err)

	repo := orders.NewRepository(dbClient.DB())
	coordinator, err := invoicing.NewCoordinator(invoicing.CoordinatorParams{
		Repo:     repo,
		Provider: provider,
		Logger:   logg,
	})
	requireResource(logg, "invoice coordinator", err)

	registry := ingestion.NewRegistry()
	requireResource(logg, "mapper registry", marketplaces.RegisterAll(registry))

	engine, err := ingestion.NewEngine(ingestion.EngineParams{
		DB:             dbClient,
		Repo:           repo,
		Invoices:       coordinator,
		Registry:       registry,
		Logger:         logg,
		Concurrency:    cfg.Ingestion.Concurrency,
		DisableUpdates: cfg.Ingestion.DisableUpdates,
	})
	requireResource(logg, "ingestion engine", err)

	manager, err := idempotency.NewManager(redisClient, cfg.Ingestion.BatchDedupeTTL)
	requireResource(logg, "idempotency manager", err)

	ingestionMetrics := metrics.NewIngestionMetrics(prometheus.DefaultRegisterer)

	jobConsumer, err := consumer.NewConsumer(engine, manager, pubsubClient.IngestionSubscription(), ingestionMetrics, logg)
	requireResource(logg, "ingestion consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"marketplaces": registry.Marketplaces(),
	})

	opsServer := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: newOpsRouter(logg, map[string]pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
		}),
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "ops server stopped unexpectedly", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "error shutting down ops server", err)
		}
	}()

	logg.Info(runCtx, "ingest worker ready")

	if err := jobConsumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "ingest worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "ingest worker shutting down gracefully")
}

// awaitReady blocks until every dependency answers a ping, backing off
// between attempts so the worker survives slow sibling container starts.
func awaitReady(ctx context.Context, deps map[string]pinger) error {
	for name, dep := range deps {
		// backoff state is per dependency, not shared across pings
		backoff := retry.WithMaxRetries(8, retry.NewExponential(500*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := dep.Ping(pingCtx); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("dependency %s not ready: %w", name, err)
		}
	}
	return nil
}

func closeAll(dbClient *db.Client, redisClient *redis.Client, pubsubClient *pubsub.Client) error {
	var errs error
	if err := pubsubClient.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("pubsub: %w", err))
	}
	if err := redisClient.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("redis: %w", err))
	}
	if err := dbClient.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("database: %w", err))
	}
	return errs
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
