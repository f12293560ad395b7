package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/config"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/journal"
	"github.com/fjod/go_cart/storefront/internal/payment"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/fjod/go_cart/storefront/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	if err := run(); err != nil {
		slog.Error("storefront stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init("storefront", cfg.LogLevel)
	log.Info("storefront starting", "store_driver", cfg.StoreDriver, "port", cfg.HTTPPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	cartCache := cache.CartCache(cache.Nop{})
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		cartCache = cache.NewRedisCache(redisClient)
		log.Info("redis cart cache enabled", "addr", cfg.RedisAddr)
	}

	webhookJournal := journal.Journal(journal.Nop{})
	if cfg.MongoURI != "" {
		db, err := journal.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return err
		}
		mj := journal.NewMongoJournal(db)
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mj.Close(cctx); err != nil {
				log.Warn("failed to disconnect from mongodb", "error", err)
			}
		}()
		if err := mj.CreateIndexes(ctx); err != nil {
			return err
		}
		webhookJournal = mj
		log.Info("webhook journal enabled", "database", cfg.MongoDBName)
	}

	gateways := payment.RegistryFromConfig(cfg.Payments)
	if len(gateways.Providers()) == 0 {
		log.Warn("no payment providers configured; checkout will reject every provider")
	} else {
		log.Info("payment providers configured", "providers", gateways.Providers())
	}

	srvMetrics := metrics.NewServerMetrics(prometheus.DefaultRegisterer)

	carts := service.NewCartService(store, store, cartCache)
	checkout := service.NewCheckoutService(store, gateways, carts, webhookJournal, srvMetrics)

	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(store, srvMetrics, cfg.KafkaTopic, cfg.KafkaBrokers...)
		go poller.Run(ctx)
		log.Info("outbox publisher started", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	router := h.NewRouter(h.RouterConfig{
		Carts:          carts,
		Checkout:       checkout,
		Store:          store,
		Metrics:        srvMetrics,
		Gatherer:       prometheus.DefaultGatherer,
		RequestTimeout: cfg.RequestTimeout,
		SessionTTL:     cfg.SessionTTL,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		store := repository.NewMemoryStore()
		if err := repository.Seed(ctx, store, repository.DemoCatalog()); err != nil {
			return nil, err
		}
		slog.Info("using in-memory store with demo catalog")
		return store, nil
	}

	repo, err := repository.NewRepository(&cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.RunMigrations(&cfg.DB); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("database migrations completed", "host", cfg.DB.Host, "database", cfg.DB.DBName)
	return repo, nil
}
