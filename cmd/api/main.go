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

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/cart/redis"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/config"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/database"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/gateway"
	idempostgres "github.com/officialconcilio-rgb/E-Commerce-sub000/internal/idempotency/postgres"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/kafka"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/adapters"
	httpadapter "github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/adapters/http"
	orderspostgres "github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/adapters/postgres"
	ordersapp "github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/app"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/app/commands"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/metrics"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const idempotencyPurgeInterval = time.Hour

var requiredTables = []string{"orders", "payment_records", "product_variants", "store_settings", "idempotency_keys"}

func main() {
	if err := run(); err != nil {
		slog.Error("checkout-api stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := telemetry.ParseLevel(cfg.Telemetry.LogLevel)
	if err != nil {
		return fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	logger := telemetry.NewLogger(os.Stdout, level).With("service", cfg.Service.Name)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		Insecure:       cfg.Telemetry.OTelInsecure,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()
	meter := tel.Meter(cfg.Service.Name)

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		version, err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations completed successfully", "version", version)
	}

	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create database metrics: %w", err)
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create kafka metrics: %w", err)
	}
	orderMetrics, err := metrics.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create order metrics: %w", err)
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}

	redisClient, err := redis.NewClient(ctx, &goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	gatewayClient, err := gateway.NewClient(gateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		KeyID:   cfg.Gateway.KeyID,
		Secret:  cfg.Gateway.KeySecret,
		Timeout: cfg.Gateway.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create gateway client: %w", err)
	}
	callbackVerifier, err := gateway.NewHMACVerifier(cfg.Gateway.KeySecret)
	if err != nil {
		return fmt.Errorf("create callback verifier: %w", err)
	}
	webhookVerifier, err := gateway.NewHMACVerifier(cfg.Gateway.WebhookSecret)
	if err != nil {
		return fmt.Errorf("create webhook verifier: %w", err)
	}

	notifier, closeNotifier := newNotifier(cfg.Kafka, logger)
	async := adapters.NewAsyncNotifier(
		adapters.NewObservableNotifier(notifier, cfg.Kafka.NotificationTopic, kafkaMetrics),
		logger,
		cfg.Kafka.PublishTimeout,
	)

	catalog := orderspostgres.NewCatalog(pool)

	service := ordersapp.NewService(ordersapp.Dependencies{
		Orders:    adapters.NewObservableRepository(orderspostgres.NewRepository(pool), dbMetrics),
		Payments:  adapters.NewObservablePaymentRepository(orderspostgres.NewPaymentRepository(pool), dbMetrics),
		Catalog:   catalog,
		Inventory: catalog,
		Carts:     redis.NewStore(redisClient, cfg.Redis.CartTTL),
		Settings: orderspostgres.NewSettings(pool, domain.ShippingPolicy{
			FlatFee:               cfg.Store.ShippingFlatFee,
			FreeShippingThreshold: cfg.Store.FreeShippingThreshold,
		}),
		Gateway:          gatewayClient,
		Notifier:         async,
		Idempotency:      idempostgres.NewStore(pool, cfg.Store.IdempotencyRetention),
		Webhooks:         gateway.WebhookDecoder{},
		CallbackVerifier: callbackVerifier,
		WebhookVerifier:  webhookVerifier,
	}, commands.CheckoutConfig{
		Currency: cfg.Gateway.Currency,
		KeyID:    cfg.Gateway.KeyID,
	}, logger, orderMetrics)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	security, err := httpadapter.NewSecurityMetrics(registry)
	if err != nil {
		return fmt.Errorf("register security metrics: %w", err)
	}

	mux := http.NewServeMux()
	httpadapter.NewHandler(service, logger, security).Register(mux)
	httpadapter.RegisterOps(mux, cfg.HTTP.MetricsPath, registry, map[string]httpadapter.ReadinessCheck{
		"postgres": func(ctx context.Context) error {
			if err := database.CheckHealth(ctx, pool); err != nil {
				return err
			}
			return database.CheckSchema(ctx, pool, requiredTables...)
		},
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

	handler := otelhttp.NewHandler(
		httpadapter.WithRecovery(httpadapter.WithLogging(httpadapter.WithMetrics(mux, httpMetrics), logger), logger),
		cfg.Service.Name,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go purgeIdempotencyKeys(ctx, service, logger)

	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("http server stopped")
	}

	if err := async.Wait(shutdownCtx); err != nil {
		logger.Warn("pending notifications abandoned", "error", err)
	}
	if err := closeNotifier(); err != nil {
		logger.Error("close notifier", "error", err)
	}

	return nil
}

// newNotifier publishes to Kafka when brokers are configured and logs
// notifications otherwise.
func newNotifier(cfg config.KafkaConfig, logger *slog.Logger) (ports.NotificationEmitter, func() error) {
	if len(cfg.Brokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, notifications will only be logged")
		return kafka.NewNoopNotifier(), func() error { return nil }
	}

	notifier := kafka.NewNotifier(kafka.NewWriter(cfg.Brokers, cfg.NotificationTopic), cfg.NotificationTopic)
	return notifier, notifier.Close
}

func purgeIdempotencyKeys(ctx context.Context, service *ordersapp.Service, logger *slog.Logger) {
	ticker := time.NewTicker(idempotencyPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := service.PurgeIdempotencyKeys(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "purge idempotency keys", "error", err)
				continue
			}
			if removed > 0 {
				logger.InfoContext(ctx, "purged idempotency keys", "removed", removed)
			}
		}
	}
}
