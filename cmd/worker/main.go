package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/monicaDelao/log430-labo8/internal/messaging"
	"github.com/monicaDelao/log430-labo8/internal/orders"
	"github.com/monicaDelao/log430-labo8/internal/outbox"
	"github.com/monicaDelao/log430-labo8/internal/payments"
	"github.com/monicaDelao/log430-labo8/internal/saga"
	"github.com/monicaDelao/log430-labo8/internal/stocks"
	"github.com/monicaDelao/log430-labo8/internal/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "saga-worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("saga-worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}
	brokers := strings.Split(kafkaBrokers, ",")

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "order.saga"
	}

	paymentsServiceURL := os.Getenv("PAYMENTS_SERVICE_URL")
	if paymentsServiceURL == "" {
		logger.Error("PAYMENTS_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	gatewayBaseURL := os.Getenv("GATEWAY_BASE_URL")
	if gatewayBaseURL == "" {
		gatewayBaseURL = "http://localhost:8080"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = redisClient.Close() }()

	producer := messaging.NewProducer(brokers, topic)
	defer func() { _ = producer.Close() }()

	consumer := messaging.NewConsumer(brokers, topic, "saga-worker")
	defer func() { _ = consumer.Close() }()

	httpClient := &http.Client{Timeout: 10 * time.Second}

	orderRepo := orders.NewOrderRepository(db)
	stockRepo := stocks.NewStockRepository(db)
	cache := orders.NewRedisProjection(redisClient)
	orderCommands := orders.NewCommands(orderRepo, stockRepo, cache, producer, gatewayBaseURL, logger)

	outboxStore := outbox.NewStore(db)
	paymentsClient := payments.NewClient(paymentsServiceURL, httpClient)
	processor := outbox.NewProcessor(outboxStore, paymentsClient, producer, logger)
	sweeper := outbox.NewSweeper(outboxStore, processor, 10*time.Second, 30*time.Second, 50, logger)

	registry := saga.NewRegistry(producer, logger)
	for _, h := range []saga.Handler{
		saga.NewOrderCreatedHandler(stockRepo, logger),
		saga.NewStockDecreasedHandler(outboxStore, processor, logger),
		saga.NewStockDecreaseFailedHandler(logger),
		saga.NewStockIncreasedHandler(stockRepo, logger),
		saga.NewPaymentCreatedHandler(orderCommands, logger),
		saga.NewPaymentCreationFailedHandler(logger),
	} {
		if err := registry.Register(h); err != nil {
			logger.Error("failed to register saga handler", "error", err)
			os.Exit(1)
		}
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{Addr: ":" + metricsPort(), Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() { _ = metricsServer.Close() }()

	go sweeper.Run(ctx)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting saga worker", "brokers", brokers, "topic", topic)

	if err := consumer.Consume(ctx, registry.Dispatch); err != nil {
		if ctx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}

func metricsPort() string {
	if port := os.Getenv("METRICS_PORT"); port != "" {
		return port
	}
	return "9090"
}
