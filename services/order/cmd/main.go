package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sakashimaa/bookshop/pkg/config"
	"github.com/sakashimaa/bookshop/pkg/db"
	kafka2 "github.com/sakashimaa/bookshop/pkg/kafka"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/pkg/utils"
	"github.com/sakashimaa/bookshop/services/order/internal/catalog"
	"github.com/sakashimaa/bookshop/services/order/internal/repository"
	"github.com/sakashimaa/bookshop/services/order/internal/service"
	"github.com/sakashimaa/bookshop/services/order/internal/transport/http"
	"github.com/sakashimaa/bookshop/services/order/internal/transport/kafka"
	"github.com/sakashimaa/bookshop/services/order/internal/worker"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := utils.InitTracer(ctx, utils.TracerConfig{
		ServiceName: "order-service",
		Env:         cfg.Env,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	logger, err := config.NewLogger(cfg.LoggerConfig("order-service"))
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres.URL, db.Options{
		MaxConns:       cfg.Postgres.MaxConns,
		MinConns:       cfg.Postgres.MinConns,
		ConnectTimeout: cfg.Postgres.ConnectTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	kafkaProducer, err := kafka2.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	bookClient, err := catalog.NewClient(catalog.Config{
		BaseURL:        cfg.Catalog.URL,
		Timeout:        cfg.Catalog.Timeout,
		MaxAttempts:    cfg.Catalog.MaxAttempts,
		InitialBackoff: cfg.Catalog.InitialBackoff,
	}, logger, registry)
	if err != nil {
		log.Fatalf("error creating catalog client: %v", err)
	}

	orderRepo := repository.NewOrderRepository(pool, logger)
	publicationRepo := repository.NewPublicationRepository(pool, logger)
	orderService := service.NewOrderService(logger, orderRepo, publicationRepo, bookClient, kafkaProducer, registry)

	reconciler := worker.NewReconciler(pool, publicationRepo, kafkaProducer, logger, worker.Config{
		Interval:  cfg.Reconciler.Interval,
		Grace:     cfg.Reconciler.Grace,
		BatchSize: cfg.Reconciler.BatchSize,
	})
	reconcilerDone := make(chan struct{})
	go func() {
		defer close(reconcilerDone)
		reconciler.Start(ctx)
	}()

	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "order-service-group"
	}

	consumer := kafka.NewConsumer(orderService, logger)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)

		if err := consumer.Start(ctx, cfg.Kafka.Brokers, groupID, kafka2.WithRetryBackoff(cfg.Kafka.RetryBackoff)); err != nil {
			mylogger.Error(ctx, logger, "Order dispatched consumer stopped", zap.Error(err))
			stop()
		}
	}()

	app := utils.NewFiberApp("order-service", cfg.Limiter.Max, cfg.Limiter.Expiration)
	http.RegisterRoutes(app, http.NewOrderHandler(orderService, logger, cfg.Order.MaxQuantity), cfg.Auth.JWTSecret, registry)

	go func() {
		logger.Info("HTTP Service listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			mylogger.Error(ctx, logger, "Error listening on HTTP port", zap.String("port", cfg.HTTP.Port), zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(
		shutdownCtx,
		logger,
		"Shutting down order service",
	)

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP app", zap.Error(err))
	}

	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		mylogger.Warn(shutdownCtx, logger, "Consumer did not stop in time")
	}

	// The sweep may be inside a transaction that still needs the producer and the pool.
	select {
	case <-reconcilerDone:
	case <-shutdownCtx.Done():
		mylogger.Warn(shutdownCtx, logger, "Reconciler did not stop in time")
	}

	if err := kafkaProducer.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to close kafka producer", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		mylogger.Warn(
			shutdownCtx,
			logger,
			"Failed to shut down telemetry",
			zap.Error(err),
		)
	}

	pool.Close()
}
