package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sakashimaa/bookshop/pkg/config"
	kafka2 "github.com/sakashimaa/bookshop/pkg/kafka"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/pkg/utils"
	"github.com/sakashimaa/bookshop/services/dispatcher/internal/service"
	"github.com/sakashimaa/bookshop/services/dispatcher/internal/transport/kafka"
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
		ServiceName: "dispatcher-service",
		Env:         cfg.Env,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	logger, err := config.NewLogger(cfg.LoggerConfig("dispatcher-service"))
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	kafkaProducer, err := kafka2.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	dispatcherService := service.NewDispatcherService(kafkaProducer, logger, registry)

	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "dispatcher-service-group"
	}

	consumer := kafka.NewConsumer(dispatcherService, logger)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)

		if err := consumer.Start(ctx, cfg.Kafka.Brokers, groupID, kafka2.WithRetryBackoff(cfg.Kafka.RetryBackoff)); err != nil {
			mylogger.Error(ctx, logger, "Order accepted consumer stopped", zap.Error(err))
			stop()
		}
	}()

	app := utils.NewFiberApp("dispatcher-service", cfg.Limiter.Max, cfg.Limiter.Expiration)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "UP"})
	})
	app.Get("/metrics", utils.MetricsHandler(registry))

	go func() {
		logger.Info("HTTP Service listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			mylogger.Error(ctx, logger, "Error listening on HTTP port", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down dispatcher service")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP app", zap.Error(err))
	}

	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
	}

	if err := kafkaProducer.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to close kafka producer", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}
}
