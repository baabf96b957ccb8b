package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/bookshop/pkg/config"
	"github.com/sakashimaa/bookshop/pkg/db"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/pkg/utils"
	"github.com/sakashimaa/bookshop/services/catalog/internal/repository"
	"github.com/sakashimaa/bookshop/services/catalog/internal/service"
	"github.com/sakashimaa/bookshop/services/catalog/internal/transport/http"
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
		ServiceName: "catalog-service",
		Env:         cfg.Env,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	logger, err := config.NewLogger(cfg.LoggerConfig("catalog-service"))
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

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		mylogger.Warn(ctx, logger, "Redis unavailable, book reads go straight to Postgres", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	bookRepo := repository.NewBookRepository(pool, logger)
	bookService := service.NewCachedBookService(
		service.NewBookService(bookRepo, logger),
		rdb,
		cfg.Redis.CacheTTL,
		logger,
	)

	app := utils.NewFiberApp("catalog-service", cfg.Limiter.Max, cfg.Limiter.Expiration)
	http.RegisterRoutes(app, http.NewBookHandler(bookService, logger), registry)

	go func() {
		logger.Info("HTTP Service listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			mylogger.Error(ctx, logger, "Error listening on HTTP port", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down catalog service")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP app", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to close redis client", zap.Error(err))
	}

	pool.Close()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}
}
