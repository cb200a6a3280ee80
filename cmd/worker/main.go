package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kursadbilgin/push-broadcast/internal/bootstrap"
	"github.com/kursadbilgin/push-broadcast/internal/config"
	"github.com/kursadbilgin/push-broadcast/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/push-broadcast/internal/infra/redis"
	"github.com/kursadbilgin/push-broadcast/internal/observability"
	"github.com/kursadbilgin/push-broadcast/internal/queue"
	"github.com/kursadbilgin/push-broadcast/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	metricsAddr     = ":9091"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("push-worker", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if !cfg.AsyncEnabled() {
		logger.Fatal("RABBITMQ_URL is required for the worker")
	}

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	metrics := observability.NewMetrics()

	tokenRepo, err := bootstrap.NewTokenRepository(cfg, db, rdb, logger)
	if err != nil {
		logger.Fatal("token repository initialization failed", zap.Error(err))
	}

	dispatcher, err := bootstrap.NewDispatcher(cfg, tokenRepo, rdb, metrics, logger)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}

	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerPrefetch, logger)
	defer consumer.Close()

	worker, err := service.NewBroadcastWorker(dispatcher, consumer, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("broadcast worker initialization failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Start(groupCtx)
	})
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	logger.Info("push-broadcast worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("prefetch", cfg.WorkerPrefetch),
		zap.String("metricsAddr", metricsAddr),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", zap.Error(err))
	}

	logger.Info("push-broadcast worker stopped")
}
