package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/push-broadcast/internal/bootstrap"
	"github.com/kursadbilgin/push-broadcast/internal/config"
	"github.com/kursadbilgin/push-broadcast/internal/handler"
	"github.com/kursadbilgin/push-broadcast/internal/infra/postgresql"
	"github.com/kursadbilgin/push-broadcast/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/push-broadcast/internal/infra/redis"
	"github.com/kursadbilgin/push-broadcast/internal/observability"
	"github.com/kursadbilgin/push-broadcast/internal/queue"
	"github.com/kursadbilgin/push-broadcast/internal/service"
	"github.com/kursadbilgin/push-broadcast/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("push-api", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
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

	metrics := observability.NewMetrics()

	tokenRepo, err := bootstrap.NewTokenRepository(cfg, db, rdb, logger)
	if err != nil {
		logger.Fatal("token repository initialization failed", zap.Error(err))
	}

	tokenService, err := service.NewTokenService(tokenRepo, logger)
	if err != nil {
		logger.Fatal("token service initialization failed", zap.Error(err))
	}

	dispatcher, err := bootstrap.NewDispatcher(cfg, tokenRepo, rdb, metrics, logger)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}

	checks := []handler.ReadinessCheck{
		handler.PostgresCheck(sqlDB),
		handler.RedisCheck(rdb),
	}

	var publisher queue.Publisher
	if cfg.AsyncEnabled() {
		rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal("rabbitmq initialization failed", zap.Error(err))
		}
		defer rabbit.Close()

		publisher = queue.NewRabbitMQPublisher(rabbit)
		checks = append(checks, handler.ReadinessCheck{Name: "rabbitmq", Ping: rabbit.Ping})
	} else {
		logger.Info("RABBITMQ_URL not set, async broadcasts disabled")
	}

	pushHandler, err := handler.NewPushTokenHandler(tokenService, dispatcher, publisher, logger)
	if err != nil {
		logger.Fatal("push token handler initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               "push-broadcast",
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(fiberrecover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, checks...)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterPushTokenRoutes(app, pushHandler, handler.AdminAuth(cfg.AdminAPIKey))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	logger.Info("push-broadcast api started",
		zap.Int("port", cfg.APIPort),
		zap.Bool("adminAuth", cfg.AdminAPIKey != ""),
		zap.Bool("async", cfg.AsyncEnabled()),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("http server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("push-broadcast api stopped")
}
