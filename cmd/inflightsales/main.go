// Package main запускает HTTP-сервер сервиса бортовых продаж.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/inflight-sales/internal/config"
	"github.com/mmeshcher/inflight-sales/internal/events"
	"github.com/mmeshcher/inflight-sales/internal/handler"
	"github.com/mmeshcher/inflight-sales/internal/handoff"
	"github.com/mmeshcher/inflight-sales/internal/middleware"
	"github.com/mmeshcher/inflight-sales/internal/remote"
	"github.com/mmeshcher/inflight-sales/internal/repository"
	"github.com/mmeshcher/inflight-sales/internal/service"
)

func main() {
	bootstrap, _ := zap.NewProduction()

	cfg, err := config.Parse()
	if err != nil {
		bootstrap.Sugar().Fatalw("configuration error", "error", err.Error())
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		bootstrap.Sugar().Fatalw("logger initialization error", "error", err.Error())
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Info("DATABASE_URI is empty, using in-memory catalog")
		repo = repository.NewMemoryRepository()
	}

	var catalogClient service.CatalogClient
	if cfg.CatalogServiceAddress != "" {
		catalogClient = remote.NewClient(cfg.CatalogServiceAddress)
	}

	var handoffs service.HandoffStore
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			sugar.Fatalw("redis connection error", "error", err.Error(), "addr", cfg.RedisAddress)
		}
		handoffs = handoff.NewRedisStore(rdb)
	} else {
		handoffs = handoff.NewMemoryStore()
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers)
	}

	svc := service.NewService(repo, catalogClient, handoffs, publisher, logger, service.Options{
		PaymentDelay: cfg.PaymentDelay,
	})
	defer func() {
		if err := svc.Close(); err != nil {
			sugar.Errorw("service close error", "error", err.Error())
		}
	}()

	sessions := middleware.NewSessionMiddleware(cfg.SessionSecret)
	h := handler.NewHandler(svc, logger, sessions)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Синхронизация каталога и очистка простаивающих сессий
	g.Go(func() error {
		svc.StartBackground(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting inflight sales server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
