// Command server runs the gateway HTTP server.
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

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/httpserver"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/observability"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/repo/redisstore"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/sessioncache"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/uploader/cfbed"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/adapter/upstream/gemini"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/app"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/config"
	"github.com/fairyhunter13/gemini-pool-gateway/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	accounts := postgres.NewAccountRepo(pool)
	models := postgres.NewModelRepo(pool)
	configs := postgres.NewConfigRepo(pool)
	cursor := redisstore.NewCursorStore(rdb)
	imageCache := redisstore.NewImageCache(rdb, cfg.ImageCacheTTL)
	sessions := sessioncache.New()

	upstream := gemini.New(cfg)
	uploader := cfbed.New(cfg)

	poolSvc := usecase.NewPoolService(accounts, cursor, cfg.CursorMaxAttempts)
	sessionSvc := usecase.NewSessionService(sessions, upstream)
	imageSvc := usecase.NewImageService(configs, uploader, imageCache)
	chatSvc := usecase.NewChatService(poolSvc, sessionSvc, upstream, configs, imageSvc, cfg.MaxRetries, cfg.AttemptTimeout)

	srv := httpserver.NewServer(cfg, chatSvc, poolSvc, accounts, models, configs, uploader,
		func(ctx context.Context) error { return pool.Ping(ctx) },
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	)
	router := app.BuildRouter(cfg, srv)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", slog.Int("port", cfg.Port), slog.String("env", cfg.AppEnv))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
