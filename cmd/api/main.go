package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"playlist-exporter/internal/access"
	api "playlist-exporter/internal/api"
	"playlist-exporter/internal/auth"
	"playlist-exporter/internal/config"
	"playlist-exporter/internal/exports"
	"playlist-exporter/internal/logging"
	"playlist-exporter/internal/queue"
	"playlist-exporter/internal/ratelimit"
	"playlist-exporter/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New("api", cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if cfg.AccessTokenKey == "" {
		log.Fatal("ACCESS_TOKEN_KEY is required")
	}

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.WithError(err).Fatal("migrations")
	}

	redisClient := queue.NewClient(cfg)
	defer redisClient.Close()

	q := queue.NewRedisQueue(redisClient, cfg, log)
	limiter := ratelimit.NewTokenBucket(redisClient, "ratelimit:export:", cfg.RateLimitCapacity, cfg.RateLimitRefill, cfg.RateLimitTTL)
	gateway := exports.NewGateway(access.NewGuard(st), q, limiter, log)

	server := api.New(st, gateway, auth.NewJWTVerifier(cfg.AccessTokenKey, cfg.AccessTokenMaxAge), log).
		WithHealthCheck("postgres", st.Ping).
		WithHealthCheck("redis", q.Ping)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.WithField("port", cfg.HTTPPort).Info("api listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	log.Info("api stopped")
}
