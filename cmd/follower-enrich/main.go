package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/scrapeworks/follower-enrich/internal/config"
	"github.com/scrapeworks/follower-enrich/pkg/enrich"
	"github.com/scrapeworks/follower-enrich/pkg/logging"
	"github.com/scrapeworks/follower-enrich/pkg/provider"
	"github.com/scrapeworks/follower-enrich/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fallback := logging.Setup(logging.DefaultConfig())
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The rate-limit cooldown lives in process memory unless a Redis
	// address is configured, in which case it is shared across instances.
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		store = ratelimit.NewRedisStore(redisClient)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis-backed rate limit store")
	}

	tracker := ratelimit.NewTracker(store, logging.NewLogger("ratelimit"))

	providerCfg := provider.DefaultConfig(cfg.Provider.AccessKey)
	providerCfg.BaseURL = cfg.Provider.BaseURL
	providerCfg.Timeout = cfg.Provider.Timeout
	providerCfg.Retry.MaxAttempts = cfg.Provider.MaxRetries
	providerCfg.Retry.InitialBackoff = cfg.Provider.InitialBackoff
	providerCfg.RateLimiter = tracker

	client, err := provider.New(providerCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create provider client")
	}

	pipeline := enrich.New(client)

	router := newRouter(cfg, client, pipeline)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting follower enrichment server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}
