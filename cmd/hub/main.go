package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/plainer/hub/internal/agent"
	"github.com/plainer/hub/internal/blob"
	"github.com/plainer/hub/internal/cache"
	"github.com/plainer/hub/internal/config"
	"github.com/plainer/hub/internal/db"
	"github.com/plainer/hub/internal/hub"
	"github.com/plainer/hub/internal/router"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	database, err := db.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("db open")
	}
	defer database.Close()

	if err := db.Migrate(database, cfg.DBDriver); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	log.Info().Msg("database migrations applied")

	ctx := context.Background()

	var blobs blob.Store
	switch cfg.StorageBackend {
	case "s3":
		blobs, err = blob.NewS3Store(ctx, cfg)
	default:
		blobs, err = blob.NewLocalStore(cfg.StorageDir)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("blob store")
	}

	var contentCache cache.ContentCache = cache.NoopCache{}
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL, time.Duration(cfg.CacheTTLSecs)*time.Second)
		if err != nil {
			log.Fatal().Err(err).Msg("redis cache")
		}
		defer redisCache.Close()
		contentCache = redisCache
	}

	handler := router.New(cfg, router.Deps{
		DB:          database,
		Blobs:       blobs,
		Cache:       contentCache,
		Broadcaster: hub.NewBroadcastHub(log),
		Streamer:    agent.NewAnthropicStreamer(cfg.AnthropicAPIKey, cfg.AgentModel, cfg.AgentMaxTokens),
		Log:         log,
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// Websocket connections need unlimited write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Str("driver", cfg.DBDriver).Msg("plainer hub listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-done
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
