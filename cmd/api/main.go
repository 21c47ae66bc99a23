// cmd/api/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/callcache/internal/config"
	"github.com/briangreenhill/callcache/internal/http/routes"
	"github.com/briangreenhill/callcache/memo"
	"github.com/briangreenhill/callcache/store"
	"github.com/briangreenhill/callcache/webcache"
)

func main() {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	logger = logger.Level(cfg.Level())
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	// Store
	var st store.Store
	var jobs routes.Enqueuer
	switch cfg.Backend {
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory store, state is lost on exit and warm jobs are disabled")
		st = store.NewMemoryStore()
	default:
		rs := store.NewRedisStore(store.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rs.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rs.Ping(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not reachable yet")
		}
		cancel()
		st = rs

		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("closing asynq client")
			}
		}()
		jobs = client
	}

	fetcher := webcache.NewHTTPFetcher(
		webcache.WithTimeout(cfg.Fetch.Timeout),
		webcache.WithUserAgent(cfg.Fetch.UserAgent),
	)

	s := routes.New(routes.ServerOptions{
		Store: st,
		Memo:  memo.New(st, memo.WithLogger(logger)),
		Web: webcache.New(st, fetcher,
			webcache.WithTTL(cfg.Fetch.TTL),
			webcache.WithParallelism(cfg.Fetch.Parallelism),
			webcache.WithLogger(logger),
		),
		Jobs:     jobs,
		Logger:   logger,
		APIToken: cfg.APIToken,
	})

	logger.Info().Str("port", cfg.Port).Str("backend", cfg.Backend).Msg("starting api")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
