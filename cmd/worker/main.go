package main

import (
	"fmt"
	"os"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/callcache/internal/config"
	"github.com/briangreenhill/callcache/internal/jobs"
	"github.com/briangreenhill/callcache/store"
	"github.com/briangreenhill/callcache/webcache"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	logger = logger.Level(cfg.Level())
	if cfg.Backend != config.BackendRedis {
		logger.Fatal().Str("backend", cfg.Backend).Msg("the worker shares state through redis and needs CALLCACHE_BACKEND=redis")
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	st := store.NewRedisStore(store.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = st.Close() }()

	wc := webcache.New(st,
		webcache.NewHTTPFetcher(
			webcache.WithTimeout(cfg.Fetch.Timeout),
			webcache.WithUserAgent(cfg.Fetch.UserAgent),
		),
		webcache.WithTTL(cfg.Fetch.TTL),
		webcache.WithParallelism(cfg.Fetch.Parallelism),
		webcache.WithLogger(logger),
	)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Jobs.Concurrency,
		Queues: map[string]int{
			jobs.QueueWarm: 10,
			"default":      1,
		},
		Logger: asynqLogger{logger},
	})
	mux := asynq.NewServeMux()
	mux.Handle(jobs.TaskWarmURLs, jobs.HandleWarm(wc, logger))

	logger.Info().Int("concurrency", cfg.Jobs.Concurrency).Msg("worker running")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}

// asynqLogger routes asynq's internal logging through zerolog
type asynqLogger struct{ l zerolog.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
