package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/callcache/webcache"
)

const (
	TaskWarmURLs = "webcache:warm"
	QueueWarm    = "warm"
)

// ErrNoURLs rejects warm tasks without work
var ErrNoURLs = errors.New("warm task needs at least one url")

type WarmPayload struct {
	URLs []string `json:"urls"`
}

// NewWarmTask builds a task that prefetches urls into the URL cache
func NewWarmTask(urls []string) (*asynq.Task, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	payload, err := json.Marshal(WarmPayload{URLs: urls})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWarmURLs, payload,
		asynq.Queue(QueueWarm),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	), nil
}

// Warmer is the part of the URL cache the warm handler uses
type Warmer interface {
	Warm(ctx context.Context, urls ...string) error
}

var _ Warmer = (*webcache.Cache)(nil)

// HandleWarm processes warm tasks. Fetch failures are returned so asynq
// retries them; malformed payloads are dropped.
func HandleWarm(w Warmer, logger zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p WarmPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			logger.Error().Err(err).Msg("bad warm payload")
			return fmt.Errorf("decode warm payload: %w: %w", err, asynq.SkipRetry)
		}
		if len(p.URLs) == 0 {
			return fmt.Errorf("%w: %w", ErrNoURLs, asynq.SkipRetry)
		}

		start := time.Now()
		err := w.Warm(ctx, p.URLs...)
		log := logger.With().Int("urls", len(p.URLs)).Dur("duration", time.Since(start)).Logger()
		if err != nil {
			log.Warn().Err(err).Msg("warm finished with errors")
			return err
		}
		log.Info().Msg("warm done")
		return nil
	}
}
