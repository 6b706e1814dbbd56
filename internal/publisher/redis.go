// Package publisher writes signals to Redis for downstream collaborators.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"optionflow/internal/models"
)

// Config holds publisher settings.
type Config struct {
	TTL          time.Duration // lifetime of signal:{strike}:{type}
	Stream       string        // output stream, empty disables XADD
	StreamMaxLen int64         // approximate cap on the output stream
}

// RedisPublisher stores the latest signal per series under a TTL key and
// appends every signal to an output stream.
type RedisPublisher struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

// NewRedisPublisher creates a publisher on an existing client.
func NewRedisPublisher(client *redis.Client, cfg Config, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "redis_publisher"),
	}
}

// Key returns the cache key of a series, e.g. "signal:21000:C".
func Key(series models.SeriesKey) string {
	return fmt.Sprintf("signal:%s:%s", series.Strike, series.Type)
}

// Publish writes sig with SET key value EX ttl and, when a stream is
// configured, XADD in the same transaction.
func (p *RedisPublisher) Publish(ctx context.Context, sig *models.Signal) error {
	startTime := time.Now()

	jsonBytes, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}

	cacheKey := Key(sig.Series())

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, cacheKey, jsonBytes, p.cfg.TTL)
	if p.cfg.Stream != "" {
		pipe.XAdd(ctx, streamArgs(p.cfg, cacheKey, sig.ID, jsonBytes))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}

	p.logger.Debug("signal_published",
		"signal_id", sig.ID,
		"cache_key", cacheKey,
		"ttl_sec", p.cfg.TTL.Seconds(),
		"size_bytes", len(jsonBytes),
		"latency_ms", time.Since(startTime).Milliseconds(),
	)

	return nil
}

func streamArgs(cfg Config, cacheKey, id string, payload []byte) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: cfg.Stream,
		Values: map[string]any{
			"id":   id,
			"key":  cacheKey,
			"data": string(payload),
		},
	}
	if cfg.StreamMaxLen > 0 {
		args.MaxLen = cfg.StreamMaxLen
		args.Approx = true
	}
	return args
}
