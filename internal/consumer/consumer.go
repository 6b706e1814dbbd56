// Package consumer reads book events from a Redis stream with a consumer
// group and hands them to the pipeline.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"optionflow/internal/instrumentation"
	"optionflow/internal/models"
)

// EventHandler processes one decoded book event. A returned error leaves
// the message unacknowledged so it is redelivered.
type EventHandler func(ctx context.Context, ev models.BookEvent, streamID string) error

// Config holds consumer configuration.
type Config struct {
	StreamKey     string        // e.g. "md:options"
	ConsumerGroup string        // e.g. "optionflow"
	ConsumerName  string        // e.g. "optionflow-1"
	BlockTime     time.Duration // how long XREADGROUP blocks
	BatchSize     int64         // messages per read
}

// Consumer reads book events from Redis Streams using XREADGROUP + XACK
// for at-least-once delivery.
type Consumer struct {
	client  *redis.Client
	cfg     Config
	handler EventHandler
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// New creates the consumer group if needed and returns a Consumer.
func New(ctx context.Context, client *redis.Client, cfg Config, handler EventHandler, logger *slog.Logger, m *instrumentation.Metrics) (*Consumer, error) {
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	c := &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "consumer", "stream_key", cfg.StreamKey),
		metrics: m,
	}

	// XGroupCreateMkStream creates the stream if missing
	err := client.XGroupCreateMkStream(ctx, cfg.StreamKey, cfg.ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("consumer_initialized",
		"consumer_group", cfg.ConsumerGroup,
		"consumer_name", cfg.ConsumerName,
	)

	return c, nil
}

// Start consumes messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer_starting")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer_stopping")
			return ctx.Err()
		default:
		}

		// ">" reads only messages never delivered to this group
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.ConsumerGroup,
			Consumer: c.cfg.ConsumerName,
			Streams:  []string{c.cfg.StreamKey, ">"},
			Count:    c.cfg.BatchSize,
			Block:    c.cfg.BlockTime,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.logger.Error("xreadgroup_failed", "error", err)
			c.recordError("xreadgroup")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				if err := c.processMessage(ctx, message); err != nil {
					c.logger.Error("message_processing_failed",
						"stream_id", message.ID,
						"error", err,
					)
					c.recordError("handler")
					continue
				}
				c.ack(ctx, message.ID)
			}
		}
	}
}

// processMessage decodes and handles one message. Undecodable messages are
// acknowledged and dropped since redelivery cannot fix them.
func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	ev, err := DecodeMessage(msg.Values)
	if err != nil {
		c.logger.Warn("message_dropped", "stream_id", msg.ID, "error", err)
		c.recordError("decode")
		return nil
	}

	if err := c.handler(ctx, ev, msg.ID); err != nil {
		return fmt.Errorf("handler failed: %w", err)
	}
	return nil
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.cfg.StreamKey, c.cfg.ConsumerGroup, id).Err(); err != nil {
		// the message will be redelivered
		c.logger.Error("xack_failed", "stream_id", id, "error", err)
		c.recordError("xack")
	}
}

func (c *Consumer) recordError(errorType string) {
	if c.metrics != nil {
		c.metrics.RecordError("consumer", errorType)
	}
}

// DecodeMessage extracts the JSON BookEvent in the "data" field of a stream
// message.
func DecodeMessage(values map[string]any) (models.BookEvent, error) {
	dataField, ok := values["data"]
	if !ok {
		return models.BookEvent{}, fmt.Errorf("message missing 'data' field")
	}

	var raw []byte
	switch v := dataField.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return models.BookEvent{}, fmt.Errorf("data field is %T, not a string", dataField)
	}

	var ev models.BookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return models.BookEvent{}, fmt.Errorf("json unmarshal failed: %w", err)
	}
	return ev, nil
}
