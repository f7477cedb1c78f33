package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg redis.XMessage) error
}

type Consumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	claimInterval time.Duration
	maxDeliveries int64
	logger        zerolog.Logger
	handler       MessageHandler
}

const pendingPageSize = 100

// NewConsumer builds a group consumer. A message delivered maxDeliveries
// times without being handled is logged and acked.
func NewConsumer(client *redis.Client, stream, group, consumer string, claimInterval time.Duration, maxDeliveries int64, logger zerolog.Logger, handler MessageHandler) *Consumer {
	if claimInterval <= 0 {
		claimInterval = 30 * time.Second
	}
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &Consumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		claimInterval: claimInterval,
		maxDeliveries: maxDeliveries,
		logger:        logger.With().Str("stream", stream).Str("group", group).Logger(),
		handler:       handler,
	}
}

// EnsureGroup creates the consumer group, and the stream with it, if missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.claimInterval)
	defer ticker.Stop()

	c.logger.Info().Str("consumer", c.consumer).Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.read(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error().Err(err).Msg("stream read error")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(2 * time.Second):
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.claimStalled(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error().Err(err).Msg("claim stalled failed")
			}
		default:
		}
	}
}

func (c *Consumer) read(ctx context.Context) error {
	result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    10,
		Block:    5 * time.Second,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	for _, stream := range result {
		for _, msg := range stream.Messages {
			c.process(ctx, msg)
		}
	}
	return nil
}

// process acks only handled messages; failed ones stay pending and are
// re-delivered by claimStalled.
func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	if err := c.handler.Handle(ctx, msg); err != nil {
		c.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Msg("handle message failed")
		return
	}
	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("ack failed")
	}
}

// claimStalled walks the whole pending list page by page. Entries idle for
// longer than the claim interval are re-processed, unless they have used up
// their deliveries, in which case they are dropped.
func (c *Consumer) claimStalled(ctx context.Context) error {
	start := "-"
	for {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: c.stream,
			Group:  c.group,
			Start:  start,
			End:    "+",
			Count:  pendingPageSize,
		}).Result()
		if err != nil {
			return err
		}

		claim, drop := partitionPending(pending, c.claimInterval, c.maxDeliveries)
		for _, entry := range drop {
			c.drop(ctx, entry)
		}
		for _, id := range claim {
			c.claim(ctx, id)
		}

		if len(pending) < pendingPageSize {
			return nil
		}
		if start, err = nextStreamID(pending[len(pending)-1].ID); err != nil {
			return err
		}
	}
}

func (c *Consumer) claim(ctx context.Context, id string) {
	msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.claimInterval,
		Messages: []string{id},
	}).Result()
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", id).Msg("claim error")
		return
	}
	for _, msg := range msgs {
		c.process(ctx, msg)
	}
}

func (c *Consumer) drop(ctx context.Context, entry redis.XPendingExt) {
	event := c.logger.Error().
		Str("message_id", entry.ID).
		Int64("deliveries", entry.RetryCount)

	msgs, err := c.client.XRange(ctx, c.stream, entry.ID, entry.ID).Result()
	if err == nil && len(msgs) == 1 {
		if task, derr := DecodeTask(msgs[0]); derr == nil {
			event = event.Str("task", task.Type).Str("image_id", task.ImageID).Str("storage_key", task.StorageKey)
		}
	}
	event.Msg("message exceeded delivery limit, dropping")

	if err := c.client.XAck(ctx, c.stream, c.group, entry.ID).Err(); err != nil {
		c.logger.Error().Err(err).Str("message_id", entry.ID).Msg("ack failed")
	}
}

// partitionPending splits stalled entries into those to claim again and those
// that have been delivered maxDeliveries times already.
func partitionPending(pending []redis.XPendingExt, minIdle time.Duration, maxDeliveries int64) (claim []string, drop []redis.XPendingExt) {
	for _, entry := range pending {
		if entry.Idle < minIdle {
			continue
		}
		if entry.RetryCount >= maxDeliveries {
			drop = append(drop, entry)
			continue
		}
		claim = append(claim, entry.ID)
	}
	return claim, drop
}

// nextStreamID returns the smallest stream id greater than id.
func nextStreamID(id string) (string, error) {
	ms, seq, ok := strings.Cut(id, "-")
	if !ok {
		return "", fmt.Errorf("invalid stream id %q", id)
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	if n == ^uint64(0) {
		t, err := strconv.ParseUint(ms, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid stream id %q: %w", id, err)
		}
		return strconv.FormatUint(t+1, 10) + "-0", nil
	}
	return ms + "-" + strconv.FormatUint(n+1, 10), nil
}
