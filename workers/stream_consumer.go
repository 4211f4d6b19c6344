package workers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"pool-gamification-system/models"

	"github.com/redis/go-redis/v9"
)

// Dispatcher receives every decoded event exactly once per claim. A
// returned error leaves the record unacknowledged, so it is redelivered
// to this or another consumer in the group — the at-least-once contract
// every downstream mutation tolerates via idempotency keys.
type Dispatcher interface {
	Evaluate(streamName, eventID string, env *models.EventEnvelope) ([]string, error)
}

// StreamClient is the slice of the redis client the consumer needs;
// fake implementations stand in for it in tests.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	Close() error
}

// StreamConsumer claims batches of records from the mining event
// streams under a named consumer group. Several processes may run the
// same group concurrently; the group's cursor guarantees each record
// goes to exactly one of them at a time. Independent groups (e.g.
// gamification and personal-bests) read the same streams without
// interfering.
type StreamConsumer struct {
	Client     StreamClient
	Group      string
	ConsumerID string
	Streams    []string
	Dispatch   Dispatcher

	BatchSize int64
	Block     time.Duration
	MinIdle   time.Duration // pending records older than this are reclaimed
}

func NewStreamConsumer(client StreamClient, group, consumerID string, streams []string, dispatch Dispatcher) *StreamConsumer {
	return &StreamConsumer{
		Client:     client,
		Group:      group,
		ConsumerID: consumerID,
		Streams:    streams,
		Dispatch:   dispatch,
		BatchSize:  100,
		Block:      5 * time.Second,
		MinIdle:    time.Minute,
	}
}

// EnsureGroups creates the consumer group on every stream, creating the
// stream itself if the producer hasn't written yet. Idempotent: an
// already-existing group is fine.
func (c *StreamConsumer) EnsureGroups(ctx context.Context) error {
	for _, stream := range c.Streams {
		err := c.Client.XGroupCreateMkStream(ctx, stream, c.Group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return err
		}
	}
	return nil
}

// Run is the blocking consume loop: claim up to BatchSize unacked
// records (blocking up to Block when the streams are idle), decode,
// dispatch, acknowledge. Records are handled sequentially within a
// batch to keep ledger writes ordered per user. Returns when ctx is
// canceled; an in-flight batch finishes (or its unacked remainder is
// redelivered later).
func (c *StreamConsumer) Run(ctx context.Context) error {
	if err := c.EnsureGroups(ctx); err != nil {
		return err
	}
	log.Printf("📡 [%s] Consuming %v as %s (batch=%d, block=%s)",
		c.Group, c.Streams, c.ConsumerID, c.BatchSize, c.Block)

	// XREADGROUP wants each stream name followed by a ">" cursor.
	streamArgs := make([]string, 0, len(c.Streams)*2)
	streamArgs = append(streamArgs, c.Streams...)
	for range c.Streams {
		streamArgs = append(streamArgs, ">")
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("📡 [%s] Consumer %s stopping", c.Group, c.ConsumerID)
			return nil
		default:
		}

		c.reclaim(ctx)

		results, err := c.Client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.Group,
			Consumer: c.ConsumerID,
			Streams:  streamArgs,
			Count:    c.BatchSize,
			Block:    c.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // blocked out with nothing to claim
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("❌ [%s] Claim failed: %v — retrying", c.Group, err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				c.handleRecord(ctx, stream.Stream, msg)
			}
		}
	}
}

// reclaim takes over stale pending records: entries claimed earlier by
// a consumer that died, or left unacked after a failed dispatch.
// XREADGROUP with ">" hands out only never-delivered records, so
// without this pass an unacked record would sit in the group's pending
// list forever.
func (c *StreamConsumer) reclaim(ctx context.Context) {
	for _, stream := range c.Streams {
		start := "0-0"
		for {
			msgs, next, err := c.Client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    c.Group,
				Consumer: c.ConsumerID,
				MinIdle:  c.MinIdle,
				Start:    start,
				Count:    c.BatchSize,
			}).Result()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("⚠️  [%s] Reclaim failed on %s: %v", c.Group, stream, err)
				}
				break
			}
			for _, msg := range msgs {
				c.handleRecord(ctx, stream, msg)
			}
			if len(msgs) == 0 || next == "0-0" {
				break
			}
			start = next
		}
	}
}

func (c *StreamConsumer) handleRecord(ctx context.Context, stream string, msg redis.XMessage) {
	env, err := models.ParseEnvelope(msg.Values)
	if err != nil {
		// Poison-message policy: a malformed record can never succeed,
		// so it must not retry forever. Log and acknowledge.
		log.Printf("⚠️  [%s] Undecodable record %s on %s: %v — acking", c.Group, msg.ID, stream, err)
		c.ack(ctx, stream, msg.ID)
		return
	}

	if _, err := c.Dispatch.Evaluate(stream, msg.ID, env); err != nil {
		// Leave unacked: the group redelivers it on a later claim.
		log.Printf("❌ [%s] Dispatch failed for %s (%s): %v — leaving unacked", c.Group, msg.ID, env.Event, err)
		return
	}

	c.ack(ctx, stream, msg.ID)
}

func (c *StreamConsumer) ack(ctx context.Context, stream, id string) {
	if err := c.Client.XAck(ctx, stream, c.Group, id).Err(); err != nil {
		log.Printf("⚠️  [%s] Ack failed for %s on %s: %v", c.Group, id, stream, err)
	}
}

// Close releases the consumer's transport connection.
func (c *StreamConsumer) Close() error {
	return c.Client.Close()
}
