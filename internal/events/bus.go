// Package events publishes field operation events to Redis Streams so
// external consumers can follow field activity in near real time.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/semfield/internal/field"
)

// Bus fans field events out over Redis Streams, one stream per field.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewBus connects to Redis and verifies the connection.
func NewBus(redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, logger: logger}, nil
}

// Event is one published field operation.
type Event struct {
	FieldID string         `json:"field_id"`
	Entry   field.LogEntry `json:"entry"`
}

const streamPrefix = "semfield:events:"

// Publish appends a field operation to the field's event stream.
func (b *Bus) Publish(ctx context.Context, fieldID string, entry field.LogEntry) error {
	data, err := json.Marshal(Event{FieldID: fieldID, Entry: entry})
	if err != nil {
		return err
	}

	stream := streamPrefix + fieldID
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: 1024,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published event",
		zap.String("field", fieldID),
		zap.String("op", entry.Op))
	return nil
}

// Subscribe follows a field's event stream from now on.
// Returns a channel that emits events. Cancel the context to stop.
func (b *Bus) Subscribe(ctx context.Context, fieldID string) <-chan Event {
	ch := make(chan Event, 16)
	stream := streamPrefix + fieldID

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev Event
					if json.Unmarshal([]byte(data), &ev) != nil {
						continue
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// PublishNew emits any field log entries past afterSeq, returning the
// highest sequence published. Lets a poller drain the operation log
// without duplicating events across calls.
func (b *Bus) PublishNew(ctx context.Context, f *field.Field, afterSeq int64) (int64, error) {
	last := afterSeq
	for _, entry := range f.OperationLog() {
		if entry.Seq <= afterSeq {
			continue
		}
		if err := b.Publish(ctx, f.ID, entry); err != nil {
			return last, err
		}
		last = entry.Seq
	}
	return last, nil
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
