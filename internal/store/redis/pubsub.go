// Package redis bridges in-process broadcast stores to Redis pub/sub so
// consumers outside the supervisor process (live log viewers, approval UIs)
// can follow a process in real time.
package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// forwardBuffer is the delivery buffer between the redis client and a
// Stream consumer.
const forwardBuffer = 64

type PubSub struct {
	client *redis.Client
}

// New connects and verifies the server is reachable before returning.
func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping %s: %w", addr, err)
	}

	return &PubSub{client: client}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

// Publish sends one payload to a channel. Payloads are opaque here; callers
// encode JSON before handing them over.
func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish %s: %w", channel, err)
	}
	return nil
}

// Stream subscribes to a channel and forwards payloads until the context is
// cancelled or the returned detach function is called. The subscription is
// confirmed before Stream returns, so a Publish issued afterwards from
// anywhere is not missed.
func (ps *PubSub) Stream(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := ps.client.Subscribe(ctx, channel)

	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.PubSub.Stream %s: confirm: %w", channel, err)
	}

	out := make(chan []byte, forwardBuffer)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	detach := func() { _ = sub.Close() }

	return out, detach, nil
}

// ProcessChannel returns the Redis channel name for a process's log stream.
func ProcessChannel(processID uuid.UUID) string {
	return "process:" + processID.String()
}

// ApprovalChannel returns the Redis channel name for a process's approval events.
func ApprovalChannel(processID uuid.UUID) string {
	return "approvals:" + processID.String()
}

// SessionChannel returns the Redis channel name for session-level events.
func SessionChannel(sessionID uuid.UUID) string {
	return "session:" + sessionID.String()
}
