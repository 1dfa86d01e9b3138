package redis

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/logstore"
	"github.com/gosuda/corral/internal/notify"
)

// Bridge republishes broadcast-store lines and approval transitions onto
// Redis channels. It is one subscriber among others; a Redis outage slows
// nothing inside the process.
type Bridge struct {
	ps *PubSub
}

func NewBridge(ps *PubSub) *Bridge {
	return &Bridge{ps: ps}
}

// PubSub exposes the underlying connection for consumers that follow
// channels directly, such as a remote watcher.
func (b *Bridge) PubSub() *PubSub {
	return b.ps
}

// ForwardProcess streams a store subscription to the process channel until
// the store closes or the context is cancelled. Run it in a goroutine.
func (b *Bridge) ForwardProcess(ctx context.Context, processID uuid.UUID, sub *logstore.Subscription) {
	defer sub.Close()

	channel := ProcessChannel(processID)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-sub.Lines():
			if !ok {
				if sub.Overflowed() {
					b.publishEvent(ctx, channel, map[string]string{"type": "overflow"})
				}
				b.publishEvent(ctx, channel, map[string]string{"type": "eos"})
				return
			}

			payload, err := json.Marshal(line)
			if err != nil {
				continue
			}
			if err := b.ps.Publish(ctx, channel, payload); err != nil {
				log.Error().Err(err).Str("channel", channel).Msg("redis.Bridge: publish line failed")
			}
		}
	}
}

// ApprovalRequested implements notify.Notifier so the bridge can be
// registered as a notification channel alongside chat integrations.
func (b *Bridge) ApprovalRequested(ctx context.Context, req *domain.ApprovalRequest) error {
	return b.publishApproval(ctx, req)
}

// ApprovalResolved publishes the terminal transition.
func (b *Bridge) ApprovalResolved(ctx context.Context, req *domain.ApprovalRequest) error {
	return b.publishApproval(ctx, req)
}

// Compile-time interface check.
var _ notify.Notifier = (*Bridge)(nil) //nolint:gochecknoglobals // compile-time check

func (b *Bridge) publishApproval(ctx context.Context, req *domain.ApprovalRequest) error {
	payload, err := json.Marshal(map[string]any{
		"type":       "approval",
		"request_id": req.ID.String(),
		"tool":       req.ToolName,
		"call_id":    req.ToolCallID,
		"status":     req.Status,
		"reason":     req.Reason,
		"timeout_at": req.TimeoutAt,
	})
	if err != nil {
		return err
	}

	return b.ps.Publish(ctx, ApprovalChannel(req.ProcessID), payload)
}

func (b *Bridge) publishEvent(ctx context.Context, channel string, event map[string]string) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := b.ps.Publish(ctx, channel, payload); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("redis.Bridge: publish event failed")
	}
}
