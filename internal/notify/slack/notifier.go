// Package slack delivers approval notifications to a Slack channel.
package slack

import (
	"context"
	"fmt"
	"sync"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/notify"
)

// SlackAPI abstracts the subset of the Slack client used by SlackNotifier.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessage(channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackNotifier posts approval lifecycle messages to a fixed channel.
// Outcome messages thread under the original pending message so a channel
// full of requests stays readable.
type SlackNotifier struct {
	api       SlackAPI
	channelID string

	// threads maps request id -> message timestamp of the pending post,
	// guarded by mu: requests for different processes notify concurrently.
	mu      sync.Mutex
	threads map[string]string
}

// Compile-time interface check.
var _ notify.Notifier = (*SlackNotifier)(nil) //nolint:gochecknoglobals // compile-time check

// New creates a SlackNotifier posting to the given channel.
func New(api SlackAPI, channelID string) *SlackNotifier {
	return &SlackNotifier{
		api:       api,
		channelID: channelID,
		threads:   make(map[string]string),
	}
}

func (n *SlackNotifier) ApprovalRequested(_ context.Context, req *domain.ApprovalRequest) error {
	_, ts, err := n.api.PostMessage(n.channelID, slacklib.MsgOptionText(notify.FormatRequest(req), false))
	if err != nil {
		return fmt.Errorf("slack.SlackNotifier.ApprovalRequested: %w", err)
	}

	n.mu.Lock()
	n.threads[req.ID.String()] = ts
	n.mu.Unlock()

	return nil
}

func (n *SlackNotifier) ApprovalResolved(_ context.Context, req *domain.ApprovalRequest) error {
	msgOpts := []slacklib.MsgOption{
		slacklib.MsgOptionText(notify.FormatOutcome(req), false),
	}

	n.mu.Lock()
	ts, ok := n.threads[req.ID.String()]
	delete(n.threads, req.ID.String())
	n.mu.Unlock()
	if ok {
		msgOpts = append(msgOpts, slacklib.MsgOptionTS(ts))
	}

	_, _, err := n.api.PostMessage(n.channelID, msgOpts...)
	if err != nil {
		return fmt.Errorf("slack.SlackNotifier.ApprovalResolved: %w", err)
	}

	return nil
}
