package cli

import (
	"context"

	"github.com/gosuda/corral/internal/domain"
)

// promptNotifier queues pending approval requests for the interactive
// terminal prompt in the run loop. Resolutions coming from other channels
// (Slack, sweeper) are ignored here; the run loop detects them when it asks
// the gate to resolve.
type promptNotifier struct {
	pending chan *domain.ApprovalRequest
}

func newPromptNotifier() *promptNotifier {
	return &promptNotifier{pending: make(chan *domain.ApprovalRequest, 16)}
}

func (p *promptNotifier) ApprovalRequested(ctx context.Context, req *domain.ApprovalRequest) error {
	select {
	case p.pending <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (p *promptNotifier) ApprovalResolved(_ context.Context, _ *domain.ApprovalRequest) error {
	return nil
}

// Pending yields requests in arrival order.
func (p *promptNotifier) Pending() <-chan *domain.ApprovalRequest {
	return p.pending
}
