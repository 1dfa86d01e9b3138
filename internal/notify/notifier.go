// Package notify alerts humans that an approval decision is wanted and
// reports how pending requests were resolved.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/corral/internal/domain"
)

// Notifier delivers approval lifecycle notifications to one channel
// (a chat platform, a terminal, a log).
type Notifier interface {
	// ApprovalRequested announces a newly created pending request.
	ApprovalRequested(ctx context.Context, req *domain.ApprovalRequest) error

	// ApprovalResolved announces the terminal outcome of a request.
	ApprovalResolved(ctx context.Context, req *domain.ApprovalRequest) error
}

// LogNotifier writes notifications to the structured log. It is the fallback
// when no external channel is configured.
type LogNotifier struct{}

// Compile-time interface check.
var _ Notifier = (*LogNotifier)(nil) //nolint:gochecknoglobals // compile-time check

func (LogNotifier) ApprovalRequested(_ context.Context, req *domain.ApprovalRequest) error {
	log.Info().
		Str("request_id", req.ID.String()).
		Str("process_id", req.ProcessID.String()).
		Str("tool", req.ToolName).
		Time("timeout_at", req.TimeoutAt).
		Msg("approval pending")

	return nil
}

func (LogNotifier) ApprovalResolved(_ context.Context, req *domain.ApprovalRequest) error {
	log.Info().
		Str("request_id", req.ID.String()).
		Str("tool", req.ToolName).
		Str("status", string(req.Status)).
		Str("reason", req.Reason).
		Msg("approval resolved")

	return nil
}

// FormatRequest renders a request as a short human-readable line, shared by
// notifier implementations.
func FormatRequest(req *domain.ApprovalRequest) string {
	return fmt.Sprintf("Agent process %s wants to run tool %q (call %s). Decide before %s.",
		req.ProcessID, req.ToolName, req.ToolCallID, req.TimeoutAt.Format(time.RFC3339))
}

// FormatOutcome renders a terminal request status for humans.
func FormatOutcome(req *domain.ApprovalRequest) string {
	switch req.Status {
	case domain.ApprovalStatusDenied:
		return fmt.Sprintf("Tool %q was denied: %s", req.ToolName, req.Reason)
	case domain.ApprovalStatusTimedOut:
		return fmt.Sprintf("Tool %q timed out waiting for a decision", req.ToolName)
	default:
		return fmt.Sprintf("Tool %q was %s", req.ToolName, req.Status)
	}
}
