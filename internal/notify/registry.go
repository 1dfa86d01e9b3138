package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/corral/internal/domain"
)

// Registry fans notifications out to every registered channel. It
// implements Notifier itself so callers hold a single dependency.
type Registry struct {
	named map[string]Notifier
	order []string
}

// Compile-time interface check.
var _ Notifier = (*Registry)(nil) //nolint:gochecknoglobals // compile-time check

// NewRegistry creates an empty Registry. Registration happens during wiring;
// the registry is not safe for concurrent Register calls afterwards.
func NewRegistry() *Registry {
	return &Registry{
		named: make(map[string]Notifier),
	}
}

// Register adds a notifier under a channel name, preserving registration order.
func (r *Registry) Register(name string, n Notifier) {
	if _, ok := r.named[name]; !ok {
		r.order = append(r.order, name)
	}
	r.named[name] = n
}

// Get returns the notifier for the given channel name, or false if not registered.
func (r *Registry) Get(name string) (Notifier, bool) {
	n, ok := r.named[name]
	return n, ok
}

// ApprovalRequested delivers to every channel. A failing channel is logged
// and skipped so one broken integration cannot mute the rest.
func (r *Registry) ApprovalRequested(ctx context.Context, req *domain.ApprovalRequest) error {
	for _, name := range r.order {
		if err := r.named[name].ApprovalRequested(ctx, req); err != nil {
			log.Error().Err(err).Str("channel", name).Str("request_id", req.ID.String()).Msg("notify.Registry: approval-requested delivery failed")
		}
	}

	return nil
}

// ApprovalResolved delivers to every channel, logging per-channel failures.
func (r *Registry) ApprovalResolved(ctx context.Context, req *domain.ApprovalRequest) error {
	for _, name := range r.order {
		if err := r.named[name].ApprovalResolved(ctx, req); err != nil {
			log.Error().Err(err).Str("channel", name).Str("request_id", req.ID.String()).Msg("notify.Registry: approval-resolved delivery failed")
		}
	}

	return nil
}
