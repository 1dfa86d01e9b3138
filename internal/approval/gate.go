// Package approval tracks pending tool-call approval requests and resolves
// them to exactly one terminal status: approved, denied, or timed out.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/notify"
)

// DecisionTimeout is the fixed window between request creation and the
// automatic timed_out transition: 36000 seconds, sized for long human
// review cycles. This is a documented contract value, not configuration.
const DecisionTimeout = 10 * time.Hour

// CancelledReason is the denial reason recorded when a request's owning
// process is cancelled before a decision arrives.
const CancelledReason = "process cancelled"

// Decision is an external resolution of a pending request.
type Decision struct {
	Approve bool
	Reason  string // denial reason; ignored on approval
}

type callKey struct {
	processID uuid.UUID
	callID    string
}

// request pairs the record with its own lock and completion signal. State
// transitions lock only this request, so unrelated processes never
// serialize on each other.
type request struct {
	mu   sync.Mutex
	req  domain.ApprovalRequest
	done chan struct{}
}

// snapshot returns a copy of the record under the request lock.
func (r *request) snapshot() *domain.ApprovalRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := r.req

	return &cp
}

// Gate manages the pending/resolved lifecycle of approval requests.
// Resolve and Sweep may race on the same request; the per-request lock makes
// the transition atomic, so only the first writer's terminal state sticks.
type Gate struct {
	sink     domain.ApprovalSink // optional
	notifier notify.Notifier     // optional

	mu     sync.RWMutex // guards the maps only, never request state
	byID   map[uuid.UUID]*request
	byCall map[callKey]*request
}

// NewGate creates a Gate. Both sink and notifier may be nil.
func NewGate(sink domain.ApprovalSink, notifier notify.Notifier) *Gate {
	return &Gate{
		sink:     sink,
		notifier: notifier,
		byID:     make(map[uuid.UUID]*request),
		byCall:   make(map[callKey]*request),
	}
}

// Request creates a pending approval request with deadline now + the
// decision window. Re-requesting an identical (processID, toolCallID) pair
// while the original is still pending returns the existing request instead
// of duplicating it.
func (g *Gate) Request(ctx context.Context, processID uuid.UUID, toolName string, toolInput []byte, toolCallID string) (*domain.ApprovalRequest, error) {
	key := callKey{processID: processID, callID: toolCallID}

	g.mu.Lock()
	if existing, ok := g.byCall[key]; ok {
		// Map lock is always taken before a request lock, never the reverse.
		existing.mu.Lock()
		if !existing.req.Status.Terminal() {
			cp := existing.req
			existing.mu.Unlock()
			g.mu.Unlock()
			return &cp, nil
		}
		// The earlier request for this call already reached a terminal
		// state; create a fresh one.
		existing.mu.Unlock()
	}

	now := time.Now()
	r := &request{
		req: domain.ApprovalRequest{
			ID:         uuid.New(),
			ProcessID:  processID,
			ToolName:   toolName,
			ToolInput:  toolInput,
			ToolCallID: toolCallID,
			Status:     domain.ApprovalStatusPending,
			CreatedAt:  now,
			TimeoutAt:  now.Add(DecisionTimeout),
		},
		done: make(chan struct{}),
	}
	g.byID[r.req.ID] = r
	g.byCall[key] = r
	g.mu.Unlock()

	snap := r.snapshot()
	g.persist(ctx, snap)

	if g.notifier != nil {
		if err := g.notifier.ApprovalRequested(ctx, snap); err != nil {
			log.Error().Err(err).Str("request_id", snap.ID.String()).Msg("approval.Gate.Request: notify failed")
		}
	}

	return snap, nil
}

// Resolve transitions a pending request to approved or denied. Resolving an
// already-terminal request reports domain.ErrConflict and returns the
// winning record unchanged. Safe under concurrent resolution attempts.
func (g *Gate) Resolve(ctx context.Context, id uuid.UUID, d Decision) (*domain.ApprovalRequest, error) {
	r, ok := g.lookup(id)
	if !ok {
		return nil, fmt.Errorf("approval.Gate.Resolve: request %s: %w", id, domain.ErrNotFound)
	}

	r.mu.Lock()
	if r.req.Status.Terminal() {
		cp := r.req
		r.mu.Unlock()
		return &cp, fmt.Errorf("approval.Gate.Resolve: request %s already %s: %w", id, cp.Status, domain.ErrConflict)
	}

	now := time.Now()
	if d.Approve {
		r.req.Status = domain.ApprovalStatusApproved
	} else {
		r.req.Status = domain.ApprovalStatusDenied
		r.req.Reason = d.Reason
	}
	r.req.ResolvedAt = &now
	cp := r.req
	close(r.done)
	r.mu.Unlock()

	g.finish(ctx, &cp)

	return &cp, nil
}

// Sweep transitions every pending request whose deadline has passed to
// timed_out, returning the transitioned requests. Requests whose deadline
// has not yet passed, and requests already terminal, are never touched.
func (g *Gate) Sweep(ctx context.Context, now time.Time) []*domain.ApprovalRequest {
	g.mu.RLock()
	all := make([]*request, 0, len(g.byID))
	for _, r := range g.byID {
		all = append(all, r)
	}
	g.mu.RUnlock()

	var expired []*domain.ApprovalRequest
	for _, r := range all {
		r.mu.Lock()
		if r.req.Status != domain.ApprovalStatusPending || !now.After(r.req.TimeoutAt) {
			r.mu.Unlock()
			continue
		}

		resolvedAt := now
		r.req.Status = domain.ApprovalStatusTimedOut
		r.req.ResolvedAt = &resolvedAt
		cp := r.req
		close(r.done)
		r.mu.Unlock()

		expired = append(expired, &cp)
		g.finish(ctx, &cp)
	}

	return expired
}

// CancelProcess denies every pending request owned by a cancelled process so
// none is left dangling after its owner is gone.
func (g *Gate) CancelProcess(ctx context.Context, processID uuid.UUID) []*domain.ApprovalRequest {
	g.mu.RLock()
	owned := make([]*request, 0, 4)
	for _, r := range g.byID {
		if r.req.ProcessID == processID {
			owned = append(owned, r)
		}
	}
	g.mu.RUnlock()

	var denied []*domain.ApprovalRequest
	for _, r := range owned {
		cp, err := g.Resolve(ctx, r.req.ID, Decision{Approve: false, Reason: CancelledReason})
		if err != nil {
			continue // already terminal
		}
		denied = append(denied, cp)
	}

	return denied
}

// Await blocks until the request reaches a terminal status or the context is
// cancelled, then returns the final record.
func (g *Gate) Await(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	r, ok := g.lookup(id)
	if !ok {
		return nil, fmt.Errorf("approval.Gate.Await: request %s: %w", id, domain.ErrNotFound)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("approval.Gate.Await: %w", ctx.Err())
	case <-r.done:
		return r.snapshot(), nil
	}
}

// Get returns a copy of the request with the given id.
func (g *Gate) Get(id uuid.UUID) (*domain.ApprovalRequest, error) {
	r, ok := g.lookup(id)
	if !ok {
		return nil, fmt.Errorf("approval.Gate.Get: request %s: %w", id, domain.ErrNotFound)
	}

	return r.snapshot(), nil
}

// ListPending returns copies of all pending requests, across all processes.
func (g *Gate) ListPending() []*domain.ApprovalRequest {
	g.mu.RLock()
	all := make([]*request, 0, len(g.byID))
	for _, r := range g.byID {
		all = append(all, r)
	}
	g.mu.RUnlock()

	var pending []*domain.ApprovalRequest
	for _, r := range all {
		snap := r.snapshot()
		if !snap.Status.Terminal() {
			pending = append(pending, snap)
		}
	}

	return pending
}

// RunSweeper drives Sweep on a periodic tick until the context is cancelled.
// Run it in a background goroutine from wiring code.
func (g *Gate) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired := g.Sweep(ctx, now)
			for _, req := range expired {
				log.Warn().
					Str("request_id", req.ID.String()).
					Str("process_id", req.ProcessID.String()).
					Str("tool", req.ToolName).
					Msg("approval request timed out")
			}
		}
	}
}

func (g *Gate) lookup(id uuid.UUID) (*request, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r, ok := g.byID[id]

	return r, ok
}

// finish persists and announces a terminal transition.
func (g *Gate) finish(ctx context.Context, req *domain.ApprovalRequest) {
	g.persist(ctx, req)

	if g.notifier != nil {
		if err := g.notifier.ApprovalResolved(ctx, req); err != nil {
			log.Error().Err(err).Str("request_id", req.ID.String()).Msg("approval.Gate: notify resolved failed")
		}
	}
}

// persist hands the record to the sink. Sink failures are logged, never
// propagated: the in-memory gate is the source of truth for gating.
func (g *Gate) persist(ctx context.Context, req *domain.ApprovalRequest) {
	if g.sink == nil {
		return
	}

	if err := g.sink.SaveApproval(ctx, req); err != nil {
		log.Error().Err(err).Str("request_id", req.ID.String()).Msg("approval.Gate: persist failed")
	}
}
