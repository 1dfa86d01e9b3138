package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/notify"
)

// spyNotifier records delivery order and optionally fails.
type spyNotifier struct {
	name      string
	sink      *[]string
	requested int
	resolved  int
	fail      bool
}

func (s *spyNotifier) ApprovalRequested(context.Context, *domain.ApprovalRequest) error {
	s.requested++
	*s.sink = append(*s.sink, s.name)
	if s.fail {
		return errors.New("channel down")
	}
	return nil
}

func (s *spyNotifier) ApprovalResolved(context.Context, *domain.ApprovalRequest) error {
	s.resolved++
	*s.sink = append(*s.sink, s.name)
	return nil
}

func pendingRequest() *domain.ApprovalRequest {
	now := time.Now()
	return &domain.ApprovalRequest{
		ID:        uuid.New(),
		ProcessID: uuid.New(),
		ToolName:  "Bash",
		Status:    domain.ApprovalStatusPending,
		CreatedAt: now,
		TimeoutAt: now.Add(time.Hour),
	}
}

func TestRegistry_FanOutInRegistrationOrder(t *testing.T) {
	t.Parallel()

	var order []string
	first := &spyNotifier{name: "first", sink: &order}
	second := &spyNotifier{name: "second", sink: &order}

	reg := notify.NewRegistry()
	reg.Register("first", first)
	reg.Register("second", second)

	require.NoError(t, reg.ApprovalRequested(context.Background(), pendingRequest()))

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 1, first.requested)
	assert.Equal(t, 1, second.requested)
}

func TestRegistry_FailingChannelDoesNotMuteOthers(t *testing.T) {
	t.Parallel()

	var order []string
	broken := &spyNotifier{name: "broken", sink: &order, fail: true}
	healthy := &spyNotifier{name: "healthy", sink: &order}

	reg := notify.NewRegistry()
	reg.Register("broken", broken)
	reg.Register("healthy", healthy)

	// The registry absorbs per-channel failures.
	require.NoError(t, reg.ApprovalRequested(context.Background(), pendingRequest()))
	assert.Equal(t, []string{"broken", "healthy"}, order)
}

func TestRegistry_ReRegisterReplacesKeepingPosition(t *testing.T) {
	t.Parallel()

	var order []string
	a := &spyNotifier{name: "a", sink: &order}
	b := &spyNotifier{name: "b", sink: &order}
	replacement := &spyNotifier{name: "a2", sink: &order}

	reg := notify.NewRegistry()
	reg.Register("a", a)
	reg.Register("b", b)
	reg.Register("a", replacement)

	require.NoError(t, reg.ApprovalResolved(context.Background(), pendingRequest()))

	assert.Equal(t, []string{"a2", "b"}, order)
	assert.Zero(t, a.resolved)

	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Same(t, notify.Notifier(replacement), got)
}

func TestFormatOutcome(t *testing.T) {
	t.Parallel()

	req := pendingRequest()

	req.Status = domain.ApprovalStatusApproved
	assert.Contains(t, notify.FormatOutcome(req), "approved")

	req.Status = domain.ApprovalStatusDenied
	req.Reason = "touches prod"
	out := notify.FormatOutcome(req)
	assert.Contains(t, out, "denied")
	assert.Contains(t, out, "touches prod")

	req.Status = domain.ApprovalStatusTimedOut
	assert.Contains(t, notify.FormatOutcome(req), "timed out")
}
