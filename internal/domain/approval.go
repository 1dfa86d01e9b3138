package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus is the lifecycle state of an approval request. Once the
// status leaves pending it never changes again.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusDenied   ApprovalStatus = "denied"
	ApprovalStatusTimedOut ApprovalStatus = "timed_out"
)

// Terminal reports whether the status is a final one.
func (s ApprovalStatus) Terminal() bool {
	return s != ApprovalStatusPending
}

// ApprovalRequest gates a sensitive tool call until a human approves,
// denies, or the timeout deadline passes.
type ApprovalRequest struct {
	ID         uuid.UUID
	ProcessID  uuid.UUID
	ToolName   string
	ToolInput  json.RawMessage
	ToolCallID string
	Status     ApprovalStatus
	Reason     string // denial reason, empty otherwise
	CreatedAt  time.Time
	TimeoutAt  time.Time
	ResolvedAt *time.Time
}

// ApprovalSink receives approval records for persistence. Save is called on
// creation and again on every terminal transition.
type ApprovalSink interface {
	SaveApproval(ctx context.Context, req *ApprovalRequest) error
}
