package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/corral/internal/domain"
)

type ApprovalRepo struct {
	pool *pgxpool.Pool
}

func NewApprovalRepo(pool *pgxpool.Pool) *ApprovalRepo {
	return &ApprovalRepo{pool: pool}
}

// SaveApproval upserts a request snapshot: the gate calls it on creation and
// again on the terminal transition.
func (r *ApprovalRepo) SaveApproval(ctx context.Context, req *domain.ApprovalRequest) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO approval_requests (id, process_id, tool_name, tool_input, tool_call_id, status, reason, created_at, timeout_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE
		 SET status = EXCLUDED.status, reason = EXCLUDED.reason, resolved_at = EXCLUDED.resolved_at`,
		req.ID, req.ProcessID, req.ToolName, []byte(req.ToolInput), req.ToolCallID,
		req.Status, req.Reason, req.CreatedAt, req.TimeoutAt, req.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("approvalRepo.SaveApproval: %w", err)
	}

	return nil
}
