package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/corral/internal/domain"
)

type LogRepo struct {
	pool *pgxpool.Pool
}

func NewLogRepo(pool *pgxpool.Pool) *LogRepo {
	return &LogRepo{pool: pool}
}

func (r *LogRepo) AppendLogLine(ctx context.Context, processID uuid.UUID, line domain.LogLine) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO process_log_lines (process_id, seq, stream, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		processID, line.Seq, line.Stream, line.Content, line.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("logRepo.AppendLogLine: %w", err)
	}

	return nil
}

func (r *LogRepo) AppendNormalizedEntry(ctx context.Context, processID uuid.UUID, entry domain.NormalizedEntry) error {
	var tool []byte
	if entry.Tool != nil {
		var err error
		tool, err = json.Marshal(entry.Tool)
		if err != nil {
			return fmt.Errorf("logRepo.AppendNormalizedEntry: marshal tool: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO normalized_entries (process_id, kind, content, path, line, error_text, tool, requires_approval, first_seq, last_seq)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		processID, entry.Kind, entry.Content, entry.Path, entry.Line,
		entry.ErrorText, tool, entry.RequiresApproval, entry.FirstSeq, entry.LastSeq,
	)
	if err != nil {
		return fmt.Errorf("logRepo.AppendNormalizedEntry: %w", err)
	}

	return nil
}
