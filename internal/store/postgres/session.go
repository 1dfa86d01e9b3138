package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/corral/internal/domain"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.ExecutionSession) error {
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("sessionRepo.Create: marshal metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO execution_sessions (id, executor_kind, native_session_id, work_dir, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.ExecutorKind, s.NativeSessionID, s.WorkDir, metadata, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Create: %w", err)
	}

	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionSession, error) {
	var s domain.ExecutionSession
	var metadata []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, executor_kind, native_session_id, work_dir, metadata, created_at
		 FROM execution_sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.ExecutorKind, &s.NativeSessionID, &s.WorkDir, &metadata, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sessionRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.GetByID: %w", err)
	}

	if len(metadata) > 0 {
		if err = json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("sessionRepo.GetByID: unmarshal metadata: %w", err)
		}
	}

	turns, err := r.listTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Turns = turns

	return &s, nil
}

func (r *SessionRepo) AppendTurn(ctx context.Context, sessionID uuid.UUID, turn domain.Turn) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_turns (session_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4)`,
		sessionID, turn.Role, turn.Content, turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.AppendTurn: %w", err)
	}

	return nil
}

func (r *SessionRepo) SetNativeSessionID(ctx context.Context, sessionID uuid.UUID, nativeID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE execution_sessions SET native_session_id = $1 WHERE id = $2`,
		nativeID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.SetNativeSessionID: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessionRepo.SetNativeSessionID: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *SessionRepo) listTurns(ctx context.Context, sessionID uuid.UUID) ([]domain.Turn, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role, content, created_at
		 FROM session_turns WHERE session_id = $1
		 ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.listTurns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn

		if err = rows.Scan(&t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("sessionRepo.listTurns: scan: %w", err)
		}
		turns = append(turns, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("sessionRepo.listTurns: rows: %w", err)
	}

	return turns, nil
}
