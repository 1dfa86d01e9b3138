// Package postgres implements the persistence collaborators the core
// produces records for: sessions with their turn history, raw and
// normalized log records, and approval request snapshots. The core never
// depends on this package; wiring code supplies it as the sink.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/corral/internal/domain"
)

type Store struct {
	pool      *pgxpool.Pool
	sessions  *SessionRepo
	logs      *LogRepo
	approvals *ApprovalRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:      pool,
		sessions:  NewSessionRepo(pool),
		logs:      NewLogRepo(pool),
		approvals: NewApprovalRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Sessions() domain.SessionRepository { return s.sessions }
func (s *Store) Logs() domain.LogSink               { return s.logs }
func (s *Store) Approvals() domain.ApprovalSink     { return s.approvals }
