package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TurnRole identifies who produced a conversation turn.
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
	TurnRoleSystem    TurnRole = "system"
)

// Turn is one entry in a session's conversation history, ordered by occurrence.
type Turn struct {
	Role      TurnRole
	Content   string
	CreatedAt time.Time
}

// ExecutionSession identifies one conversational thread with an agent.
// A session may outlive any single process: a follow-up spawns a new
// process that reuses the same session ID. The ID is immutable and
// globally unique; turns are append-only.
type ExecutionSession struct {
	ID              uuid.UUID
	ExecutorKind    string // "claude", "codex", "opencode"
	NativeSessionID string // the agent CLI's own session identifier, set once observed
	WorkDir         string
	Turns           []Turn
	Metadata        map[string]any
	CreatedAt       time.Time
}

// AppendTurn records a new turn at the end of the session history.
func (s *ExecutionSession) AppendTurn(role TurnRole, content string) Turn {
	turn := Turn{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.Turns = append(s.Turns, turn)

	return turn
}

// SessionRepository persists execution sessions and their turn history.
type SessionRepository interface {
	Create(ctx context.Context, s *ExecutionSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*ExecutionSession, error)
	AppendTurn(ctx context.Context, sessionID uuid.UUID, turn Turn) error
	SetNativeSessionID(ctx context.Context, sessionID uuid.UUID, nativeID string) error
}
