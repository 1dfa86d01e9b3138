package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StreamKind identifies which stream a log line came from.
type StreamKind string

const (
	StreamStdout     StreamKind = "stdout"
	StreamStderr     StreamKind = "stderr"
	StreamSystem     StreamKind = "system"
	StreamNormalized StreamKind = "normalized"
)

// LogLine is one immutable unit of process output. Sequence numbers are
// strictly increasing within one store and never reused.
type LogLine struct {
	Seq       uint64     `json:"seq"`
	Stream    StreamKind `json:"stream"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

// ActionKind categorizes a normalized entry.
type ActionKind string

const (
	ActionMessage      ActionKind = "message"
	ActionToolCall     ActionKind = "tool_call"
	ActionToolResult   ActionKind = "tool_result"
	ActionFileEdit     ActionKind = "file_edit"
	ActionCommandRun   ActionKind = "command_run"
	ActionError        ActionKind = "error"
	ActionSessionStart ActionKind = "session_start"
	ActionResult       ActionKind = "result"
)

// ToolCall represents a tool invocation by an agent. CallID correlates to
// the agent's own call identifier.
type ToolCall struct {
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input"`
	CallID string          `json:"call_id"`
}

// NormalizedEntry is the structured interpretation of one or more raw log
// lines. FirstSeq/LastSeq reference the contiguous sequence range of the
// originating store the entry was derived from.
type NormalizedEntry struct {
	Kind             ActionKind `json:"kind"`
	Content          string     `json:"content,omitempty"`
	Path             string     `json:"path,omitempty"`
	Line             int        `json:"line,omitempty"`
	ErrorText        string     `json:"error,omitempty"`
	Tool             *ToolCall  `json:"tool,omitempty"`
	RequiresApproval bool       `json:"requires_approval,omitempty"`
	FirstSeq         uint64     `json:"first_seq"`
	LastSeq          uint64     `json:"last_seq"`
}

// LogSink receives log records for persistence. The core produces records
// for the sink; it does not store them itself.
type LogSink interface {
	AppendLogLine(ctx context.Context, processID uuid.UUID, line LogLine) error
	AppendNormalizedEntry(ctx context.Context, processID uuid.UUID, entry NormalizedEntry) error
}
