package executor

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gosuda/corral/internal/domain"
)

const claudeBinary = "claude"

// claudeReadOnlyTools never mutate the workspace and do not need approval.
var claudeReadOnlyTools = map[string]bool{ //nolint:gochecknoglobals // fixed lookup table
	"Read":      true,
	"Glob":      true,
	"Grep":      true,
	"LS":        true,
	"TodoWrite": true,
	"WebFetch":  true,
	"WebSearch": true,
}

// ClaudeProfile implements Profile for the Claude Code CLI, which emits
// newline-delimited JSON in its stream-json output mode.
type ClaudeProfile struct{}

func NewClaudeProfile() (Profile, error) {
	return &ClaudeProfile{}, nil
}

func (p *ClaudeProfile) Kind() Kind { return KindClaude }

func (p *ClaudeProfile) ResolveExecutable() (string, error) {
	path, err := exec.LookPath(claudeBinary)
	if err != nil {
		return "", fmt.Errorf("executor.ClaudeProfile.ResolveExecutable: %q: %w", claudeBinary, domain.ErrNotInstalled)
	}

	return path, nil
}

func (p *ClaudeProfile) BuildArgs(inv Invocation) []string {
	args := []string{"--output-format", "stream-json", "--verbose"}

	if inv.FollowUp {
		args = append(args, "--resume", inv.NativeSessionID)
		if inv.RewindToMessageID != "" {
			args = append(args, "--rewind-to", inv.RewindToMessageID)
		}
	}

	if inv.Overrides.Model != "" {
		args = append(args, "--model", inv.Overrides.Model)
	}
	if inv.Overrides.FullAuto {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, inv.Overrides.ExtraArgs...)

	return append(args, "-p", inv.Prompt)
}

func (p *ClaudeProfile) NewNormalizer() Normalizer {
	return &claudeNormalizer{}
}

// claudeNormalizer parses Claude's stream-json events. One normalizer serves
// one process; its line buffer holds records split across chunk boundaries.
type claudeNormalizer struct {
	lines lineBuffer
}

func (n *claudeNormalizer) Normalize(seq uint64, chunk string) []domain.NormalizedEntry {
	var entries []domain.NormalizedEntry
	for _, rec := range n.lines.feed(seq, chunk) {
		entries = append(entries, parseClaudeRecord(rec)...)
	}

	return entries
}

func (n *claudeNormalizer) Flush() []domain.NormalizedEntry {
	var entries []domain.NormalizedEntry
	for _, rec := range n.lines.flush() {
		entries = append(entries, parseClaudeRecord(rec)...)
	}

	return entries
}

// claudeContentBlock is one block inside an assistant or user message.
type claudeContentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
	Content json.RawMessage `json:"content"`
}

// claudeEvent is the envelope of one stream-json line. The same envelope
// covers system/assistant/user/result events plus the bare tool_use form.
type claudeEvent struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	Result    string          `json:"result"`
	IsError   bool            `json:"is_error"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	Message   struct {
		Content []claudeContentBlock `json:"content"`
	} `json:"message"`
}

func parseClaudeRecord(rec record) []domain.NormalizedEntry {
	if skippable(rec) {
		return nil
	}

	var ev claudeEvent
	if err := json.Unmarshal([]byte(rec.text), &ev); err != nil {
		// Not JSON at all: pass through unstructured.
		return []domain.NormalizedEntry{passthroughEntry(rec)}
	}

	switch ev.Type {
	case "system":
		if ev.Subtype == "init" && ev.SessionID != "" {
			return []domain.NormalizedEntry{{
				Kind:     domain.ActionSessionStart,
				Content:  ev.SessionID,
				FirstSeq: rec.firstSeq,
				LastSeq:  rec.lastSeq,
			}}
		}
		return nil

	case "assistant":
		var entries []domain.NormalizedEntry
		for _, block := range ev.Message.Content {
			switch block.Type {
			case "text":
				if strings.TrimSpace(block.Text) == "" {
					continue
				}
				entries = append(entries, domain.NormalizedEntry{
					Kind:     domain.ActionMessage,
					Content:  block.Text,
					FirstSeq: rec.firstSeq,
					LastSeq:  rec.lastSeq,
				})
			case "tool_use":
				entries = append(entries, claudeToolEntry(rec, block.Name, block.Input, block.ID))
			}
		}
		return entries

	case "user":
		var entries []domain.NormalizedEntry
		for _, block := range ev.Message.Content {
			if block.Type == "tool_result" {
				entries = append(entries, domain.NormalizedEntry{
					Kind:     domain.ActionToolResult,
					FirstSeq: rec.firstSeq,
					LastSeq:  rec.lastSeq,
				})
			}
		}
		return entries

	case "result":
		entry := domain.NormalizedEntry{
			Kind:     domain.ActionResult,
			Content:  ev.Result,
			FirstSeq: rec.firstSeq,
			LastSeq:  rec.lastSeq,
		}
		if ev.IsError {
			entry.ErrorText = ev.Result
		}
		return []domain.NormalizedEntry{entry}

	case "tool_use":
		return []domain.NormalizedEntry{claudeToolEntry(rec, ev.Name, ev.Input, ev.ID)}

	default:
		if entry, ok := parseGenericRecord(rec); ok {
			return []domain.NormalizedEntry{entry}
		}
		return []domain.NormalizedEntry{passthroughEntry(rec)}
	}
}

// claudeToolEntry classifies a tool_use block. Mutating tools carry the
// approval requirement; the supervisor decides whether to actually gate
// (full-auto runs skip the gate).
func claudeToolEntry(rec record, name string, input json.RawMessage, callID string) domain.NormalizedEntry {
	entry := domain.NormalizedEntry{
		Kind: domain.ActionToolCall,
		Tool: &domain.ToolCall{
			Name:   name,
			Input:  input,
			CallID: callID,
		},
		RequiresApproval: !claudeReadOnlyTools[name],
		FirstSeq:         rec.firstSeq,
		LastSeq:          rec.lastSeq,
	}

	switch name {
	case "Edit", "Write", "MultiEdit", "NotebookEdit":
		entry.Kind = domain.ActionFileEdit
		entry.Path = stringField(input, "file_path")
	case "Bash":
		entry.Kind = domain.ActionCommandRun
		entry.Content = stringField(input, "command")
	}

	return entry
}
