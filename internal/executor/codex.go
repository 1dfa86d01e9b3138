package executor

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gosuda/corral/internal/domain"
)

const codexBinary = "codex"

// CodexProfile implements Profile for the OpenAI Codex CLI. Structure
// mirrors ClaudeProfile; only the command line and event grammar differ.
type CodexProfile struct{}

func NewCodexProfile() (Profile, error) {
	return &CodexProfile{}, nil
}

func (p *CodexProfile) Kind() Kind { return KindCodex }

func (p *CodexProfile) ResolveExecutable() (string, error) {
	path, err := exec.LookPath(codexBinary)
	if err != nil {
		return "", fmt.Errorf("executor.CodexProfile.ResolveExecutable: %q: %w", codexBinary, domain.ErrNotInstalled)
	}

	return path, nil
}

func (p *CodexProfile) BuildArgs(inv Invocation) []string {
	args := []string{"--json"}

	if inv.FollowUp {
		args = append(args, "--resume", inv.NativeSessionID)
		if inv.RewindToMessageID != "" {
			args = append(args, "--rewind-to", inv.RewindToMessageID)
		}
	}

	if inv.Overrides.Model != "" {
		args = append(args, "-m", inv.Overrides.Model)
	}
	if inv.Overrides.FullAuto {
		args = append(args, "--full-auto")
	}
	args = append(args, inv.Overrides.ExtraArgs...)

	return append(args, "-q", inv.Prompt)
}

func (p *CodexProfile) NewNormalizer() Normalizer {
	return &codexNormalizer{}
}

type codexNormalizer struct {
	lines lineBuffer
}

func (n *codexNormalizer) Normalize(seq uint64, chunk string) []domain.NormalizedEntry {
	var entries []domain.NormalizedEntry
	for _, rec := range n.lines.feed(seq, chunk) {
		entries = append(entries, parseCodexRecord(rec)...)
	}

	return entries
}

func (n *codexNormalizer) Flush() []domain.NormalizedEntry {
	var entries []domain.NormalizedEntry
	for _, rec := range n.lines.flush() {
		entries = append(entries, parseCodexRecord(rec)...)
	}

	return entries
}

// codexEvent is one protocol line: an id plus a typed msg payload.
type codexEvent struct {
	ID  string `json:"id"`
	Msg struct {
		Type             string          `json:"type"`
		Message          string          `json:"message"`
		SessionID        string          `json:"session_id"`
		Command          []string        `json:"command"`
		CallID           string          `json:"call_id"`
		Patch            json.RawMessage `json:"patch"`
		Path             string          `json:"path"`
		LastAgentMessage string          `json:"last_agent_message"`
	} `json:"msg"`
}

func parseCodexRecord(rec record) []domain.NormalizedEntry {
	if skippable(rec) {
		return nil
	}

	var ev codexEvent
	if err := json.Unmarshal([]byte(rec.text), &ev); err != nil {
		return []domain.NormalizedEntry{passthroughEntry(rec)}
	}

	base := domain.NormalizedEntry{FirstSeq: rec.firstSeq, LastSeq: rec.lastSeq}

	switch ev.Msg.Type {
	case "session_configured":
		base.Kind = domain.ActionSessionStart
		base.Content = ev.Msg.SessionID

	case "agent_message":
		base.Kind = domain.ActionMessage
		base.Content = ev.Msg.Message

	case "exec_command_begin":
		base.Kind = domain.ActionCommandRun
		base.Content = strings.Join(ev.Msg.Command, " ")

	case "exec_approval_request":
		input, _ := json.Marshal(ev.Msg.Command)
		base.Kind = domain.ActionCommandRun
		base.Content = strings.Join(ev.Msg.Command, " ")
		base.Tool = &domain.ToolCall{Name: "exec", Input: input, CallID: codexCallID(ev)}
		base.RequiresApproval = true

	case "apply_patch_approval_request":
		base.Kind = domain.ActionFileEdit
		base.Path = ev.Msg.Path
		base.Tool = &domain.ToolCall{Name: "apply_patch", Input: ev.Msg.Patch, CallID: codexCallID(ev)}
		base.RequiresApproval = true

	case "patch_apply_begin":
		base.Kind = domain.ActionFileEdit
		base.Path = ev.Msg.Path

	case "error":
		base.Kind = domain.ActionError
		base.ErrorText = ev.Msg.Message

	case "task_complete":
		base.Kind = domain.ActionResult
		base.Content = ev.Msg.LastAgentMessage

	default:
		if entry, ok := parseGenericRecord(rec); ok {
			return []domain.NormalizedEntry{entry}
		}
		// Protocol chatter with no display value (token counts, deltas).
		return nil
	}

	return []domain.NormalizedEntry{base}
}

// codexCallID prefers the explicit call id; older protocol versions carried
// only the submission id.
func codexCallID(ev codexEvent) string {
	if ev.Msg.CallID != "" {
		return ev.Msg.CallID
	}

	return ev.ID
}
