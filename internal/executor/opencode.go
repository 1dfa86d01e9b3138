package executor

import (
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/gosuda/corral/internal/domain"
)

const opencodeBinary = "opencode"

// opencodeReadOnlyTools never mutate the workspace and do not need approval.
var opencodeReadOnlyTools = map[string]bool{ //nolint:gochecknoglobals // fixed lookup table
	"read": true,
	"grep": true,
	"glob": true,
	"list": true,
}

// OpenCodeProfile implements Profile for the OpenCode CLI.
type OpenCodeProfile struct{}

func NewOpenCodeProfile() (Profile, error) {
	return &OpenCodeProfile{}, nil
}

func (p *OpenCodeProfile) Kind() Kind { return KindOpenCode }

func (p *OpenCodeProfile) ResolveExecutable() (string, error) {
	path, err := exec.LookPath(opencodeBinary)
	if err != nil {
		return "", fmt.Errorf("executor.OpenCodeProfile.ResolveExecutable: %q: %w", opencodeBinary, domain.ErrNotInstalled)
	}

	return path, nil
}

func (p *OpenCodeProfile) BuildArgs(inv Invocation) []string {
	args := []string{"run", "--output", "json"}

	if inv.FollowUp {
		args = append(args, "--session", inv.NativeSessionID)
		if inv.RewindToMessageID != "" {
			args = append(args, "--rewind-to", inv.RewindToMessageID)
		}
	}

	if inv.Overrides.Model != "" {
		args = append(args, "--model", inv.Overrides.Model)
	}
	if inv.Overrides.FullAuto {
		args = append(args, "--yolo")
	}
	args = append(args, inv.Overrides.ExtraArgs...)

	// Prompt is positional for opencode, always last.
	return append(args, inv.Prompt)
}

func (p *OpenCodeProfile) NewNormalizer() Normalizer {
	return &opencodeNormalizer{}
}

type opencodeNormalizer struct {
	lines lineBuffer
}

func (n *opencodeNormalizer) Normalize(seq uint64, chunk string) []domain.NormalizedEntry {
	var entries []domain.NormalizedEntry
	for _, rec := range n.lines.feed(seq, chunk) {
		entries = append(entries, parseOpenCodeRecord(rec)...)
	}

	return entries
}

func (n *opencodeNormalizer) Flush() []domain.NormalizedEntry {
	var entries []domain.NormalizedEntry
	for _, rec := range n.lines.flush() {
		entries = append(entries, parseOpenCodeRecord(rec)...)
	}

	return entries
}

// opencodeEvent is one JSON output line from `opencode run --output json`.
type opencodeEvent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	SessionID string          `json:"sessionID"`
	Name      string          `json:"name"`
	ID        string          `json:"id"`
	Input     json.RawMessage `json:"input"`
	Error     string          `json:"error"`
}

func parseOpenCodeRecord(rec record) []domain.NormalizedEntry {
	if skippable(rec) {
		return nil
	}

	var ev opencodeEvent
	if err := json.Unmarshal([]byte(rec.text), &ev); err != nil {
		return []domain.NormalizedEntry{passthroughEntry(rec)}
	}

	base := domain.NormalizedEntry{FirstSeq: rec.firstSeq, LastSeq: rec.lastSeq}

	switch ev.Type {
	case "session":
		base.Kind = domain.ActionSessionStart
		base.Content = ev.SessionID

	case "text", "message":
		base.Kind = domain.ActionMessage
		base.Content = ev.Text

	case "tool":
		base.Kind = domain.ActionToolCall
		base.Tool = &domain.ToolCall{Name: ev.Name, Input: ev.Input, CallID: ev.ID}
		base.RequiresApproval = !opencodeReadOnlyTools[ev.Name]
		switch ev.Name {
		case "edit", "write", "patch":
			base.Kind = domain.ActionFileEdit
			base.Path = stringField(ev.Input, "filePath")
		case "bash":
			base.Kind = domain.ActionCommandRun
			base.Content = stringField(ev.Input, "command")
		}

	case "error":
		base.Kind = domain.ActionError
		base.ErrorText = ev.Error

	default:
		if entry, ok := parseGenericRecord(rec); ok {
			return []domain.NormalizedEntry{entry}
		}
		return []domain.NormalizedEntry{passthroughEntry(rec)}
	}

	return []domain.NormalizedEntry{base}
}
