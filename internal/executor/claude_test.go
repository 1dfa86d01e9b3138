package executor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/executor"
)

func newClaude(t *testing.T) executor.Profile {
	t.Helper()

	profile, err := executor.NewClaudeProfile()
	require.NoError(t, err)
	return profile
}

func TestClaudeProfile_BuildArgs(t *testing.T) {
	t.Parallel()

	profile := newClaude(t)

	t.Run("initial prompt", func(t *testing.T) {
		t.Parallel()

		args := profile.BuildArgs(executor.Invocation{Prompt: "fix the tests"})

		assert.Equal(t, []string{
			"--output-format", "stream-json", "--verbose",
			"-p", "fix the tests",
		}, args)
	})

	t.Run("follow-up resumes native session", func(t *testing.T) {
		t.Parallel()

		args := profile.BuildArgs(executor.Invocation{
			Prompt:          "continue",
			FollowUp:        true,
			NativeSessionID: "sess-abc",
		})

		assert.Equal(t, []string{
			"--output-format", "stream-json", "--verbose",
			"--resume", "sess-abc",
			"-p", "continue",
		}, args)
	})

	t.Run("rewind only applies on follow-up", func(t *testing.T) {
		t.Parallel()

		args := profile.BuildArgs(executor.Invocation{
			Prompt:            "try again",
			FollowUp:          true,
			NativeSessionID:   "sess-abc",
			RewindToMessageID: "msg-9",
		})
		assert.Contains(t, args, "--rewind-to")

		fresh := profile.BuildArgs(executor.Invocation{
			Prompt:            "try again",
			RewindToMessageID: "msg-9",
		})
		assert.NotContains(t, fresh, "--rewind-to")
	})

	t.Run("overrides keep stable order, prompt last", func(t *testing.T) {
		t.Parallel()

		inv := executor.Invocation{
			Prompt: "go",
			Overrides: executor.Overrides{
				Model:     "opus",
				FullAuto:  true,
				ExtraArgs: []string{"--max-turns", "5"},
			},
		}

		args := profile.BuildArgs(inv)
		assert.Equal(t, []string{
			"--output-format", "stream-json", "--verbose",
			"--model", "opus",
			"--dangerously-skip-permissions",
			"--max-turns", "5",
			"-p", "go",
		}, args)

		// Deterministic: same invocation, same slice.
		assert.Equal(t, args, profile.BuildArgs(inv))
	})
}

func TestClaudeNormalizer_SessionStart(t *testing.T) {
	t.Parallel()

	norm := newClaude(t).NewNormalizer()

	entries := norm.Normalize(1, `{"type":"system","subtype":"init","session_id":"sess-42"}`+"\n")
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionSessionStart, entries[0].Kind)
	assert.Equal(t, "sess-42", entries[0].Content)
}

func TestClaudeNormalizer_AssistantBlocks(t *testing.T) {
	t.Parallel()

	norm := newClaude(t).NewNormalizer()

	line := `{"type":"assistant","message":{"content":[` +
		`{"type":"text","text":"updating the handler"},` +
		`{"type":"tool_use","id":"call-1","name":"Edit","input":{"file_path":"internal/server.go"}}` +
		`]}}` + "\n"

	entries := norm.Normalize(5, line)
	require.Len(t, entries, 2)

	assert.Equal(t, domain.ActionMessage, entries[0].Kind)
	assert.Equal(t, "updating the handler", entries[0].Content)
	assert.Equal(t, uint64(5), entries[0].FirstSeq)
	assert.Equal(t, uint64(5), entries[0].LastSeq)

	edit := entries[1]
	assert.Equal(t, domain.ActionFileEdit, edit.Kind)
	assert.Equal(t, "internal/server.go", edit.Path)
	assert.True(t, edit.RequiresApproval)
	require.NotNil(t, edit.Tool)
	assert.Equal(t, "Edit", edit.Tool.Name)
	assert.Equal(t, "call-1", edit.Tool.CallID)
}

func TestClaudeNormalizer_ToolClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		line         string
		wantKind     domain.ActionKind
		wantApproval bool
		wantPath     string
		wantContent  string
	}{
		{
			name:         "bash command requires approval",
			line:         `{"type":"tool_use","id":"c1","name":"Bash","input":{"command":"rm -rf build"}}`,
			wantKind:     domain.ActionCommandRun,
			wantApproval: true,
			wantContent:  "rm -rf build",
		},
		{
			name:         "write is a file edit",
			line:         `{"type":"tool_use","id":"c2","name":"Write","input":{"file_path":"main.go"}}`,
			wantKind:     domain.ActionFileEdit,
			wantApproval: true,
			wantPath:     "main.go",
		},
		{
			name:         "read is exempt from approval",
			line:         `{"type":"tool_use","id":"c3","name":"Read","input":{"file_path":"main.go"}}`,
			wantKind:     domain.ActionToolCall,
			wantApproval: false,
		},
		{
			name:         "grep is exempt from approval",
			line:         `{"type":"tool_use","id":"c4","name":"Grep","input":{"pattern":"TODO"}}`,
			wantKind:     domain.ActionToolCall,
			wantApproval: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			norm := newClaude(t).NewNormalizer()
			entries := norm.Normalize(1, tt.line+"\n")
			require.Len(t, entries, 1)

			entry := entries[0]
			assert.Equal(t, tt.wantKind, entry.Kind)
			assert.Equal(t, tt.wantApproval, entry.RequiresApproval)
			assert.Equal(t, tt.wantPath, entry.Path)
			assert.Equal(t, tt.wantContent, entry.Content)
			require.NotNil(t, entry.Tool)
		})
	}
}

func TestClaudeNormalizer_Result(t *testing.T) {
	t.Parallel()

	norm := newClaude(t).NewNormalizer()

	entries := norm.Normalize(9, `{"type":"result","result":"done, 3 files changed"}`+"\n")
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionResult, entries[0].Kind)
	assert.Equal(t, "done, 3 files changed", entries[0].Content)
	assert.Empty(t, entries[0].ErrorText)

	entries = norm.Normalize(10, `{"type":"result","result":"budget exceeded","is_error":true}`+"\n")
	require.Len(t, entries, 1)
	assert.Equal(t, "budget exceeded", entries[0].ErrorText)
}

func TestClaudeNormalizer_SplitRecordAcrossChunks(t *testing.T) {
	t.Parallel()

	norm := newClaude(t).NewNormalizer()

	// First fragment completes no record.
	entries := norm.Normalize(1, `{"act`)
	assert.Empty(t, entries)

	// Second fragment closes it; the entry spans both sequence numbers.
	entries = norm.Normalize(2, `ion":"edit"}`+"\n")
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionKind("edit"), entries[0].Kind)
	assert.Equal(t, uint64(1), entries[0].FirstSeq)
	assert.Equal(t, uint64(2), entries[0].LastSeq)
}

func TestClaudeNormalizer_MultipleRecordsInOneChunk(t *testing.T) {
	t.Parallel()

	norm := newClaude(t).NewNormalizer()

	chunk := `{"type":"result","result":"first"}` + "\n" + `{"type":"result","result":"second"}` + "\n"
	entries := norm.Normalize(3, chunk)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Content)
	assert.Equal(t, "second", entries[1].Content)
}

func TestClaudeNormalizer_NonJSONPassesThrough(t *testing.T) {
	t.Parallel()

	norm := newClaude(t).NewNormalizer()

	entries := norm.Normalize(1, "plain progress text\n")
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionMessage, entries[0].Kind)
	assert.Equal(t, "plain progress text", entries[0].Content)

	// Blank lines are dropped outright.
	assert.Empty(t, norm.Normalize(2, "\n  \n"))
}

func TestClaudeNormalizer_FlushDrainsPartial(t *testing.T) {
	t.Parallel()

	norm := newClaude(t).NewNormalizer()

	assert.Empty(t, norm.Normalize(1, `{"type":"result","result":"tail without newline"}`))

	entries := norm.Flush()
	require.Len(t, entries, 1)
	assert.Equal(t, "tail without newline", entries[0].Content)

	// Flush is drained; a second call yields nothing.
	assert.Empty(t, norm.Flush())
}
