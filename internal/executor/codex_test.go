package executor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/executor"
)

func newCodex(t *testing.T) executor.Profile {
	t.Helper()

	profile, err := executor.NewCodexProfile()
	require.NoError(t, err)
	return profile
}

func TestCodexProfile_BuildArgs(t *testing.T) {
	t.Parallel()

	profile := newCodex(t)

	t.Run("initial prompt", func(t *testing.T) {
		t.Parallel()

		args := profile.BuildArgs(executor.Invocation{Prompt: "add retries"})
		assert.Equal(t, []string{"--json", "-q", "add retries"}, args)
	})

	t.Run("follow-up with overrides", func(t *testing.T) {
		t.Parallel()

		args := profile.BuildArgs(executor.Invocation{
			Prompt:          "keep going",
			FollowUp:        true,
			NativeSessionID: "sess-1",
			Overrides: executor.Overrides{
				Model:    "o3",
				FullAuto: true,
			},
		})

		assert.Equal(t, []string{
			"--json",
			"--resume", "sess-1",
			"-m", "o3",
			"--full-auto",
			"-q", "keep going",
		}, args)
	})
}

func TestCodexNormalizer_Events(t *testing.T) {
	t.Parallel()

	t.Run("session configured", func(t *testing.T) {
		t.Parallel()

		norm := newCodex(t).NewNormalizer()
		entries := norm.Normalize(1, `{"id":"0","msg":{"type":"session_configured","session_id":"sess-9"}}`+"\n")
		require.Len(t, entries, 1)
		assert.Equal(t, domain.ActionSessionStart, entries[0].Kind)
		assert.Equal(t, "sess-9", entries[0].Content)
	})

	t.Run("agent message", func(t *testing.T) {
		t.Parallel()

		norm := newCodex(t).NewNormalizer()
		entries := norm.Normalize(1, `{"id":"1","msg":{"type":"agent_message","message":"looking at the diff"}}`+"\n")
		require.Len(t, entries, 1)
		assert.Equal(t, domain.ActionMessage, entries[0].Kind)
		assert.Equal(t, "looking at the diff", entries[0].Content)
	})

	t.Run("exec approval request carries a gated tool call", func(t *testing.T) {
		t.Parallel()

		norm := newCodex(t).NewNormalizer()
		entries := norm.Normalize(1, `{"id":"2","msg":{"type":"exec_approval_request","command":["git","push"],"call_id":"call-5"}}`+"\n")
		require.Len(t, entries, 1)

		entry := entries[0]
		assert.Equal(t, domain.ActionCommandRun, entry.Kind)
		assert.Equal(t, "git push", entry.Content)
		assert.True(t, entry.RequiresApproval)
		require.NotNil(t, entry.Tool)
		assert.Equal(t, "exec", entry.Tool.Name)
		assert.Equal(t, "call-5", entry.Tool.CallID)
	})

	t.Run("call id falls back to submission id", func(t *testing.T) {
		t.Parallel()

		norm := newCodex(t).NewNormalizer()
		entries := norm.Normalize(1, `{"id":"sub-3","msg":{"type":"exec_approval_request","command":["make"]}}`+"\n")
		require.Len(t, entries, 1)
		require.NotNil(t, entries[0].Tool)
		assert.Equal(t, "sub-3", entries[0].Tool.CallID)
	})

	t.Run("patch approval request", func(t *testing.T) {
		t.Parallel()

		norm := newCodex(t).NewNormalizer()
		entries := norm.Normalize(1, `{"id":"4","msg":{"type":"apply_patch_approval_request","path":"cmd/main.go","patch":{"hunks":1},"call_id":"call-7"}}`+"\n")
		require.Len(t, entries, 1)

		entry := entries[0]
		assert.Equal(t, domain.ActionFileEdit, entry.Kind)
		assert.Equal(t, "cmd/main.go", entry.Path)
		assert.True(t, entry.RequiresApproval)
		require.NotNil(t, entry.Tool)
		assert.Equal(t, "apply_patch", entry.Tool.Name)
	})

	t.Run("command begin is informational, not gated", func(t *testing.T) {
		t.Parallel()

		norm := newCodex(t).NewNormalizer()
		entries := norm.Normalize(1, `{"id":"5","msg":{"type":"exec_command_begin","command":["go","vet","./..."]}}`+"\n")
		require.Len(t, entries, 1)
		assert.Equal(t, domain.ActionCommandRun, entries[0].Kind)
		assert.Equal(t, "go vet ./...", entries[0].Content)
		assert.False(t, entries[0].RequiresApproval)
		assert.Nil(t, entries[0].Tool)
	})

	t.Run("task complete and error", func(t *testing.T) {
		t.Parallel()

		norm := newCodex(t).NewNormalizer()

		entries := norm.Normalize(1, `{"id":"6","msg":{"type":"task_complete","last_agent_message":"all green"}}`+"\n")
		require.Len(t, entries, 1)
		assert.Equal(t, domain.ActionResult, entries[0].Kind)
		assert.Equal(t, "all green", entries[0].Content)

		entries = norm.Normalize(2, `{"id":"7","msg":{"type":"error","message":"rate limited"}}`+"\n")
		require.Len(t, entries, 1)
		assert.Equal(t, domain.ActionError, entries[0].Kind)
		assert.Equal(t, "rate limited", entries[0].ErrorText)
	})

	t.Run("protocol chatter is dropped", func(t *testing.T) {
		t.Parallel()

		norm := newCodex(t).NewNormalizer()
		entries := norm.Normalize(1, `{"id":"8","msg":{"type":"token_count","input_tokens":512}}`+"\n")
		assert.Empty(t, entries)
	})
}
