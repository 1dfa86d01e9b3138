// Package supervisor owns the full lifecycle of spawned agent processes:
// spawn and follow-up, output capture into the broadcast store, the
// normalization pipeline, approval gating of sensitive tool calls, and
// cancellation with bounded-grace escalation.
package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/corral/internal/approval"
	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/executor"
	"github.com/gosuda/corral/internal/logstore"
)

const (
	// maxScanTokenSize bounds one output line. Agent JSON events can be
	// large, especially tool calls carrying whole files.
	maxScanTokenSize = 1024 * 1024
	scanBufferSize   = 256 * 1024

	// DefaultGracePeriod is how long a cancelled process gets to exit on
	// SIGTERM before the supervisor escalates to SIGKILL.
	DefaultGracePeriod = 10 * time.Second
)

// SpawnOptions carry per-spawn adjustments supplied by the caller.
type SpawnOptions struct {
	WorkDir   string            // overrides the session's working directory
	Env       map[string]string // merged over the inherited environment
	Overrides executor.Overrides
}

// Supervisor is the explicit registry of sessions and processes: an arena of
// sessions keyed by id and an arena of processes keyed by id, passed around
// by the caller instead of living in package state.
type Supervisor struct {
	profiles *executor.Registry
	gate     *approval.Gate
	sessions domain.SessionRepository // optional
	logs     domain.LogSink           // optional
	grace    time.Duration

	mu          sync.RWMutex
	procs       map[uuid.UUID]*Process           // all processes ever spawned
	active      map[uuid.UUID]*Process           // session id -> its non-terminal process
	sessionByID map[uuid.UUID]*domain.ExecutionSession
}

// New creates a Supervisor. The session repository and log sink may be nil;
// records are then kept in memory only. A non-positive grace period falls
// back to DefaultGracePeriod.
func New(profiles *executor.Registry, gate *approval.Gate, sessions domain.SessionRepository, logs domain.LogSink, grace time.Duration) *Supervisor {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	return &Supervisor{
		profiles:    profiles,
		gate:        gate,
		sessions:    sessions,
		logs:        logs,
		grace:       grace,
		procs:       make(map[uuid.UUID]*Process),
		active:      make(map[uuid.UUID]*Process),
		sessionByID: make(map[uuid.UUID]*domain.ExecutionSession),
	}
}

// CreateSession registers a new execution session for an executor kind.
func (s *Supervisor) CreateSession(ctx context.Context, kind executor.Kind, workDir string, metadata map[string]any) (*domain.ExecutionSession, error) {
	session := &domain.ExecutionSession{
		ID:           uuid.New(),
		ExecutorKind: string(kind),
		WorkDir:      workDir,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	}

	if s.sessions != nil {
		if err := s.sessions.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("supervisor.Supervisor.CreateSession: %w", err)
		}
	}

	s.mu.Lock()
	s.sessionByID[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// AdoptSession registers a previously persisted session (loaded by the
// caller) so follow-ups can be issued against it.
func (s *Supervisor) AdoptSession(session *domain.ExecutionSession) {
	s.mu.Lock()
	s.sessionByID[session.ID] = session
	s.mu.Unlock()
}

// Session returns a registered session by id.
func (s *Supervisor) Session(id uuid.UUID) (*domain.ExecutionSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessionByID[id]

	return session, ok
}

// Process returns a process handle by id, live or terminated.
func (s *Supervisor) Process(id uuid.UUID) (*Process, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.procs[id]

	return p, ok
}

// Spawn starts a fresh agent process for the session's first prompt.
func (s *Supervisor) Spawn(ctx context.Context, session *domain.ExecutionSession, prompt string, opts SpawnOptions) (*Process, error) {
	inv := executor.Invocation{
		Prompt:    prompt,
		Overrides: opts.Overrides,
	}

	p, err := s.spawn(ctx, session, prompt, inv, opts)
	if err != nil {
		return nil, fmt.Errorf("supervisor.Supervisor.Spawn: %w", err)
	}

	return p, nil
}

// SpawnFollowUp starts a new process that resumes the session's prior
// conversation, optionally rewound to an earlier message. Forbidden while
// the session's current process is still starting or running.
func (s *Supervisor) SpawnFollowUp(ctx context.Context, session *domain.ExecutionSession, prompt, priorMessageID string, opts SpawnOptions) (*Process, error) {
	if session.NativeSessionID == "" {
		return nil, fmt.Errorf("supervisor.Supervisor.SpawnFollowUp: session %s has no resumable agent session: %w", session.ID, domain.ErrConflict)
	}

	inv := executor.Invocation{
		Prompt:            prompt,
		FollowUp:          true,
		NativeSessionID:   session.NativeSessionID,
		RewindToMessageID: priorMessageID,
		Overrides:         opts.Overrides,
	}

	p, err := s.spawn(ctx, session, prompt, inv, opts)
	if err != nil {
		return nil, fmt.Errorf("supervisor.Supervisor.SpawnFollowUp: %w", err)
	}

	return p, nil
}

// Cancel requests graceful termination of a process; if it does not exit
// within the grace period, escalates to a forceful kill. Pending approval
// requests owned by the process are denied so none is left dangling.
// Cancelling an already-terminated process is a no-op.
func (s *Supervisor) Cancel(ctx context.Context, p *Process) error {
	p.mu.Lock()
	if p.state.Terminal() || p.state == domain.ProcessCancelling || p.cmd == nil {
		p.mu.Unlock()
		return nil
	}
	p.state = domain.ProcessCancelling
	p.cancelled = true
	osProc := p.cmd.Process
	p.mu.Unlock()

	_, _ = p.store.Append(domain.StreamSystem, "cancellation requested")

	// Deny pending approvals first: a pump suspended on the gate must be
	// released or the exit path can never drain it.
	s.gate.CancelProcess(ctx, p.ID)

	if err := osProc.Signal(syscall.SIGTERM); err != nil {
		log.Warn().Err(err).Str("process_id", p.ID.String()).Msg("supervisor.Cancel: SIGTERM failed, killing")
		_ = osProc.Kill()
	}

	select {
	case <-p.done:
	case <-time.After(s.grace):
		log.Warn().Str("process_id", p.ID.String()).Dur("grace", s.grace).Msg("supervisor.Cancel: grace period elapsed, killing")
		_ = osProc.Kill()
		select {
		case <-p.done:
		case <-ctx.Done():
			return fmt.Errorf("supervisor.Supervisor.Cancel: %w", ctx.Err())
		}
	case <-ctx.Done():
		return fmt.Errorf("supervisor.Supervisor.Cancel: %w", ctx.Err())
	}

	return nil
}

// spawn resolves the command, reserves the session's single active-process
// slot, starts the child, and wires the output pipeline.
func (s *Supervisor) spawn(ctx context.Context, session *domain.ExecutionSession, prompt string, inv executor.Invocation, opts SpawnOptions) (*Process, error) {
	profile, err := s.profiles.Create(executor.Kind(session.ExecutorKind))
	if err != nil {
		return nil, err
	}

	path, err := profile.ResolveExecutable()
	if err != nil {
		return nil, err
	}

	args := profile.BuildArgs(inv)

	// Reserve the session slot before touching the OS so a concurrent spawn
	// on the same session observes busy, not a race.
	p := &Process{
		ID:        uuid.New(),
		SessionID: session.ID,
		Kind:      profile.Kind(),
		store:     logstore.New(),
		done:      make(chan struct{}),
		state:     domain.ProcessStarting,
	}

	s.mu.Lock()
	if cur, ok := s.active[session.ID]; ok && !cur.State().Terminal() {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s has a %s process: %w", session.ID, cur.State(), domain.ErrBusy)
	}
	s.active[session.ID] = p
	s.procs[p.ID] = p
	s.sessionByID[session.ID] = session
	s.mu.Unlock()

	cmd := exec.Command(path, args...)
	cmd.Dir = opts.WorkDir
	if cmd.Dir == "" {
		cmd.Dir = session.WorkDir
	}
	cmd.Env = mergedEnv(opts.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.abortSpawn(session.ID, p)
		return nil, fmt.Errorf("stdin pipe: %w", errors.Join(domain.ErrSpawn, err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.abortSpawn(session.ID, p)
		return nil, fmt.Errorf("stdout pipe: %w", errors.Join(domain.ErrSpawn, err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.abortSpawn(session.ID, p)
		return nil, fmt.Errorf("stderr pipe: %w", errors.Join(domain.ErrSpawn, err))
	}

	if err := cmd.Start(); err != nil {
		s.abortSpawn(session.ID, p)
		return nil, fmt.Errorf("start %s: %w", path, errors.Join(domain.ErrSpawn, err))
	}

	p.markRunning(cmd, stdin, inv.Overrides.FullAuto)

	_, _ = p.store.Append(domain.StreamSystem, fmt.Sprintf("spawned %s (pid %d)", p.Kind, cmd.Process.Pid))

	// Session ownership passes to the supervisor for the process lifetime;
	// turns are appended from the pipeline goroutines.
	turn := session.AppendTurn(domain.TurnRoleUser, prompt)
	s.persistTurn(ctx, session.ID, turn)

	// The pipeline outlives the spawn call's context.
	lifeCtx, lifeCancel := context.WithCancel(context.Background())

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		s.pumpStdout(lifeCtx, p, session, profile.NewNormalizer(), stdout)
	}()
	go func() {
		defer pumps.Done()
		s.pumpStderr(lifeCtx, p, stderr)
	}()

	go s.waitForExit(cmd, p, session, &pumps, lifeCancel)

	return p, nil
}

// waitForExit blocks until the pumps drain and the process ends, then
// records the terminal state and closes the store so subscribers observe
// end-of-stream exactly once.
func (s *Supervisor) waitForExit(cmd *exec.Cmd, p *Process, session *domain.ExecutionSession, pumps *sync.WaitGroup, lifeCancel context.CancelFunc) {
	pumps.Wait()

	err := cmd.Wait()
	exitCode := 0
	if err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	state := p.markTerminal(exitCode)
	lifeCancel()

	_, _ = p.store.Append(domain.StreamSystem, fmt.Sprintf("%s (code %d)", state, exitCode))
	p.store.Close()

	s.mu.Lock()
	if s.active[session.ID] == p {
		delete(s.active, session.ID)
	}
	s.mu.Unlock()

	close(p.done)

	log.Info().
		Str("process_id", p.ID.String()).
		Str("session_id", session.ID.String()).
		Str("state", string(state)).
		Int("exit_code", exitCode).
		Msg("agent process finished")
}

// pumpStdout captures standard output into the store and drives the
// normalization pipeline.
func (s *Supervisor) pumpStdout(ctx context.Context, p *Process, session *domain.ExecutionSession, norm executor.Normalizer, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanBufferSize), maxScanTokenSize)

	for scanner.Scan() {
		text := scanner.Text()

		line, err := p.store.Append(domain.StreamStdout, text)
		if err != nil {
			return
		}
		s.persistLine(ctx, p.ID, line)

		s.handleEntries(ctx, p, session, norm.Normalize(line.Seq, text+"\n"))
	}

	s.handleEntries(ctx, p, session, norm.Flush())

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("process_id", p.ID.String()).Msg("supervisor: stdout stream error")
	}
}

// pumpStderr captures standard error verbatim; stderr is never normalized.
func (s *Supervisor) pumpStderr(ctx context.Context, p *Process, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanBufferSize), maxScanTokenSize)

	for scanner.Scan() {
		line, err := p.store.Append(domain.StreamStderr, scanner.Text())
		if err != nil {
			return
		}
		s.persistLine(ctx, p.ID, line)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("process_id", p.ID.String()).Msg("supervisor: stderr stream error")
	}
}

// handleEntries publishes normalized entries back into the store and reacts
// to the ones the supervisor cares about: native session capture, terminal
// results, and approval-requiring tool calls.
func (s *Supervisor) handleEntries(ctx context.Context, p *Process, session *domain.ExecutionSession, entries []domain.NormalizedEntry) {
	for _, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			log.Error().Err(err).Str("process_id", p.ID.String()).Msg("supervisor: marshal normalized entry")
			continue
		}

		if _, appendErr := p.store.Append(domain.StreamNormalized, string(payload)); appendErr != nil {
			return
		}
		if s.logs != nil {
			if sinkErr := s.logs.AppendNormalizedEntry(ctx, p.ID, entry); sinkErr != nil {
				log.Error().Err(sinkErr).Str("process_id", p.ID.String()).Msg("supervisor: persist normalized entry")
			}
		}

		switch {
		case entry.Kind == domain.ActionSessionStart:
			s.captureNativeSession(ctx, session, entry.Content)

		case entry.Kind == domain.ActionResult:
			turn := session.AppendTurn(domain.TurnRoleAssistant, entry.Content)
			s.persistTurn(ctx, session.ID, turn)

		case entry.RequiresApproval && entry.Tool != nil && !p.fullAuto:
			s.gateToolCall(ctx, p, entry.Tool)
		}
	}
}

// gateToolCall creates an approval request and suspends the pipeline until
// the request reaches a terminal status; no further output is forwarded
// into or out of the process while it waits. The agent blocks on its own
// side waiting for the answer, so holding the pump here is the suspension
// the contract asks for.
func (s *Supervisor) gateToolCall(ctx context.Context, p *Process, tool *domain.ToolCall) {
	req, err := s.gate.Request(ctx, p.ID, tool.Name, tool.Input, tool.CallID)
	if err != nil {
		log.Error().Err(err).Str("process_id", p.ID.String()).Str("tool", tool.Name).Msg("supervisor: approval request failed")
		return
	}

	resolved, err := s.gate.Await(ctx, req.ID)
	if err != nil {
		// Context cancelled: the process is being torn down.
		return
	}

	if err := s.forwardDecision(p, resolved); err != nil {
		log.Error().Err(err).Str("process_id", p.ID.String()).Str("request_id", req.ID.String()).Msg("supervisor: forward decision failed")
	}
}

// forwardDecision encodes the gate outcome for the agent and resumes it via
// stdin. Timeout is delivered as a denial; the agent treats it the same way.
func (s *Supervisor) forwardDecision(p *Process, req *domain.ApprovalRequest) error {
	outcome := struct {
		Type     string `json:"type"`
		CallID   string `json:"call_id"`
		Approved bool   `json:"approved"`
		Reason   string `json:"reason,omitempty"`
	}{
		Type:     "tool_approval",
		CallID:   req.ToolCallID,
		Approved: req.Status == domain.ApprovalStatusApproved,
		Reason:   req.Reason,
	}
	if req.Status == domain.ApprovalStatusTimedOut {
		outcome.Reason = "approval timed out"
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("supervisor.Supervisor.forwardDecision: %w", err)
	}

	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()

	if _, err := stdin.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("supervisor.Supervisor.forwardDecision: %w", err)
	}

	return nil
}

func (s *Supervisor) captureNativeSession(ctx context.Context, session *domain.ExecutionSession, nativeID string) {
	if nativeID == "" || session.NativeSessionID == nativeID {
		return
	}
	session.NativeSessionID = nativeID

	if s.sessions != nil {
		if err := s.sessions.SetNativeSessionID(ctx, session.ID, nativeID); err != nil {
			log.Error().Err(err).Str("session_id", session.ID.String()).Msg("supervisor: persist native session id")
		}
	}
}

func (s *Supervisor) persistLine(ctx context.Context, processID uuid.UUID, line domain.LogLine) {
	if s.logs == nil {
		return
	}

	if err := s.logs.AppendLogLine(ctx, processID, line); err != nil {
		log.Error().Err(err).Str("process_id", processID.String()).Msg("supervisor: persist log line")
	}
}

func (s *Supervisor) persistTurn(ctx context.Context, sessionID uuid.UUID, turn domain.Turn) {
	if s.sessions == nil {
		return
	}

	if err := s.sessions.AppendTurn(ctx, sessionID, turn); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("supervisor: persist turn")
	}
}

// abortSpawn releases a reserved slot after a failed start.
func (s *Supervisor) abortSpawn(sessionID uuid.UUID, p *Process) {
	s.mu.Lock()
	if s.active[sessionID] == p {
		delete(s.active, sessionID)
	}
	delete(s.procs, p.ID)
	s.mu.Unlock()

	p.store.Close()
	close(p.done)
}

// mergedEnv layers extra variables over the inherited environment, keys
// sorted so the final command environment is reproducible.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}

	return env
}
