package supervisor

import (
	"io"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/executor"
	"github.com/gosuda/corral/internal/logstore"
)

// Process is one live or terminated agent OS process. It owns a dedicated
// broadcast log store, which is closed exactly once after the process
// terminates and all buffered output has been delivered.
type Process struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Kind      executor.Kind

	store *logstore.Store
	done  chan struct{}

	mu        sync.Mutex
	state     domain.ProcessState
	exitCode  int
	cancelled bool
	fullAuto  bool
	cmd       *exec.Cmd
	stdin     io.WriteCloser
}

// State returns the current lifecycle state.
func (p *Process) State() domain.ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// ExitStatus returns the exit code once the process has terminated. The
// second return is false while the process is still running.
func (p *Process) ExitStatus() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.Terminal() {
		return 0, false
	}

	return p.exitCode, true
}

// Done is closed once the process has terminated and its store is closed.
// Supports await-style completion alongside ExitStatus polling.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Store returns the process's broadcast log store.
func (p *Process) Store() *logstore.Store {
	return p.store
}

// markRunning transitions starting -> running once the OS handle is live.
func (p *Process) markRunning(cmd *exec.Cmd, stdin io.WriteCloser, fullAuto bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cmd = cmd
	p.stdin = stdin
	p.fullAuto = fullAuto
	p.state = domain.ProcessRunning
}

// markTerminal records the exit code and final state. Exited is reached only
// by the process ending on its own; killed only via cancellation.
func (p *Process) markTerminal(exitCode int) domain.ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.exitCode = exitCode
	if p.cancelled {
		p.state = domain.ProcessKilled
	} else {
		p.state = domain.ProcessExited
	}

	return p.state
}
