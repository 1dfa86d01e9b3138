package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/corral/internal/approval"
	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/executor"
	"github.com/gosuda/corral/internal/notify"
	"github.com/gosuda/corral/internal/supervisor"
)

var (
	runAgent    string
	runModel    string
	runFullAuto bool
	runDir      string
	runArgs     []string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] prompt...",
	Short: "Start an agent process with the given prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, cleanup, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		go rt.gate.RunSweeper(ctx, rt.cfg.Supervisor.SweepInterval)

		workDir := runDir
		if workDir == "" {
			workDir = rt.cfg.Supervisor.WorkDir
		}

		session, err := rt.sup.CreateSession(ctx, executor.Kind(runAgent), workDir, nil)
		if err != nil {
			return err
		}

		prompt := strings.Join(args, " ")
		proc, err := rt.sup.Spawn(ctx, session, prompt, supervisor.SpawnOptions{
			WorkDir: workDir,
			Overrides: executor.Overrides{
				Model:     runModel,
				FullAuto:  runFullAuto,
				ExtraArgs: runArgs,
			},
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "session %s process %s\n", session.ID, proc.ID)

		return streamProcess(ctx, rt, proc)
	},
}

func init() {
	runCmd.Flags().StringVar(&runAgent, "agent", string(executor.KindClaude), "agent backend (claude, codex, opencode)")
	runCmd.Flags().StringVar(&runModel, "model", "", "model override passed to the agent")
	runCmd.Flags().BoolVar(&runFullAuto, "full-auto", false, "skip approval gating for this process")
	runCmd.Flags().StringVar(&runDir, "dir", "", "working directory for the agent process")
	runCmd.Flags().StringArrayVar(&runArgs, "arg", nil, "extra argument appended to the agent command (repeatable)")
}

// streamProcess prints the live log stream and answers approval prompts on
// the terminal until the process reaches a terminal state.
func streamProcess(ctx context.Context, rt *runtime, proc *supervisor.Process) error {
	sub, err := proc.Store().Subscribe()
	if err != nil {
		return fmt.Errorf("cli.streamProcess: %w", err)
	}
	defer sub.Close()

	if rt.bridge != nil {
		bridgeSub, bErr := proc.Store().Subscribe()
		if bErr == nil {
			go rt.bridge.ForwardProcess(ctx, proc.ID, bridgeSub)
		}
	}

	stdin := bufio.NewReader(os.Stdin)
	cancelled := false

	for {
		select {
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				fmt.Fprintln(os.Stderr, "cancelling...")
				if cErr := rt.sup.Cancel(context.Background(), proc); cErr != nil {
					log.Error().Err(cErr).Msg("cancel failed")
				}
			}
			<-proc.Done()
			return reportExit(proc, cancelled)

		case req := <-rt.prompts.Pending():
			answerPrompt(ctx, rt, stdin, req)

		case line, ok := <-sub.Lines():
			if !ok {
				if sub.Overflowed() {
					fmt.Fprintln(os.Stderr, "log stream overflowed, output truncated")
				}
				<-proc.Done()
				return reportExit(proc, cancelled)
			}
			printLine(line)
		}
	}
}

func printLine(line domain.LogLine) {
	switch line.Stream {
	case domain.StreamStderr:
		fmt.Fprintf(os.Stderr, "%s\n", line.Content)
	case domain.StreamSystem:
		fmt.Fprintf(os.Stderr, "[corral] %s\n", line.Content)
	default:
		fmt.Println(line.Content)
	}
}

// answerPrompt asks y/N on the terminal and resolves through the gate. A
// conflict means another channel resolved first; report the winner instead.
func answerPrompt(ctx context.Context, rt *runtime, stdin *bufio.Reader, req *domain.ApprovalRequest) {
	fmt.Fprintf(os.Stderr, "%s\napprove? [y/N] ", notify.FormatRequest(req))

	answer, err := stdin.ReadString('\n')
	if err != nil {
		log.Warn().Err(err).Msg("stdin closed, leaving request pending")
		return
	}

	approve := false
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		approve = true
	}

	reason := "approved at terminal"
	if !approve {
		reason = "denied at terminal"
	}

	resolved, err := rt.gate.Resolve(ctx, req.ID, approval.Decision{Approve: approve, Reason: reason})
	if errors.Is(err, domain.ErrConflict) {
		fmt.Fprintf(os.Stderr, "%s\n", notify.FormatOutcome(resolved))
		return
	}
	if err != nil {
		log.Error().Err(err).Stringer("request_id", req.ID).Msg("resolve failed")
	}
}

func reportExit(proc *supervisor.Process, cancelled bool) error {
	code, ok := proc.ExitStatus()
	if !ok {
		return nil
	}

	state := proc.State()
	fmt.Fprintf(os.Stderr, "[corral] %s (exit %d)\n", state, code)

	if cancelled || state == domain.ProcessKilled {
		return nil
	}
	if code != 0 {
		return fmt.Errorf("agent exited with status %d", code)
	}
	return nil
}
