package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gosuda/corral/internal/executor"
	"github.com/gosuda/corral/internal/supervisor"
)

var (
	resumeModel    string
	resumeFullAuto bool
	resumeRewind   string
	resumeArgs     []string
)

var resumeCmd = &cobra.Command{
	Use:   "resume [flags] session-id prompt...",
	Short: "Continue a recorded session with a follow-up prompt",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sessionID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}

		rt, cleanup, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if rt.store == nil {
			return errors.New("resume requires a database, set CORRAL_DB_HOST")
		}

		go rt.gate.RunSweeper(ctx, rt.cfg.Supervisor.SweepInterval)

		session, err := rt.store.Sessions().GetByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load session %s: %w", sessionID, err)
		}
		rt.sup.AdoptSession(session)

		prompt := strings.Join(args[1:], " ")
		proc, err := rt.sup.SpawnFollowUp(ctx, session, prompt, resumeRewind, supervisor.SpawnOptions{
			WorkDir: session.WorkDir,
			Overrides: executor.Overrides{
				Model:     resumeModel,
				FullAuto:  resumeFullAuto,
				ExtraArgs: resumeArgs,
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
	resumeCmd.Flags().StringVar(&resumeModel, "model", "", "model override passed to the agent")
	resumeCmd.Flags().BoolVar(&resumeFullAuto, "full-auto", false, "skip approval gating for this process")
	resumeCmd.Flags().StringVar(&resumeRewind, "rewind-to", "", "restart the conversation from the given message id")
	resumeCmd.Flags().StringArrayVar(&resumeArgs, "arg", nil, "extra argument appended to the agent command (repeatable)")
}
