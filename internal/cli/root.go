// Package cli implements the corral command tree.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{ //nolint:gochecknoglobals // cobra command tree
	Use:   "corral",
	Short: "Supervise coding-agent CLI processes with approval gating",
	Long: `corral spawns third-party coding agents (claude, codex, opencode) as
supervised child processes, keeps a replayable log of their output, and
pauses execution on sensitive tool calls until a human approves, denies,
or the decision window elapses.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		setupLogging()
	},
}

func init() { //nolint:gochecknoinits // cobra wiring
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(watchCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setupLogging initializes structured logging from the environment.
func setupLogging() {
	level, err := zerolog.ParseLevel(os.Getenv("CORRAL_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("CORRAL_LOG_FORMAT") == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
}
