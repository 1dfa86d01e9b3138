package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gosuda/corral/internal/domain"
	redisstore "github.com/gosuda/corral/internal/store/redis"
)

var watchCmd = &cobra.Command{
	Use:   "watch process-id",
	Short: "Follow a process's log stream over Redis from another machine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		processID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid process id %q: %w", args[0], err)
		}

		rt, cleanup, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if rt.bridge == nil {
			return errors.New("watch requires Redis, set CORRAL_REDIS_ADDR")
		}

		pubsub := rt.bridge.PubSub()
		payloads, detach, err := pubsub.Stream(ctx, redisstore.ProcessChannel(processID))
		if err != nil {
			return err
		}
		defer detach()

		for payload := range payloads {
			var event struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(payload, &event) == nil && event.Type != "" {
				switch event.Type {
				case "eos":
					return nil
				case "overflow":
					fmt.Fprintln(os.Stderr, "[corral] stream overflowed at the source, output truncated")
					continue
				}
			}

			var line domain.LogLine
			if err := json.Unmarshal(payload, &line); err != nil {
				fmt.Println(string(payload))
				continue
			}
			printLine(line)
		}

		return nil
	},
}
