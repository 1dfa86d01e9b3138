package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List registered agent backends and whether they are installed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, cleanup, err := buildRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "AGENT\tSTATUS\tPATH")

		for _, kind := range rt.registry.Available() {
			profile, pErr := rt.registry.Create(kind)
			if pErr != nil {
				fmt.Fprintf(w, "%s\terror\t%v\n", kind, pErr)
				continue
			}

			path, rErr := profile.ResolveExecutable()
			if rErr != nil {
				fmt.Fprintf(w, "%s\tnot installed\t-\n", kind)
				continue
			}
			fmt.Fprintf(w, "%s\tinstalled\t%s\n", kind, path)
		}

		return w.Flush()
	},
}
