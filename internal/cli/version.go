package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/report"
)

const version = "0.3.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "barsim version %s (report format v%d)\n", version, report.Version)
		},
	}
}
