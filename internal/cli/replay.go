package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/internal/backtest"
	"github.com/rustyeddy/barsim/journal"
)

func newReplayCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <run-id>",
		Short: "Re-run a journaled run and verify it reproduces",
		Long: `Replay loads the configuration and input bars stored with a run in the
SQLite journal, runs it again and compares the result with the stored
report. Any difference is an error naming the first mismatch.

Example:
  barsim replay --db runs.sqlite 01HV6Z8Q3V2M0G7Y4N1K5T9B2C`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := journal.NewSQLite(rc.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			rep, err := backtest.Replay(cmd.Context(), db, args[0], rc.logger())
			if err != nil {
				return fmt.Errorf("replay %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Run %s reproduced: %d ticks, %d trades, equity %s\n",
				rep.RunID, rep.Ticks, len(rep.Trades), rep.Account.Equity.StringFixed(2))
			return nil
		},
	}
}
