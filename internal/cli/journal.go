package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/journal"
)

func newJournalCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the run journal",
		Long: `Query runs, trades and equity stored in the SQLite journal.

Examples:
  barsim journal runs
  barsim journal show <run-id>
  barsim journal trades <run-id> > trades.csv`,
	}

	open := func() (*journal.SQLite, error) {
		db, err := journal.NewSQLite(rc.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return db, nil
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List journaled runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(cmd.Context())
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTRATEGY\tSTART\tEND\tTRADES\tNET P/L\tRETURN\tCOMPLETE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%.2f%%\t%t\n",
					r.RunID, r.Strategy, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"),
					r.Trades, r.NetPnL.StringFixed(2), r.TotalReturn*100, r.Complete)
			}
			return tw.Flush()
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a run as an org-mode entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			run, err := db.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			trades, err := db.ListTrades(ctx, args[0])
			if err != nil {
				return fmt.Errorf("list trades: %w", err)
			}
			v := journal.RunOrg{Run: run, Trades: trades}
			// Runs archived by a sweep have no stored inputs.
			if body, _, err := db.LoadInputs(ctx, args[0]); err == nil {
				if cfg, err := config.Parse(body); err == nil && len(cfg.Levels) > 0 {
					v.Params = cfg.Levels[0].Strategy.Params
				}
			}
			return journal.WriteRunOrg(cmd.OutOrStdout(), v)
		},
	}

	tradesCmd := &cobra.Command{
		Use:   "trades <run-id>",
		Short: "Export the trades of a run as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			trades, err := db.ListTrades(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list trades: %w", err)
			}
			return journal.WriteTradesCSV(cmd.OutOrStdout(), trades)
		},
	}

	equityCmd := &cobra.Command{
		Use:   "equity <run-id>",
		Short: "Print the equity curve of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			points, err := db.ListEquity(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list equity: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tCASH\tEQUITY")
			for _, p := range points {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Time.Format("2006-01-02 15:04"), p.Cash.StringFixed(2), p.Equity.StringFixed(2))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(runsCmd, showCmd, tradesCmd, equityCmd)
	return cmd
}
