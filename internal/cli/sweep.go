package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/internal/backtest"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/sweep"
)

type sweepFlags struct {
	configPath string
	params     []string
	level      int
	workers    int
	archive    bool
}

func newSweepCmd(rc *RootConfig) *cobra.Command {
	f := &sweepFlags{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a backtest once per point of a parameter grid",
		Long: `Sweep runs the configured backtest for every combination of the
given strategy parameters, several runs at a time, and prints one line
per combination.

Examples:
  barsim sweep -f spy.yaml -p fast=5,10,20 -p slow=30,50
  barsim sweep -f spy.yaml -p period=10,20,55 --level 1 --workers 4 --archive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(f.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			grid, err := sweep.ParseGrid(f.params)
			if err != nil {
				return err
			}
			inputs, err := cfg.LoadFeeds()
			if err != nil {
				return fmt.Errorf("load data: %w", err)
			}

			results, runErr := backtest.Sweep(cmd.Context(), cfg, inputs, grid, f.level, f.workers, rc.logger())
			if results == nil {
				return runErr
			}
			backtest.PrintSweep(cmd.OutOrStdout(), results)

			if f.archive {
				db, err := journal.NewSQLite(rc.DBPath)
				if err != nil {
					return fmt.Errorf("open db: %w", err)
				}
				defer db.Close()
				if err := backtest.Archive(cmd.Context(), db, results); err != nil {
					return fmt.Errorf("archive: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Runs archived to: %s\n", rc.DBPath)
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "f", "", "path to config file (required)")
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "parameter values as name=v1,v2,... (repeatable)")
	cmd.Flags().IntVar(&f.level, "level", 0, "index of the level whose strategy is swept")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "concurrent runs (default GOMAXPROCS)")
	cmd.Flags().BoolVar(&f.archive, "archive", false, "store run summaries and reports in the --db journal")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("param")
	return cmd
}
