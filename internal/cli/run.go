package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/engine"
	"github.com/rustyeddy/barsim/internal/backtest"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/report"
)

type runFlags struct {
	configPath string
	reportPath string
	orgPath    string
}

func newRunCmd(rc *RootConfig) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest from a config file",
		Long: `Run a backtest described by a configuration file and print its report.

The journal section of the config decides where trades and equity are
written. Passing --db explicitly journals to that SQLite database instead,
which also makes the run replayable with "barsim replay".

Examples:
  barsim run -f spy.yaml
  barsim run -f spy.yaml --db runs.sqlite --report out.json --org out.org`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, rc, f)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	cmd.Flags().StringVar(&f.reportPath, "report", "", "write the JSON report to this file")
	cmd.Flags().StringVar(&f.orgPath, "org", "", "write an org-mode summary to this file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// fillLog keeps every fill with the P&L it realized.
type fillLog struct {
	fills []engine.Fill
}

func (l *fillLog) OnOrderUpdate(broker.Order) {}
func (l *fillLog) OnFill(f engine.Fill)      { l.fills = append(l.fills, f) }
func (l *fillLog) OnTick(engine.Tick)        {}

func runRun(cmd *cobra.Command, rc *RootConfig, f *runFlags) error {
	cfg, err := config.LoadFromFile(f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("db") {
		cfg.Journal = config.JournalConfig{Type: "sqlite", DBPath: rc.DBPath}
	}

	inputs, err := cfg.LoadFeeds()
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}

	log := rc.logger()
	fills := &fillLog{}
	rep, runErr := backtest.Execute(cmd.Context(), cfg, inputs, log, fills)
	if rep == nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	report.Print(out, rep)
	switch cfg.Journal.Type {
	case "csv":
		fmt.Fprintf(out, "Results saved to:\n  - %s\n  - %s\n", cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	case "sqlite":
		fmt.Fprintf(out, "Results saved to: %s\n", cfg.Journal.DBPath)
	}

	if f.reportPath != "" {
		if err := rep.WriteFile(f.reportPath); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		log.Info("report written", "path", f.reportPath)
	}
	if f.orgPath != "" {
		if err := writeOrg(f.orgPath, cfg, rep, fills.fills); err != nil {
			return fmt.Errorf("write org: %w", err)
		}
		log.Info("org summary written", "path", f.orgPath)
	}
	return runErr
}

func writeOrg(path string, cfg *config.Run, rep *report.Report, fills []engine.Fill) error {
	trades := make([]journal.TradeRecord, len(fills))
	for i, f := range fills {
		trades[i] = journal.NewTradeRecord(rep.RunID, f.Trade, f.Realized)
	}
	v := journal.RunOrg{
		Run:    journal.NewRunRecord(rep),
		Params: cfg.Levels[0].Strategy.Params,
		Trades: trades,
	}
	if !rep.Complete {
		v.Notes = append(v.Notes, fmt.Sprintf("run stopped early after %d ticks", rep.Ticks))
	}

	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := journal.WriteRunOrg(fh, v); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
