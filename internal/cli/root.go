// Package cli implements the barsim command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/internal/logging"
)

// RootConfig holds the persistent flags shared by every command.
type RootConfig struct {
	DBPath    string
	LogLevel  string
	LogFormat string

	log *slog.Logger
}

func (rc *RootConfig) logger() *slog.Logger {
	if rc.log == nil {
		return slog.Default()
	}
	return rc.log
}

func NewRootCmd() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:   "barsim",
		Short: "Deterministic bar-level backtesting",
		Long: `barsim replays historical OHLCV bars through registered strategies,
simulates order execution bar by bar and reports the resulting account.

Runs are deterministic: the same configuration and data always produce
the same run ID, trades and report. Runs journaled to SQLite can be
replayed and verified later.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&rc.DBPath, "db", "./barsim.sqlite", "SQLite journal database")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "Log level: debug|info|warn|error (default $"+logging.EnvLevel+" or info)")
	cmd.PersistentFlags().StringVar(&rc.LogFormat, "log-format", "text", "Log format: text|json")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		l, err := logging.Setup(rc.LogLevel, rc.LogFormat)
		if err != nil {
			return err
		}
		rc.log = l
		return nil
	}

	cmd.AddCommand(
		newRunCmd(rc),
		newSweepCmd(rc),
		newReplayCmd(rc),
		newConfigCmd(),
		newJournalCmd(rc),
		newVersionCmd(),
	)
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
