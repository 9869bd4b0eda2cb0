package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/engine"
	"github.com/rustyeddy/barsim/feed"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/sweep"
)

// Sweep runs cfg once per grid point. The point's values override the
// strategy parameters of the given level. Sweep runs are not journaled
// while they execute; see Archive.
func Sweep(ctx context.Context, cfg *config.Run, inputs [][]*feed.Feed, grid sweep.Grid, level, workers int, log *slog.Logger) ([]sweep.Result, error) {
	if level < 0 || level >= len(cfg.Levels) {
		return nil, fmt.Errorf("sweep level %d out of range (config has %d)", level, len(cfg.Levels))
	}
	if cfg.Levels[level].Strategy.Name == "" {
		return nil, fmt.Errorf("levels[%d] has no strategy to sweep", level)
	}
	if log == nil {
		log = slog.Default()
	}

	factory := func(_ int, p sweep.Point) (engine.Runner, error) {
		c := cfg.Clone()
		c.Journal = config.JournalConfig{}
		for k, v := range p {
			c.Levels[level].Strategy.Params[k] = v
		}
		return New(c, inputs, engine.WithLogger(log))
	}
	return sweep.Run(ctx, grid, factory, sweep.WithWorkers(workers), sweep.WithLogger(log))
}

// Archive stores the summary and report of every finished sweep run,
// replacing anything recorded before under the same run ID.
func Archive(ctx context.Context, a journal.Archive, results []sweep.Result) error {
	for _, r := range results {
		if r.Report == nil {
			continue
		}
		if err := a.ResetRun(ctx, r.Report.RunID); err != nil {
			return fmt.Errorf("point %d: %w", r.Index, err)
		}
		if err := a.RecordRun(journal.NewRunRecord(r.Report)); err != nil {
			return fmt.Errorf("point %d: %w", r.Index, err)
		}
		if err := a.SaveReport(r.Report); err != nil {
			return fmt.Errorf("point %d: %w", r.Index, err)
		}
	}
	return nil
}
