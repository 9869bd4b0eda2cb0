// Package backtest assembles engine runs from configuration files and
// ties them to a journal. It is the glue behind the barsim commands.
package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/engine"
	"github.com/rustyeddy/barsim/feed"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/report"
	"github.com/rustyeddy/barsim/strategies"
)

// Runner is what both executors provide.
type Runner interface {
	engine.Runner
	RunID() string
}

// New builds the executor cfg describes: one level per configured
// timeframe with its registered strategy. inputs holds the feeds of
// each level in the same order as cfg.Levels.
func New(cfg *config.Run, inputs [][]*feed.Feed, opts ...engine.Option) (Runner, error) {
	ecfg, err := cfg.Engine()
	if err != nil {
		return nil, err
	}
	if len(inputs) != len(cfg.Levels) {
		return nil, fmt.Errorf("have data for %d levels, config has %d", len(inputs), len(cfg.Levels))
	}

	levels := make([]engine.Level, len(cfg.Levels))
	for i, lc := range cfg.Levels {
		levels[i] = engine.Level{Name: lc.Name, Feeds: inputs[i]}
		if lc.Strategy.Name == "" {
			continue
		}
		insts := make([]string, len(inputs[i]))
		for k, f := range inputs[i] {
			insts[k] = f.Instrument()
		}
		s, err := strategies.New(lc.Strategy.Name, insts, strategies.Params(lc.Strategy.Params))
		if err != nil {
			return nil, fmt.Errorf("levels[%d]: %w", i, err)
		}
		levels[i].Strategy = s
	}

	if len(levels) == 1 {
		return engine.NewExecutor(ecfg, levels[0].Feeds, levels[0].Strategy, opts...)
	}
	return engine.NewNestedExecutor(ecfg, levels, opts...)
}

// OpenJournal opens the journal the configuration asks for. It returns
// nil when journaling is off.
func OpenJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "":
		return nil, nil
	case "csv":
		return journal.NewCSV(jc.TradesFile, jc.EquityFile)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	}
	return nil, fmt.Errorf("unknown journal type %q", jc.Type)
}

// Execute runs cfg over inputs and journals it. With a SQLite journal the
// configuration and every input bar are stored too, so the run can be
// replayed by ID. Extra handlers see the run after the journal. The
// report of an interrupted run is returned together with the error.
func Execute(ctx context.Context, cfg *config.Run, inputs [][]*feed.Feed, log *slog.Logger, extra ...engine.Handler) (rep *report.Report, err error) {
	if log == nil {
		log = slog.Default()
	}
	j, err := OpenJournal(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	opts := []engine.Option{engine.WithLogger(log)}
	var rec *journal.Recorder
	if j != nil {
		defer func() {
			if cerr := j.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close journal: %w", cerr))
			}
		}()
		rec = journal.NewRecorder(j, log)
		opts = append(opts, engine.WithHandlers(rec))
	}
	opts = append(opts, engine.WithHandlers(extra...))

	r, err := New(cfg, inputs, opts...)
	if err != nil {
		return nil, err
	}

	if db, ok := j.(*journal.SQLite); ok {
		body, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.SaveInputs(ctx, r.RunID(), body, inputs); err != nil {
			return nil, fmt.Errorf("save inputs: %w", err)
		}
	}

	rep, err = r.Run(ctx)
	if err != nil {
		return rep, err
	}
	if rec != nil && rec.Err() != nil {
		return rep, fmt.Errorf("journal: %w", rec.Err())
	}
	return rep, nil
}

// Replay reruns a journaled run from its stored configuration and bars
// and checks the outcome matches the stored report.
func Replay(ctx context.Context, db *journal.SQLite, runID string, log *slog.Logger) (*report.Report, error) {
	recorded, err := db.LoadReport(ctx, runID)
	if err != nil {
		return nil, err
	}
	body, inputs, err := db.LoadInputs(ctx, runID)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("stored config: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	r, err := New(cfg, inputs, engine.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return engine.Replay(ctx, recorded, r)
}
