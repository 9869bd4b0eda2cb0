package engine

import (
	"context"
	"fmt"

	"github.com/rustyeddy/barsim/feed"
	"github.com/rustyeddy/barsim/report"
)

// Runner is anything that produces a report from a single run.
type Runner interface {
	Run(ctx context.Context) (*report.Report, error)
}

// Executor runs one strategy over one merged clock.
type Executor struct {
	run *RunContext
}

// NewExecutor prepares a flat run. Strategy initialization happens here,
// so configuration errors such as cyclic indicators surface before the
// first tick.
func NewExecutor(cfg Config, feeds []*feed.Feed, s OrderSource, opts ...Option) (*Executor, error) {
	r, err := newRun(cfg, []Level{{Name: "main", Feeds: feeds, Strategy: s}}, opts...)
	if err != nil {
		return nil, err
	}
	return &Executor{run: r}, nil
}

// Run executes the whole clock. A canceled or timed out run returns a
// partial report marked incomplete along with the context error; an
// invariant violation returns a *RunError and no report. Run can only be
// called once.
func (e *Executor) Run(ctx context.Context) (*report.Report, error) {
	return e.run.execute(ctx)
}

func (e *Executor) State() State { return e.run.state }

// RunID is derived from the first bar time and the config and input
// digests, so it is known before the run starts.
func (e *Executor) RunID() string { return e.run.runID }

// Report returns the report of the finished run, nil before.
func (e *Executor) Report() *report.Report { return e.run.report }

// NestedExecutor runs strategies on several timeframes, outermost first.
// Every bar of a finer level closing at or before a coarse bar's time is
// processed before that coarse bar, and only the finest level matches
// orders.
type NestedExecutor struct {
	run *RunContext
}

func NewNestedExecutor(cfg Config, levels []Level, opts ...Option) (*NestedExecutor, error) {
	if len(levels) < 2 {
		return nil, fmt.Errorf("nested run needs at least two levels, got %d", len(levels))
	}
	r, err := newRun(cfg, levels, opts...)
	if err != nil {
		return nil, err
	}
	return &NestedExecutor{run: r}, nil
}

func (n *NestedExecutor) Run(ctx context.Context) (*report.Report, error) {
	return n.run.execute(ctx)
}

func (n *NestedExecutor) State() State { return n.run.state }

func (n *NestedExecutor) RunID() string { return n.run.runID }

func (n *NestedExecutor) Report() *report.Report { return n.run.report }
