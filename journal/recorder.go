package journal

import (
	"context"
	"log/slog"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/engine"
	"github.com/rustyeddy/barsim/report"
)

// Recorder is an engine handler that streams fills and outer-level
// equity into a journal. Archive journals also get the run summary and
// the full report when the run ends. The first write error is kept and
// later events are dropped.
type Recorder struct {
	j     Journal
	log   *slog.Logger
	runID string
	err   error
}

var (
	_ engine.Handler     = (*Recorder)(nil)
	_ engine.RunObserver = (*Recorder)(nil)
)

func NewRecorder(j Journal, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{j: j, log: log}
}

// Err returns the first journal error, if any.
func (r *Recorder) Err() error { return r.err }

func (r *Recorder) RunID() string { return r.runID }

func (r *Recorder) fail(what string, err error) {
	if err == nil || r.err != nil {
		return
	}
	r.err = err
	r.log.Error("journal write failed", "run", r.runID, "record", what, "err", err)
}

// OnRunStart clears whatever an Archive holds for runID from an
// earlier run with the same inputs.
func (r *Recorder) OnRunStart(runID string) {
	r.runID = runID
	if a, ok := r.j.(Archive); ok && r.err == nil {
		r.fail("reset", a.ResetRun(context.Background(), runID))
	}
}

func (r *Recorder) OnOrderUpdate(broker.Order) {}

func (r *Recorder) OnFill(f engine.Fill) {
	if r.err != nil {
		return
	}
	r.fail("trade", r.j.RecordTrade(NewTradeRecord(r.runID, f.Trade, f.Realized)))
}

func (r *Recorder) OnTick(t engine.Tick) {
	if r.err != nil || t.Level != 0 {
		return
	}
	r.fail("equity", r.j.RecordEquity(EquitySnapshot{RunID: r.runID, Time: t.Time, Cash: t.Cash, Equity: t.Equity}))
}

func (r *Recorder) OnRunEnd(rep *report.Report) {
	a, ok := r.j.(Archive)
	if !ok || r.err != nil {
		return
	}
	r.fail("run", a.RecordRun(NewRunRecord(rep)))
	if r.err == nil {
		r.fail("report", a.SaveReport(rep))
	}
}
