// Package engine drives a backtest: it advances the clock, feeds bar
// fields into the indicator graph, calls strategies, hands their orders
// to the broker simulator and books fills in the ledger, one tick at a
// time and always in the same order.
package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRunFinished   = errors.New("run already finished")
	ErrNotInCallback = errors.New("orders can only be placed from OnBar")
	ErrNotInInit     = errors.New("indicators can only be registered from OnInit")
	ErrUnknownLine   = errors.New("unknown line")
	ErrNoFeeds       = errors.New("no feeds")

	// ErrInvariant marks a programming error detected during a run. Runs
	// that hit one are aborted without a report.
	ErrInvariant = errors.New("invariant violation")

	ErrReplayMismatch = errors.New("replay does not reproduce the recorded report")
	ErrIncompleteRun  = errors.New("recorded run did not complete")
)

// State is the stage a run is in.
type State int

const (
	Initialized State = iota
	Running
	Syncing
	ComputingIndicators
	StrategyCallback
	OrderMatching
	LedgerUpdate
	Finished
)

var stateNames = [...]string{
	"INITIALIZED", "RUNNING", "SYNCING", "COMPUTING_INDICATORS",
	"STRATEGY_CALLBACK", "ORDER_MATCHING", "LEDGER_UPDATE", "FINISHED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// RunError pins a failed run to the tick and component at fault.
type RunError struct {
	Tick       int
	Time       time.Time
	Level      string
	Component  string
	Instrument string
	Err        error
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("tick %d (%s) level %s: %s", e.Tick, e.Time.Format(time.RFC3339), e.Level, e.Component)
	if e.Instrument != "" {
		msg += " " + e.Instrument
	}
	return msg + ": " + e.Err.Error()
}

func (e *RunError) Unwrap() error { return e.Err }
