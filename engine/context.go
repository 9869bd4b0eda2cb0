package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/graph"
	"github.com/rustyeddy/barsim/ledger"
	"github.com/rustyeddy/barsim/line"
	"github.com/rustyeddy/barsim/market"
)

// Context is a strategy's handle on the run. Each level has its own
// Context; reads and order placement go through the level's clock.
type Context struct {
	run *RunContext
	lv  *level
}

// Time is the close time of the current tick.
func (c *Context) Time() time.Time { return c.run.now }

// Tick is the 1-based tick index of the strategy's level.
func (c *Context) Tick() int { return c.lv.ticks }

// Level is 0 for the outermost timeframe.
func (c *Context) Level() int { return c.lv.index }

func (c *Context) LevelName() string { return c.lv.name }

func (c *Context) State() State { return c.run.state }

func (c *Context) Logger() *slog.Logger {
	return c.run.log.With("level", c.lv.name)
}

// Instruments lists the instruments on this level's clock.
func (c *Context) Instruments() []string {
	return append([]string(nil), c.lv.instruments...)
}

// Bar returns the last known bar of an instrument. Instruments absent
// from this level are looked up on the other levels.
func (c *Context) Bar(instrument string) (market.Bar, bool) {
	if c.lv.sync.Has(instrument) {
		return c.lv.sync.Bar(instrument)
	}
	return c.run.Bar(instrument)
}

// Fresh reports whether the instrument printed a bar on this tick.
func (c *Context) Fresh(instrument string) bool {
	return c.lv.sync.Fresh(instrument)
}

// Register adds an indicator to this level's graph. Only valid in OnInit.
func (c *Context) Register(comp graph.Computable) error {
	if c.run.state != Initialized || c.lv.graph.Ticks() > 0 {
		return ErrNotInInit
	}
	return c.lv.graph.Register(comp)
}

// Line returns a read-only view of a source or indicator line, searching
// this level first and then the others from the outermost in.
func (c *Context) Line(name string) (line.View, bool) {
	if l, ok := c.lv.graph.Line(name); ok {
		return l.Watched(c.run.underflowed), true
	}
	for _, lv := range c.run.levels {
		if lv == c.lv {
			continue
		}
		if l, ok := lv.graph.Line(name); ok {
			return l.Watched(c.run.underflowed), true
		}
	}
	return line.View{}, false
}

// Value returns the current value of a line, false while not ready.
func (c *Context) Value(name string) (float64, bool) {
	v, ok := c.Line(name)
	if !ok {
		return 0, false
	}
	return v.Current()
}

// At reads a line ago ticks back. Reading past the history returns
// line.ErrLookbackUnderflow and aborts the run once the callback returns,
// whether or not the strategy passes the error on.
func (c *Context) At(name string, ago int) (float64, error) {
	v, ok := c.Line(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownLine, name)
	}
	return v.At(ago)
}

// SubmitOrder places an order for matching. A request the broker turns
// down still gets an ID; its rejection arrives as an order update.
func (c *Context) SubmitOrder(req broker.OrderRequest) (broker.OrderID, error) {
	if err := c.inCallback(); err != nil {
		return 0, err
	}
	o := c.run.broker.Submit(req, c.lv.index, c.run.now)
	return o.ID, nil
}

// CancelOrder asks for an order to be canceled. Orders not yet submitted
// are canceled at once, others after this tick's matching.
func (c *Context) CancelOrder(id broker.OrderID) bool {
	if c.inCallback() != nil {
		return false
	}
	return c.run.broker.Cancel(id, c.run.now)
}

func (c *Context) inCallback() error {
	if c.run.state == Finished {
		return ErrRunFinished
	}
	if c.run.state != StrategyCallback || c.run.active != c.lv {
		return ErrNotInCallback
	}
	return nil
}

func (c *Context) Order(id broker.OrderID) (broker.Order, bool) {
	return c.run.broker.Order(id)
}

// WorkingOrders returns the orders that can still fill.
func (c *Context) WorkingOrders() []broker.Order {
	return c.run.broker.Working()
}

func (c *Context) Position(instrument string) ledger.Position {
	return c.run.ledger.Position(instrument)
}

func (c *Context) Cash() decimal.Decimal { return c.run.ledger.Cash() }

// Equity is the account value as of the previous mark.
func (c *Context) Equity() decimal.Decimal { return c.run.ledger.Equity() }
