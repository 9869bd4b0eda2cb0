package broker

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/market"
)

// FillPolicy decides which price a limit order gets when the bar trades
// through it.
type FillPolicy int8

const (
	// Conservative fills limits exactly at the limit price.
	Conservative FillPolicy = iota
	// Optimistic fills at the open when the bar gaps through the limit.
	Optimistic
)

func ParseFillPolicy(s string) (FillPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "conservative":
		return Conservative, nil
	case "optimistic":
		return Optimistic, nil
	}
	return 0, fmt.Errorf("unknown fill policy %q", s)
}

func (p FillPolicy) String() string {
	if p == Optimistic {
		return "optimistic"
	}
	return "conservative"
}

// MarketFill selects the reference price of market orders.
type MarketFill int8

const (
	// NextOpen fills at the open of the next bar.
	NextOpen MarketFill = iota
	// CurrentClose fills at the close of the bar the order was submitted on.
	CurrentClose
)

func ParseMarketFill(s string) (MarketFill, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "next_open":
		return NextOpen, nil
	case "current_close":
		return CurrentClose, nil
	}
	return 0, fmt.Errorf("unknown market fill %q", s)
}

func (m MarketFill) String() string {
	if m == CurrentClose {
		return "current_close"
	}
	return "next_open"
}

// Outcome is the result of matching an order against one bar.
type Outcome int8

const (
	// NoFill leaves the order working.
	NoFill Outcome = iota
	// FillSlipped fills at the returned price plus slippage.
	FillSlipped
	// FillExact fills at the returned price; used for limit prices.
	FillExact
	// Armed means a stop-limit fired but its limit was not reachable.
	// The order rests as a limit from the next bar.
	Armed
)

// Fillable matches one kind of order against a bar the order has not
// seen yet.
type Fillable interface {
	Match(o *Order, b market.Bar, policy FillPolicy) (decimal.Decimal, Outcome)
}

// FillableFor returns the matcher of an order type.
func FillableFor(t OrderType) Fillable {
	switch t {
	case Limit:
		return limitFill{}
	case Stop:
		return stopFill{}
	case StopLimit:
		return stopLimitFill{}
	}
	return marketFill{}
}

type marketFill struct{}

func (marketFill) Match(_ *Order, b market.Bar, _ FillPolicy) (decimal.Decimal, Outcome) {
	return b.Open, FillSlipped
}

type limitFill struct{}

func (limitFill) Match(o *Order, b market.Bar, policy FillPolicy) (decimal.Decimal, Outcome) {
	return matchLimit(o.Side, *o.LimitPrice, b, policy)
}

func matchLimit(side market.Side, limit decimal.Decimal, b market.Bar, policy FillPolicy) (decimal.Decimal, Outcome) {
	if side == market.Buy {
		if b.Low.GreaterThan(limit) {
			return decimal.Zero, NoFill
		}
		if policy == Optimistic {
			return decimal.Min(b.Open, limit), FillExact
		}
		return limit, FillExact
	}
	if b.High.LessThan(limit) {
		return decimal.Zero, NoFill
	}
	if policy == Optimistic {
		return decimal.Max(b.Open, limit), FillExact
	}
	return limit, FillExact
}

type stopFill struct{}

func (stopFill) Match(o *Order, b market.Bar, _ FillPolicy) (decimal.Decimal, Outcome) {
	px, ok := triggerStop(o.Side, *o.StopPrice, b)
	if !ok {
		return decimal.Zero, NoFill
	}
	return px, FillSlipped
}

// triggerStop returns the price at which a stop fires within the bar: the
// stop itself, or the open when the bar gaps through it.
func triggerStop(side market.Side, stop decimal.Decimal, b market.Bar) (decimal.Decimal, bool) {
	if side == market.Buy {
		if b.High.LessThan(stop) {
			return decimal.Zero, false
		}
		return decimal.Max(b.Open, stop), true
	}
	if b.Low.GreaterThan(stop) {
		return decimal.Zero, false
	}
	return decimal.Min(b.Open, stop), true
}

// stopLimitFill checks the stop first, assuming the adverse path through
// the bar, then the limit.
type stopLimitFill struct{}

func (stopLimitFill) Match(o *Order, b market.Bar, policy FillPolicy) (decimal.Decimal, Outcome) {
	limit := *o.LimitPrice
	if o.Triggered {
		return matchLimit(o.Side, limit, b, policy)
	}
	px, ok := triggerStop(o.Side, *o.StopPrice, b)
	if !ok {
		return decimal.Zero, NoFill
	}
	within := px.LessThanOrEqual(limit)
	if o.Side == market.Sell {
		within = px.GreaterThanOrEqual(limit)
	}
	if within {
		return px, FillExact
	}
	return decimal.Zero, Armed
}
