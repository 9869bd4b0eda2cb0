// Package ledger keeps the cash and positions of a run. It is the only
// place account state changes: trades are applied one at a time and open
// positions are marked to market once per tick.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/market"
)

// ErrInvariant marks an accounting state that must never occur.
var ErrInvariant = errors.New("ledger invariant violated")

// Position is the holding in one instrument. Quantity is signed; the
// position is removed when it returns to zero.
type Position struct {
	Instrument    string          `json:"instrument"`
	Quantity      decimal.Decimal `json:"quantity"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	LastPrice     decimal.Decimal `json:"last_price"`
}

// MarketValue is the signed value of the position at its last price.
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.LastPrice)
}

// Account is a snapshot of the ledger.
type Account struct {
	InitialCash decimal.Decimal `json:"initial_cash"`
	Cash        decimal.Decimal `json:"cash"`
	Equity      decimal.Decimal `json:"equity"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Commissions decimal.Decimal `json:"commissions"`
	Positions   []Position      `json:"positions"`
}

// Quotes supplies the latest bar of each instrument for marking.
type Quotes interface {
	Bar(instrument string) (market.Bar, bool)
}

type Ledger struct {
	initial     decimal.Decimal
	cash        decimal.Decimal
	bought      decimal.Decimal
	sold        decimal.Decimal
	net         map[string]decimal.Decimal
	realized    decimal.Decimal
	commissions decimal.Decimal
	equity      decimal.Decimal
	margin      bool
	positions   map[string]*Position
	applied     int
}

// New returns a ledger holding only cash. With margin disabled a trade
// that leaves cash negative is an invariant violation.
func New(initialCash decimal.Decimal, margin bool) *Ledger {
	return &Ledger{
		initial:   initialCash,
		cash:      initialCash,
		equity:    initialCash,
		margin:    margin,
		positions: make(map[string]*Position),
		net:       make(map[string]decimal.Decimal),
	}
}

func (l *Ledger) Cash() decimal.Decimal   { return l.cash }
func (l *Ledger) Equity() decimal.Decimal { return l.equity }

// Quantity returns the signed holding in an instrument.
func (l *Ledger) Quantity(instrument string) decimal.Decimal {
	if p, ok := l.positions[instrument]; ok {
		return p.Quantity
	}
	return decimal.Zero
}

// Position returns a copy of the position in an instrument; a flat
// instrument yields a zero position.
func (l *Ledger) Position(instrument string) Position {
	if p, ok := l.positions[instrument]; ok {
		return *p
	}
	return Position{Instrument: instrument}
}

// Apply books a trade. Cash moves by exactly the trade's cash delta and
// the position's average cost and realized P&L follow the weighted
// average method. It returns the P&L the trade realized. Nothing changes
// when an error is returned.
func (l *Ledger) Apply(t broker.Trade) (decimal.Decimal, error) {
	if !t.Quantity.IsPositive() || !t.Price.IsPositive() || !t.Side.Valid() {
		return decimal.Zero, fmt.Errorf("%w: malformed trade %d", ErrInvariant, t.ID)
	}
	delta := t.CashDelta()
	cash := l.cash.Add(delta)
	if !l.margin && cash.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: trade %d leaves cash at %s", ErrInvariant, t.ID, cash)
	}

	cur := l.Position(t.Instrument)
	next, realized := book(cur, t.Side, t.Quantity, t.Price)
	if !l.margin && next.Quantity.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: trade %d opens a short without margin", ErrInvariant, t.ID)
	}

	l.cash = cash
	if t.Side == market.Buy {
		l.bought = l.bought.Add(t.Notional())
	} else {
		l.sold = l.sold.Add(t.Notional())
	}
	l.net[t.Instrument] = l.net[t.Instrument].Add(t.Quantity.Mul(t.Side.Sign()))
	l.realized = l.realized.Add(realized)
	l.commissions = l.commissions.Add(t.Commission)
	l.applied++
	if next.Quantity.IsZero() {
		delete(l.positions, t.Instrument)
	} else {
		next.LastPrice = t.Price
		next.UnrealizedPnL = next.Quantity.Mul(t.Price.Sub(next.AverageCost))
		l.positions[t.Instrument] = &next
	}
	return realized, nil
}

// book returns the position after a fill and the P&L it realizes.
func book(p Position, side market.Side, qty, price decimal.Decimal) (Position, decimal.Decimal) {
	signed := qty.Mul(side.Sign())
	q := p.Quantity
	realized := decimal.Zero

	switch {
	case q.IsZero() || q.Sign() == signed.Sign():
		total := q.Abs().Add(qty)
		p.AverageCost = p.AverageCost.Mul(q.Abs()).Add(price.Mul(qty)).Div(total)
	default:
		closing := decimal.Min(qty, q.Abs())
		realized = closing.Mul(price.Sub(p.AverageCost)).Mul(decimal.NewFromInt(int64(q.Sign())))
		if qty.GreaterThan(q.Abs()) {
			// Flipped through zero: the remainder opens at the fill price.
			p.AverageCost = price
		}
	}
	p.Quantity = q.Add(signed)
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	if p.Quantity.IsZero() {
		p = Position{Instrument: p.Instrument}
	}
	return p, realized
}

// Mark revalues open positions at the latest close and returns equity.
func (l *Ledger) Mark(q Quotes) decimal.Decimal {
	equity := l.cash
	for inst, p := range l.positions {
		if b, ok := q.Bar(inst); ok {
			p.LastPrice = b.Close
		}
		p.UnrealizedPnL = p.Quantity.Mul(p.LastPrice.Sub(p.AverageCost))
		equity = equity.Add(p.MarketValue())
	}
	l.equity = equity
	return equity
}

// Check cross-checks the books against totals kept per trade: cash must
// equal initial cash plus sales minus purchases and commissions, and
// every position must hold the net quantity traded in its instrument.
func (l *Ledger) Check() error {
	want := l.initial.Add(l.sold).Sub(l.bought).Sub(l.commissions)
	if !want.Equal(l.cash) {
		return fmt.Errorf("%w: cash %s, expected %s after %d trades", ErrInvariant, l.cash, want, l.applied)
	}
	for inst, qty := range l.net {
		if have := l.Quantity(inst); !have.Equal(qty) {
			return fmt.Errorf("%w: %s position %s, traded net %s", ErrInvariant, inst, have, qty)
		}
	}
	for inst := range l.positions {
		if _, ok := l.net[inst]; !ok {
			return fmt.Errorf("%w: %s position without trades", ErrInvariant, inst)
		}
	}
	return nil
}

// Snapshot copies the account state, positions sorted by instrument.
func (l *Ledger) Snapshot() Account {
	a := Account{
		InitialCash: l.initial,
		Cash:        l.cash,
		Equity:      l.equity,
		RealizedPnL: l.realized,
		Commissions: l.commissions,
		Positions:   make([]Position, 0, len(l.positions)),
	}
	for _, p := range l.positions {
		a.Positions = append(a.Positions, *p)
	}
	sort.Slice(a.Positions, func(i, j int) bool { return a.Positions[i].Instrument < a.Positions[j].Instrument })
	return a
}
