package strategies

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/engine"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/risk"
)

// BuyHold buys every instrument on its first bar and holds to the end.
// With a zero Quantity it splits Allocation of the starting cash evenly.
type BuyHold struct {
	Instruments []string
	Quantity    decimal.Decimal
	Allocation  decimal.Decimal

	bought map[string]bool
	budget decimal.Decimal
}

func newBuyHold(instruments []string, p Params) (engine.OrderSource, error) {
	return &BuyHold{
		Instruments: instruments,
		Quantity:    p.Decimal("quantity", 0),
		Allocation:  p.Decimal("allocation", 0.95),
		bought:      map[string]bool{},
	}, nil
}

func (s *BuyHold) OnBar(c *engine.Context) error {
	if s.budget.IsZero() {
		s.budget = c.Cash().Mul(s.Allocation).Div(decimal.NewFromInt(int64(len(s.Instruments))))
	}
	for _, inst := range s.Instruments {
		if s.bought[inst] || !c.Fresh(inst) {
			continue
		}
		qty := s.Quantity
		if !qty.IsPositive() {
			b, _ := c.Bar(inst)
			if b.Close.IsPositive() {
				qty = risk.Affordable(s.budget.Div(b.Close).Floor(), s.budget, b.Close)
			}
		}
		s.bought[inst] = true
		if !qty.IsPositive() {
			c.Logger().Warn("buy-hold: nothing affordable", "instrument", inst)
			continue
		}
		if _, err := c.SubmitOrder(broker.MarketOrder(inst, market.Buy, qty)); err != nil {
			return err
		}
	}
	return nil
}
