package strategies

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/engine"
	"github.com/rustyeddy/barsim/graph"
	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/market"
)

// SMACross trades a fast/slow moving average crossover on each
// instrument.
//   - Enters long on a cross up, flattens on a cross down
//   - With Short set it reverses instead of flattening
//   - One order per instrument in flight at a time
type SMACross struct {
	Instruments []string
	Fast, Slow  int
	Quantity    decimal.Decimal
	EMA         bool
	Short       bool

	pending map[string]broker.OrderID
}

func newSMACross(instruments []string, p Params) (engine.OrderSource, error) {
	fast, err := p.Int("fast", 10)
	if err != nil {
		return nil, err
	}
	slow, err := p.Int("slow", 30)
	if err != nil {
		return nil, err
	}
	if fast >= slow {
		return nil, fmt.Errorf("%w: fast (%d) must be below slow (%d)", ErrBadParam, fast, slow)
	}
	qty := p.Decimal("quantity", 100)
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrBadParam)
	}
	return &SMACross{
		Instruments: instruments,
		Fast:        fast,
		Slow:        slow,
		Quantity:    qty,
		EMA:         p.Float("ema", 0) != 0,
		Short:       p.Float("short", 0) != 0,
		pending:     map[string]broker.OrderID{},
	}, nil
}

func (s *SMACross) names(inst string) (fast, slow, cross string) {
	return inst + ".ma_fast", inst + ".ma_slow", inst + ".ma_cross"
}

func (s *SMACross) OnInit(c *engine.Context) error {
	for _, inst := range s.Instruments {
		fast, slow, cross := s.names(inst)
		closeLine := market.LineName(inst, market.Close)
		var f, sl graph.Computable
		if s.EMA {
			f, sl = indicators.NewEMA(fast, closeLine, s.Fast), indicators.NewEMA(slow, closeLine, s.Slow)
		} else {
			f, sl = indicators.NewSMA(fast, closeLine, s.Fast), indicators.NewSMA(slow, closeLine, s.Slow)
		}
		for _, k := range []graph.Computable{f, sl, indicators.NewCrossOver(cross, fast, slow)} {
			if err := c.Register(k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SMACross) OnBar(c *engine.Context) error {
	for _, inst := range s.Instruments {
		if _, busy := s.pending[inst]; busy || !c.Fresh(inst) {
			continue
		}
		_, _, cross := s.names(inst)
		x, ok := c.Value(cross)
		if !ok || x == 0 {
			continue
		}
		held := c.Position(inst).Quantity
		var side market.Side
		var qty decimal.Decimal
		switch {
		case x > 0 && !held.IsPositive():
			side, qty = market.Buy, held.Neg()
			if held.IsZero() || s.Short {
				qty = qty.Add(s.Quantity)
			}
		case x < 0 && held.IsPositive():
			side, qty = market.Sell, held
			if s.Short {
				qty = qty.Add(s.Quantity)
			}
		case x < 0 && held.IsZero() && s.Short:
			side, qty = market.Sell, s.Quantity
		default:
			continue
		}
		id, err := c.SubmitOrder(broker.MarketOrder(inst, side, qty))
		if err != nil {
			return err
		}
		s.pending[inst] = id
	}
	return nil
}

func (s *SMACross) OnOrderUpdate(o broker.Order) {
	if o.Status.Terminal() && s.pending[o.Instrument] == o.ID {
		delete(s.pending, o.Instrument)
	}
}
