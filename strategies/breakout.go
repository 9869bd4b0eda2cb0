package strategies

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/engine"
	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/line"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/risk"
)

// Breakout goes long when the close clears the highest high of the
// previous Period bars. The position is protected by a stop order Mult
// ATRs below the entry bar's close and exited at market when the close
// drops under the lowest low of the previous Period bars.
//
// With RiskPct set the size is chosen so the stop loses that share of
// equity; otherwise Quantity is bought.
type Breakout struct {
	Instruments []string
	Period      int
	ATRPeriod   int
	Mult        decimal.Decimal
	Quantity    decimal.Decimal
	RiskPct     decimal.Decimal

	legs map[string]*breakoutLeg
}

type breakoutLeg struct {
	entry, stop, exit broker.OrderID
	exiting           bool
}

func newBreakout(instruments []string, p Params) (engine.OrderSource, error) {
	period, err := p.Int("period", 20)
	if err != nil {
		return nil, err
	}
	atr, err := p.Int("atr", 14)
	if err != nil {
		return nil, err
	}
	s := &Breakout{
		Instruments: instruments,
		Period:      period,
		ATRPeriod:   atr,
		Mult:        p.Decimal("mult", 2),
		Quantity:    p.Decimal("quantity", 100),
		RiskPct:     p.Decimal("risk_pct", 0),
		legs:        map[string]*breakoutLeg{},
	}
	if !s.Mult.IsPositive() {
		return nil, fmt.Errorf("%w: mult must be positive", ErrBadParam)
	}
	if !s.Quantity.IsPositive() && !s.RiskPct.IsPositive() {
		return nil, fmt.Errorf("%w: need a positive quantity or risk_pct", ErrBadParam)
	}
	for _, inst := range instruments {
		s.legs[inst] = &breakoutLeg{}
	}
	return s, nil
}

func (s *Breakout) names(inst string) (hh, ll, atr string) {
	return inst + ".bo_high", inst + ".bo_low", inst + ".bo_atr"
}

func (s *Breakout) OnInit(c *engine.Context) error {
	for _, inst := range s.Instruments {
		hh, ll, atr := s.names(inst)
		high, low := market.LineName(inst, market.High), market.LineName(inst, market.Low)
		closeLine := market.LineName(inst, market.Close)
		if err := c.Register(indicators.NewHighest(hh, high, s.Period)); err != nil {
			return err
		}
		if err := c.Register(indicators.NewLowest(ll, low, s.Period)); err != nil {
			return err
		}
		if err := c.Register(indicators.NewATR(atr, high, low, closeLine, s.ATRPeriod)); err != nil {
			return err
		}
	}
	return nil
}

// previous reads a line one tick back, false while not ready.
func previous(c *engine.Context, name string) (decimal.Decimal, bool, error) {
	if c.Tick() < 2 {
		return decimal.Zero, false, nil
	}
	v, err := c.At(name, 1)
	if errors.Is(err, line.ErrNotReady) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return decimal.NewFromFloat(v), true, nil
}

func (s *Breakout) OnBar(c *engine.Context) error {
	for _, inst := range s.Instruments {
		if !c.Fresh(inst) {
			continue
		}
		if err := s.step(c, inst); err != nil {
			return err
		}
	}
	return nil
}

func (s *Breakout) step(c *engine.Context, inst string) error {
	leg := s.legs[inst]
	hhName, llName, atrName := s.names(inst)
	hh, okHigh, err := previous(c, hhName)
	if err != nil {
		return err
	}
	ll, okLow, err := previous(c, llName)
	if err != nil {
		return err
	}
	atrValue, okATR := c.Value(atrName)
	if !okHigh || !okLow || !okATR {
		return nil
	}
	atr := decimal.NewFromFloat(atrValue)
	b, _ := c.Bar(inst)
	held := c.Position(inst).Quantity

	switch {
	case held.IsZero() && leg.entry == 0 && b.Close.GreaterThan(hh):
		qty := s.Quantity
		if s.RiskPct.IsPositive() {
			stop := b.Close.Sub(atr.Mul(s.Mult))
			qty = risk.Calculate(risk.Inputs{Equity: c.Equity(), RiskPct: s.RiskPct, EntryPrice: b.Close, StopPrice: stop}).Quantity
			qty = risk.Affordable(qty, c.Cash(), b.Close)
		}
		if !qty.IsPositive() {
			return nil
		}
		id, err := c.SubmitOrder(broker.MarketOrder(inst, market.Buy, qty))
		if err != nil {
			return err
		}
		leg.entry = id

	case held.IsPositive() && leg.stop == 0 && !leg.exiting:
		stop := b.Close.Sub(atr.Mul(s.Mult)).Round(2)
		if !stop.IsPositive() {
			return nil
		}
		req := broker.StopOrder(inst, market.Sell, held, stop)
		req.Tag = "protective-stop"
		id, err := c.SubmitOrder(req)
		if err != nil {
			return err
		}
		leg.stop = id

	case held.IsPositive() && b.Close.LessThan(ll) && !leg.exiting:
		// The stop is canceled first; the market exit goes out once the
		// cancel is confirmed so the two can never both fill.
		leg.exiting = true
		if leg.stop != 0 {
			c.CancelOrder(leg.stop)
			return nil
		}
		fallthrough

	case held.IsPositive() && leg.exiting && leg.stop == 0 && leg.exit == 0:
		id, err := c.SubmitOrder(broker.MarketOrder(inst, market.Sell, held))
		if err != nil {
			return err
		}
		leg.exit = id
	}
	return nil
}

func (s *Breakout) OnOrderUpdate(o broker.Order) {
	leg, ok := s.legs[o.Instrument]
	if !ok || !o.Status.Terminal() {
		return
	}
	switch o.ID {
	case leg.entry:
		leg.entry = 0
	case leg.stop:
		leg.stop = 0
		if o.Status == broker.Filled {
			leg.exiting = false
		}
	case leg.exit:
		leg.exit = 0
		leg.exiting = false
	}
}
