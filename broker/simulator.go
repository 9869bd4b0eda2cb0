// Package broker simulates an exchange: it validates order requests,
// matches working orders against bars and prices the resulting fills.
package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/market"
)

// pricePlaces is the precision slippage and percentage costs are
// rounded to.
const pricePlaces = 8

// Rejection and cancel reasons reported on orders.
const (
	ReasonUnknownInstrument = "unknown instrument"
	ReasonBadSide           = "invalid side"
	ReasonBadQuantity       = "quantity must be positive"
	ReasonBadType           = "invalid order type"
	ReasonMissingPrice      = "missing or non-positive limit/stop price"
	ReasonSuspended         = "instrument suspended"
	ReasonInsufficientCash  = "insufficient cash"
	ReasonShortSale         = "short sale requires margin"
	ReasonCanceled          = "canceled"
	ReasonDayExpired        = "day order expired"
	ReasonIOC               = "immediate-or-cancel remainder"
)

var ErrBadConfig = errors.New("invalid broker config")

// Config holds the execution model. It is fixed for the life of a run.
type Config struct {
	Commission CommissionModel
	Slippage   Slippage
	Fill       FillPolicy
	MarketFill MarketFill

	// ParticipationCap limits each fill to floor(cap * bar volume).
	// Zero disables the cap.
	ParticipationCap decimal.Decimal

	// Margin allows negative cash and short positions.
	Margin bool
}

func (c Config) Validate() error {
	if c.ParticipationCap.IsNegative() {
		return fmt.Errorf("%w: negative participation cap", ErrBadConfig)
	}
	if c.Slippage.BaseBps.IsNegative() || c.Slippage.Impact.IsNegative() {
		return fmt.Errorf("%w: negative slippage", ErrBadConfig)
	}
	return nil
}

// Quotes exposes the bars of the current tick.
type Quotes interface {
	Bar(instrument string) (market.Bar, bool)
	Fresh(instrument string) bool
}

// Funds is the account state fills are checked against.
type Funds interface {
	Cash() decimal.Decimal
	Quantity(instrument string) decimal.Decimal
}

// Event is an order update, carrying the trade that caused it if any.
type Event struct {
	Order Order
	Trade *Trade
}

type Simulator struct {
	cfg      Config
	universe *market.Universe
	log      *slog.Logger

	orders    map[OrderID]*Order
	working   []*Order
	nextOrder OrderID
	nextTrade TradeID
	pending   []Event
}

type Option func(*Simulator)

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

func NewSimulator(cfg Config, u *market.Universe, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Commission == nil {
		cfg.Commission = FlatCommission{}
	}
	s := &Simulator{
		cfg:      cfg,
		universe: u,
		log:      slog.Default(),
		orders:   make(map[OrderID]*Order),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Simulator) Config() Config { return s.cfg }

// Submit records a request in created state. Invalid requests are
// rejected right away; the rejection is reported with the next batch of
// events.
func (s *Simulator) Submit(req OrderRequest, level int, now time.Time) Order {
	s.nextOrder++
	o := &Order{
		ID:          s.nextOrder,
		Instrument:  req.Instrument,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Type:        req.Type,
		LimitPrice:  clonePrice(req.LimitPrice),
		StopPrice:   clonePrice(req.StopPrice),
		TimeInForce: req.TimeInForce,
		Status:      Created,
		Tag:         req.Tag,
		Level:       level,
		Created:     now,
		Updated:     now,
	}
	s.orders[o.ID] = o
	if reason := s.validate(req, now); reason != "" {
		s.reject(o, reason, now)
		return *o
	}
	s.working = append(s.working, o)
	return *o
}

func clonePrice(p *decimal.Decimal) *decimal.Decimal {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (s *Simulator) validate(req OrderRequest, now time.Time) string {
	if s.universe == nil || !s.universe.Has(req.Instrument) {
		return ReasonUnknownInstrument
	}
	if !req.Side.Valid() {
		return ReasonBadSide
	}
	if !req.Quantity.IsPositive() {
		return ReasonBadQuantity
	}
	positive := func(p *decimal.Decimal) bool { return p != nil && p.IsPositive() }
	switch req.Type {
	case Market:
	case Limit:
		if !positive(req.LimitPrice) {
			return ReasonMissingPrice
		}
	case Stop:
		if !positive(req.StopPrice) {
			return ReasonMissingPrice
		}
	case StopLimit:
		if !positive(req.StopPrice) || !positive(req.LimitPrice) {
			return ReasonMissingPrice
		}
	default:
		return ReasonBadType
	}
	if s.universe.Suspended(req.Instrument, now) {
		return ReasonSuspended
	}
	return ""
}

// Cancel cancels a created order at once. A working order is matched
// against the current bar first and canceled at the end of that match.
// It returns false for unknown and terminal orders.
func (s *Simulator) Cancel(id OrderID, now time.Time) bool {
	o, ok := s.orders[id]
	if !ok || o.Status.Terminal() {
		return false
	}
	if o.Status == Created {
		s.finish(o, Canceled, ReasonCanceled, now)
		s.compact()
		return true
	}
	o.cancelRequested = true
	return true
}

// Order returns a copy of an order.
func (s *Simulator) Order(id OrderID) (Order, bool) {
	o, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Orders returns copies of every order in submission order.
func (s *Simulator) Orders() []Order {
	out := make([]Order, 0, len(s.orders))
	for id := OrderID(1); id <= s.nextOrder; id++ {
		if o, ok := s.orders[id]; ok {
			out = append(out, *o)
		}
	}
	return out
}

// Working returns copies of the non-terminal orders.
func (s *Simulator) Working() []Order {
	out := make([]Order, len(s.working))
	for i, o := range s.working {
		out[i] = *o
	}
	return out
}

// Accept submits the orders created on this tick and fills the market
// orders that execute on the current close. Orders already in flight are
// left alone. It returns every event since the previous call.
func (s *Simulator) Accept(now time.Time, q Quotes, f Funds) []Event {
	p := newProjection(f)
	for _, o := range s.working {
		if o.Status == Created {
			s.accept(o, now, q, p)
		}
	}
	return s.flush()
}

// Match runs Accept and then matches every in-flight order against the
// current bar of its instrument. Orders only see bars that closed after
// they were created.
func (s *Simulator) Match(now time.Time, q Quotes, f Funds) []Event {
	p := newProjection(f)
	for _, o := range s.working {
		if o.Status == Created {
			s.accept(o, now, q, p)
			continue
		}
		if o.TimeInForce == DAY && !sameDate(o.Created, now) {
			s.finish(o, Canceled, ReasonDayExpired, now)
			continue
		}
		b, ok := q.Bar(o.Instrument)
		if ok && q.Fresh(o.Instrument) && b.Time.After(o.Created) {
			fillable := FillableFor(o.Type)
			px, outcome := fillable.Match(o, b, s.cfg.Fill)
			s.execute(o, b, px, outcome, p)
			if o.TimeInForce == IOC && !o.Status.Terminal() {
				s.finish(o, Canceled, ReasonIOC, now)
			}
		}
		if o.cancelRequested && !o.Status.Terminal() {
			s.finish(o, Canceled, ReasonCanceled, now)
		}
	}
	return s.flush()
}

func (s *Simulator) accept(o *Order, now time.Time, q Quotes, p *projection) {
	o.Status = Submitted
	o.Updated = now
	s.emit(o, nil)
	if o.Type != Market || s.cfg.MarketFill != CurrentClose {
		return
	}
	b, ok := q.Bar(o.Instrument)
	if !ok || !q.Fresh(o.Instrument) || !b.Time.Equal(o.Created) {
		return
	}
	s.execute(o, b, b.Close, FillSlipped, p)
	if o.TimeInForce == IOC && !o.Status.Terminal() {
		s.finish(o, Canceled, ReasonIOC, now)
	}
}

func (s *Simulator) execute(o *Order, b market.Bar, px decimal.Decimal, outcome Outcome, p *projection) {
	switch outcome {
	case NoFill:
		return
	case Armed:
		o.Triggered = true
		o.Updated = b.Time
		s.emit(o, nil)
		return
	}
	if s.universe.Suspended(o.Instrument, b.Time) {
		s.reject(o, ReasonSuspended, b.Time)
		return
	}

	qty := o.Remaining()
	if s.cfg.ParticipationCap.IsPositive() {
		limit := s.cfg.ParticipationCap.Mul(b.Volume).Floor()
		if !limit.IsPositive() {
			return
		}
		qty = decimal.Min(qty, limit)
	}

	price, perUnit := px, decimal.Zero
	if outcome == FillSlipped {
		price, perUnit = s.cfg.Slippage.Adjust(px, qty, b.Volume, o.Side)
	}
	commission := s.cfg.Commission.Commission(price, qty)
	signed := qty.Mul(o.Side.Sign())

	if !s.cfg.Margin {
		cashAfter := p.cash.Sub(price.Mul(signed)).Sub(commission)
		if cashAfter.IsNegative() {
			s.reject(o, ReasonInsufficientCash, b.Time)
			return
		}
		if p.quantity(o.Instrument).Add(signed).IsNegative() {
			s.reject(o, ReasonShortSale, b.Time)
			return
		}
	}

	s.nextTrade++
	t := Trade{
		ID:         s.nextTrade,
		OrderID:    o.ID,
		Instrument: o.Instrument,
		Side:       o.Side,
		Price:      price,
		Quantity:   qty,
		Commission: commission,
		Slippage:   perUnit.Mul(qty),
		Level:      o.Level,
		Time:       b.Time,
	}
	p.apply(t)

	filled := o.Filled.Add(qty)
	o.AvgFillPrice = o.AvgFillPrice.Mul(o.Filled).Add(price.Mul(qty)).Div(filled)
	o.Filled = filled
	o.Updated = b.Time
	if o.Filled.Equal(o.Quantity) {
		o.Status = Filled
	} else {
		o.Status = PartiallyFilled
	}
	s.log.Debug("order filled",
		"order", o.ID, "instrument", o.Instrument, "side", o.Side,
		"price", price, "qty", qty, "commission", commission, "status", o.Status)
	s.emit(o, &t)
}

func (s *Simulator) reject(o *Order, reason string, now time.Time) {
	s.log.Warn("order rejected", "order", o.ID, "instrument", o.Instrument, "reason", reason)
	s.finish(o, Rejected, reason, now)
}

func (s *Simulator) finish(o *Order, st Status, reason string, now time.Time) {
	o.Status = st
	o.Reason = reason
	if now.After(o.Updated) {
		o.Updated = now
	}
	s.emit(o, nil)
}

func (s *Simulator) emit(o *Order, t *Trade) {
	s.pending = append(s.pending, Event{Order: *o, Trade: t})
}

func (s *Simulator) flush() []Event {
	s.compact()
	ev := s.pending
	s.pending = nil
	return ev
}

func (s *Simulator) compact() {
	kept := s.working[:0]
	for _, o := range s.working {
		if !o.Status.Terminal() {
			kept = append(kept, o)
		}
	}
	clear(s.working[len(kept):])
	s.working = kept
}

// Drain returns events queued outside a match, such as rejections and
// cancels issued from a strategy callback.
func (s *Simulator) Drain() []Event {
	return s.flush()
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// projection tracks cash and positions through the fills of one match so
// later fills are checked against earlier ones.
type projection struct {
	funds Funds
	cash  decimal.Decimal
	delta map[string]decimal.Decimal
}

func newProjection(f Funds) *projection {
	return &projection{funds: f, cash: f.Cash(), delta: map[string]decimal.Decimal{}}
}

func (p *projection) quantity(inst string) decimal.Decimal {
	return p.funds.Quantity(inst).Add(p.delta[inst])
}

func (p *projection) apply(t Trade) {
	p.cash = p.cash.Add(t.CashDelta())
	p.delta[t.Instrument] = p.delta[t.Instrument].Add(t.Quantity.Mul(t.Side.Sign()))
}
