package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/market"
)

// OrderID identifies an order within one run. IDs are assigned
// sequentially starting at 1.
type OrderID uint64

// TradeID identifies a fill within one run.
type TradeID uint64

type OrderType int8

const (
	Market OrderType = iota
	Limit
	Stop
	StopLimit
)

var orderTypeNames = [...]string{"market", "limit", "stop", "stop_limit"}

func (t OrderType) String() string {
	if t < 0 || int(t) >= len(orderTypeNames) {
		return fmt.Sprintf("OrderType(%d)", int8(t))
	}
	return orderTypeNames[t]
}

func ParseOrderType(s string) (OrderType, error) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, n := range orderTypeNames {
		if s == n {
			return OrderType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

func (t OrderType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *OrderType) UnmarshalText(b []byte) error {
	v, err := ParseOrderType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TimeInForce controls how long an unfilled order stays working.
type TimeInForce int8

const (
	// GTC orders work until filled or canceled.
	GTC TimeInForce = iota
	// DAY orders are canceled when the calendar date rolls over.
	DAY
	// IOC orders are canceled after the first bar they are matched against.
	IOC
)

var tifNames = [...]string{"gtc", "day", "ioc"}

func (t TimeInForce) String() string {
	if t < 0 || int(t) >= len(tifNames) {
		return fmt.Sprintf("TimeInForce(%d)", int8(t))
	}
	return tifNames[t]
}

func ParseTimeInForce(s string) (TimeInForce, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range tifNames {
		if s == n {
			return TimeInForce(i), nil
		}
	}
	return 0, fmt.Errorf("unknown time in force %q", s)
}

func (t TimeInForce) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeInForce) UnmarshalText(b []byte) error {
	v, err := ParseTimeInForce(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Status is the lifecycle state of an order:
//
//	created -> submitted -> [partially_filled] -> filled | canceled | rejected
type Status int8

const (
	Created Status = iota
	Submitted
	PartiallyFilled
	Filled
	Canceled
	Rejected
)

var statusNames = [...]string{"created", "submitted", "partially_filled", "filled", "canceled", "rejected"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int8(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for i, n := range statusNames {
		if string(b) == n {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown order status %q", b)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Filled || s == Canceled || s == Rejected
}

// OrderRequest is what a strategy submits.
type OrderRequest struct {
	Instrument  string
	Side        market.Side
	Quantity    decimal.Decimal
	Type        OrderType
	LimitPrice  *decimal.Decimal
	StopPrice   *decimal.Decimal
	TimeInForce TimeInForce
	Tag         string
}

// MarketOrder is shorthand for a GTC market order request.
func MarketOrder(instrument string, side market.Side, qty decimal.Decimal) OrderRequest {
	return OrderRequest{Instrument: instrument, Side: side, Quantity: qty, Type: Market}
}

// LimitOrder is shorthand for a GTC limit order request.
func LimitOrder(instrument string, side market.Side, qty, limit decimal.Decimal) OrderRequest {
	return OrderRequest{Instrument: instrument, Side: side, Quantity: qty, Type: Limit, LimitPrice: &limit}
}

// StopOrder is shorthand for a GTC stop order request.
func StopOrder(instrument string, side market.Side, qty, stop decimal.Decimal) OrderRequest {
	return OrderRequest{Instrument: instrument, Side: side, Quantity: qty, Type: Stop, StopPrice: &stop}
}

// StopLimitOrder is shorthand for a GTC stop-limit order request.
func StopLimitOrder(instrument string, side market.Side, qty, stop, limit decimal.Decimal) OrderRequest {
	return OrderRequest{Instrument: instrument, Side: side, Quantity: qty, Type: StopLimit, StopPrice: &stop, LimitPrice: &limit}
}

// Order is the broker's record of a request. Only the simulator mutates
// it; everyone else sees copies.
type Order struct {
	ID           OrderID          `json:"id"`
	Instrument   string           `json:"instrument"`
	Side         market.Side      `json:"side"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Type         OrderType        `json:"type"`
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice    *decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce  TimeInForce      `json:"time_in_force"`
	Status       Status           `json:"status"`
	Filled       decimal.Decimal  `json:"filled"`
	AvgFillPrice decimal.Decimal  `json:"avg_fill_price"`
	Reason       string           `json:"reason,omitempty"`
	Tag          string           `json:"tag,omitempty"`
	Level        int              `json:"level"`
	Created      time.Time        `json:"created"`
	Updated      time.Time        `json:"updated"`

	// Triggered is set once the stop of a stop-limit order has fired.
	Triggered bool `json:"triggered,omitempty"`

	cancelRequested bool
}

// Remaining is the unfilled quantity.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// Trade is the immutable record of a fill.
type Trade struct {
	ID         TradeID         `json:"id"`
	OrderID    OrderID         `json:"order_id"`
	Instrument string          `json:"instrument"`
	Side       market.Side     `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Commission decimal.Decimal `json:"commission"`
	Slippage   decimal.Decimal `json:"slippage"`
	Level      int             `json:"level"`
	Time       time.Time       `json:"time"`
}

// Notional is price times quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// CashDelta is the signed change in cash the trade causes.
func (t Trade) CashDelta() decimal.Decimal {
	return t.Notional().Mul(t.Side.Sign()).Neg().Sub(t.Commission)
}
