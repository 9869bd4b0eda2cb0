package broker

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/market"
)

// CommissionModel prices one fill.
type CommissionModel interface {
	Commission(price, qty decimal.Decimal) decimal.Decimal
}

// FlatCommission charges the same amount on every fill.
type FlatCommission struct {
	Amount decimal.Decimal
}

func (c FlatCommission) Commission(_, _ decimal.Decimal) decimal.Decimal {
	return c.Amount
}

// PerShareCommission charges Rate per unit, at least Minimum per fill.
type PerShareCommission struct {
	Rate    decimal.Decimal
	Minimum decimal.Decimal
}

func (c PerShareCommission) Commission(_, qty decimal.Decimal) decimal.Decimal {
	return decimal.Max(c.Rate.Mul(qty), c.Minimum)
}

// PercentCommission charges a fraction of the notional, at least Minimum
// per fill. Rate 0.001 is 10 basis points.
type PercentCommission struct {
	Rate    decimal.Decimal
	Minimum decimal.Decimal
}

func (c PercentCommission) Commission(price, qty decimal.Decimal) decimal.Decimal {
	return decimal.Max(c.Rate.Mul(price).Mul(qty).Round(pricePlaces), c.Minimum)
}

// NewCommission builds a model from its configured name: "flat",
// "per_share" or "percent". An empty kind means no commission.
func NewCommission(kind string, rate, minimum decimal.Decimal) (CommissionModel, error) {
	if rate.IsNegative() || minimum.IsNegative() {
		return nil, fmt.Errorf("commission: negative rate or minimum")
	}
	switch kind {
	case "", "none":
		return FlatCommission{}, nil
	case "flat":
		return FlatCommission{Amount: rate}, nil
	case "per_share":
		return PerShareCommission{Rate: rate, Minimum: minimum}, nil
	case "percent":
		return PercentCommission{Rate: rate, Minimum: minimum}, nil
	}
	return nil, fmt.Errorf("commission: unknown model %q", kind)
}

// Slippage moves market and stop fills against the trader:
//
//	per unit = price * (BaseBps/10000 + Impact * qty/volume)
//
// The impact term is dropped for bars without volume.
type Slippage struct {
	BaseBps decimal.Decimal
	Impact  decimal.Decimal
}

var bpsDivisor = decimal.NewFromInt(10000)

// Adjust returns the fill price after slippage and the per-unit amount.
func (s Slippage) Adjust(price, qty, volume decimal.Decimal, side market.Side) (decimal.Decimal, decimal.Decimal) {
	rate := s.BaseBps.Div(bpsDivisor)
	if volume.IsPositive() && !s.Impact.IsZero() {
		rate = rate.Add(s.Impact.Mul(qty).Div(volume))
	}
	per := price.Mul(rate).Round(pricePlaces)
	if per.IsZero() {
		return price, per
	}
	return price.Add(per.Mul(side.Sign())), per
}
