// Package risk sizes positions from the share of equity put at stake.
package risk

import "github.com/shopspring/decimal"

type Inputs struct {
	Equity     decimal.Decimal
	RiskPct    decimal.Decimal // 0.005 loses half a percent of equity at the stop
	EntryPrice decimal.Decimal
	StopPrice  decimal.Decimal
}

type Result struct {
	Quantity    decimal.Decimal
	RiskPerUnit decimal.Decimal
	RiskAmount  decimal.Decimal
}

// Calculate returns the whole number of units whose loss at the stop
// stays within RiskPct of equity. A zero stop distance or non-positive
// equity sizes to zero.
func Calculate(in Inputs) Result {
	perUnit := in.EntryPrice.Sub(in.StopPrice).Abs()
	amount := decimal.Max(in.Equity, decimal.Zero).Mul(in.RiskPct)
	res := Result{RiskPerUnit: perUnit, RiskAmount: amount}
	if perUnit.IsZero() || !amount.IsPositive() {
		return res
	}
	res.Quantity = amount.Div(perUnit).Floor()
	return res
}

// Affordable caps qty at what cash buys at price, commissions aside.
func Affordable(qty, cash, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !cash.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(qty, cash.Div(price).Floor())
}

// RR is the reward to risk ratio of a planned trade, zero without risk.
func RR(entry, stop, target decimal.Decimal) decimal.Decimal {
	risk := entry.Sub(stop).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	return target.Sub(entry).Abs().Div(risk)
}
