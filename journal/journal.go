// Package journal persists runs: a streaming trade and equity log in CSV
// or SQLite, and in SQLite also the reports and input bars needed to
// replay a run later.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/report"
)

var ErrNotFound = errors.New("not found")

type TradeRecord struct {
	RunID      string
	TradeID    uint64
	OrderID    uint64
	Time       time.Time
	Instrument string
	Side       string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
	Slippage   decimal.Decimal
	Realized   decimal.Decimal
	Level      int
}

func NewTradeRecord(runID string, t broker.Trade, realized decimal.Decimal) TradeRecord {
	return TradeRecord{
		RunID:      runID,
		TradeID:    uint64(t.ID),
		OrderID:    uint64(t.OrderID),
		Time:       t.Time,
		Instrument: t.Instrument,
		Side:       t.Side.String(),
		Quantity:   t.Quantity,
		Price:      t.Price,
		Commission: t.Commission,
		Slippage:   t.Slippage,
		Realized:   realized,
		Level:      t.Level,
	}
}

type EquitySnapshot struct {
	RunID  string
	Time   time.Time
	Cash   decimal.Decimal
	Equity decimal.Decimal
}

// RunRecord is the one-row summary of a run.
type RunRecord struct {
	RunID        string
	Strategy     string
	ConfigDigest string
	InputDigest  string
	Complete     bool
	Start        time.Time
	End          time.Time
	Ticks        int
	Trades       int
	RoundTrips   int
	Wins         int
	Losses       int
	InitialCash  decimal.Decimal
	FinalEquity  decimal.Decimal
	NetPnL       decimal.Decimal
	TotalReturn  float64
	MaxDrawdown  float64
	Sharpe       float64
	WinRate      float64
	ProfitFactor float64
}

func NewRunRecord(r *report.Report) RunRecord {
	return RunRecord{
		RunID:        r.RunID,
		Strategy:     r.Strategy,
		ConfigDigest: r.ConfigDigest,
		InputDigest:  r.InputDigest,
		Complete:     r.Complete,
		Start:        r.Start,
		End:          r.End,
		Ticks:        r.Ticks,
		Trades:       len(r.Trades),
		RoundTrips:   r.Stats.RoundTrips,
		Wins:         r.Stats.Wins,
		Losses:       r.Stats.Losses,
		InitialCash:  r.Account.InitialCash,
		FinalEquity:  r.Account.Equity,
		NetPnL:       r.Stats.NetPnL,
		TotalReturn:  r.Stats.TotalReturn,
		MaxDrawdown:  r.Stats.MaxDrawdown,
		Sharpe:       r.Stats.Sharpe,
		WinRate:      r.Stats.WinRate,
		ProfitFactor: r.Stats.ProfitFactor,
	}
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Archive journals keep whole runs, not just their event stream.
type Archive interface {
	Journal
	RecordRun(RunRecord) error
	SaveReport(*report.Report) error
	ResetRun(ctx context.Context, runID string) error
}
