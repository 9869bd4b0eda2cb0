package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/report"
)

// OrderSource is the one method every strategy implements. It runs once
// per tick of its level, after indicators are up to date.
type OrderSource interface {
	OnBar(*Context) error
}

// Initializer strategies register their indicators before the first tick.
type Initializer interface {
	OnInit(*Context) error
}

// OrderObserver strategies see every update of the orders they placed.
type OrderObserver interface {
	OnOrderUpdate(broker.Order)
}

// TradeObserver strategies see every fill of the orders they placed.
type TradeObserver interface {
	OnTrade(broker.Trade)
}

// Finisher strategies are called once after the last tick.
type Finisher interface {
	OnFinish(*Context)
}

// Fill is a booked trade with the P&L it realized. Closing is set when
// the trade reduced an existing position.
type Fill struct {
	Trade    broker.Trade
	Realized decimal.Decimal
	Closing  bool
}

// Tick summarizes the account after one tick of a level.
type Tick struct {
	Level  int
	Index  int
	Time   time.Time
	Cash   decimal.Decimal
	Equity decimal.Decimal
}

// Handler receives run events synchronously during the ledger update
// stage. Handlers are called in registration order: strategies first,
// then the statistics collector, then handlers passed as options.
type Handler interface {
	OnOrderUpdate(broker.Order)
	OnFill(Fill)
	OnTick(Tick)
}

// RunObserver handlers are told the run ID before the first tick and
// get the report once the run ends, complete or not.
type RunObserver interface {
	OnRunStart(runID string)
	OnRunEnd(*report.Report)
}

// strategyHandler forwards the events of one level to the optional
// observer methods of its strategy.
type strategyHandler struct {
	level int
	s     OrderSource
}

func (h strategyHandler) OnOrderUpdate(o broker.Order) {
	if obs, ok := h.s.(OrderObserver); ok && o.Level == h.level {
		obs.OnOrderUpdate(o)
	}
}

func (h strategyHandler) OnFill(f Fill) {
	if obs, ok := h.s.(TradeObserver); ok && f.Trade.Level == h.level {
		obs.OnTrade(f.Trade)
	}
}

func (strategyHandler) OnTick(Tick) {}
