package report

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
)

// Stats are the derived performance figures of a run. Ratios are
// fractions, not percentages.
type Stats struct {
	TotalReturn  float64         `json:"total_return"`
	MaxDrawdown  float64         `json:"max_drawdown"`
	Sharpe       float64         `json:"sharpe"`
	Turnover     float64         `json:"turnover"`
	Fills        int             `json:"fills"`
	RoundTrips   int             `json:"round_trips"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	WinRate      float64         `json:"win_rate"`
	ProfitFactor float64         `json:"profit_factor"`
	GrossProfit  decimal.Decimal `json:"gross_profit"`
	GrossLoss    decimal.Decimal `json:"gross_loss"`
	NetPnL       decimal.Decimal `json:"net_pnl"`
}

// LevelStats accumulate per executor level. A flat run has one level.
type LevelStats struct {
	Level      int             `json:"level"`
	Name       string          `json:"name"`
	Ticks      int             `json:"ticks"`
	Orders     int             `json:"orders"`
	Filled     int             `json:"filled"`
	Canceled   int             `json:"canceled"`
	Rejected   int             `json:"rejected"`
	Fills      int             `json:"fills"`
	RoundTrips int             `json:"round_trips"`
	Wins       int             `json:"wins"`
	Losses     int             `json:"losses"`
	Volume     decimal.Decimal `json:"volume"`
	Notional   decimal.Decimal `json:"notional"`
	Commission decimal.Decimal `json:"commission"`
	Slippage   decimal.Decimal `json:"slippage"`
	Realized   decimal.Decimal `json:"realized"`
}

// PeriodsPerYear annualizes the Sharpe ratio of per-tick returns.
const PeriodsPerYear = 252

// Collector accumulates statistics while a run executes. It is fed by
// the executor in event order.
type Collector struct {
	levels   []LevelStats
	equity   []EquityPoint
	outcomes []decimal.Decimal
	seen     map[broker.OrderID]bool
}

// NewCollector prepares one accumulator per level name.
func NewCollector(names ...string) *Collector {
	if len(names) == 0 {
		names = []string{"main"}
	}
	c := &Collector{seen: make(map[broker.OrderID]bool)}
	for i, n := range names {
		c.levels = append(c.levels, LevelStats{Level: i, Name: n})
	}
	return c
}

func (c *Collector) level(i int) *LevelStats {
	if i < 0 || i >= len(c.levels) {
		i = len(c.levels) - 1
	}
	return &c.levels[i]
}

// Order counts an order update.
func (c *Collector) Order(o broker.Order) {
	lv := c.level(o.Level)
	if !c.seen[o.ID] {
		c.seen[o.ID] = true
		lv.Orders++
	}
	switch o.Status {
	case broker.Filled:
		lv.Filled++
	case broker.Canceled:
		lv.Canceled++
	case broker.Rejected:
		lv.Rejected++
	}
}

// Fill records a trade. Closing fills count as round trips with the P&L
// they realized.
func (c *Collector) Fill(t broker.Trade, realized decimal.Decimal, closing bool) {
	lv := c.level(t.Level)
	lv.Fills++
	lv.Volume = lv.Volume.Add(t.Quantity)
	lv.Notional = lv.Notional.Add(t.Notional())
	lv.Commission = lv.Commission.Add(t.Commission)
	lv.Slippage = lv.Slippage.Add(t.Slippage)
	lv.Realized = lv.Realized.Add(realized)
	if !closing {
		return
	}
	lv.RoundTrips++
	switch realized.Sign() {
	case 1:
		lv.Wins++
	case -1:
		lv.Losses++
	}
	c.outcomes = append(c.outcomes, realized)
}

// Tick counts a tick of a level; outer ticks extend the equity curve.
func (c *Collector) Tick(level int, at time.Time, cash, equity decimal.Decimal) {
	c.level(level).Ticks++
	if level == 0 {
		c.equity = append(c.equity, EquityPoint{Time: at, Cash: cash, Equity: equity})
	}
}

func (c *Collector) Levels() []LevelStats {
	return append([]LevelStats(nil), c.levels...)
}

func (c *Collector) Equity() []EquityPoint {
	return append([]EquityPoint(nil), c.equity...)
}

// Stats derives the run statistics from what was collected.
func (c *Collector) Stats(initial, final decimal.Decimal) Stats {
	s := Stats{NetPnL: final.Sub(initial)}
	if initial.IsPositive() {
		s.TotalReturn = final.Sub(initial).Div(initial).InexactFloat64()
	}

	var notional decimal.Decimal
	for _, lv := range c.levels {
		s.Fills += lv.Fills
		notional = notional.Add(lv.Notional)
	}
	for _, r := range c.outcomes {
		s.RoundTrips++
		switch r.Sign() {
		case 1:
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(r)
		case -1:
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(r)
		}
	}
	if s.RoundTrips > 0 {
		s.WinRate = float64(s.Wins) / float64(s.RoundTrips)
	}
	if s.GrossLoss.IsNegative() {
		s.ProfitFactor = s.GrossProfit.Div(s.GrossLoss.Neg()).InexactFloat64()
	}

	curve := make([]float64, len(c.equity))
	for i, p := range c.equity {
		curve[i] = p.Equity.InexactFloat64()
	}
	s.MaxDrawdown = MaxDrawdown(curve)
	s.Sharpe = Sharpe(Returns(curve), PeriodsPerYear)
	if avg := mean(curve); avg > 0 {
		s.Turnover = notional.InexactFloat64() / avg
	}
	return s
}

// MaxDrawdown is the largest peak-to-trough decline as a fraction of the
// peak.
func MaxDrawdown(curve []float64) float64 {
	var peak, worst float64
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-v)/peak)
		}
	}
	return worst
}

// Returns converts an equity curve to simple per-step returns.
func Returns(curve []float64) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, curve[i]/curve[i-1]-1)
	}
	return out
}

// Sharpe is the annualized mean over sample standard deviation of
// returns, with a zero risk-free rate. It is zero for flat series.
func Sharpe(returns []float64, periods float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	var ss float64
	for _, r := range returns {
		ss += (r - m) * (r - m)
	}
	sd := math.Sqrt(ss / float64(len(returns)-1))
	if sd == 0 {
		return 0
	}
	return m / sd * math.Sqrt(periods)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
