package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/feed"
	"github.com/rustyeddy/barsim/graph"
	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/internal/logging"
	"github.com/rustyeddy/barsim/line"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/report"
)

var day0 = time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bar(inst string, at time.Time, o, c float64) market.Bar {
	hi, lo := max(o, c)+0.5, min(o, c)-0.5
	return market.Bar{
		Instrument: inst,
		Time:       at,
		Open:       decimal.NewFromFloat(o),
		High:       decimal.NewFromFloat(hi),
		Low:        decimal.NewFromFloat(lo),
		Close:      decimal.NewFromFloat(c),
		Volume:     decimal.NewFromInt(1_000_000),
	}
}

// dailyFeed builds one bar per day; each bar opens at the close given.
func dailyFeed(t *testing.T, inst string, closes ...float64) *feed.Feed {
	t.Helper()
	f := feed.New(inst)
	for i, c := range closes {
		require.NoError(t, f.Push(bar(inst, day0.AddDate(0, 0, i), c, c)))
	}
	return f
}

// walkFeed is a seeded random walk; bars whose index hits skip are left out.
func walkFeed(t *testing.T, inst string, seed int64, n int, skip func(int) bool) *feed.Feed {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	f := feed.New(inst)
	px := 100.0
	for i := 0; i < n; i++ {
		open := px
		px = max(1, px+rng.NormFloat64())
		px = float64(int(px*100)) / 100
		if skip != nil && skip(i) {
			continue
		}
		require.NoError(t, f.Push(bar(inst, day0.Add(time.Duration(i)*time.Hour), open, px)))
	}
	return f
}

func testConfig(insts ...string) Config {
	cfg := Config{Name: "test", InitialCash: d("100000")}
	for _, in := range insts {
		cfg.Universe = append(cfg.Universe, market.InstrumentMeta{Name: in})
	}
	return cfg
}

type funcStrategy struct {
	init   func(*Context) error
	bar    func(*Context) error
	finish func(*Context)

	orders []broker.Order
	trades []broker.Trade
}

func (s *funcStrategy) OnInit(c *Context) error {
	if s.init == nil {
		return nil
	}
	return s.init(c)
}

func (s *funcStrategy) OnBar(c *Context) error {
	if s.bar == nil {
		return nil
	}
	return s.bar(c)
}

func (s *funcStrategy) OnFinish(c *Context) {
	if s.finish != nil {
		s.finish(c)
	}
}

func (s *funcStrategy) OnOrderUpdate(o broker.Order) { s.orders = append(s.orders, o) }
func (s *funcStrategy) OnTrade(t broker.Trade)       { s.trades = append(s.trades, t) }

// crossStrategy goes long on a fast/slow SMA cross up and flattens on
// the cross down.
type crossStrategy struct{ insts []string }

func (s *crossStrategy) OnInit(c *Context) error {
	for _, inst := range s.insts {
		closeLine := market.LineName(inst, market.Close)
		for _, k := range []graph.Computable{
			indicators.NewSMA(inst+".fast", closeLine, 5),
			indicators.NewSMA(inst+".slow", closeLine, 20),
			indicators.NewCrossOver(inst+".x", inst+".fast", inst+".slow"),
		} {
			if err := c.Register(k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *crossStrategy) OnBar(c *Context) error {
	for _, inst := range s.insts {
		x, ok := c.Value(inst + ".x")
		if !ok || !c.Fresh(inst) {
			continue
		}
		held := c.Position(inst).Quantity
		var err error
		switch {
		case x > 0 && held.IsZero():
			_, err = c.SubmitOrder(broker.MarketOrder(inst, market.Buy, d("10")))
		case x < 0 && held.IsPositive():
			_, err = c.SubmitOrder(broker.MarketOrder(inst, market.Sell, held))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func TestMarketBuyAtCloseWithFlatCommission(t *testing.T) {
	cfg := testConfig("XYZ")
	cfg.Broker.Commission = broker.FlatCommission{Amount: d("1")}
	cfg.Broker.MarketFill = broker.CurrentClose

	s := &funcStrategy{bar: func(c *Context) error {
		if c.Tick() == 1 {
			_, err := c.SubmitOrder(broker.MarketOrder("XYZ", market.Buy, d("100")))
			return err
		}
		return nil
	}}
	ex, err := NewExecutor(cfg, []*feed.Feed{dailyFeed(t, "XYZ", 50, 51, 52)}, s)
	require.NoError(t, err)
	assert.Equal(t, Initialized, ex.State())

	rep, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Complete)
	assert.Equal(t, Finished, ex.State())
	assert.Same(t, rep, ex.Report())

	require.Len(t, rep.Trades, 1)
	tr := rep.Trades[0]
	assert.True(t, d("50").Equal(tr.Price))
	assert.True(t, d("100").Equal(tr.Quantity))
	assert.True(t, d("1").Equal(tr.Commission))
	assert.Equal(t, day0, tr.Time)

	assert.True(t, d("94999").Equal(rep.Account.Cash), rep.Account.Cash.String())
	require.Len(t, rep.Account.Positions, 1)
	assert.True(t, d("100").Equal(rep.Account.Positions[0].Quantity))
	assert.True(t, d("50").Equal(rep.Account.Positions[0].AverageCost))
	assert.True(t, d("100199").Equal(rep.Account.Equity), rep.Account.Equity.String())
	assert.Len(t, rep.Equity, 3)
	assert.Equal(t, 3, rep.Ticks)

	require.Len(t, s.orders, 2)
	assert.Equal(t, broker.Submitted, s.orders[0].Status)
	assert.Equal(t, broker.Filled, s.orders[1].Status)
	assert.Len(t, s.trades, 1)

	_, err = ex.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunFinished)
}

func TestDeterministicRuns(t *testing.T) {
	run := func() *report.Report {
		feeds := []*feed.Feed{
			walkFeed(t, "AAA", 1, 3000, nil),
			walkFeed(t, "BBB", 2, 3000, func(i int) bool { return i%7 == 3 }),
		}
		cfg := testConfig("AAA", "BBB")
		cfg.Broker.Commission = broker.PerShareCommission{Rate: d("0.01"), Minimum: d("1")}
		cfg.Broker.Slippage = broker.Slippage{BaseBps: d("5"), Impact: d("0.1")}
		ex, err := NewExecutor(cfg, feeds, &crossStrategy{insts: []string{"AAA", "BBB"}}, WithLogger(logging.Discard()))
		require.NoError(t, err)
		rep, err := ex.Run(context.Background())
		require.NoError(t, err)
		return rep
	}
	a, b := run(), run()
	require.NotEmpty(t, a.Trades)

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Equal(t, a.RunID, b.RunID)

	ja, err := a.Marshal()
	require.NoError(t, err)
	jb, err := b.Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestCashConservation(t *testing.T) {
	feeds := []*feed.Feed{
		walkFeed(t, "AAA", 7, 5000, nil),
		walkFeed(t, "BBB", 8, 5000, func(i int) bool { return i%5 == 0 }),
	}
	cfg := testConfig("AAA", "BBB")
	cfg.Broker.Commission = broker.PercentCommission{Rate: d("0.001"), Minimum: d("0.5")}
	cfg.Broker.Slippage = broker.Slippage{BaseBps: d("2")}
	ex, err := NewExecutor(cfg, feeds, &crossStrategy{insts: []string{"AAA", "BBB"}}, WithLogger(logging.Discard()))
	require.NoError(t, err)
	rep, err := ex.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rep.Trades)

	cash := rep.Account.InitialCash
	for _, tr := range rep.Trades {
		cash = cash.Add(tr.CashDelta())
	}
	assert.True(t, cash.Equal(rep.Account.Cash), "%s != %s", cash, rep.Account.Cash)

	equity := rep.Account.Cash
	for _, p := range rep.Account.Positions {
		equity = equity.Add(p.Quantity.Mul(p.LastPrice))
	}
	assert.True(t, equity.Equal(rep.Account.Equity))
	assert.Equal(t, len(rep.Trades), rep.Stats.Fills)
}

func TestStaleInstruments(t *testing.T) {
	aaa := dailyFeed(t, "AAA", 10, 11, 12)
	bbb := feed.New("BBB")
	require.NoError(t, bbb.Push(bar("BBB", day0, 20, 20)))
	require.NoError(t, bbb.Push(bar("BBB", day0.AddDate(0, 0, 2), 22, 22)))

	var checked bool
	s := &funcStrategy{bar: func(c *Context) error {
		if c.Tick() != 2 {
			return nil
		}
		checked = true
		assert.True(t, c.Fresh("AAA"))
		assert.False(t, c.Fresh("BBB"))
		b, ok := c.Bar("BBB")
		require.True(t, ok)
		assert.Equal(t, day0, b.Time)
		v, ok := c.Line(market.LineName("BBB", market.Close))
		require.True(t, ok)
		assert.False(t, v.Fresh())
		px, ok := v.Current()
		assert.True(t, ok)
		assert.Equal(t, 20.0, px)
		return nil
	}}
	ex, err := NewExecutor(testConfig("AAA", "BBB"), []*feed.Feed{aaa, bbb}, s)
	require.NoError(t, err)
	_, err = ex.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, checked)
}

func TestOrdersOnlyFromOnBar(t *testing.T) {
	var initErr, finishErr error
	var finishCancel bool
	s := &funcStrategy{
		init: func(c *Context) error {
			_, initErr = c.SubmitOrder(broker.MarketOrder("XYZ", market.Buy, d("1")))
			return nil
		},
		bar: func(c *Context) error {
			return c.Register(indicators.NewSMA("late", market.LineName("XYZ", market.Close), 2))
		},
	}
	ex, err := NewExecutor(testConfig("XYZ"), []*feed.Feed{dailyFeed(t, "XYZ", 1, 2)}, s)
	require.NoError(t, err)
	assert.ErrorIs(t, initErr, ErrNotInCallback)

	_, err = ex.Run(context.Background())
	assert.ErrorIs(t, err, ErrNotInInit)

	s2 := &funcStrategy{finish: func(c *Context) {
		_, finishErr = c.SubmitOrder(broker.MarketOrder("XYZ", market.Buy, d("1")))
		finishCancel = c.CancelOrder(1)
	}}
	ex, err = NewExecutor(testConfig("XYZ"), []*feed.Feed{dailyFeed(t, "XYZ", 1, 2)}, s2)
	require.NoError(t, err)
	_, err = ex.Run(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, finishErr, ErrRunFinished)
	assert.False(t, finishCancel)
}

func TestRejectedSubmissionGetsID(t *testing.T) {
	var got broker.OrderID
	s := &funcStrategy{bar: func(c *Context) error {
		if c.Tick() == 1 {
			var err error
			got, err = c.SubmitOrder(broker.MarketOrder("NOPE", market.Buy, d("1")))
			return err
		}
		return nil
	}}
	ex, err := NewExecutor(testConfig("XYZ"), []*feed.Feed{dailyFeed(t, "XYZ", 1, 2)}, s)
	require.NoError(t, err)
	rep, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, got)
	require.Len(t, rep.Orders, 1)
	assert.Equal(t, broker.Rejected, rep.Orders[0].Status)
	assert.Equal(t, 1, rep.Levels[0].Rejected)
}

func TestRunErrors(t *testing.T) {
	closeLine := market.LineName("XYZ", market.Close)
	tests := []struct {
		name      string
		bar       func(*Context) error
		invariant bool
		cause     error
	}{
		{
			name: "panic",
			bar: func(c *Context) error {
				if c.Tick() == 3 {
					panic("index out of range")
				}
				return nil
			},
			invariant: true,
		},
		{
			name: "lookback underflow",
			bar: func(c *Context) error {
				if c.Tick() == 3 {
					_, err := c.At(closeLine, 5)
					return err
				}
				return nil
			},
			invariant: true,
			cause:     line.ErrLookbackUnderflow,
		},
		{
			name: "lookback underflow ignored",
			bar: func(c *Context) error {
				if c.Tick() == 3 {
					_, _ = c.At(closeLine, 50)
				}
				return nil
			},
			invariant: true,
			cause:     line.ErrLookbackUnderflow,
		},
		{
			name: "underflow through a line view",
			bar: func(c *Context) error {
				if c.Tick() == 3 {
					view, _ := c.Line(closeLine)
					_, _ = view.At(view.Len())
				}
				return nil
			},
			invariant: true,
			cause:     line.ErrLookbackUnderflow,
		},
		{
			name: "strategy error",
			bar: func(c *Context) error {
				if c.Tick() == 3 {
					return errors.New("boom")
				}
				return nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := NewExecutor(testConfig("XYZ"), []*feed.Feed{dailyFeed(t, "XYZ", 1, 2, 3, 4)}, &funcStrategy{bar: tt.bar}, WithLogger(logging.Discard()))
			require.NoError(t, err)
			rep, err := ex.Run(context.Background())
			assert.Nil(t, rep)

			var rerr *RunError
			require.True(t, errors.As(err, &rerr), "%v", err)
			assert.Equal(t, 3, rerr.Tick)
			assert.Equal(t, day0.AddDate(0, 0, 2), rerr.Time)
			assert.Equal(t, "strategy", rerr.Component)
			assert.Equal(t, tt.invariant, errors.Is(err, ErrInvariant))
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
			assert.Equal(t, Finished, ex.State())
		})
	}
}

func TestConstructionErrors(t *testing.T) {
	cyclic := &funcStrategy{init: func(c *Context) error {
		if err := c.Register(indicators.NewSMA("a", "b", 2)); err != nil {
			return err
		}
		return c.Register(indicators.NewSMA("b", "a", 2))
	}}
	_, err := NewExecutor(testConfig("XYZ"), []*feed.Feed{dailyFeed(t, "XYZ", 1)}, cyclic)
	var cyc *graph.CyclicDependencyError
	assert.True(t, errors.As(err, &cyc), "%v", err)

	_, err = NewExecutor(testConfig("XYZ"), []*feed.Feed{dailyFeed(t, "ZZZ", 1)}, &funcStrategy{})
	assert.ErrorIs(t, err, market.ErrUnknownInstrument)

	_, err = NewExecutor(testConfig("XYZ"), nil, &funcStrategy{})
	assert.ErrorIs(t, err, ErrNoFeeds)

	cfg := testConfig("XYZ")
	cfg.InitialCash = decimal.Zero
	_, err = NewExecutor(cfg, []*feed.Feed{dailyFeed(t, "XYZ", 1)}, &funcStrategy{})
	assert.Error(t, err)

	_, err = NewNestedExecutor(testConfig("XYZ"), []Level{{Feeds: []*feed.Feed{dailyFeed(t, "XYZ", 1)}}})
	assert.Error(t, err)

	peek := &funcStrategy{init: func(c *Context) error {
		_, _ = c.At(market.LineName("XYZ", market.Close), 1)
		return nil
	}}
	_, err = NewExecutor(testConfig("XYZ"), []*feed.Feed{dailyFeed(t, "XYZ", 1)}, peek)
	assert.ErrorIs(t, err, ErrInvariant)
	assert.ErrorIs(t, err, line.ErrLookbackUnderflow)
}

func TestCancellationReturnsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &funcStrategy{bar: func(c *Context) error {
		if c.Tick() == 10 {
			cancel()
		}
		return nil
	}}
	ex, err := NewExecutor(testConfig("AAA"), []*feed.Feed{walkFeed(t, "AAA", 3, 50, nil)}, s, WithLogger(logging.Discard()))
	require.NoError(t, err)
	rep, err := ex.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.False(t, rep.Complete)
	assert.Equal(t, 10, rep.Ticks)
	assert.Len(t, rep.Equity, 10)
	assert.Equal(t, Finished, ex.State())
}

func TestTimeout(t *testing.T) {
	cfg := testConfig("AAA")
	cfg.Timeout = 5 * time.Millisecond
	s := &funcStrategy{bar: func(c *Context) error {
		if c.Tick() == 1 {
			time.Sleep(50 * time.Millisecond)
		}
		return nil
	}}
	ex, err := NewExecutor(cfg, []*feed.Feed{walkFeed(t, "AAA", 3, 50, nil)}, s, WithLogger(logging.Discard()))
	require.NoError(t, err)
	rep, err := ex.Run(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, rep)
	assert.False(t, rep.Complete)
	assert.Equal(t, 1, rep.Ticks)
}

// recorder logs the events it sees with a prefix.
type recorder struct {
	prefix string
	log    *[]string
}

func (r recorder) OnOrderUpdate(o broker.Order) {
	*r.log = append(*r.log, fmt.Sprintf("%s order %d %s", r.prefix, o.ID, o.Status))
}

func (r recorder) OnFill(f Fill) {
	*r.log = append(*r.log, fmt.Sprintf("%s fill %d %s", r.prefix, f.Trade.OrderID, f.Trade.Quantity))
}

func (r recorder) OnTick(t Tick) {
	*r.log = append(*r.log, fmt.Sprintf("%s tick %d", r.prefix, t.Index))
}

func TestHandlerOrdering(t *testing.T) {
	var events []string
	s := &funcStrategy{bar: func(c *Context) error {
		if c.Tick() == 1 {
			_, err := c.SubmitOrder(broker.MarketOrder("XYZ", market.Buy, d("5")))
			return err
		}
		return nil
	}}
	ex, err := NewExecutor(testConfig("XYZ"), []*feed.Feed{dailyFeed(t, "XYZ", 10, 11)}, s,
		WithHandlers(recorder{"a", &events}, recorder{"b", &events}))
	require.NoError(t, err)
	_, err = ex.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"a order 1 submitted",
		"b order 1 submitted",
		"a tick 1",
		"b tick 1",
		"a order 1 filled",
		"b order 1 filled",
		"a fill 1 5",
		"b fill 1 5",
		"a tick 2",
		"b tick 2",
	}, events)
	require.Len(t, s.orders, 2)
	require.Len(t, s.trades, 1)
	assert.True(t, d("11").Equal(s.trades[0].Price))
}

func TestReplay(t *testing.T) {
	build := func(seed int64) Runner {
		cfg := testConfig("AAA")
		cfg.Broker.Commission = broker.FlatCommission{Amount: d("1")}
		ex, err := NewExecutor(cfg, []*feed.Feed{walkFeed(t, "AAA", seed, 800, nil)}, &crossStrategy{insts: []string{"AAA"}}, WithLogger(logging.Discard()))
		require.NoError(t, err)
		return ex
	}
	original, err := build(11).Run(context.Background())
	require.NoError(t, err)

	b, err := original.Marshal()
	require.NoError(t, err)
	recorded, err := report.Decode(b)
	require.NoError(t, err)

	again, err := Replay(context.Background(), recorded, build(11))
	require.NoError(t, err)
	assert.Equal(t, original.RunID, again.RunID)

	_, err = Replay(context.Background(), recorded, build(12))
	assert.ErrorIs(t, err, ErrReplayMismatch)

	recorded.Complete = false
	ex := build(11).(*Executor)
	_, err = Replay(context.Background(), recorded, ex)
	assert.ErrorIs(t, err, ErrIncompleteRun)
	assert.Equal(t, Initialized, ex.State())
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "STRATEGY_CALLBACK", StrategyCallback.String())
	assert.Equal(t, "FINISHED", Finished.String())
	assert.Equal(t, "State(42)", State(42).String())
}
