package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/market"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var at = time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC)

func trade(id int, side market.Side, qty, price, commission string) broker.Trade {
	return broker.Trade{
		ID: broker.TradeID(id), OrderID: broker.OrderID(id), Instrument: "XYZ", Side: side,
		Quantity: d(qty), Price: d(price), Commission: d(commission), Time: at,
	}
}

func apply(t *testing.T, l *Ledger, tr broker.Trade) decimal.Decimal {
	t.Helper()
	realized, err := l.Apply(tr)
	require.NoError(t, err)
	return realized
}

type closes map[string]string

func (c closes) Bar(inst string) (market.Bar, bool) {
	s, ok := c[inst]
	if !ok {
		return market.Bar{}, false
	}
	return market.Bar{Instrument: inst, Close: d(s)}, true
}

func TestMarketBuyScenario(t *testing.T) {
	t.Parallel()

	l := New(d("100000"), false)
	apply(t, l, trade(1, market.Buy, "100", "50.00", "1.00"))

	assert.True(t, d("94999").Equal(l.Cash()), l.Cash().String())
	p := l.Position("XYZ")
	assert.True(t, d("100").Equal(p.Quantity))
	assert.True(t, d("50").Equal(p.AverageCost))
	require.NoError(t, l.Check())
}

func TestWeightedAverageAndRealized(t *testing.T) {
	t.Parallel()

	l := New(d("100000"), false)
	apply(t, l, trade(1, market.Buy, "100", "50", "0"))
	apply(t, l, trade(2, market.Buy, "100", "60", "0"))
	p := l.Position("XYZ")
	assert.True(t, d("55").Equal(p.AverageCost))

	realized := apply(t, l, trade(3, market.Sell, "50", "70", "0"))
	assert.True(t, d("750").Equal(realized))
	p = l.Position("XYZ")
	assert.True(t, d("150").Equal(p.Quantity))
	assert.True(t, d("55").Equal(p.AverageCost), "reducing keeps the average")
	assert.True(t, d("750").Equal(p.RealizedPnL))

	apply(t, l, trade(4, market.Sell, "150", "40", "0"))
	assert.True(t, l.Quantity("XYZ").IsZero())
	assert.Empty(t, l.Snapshot().Positions, "flat positions are removed")
	assert.True(t, d("-1500").Equal(l.Snapshot().RealizedPnL))
	assert.True(t, d("98500").Equal(l.Cash()))
}

func TestFlipThroughZeroWithMargin(t *testing.T) {
	t.Parallel()

	l := New(d("10000"), true)
	apply(t, l, trade(1, market.Buy, "10", "100", "0"))
	apply(t, l, trade(2, market.Sell, "30", "110", "0"))

	p := l.Position("XYZ")
	assert.True(t, d("-20").Equal(p.Quantity))
	assert.True(t, d("110").Equal(p.AverageCost))
	assert.True(t, d("100").Equal(l.Snapshot().RealizedPnL))

	eq := l.Mark(closes{"XYZ": "100"})
	p = l.Position("XYZ")
	assert.True(t, d("200").Equal(p.UnrealizedPnL), "short gains when price falls")
	// cash 10000 - 1000 + 3300 = 12300, minus 20 * 100
	assert.True(t, d("10300").Equal(eq), eq.String())
}

func TestInvariantViolationsLeaveStateUntouched(t *testing.T) {
	t.Parallel()

	l := New(d("1000"), false)
	_, err := l.Apply(trade(1, market.Buy, "100", "50", "0"))
	assert.ErrorIs(t, err, ErrInvariant)
	assert.True(t, d("1000").Equal(l.Cash()))
	assert.True(t, l.Quantity("XYZ").IsZero())

	_, err = l.Apply(trade(2, market.Sell, "1", "50", "0"))
	assert.ErrorIs(t, err, ErrInvariant)
	assert.True(t, d("1000").Equal(l.Cash()))

	_, err = l.Apply(trade(3, market.Buy, "0", "50", "0"))
	assert.ErrorIs(t, err, ErrInvariant)
	require.NoError(t, l.Check())
}

func TestMarkToMarket(t *testing.T) {
	t.Parallel()

	l := New(d("10000"), false)
	apply(t, l, trade(1, market.Buy, "10", "100", "2"))

	assert.True(t, d("10000").Equal(l.Equity()), "equity unchanged until marked")
	eq := l.Mark(closes{"XYZ": "105"})
	assert.True(t, d("10048").Equal(eq), eq.String())
	assert.True(t, d("50").Equal(l.Position("XYZ").UnrealizedPnL))

	// Missing quotes keep the last price.
	eq = l.Mark(closes{})
	assert.True(t, d("10048").Equal(eq))

	snap := l.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.True(t, d("2").Equal(snap.Commissions))
	assert.True(t, d("10048").Equal(snap.Equity))
}

// Cash equals initial cash plus the sum of trade cash deltas, exactly,
// over thousands of trades.
func TestCashConservation(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	initial := d("1000000")
	l := New(initial, true)
	sum := decimal.Zero

	for i := 1; i <= 5000; i++ {
		side := market.Buy
		if rng.Intn(2) == 0 {
			side = market.Sell
		}
		tr := broker.Trade{
			ID:         broker.TradeID(i),
			Instrument: []string{"A", "B", "C"}[rng.Intn(3)],
			Side:       side,
			Quantity:   decimal.NewFromInt(int64(1 + rng.Intn(500))),
			Price:      decimal.New(int64(1000+rng.Intn(99000)), -3),
			Commission: decimal.New(int64(rng.Intn(500)), -2),
		}
		before := l.Cash()
		apply(t, l, tr)
		want := before.Sub(tr.Price.Mul(tr.Quantity).Mul(side.Sign())).Sub(tr.Commission)
		require.True(t, want.Equal(l.Cash()), "trade %d", i)
		sum = sum.Add(tr.CashDelta())
	}
	assert.True(t, initial.Add(sum).Equal(l.Cash()))
	require.NoError(t, l.Check())
}

func TestCheckDetectsDrift(t *testing.T) {
	t.Parallel()

	build := func() *Ledger {
		l := New(d("10000"), true)
		apply(t, l, trade(1, market.Buy, "100", "50", "1"))
		apply(t, l, trade(2, market.Sell, "150", "52", "1"))
		apply(t, l, trade(3, market.Buy, "50", "51", "1"))
		require.NoError(t, l.Check())
		return l
	}

	l := build()
	l.cash = l.cash.Add(d("0.01"))
	assert.ErrorIs(t, l.Check(), ErrInvariant)

	l = build()
	l.positions["XYZ"] = &Position{Instrument: "XYZ", Quantity: d("5"), AverageCost: d("51")}
	assert.ErrorIs(t, l.Check(), ErrInvariant)

	l = build()
	l.positions["ABC"] = &Position{Instrument: "ABC", Quantity: d("1"), AverageCost: d("1")}
	assert.ErrorIs(t, l.Check(), ErrInvariant)
}
