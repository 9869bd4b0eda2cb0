package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/feed"
	"github.com/rustyeddy/barsim/market"
)

var t0 = time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleTrade(runID string, id uint64, at time.Time) TradeRecord {
	return TradeRecord{
		RunID:      runID,
		TradeID:    id,
		OrderID:    id + 10,
		Time:       at,
		Instrument: "SPY",
		Side:       "BUY",
		Quantity:   d("100"),
		Price:      d("512.37"),
		Commission: d("1"),
		Slippage:   d("0.05"),
		Realized:   d("-12.5"),
		Level:      0,
	}
}

func sampleFeed(t *testing.T, inst string, start time.Time, step time.Duration, closes ...string) *feed.Feed {
	t.Helper()
	f := feed.New(inst)
	for i, c := range closes {
		px := d(c)
		require.NoError(t, f.Push(market.Bar{
			Instrument: inst,
			Time:       start.Add(time.Duration(i) * step),
			Open:       px,
			High:       px.Add(d("1")),
			Low:        px.Sub(d("1")),
			Close:      px,
			Volume:     d("5000"),
		}))
	}
	return f
}
