package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/feed"
	"github.com/rustyeddy/barsim/market"
)

type stamp struct {
	level int
	at    time.Time
}

func TestNestedExecution(t *testing.T) {
	const days = 5
	daily := feed.New("XYZ")
	hourly := feed.New("XYZ")
	for i := 0; i < days; i++ {
		at := day0.AddDate(0, 0, i)
		require.NoError(t, daily.Push(bar("XYZ", at, 100, 100)))
		for h := 6; h >= 0; h-- {
			px := 100 + float64(6-h)
			require.NoError(t, hourly.Push(bar("XYZ", at.Add(-time.Duration(h)*time.Hour), px, px)))
		}
	}

	var seen []stamp
	outer := &funcStrategy{bar: func(c *Context) error {
		seen = append(seen, stamp{0, c.Time()})
		assert.Equal(t, 0, c.Level())
		b, ok := c.Bar("XYZ")
		require.True(t, ok)
		assert.Equal(t, c.Time(), b.Time)
		if c.Tick() == 1 {
			_, err := c.SubmitOrder(broker.MarketOrder("XYZ", market.Buy, d("10")))
			return err
		}
		return nil
	}}
	inner := &funcStrategy{bar: func(c *Context) error {
		seen = append(seen, stamp{1, c.Time()})
		if c.Tick() == 10 {
			_, err := c.SubmitOrder(broker.MarketOrder("XYZ", market.Sell, d("5")))
			return err
		}
		return nil
	}}

	ex, err := NewNestedExecutor(testConfig("XYZ"), []Level{
		{Name: "daily", Feeds: []*feed.Feed{daily}, Strategy: outer},
		{Name: "hourly", Feeds: []*feed.Feed{hourly}, Strategy: inner},
	})
	require.NoError(t, err)
	rep, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Finished, ex.State())

	require.Len(t, seen, days*8)
	for i, s := range seen {
		if s.level != 0 {
			continue
		}
		for _, before := range seen[:i] {
			if before.level == 1 {
				assert.False(t, before.at.After(s.at), "fine bar %s seen before coarse %s", before.at, s.at)
			}
		}
		for _, after := range seen[i+1:] {
			if after.level == 1 {
				assert.True(t, after.at.After(s.at), "fine bar %s seen after coarse %s", after.at, s.at)
			}
		}
	}

	require.Len(t, rep.Trades, 2)
	buy, sell := rep.Trades[0], rep.Trades[1]
	assert.Equal(t, 0, buy.Level)
	assert.Equal(t, day0.AddDate(0, 0, 1).Add(-6*time.Hour), buy.Time)
	assert.True(t, d("100").Equal(buy.Price))
	assert.Equal(t, 1, sell.Level)
	assert.True(t, d("103").Equal(sell.Price), sell.Price.String())

	require.Len(t, rep.Levels, 2)
	assert.Equal(t, "daily", rep.Levels[0].Name)
	assert.Equal(t, days, rep.Levels[0].Ticks)
	assert.Equal(t, days*7, rep.Levels[1].Ticks)
	assert.Equal(t, 1, rep.Levels[0].Orders)
	assert.Equal(t, 1, rep.Levels[0].Fills)
	assert.Equal(t, 0, rep.Levels[0].RoundTrips)
	assert.Equal(t, 1, rep.Levels[1].Orders)
	assert.Equal(t, 1, rep.Levels[1].RoundTrips)
	assert.Len(t, rep.Equity, days)
	assert.Equal(t, days, rep.Ticks)

	require.Len(t, rep.Account.Positions, 1)
	assert.True(t, d("5").Equal(rep.Account.Positions[0].Quantity))
}
