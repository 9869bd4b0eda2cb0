package report

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/ledger"
	"github.com/rustyeddy/barsim/market"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMaxDrawdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		curve []float64
		want  float64
	}{
		{"empty", nil, 0},
		{"rising", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 80, 120}, 0.2},
		{"deeper later", []float64{100, 90, 200, 150, 210}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.curve), 1e-12)
		})
	}
}

func TestSharpe(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Sharpe([]float64{0.01, 0.01, 0.01}, 252), "no variance")
	assert.Equal(t, 0.0, Sharpe([]float64{0.01}, 252))

	r := []float64{0.01, -0.01, 0.02, 0}
	m := 0.005
	var ss float64
	for _, x := range r {
		ss += (x - m) * (x - m)
	}
	want := m / math.Sqrt(ss/3) * math.Sqrt(252)
	assert.InDelta(t, want, Sharpe(r, 252), 1e-12)

	assert.InDeltaSlice(t, []float64{0.1, -0.5}, Returns([]float64{100, 110, 55}), 1e-12)
}

func TestCollector(t *testing.T) {
	t.Parallel()

	c := NewCollector("daily", "minute")
	at := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)

	c.Order(broker.Order{ID: 1, Level: 0, Status: broker.Submitted})
	c.Order(broker.Order{ID: 1, Level: 0, Status: broker.Filled})
	c.Order(broker.Order{ID: 2, Level: 1, Status: broker.Rejected})

	buy := broker.Trade{ID: 1, Level: 0, Side: market.Buy, Quantity: d("10"), Price: d("100"), Commission: d("1")}
	sell := broker.Trade{ID: 2, Level: 1, Side: market.Sell, Quantity: d("10"), Price: d("110"), Commission: d("1")}
	c.Fill(buy, decimal.Zero, false)
	c.Fill(sell, d("100"), true)

	c.Tick(0, at, d("1000"), d("1000"))
	c.Tick(1, at, d("1000"), d("1000"))
	c.Tick(0, at.Add(24*time.Hour), d("1098"), d("1098"))

	lv := c.Levels()
	require.Len(t, lv, 2)
	assert.Equal(t, 1, lv[0].Orders)
	assert.Equal(t, 1, lv[0].Filled)
	assert.Equal(t, 1, lv[1].Rejected)
	assert.Equal(t, 2, lv[0].Ticks)
	assert.Equal(t, 1, lv[1].Ticks)
	assert.Equal(t, 1, lv[1].RoundTrips)
	assert.True(t, d("1100").Equal(lv[1].Notional))
	assert.Len(t, c.Equity(), 2, "only outer ticks extend the curve")

	s := c.Stats(d("1000"), d("1098"))
	assert.InDelta(t, 0.098, s.TotalReturn, 1e-12)
	assert.Equal(t, 2, s.Fills)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1.0, s.WinRate)
	assert.Equal(t, 0.0, s.ProfitFactor, "no losses")
	assert.InDelta(t, 2100/1049.0, s.Turnover, 1e-12)
	assert.True(t, d("98").Equal(s.NetPnL))
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	r := &Report{
		Version:  Version,
		RunID:    "01HZX",
		Complete: true,
		Start:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Account:  ledger.Account{InitialCash: d("100000"), Cash: d("94999")},
		Trades:   []broker.Trade{{ID: 1, Side: market.Buy, Price: d("50"), Quantity: d("100"), Commission: d("1")}},
	}
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, r.WriteFile(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.True(t, d("94999").Equal(got.Account.Cash))
	assert.Equal(t, market.Buy, got.Trades[0].Side)

	f1, err := r.Fingerprint()
	require.NoError(t, err)
	f2, err := got.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, f1, f2)

	_, err = Decode([]byte(`{"version": 2}`))
	assert.ErrorIs(t, err, ErrVersion)
}

func TestPrint(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Print(&buf, &Report{RunID: "run-1", Levels: []LevelStats{{Name: "daily"}, {Name: "minute"}}})
	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "INCOMPLETE")
	assert.Contains(t, out, "minute")
}
