package journal

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournal(t *testing.T) {
	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	require.NoError(t, j.RecordTrade(sampleTrade("r1", 1, t0)))
	require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "r1", Time: t0, Cash: d("48762.5"), Equity: d("100000")}))

	// rows are flushed as they are written
	trades := readCSV(t, tradesPath)
	require.Len(t, trades, 2)
	require.NoError(t, j.Close())

	assert.Equal(t, tradeHeader, trades[0])
	assert.Equal(t, []string{
		"r1", "1", "11", "2024-03-04T16:00:00Z", "SPY", "BUY",
		"100", "512.37", "1", "0.05", "-12.5", "0",
	}, trades[1])

	equity := readCSV(t, equityPath)
	require.Len(t, equity, 2)
	assert.Equal(t, equityHeader, equity[0])
	assert.Equal(t, []string{"r1", "2024-03-04T16:00:00Z", "48762.5", "100000"}, equity[1])
}

func TestNewCSVBadPath(t *testing.T) {
	dir := t.TempDir()
	_, err := NewCSV(filepath.Join(dir, "missing", "trades.csv"), filepath.Join(dir, "equity.csv"))
	assert.Error(t, err)

	_, err = NewCSV(filepath.Join(dir, "trades.csv"), filepath.Join(dir, "missing", "equity.csv"))
	assert.Error(t, err)
}

func TestWriteTradesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, []TradeRecord{
		sampleTrade("r1", 1, t0),
		sampleTrade("r1", 2, t0),
	}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "trade_id", rows[0][1])
	assert.Equal(t, "2", rows[2][1])
}
