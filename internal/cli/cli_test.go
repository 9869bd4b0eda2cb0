package cli

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/feed"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/report"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// workspace writes a default config next to data/spy.csv, which is
// where the default config looks for it.
func workspace(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "barsim.yaml")
	out, err := execute(t, "config", "init", "-o", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration")

	require.NoError(t, os.Mkdir(filepath.Join(dir, "data"), 0o755))
	rng := rand.New(rand.NewSource(3))
	px := 100.0
	start := time.Date(2023, 1, 3, 21, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, 200)
	for i := range bars {
		open := px
		px = max(10, float64(int((px+rng.NormFloat64()*2)*100))/100)
		bars[i] = market.Bar{
			Instrument: "SPY",
			Time:       start.AddDate(0, 0, i),
			Open:       decimal.NewFromFloat(open),
			High:       decimal.NewFromFloat(max(open, px) + 0.4),
			Low:        decimal.NewFromFloat(min(open, px) - 0.4),
			Close:      decimal.NewFromFloat(px),
			Volume:     decimal.NewFromInt(1_000_000),
		}
	}
	f, err := os.Create(filepath.Join(dir, "data", "spy.csv"))
	require.NoError(t, err)
	require.NoError(t, feed.WriteCSV(f, bars))
	require.NoError(t, f.Close())
	return dir, cfgPath
}

func TestConfigValidate(t *testing.T) {
	_, cfgPath := workspace(t)
	out, err := execute(t, "config", "validate", "-f", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "strategy sma-cross")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("account: {currency: USD}\n"), 0o644))
	_, err = execute(t, "config", "validate", "-f", bad)
	assert.ErrorContains(t, err, "validation failed")
}

func TestRunJournalReplay(t *testing.T) {
	dir, cfgPath := workspace(t)
	db := filepath.Join(dir, "runs.sqlite")
	reportPath := filepath.Join(dir, "report.json")
	orgPath := filepath.Join(dir, "run.org")

	out, err := execute(t, "run", "-f", cfgPath, "--db", db, "--report", reportPath, "--org", orgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Backtest Result")
	assert.Contains(t, out, "Results saved to: "+db)

	rep, err := report.ReadFile(reportPath)
	require.NoError(t, err)
	assert.True(t, rep.Complete)
	assert.Contains(t, out, rep.RunID)

	org, err := os.ReadFile(orgPath)
	require.NoError(t, err)
	assert.Contains(t, string(org), ":RUN_ID:      "+rep.RunID)

	out, err = execute(t, "journal", "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, rep.RunID)
	assert.Contains(t, out, "sma-cross")

	out, err = execute(t, "journal", "show", rep.RunID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "* BACKTEST: sma-cross")
	assert.Contains(t, out, "| slow | 30 |")

	out, err = execute(t, "journal", "trades", rep.RunID, "--db", db)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), len(rep.Trades)+1)

	out, err = execute(t, "journal", "equity", rep.RunID, "--db", db)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), len(rep.Equity)+1)

	out, err = execute(t, "replay", rep.RunID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "reproduced")

	_, err = execute(t, "replay", "nope", "--db", db)
	assert.Error(t, err)
}

func TestSweepCommand(t *testing.T) {
	dir, cfgPath := workspace(t)
	db := filepath.Join(dir, "sweep.sqlite")

	out, err := execute(t, "sweep", "-f", cfgPath, "-p", "fast=5,10", "-p", "slow=30", "-w", "2", "--archive", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "fast=5 slow=30")
	assert.Contains(t, out, "fast=10 slow=30")
	assert.Contains(t, out, "Runs archived to: "+db)

	out, err = execute(t, "journal", "runs", "--db", db)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	_, err = execute(t, "sweep", "-f", cfgPath, "-p", "fast")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "barsim version "+version)
}
