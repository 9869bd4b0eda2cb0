package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/barsim/feed"
	"github.com/rustyeddy/barsim/report"
)

type SQLite struct {
	db *sql.DB
}

var _ Archive = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// tsLayout has a fixed width so text order is time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// RecordTrade stores a fill. Recording the same run again overwrites
// its rows.
func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(run_id, trade_id, order_id, time, instrument, side, quantity, price, commission, slippage, realized, level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, int64(t.TradeID), int64(t.OrderID), ts(t.Time), t.Instrument, t.Side,
		t.Quantity, t.Price, t.Commission, t.Slippage, t.Realized, t.Level,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO equity
		(run_id, time, cash, equity)
		VALUES (?, ?, ?, ?)`,
		e.RunID, ts(e.Time), e.Cash, e.Equity,
	)
	return err
}

func (j *SQLite) RecordRun(r RunRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO runs
		(run_id, strategy, config_digest, input_digest, complete, start_time, end_time,
		 ticks, trades, round_trips, wins, losses, initial_cash, final_equity, net_pnl,
		 total_return, max_drawdown, sharpe, win_rate, profit_factor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Strategy, r.ConfigDigest, r.InputDigest, r.Complete, ts(r.Start), ts(r.End),
		r.Ticks, r.Trades, r.RoundTrips, r.Wins, r.Losses, r.InitialCash, r.FinalEquity, r.NetPnL,
		r.TotalReturn, r.MaxDrawdown, r.Sharpe, r.WinRate, r.ProfitFactor,
	)
	return err
}

// SaveReport stores the report body as written by report.Marshal.
func (j *SQLite) SaveReport(r *report.Report) error {
	body, err := r.Marshal()
	if err != nil {
		return err
	}
	_, err = j.db.Exec(`INSERT OR REPLACE INTO reports (run_id, version, body) VALUES (?, ?, ?)`,
		r.RunID, r.Version, body)
	return err
}

// SaveInputs stores the configuration and every bar a run read, level by
// level, so the run can be replayed without the original files. Anything
// recorded earlier under the same run ID is dropped.
func (j *SQLite) SaveInputs(ctx context.Context, runID string, config []byte, levels [][]*feed.Feed) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := resetRun(ctx, tx, runID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bars WHERE run_id = ?`, runID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO inputs (run_id, config) VALUES (?, ?)`, runID, config); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (run_id, level, instrument, time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for level, feeds := range levels {
		for _, f := range feeds {
			for _, b := range f.Bars() {
				if _, err := stmt.ExecContext(ctx, runID, level, b.Instrument, ts(b.Time),
					b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
					return fmt.Errorf("save bar %s %s: %w", b.Instrument, ts(b.Time), err)
				}
			}
		}
	}
	return tx.Commit()
}

// ResetRun deletes the trades, equity, summary and report recorded for a
// run ID. Run IDs repeat for the same configuration and data, so a rerun
// starts from an empty record.
func (j *SQLite) ResetRun(ctx context.Context, runID string) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := resetRun(ctx, tx, runID); err != nil {
		return err
	}
	return tx.Commit()
}

func resetRun(ctx context.Context, tx *sql.Tx, runID string) error {
	for _, table := range []string{"trades", "equity", "runs", "reports"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
