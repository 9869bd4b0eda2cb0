package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rustyeddy/barsim/feed"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/report"
)

const runColumns = `run_id, strategy, config_digest, input_digest, complete, start_time, end_time,
	ticks, trades, round_trips, wins, losses, initial_cash, final_equity, net_pnl,
	total_return, max_drawdown, sharpe, win_rate, profit_factor`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var rec RunRecord
	var start, end string
	err := s.Scan(
		&rec.RunID, &rec.Strategy, &rec.ConfigDigest, &rec.InputDigest, &rec.Complete, &start, &end,
		&rec.Ticks, &rec.Trades, &rec.RoundTrips, &rec.Wins, &rec.Losses,
		&rec.InitialCash, &rec.FinalEquity, &rec.NetPnL,
		&rec.TotalReturn, &rec.MaxDrawdown, &rec.Sharpe, &rec.WinRate, &rec.ProfitFactor,
	)
	if err != nil {
		return rec, err
	}
	if rec.Start, err = parseTS(start); err != nil {
		return rec, err
	}
	rec.End, err = parseTS(end)
	return rec, err
}

// GetRun returns the summary of a run.
func (j *SQLite) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	return rec, err
}

// ListRuns returns every run, newest data first.
func (j *SQLite) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY run_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListTrades returns the trades of a run in execution order.
func (j *SQLite) ListTrades(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, trade_id, order_id, time, instrument, side, quantity, price, commission, slippage, realized, level
		FROM trades
		WHERE run_id = ?
		ORDER BY trade_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var tradeID, orderID int64
		var at string
		if err := rows.Scan(
			&rec.RunID,
			&tradeID,
			&orderID,
			&at,
			&rec.Instrument,
			&rec.Side,
			&rec.Quantity,
			&rec.Price,
			&rec.Commission,
			&rec.Slippage,
			&rec.Realized,
			&rec.Level,
		); err != nil {
			return nil, err
		}
		rec.TradeID, rec.OrderID = uint64(tradeID), uint64(orderID)
		if rec.Time, err = parseTS(at); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquity returns the equity curve of a run.
func (j *SQLite) ListEquity(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, time, cash, equity
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		var at string
		if err := rows.Scan(&e.RunID, &at, &e.Cash, &e.Equity); err != nil {
			return nil, err
		}
		if e.Time, err = parseTS(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SQLite) LoadReport(ctx context.Context, runID string) (*report.Report, error) {
	var body []byte
	err := j.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %q: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return report.Decode(body)
}

// LoadInputs returns what SaveInputs stored: the configuration and the
// feeds of every level.
func (j *SQLite) LoadInputs(ctx context.Context, runID string) ([]byte, [][]*feed.Feed, error) {
	var config []byte
	err := j.db.QueryRowContext(ctx, `SELECT config FROM inputs WHERE run_id = ?`, runID).Scan(&config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("inputs of %q: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT level, instrument, time, open, high, low, close, volume
		FROM bars
		WHERE run_id = ?
		ORDER BY level, instrument, time`, runID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var levels [][]*feed.Feed
	var cur *feed.Feed
	curLevel := -1
	for rows.Next() {
		var level int
		var at string
		var b market.Bar
		if err := rows.Scan(&level, &b.Instrument, &at, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, nil, err
		}
		if b.Time, err = parseTS(at); err != nil {
			return nil, nil, err
		}
		for len(levels) <= level {
			levels = append(levels, nil)
		}
		if cur == nil || level != curLevel || b.Instrument != cur.Instrument() {
			cur, curLevel = feed.New(b.Instrument), level
			levels[level] = append(levels[level], cur)
		}
		if err := cur.Push(b); err != nil {
			return nil, nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return config, levels, nil
}
