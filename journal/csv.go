package journal

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader  = []string{"run_id", "trade_id", "order_id", "time", "instrument", "side", "quantity", "price", "commission", "slippage", "realized", "level"}
	equityHeader = []string{"run_id", "time", "cash", "equity"}
)

type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

var _ Journal = (*CSVJournal)(nil)

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	j := &CSVJournal{csv.NewWriter(tf), csv.NewWriter(ef), tf, ef}
	if err := j.trades.Write(tradeHeader); err != nil {
		return nil, j.abort(err)
	}
	if err := j.equity.Write(equityHeader); err != nil {
		return nil, j.abort(err)
	}
	return j, nil
}

func (j *CSVJournal) abort(err error) error {
	_ = j.tf.Close()
	_ = j.ef.Close()
	return err
}

func tradeRow(t TradeRecord) []string {
	return []string{
		t.RunID,
		strconv.FormatUint(t.TradeID, 10),
		strconv.FormatUint(t.OrderID, 10),
		t.Time.UTC().Format(time.RFC3339Nano),
		t.Instrument,
		t.Side,
		t.Quantity.String(),
		t.Price.String(),
		t.Commission.String(),
		t.Slippage.String(),
		t.Realized.String(),
		strconv.Itoa(t.Level),
	}
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	if err := j.trades.Write(tradeRow(t)); err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.RunID,
		e.Time.UTC().Format(time.RFC3339Nano),
		e.Cash.String(),
		e.Equity.String(),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return j.abort(err)
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return j.abort(err)
	}

	if err := j.tf.Close(); err != nil {
		_ = j.ef.Close()
		return err
	}
	return j.ef.Close()
}

// WriteTradesCSV exports trades with the same columns the CSV journal
// writes.
func WriteTradesCSV(w io.Writer, trades []TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write(tradeRow(t)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
