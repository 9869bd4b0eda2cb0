// Package market holds the value types shared by every layer of the
// simulator: bars, sides and the instrument universe.
package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents one OHLCV period of an instrument. Time is the close time
// of the period, the instant its values became known.
type Bar struct {
	Instrument string
	Time       time.Time
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
}

// Validate checks the internal consistency of a bar.
func (b Bar) Validate() error {
	if b.Instrument == "" {
		return fmt.Errorf("bar: instrument is required")
	}
	if b.Time.IsZero() {
		return fmt.Errorf("bar %s: time is required", b.Instrument)
	}
	if b.High.LessThan(b.Low) {
		return fmt.Errorf("bar %s@%s: high %s below low %s", b.Instrument, b.Time.Format(time.RFC3339), b.High, b.Low)
	}
	for _, p := range []decimal.Decimal{b.Open, b.Close} {
		if p.GreaterThan(b.High) || p.LessThan(b.Low) {
			return fmt.Errorf("bar %s@%s: open/close outside high/low range", b.Instrument, b.Time.Format(time.RFC3339))
		}
	}
	if b.Low.IsNegative() || b.Volume.IsNegative() {
		return fmt.Errorf("bar %s@%s: negative price or volume", b.Instrument, b.Time.Format(time.RFC3339))
	}
	return nil
}

// Field selects one price series of a bar.
type Field int

const (
	Open Field = iota
	High
	Low
	Close
	Volume
)

var fieldNames = [...]string{"open", "high", "low", "close", "volume"}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// Fields lists every bar field in declaration order.
func Fields() []Field {
	return []Field{Open, High, Low, Close, Volume}
}

// Get returns the selected field.
func (b Bar) Get(f Field) decimal.Decimal {
	switch f {
	case Open:
		return b.Open
	case High:
		return b.High
	case Low:
		return b.Low
	case Volume:
		return b.Volume
	default:
		return b.Close
	}
}

// LineName is the graph name of a raw bar field line, e.g. "AAPL.close".
func LineName(instrument string, f Field) string {
	return instrument + "." + f.String()
}
