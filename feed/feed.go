// Package feed holds per-instrument bar streams and merges them into the
// single clock that drives a run.
package feed

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/barsim/market"
)

var (
	ErrInstrumentMismatch = errors.New("bar instrument does not match feed")
	ErrDuplicateFeed      = errors.New("duplicate feed")
)

// OutOfOrderDataError reports a bar that does not advance its feed's time.
type OutOfOrderDataError struct {
	Instrument string
	Last       time.Time
	Got        time.Time
}

func (e *OutOfOrderDataError) Error() string {
	if e.Got.Equal(e.Last) {
		return fmt.Sprintf("feed %s: duplicate bar at %s", e.Instrument, e.Got.Format(time.RFC3339Nano))
	}
	return fmt.Sprintf("feed %s: bar at %s is before %s", e.Instrument,
		e.Got.Format(time.RFC3339Nano), e.Last.Format(time.RFC3339Nano))
}

// Feed is the bar history of one instrument, strictly increasing in time.
type Feed struct {
	instrument string
	bars       []market.Bar
}

func New(instrument string) *Feed {
	return &Feed{instrument: instrument}
}

func (f *Feed) Instrument() string { return f.instrument }

func (f *Feed) Len() int { return len(f.bars) }

// Push appends a bar. Bars must be valid, belong to the feed's instrument
// and be strictly later than the previous one.
func (f *Feed) Push(b market.Bar) error {
	if b.Instrument != f.instrument {
		return fmt.Errorf("%w: %q pushed to %q", ErrInstrumentMismatch, b.Instrument, f.instrument)
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if n := len(f.bars); n > 0 && !b.Time.After(f.bars[n-1].Time) {
		return &OutOfOrderDataError{Instrument: f.instrument, Last: f.bars[n-1].Time, Got: b.Time}
	}
	f.bars = append(f.bars, b)
	return nil
}

// Bars returns a copy of the recorded bars.
func (f *Feed) Bars() []market.Bar {
	return append([]market.Bar(nil), f.bars...)
}

// Bounds returns the first and last bar times.
func (f *Feed) Bounds() (first, last time.Time, ok bool) {
	if len(f.bars) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return f.bars[0].Time, f.bars[len(f.bars)-1].Time, true
}
