package engine

import (
	"context"
	"fmt"

	"github.com/rustyeddy/barsim/report"
)

// Replay runs r, which must be built from the recorded run's inputs, and
// checks that it reproduces the recorded report byte for byte. Reports
// of interrupted runs cannot be reproduced and fail with ErrIncompleteRun.
func Replay(ctx context.Context, recorded *report.Report, r Runner) (*report.Report, error) {
	if !recorded.Complete {
		return nil, fmt.Errorf("%w: run %s stopped after %d ticks", ErrIncompleteRun, recorded.RunID, recorded.Ticks)
	}
	got, err := r.Run(ctx)
	if err != nil {
		return got, err
	}
	want, err := recorded.Fingerprint()
	if err != nil {
		return got, err
	}
	have, err := got.Fingerprint()
	if err != nil {
		return got, err
	}
	if want != have {
		return got, fmt.Errorf("%w: run %s: %s", ErrReplayMismatch, recorded.RunID, firstDifference(recorded, got))
	}
	return got, nil
}

func firstDifference(a, b *report.Report) string {
	switch {
	case a.ConfigDigest != b.ConfigDigest:
		return "config digest differs"
	case a.InputDigest != b.InputDigest:
		return "input digest differs"
	case a.Ticks != b.Ticks:
		return fmt.Sprintf("ticks %d != %d", a.Ticks, b.Ticks)
	case len(a.Trades) != len(b.Trades):
		return fmt.Sprintf("trades %d != %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		x, y := a.Trades[i], b.Trades[i]
		if x.Instrument != y.Instrument || !x.Time.Equal(y.Time) || !x.Price.Equal(y.Price) || !x.Quantity.Equal(y.Quantity) {
			return fmt.Sprintf("trade %d differs", i)
		}
	}
	if !a.Account.Equity.Equal(b.Account.Equity) {
		return fmt.Sprintf("equity %s != %s", a.Account.Equity, b.Account.Equity)
	}
	return "reports differ"
}
