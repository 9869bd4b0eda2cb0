package backtest

import (
	"fmt"
	"io"

	"github.com/rustyeddy/barsim/report"
	"github.com/rustyeddy/barsim/sweep"
)

// PrintSweep writes one line per grid point, in grid order.
func PrintSweep(w io.Writer, results []sweep.Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Sweep Results")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "%-4s %-32s %10s %9s %9s %7s\n", "#", "Params", "Net P/L", "Return", "Max DD", "Trips")
	fmt.Fprintln(w, "--------------------------------------------------")

	for _, r := range results {
		if r.Err != nil && r.Report == nil {
			fmt.Fprintf(w, "%-4d %-32s error: %v\n", r.Index, r.Params, r.Err)
			continue
		}
		s := r.Report.Stats
		fmt.Fprintf(w, "%-4d %-32s %10s %8.2f%% %8.2f%% %7d",
			r.Index, r.Params, s.NetPnL.StringFixed(2), s.TotalReturn*100, s.MaxDrawdown*100, s.RoundTrips)
		if !r.Report.Complete {
			fmt.Fprint(w, "  (incomplete)")
		}
		fmt.Fprintln(w)
	}

	if best, ok := sweep.Best(results, func(r *report.Report) float64 { return r.Stats.TotalReturn }); ok {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Best:          #%d %s (%.2f%%)\n", best.Index, best.Params, best.Report.Stats.TotalReturn*100)
	}
	fmt.Fprintln(w)
}
