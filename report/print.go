package report

import (
	"fmt"
	"io"
	"time"
)

// Print writes a human readable summary of r.
func Print(w io.Writer, r *Report) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	if r.Strategy != "" {
		fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	}
	fmt.Fprintf(w, "Config:        %s\n", short(r.ConfigDigest))
	fmt.Fprintf(w, "Inputs:        %s\n", short(r.InputDigest))
	if !r.Complete {
		fmt.Fprintln(w, "Status:        INCOMPLETE (run was canceled)")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Ticks:         %d\n", r.Ticks)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Fills:         %d\n", r.Stats.Fills)
	fmt.Fprintf(w, "Round Trips:   %d\n", r.Stats.RoundTrips)
	fmt.Fprintf(w, "Wins:          %d\n", r.Stats.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Stats.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.Stats.WinRate*100)
	if r.Stats.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", r.Stats.ProfitFactor)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Cash:    %s\n", r.Account.InitialCash.StringFixed(2))
	fmt.Fprintf(w, "End Cash:      %s\n", r.Account.Cash.StringFixed(2))
	fmt.Fprintf(w, "End Equity:    %s\n", r.Account.Equity.StringFixed(2))
	fmt.Fprintf(w, "Net P/L:       %s\n", r.Stats.NetPnL.StringFixed(2))
	fmt.Fprintf(w, "Commissions:   %s\n", r.Account.Commissions.StringFixed(2))
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.Stats.TotalReturn*100)
	fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", r.Stats.MaxDrawdown*100)
	fmt.Fprintf(w, "Sharpe:        %.2f\n", r.Stats.Sharpe)
	fmt.Fprintf(w, "Turnover:      %.2fx\n", r.Stats.Turnover)

	if len(r.Account.Positions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Open Positions")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, p := range r.Account.Positions {
			fmt.Fprintf(w, "%-12s %s @ %s (unrealized %s)\n",
				p.Instrument, p.Quantity, p.AverageCost.StringFixed(4), p.UnrealizedPnL.StringFixed(2))
		}
	}

	if len(r.Levels) > 1 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Levels")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, lv := range r.Levels {
			fmt.Fprintf(w, "%-8s ticks=%d orders=%d fills=%d realized=%s\n",
				lv.Name, lv.Ticks, lv.Orders, lv.Fills, lv.Realized.StringFixed(2))
		}
	}
	fmt.Fprintln(w)
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
