package journal

import (
	"io"
	"text/template"
)

var runOrgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"short": func(s string) string {
		if len(s) > 12 {
			return s[:12]
		}
		return s
	},
}

// RunOrg is what the org summary of a run shows.
type RunOrg struct {
	Run    RunRecord
	Params map[string]float64
	Trades []TradeRecord
	Notes  []string
}

var runOrgTemplate = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate))

// WriteRunOrg renders an Emacs org-mode entry for a run.
func WriteRunOrg(w io.Writer, v RunOrg) error {
	return runOrgTemplate.Execute(w, v)
}

const RunOrgTemplate = `* BACKTEST: {{if .Run.Strategy}}{{.Run.Strategy}}{{else}}(strategy?){{end}} {{.Run.Start.Format "2006-01-02"}}..{{.Run.End.Format "2006-01-02"}}
:PROPERTIES:
:RUN_ID:      {{.Run.RunID}}
:STRATEGY:    {{.Run.Strategy}}
:CONFIG:      {{short .Run.ConfigDigest}}
:INPUTS:      {{short .Run.InputDigest}}
:COMPLETE:    {{if .Run.Complete}}yes{{else}}no{{end}}
:START_DATE:  {{.Run.Start.Format "2006-01-02"}}
:END_DATE:    {{.Run.End.Format "2006-01-02"}}
:TICKS:       {{.Run.Ticks}}
:START_CASH:  {{.Run.InitialCash.StringFixed 2}}
:END_EQUITY:  {{.Run.FinalEquity.StringFixed 2}}
:NET_PL:      {{.Run.NetPnL.StringFixed 2}}
:RETURN_PCT:  {{printf "%.2f" (mul100 .Run.TotalReturn)}}
:MAX_DD_PCT:  {{printf "%.2f" (mul100 .Run.MaxDrawdown)}}
:SHARPE:      {{printf "%.2f" .Run.Sharpe}}
:TRADES:      {{.Run.Trades}}
:WINS:        {{.Run.Wins}}
:LOSSES:      {{.Run.Losses}}
:WIN_RATE:    {{printf "%.2f" .Run.WinRate}}
:PROFIT_FAC:  {{if ne .Run.ProfitFactor 0.0}}{{printf "%.2f" .Run.ProfitFactor}}{{else}}(no losses){{end}}
:END:
{{- if .Params}}

** Strategy Parameters
| Parameter | Value |
|-----------+-------|
{{- range $k, $v := .Params}}
| {{$k}} | {{$v}} |
{{- end}}
{{- end}}

** Performance Summary
- Net P/L:          *{{.Run.NetPnL.StringFixed 2}}*
- Return:           *{{printf "%.2f" (mul100 .Run.TotalReturn)}}%*
- Max Drawdown:     *{{printf "%.2f" (mul100 .Run.MaxDrawdown)}}%*
- Win Rate:         *{{printf "%.2f" (mul100 .Run.WinRate)}}%*
- Round Trips:      *{{.Run.RoundTrips}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Run.Wins}} |
| Losses  | {{.Run.Losses}} |
| Total   | {{.Run.RoundTrips}} |
{{- if .Trades}}

** Trades
| # | Time | Instrument | Side | Qty | Price | Realized |
|---+------+------------+------+-----+-------+----------|
{{- range .Trades}}
| {{.TradeID}} | {{.Time.Format "2006-01-02 15:04"}} | {{.Instrument}} | {{.Side}} | {{.Quantity}} | {{.Price}} | {{.Realized.StringFixed 2}} |
{{- end}}
{{- end}}
{{- if .Notes}}

** Observations
{{- range .Notes}}
- {{.}}
{{- end}}
{{- end}}
`
