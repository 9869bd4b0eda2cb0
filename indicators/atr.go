package indicators

import "math"

// ATR is the average true range with Wilder's smoothing. Inputs are the
// high, low and close lines of one instrument, in that order.
type ATR struct {
	base
	period    int
	atr       float64
	count     int
	warmupSum float64
	prevClose float64
	hasPrev   bool
}

func NewATR(name, high, low, closeLine string, period int) *ATR {
	checkPeriod("ATR", period)
	return &ATR{base: base{name: name, inputs: []string{high, low, closeLine}}, period: period}
}

// Window is period+1: the first row only provides the previous close.
func (a *ATR) Window() int { return a.period + 1 }

func (a *ATR) Reset() {
	*a = ATR{base: a.base, period: a.period}
}

func (a *ATR) Step(in []float64) (float64, bool) {
	high, low, c := in[0], in[1], in[2]
	if !a.hasPrev {
		a.prevClose, a.hasPrev = c, true
		return 0, false
	}
	tr := trueRange(high, low, a.prevClose)
	a.prevClose = c

	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count < a.period {
			return 0, false
		}
		a.atr = a.warmupSum / float64(a.period)
		return a.atr, true
	}
	a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	return a.atr, true
}

func trueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}
